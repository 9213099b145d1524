package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/sadewadee/phpbridge/internal/bridge"
)

// Codec selects how frame headers and values are serialized.
type Codec uint8

const (
	CodecMsgpack Codec = iota
	CodecCBOR
)

// maxValueDepth matches the interpreter's array nesting limit.
const maxValueDepth = 256

// CodecForFlags returns the codec selected by frame flags.
func CodecForFlags(flags uint8) Codec {
	if flags&FlagCBOR != 0 {
		return CodecCBOR
	}
	return CodecMsgpack
}

// ParseCodec parses a codec name as used in configuration.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "msgpack":
		return CodecMsgpack, nil
	case "cbor":
		return CodecCBOR, nil
	}
	return 0, fmt.Errorf("unknown codec %q", name)
}

func (c Codec) String() string {
	if c == CodecCBOR {
		return "cbor"
	}
	return "msgpack"
}

// Flags returns the frame flags announcing c.
func (c Codec) Flags() uint8 {
	if c == CodecCBOR {
		return FlagCBOR
	}
	return 0
}

// Marshal encodes v with the codec.
func (c Codec) Marshal(v interface{}) ([]byte, error) {
	if c == CodecCBOR {
		return MarshalCBOR(v)
	}
	return msgpack.Marshal(v)
}

// Unmarshal decodes data with the codec.
func (c Codec) Unmarshal(data []byte, v interface{}) error {
	if c == CodecCBOR {
		return UnmarshalCBOR(data, v)
	}
	return msgpack.Unmarshal(data, v)
}

// wireValue is the tagged form of a bridge.Value. Carrying the kind keeps
// bytes distinct from strings-as-text and keeps map pairs ordered, neither
// of which a native msgpack or CBOR map would preserve.
type wireValue struct {
	Kind  uint8       `msgpack:"k" cbor:"1,keyasint"`
	Bool  bool        `msgpack:"b,omitempty" cbor:"2,keyasint,omitempty"`
	Int   int64       `msgpack:"i,omitempty" cbor:"3,keyasint,omitempty"`
	Float float64     `msgpack:"f,omitempty" cbor:"4,keyasint,omitempty"`
	Bytes []byte      `msgpack:"s,omitempty" cbor:"5,keyasint,omitempty"`
	List  []wireValue `msgpack:"l,omitempty" cbor:"6,keyasint,omitempty"`
	Pairs []wirePair  `msgpack:"m,omitempty" cbor:"7,keyasint,omitempty"`
}

type wirePair struct {
	Key   wireValue `msgpack:"k" cbor:"1,keyasint"`
	Value wireValue `msgpack:"v" cbor:"2,keyasint"`
}

func toWire(v bridge.Value) wireValue {
	w := wireValue{Kind: uint8(v.Kind())}
	switch v.Kind() {
	case bridge.KindBool:
		w.Bool, _ = v.AsBool()
	case bridge.KindInt:
		w.Int, _ = v.AsInt()
	case bridge.KindFloat:
		w.Float, _ = v.AsFloat()
	case bridge.KindBytes:
		w.Bytes, _ = v.AsBytes()
	case bridge.KindList:
		items, _ := v.AsList()
		w.List = make([]wireValue, len(items))
		for i, item := range items {
			w.List[i] = toWire(item)
		}
	case bridge.KindMap:
		pairs, _ := v.AsMap()
		w.Pairs = make([]wirePair, len(pairs))
		for i, p := range pairs {
			w.Pairs[i] = wirePair{Key: toWire(p.Key), Value: toWire(p.Value)}
		}
	}
	return w
}

var errTooDeep = errors.New("value nesting too deep")

func fromWire(w wireValue, depth int) (bridge.Value, error) {
	switch bridge.Kind(w.Kind) {
	case bridge.KindNull:
		return bridge.Null(), nil
	case bridge.KindBool:
		return bridge.Bool(w.Bool), nil
	case bridge.KindInt:
		return bridge.Int(w.Int), nil
	case bridge.KindFloat:
		return bridge.Float(w.Float), nil
	case bridge.KindBytes:
		return bridge.Bytes(w.Bytes), nil
	}

	if depth >= maxValueDepth {
		return bridge.Value{}, errTooDeep
	}
	switch bridge.Kind(w.Kind) {
	case bridge.KindList:
		items := make([]bridge.Value, len(w.List))
		for i, item := range w.List {
			v, err := fromWire(item, depth+1)
			if err != nil {
				return bridge.Value{}, err
			}
			items[i] = v
		}
		return bridge.List(items...), nil
	case bridge.KindMap:
		pairs := make([]bridge.Pair, len(w.Pairs))
		for i, p := range w.Pairs {
			k, err := fromWire(p.Key, depth+1)
			if err != nil {
				return bridge.Value{}, err
			}
			v, err := fromWire(p.Value, depth+1)
			if err != nil {
				return bridge.Value{}, err
			}
			pairs[i] = bridge.P(k, v)
		}
		return bridge.Map(pairs...), nil
	}
	return bridge.Value{}, fmt.Errorf("unknown value kind %d", w.Kind)
}

// EncodeValue serializes a single value.
func EncodeValue(c Codec, v bridge.Value) ([]byte, error) {
	data, err := c.Marshal(toWire(v))
	if err != nil {
		return nil, fmt.Errorf("encoding %s value: %w", c, err)
	}
	return data, nil
}

// DecodeValue deserializes a single value.
func DecodeValue(c Codec, data []byte) (bridge.Value, error) {
	var w wireValue
	if err := c.Unmarshal(data, &w); err != nil {
		return bridge.Value{}, fmt.Errorf("decoding %s value: %w", c, err)
	}
	return fromWire(w, 0)
}

// EncodeValues serializes a sequence of values, such as call arguments.
func EncodeValues(c Codec, vs []bridge.Value) ([]byte, error) {
	ws := make([]wireValue, len(vs))
	for i, v := range vs {
		ws[i] = toWire(v)
	}
	data, err := c.Marshal(ws)
	if err != nil {
		return nil, fmt.Errorf("encoding %s values: %w", c, err)
	}
	return data, nil
}

// DecodeValues deserializes a sequence of values. Empty data decodes to
// no values.
func DecodeValues(c Codec, data []byte) ([]bridge.Value, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ws []wireValue
	if err := c.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("decoding %s values: %w", c, err)
	}
	vs := make([]bridge.Value, len(ws))
	for i, w := range ws {
		v, err := fromWire(w, 0)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		vs[i] = v
	}
	return vs, nil
}
