package phpengine

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"

	"github.com/goccy/go-json"
)

// JSONExtension returns json_encode and json_decode. Decoded objects are
// always associative arrays.
func JSONExtension() Extension {
	return Extension{
		Name: "json",
		Functions: []Function{
			{Name: "json_encode", Params: []string{"value"}, Fn: fnJSONEncode},
			{Name: "json_decode", Params: []string{"json", "associative"}, Fn: fnJSONDecode},
		},
	}
}

func fnJSONEncode(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("json_encode", args, 1, 2); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeJSON(&buf, args[0], 0); err != nil {
		return false, nil
	}
	return buf.String(), nil
}

func encodeJSON(buf *bytes.Buffer, z Zval, depth int) error {
	if depth > MaxDepth {
		return errors.New("maximum stack depth exceeded")
	}
	switch x := z.(type) {
	case *Array:
		if x.IsList() {
			buf.WriteByte('[')
			var err error
			i := 0
			x.Each(func(_ Key, v Zval) bool {
				if i > 0 {
					buf.WriteByte(',')
				}
				i++
				err = encodeJSON(buf, v, depth+1)
				return err == nil
			})
			buf.WriteByte(']')
			return err
		}
		buf.WriteByte('{')
		var err error
		i := 0
		x.Each(func(k Key, v Zval) bool {
			if i > 0 {
				buf.WriteByte(',')
			}
			i++
			if err = writeJSONScalar(buf, k.Str()); err != nil {
				return false
			}
			buf.WriteByte(':')
			err = encodeJSON(buf, v, depth+1)
			return err == nil
		})
		buf.WriteByte('}')
		return err
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return errors.New("inf and nan cannot be JSON encoded")
		}
	case *Closure, *Resource:
		return errors.New("type is not supported")
	case *Object:
		if x.Props == nil {
			buf.WriteString("{}")
			return nil
		}
		return encodeJSON(buf, x.Props, depth+1)
	}
	return writeJSONScalar(buf, z)
}

func writeJSONScalar(buf *bytes.Buffer, z Zval) error {
	b, err := json.Marshal(z)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

func fnJSONDecode(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("json_decode", args, 1, 2); err != nil {
		return nil, err
	}
	s, err := argString("json_decode", args, 0)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	z, err := decodeJSON(dec, 0)
	if err != nil {
		return nil, nil
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil
	}
	return z, nil
}

// decodeJSON walks the token stream so object key order survives.
func decodeJSON(dec *json.Decoder, depth int) (Zval, error) {
	if depth > MaxDepth {
		return nil, errors.New("maximum stack depth exceeded")
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			a := NewArray()
			for dec.More() {
				v, err := decodeJSON(dec, depth+1)
				if err != nil {
					return nil, err
				}
				a.Append(v)
			}
			_, err := dec.Token()
			return a, err
		case '{':
			a := NewArray()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, errors.New("object key is not a string")
				}
				v, err := decodeJSON(dec, depth+1)
				if err != nil {
					return nil, err
				}
				a.Set(StrKey(key), v)
			}
			_, err := dec.Token()
			return a, err
		}
		return nil, errors.New("unexpected delimiter")
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	case string, bool, nil:
		return t, nil
	}
	return nil, errors.New("unexpected token")
}
