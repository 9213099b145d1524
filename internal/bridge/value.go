package bridge

import (
	"bytes"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindBytes
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an interpreter-independent value that can be moved between
// goroutines. The zero Value is Null.
//
// A Value owns its data: constructors copy their input and accessors return
// copies, so a Value can never be mutated after it is built.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	f     float64
	s     []byte
	list  []Value
	pairs []Pair
}

// Pair is a single key/value entry of a Map value.
type Pair struct {
	Key   Value
	Value Value
}

// P builds a Pair.
func P(key, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns a 64-bit integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a 64-bit float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bytes returns a byte-string value holding a copy of b.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, s: bytes.Clone(nonNil(b))}
}

// String returns a byte-string value holding s.
func String(s string) Value {
	return Value{kind: KindBytes, s: []byte(s)}
}

// List returns an ordered list value.
func List(items ...Value) Value {
	list := make([]Value, len(items))
	copy(list, items)
	return Value{kind: KindList, list: list}
}

// Map returns an ordered key/value value. Insertion order is kept and keys
// are not deduplicated.
func Map(pairs ...Pair) Value {
	ps := make([]Pair, len(pairs))
	copy(ps, pairs)
	return Value{kind: KindMap, pairs: ps}
}

// Of lifts a plain Go value into a Value. Supported inputs are nil, bool,
// the integer and float types, string, []byte, Value, []Value, []Pair, []any
// and map[string]any (keys sorted). It reports false for anything else,
// including uint64 values that do not fit in an int64.
func Of(x any) (Value, bool) {
	switch v := x.(type) {
	case nil:
		return Null(), true
	case Value:
		return v, true
	case bool:
		return Bool(v), true
	case int:
		return Int(int64(v)), true
	case int8:
		return Int(int64(v)), true
	case int16:
		return Int(int64(v)), true
	case int32:
		return Int(int64(v)), true
	case int64:
		return Int(v), true
	case uint8:
		return Int(int64(v)), true
	case uint16:
		return Int(int64(v)), true
	case uint32:
		return Int(int64(v)), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return Value{}, false
		}
		return Int(int64(v)), true
	case uint64:
		if v > math.MaxInt64 {
			return Value{}, false
		}
		return Int(int64(v)), true
	case float32:
		return Float(float64(v)), true
	case float64:
		return Float(v), true
	case string:
		return String(v), true
	case []byte:
		return Bytes(v), true
	case []Value:
		return List(v...), true
	case []Pair:
		return Map(v...), true
	case []any:
		items := make([]Value, 0, len(v))
		for _, e := range v {
			item, ok := Of(e)
			if !ok {
				return Value{}, false
			}
			items = append(items, item)
		}
		return Value{kind: KindList, list: items}, true
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]Pair, 0, len(v))
		for _, k := range keys {
			item, ok := Of(v[k])
			if !ok {
				return Value{}, false
			}
			pairs = append(pairs, P(String(k), item))
		}
		return Value{kind: KindMap, pairs: pairs}, true
	}
	return Value{}, false
}

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsInt returns the integer held by v.
func (v Value) AsInt() (int64, bool) {
	return v.i, v.kind == KindInt
}

// AsFloat returns the float held by v.
func (v Value) AsFloat() (float64, bool) {
	return v.f, v.kind == KindFloat
}

// AsBytes returns a copy of the bytes held by v.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return bytes.Clone(nonNil(v.s)), true
}

// AsString returns the bytes held by v as a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindBytes {
		return "", false
	}
	return string(v.s), true
}

// AsList returns a copy of the items held by v.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out, true
}

// AsMap returns a copy of the pairs held by v.
func (v Value) AsMap() ([]Pair, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	out := make([]Pair, len(v.pairs))
	copy(out, v.pairs)
	return out, true
}

// Len returns the number of bytes, items or pairs, and 0 for scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindBytes:
		return len(v.s)
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.pairs)
	}
	return 0
}

// Depth returns the container nesting of v; scalars have depth 0.
func (v Value) Depth() int {
	d := 0
	switch v.kind {
	case KindList:
		for _, item := range v.list {
			d = max(d, item.Depth())
		}
		return d + 1
	case KindMap:
		for _, p := range v.pairs {
			d = max(d, p.Key.Depth(), p.Value.Depth())
		}
		return d + 1
	}
	return 0
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindBytes:
		return Bytes(v.s)
	case KindList:
		list := make([]Value, len(v.list))
		for i, item := range v.list {
			list[i] = item.Clone()
		}
		return Value{kind: KindList, list: list}
	case KindMap:
		pairs := make([]Pair, len(v.pairs))
		for i, p := range v.pairs {
			pairs[i] = Pair{Key: p.Key.Clone(), Value: p.Value.Clone()}
		}
		return Value{kind: KindMap, pairs: pairs}
	}
	return v
}

// Equal reports structural equality. Floats compare bitwise, so NaN equals
// NaN, and map pairs must appear in the same order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case KindBytes:
		return bytes.Equal(v.s, o.s)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.pairs) != len(o.pairs) {
			return false
		}
		for i := range v.pairs {
			if !v.pairs[i].Key.Equal(o.pairs[i].Key) || !v.pairs[i].Value.Equal(o.pairs[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v for logs and test failures.
func (v Value) String() string {
	var b strings.Builder
	v.format(&b)
	return b.String()
}

func (v Value) format(b *strings.Builder) {
	switch v.kind {
	case KindNull:
		b.WriteString("null")
	case KindBool:
		b.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		b.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		b.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindBytes:
		b.WriteString(strconv.Quote(string(v.s)))
	case KindList:
		b.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				b.WriteString(", ")
			}
			item.format(b)
		}
		b.WriteByte(']')
	case KindMap:
		b.WriteByte('{')
		for i, p := range v.pairs {
			if i > 0 {
				b.WriteString(", ")
			}
			p.Key.format(b)
			b.WriteString(": ")
			p.Value.format(b)
		}
		b.WriteByte('}')
	}
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
