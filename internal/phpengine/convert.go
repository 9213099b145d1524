package phpengine

import (
	"fmt"

	"github.com/sadewadee/phpbridge/internal/bridge"
)

// MaxDepth bounds array nesting on both conversion directions. Deeper
// values, including self-referencing arrays, do not convert.
const MaxDepth = 256

// FromNative converts z into a bridge value. It reports false for values
// with no serialized form: closures, resources, objects and arrays nested
// deeper than MaxDepth.
func FromNative(z Zval) (bridge.Value, bool) {
	return fromNative(z, 0)
}

func fromNative(z Zval, depth int) (bridge.Value, bool) {
	switch x := z.(type) {
	case nil:
		return bridge.Null(), true
	case bool:
		return bridge.Bool(x), true
	case int64:
		return bridge.Int(x), true
	case int:
		return bridge.Int(int64(x)), true
	case float64:
		return bridge.Float(x), true
	case string:
		return bridge.String(x), true
	case *Array:
		if x == nil || depth >= MaxDepth {
			return bridge.Value{}, false
		}
		return arrayFromNative(x, depth+1)
	}
	return bridge.Value{}, false
}

func arrayFromNative(a *Array, depth int) (bridge.Value, bool) {
	if a.IsList() {
		items := make([]bridge.Value, 0, a.Len())
		ok := true
		a.Each(func(_ Key, v Zval) bool {
			var item bridge.Value
			item, ok = fromNative(v, depth)
			items = append(items, item)
			return ok
		})
		if !ok {
			return bridge.Value{}, false
		}
		return bridge.List(items...), true
	}

	pairs := make([]bridge.Pair, 0, a.Len())
	ok := true
	a.Each(func(k Key, v Zval) bool {
		var val bridge.Value
		val, ok = fromNative(v, depth)
		if !ok {
			return false
		}
		key := bridge.Int(k.Int())
		if k.IsString() {
			key = bridge.String(k.Str())
		}
		pairs = append(pairs, bridge.P(key, val))
		return true
	})
	if !ok {
		return bridge.Value{}, false
	}
	return bridge.Map(pairs...), true
}

// ToNative converts v into a native value. Map keys must be Int or Bytes;
// Bool keys become 0 or 1 and a Null key becomes "", as PHP coerces them.
// Any other key kind is a *bridge.ConversionError.
func ToNative(v bridge.Value) (Zval, error) {
	z, err := toNative(v, 0)
	if err != nil {
		return nil, bridge.ResultConversionError(err.Error())
	}
	return z, nil
}

func toNative(v bridge.Value, depth int) (Zval, error) {
	switch v.Kind() {
	case bridge.KindNull:
		return nil, nil
	case bridge.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case bridge.KindInt:
		i, _ := v.AsInt()
		return i, nil
	case bridge.KindFloat:
		f, _ := v.AsFloat()
		return f, nil
	case bridge.KindBytes:
		s, _ := v.AsString()
		return s, nil
	}

	if depth >= MaxDepth {
		return nil, fmt.Errorf("nesting exceeds %d levels", MaxDepth)
	}

	switch v.Kind() {
	case bridge.KindList:
		items, _ := v.AsList()
		a := NewArray()
		for _, item := range items {
			z, err := toNative(item, depth+1)
			if err != nil {
				return nil, err
			}
			a.Append(z)
		}
		return a, nil
	case bridge.KindMap:
		pairs, _ := v.AsMap()
		a := NewArray()
		for _, p := range pairs {
			k, err := nativeKey(p.Key)
			if err != nil {
				return nil, err
			}
			z, err := toNative(p.Value, depth+1)
			if err != nil {
				return nil, err
			}
			a.Set(k, z)
		}
		return a, nil
	}
	return nil, fmt.Errorf("unsupported kind %s", v.Kind())
}

func nativeKey(v bridge.Value) (Key, error) {
	switch v.Kind() {
	case bridge.KindInt:
		i, _ := v.AsInt()
		return IntKey(i), nil
	case bridge.KindBytes:
		s, _ := v.AsString()
		return StrKey(s), nil
	case bridge.KindBool:
		if b, _ := v.AsBool(); b {
			return IntKey(1), nil
		}
		return IntKey(0), nil
	case bridge.KindNull:
		return StrKey(""), nil
	}
	return Key{}, fmt.Errorf("illegal offset type %s", v.Kind())
}
