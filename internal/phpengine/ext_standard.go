package phpengine

import (
	"math"
	"strings"
	"time"
)

// StandardExtension returns the string, array and math builtins.
func StandardExtension() Extension {
	return Extension{
		Name: "standard",
		Functions: []Function{
			{Name: "identity", Params: []string{"value"}, Fn: fnIdentity},
			{Name: "strtoupper", Params: []string{"string"}, Fn: fnStrtoupper},
			{Name: "strtolower", Params: []string{"string"}, Fn: fnStrtolower},
			{Name: "strlen", Params: []string{"string"}, Fn: fnStrlen},
			{Name: "str_repeat", Params: []string{"string", "times"}, Fn: fnStrRepeat},
			{Name: "count", Params: []string{"value"}, Fn: fnCount},
			{Name: "array_sum", Params: []string{"array"}, Fn: fnArraySum},
			{Name: "array_reverse", Params: []string{"array", "preserve_keys"}, Fn: fnArrayReverse},
			{Name: "implode", Params: []string{"separator", "array"}, Fn: fnImplode},
			{Name: "intdiv", Params: []string{"num1", "num2"}, Fn: fnIntdiv},
			{Name: "usleep", Params: []string{"microseconds"}, Fn: fnUsleep},
			{Name: "error_log", Params: []string{"message"}, Fn: fnErrorLog},
			{Name: "syslog", Params: []string{"priority", "message"}, Fn: fnSyslog},
		},
	}
}

func fnIdentity(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("identity", args, 1, 1); err != nil {
		return nil, err
	}
	return args[0], nil
}

func fnStrtoupper(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("strtoupper", args, 1, 1); err != nil {
		return nil, err
	}
	s, err := argString("strtoupper", args, 0)
	if err != nil {
		return nil, err
	}
	return asciiMap(s, 'a', 'z', 'A'-'a'), nil
}

func fnStrtolower(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("strtolower", args, 1, 1); err != nil {
		return nil, err
	}
	s, err := argString("strtolower", args, 0)
	if err != nil {
		return nil, err
	}
	return asciiMap(s, 'A', 'Z', 'a'-'A'), nil
}

// asciiMap shifts bytes in [lo, hi] by delta. PHP 8 case conversion is
// locale-independent and byte-wise.
func asciiMap(s string, lo, hi byte, delta int) string {
	b := []byte(s)
	for i, c := range b {
		if c >= lo && c <= hi {
			b[i] = byte(int(c) + delta)
		}
	}
	return string(b)
}

func fnStrlen(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("strlen", args, 1, 1); err != nil {
		return nil, err
	}
	s, err := argString("strlen", args, 0)
	if err != nil {
		return nil, err
	}
	return int64(len(s)), nil
}

func fnStrRepeat(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("str_repeat", args, 2, 2); err != nil {
		return nil, err
	}
	s, err := argString("str_repeat", args, 0)
	if err != nil {
		return nil, err
	}
	n, err := argInt("str_repeat", args, 1)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, Throw("ValueError", "str_repeat(): Argument #2 ($times) must be greater than or equal to 0")
	}
	return strings.Repeat(s, int(n)), nil
}

func fnCount(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("count", args, 1, 2); err != nil {
		return nil, err
	}
	a, err := argArray("count", args, 0)
	if err != nil {
		return nil, Throw("TypeError", "count(): Argument #1 ($value) must be of type Countable|array, %s given", TypeName(args[0]))
	}
	return int64(a.Len()), nil
}

func fnArraySum(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("array_sum", args, 1, 1); err != nil {
		return nil, err
	}
	a, err := argArray("array_sum", args, 0)
	if err != nil {
		return nil, err
	}

	var isum int64
	var fsum float64
	isFloat := false
	a.Each(func(_ Key, v Zval) bool {
		switch x := v.(type) {
		case int64:
			if !isFloat {
				if s, ok := addInt(isum, x); ok {
					isum = s
					return true
				}
				isFloat, fsum = true, float64(isum)
			}
			fsum += float64(x)
		case int:
			if !isFloat {
				isum += int64(x)
				return true
			}
			fsum += float64(x)
		case float64:
			if !isFloat {
				isFloat, fsum = true, float64(isum)
			}
			fsum += x
		case bool:
			if x {
				if isFloat {
					fsum++
				} else {
					isum++
				}
			}
		}
		return true
	})
	if isFloat {
		return fsum, nil
	}
	return isum, nil
}

// addInt adds with overflow detection; PHP promotes overflowing sums to
// float.
func addInt(a, b int64) (int64, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

func fnArrayReverse(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("array_reverse", args, 1, 2); err != nil {
		return nil, err
	}
	a, err := argArray("array_reverse", args, 0)
	if err != nil {
		return nil, err
	}
	preserve := false
	if len(args) > 1 && args[1] != nil {
		if preserve, err = argBool("array_reverse", args, 1); err != nil {
			return nil, err
		}
	}

	type kv struct {
		k Key
		v Zval
	}
	items := make([]kv, 0, a.Len())
	a.Each(func(k Key, v Zval) bool {
		items = append(items, kv{k, v})
		return true
	})

	out := NewArray()
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		if it.k.IsString() || preserve {
			out.Set(it.k, it.v)
		} else {
			out.Append(it.v)
		}
	}
	return out, nil
}

func fnImplode(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("implode", args, 1, 2); err != nil {
		return nil, err
	}

	var sep string
	var a *Array
	var err error
	if len(args) == 1 {
		if a, err = argArray("implode", args, 0); err != nil {
			return nil, err
		}
	} else {
		if sep, err = argString("implode", args, 0); err != nil {
			return nil, err
		}
		if a, err = argArray("implode", args, 1); err != nil {
			return nil, err
		}
	}

	parts := make([]string, 0, a.Len())
	a.Each(func(_ Key, v Zval) bool {
		parts = append(parts, toString(v))
		return true
	})
	return strings.Join(parts, sep), nil
}

func fnIntdiv(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("intdiv", args, 2, 2); err != nil {
		return nil, err
	}
	a, err := argInt("intdiv", args, 0)
	if err != nil {
		return nil, err
	}
	b, err := argInt("intdiv", args, 1)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, Throw("DivisionByZeroError", "Division by zero")
	}
	if a == math.MinInt64 && b == -1 {
		return nil, Throw("ArithmeticError", "Division of PHP_INT_MIN by -1 is not an integer")
	}
	return a / b, nil
}

func fnUsleep(_ *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("usleep", args, 1, 1); err != nil {
		return nil, err
	}
	us, err := argInt("usleep", args, 0)
	if err != nil {
		return nil, err
	}
	if us < 0 {
		return nil, Throw("ValueError", "usleep(): Argument #1 ($microseconds) must be greater than or equal to 0")
	}
	time.Sleep(time.Duration(us) * time.Microsecond)
	return nil, nil
}

func fnErrorLog(e *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("error_log", args, 1, 1); err != nil {
		return nil, err
	}
	msg, err := argString("error_log", args, 0)
	if err != nil {
		return nil, err
	}
	logPHPMessage(logErr, msg, e.ThreadID())
	return true, nil
}

func fnSyslog(e *Engine, args []Zval) (Zval, error) {
	if err := expectArgs("syslog", args, 2, 2); err != nil {
		return nil, err
	}
	priority, err := argInt("syslog", args, 0)
	if err != nil {
		return nil, err
	}
	msg, err := argString("syslog", args, 1)
	if err != nil {
		return nil, err
	}
	logPHPMessage(int(priority), msg, e.ThreadID())
	return true, nil
}
