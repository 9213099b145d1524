package phpengine

import (
	"math"
	"strconv"
	"strings"
)

func expectArgs(fn string, args []Zval, min, max int) error {
	if len(args) < min {
		return Throw("ArgumentCountError", "%s() expects at least %d arguments, %d given", fn, min, len(args))
	}
	if max >= 0 && len(args) > max {
		return Throw("ArgumentCountError", "%s() expects at most %d arguments, %d given", fn, max, len(args))
	}
	return nil
}

func typeError(fn string, i int, want string, got Zval) error {
	return Throw("TypeError", "%s(): Argument #%d must be of type %s, %s given", fn, i+1, want, TypeName(got))
}

// argString coerces scalars to string the way non-strict mode does.
func argString(fn string, args []Zval, i int) (string, error) {
	switch x := args[i].(type) {
	case string:
		return x, nil
	case int64, int, float64, bool:
		return toString(x), nil
	}
	return "", typeError(fn, i, "string", args[i])
}

func argInt(fn string, args []Zval, i int) (int64, error) {
	switch x := args[i].(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case float64:
		if x == math.Trunc(x) && x >= math.MinInt64 && x < math.MaxInt64 {
			return int64(x), nil
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, typeError(fn, i, "int", args[i])
}

func argBool(fn string, args []Zval, i int) (bool, error) {
	switch x := args[i].(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case string:
		return x != "" && x != "0", nil
	}
	return false, typeError(fn, i, "bool", args[i])
}

func argArray(fn string, args []Zval, i int) (*Array, error) {
	if a, ok := args[i].(*Array); ok && a != nil {
		return a, nil
	}
	return nil, typeError(fn, i, "array", args[i])
}

func toString(z Zval) string {
	switch x := z.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return formatFloat(x)
	case bool:
		if x {
			return "1"
		}
		return ""
	case nil:
		return ""
	case *Array:
		return "Array"
	}
	return TypeName(z)
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case math.IsNaN(f):
		return "NAN"
	}
	return strconv.FormatFloat(f, 'G', 14, 64)
}
