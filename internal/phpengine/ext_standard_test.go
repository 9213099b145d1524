package phpengine_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/sadewadee/phpbridge/internal/phpengine"
)

func TestStandardFunctions(t *testing.T) {
	engine := newStartedEngine(t, "standard")

	tests := []struct {
		name string
		fn   string
		args []phpengine.Zval
		want phpengine.Zval
	}{
		{"identity", "identity", []phpengine.Zval{int64(42)}, int64(42)},
		{"strtoupper", "strtoupper", []phpengine.Zval{"héllo"}, "HéLLO"},
		{"strtoupper int", "strtoupper", []phpengine.Zval{int64(12)}, "12"},
		{"strtolower", "strtolower", []phpengine.Zval{"ABC"}, "abc"},
		{"strlen bytes", "strlen", []phpengine.Zval{"héllo"}, int64(6)},
		{"str_repeat", "str_repeat", []phpengine.Zval{"ab", int64(3)}, "ababab"},
		{"count", "count", []phpengine.Zval{phpengine.NewList(int64(1), int64(2))}, int64(2)},
		{"array_sum ints", "array_sum", []phpengine.Zval{phpengine.NewList(int64(1), int64(2), int64(3))}, int64(6)},
		{"array_sum mixed", "array_sum", []phpengine.Zval{phpengine.NewList(int64(1), 0.5)}, 1.5},
		{"implode", "implode", []phpengine.Zval{",", phpengine.NewList("a", int64(1), true)}, "a,1,1"},
		{"implode single arg", "implode", []phpengine.Zval{phpengine.NewList("a", "b")}, "ab"},
		{"intdiv", "intdiv", []phpengine.Zval{int64(7), int64(2)}, int64(3)},
		{"usleep", "usleep", []phpengine.Zval{int64(1)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Call(tt.fn, tt.args, nil)
			if err != nil {
				t.Fatalf("%s: %v", tt.fn, err)
			}
			if got != tt.want {
				t.Errorf("%s: got %#v, want %#v", tt.fn, got, tt.want)
			}
		})
	}
}

func TestStandardFunctionErrors(t *testing.T) {
	engine := newStartedEngine(t, "standard")

	tests := []struct {
		name  string
		fn    string
		args  []phpengine.Zval
		class string
	}{
		{"intdiv by zero", "intdiv", []phpengine.Zval{int64(1), int64(0)}, "DivisionByZeroError"},
		{"strlen array", "strlen", []phpengine.Zval{phpengine.NewList()}, "TypeError"},
		{"count scalar", "count", []phpengine.Zval{int64(1)}, "TypeError"},
		{"too few args", "str_repeat", []phpengine.Zval{"x"}, "ArgumentCountError"},
		{"negative repeat", "str_repeat", []phpengine.Zval{"x", int64(-1)}, "ValueError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Call(tt.fn, tt.args, nil)
			var ex *phpengine.Exception
			if !errors.As(err, &ex) || ex.Class != tt.class {
				t.Fatalf("expected %s, got %v", tt.class, err)
			}
		})
	}
}

func TestArrayReverse(t *testing.T) {
	engine := newStartedEngine(t, "standard")

	in := phpengine.NewArray()
	in.Set(phpengine.IntKey(0), "a")
	in.Set(phpengine.StrKey("k"), "b")
	in.Set(phpengine.IntKey(5), "c")

	got, err := engine.Call("array_reverse", []phpengine.Zval{in}, nil)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	got.(*phpengine.Array).Each(func(k phpengine.Key, _ phpengine.Zval) bool {
		keys = append(keys, k.Str())
		return true
	})
	if strings.Join(keys, ",") != "0,k,1" {
		t.Errorf("renumbered keys: got %v", keys)
	}

	got, _ = engine.Call("array_reverse", nil, []phpengine.NamedArg{
		{Name: "array", Value: in},
		{Name: "preserve_keys", Value: true},
	})
	keys = keys[:0]
	got.(*phpengine.Array).Each(func(k phpengine.Key, _ phpengine.Zval) bool {
		keys = append(keys, k.Str())
		return true
	})
	if strings.Join(keys, ",") != "5,k,0" {
		t.Errorf("preserved keys: got %v", keys)
	}
}

func TestErrorLogRoutesToLogger(t *testing.T) {
	var buf bytes.Buffer
	phpengine.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer phpengine.SetLogger(nil)

	engine := newStartedEngine(t, "standard")
	if _, err := engine.Call("error_log", []phpengine.Zval{"disk full"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Call("syslog", []phpengine.Zval{int64(4), "low memory"}, nil); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "disk full") {
		t.Errorf("error_log output: %q", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "low memory") {
		t.Errorf("syslog output: %q", out)
	}
}
