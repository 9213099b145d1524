package phpengine_test

import (
	"testing"

	"github.com/sadewadee/phpbridge/internal/phpengine"
)

func TestStrKeyNormalisation(t *testing.T) {
	tests := []struct {
		in       string
		isString bool
		want     int64
	}{
		{"0", false, 0},
		{"8", false, 8},
		{"-3", false, -3},
		{"08", true, 0},
		{"-0", true, 0},
		{"1.5", true, 0},
		{"", true, 0},
		{"abc", true, 0},
		{"99999999999999999999", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k := phpengine.StrKey(tt.in)
			if k.IsString() != tt.isString {
				t.Fatalf("IsString: got %v, want %v", k.IsString(), tt.isString)
			}
			if !tt.isString && k.Int() != tt.want {
				t.Errorf("Int: got %d, want %d", k.Int(), tt.want)
			}
			if k.Str() != tt.in {
				t.Errorf("Str: got %q, want %q", k.Str(), tt.in)
			}
		})
	}
}

func TestArrayOrderAndNextIndex(t *testing.T) {
	a := phpengine.NewArray()
	a.Set(phpengine.StrKey("b"), int64(1))
	a.Append("x")
	a.Set(phpengine.IntKey(10), "y")
	a.Append("z")
	a.Set(phpengine.StrKey("b"), int64(2))

	if a.NextIndex() != 12 {
		t.Fatalf("NextIndex: got %d, want 12", a.NextIndex())
	}

	var keys []string
	a.Each(func(k phpengine.Key, _ phpengine.Zval) bool {
		keys = append(keys, k.Str())
		return true
	})
	if got := len(keys); got != 4 || keys[0] != "b" || keys[1] != "0" || keys[2] != "10" || keys[3] != "11" {
		t.Fatalf("keys: got %v", keys)
	}
	if v, _ := a.Get(phpengine.StrKey("b")); v != int64(2) {
		t.Errorf("overwrite should keep position and update value, got %v", v)
	}
}

func TestArrayDeleteAndIsList(t *testing.T) {
	a := phpengine.NewList("a", "b", "c")
	if !a.IsList() {
		t.Fatal("NewList should be a list")
	}

	if !a.Delete(phpengine.IntKey(1)) {
		t.Fatal("delete existing key should succeed")
	}
	if a.Delete(phpengine.IntKey(1)) {
		t.Fatal("second delete should fail")
	}
	if a.IsList() {
		t.Fatal("array with a hole is not a list")
	}
	if v, ok := a.Get(phpengine.IntKey(2)); !ok || v != "c" {
		t.Fatalf("Get after delete: got %v, %v", v, ok)
	}
	if k := a.Append("d"); k.Int() != 3 {
		t.Errorf("Append after delete: got key %d, want 3", k.Int())
	}

	c := a.Copy()
	c.Set(phpengine.IntKey(0), "changed")
	if v, _ := a.Get(phpengine.IntKey(0)); v != "a" {
		t.Error("Copy shares storage with the original")
	}
}

func TestEmptyArrayIsList(t *testing.T) {
	if !phpengine.NewArray().IsList() {
		t.Error("empty array should be a list")
	}
}
