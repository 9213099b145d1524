package phpengine

import (
	"strconv"
)

// Key is an array key: an integer or a string.
type Key struct {
	str bool
	i   int64
	s   string
}

// IntKey returns an integer key.
func IntKey(i int64) Key { return Key{i: i} }

// StrKey returns a string key. Decimal integer strings such as "8" are
// stored as integer keys, the way PHP normalises them.
func StrKey(s string) Key {
	if i, ok := numericKey(s); ok {
		return Key{i: i}
	}
	return Key{str: true, s: s}
}

// IsString reports whether k is a string key.
func (k Key) IsString() bool { return k.str }

// Int returns the integer key. It is 0 for string keys.
func (k Key) Int() int64 { return k.i }

// Str returns the key as PHP would print it.
func (k Key) Str() string {
	if k.str {
		return k.s
	}
	return strconv.FormatInt(k.i, 10)
}

// Zval returns the key as a value.
func (k Key) Zval() Zval {
	if k.str {
		return k.s
	}
	return k.i
}

func numericKey(s string) (int64, bool) {
	if s == "0" {
		return 0, true
	}
	digits := s
	if len(digits) > 0 && digits[0] == '-' {
		digits = digits[1:]
	}
	if len(digits) == 0 || digits[0] < '1' || digits[0] > '9' {
		return 0, false
	}
	for i := 1; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

type entry struct {
	key Key
	val Zval
}

// Array is an ordered hash table with integer and string keys.
type Array struct {
	entries []entry
	index   map[Key]int
	next    int64
}

// NewArray returns an empty array.
func NewArray() *Array {
	return &Array{index: make(map[Key]int)}
}

// NewList returns an array holding vs under keys 0..len(vs)-1.
func NewList(vs ...Zval) *Array {
	a := &Array{
		entries: make([]entry, 0, len(vs)),
		index:   make(map[Key]int, len(vs)),
	}
	for _, v := range vs {
		a.Append(v)
	}
	return a
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.entries) }

// NextIndex returns the key Append would use.
func (a *Array) NextIndex() int64 { return a.next }

// Get returns the value stored under k.
func (a *Array) Get(k Key) (Zval, bool) {
	i, ok := a.index[k]
	if !ok {
		return nil, false
	}
	return a.entries[i].val, true
}

// Set stores v under k. An existing key keeps its position.
func (a *Array) Set(k Key, v Zval) {
	if i, ok := a.index[k]; ok {
		a.entries[i].val = v
		return
	}
	if a.index == nil {
		a.index = make(map[Key]int)
	}
	a.index[k] = len(a.entries)
	a.entries = append(a.entries, entry{key: k, val: v})
	if !k.str && k.i >= a.next {
		a.next = k.i + 1
	}
}

// Append stores v under NextIndex and returns the key used.
func (a *Array) Append(v Zval) Key {
	k := IntKey(a.next)
	a.Set(k, v)
	return k
}

// Delete removes k. It reports whether the key was present.
func (a *Array) Delete(k Key) bool {
	i, ok := a.index[k]
	if !ok {
		return false
	}
	delete(a.index, k)
	copy(a.entries[i:], a.entries[i+1:])
	a.entries = a.entries[:len(a.entries)-1]
	for j := i; j < len(a.entries); j++ {
		a.index[a.entries[j].key] = j
	}
	return true
}

// Each calls fn for every element in order until fn returns false.
func (a *Array) Each(fn func(k Key, v Zval) bool) {
	for _, e := range a.entries {
		if !fn(e.key, e.val) {
			return
		}
	}
}

// Values returns the elements in order.
func (a *Array) Values() []Zval {
	out := make([]Zval, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.val
	}
	return out
}

// IsList reports whether the keys are exactly 0, 1, 2, ... in order.
func (a *Array) IsList() bool {
	for i, e := range a.entries {
		if e.key.str || e.key.i != int64(i) {
			return false
		}
	}
	return true
}

// Copy returns a shallow copy, matching PHP's by-value array assignment
// for one level.
func (a *Array) Copy() *Array {
	c := &Array{
		entries: append([]entry(nil), a.entries...),
		index:   make(map[Key]int, len(a.entries)),
		next:    a.next,
	}
	for k, i := range a.index {
		c.index[k] = i
	}
	return c
}
