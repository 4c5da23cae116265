package logmsg

import (
	"sort"
	"sync/atomic"
)

// NVTable is the reference-counted name-value payload of a
// LogMessage.
//
// A table with more than one reference is shared and must be cloned
// before it is written (see LogMessage.SetValue).
type NVTable struct {
	refs   atomic.Int32
	values map[string]Value
}

// NewNVTable returns a table holding a single reference.
func NewNVTable() *NVTable {
	t := &NVTable{
		values: make(map[string]Value, 16),
	}
	t.refs.Store(1)
	return t
}

func (t *NVTable) Ref() *NVTable {
	if t == nil {
		return nil
	}
	t.refs.Add(1)
	return t
}

func (t *NVTable) Unref() {
	if t == nil {
		return
	}
	switch n := t.refs.Add(-1); {
	case n == 0:
		t.values = nil
	case n < 0:
		panic("logmsg: NVTable refcount underflow")
	}
}

// Refs returns the current reference count.
func (t *NVTable) Refs() int32 {
	return t.refs.Load()
}

// Shared reports whether anybody else holds a reference.
func (t *NVTable) Shared() bool {
	return t.refs.Load() > 1
}

// Clone returns an unshared copy with one reference.
func (t *NVTable) Clone() *NVTable {
	c := NewNVTable()
	for k, v := range t.values {
		c.values[k] = v
	}
	return c
}

func (t *NVTable) Get(name string) (Value, bool) {
	v, have := t.values[name]
	return v, have
}

func (t *NVTable) set(name string, v Value) {
	t.values[name] = v
}

func (t *NVTable) unset(name string) {
	delete(t.values, name)
}

func (t *NVTable) Len() int {
	return len(t.values)
}

// Names returns the names in the table in sorted order.
func (t *NVTable) Names() []string {
	acc := make([]string, 0, len(t.values))
	for k := range t.values {
		acc = append(acc, k)
	}
	sort.Strings(acc)
	return acc
}
