package filterx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/OverOrion/axosyslog/logmsg"
)

var (
	// ErrFrozen is returned when modifying a frozen container.
	ErrFrozen = errors.New("object is frozen")

	// ErrTooDeep is returned when a container is too deeply
	// nested (or cyclic) to be converted.
	ErrTooDeep = errors.New("container nesting too deep")
)

// MaxDepth bounds conversion of nested containers.
const MaxDepth = 64

// container is implemented by Dict and List.
//
// A container stored inside another one keeps a weak reference to its
// parent so in-place modification can be propagated upwards.  The
// parent is kept alive by the registry until the root context goes
// away.
type container interface {
	Object
	setParent(c *EvalContext, p Object)
	markModified()
	IsModified() bool
	ClearModified()
	Len() int
}

type containerState struct {
	parent   WeakRef
	modified bool
}

func (s *containerState) setParent(c *EvalContext, p Object) {
	s.parent.Set(c, p)
}

func (s *containerState) markModified() {
	if s.modified {
		return
	}
	s.modified = true
	if p, is := s.parent.Get().(container); is {
		p.markModified()
	}
}

func (s *containerState) IsModified() bool {
	return s.modified
}

func adopt(c *EvalContext, parent Object, v Object) {
	if ch, is := v.(container); is && !IsFrozen(v) {
		ch.setParent(c, parent)
	}
}

// Dict is an ordered map of objects.
type Dict struct {
	Base
	containerState

	keys   []string
	values map[string]Object
}

func NewDict() *Dict {
	return &Dict{values: make(map[string]Object, 8)}
}

func (*Dict) Type() *Type { return TypeDict }

func (d *Dict) Len() int     { return len(d.keys) }
func (d *Dict) Truthy() bool { return len(d.keys) > 0 }

// Get returns a borrowed reference.
func (d *Dict) Get(key string) (Object, bool) {
	v, have := d.values[key]
	return v, have
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Set stores v (taking a reference) under key.
func (d *Dict) Set(c *EvalContext, key string, v Object) error {
	if IsFrozen(d) {
		return ErrFrozen
	}
	if v == nil {
		v = NewNull()
	}
	old, have := d.values[key]
	d.values[key] = Ref(v)
	if have {
		Unref(old)
	} else {
		d.keys = append(d.keys, key)
	}
	adopt(c, d, v)
	d.markModified()
	return nil
}

// Unset removes key.  Missing keys are fine.
func (d *Dict) Unset(key string) error {
	if IsFrozen(d) {
		return ErrFrozen
	}
	old, have := d.values[key]
	if !have {
		return nil
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	Unref(old)
	d.markModified()
	return nil
}

func (d *Dict) ClearModified() {
	if !d.modified {
		return
	}
	d.modified = false
	for _, v := range d.values {
		if ch, is := v.(container); is {
			ch.ClearModified()
		}
	}
}

func (d *Dict) Free() {
	for _, v := range d.values {
		Unref(v)
	}
	d.values = nil
	d.keys = nil
}

func (d *Dict) freezeChildren() {
	for _, v := range d.values {
		Freeze(v)
	}
}

// Repr falls back to a rendering that shows a cyclic member as {...}
// when the dict can't be marshalled.
func (d *Dict) Repr(buf *bytes.Buffer) bool {
	if _, ok := d.Marshal(buf); !ok {
		reprCyclic(buf, d, nil)
	}
	return true
}

func (d *Dict) Marshal(buf *bytes.Buffer) (logmsg.ValueType, bool) {
	x, err := toInterface(d, 0)
	if err != nil {
		return logmsg.TypeJSON, false
	}
	js, err := json.Marshal(x)
	if err != nil {
		return logmsg.TypeJSON, false
	}
	buf.Write(js)
	return logmsg.TypeJSON, true
}

// List is a sequence of objects.
type List struct {
	Base
	containerState

	elts []Object
}

func NewList() *List {
	return &List{}
}

func (*List) Type() *Type { return TypeList }

func (l *List) Len() int     { return len(l.elts) }
func (l *List) Truthy() bool { return len(l.elts) > 0 }

// Get returns a borrowed reference.  Negative indexes count from the
// end.
func (l *List) Get(i int) (Object, bool) {
	if i < 0 {
		i += len(l.elts)
	}
	if i < 0 || i >= len(l.elts) {
		return nil, false
	}
	return l.elts[i], true
}

// Append stores v (taking a reference) at the end.
func (l *List) Append(c *EvalContext, v Object) error {
	if IsFrozen(l) {
		return ErrFrozen
	}
	if v == nil {
		v = NewNull()
	}
	l.elts = append(l.elts, Ref(v))
	adopt(c, l, v)
	l.markModified()
	return nil
}

// Set replaces the element at i.
func (l *List) Set(c *EvalContext, i int, v Object) error {
	if IsFrozen(l) {
		return ErrFrozen
	}
	if i < 0 {
		i += len(l.elts)
	}
	if i < 0 || i >= len(l.elts) {
		return fmt.Errorf("list index %d out of range", i)
	}
	if v == nil {
		v = NewNull()
	}
	old := l.elts[i]
	l.elts[i] = Ref(v)
	Unref(old)
	adopt(c, l, v)
	l.markModified()
	return nil
}

func (l *List) ClearModified() {
	if !l.modified {
		return
	}
	l.modified = false
	for _, v := range l.elts {
		if ch, is := v.(container); is {
			ch.ClearModified()
		}
	}
}

func (l *List) Free() {
	for _, v := range l.elts {
		Unref(v)
	}
	l.elts = nil
}

func (l *List) freezeChildren() {
	for _, v := range l.elts {
		Freeze(v)
	}
}

func (l *List) Repr(buf *bytes.Buffer) bool {
	if _, ok := l.Marshal(buf); !ok {
		reprCyclic(buf, l, nil)
	}
	return true
}

// reprCyclic writes o like Marshal does, except that a container
// already being written (one of outer) comes out as {...} or [...].
func reprCyclic(buf *bytes.Buffer, o Object, outer []Object) {
	for _, p := range outer {
		if p != o {
			continue
		}
		if _, is := o.(*List); is {
			buf.WriteString("[...]")
		} else {
			buf.WriteString("{...}")
		}
		return
	}
	if len(outer) > MaxDepth {
		buf.WriteString("...")
		return
	}
	switch vv := o.(type) {
	case *Dict:
		outer = append(outer, o)
		buf.WriteByte('{')
		for i, k := range vv.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			js, _ := json.Marshal(k)
			buf.Write(js)
			buf.WriteByte(':')
			reprCyclic(buf, vv.values[k], outer)
		}
		buf.WriteByte('}')
	case *List:
		outer = append(outer, o)
		buf.WriteByte('[')
		for i, e := range vv.elts {
			if i > 0 {
				buf.WriteByte(',')
			}
			reprCyclic(buf, e, outer)
		}
		buf.WriteByte(']')
	default:
		x, err := toInterface(o, 0)
		if err == nil {
			var js []byte
			if js, err = json.Marshal(x); err == nil {
				buf.Write(js)
				return
			}
		}
		fmt.Fprintf(buf, "<%s>", o.Type().Name)
	}
}

func (l *List) Marshal(buf *bytes.Buffer) (logmsg.ValueType, bool) {
	x, err := toInterface(l, 0)
	if err != nil {
		return logmsg.TypeList, false
	}
	js, err := json.Marshal(x)
	if err != nil {
		return logmsg.TypeList, false
	}
	buf.Write(js)
	return logmsg.TypeList, true
}

// ToInterface converts an object to plain Go values.
func ToInterface(o Object) (interface{}, error) {
	return toInterface(o, 0)
}

func toInterface(o Object, depth int) (interface{}, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	switch vv := o.(type) {
	case nil, *Null:
		return nil, nil
	case *Boolean:
		return vv.Value, nil
	case *Integer:
		return vv.Value, nil
	case *Double:
		return vv.Value, nil
	case *String:
		return vv.Value, nil
	case *Bytes:
		return vv.Value, nil
	case *Datetime:
		return vv.Value, nil
	case *MessageValue:
		return logmsg.Value{Type: vv.ValueType, Raw: vv.Raw}.Interface(), nil
	case *Dict:
		acc := make(map[string]interface{}, len(vv.keys))
		for _, k := range vv.keys {
			x, err := toInterface(vv.values[k], depth+1)
			if err != nil {
				return nil, err
			}
			acc[k] = x
		}
		return acc, nil
	case *List:
		acc := make([]interface{}, 0, len(vv.elts))
		for _, e := range vv.elts {
			x, err := toInterface(e, depth+1)
			if err != nil {
				return nil, err
			}
			acc = append(acc, x)
		}
		return acc, nil
	}
	s, ok := Repr(o)
	if !ok {
		return nil, fmt.Errorf("can't convert %s", o.Type())
	}
	return s, nil
}

// FromInterface converts plain Go values (as produced by
// encoding/json or a script runtime) into a new object.
func FromInterface(x interface{}) (Object, error) {
	return fromInterface(x, 0)
}

func fromInterface(x interface{}, depth int) (Object, error) {
	if depth > MaxDepth {
		return nil, ErrTooDeep
	}
	switch vv := x.(type) {
	case nil:
		return NewNull(), nil
	case Object:
		return Ref(vv), nil
	case bool:
		return NewBoolean(vv), nil
	case int:
		return NewInteger(int64(vv)), nil
	case int32:
		return NewInteger(int64(vv)), nil
	case int64:
		return NewInteger(vv), nil
	case uint64:
		return NewInteger(int64(vv)), nil
	case float32:
		return NewDouble(float64(vv)), nil
	case float64:
		return NewDouble(vv), nil
	case json.Number:
		if n, err := vv.Int64(); err == nil {
			return NewInteger(n), nil
		}
		f, err := vv.Float64()
		if err != nil {
			return nil, err
		}
		return NewDouble(f), nil
	case string:
		return NewString(vv), nil
	case []byte:
		return NewBytes(vv), nil
	case time.Time:
		return NewDatetime(vv), nil
	case map[string]interface{}:
		d := NewDict()
		for k, v := range vv {
			o, err := fromInterface(v, depth+1)
			if err != nil {
				Unref(d)
				return nil, err
			}
			d.Set(nil, k, o)
			Unref(o)
		}
		d.ClearModified()
		return d, nil
	case []interface{}:
		l := NewList()
		for _, v := range vv {
			o, err := fromInterface(v, depth+1)
			if err != nil {
				Unref(l)
				return nil, err
			}
			l.Append(nil, o)
			Unref(o)
		}
		l.ClearModified()
		return l, nil
	}
	return nil, fmt.Errorf("can't convert a %T", x)
}

// FromValue converts a typed message value into a new object.
func FromValue(v logmsg.Value) (Object, error) {
	switch v.Type {
	case logmsg.TypeString:
		return NewString(v.Raw), nil
	case logmsg.TypeNull:
		return NewNull(), nil
	case logmsg.TypeBoolean:
		b, err := strconv.ParseBool(v.Raw)
		if err != nil {
			return nil, err
		}
		return NewBoolean(b), nil
	case logmsg.TypeInteger:
		n, err := strconv.ParseInt(v.Raw, 10, 64)
		if err != nil {
			return nil, err
		}
		return NewInteger(n), nil
	case logmsg.TypeDouble:
		f, err := strconv.ParseFloat(v.Raw, 64)
		if err != nil {
			return nil, err
		}
		return NewDouble(f), nil
	case logmsg.TypeBytes:
		return NewBytes([]byte(v.Raw)), nil
	case logmsg.TypeDatetime:
		t, err := time.Parse(time.RFC3339Nano, v.Raw)
		if err != nil {
			return nil, err
		}
		return NewDatetime(t), nil
	case logmsg.TypeJSON, logmsg.TypeList:
		return FromInterface(v.Interface())
	}
	return nil, fmt.Errorf("unknown value type %s", v.Type)
}
