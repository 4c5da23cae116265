package filterx

import (
	"bytes"
	"sync/atomic"

	"github.com/OverOrion/axosyslog/logmsg"
)

// Type describes a class of objects.
type Type struct {
	Name   string
	Parent *Type

	// Container types hold other objects and can be modified in
	// place.
	Container bool
}

// IsA reports whether t is u or derived from u.
func (t *Type) IsA(u *Type) bool {
	for ; t != nil; t = t.Parent {
		if t == u {
			return true
		}
	}
	return false
}

func (t *Type) String() string {
	return t.Name
}

var (
	TypeObject       = &Type{Name: "object"}
	TypeNull         = &Type{Name: "null", Parent: TypeObject}
	TypeBoolean      = &Type{Name: "boolean", Parent: TypeObject}
	TypeInteger      = &Type{Name: "integer", Parent: TypeObject}
	TypeDouble       = &Type{Name: "double", Parent: TypeObject}
	TypeString       = &Type{Name: "string", Parent: TypeObject}
	TypeBytes        = &Type{Name: "bytes", Parent: TypeObject}
	TypeDatetime     = &Type{Name: "datetime", Parent: TypeObject}
	TypeMessageValue = &Type{Name: "message_value", Parent: TypeObject}
	TypeDict         = &Type{Name: "dict", Parent: TypeObject, Container: true}
	TypeList         = &Type{Name: "list", Parent: TypeObject, Container: true}
)

// Object is a value produced by evaluating an expression.
//
// Objects are reference counted with Ref and Unref.  Types that want
// counting embed Base; anything else is treated like a frozen object.
type Object interface {
	Type() *Type

	// Truthy decides success of a rule that returns the object.
	Truthy() bool

	// Repr appends a human-readable form to buf.  It returns false
	// if the object has none.
	Repr(buf *bytes.Buffer) bool

	// Marshal appends the serialized form to buf and returns the
	// type to store it as in a message.
	Marshal(buf *bytes.Buffer) (logmsg.ValueType, bool)
}

// Freer is implemented by objects that release something (usually
// their children) when the last reference goes away.
type Freer interface {
	Free()
}

// Base carries the bookkeeping every counted object needs.  The zero
// Base holds one reference.
type Base struct {
	extra          atomic.Int32
	frozen         atomic.Bool
	weakReferenced atomic.Bool
}

func (b *Base) base() *Base {
	return b
}

type counted interface {
	base() *Base
}

func baseOf(o Object) *Base {
	if o == nil {
		return nil
	}
	if c, is := o.(counted); is {
		return c.base()
	}
	return nil
}

// Ref takes a reference to o and returns it.  Nil and frozen objects
// are returned as is.
func Ref(o Object) Object {
	b := baseOf(o)
	if b == nil || b.frozen.Load() {
		return o
	}
	b.extra.Add(1)
	return o
}

// Unref releases a reference.  The last one calls Free if o
// implements Freer.
func Unref(o Object) {
	b := baseOf(o)
	if b == nil || b.frozen.Load() {
		return
	}
	switch n := b.extra.Add(-1); {
	case n == -1:
		if f, is := o.(Freer); is {
			f.Free()
		}
	case n < -1:
		panic("filterx: object refcount underflow (" + o.Type().Name + ")")
	}
}

// Freeze makes o immortal and immutable.  Literals are frozen at
// compile time so they can be shared between threads.
func Freeze(o Object) Object {
	if b := baseOf(o); b != nil {
		b.frozen.Store(true)
		if f, is := o.(interface{ freezeChildren() }); is {
			f.freezeChildren()
		}
	}
	return o
}

// IsFrozen reports whether o is frozen.  Objects without a Base count
// as frozen.
func IsFrozen(o Object) bool {
	b := baseOf(o)
	return b == nil || b.frozen.Load()
}

// RefCount returns the number of references held on o, or -1 for
// uncounted and frozen objects.
func RefCount(o Object) int {
	b := baseOf(o)
	if b == nil || b.frozen.Load() {
		return -1
	}
	return int(b.extra.Load()) + 1
}

// IsWeakReferenced reports whether o has been registered with a weak
// reference registry.
func IsWeakReferenced(o Object) bool {
	b := baseOf(o)
	return b != nil && b.weakReferenced.Load()
}

// Repr renders o into a string, falling back to its marshalled form.
func Repr(o Object) (string, bool) {
	var buf bytes.Buffer
	if o.Repr(&buf) {
		return buf.String(), true
	}
	buf.Reset()
	if _, ok := o.Marshal(&buf); ok {
		return buf.String(), true
	}
	return "", false
}
