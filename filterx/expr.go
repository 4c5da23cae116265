package filterx

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Location is where an expression came from.
type Location struct {
	File   string
	Line   int
	Column int

	// Text is the source of the expression, if known.
	Text string
}

func (l Location) IsZero() bool {
	return l == Location{}
}

func (l Location) String() string {
	if l.IsZero() {
		return "n/a"
	}
	s := fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	if l.Text != "" {
		s += "| " + l.Text
	}
	return s
}

// Expr is a compiled expression.
//
// Eval returns a new reference to its result, or nil after pushing an
// error onto the context.  Expressions are shared between pipeline
// clones, hence the reference counting.
type Expr interface {
	Eval(c *EvalContext) Object
	Ref()
	Unref()
	Location() Location
}

// ExprBase implements the bookkeeping part of Expr.  The zero
// ExprBase holds one reference.
type ExprBase struct {
	extra atomic.Int32
	loc   Location
	free  func()
}

func (b *ExprBase) Ref() {
	b.extra.Add(1)
}

func (b *ExprBase) Unref() {
	switch n := b.extra.Add(-1); {
	case n == -1:
		if b.free != nil {
			b.free()
		}
	case n < -1:
		panic("filterx: expression refcount underflow")
	}
}

// Refs returns the number of references.
func (b *ExprBase) Refs() int {
	return int(b.extra.Load()) + 1
}

func (b *ExprBase) Location() Location {
	return b.loc
}

func (b *ExprBase) SetLocation(l Location) {
	b.loc = l
}

// OnFree sets what happens when the last reference goes away.
// Composite expressions release their operands there.
func (b *ExprBase) OnFree(f func()) {
	b.free = f
}

// FormatLocation renders an expression's location as a log field.
func FormatLocation(e Expr) zap.Field {
	if e == nil {
		return zap.String("expr", "n/a")
	}
	return zap.String("expr", e.Location().String())
}

// WithLocation sets e's location and returns it.
func WithLocation[E interface {
	Expr
	SetLocation(Location)
}](e E, l Location) E {
	e.SetLocation(l)
	return e
}
