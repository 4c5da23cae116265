package filterx

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/OverOrion/axosyslog/logmsg"
)

type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var compareOpNames = map[string]CompareOp{
	"==": OpEq, "!=": OpNe, "<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe,
}

// ParseCompareOp maps an operator token to a CompareOp.
func ParseCompareOp(s string) (CompareOp, error) {
	op, have := compareOpNames[s]
	if !have {
		return 0, fmt.Errorf("unknown comparison operator %q", s)
	}
	return op, nil
}

// Compare compares two values.  Numbers compare numerically, null
// only equals null, and everything else compares by its text form.
type Compare struct {
	ExprBase
	Op       CompareOp
	LHS, RHS Expr
}

func NewCompare(op CompareOp, lhs, rhs Expr) *Compare {
	e := &Compare{Op: op, LHS: lhs, RHS: rhs}
	e.OnFree(func() {
		lhs.Unref()
		rhs.Unref()
	})
	return e
}

func (e *Compare) Eval(c *EvalContext) Object {
	l := e.LHS.Eval(c)
	if l == nil {
		return nil
	}
	defer Unref(l)
	r := e.RHS.Eval(c)
	if r == nil {
		return nil
	}
	defer Unref(r)

	if isNull(l) || isNull(r) {
		switch e.Op {
		case OpEq:
			return NewBoolean(isNull(l) && isNull(r))
		case OpNe:
			return NewBoolean(isNull(l) != isNull(r))
		}
		return NewBoolean(false)
	}

	var cmp int
	if lf, ok := asNumber(l); ok {
		if rf, ok := asNumber(r); ok {
			switch {
			case lf < rf:
				cmp = -1
			case lf > rf:
				cmp = 1
			}
			return NewBoolean(e.Op.holds(cmp))
		}
	}

	var lb, rb bytes.Buffer
	if !l.Repr(&lb) || !r.Repr(&rb) {
		c.PushError("Comparison of values without a text form", e, nil)
		return nil
	}
	cmp = bytes.Compare(lb.Bytes(), rb.Bytes())
	return NewBoolean(e.Op.holds(cmp))
}

func (op CompareOp) holds(cmp int) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

func isNull(o Object) bool {
	switch vv := o.(type) {
	case *Null:
		return true
	case *MessageValue:
		return vv.ValueType == logmsg.TypeNull
	}
	return false
}

func asNumber(o Object) (float64, bool) {
	switch vv := o.(type) {
	case *Integer:
		return float64(vv.Value), true
	case *Double:
		return vv.Value, true
	case *MessageValue:
		switch vv.ValueType {
		case logmsg.TypeInteger, logmsg.TypeDouble:
			f, err := strconv.ParseFloat(vv.Raw, 64)
			return f, err == nil
		}
	}
	return 0, false
}
