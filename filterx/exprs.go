package filterx

import (
	"strings"

	"github.com/OverOrion/axosyslog/logmsg"
)

// Literal evaluates to a frozen object.
type Literal struct {
	ExprBase
	obj Object
}

func NewLiteral(o Object) *Literal {
	return &Literal{obj: Freeze(o)}
}

func (e *Literal) Eval(c *EvalContext) Object {
	return e.obj
}

// Variable reads a variable: "$NAME" for a message-tied one or a bare
// name for a floating one.
type Variable struct {
	ExprBase
	Name        string
	MessageTied bool
}

func NewMessageRef(name string) *Variable {
	return &Variable{Name: name, MessageTied: true}
}

func NewFloatingVariable(name string) *Variable {
	return &Variable{Name: name}
}

func (e *Variable) String() string {
	if e.MessageTied {
		return "$" + e.Name
	}
	return e.Name
}

func (e *Variable) Eval(c *EvalContext) Object {
	o := c.GetVariable(e.Name, e.MessageTied)
	if o == nil {
		c.PushErrorf("No such variable", e, "%s", e)
		return nil
	}
	return o
}

// Assign stores the value of an expression in a variable.  It
// evaluates to the stored value.
type Assign struct {
	ExprBase
	Target *Variable
	Value  Expr
}

func NewAssign(target *Variable, value Expr) *Assign {
	e := &Assign{Target: target, Value: value}
	e.OnFree(func() {
		target.Unref()
		value.Unref()
	})
	return e
}

func (e *Assign) Eval(c *EvalContext) Object {
	v := e.Value.Eval(c)
	if v == nil {
		return nil
	}
	if IsFrozen(v) && v.Type().Container {
		thawed := Thaw(c, v)
		Unref(v)
		v = thawed
	}
	c.SetVariable(e.Target.Name, e.Target.MessageTied, v)
	return v
}

// Unset removes a variable.  Always true.
type Unset struct {
	ExprBase
	Target *Variable
}

func NewUnset(target *Variable) *Unset {
	e := &Unset{Target: target}
	e.OnFree(target.Unref)
	return e
}

func (e *Unset) Eval(c *EvalContext) Object {
	c.UnsetVariable(e.Target.Name, e.Target.MessageTied)
	return NewBoolean(true)
}

// Isset tests whether a variable has a value.
type Isset struct {
	ExprBase
	Target *Variable
}

func NewIsset(target *Variable) *Isset {
	e := &Isset{Target: target}
	e.OnFree(target.Unref)
	return e
}

func (e *Isset) Eval(c *EvalContext) Object {
	return NewBoolean(c.IsVariableSet(e.Target.Name, e.Target.MessageTied))
}

// And short-circuits: the right side is evaluated only if the left
// one is truthy.
type And struct {
	ExprBase
	LHS, RHS Expr
}

func NewAnd(lhs, rhs Expr) *And {
	e := &And{LHS: lhs, RHS: rhs}
	e.OnFree(func() {
		lhs.Unref()
		rhs.Unref()
	})
	return e
}

func (e *And) Eval(c *EvalContext) Object {
	l := e.LHS.Eval(c)
	if l == nil {
		return nil
	}
	t := l.Truthy()
	Unref(l)
	if !t {
		return NewBoolean(false)
	}
	r := e.RHS.Eval(c)
	if r == nil {
		return nil
	}
	t = r.Truthy()
	Unref(r)
	return NewBoolean(t)
}

type Or struct {
	ExprBase
	LHS, RHS Expr
}

func NewOr(lhs, rhs Expr) *Or {
	e := &Or{LHS: lhs, RHS: rhs}
	e.OnFree(func() {
		lhs.Unref()
		rhs.Unref()
	})
	return e
}

func (e *Or) Eval(c *EvalContext) Object {
	l := e.LHS.Eval(c)
	if l == nil {
		return nil
	}
	t := l.Truthy()
	Unref(l)
	if t {
		return NewBoolean(true)
	}
	r := e.RHS.Eval(c)
	if r == nil {
		return nil
	}
	t = r.Truthy()
	Unref(r)
	return NewBoolean(t)
}

type Not struct {
	ExprBase
	Operand Expr
}

func NewNot(operand Expr) *Not {
	e := &Not{Operand: operand}
	e.OnFree(operand.Unref)
	return e
}

func (e *Not) Eval(c *EvalContext) Object {
	o := e.Operand.Eval(c)
	if o == nil {
		return nil
	}
	t := o.Truthy()
	Unref(o)
	return NewBoolean(!t)
}

// Compound evaluates statements in order.
//
// A falsy statement stops the block, which then evaluates to false.
// A control request (drop, done) stops the block too, which then
// evaluates to true.  An error stops the block and is passed on.
type Compound struct {
	ExprBase
	Stmts []Expr
}

func NewCompound(stmts ...Expr) *Compound {
	e := &Compound{Stmts: stmts}
	e.OnFree(func() {
		for _, s := range e.Stmts {
			s.Unref()
		}
	})
	return e
}

func (e *Compound) Add(stmt Expr) {
	e.Stmts = append(e.Stmts, stmt)
}

func (e *Compound) Eval(c *EvalContext) Object {
	for _, s := range e.Stmts {
		o := s.Eval(c)
		if o == nil {
			return nil
		}
		t := o.Truthy()
		Unref(o)
		if c.control != ControlNotSet {
			return NewBoolean(true)
		}
		if !t {
			return NewBoolean(false)
		}
	}
	return NewBoolean(true)
}

// DropExpr requests that the message be dropped.
type DropExpr struct {
	ExprBase
}

func NewDrop() *DropExpr {
	return &DropExpr{}
}

func (e *DropExpr) Eval(c *EvalContext) Object {
	c.SetControl(ControlDrop)
	return NewBoolean(true)
}

// DoneExpr ends the evaluation successfully.
type DoneExpr struct {
	ExprBase
}

func NewDone() *DoneExpr {
	return &DoneExpr{}
}

func (e *DoneExpr) Eval(c *EvalContext) Object {
	c.SetControl(ControlDone)
	return NewBoolean(true)
}

// DictLiteral builds a new dict.
type DictLiteral struct {
	ExprBase
	Keys   []string
	Values []Expr
}

func NewDictLiteral(keys []string, values []Expr) *DictLiteral {
	e := &DictLiteral{Keys: keys, Values: values}
	e.OnFree(func() {
		for _, v := range values {
			v.Unref()
		}
	})
	return e
}

func (e *DictLiteral) Eval(c *EvalContext) Object {
	d := NewDict()
	for i, k := range e.Keys {
		v := e.Values[i].Eval(c)
		if v == nil {
			Unref(d)
			return nil
		}
		d.Set(c, k, v)
		Unref(v)
	}
	return d
}

// ListLiteral builds a new list.
type ListLiteral struct {
	ExprBase
	Elts []Expr
}

func NewListLiteral(elts []Expr) *ListLiteral {
	e := &ListLiteral{Elts: elts}
	e.OnFree(func() {
		for _, v := range elts {
			v.Unref()
		}
	})
	return e
}

func (e *ListLiteral) Eval(c *EvalContext) Object {
	l := NewList()
	for _, x := range e.Elts {
		v := x.Eval(c)
		if v == nil {
			Unref(l)
			return nil
		}
		l.Append(c, v)
		Unref(v)
	}
	return l
}

// containerOf evaluates obj and returns it as a dict or list.  A JSON
// message value read through a variable is converted and assigned
// back so in-place changes stick.
func containerOf(c *EvalContext, obj Expr) (Object, bool) {
	o := obj.Eval(c)
	if o == nil {
		return nil, false
	}
	if mv, is := o.(*MessageValue); is {
		converted, err := mv.Unmarshal()
		Unref(o)
		if err != nil {
			c.PushErrorf("Failed to unmarshal value", obj, "%s", err)
			return nil, false
		}
		o = converted
		if v, is := obj.(*Variable); is && o.Type().Container {
			c.SetVariable(v.Name, v.MessageTied, o)
		}
	}
	return o, true
}

// GetAttr reads obj.key from a dict.
type GetAttr struct {
	ExprBase
	Obj Expr
	Key string
}

func NewGetAttr(obj Expr, key string) *GetAttr {
	e := &GetAttr{Obj: obj, Key: key}
	e.OnFree(obj.Unref)
	return e
}

func (e *GetAttr) Eval(c *EvalContext) Object {
	o, ok := containerOf(c, e.Obj)
	if !ok {
		return nil
	}
	defer Unref(o)
	d, is := o.(*Dict)
	if !is {
		c.PushError("Attribute lookup on a non-dict", e, o)
		return nil
	}
	v, have := d.Get(e.Key)
	if !have {
		c.PushErrorf("No such attribute", e, "%s", e.Key)
		return nil
	}
	return Ref(v)
}

// SetAttr assigns obj.key in place.
type SetAttr struct {
	ExprBase
	Obj   Expr
	Key   string
	Value Expr
}

func NewSetAttr(obj Expr, key string, value Expr) *SetAttr {
	e := &SetAttr{Obj: obj, Key: key, Value: value}
	e.OnFree(func() {
		obj.Unref()
		value.Unref()
	})
	return e
}

func (e *SetAttr) Eval(c *EvalContext) Object {
	o, ok := containerOf(c, e.Obj)
	if !ok {
		return nil
	}
	defer Unref(o)
	d, is := o.(*Dict)
	if !is {
		c.PushError("Attribute assignment on a non-dict", e, o)
		return nil
	}
	v := e.Value.Eval(c)
	if v == nil {
		return nil
	}
	if err := d.Set(c, e.Key, v); err != nil {
		Unref(v)
		c.PushErrorf("Attribute assignment failed", e, "%s", err)
		return nil
	}
	c.MarkDirty()
	return v
}

// Template renders text with $NAME and ${NAME} references substituted.
type Template struct {
	ExprBase
	parts []templatePart
}

type templatePart struct {
	text string
	ref  string
}

// NewTemplate parses a template.  "$$" is a literal dollar.
func NewTemplate(src string) *Template {
	t := &Template{}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.parts = append(t.parts, templatePart{text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(src); i++ {
		ch := src[i]
		if ch != '$' || i+1 >= len(src) {
			lit.WriteByte(ch)
			continue
		}
		switch next := src[i+1]; {
		case next == '$':
			lit.WriteByte('$')
			i++
		case next == '{':
			end := strings.IndexByte(src[i+2:], '}')
			if end < 0 {
				lit.WriteString(src[i:])
				i = len(src)
				continue
			}
			flush()
			t.parts = append(t.parts, templatePart{ref: src[i+2 : i+2+end]})
			i += 2 + end
		case isNameByte(next):
			j := i + 1
			for j < len(src) && isNameByte(src[j]) {
				j++
			}
			flush()
			t.parts = append(t.parts, templatePart{ref: src[i+1 : j]})
			i = j - 1
		default:
			lit.WriteByte(ch)
		}
	}
	flush()
	return t
}

func isNameByte(b byte) bool {
	return b == '_' || b == '.' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func (e *Template) Eval(c *EvalContext) Object {
	var sb strings.Builder
	buf := c.scratch()
	for _, p := range e.parts {
		if p.ref == "" {
			sb.WriteString(p.text)
			continue
		}
		o := c.GetVariable(p.ref, true)
		if o == nil {
			continue
		}
		buf.Reset()
		if dt, is := o.(*Datetime); is && c.templateOptions.TimeZone != nil {
			buf.WriteString(dt.Value.In(c.templateOptions.TimeZone).Format("2006-01-02T15:04:05.999999999Z07:00"))
		} else {
			o.Repr(buf)
		}
		Unref(o)
		s := buf.String()
		if c.templateOptions.Escape {
			s = strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
		}
		sb.WriteString(s)
	}
	return NewString(sb.String())
}

// Format renders the template from msg's stored values, outside of
// any evaluation.
func (e *Template) Format(msg *logmsg.LogMessage) string {
	var sb strings.Builder
	for _, p := range e.parts {
		if p.ref == "" {
			sb.WriteString(p.text)
			continue
		}
		if raw, _, have := msg.GetValue(p.ref); have {
			sb.WriteString(raw)
		}
	}
	return sb.String()
}
