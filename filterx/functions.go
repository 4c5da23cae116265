package filterx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/OverOrion/axosyslog/logmsg"
)

// Function is a builtin callable from expressions.  Arguments are
// borrowed.  It returns a new reference, or nil after pushing an
// error.
type Function func(c *EvalContext, call *Call, args []Object) Object

type functionSpec struct {
	fn      Function
	minArgs int
	maxArgs int
}

var (
	functionsMu sync.RWMutex
	functions   = map[string]functionSpec{}
)

// RegisterFunction makes fn callable by name.  maxArgs < 0 means any
// number.
func RegisterFunction(name string, minArgs, maxArgs int, fn Function) {
	functionsMu.Lock()
	functions[name] = functionSpec{fn: fn, minArgs: minArgs, maxArgs: maxArgs}
	functionsMu.Unlock()
}

// UnknownFunction occurs when compiling a call to a function nobody
// registered.
type UnknownFunction struct {
	Name string
}

func (e *UnknownFunction) Error() string {
	return `unknown function "` + e.Name + `"`
}

// BadArity occurs when a call has the wrong number of arguments.
type BadArity struct {
	Name string
	Got  int
}

func (e *BadArity) Error() string {
	return fmt.Sprintf("wrong number of arguments (%d) to %s()", e.Got, e.Name)
}

// Call invokes a builtin function.
type Call struct {
	ExprBase
	Name string
	Args []Expr
	fn   Function
}

func NewCall(name string, args []Expr) (*Call, error) {
	functionsMu.RLock()
	spec, have := functions[name]
	functionsMu.RUnlock()
	if !have {
		return nil, &UnknownFunction{Name: name}
	}
	if len(args) < spec.minArgs || (spec.maxArgs >= 0 && len(args) > spec.maxArgs) {
		return nil, &BadArity{Name: name, Got: len(args)}
	}
	e := &Call{Name: name, Args: args, fn: spec.fn}
	e.OnFree(func() {
		for _, a := range args {
			a.Unref()
		}
	})
	return e, nil
}

func (e *Call) Eval(c *EvalContext) Object {
	args := make([]Object, 0, len(e.Args))
	defer func() {
		for _, a := range args {
			Unref(a)
		}
	}()
	for _, a := range e.Args {
		o := a.Eval(c)
		if o == nil {
			return nil
		}
		args = append(args, o)
	}
	return e.fn(c, e, args)
}

func text(o Object) (string, bool) {
	switch vv := o.(type) {
	case *String:
		return vv.Value, true
	case *MessageValue:
		return vv.Raw, true
	}
	var buf bytes.Buffer
	if o.Repr(&buf) {
		return buf.String(), true
	}
	return "", false
}

func textArgs(c *EvalContext, call *Call, args []Object) ([]string, bool) {
	acc := make([]string, len(args))
	for i, a := range args {
		s, ok := text(a)
		if !ok {
			c.PushError("Argument has no text form", call, a)
			return nil, false
		}
		acc[i] = s
	}
	return acc, true
}

func fnLen(c *EvalContext, call *Call, args []Object) Object {
	switch vv := args[0].(type) {
	case *Dict:
		return NewInteger(int64(vv.Len()))
	case *List:
		return NewInteger(int64(vv.Len()))
	case *Bytes:
		return NewInteger(int64(len(vv.Value)))
	case *MessageValue:
		if vv.ValueType == logmsg.TypeJSON || vv.ValueType == logmsg.TypeList {
			o, err := vv.Unmarshal()
			if err != nil {
				c.PushErrorf("len() of a broken value", call, "%s", err)
				return nil
			}
			defer Unref(o)
			return fnLen(c, call, []Object{o})
		}
	}
	s, ok := text(args[0])
	if !ok {
		c.PushError("len() of a value without length", call, args[0])
		return nil
	}
	return NewInteger(int64(len(s)))
}

func fnString(c *EvalContext, call *Call, args []Object) Object {
	s, ok := textArgs(c, call, args)
	if !ok {
		return nil
	}
	return NewString(s[0])
}

func fnInt(c *EvalContext, call *Call, args []Object) Object {
	switch vv := args[0].(type) {
	case *Integer:
		return Ref(vv)
	case *Double:
		return NewInteger(int64(vv.Value))
	case *Boolean:
		if vv.Value {
			return NewInteger(1)
		}
		return NewInteger(0)
	}
	s, ok := text(args[0])
	if !ok {
		c.PushError("int() of a value without text form", call, args[0])
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if ferr != nil {
			c.PushErrorf("int() conversion failed", call, "%s", err)
			return nil
		}
		n = int64(f)
	}
	return NewInteger(n)
}

func fnDouble(c *EvalContext, call *Call, args []Object) Object {
	if f, ok := asNumber(args[0]); ok {
		return NewDouble(f)
	}
	s, ok := text(args[0])
	if !ok {
		c.PushError("double() of a value without text form", call, args[0])
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		c.PushErrorf("double() conversion failed", call, "%s", err)
		return nil
	}
	return NewDouble(f)
}

func fnLower(c *EvalContext, call *Call, args []Object) Object {
	s, ok := textArgs(c, call, args)
	if !ok {
		return nil
	}
	return NewString(strings.ToLower(s[0]))
}

func fnUpper(c *EvalContext, call *Call, args []Object) Object {
	s, ok := textArgs(c, call, args)
	if !ok {
		return nil
	}
	return NewString(strings.ToUpper(s[0]))
}

func stringPredicate(f func(s, t string) bool) Function {
	return func(c *EvalContext, call *Call, args []Object) Object {
		s, ok := textArgs(c, call, args)
		if !ok {
			return nil
		}
		return NewBoolean(f(s[0], s[1]))
	}
}

func fnJSON(c *EvalContext, call *Call, args []Object) Object {
	s, ok := textArgs(c, call, args)
	if !ok {
		return nil
	}
	d := json.NewDecoder(strings.NewReader(s[0]))
	d.UseNumber()
	var x interface{}
	if err := d.Decode(&x); err != nil {
		c.PushErrorf("json() parse failed", call, "%s", err)
		return nil
	}
	o, err := FromInterface(x)
	if err != nil {
		c.PushErrorf("json() conversion failed", call, "%s", err)
		return nil
	}
	return o
}

func fnFormatJSON(c *EvalContext, call *Call, args []Object) Object {
	x, err := ToInterface(args[0])
	if err != nil {
		c.PushErrorf("format_json() failed", call, "%s", err)
		return nil
	}
	js, err := json.Marshal(x)
	if err != nil {
		c.PushErrorf("format_json() failed", call, "%s", err)
		return nil
	}
	return NewString(string(js))
}

func fnNow(c *EvalContext, call *Call, args []Object) Object {
	return NewDatetime(time.Now().UTC())
}

func fnIsType(t *Type) Function {
	return func(c *EvalContext, call *Call, args []Object) Object {
		return NewBoolean(args[0].Type().IsA(t))
	}
}

func init() {
	RegisterFunction("len", 1, 1, fnLen)
	RegisterFunction("string", 1, 1, fnString)
	RegisterFunction("int", 1, 1, fnInt)
	RegisterFunction("double", 1, 1, fnDouble)
	RegisterFunction("lower", 1, 1, fnLower)
	RegisterFunction("upper", 1, 1, fnUpper)
	RegisterFunction("startswith", 2, 2, stringPredicate(strings.HasPrefix))
	RegisterFunction("endswith", 2, 2, stringPredicate(strings.HasSuffix))
	RegisterFunction("includes", 2, 2, stringPredicate(strings.Contains))
	RegisterFunction("json", 1, 1, fnJSON)
	RegisterFunction("format_json", 1, 1, fnFormatJSON)
	RegisterFunction("now", 0, 0, fnNow)
	RegisterFunction("is_dict", 1, 1, fnIsType(TypeDict))
	RegisterFunction("is_list", 1, 1, fnIsType(TypeList))
	RegisterFunction("is_string", 1, 1, fnIsType(TypeString))
}
