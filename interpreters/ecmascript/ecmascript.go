/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package ecmascript compiles ECMAScript rule bodies into FilterX
// expressions.
package ecmascript

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/util"

	"github.com/dop251/goja"
	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is reported if the execution is interrupted.
	Interrupted = errors.New(InterruptedMessage)

	// DefaultTimeout bounds a single evaluation.
	DefaultTimeout = time.Second
)

// Interpreter compiles rules with Goja, which is a Go implementation
// of ECMAScript 5.1+.
//
// See https://github.com/dop251/goja.
type Interpreter struct {

	// Test exposes sleep() for testing.
	Test bool

	// Extended adds cronNext(), esc() and gensym().
	Extended bool

	// Timeout bounds each evaluation.  Zero means DefaultTimeout.
	Timeout time.Duration
}

// NewInterpreter makes a new Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

func AsSource(src interface{}) (code string, err error) {
	switch vv := src.(type) {
	case string:
		code = vv
		return
	default:
		err = fmt.Errorf("bad ECMAScript source (%T)", src)
		return
	}
}

// Compile compiles the rule body, which runs as the body of a
// function.  The function's return value is the value of the
// expression.
func (i *Interpreter) Compile(ctx context.Context, src interface{}) (filterx.Expr, error) {
	code, err := AsSource(src)
	if err != nil {
		return nil, err
	}
	e, err := i.CompileCode("", code, "")
	if err != nil {
		return nil, err
	}
	return e, nil
}

// CompileCode compiles code, prepending prelude (for example library
// sources) outside the wrapping function.
func (i *Interpreter) CompileCode(name, code, prelude string) (*Expr, error) {
	wrapped := prelude + wrapSrc(code)

	p, err := goja.Compile(name, wrapped, true)
	if err != nil {
		return nil, errors.New(err.Error() + ": " + wrapped)
	}

	e := &Expr{i: i, prog: p}
	e.SetLocation(filterx.Location{File: name, Text: firstLine(code)})
	return e, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if n := strings.IndexByte(s, '\n'); n >= 0 {
		return s[:n]
	}
	return s
}

func (i *Interpreter) timeout() time.Duration {
	if i.Timeout > 0 {
		return i.Timeout
	}
	return DefaultTimeout
}

// Expr is a compiled ECMAScript rule.  The program is shared; each
// evaluation gets its own runtime.
type Expr struct {
	filterx.ExprBase
	i    *Interpreter
	prog *goja.Program
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

// variableName maps "$NAME" to a message-tied variable and anything
// else to a floating one.
func variableName(name string) (string, bool) {
	if strings.HasPrefix(name, "$") {
		return name[1:], true
	}
	return name, false
}

// Eval runs the program.
//
// The following properties are available from the runtime at _:
//
//	get(name): the value of a variable ("$NAME" for a message
//	  value, a bare name for a floating variable).
//	set(name, x): assign a variable.
//	unset(name): unset a variable.
//	vars: the variables set so far in this evaluation.
//	drop(): drop the message.
//	done(): stop and accept the message.
//	error(msg): fail the evaluation with the given message.
//	log(x): log x at debug level.
//
// Extended properties (enabled by the interpreter's Extended property):
//
//	gensym(): generate a random string.
//	cronNext(s): Return a string representing (RFC3999Nano) the
//	  next time for the given crontab expression.
//	esc(s): URL query-escape the given string.
//
// Testing properties (enabled by the interpreter's Test property):
//
//	sleep(ms): sleep for the given number of milliseconds.
func (e *Expr) Eval(c *filterx.EvalContext) filterx.Object {
	o := goja.New()

	var failure string
	env := map[string]interface{}{}
	o.Set("_", env)

	vars := map[string]interface{}{}
	c.Scope().Foreach(func(name string, tied bool, v filterx.Object) bool {
		if x, err := filterx.ToInterface(v); err == nil {
			if tied {
				name = "$" + name
			}
			vars[name] = x
		}
		return true
	})
	env["vars"] = vars

	env["get"] = func(name string) interface{} {
		n, tied := variableName(name)
		v := c.GetVariable(n, tied)
		if v == nil {
			return nil
		}
		defer filterx.Unref(v)
		x, err := filterx.ToInterface(v)
		if err != nil {
			protest(o, err.Error())
		}
		return x
	}

	env["set"] = func(name string, x goja.Value) interface{} {
		n, tied := variableName(name)
		var exported interface{}
		if x != nil {
			exported = x.Export()
		}
		v, err := filterx.FromInterface(exported)
		if err != nil {
			protest(o, err.Error())
		}
		c.SetVariable(n, tied, v)
		filterx.Unref(v)
		vars[name] = exported
		return x
	}

	env["unset"] = func(name string) bool {
		n, tied := variableName(name)
		c.UnsetVariable(n, tied)
		delete(vars, name)
		return true
	}

	env["drop"] = func() bool {
		c.SetControl(filterx.ControlDrop)
		return true
	}

	env["done"] = func() bool {
		c.SetControl(filterx.ControlDone)
		return true
	}

	env["error"] = func(msg string) interface{} {
		failure = msg
		panic(o.NewGoError(errors.New(msg)))
	}

	env["log"] = func(x goja.Value) interface{} {
		util.Debug("ecmascript log", zap.Any("value", x.Export()), filterx.FormatLocation(e))
		return x
	}

	if e.i.Extended {
		env["gensym"] = func() interface{} {
			return util.Gensym(32)
		}

		// cronNext parses the given string as a crontab expression
		// using github.com/gorhill/cronexpr.  Returns the next time
		// as a string formatted in time.RFC3339Nano (UTC).
		env["cronNext"] = func(x interface{}) interface{} {
			switch vv := x.(type) {
			case goja.Value:
				x = vv.Export()
			}
			cronExpr, is := x.(string)
			if !is {
				protest(o, "not a string")
			}

			ce, err := cronexpr.Parse(cronExpr)
			if err != nil {
				protest(o, err.Error())
			}
			return ce.Next(time.Now()).UTC().Format(time.RFC3339Nano)
		}

		env["esc"] = func(x interface{}) interface{} {
			switch vv := x.(type) {
			case goja.Value:
				x = vv.Export()
			}
			s, is := x.(string)
			if !is {
				protest(o, "not a string")
			}
			return url.QueryEscape(s)
		}
	}

	if e.i.Test {
		env["sleep"] = func(ms int64) interface{} {
			time.Sleep(time.Duration(ms) * time.Millisecond)
			return nil
		}
	}

	ictx, cancel := context.WithTimeout(context.Background(), e.i.timeout())
	go func() {
		<-ictx.Done()
		// After a normal return the cancel() below gets here
		// first, and interrupting a finished runtime is harmless.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := RunProgram(o, e.prog)
	cancel()

	if err != nil {
		switch {
		case failure != "":
			c.PushErrorf(failure, e, "raised by script")
		case isInterrupted(err):
			c.PushErrorf("ECMAScript evaluation interrupted", e, "%s", Interrupted)
		default:
			c.PushErrorf("ECMAScript evaluation failed", e, "%s", err)
		}
		return nil
	}

	var x interface{}
	if v != nil {
		x = v.Export()
	}
	res, err := filterx.FromInterface(x)
	if err != nil {
		c.PushErrorf("ECMAScript result conversion failed", e, "%s", err)
		return nil
	}
	return res
}

func isInterrupted(err error) bool {
	var ie *goja.InterruptedError
	return errors.As(err, &ie)
}

func RunProgram(o *goja.Runtime, p *goja.Program) (v goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s", r)
		}
	}()
	return o.RunProgram(p)
}
