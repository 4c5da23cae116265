// Package interpreters compiles rule sources into FilterX
// expressions.
package interpreters

import (
	"context"
	"fmt"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/interpreters/cel"
	"github.com/OverOrion/axosyslog/interpreters/ecmascript"
	"github.com/OverOrion/axosyslog/interpreters/goja"
	"github.com/OverOrion/axosyslog/interpreters/native"
	"github.com/OverOrion/axosyslog/interpreters/noop"
)

// Interpreter compiles a rule's source.  The source is usually a
// string, but an interpreter may accept structured sources too.
//
// The returned expression holds one reference, which the caller owns.
type Interpreter interface {
	Compile(ctx context.Context, src interface{}) (filterx.Expr, error)
}

// Map maps interpreter names to interpreters.
type Map map[string]Interpreter

// Find returns the named interpreter.
func (m Map) Find(name string) (Interpreter, error) {
	if i, have := m[name]; have {
		return i, nil
	}
	return nil, fmt.Errorf("unknown interpreter %q", name)
}

// Standard returns the interpreters available to configurations.
func Standard() Map {
	is := make(Map)

	is["native"] = native.NewInterpreter()
	is["filterx"] = is["native"]

	es := ecmascript.NewInterpreter()
	is["ecmascript"] = es
	is["ecmascript-5.1"] = es

	ext := ecmascript.NewInterpreter()
	ext.Extended = true
	is["ecmascript-ext"] = ext

	is["goja"] = goja.NewInterpreter()

	is["cel"] = cel.NewInterpreter()

	is["noop"] = noop.NewInterpreter()

	return is
}
