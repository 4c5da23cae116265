// Package cel compiles Common Expression Language rules into FilterX
// expressions.
//
// A rule sees two variables: msg, a map of the message's values as
// the current scope has them, and vars, the floating variables.  The
// rule's value becomes the expression's value, so a rule like
//
//	msg.PROGRAM == "sshd" && "user" in vars
//
// acts as a filter.  Rules have no side effects on the scope.
package cel

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/OverOrion/axosyslog/filterx"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// DefaultMaxExpressionLength bounds the length of a rule.
	DefaultMaxExpressionLength = 10000

	// DefaultCostLimit bounds the runtime cost of one evaluation.
	DefaultCostLimit = 1000000
)

// Engine compiles CEL rules against one environment.  It is safe for
// concurrent use.
type Engine struct {
	once sync.Once
	env  *celgo.Env
	err  error

	options             []celgo.EnvOption
	maxExpressionLength int
	costLimit           uint64
}

// NewEngine makes an engine whose environment declares the given
// options, created lazily on first use.
func NewEngine(options ...celgo.EnvOption) *Engine {
	return &Engine{
		options:             options,
		maxExpressionLength: DefaultMaxExpressionLength,
		costLimit:           DefaultCostLimit,
	}
}

func (e *Engine) WithMaxExpressionLength(maxLen int) *Engine {
	e.maxExpressionLength = maxLen
	return e
}

func (e *Engine) WithCostLimit(limit uint64) *Engine {
	e.costLimit = limit
	return e
}

func (e *Engine) getEnv() (*celgo.Env, error) {
	e.once.Do(func() {
		e.env, e.err = celgo.NewEnv(e.options...)
	})
	return e.env, e.err
}

func (e *Engine) check(src string) (*celgo.Env, *celgo.Ast, error) {
	if len(src) > e.maxExpressionLength {
		return nil, nil, fmt.Errorf("%w: expression length %d exceeds maximum of %d",
			ErrExpressionCheck, len(src), e.maxExpressionLength)
	}

	env, err := e.getEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get CEL environment: %w", err)
	}

	parsed, issues := env.Parse(src)
	if issues.Err() != nil {
		return nil, nil, newParseError(src, issues)
	}

	checked, issues := env.Check(parsed)
	if issues.Err() != nil {
		return nil, nil, newCheckError(src, issues)
	}
	return env, checked, nil
}

// Check reports whether src would compile.
func (e *Engine) Check(src string) error {
	_, _, err := e.check(src)
	return err
}

// Compile parses, checks and plans a rule.
func (e *Engine) Compile(src string) (celgo.Program, error) {
	env, ast, err := e.check(src)
	if err != nil {
		return nil, err
	}
	p, err := env.Program(ast, celgo.CostLimit(e.costLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program for %q: %w", src, err)
	}
	return p, nil
}

// Interpreter compiles CEL rules.
type Interpreter struct {
	Engine *Engine
}

// NewEngineForRules makes an engine with the msg and vars variables
// and the string extension library.
func NewEngineForRules() *Engine {
	return NewEngine(
		celgo.Variable("msg", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("vars", celgo.MapType(celgo.StringType, celgo.DynType)),
		ext.Strings(),
	)
}

func NewInterpreter() *Interpreter {
	return &Interpreter{Engine: NewEngineForRules()}
}

func (i *Interpreter) Compile(ctx context.Context, src interface{}) (filterx.Expr, error) {
	code, is := src.(string)
	if !is {
		return nil, fmt.Errorf("bad CEL source (%T)", src)
	}
	code = strings.TrimSpace(code)
	p, err := i.Engine.Compile(code)
	if err != nil {
		return nil, err
	}
	e := &Expr{Source: code, program: p}
	e.SetLocation(filterx.Location{File: "cel", Line: 1, Column: 1, Text: code})
	return e, nil
}

// Expr is a compiled CEL rule.
type Expr struct {
	filterx.ExprBase
	Source  string
	program celgo.Program
}

func (e *Expr) Eval(c *filterx.EvalContext) filterx.Object {
	activation := map[string]any{
		"msg":  messageValues(c),
		"vars": floatingVariables(c),
	}
	out, _, err := e.program.Eval(activation)
	if err != nil {
		c.PushErrorf("CEL evaluation failed", e, "%s: %s", ErrEvaluation, err)
		return nil
	}
	o, err := toObject(out)
	if err != nil {
		c.PushErrorf("CEL evaluation failed", e, "%s: %s", ErrInvalidResult, err)
		return nil
	}
	return o
}

// messageValues collects the bound message's values with the scope's
// view of message-tied variables on top.
func messageValues(c *filterx.EvalContext) map[string]any {
	acc := map[string]any{}
	if msg := c.Message(); msg != nil {
		for _, name := range msg.Names() {
			if !c.IsVariableSet(name, true) {
				continue
			}
			if v, have := msg.Value(name); have {
				acc[name] = native(v.Interface())
			}
		}
	}
	if s := c.Scope(); s != nil {
		s.Foreach(func(name string, tied bool, v filterx.Object) bool {
			if tied {
				if x, err := filterx.ToInterface(v); err == nil {
					acc[name] = native(x)
				}
			}
			return true
		})
	}
	return acc
}

func floatingVariables(c *filterx.EvalContext) map[string]any {
	acc := map[string]any{}
	if s := c.Scope(); s != nil {
		s.Foreach(func(name string, tied bool, v filterx.Object) bool {
			if !tied {
				if x, err := filterx.ToInterface(v); err == nil {
					acc[name] = native(x)
				}
			}
			return true
		})
	}
	return acc
}

// native replaces json.Numbers, which CEL doesn't know, with int64 or
// float64.
func native(x interface{}) interface{} {
	switch vv := x.(type) {
	case json.Number:
		if n, err := vv.Int64(); err == nil {
			return n
		}
		f, _ := vv.Float64()
		return f
	case map[string]interface{}:
		for k, v := range vv {
			vv[k] = native(v)
		}
	case []interface{}:
		for i, v := range vv {
			vv[i] = native(v)
		}
	}
	return x
}

var structValueType = reflect.TypeOf(&structpb.Value{})

func toObject(v ref.Val) (filterx.Object, error) {
	switch vv := v.(type) {
	case types.Null:
		return filterx.NewNull(), nil
	case types.Duration:
		return filterx.NewString(vv.Duration.String()), nil
	case traits.Lister, traits.Mapper:
		x, err := v.ConvertToNative(structValueType)
		if err != nil {
			return nil, err
		}
		return filterx.FromInterface(x.(*structpb.Value).AsInterface())
	}
	return filterx.FromInterface(v.Value())
}
