package noop

import (
	"context"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/util"

	"go.uber.org/zap"
)

// Interpreter compiles any source into an expression that accepts
// every message without looking at it.
type Interpreter struct {
	// Silent, if true, will suppress warning log messages.
	Silent bool
}

func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

func (i *Interpreter) Compile(ctx context.Context, src interface{}) (filterx.Expr, error) {
	if !i.Silent {
		util.Warn("using the noop interpreter for compilation", zap.Any("src", src))
	}
	e := filterx.NewLiteral(filterx.NewBoolean(true))
	e.SetLocation(filterx.Location{File: "noop"})
	return e, nil
}
