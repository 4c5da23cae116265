package cel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/util/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) filterx.Expr {
	t.Helper()
	e, err := NewInterpreter().Compile(context.Background(), src)
	require.NoError(t, err)
	t.Cleanup(e.Unref)
	return e
}

func newMessage(t *testing.T) *logmsg.LogMessage {
	msg := logmsg.NewWithText("Accepted publickey for alice")
	msg.SetValue("PROGRAM", "sshd", logmsg.TypeString)
	msg.SetValue("pid", "812", logmsg.TypeInteger)
	msg.SetValue("meta", `{"groups":["admin","ops"],"level":3}`, logmsg.TypeJSON)
	t.Cleanup(msg.Unref)
	return msg
}

func TestFilterExpressions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		expr string
		want filterx.EvalResult
	}{
		{"string equality", `msg.PROGRAM == "sshd"`, filterx.Success},
		{"string mismatch", `msg.PROGRAM == "cron"`, filterx.Failure},
		{"integer value", `msg.pid > 800`, filterx.Success},
		{"json membership", `"admin" in msg.meta.groups`, filterx.Success},
		{"json number", `msg.meta.level == 3`, filterx.Success},
		{"key exists", `"PROGRAM" in msg && !("HOST" in msg)`, filterx.Success},
		{"string extension", `msg.MESSAGE.lowerAscii().startsWith("accepted")`, filterx.Success},
		{"exists macro", `msg.meta.groups.exists(g, g == "ops")`, filterx.Success},
		{"no floating variables", `size(vars) == 0`, filterx.Success},
		{"missing key", `msg.HOST == "x"`, filterx.Failure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := compile(t, tt.expr)

			var c filterx.EvalContext
			c.Init(filterx.NewThread(0), nil)
			defer c.Deinit()

			assert.Equal(t, tt.want, filterx.Exec(&c, e, newMessage(t)))
		})
	}
}

func TestSeesScope(t *testing.T) {
	e := compile(t, `msg.PROGRAM == "postfix" && vars.n == 2 && !("pid" in msg)`)
	msg := newMessage(t)

	var c filterx.EvalContext
	c.Init(filterx.NewThread(0), nil)
	defer c.Deinit()

	// Bind the message, then change the scope under it.
	filterx.Exec(&c, filterx.NewLiteral(filterx.NewBoolean(true)), msg)

	prog := filterx.NewString("postfix")
	c.SetVariable("PROGRAM", true, prog)
	filterx.Unref(prog)
	n := filterx.NewInteger(2)
	c.SetVariable("n", false, n)
	filterx.Unref(n)
	c.UnsetVariable("pid", true)

	assert.Equal(t, filterx.Success, filterx.Exec(&c, e, msg))
}

func TestResultConversion(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{`1 + 2`, `3`},
		{`2.5 * 2.0`, `5`},
		{`"a" + "b"`, `ab`},
		{`null`, `null`},
		{`[1, "x"]`, `[1,"x"]`},
		{`{"k": msg.PROGRAM}`, `{"k":"sshd"}`},
		{`duration("90s")`, `1m30s`},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e := compile(t, tt.expr)

			var c filterx.EvalContext
			c.Init(filterx.NewThread(0), nil)
			defer c.Deinit()
			filterx.Exec(&c, filterx.NewLiteral(filterx.NewBoolean(true)), newMessage(t))

			o := e.Eval(&c)
			require.NotNil(t, o, c.LastError())
			defer filterx.Unref(o)

			s, ok := filterx.Repr(o)
			require.True(t, ok)
			if strings.HasPrefix(tt.want, "[") || strings.HasPrefix(tt.want, "{") {
				assert.True(t, testutil.JSONEqual(s, tt.want), s)
			} else {
				assert.Equal(t, tt.want, s)
			}
		})
	}
}

func TestEvaluationError(t *testing.T) {
	logs := testutil.ObserveLogs(t)
	e := compile(t, `msg.pid / 0 == 1`)

	var c filterx.EvalContext
	c.Init(filterx.NewThread(0), nil)
	defer c.Deinit()

	assert.Equal(t, filterx.Failure, filterx.Exec(&c, e, newMessage(t)))

	entries := logs.FilterMessage("FILTERX ERROR").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "division by zero")
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()

	i := NewInterpreter()

	_, err := i.Compile(context.Background(), `msg.PROGRAM ==`)
	var pe *ParseError
	require.True(t, errors.As(err, &pe), "%v", err)
	assert.ErrorIs(t, err, ErrExpressionCheck)
	assert.Equal(t, `msg.PROGRAM ==`, pe.Source)
	require.NotEmpty(t, pe.Errors)
	assert.Equal(t, 1, pe.Errors[0].Line)
	assert.Contains(t, pe.AsJSON(), `"source":"msg.PROGRAM =="`)

	_, err = i.Compile(context.Background(), `msg.PROGRAM + 1 == undeclared`)
	var ce *CheckError
	require.True(t, errors.As(err, &ce), "%v", err)
	assert.ErrorIs(t, err, ErrExpressionCheck)

	_, err = i.Compile(context.Background(), 42)
	assert.Error(t, err)
}

func TestLimits(t *testing.T) {
	logs := testutil.ObserveLogs(t)

	engine := NewEngineForRules().WithMaxExpressionLength(10)
	err := engine.Check(`msg.PROGRAM == "sshd"`)
	assert.ErrorIs(t, err, ErrExpressionCheck)
	assert.NoError(t, engine.Check(`true`))

	i := &Interpreter{Engine: NewEngineForRules().WithCostLimit(10)}
	e, err := i.Compile(context.Background(), `[1,2,3,4,5,6,7,8,9,10].map(x, x * 2).size() > 0`)
	require.NoError(t, err)
	defer e.Unref()

	var c filterx.EvalContext
	c.Init(filterx.NewThread(0), nil)
	defer c.Deinit()
	assert.Equal(t, filterx.Failure, filterx.Exec(&c, e, newMessage(t)))
	assert.Equal(t, "", c.LastError())

	entries := logs.FilterMessage("FILTERX ERROR").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "CEL evaluation failed")
}
