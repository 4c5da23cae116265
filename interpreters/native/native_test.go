package native

import (
	"context"
	"errors"
	"testing"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/util/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sshdMessage(t *testing.T) *logmsg.LogMessage {
	msg := logmsg.NewWithText("Accepted publickey for alice")
	msg.SetValue("PROGRAM", "sshd", logmsg.TypeString)
	msg.SetValue("pid", "812", logmsg.TypeInteger)
	return msg
}

// run compiles and executes code against msg, syncing the message
// afterwards.
func run(t *testing.T, code string, msg **logmsg.LogMessage) filterx.EvalResult {
	t.Helper()
	e, err := NewInterpreter().Compile(context.Background(), code)
	require.NoError(t, err)
	defer e.Unref()

	var c filterx.EvalContext
	c.Init(filterx.NewThread(0), nil)
	defer c.Deinit()

	res := filterx.Exec(&c, e, *msg)
	filterx.SyncMessage(&c, msg)
	return res
}

func TestResults(t *testing.T) {
	tests := []struct {
		name string
		code string
		want filterx.EvalResult
	}{
		{"empty block", "", filterx.Success},
		{"comment only", "# nothing\n", filterx.Success},
		{"match", `$PROGRAM == "sshd"`, filterx.Success},
		{"mismatch", `$PROGRAM == "cron"`, filterx.Failure},
		{"numeric", `$pid > 100; $pid <= 812`, filterx.Success},
		{"falsy stops", "false\ndrop", filterx.Failure},
		{"drop", `$PROGRAM == "sshd"; drop`, filterx.Drop},
		{"drop in expression", `isset($NOPE) or drop`, filterx.Drop},
		{"done", "done; false", filterx.Success},
		{"and or not", `($pid == 1 || $PROGRAM == "sshd") && !isset($HOST)`, filterx.Success},
		{"keywords", `not ($pid == 1 or $PROGRAM != "sshd") and true`, filterx.Success},
		{"functions", `startswith(lower($MESSAGE), "accepted") and len("abc") == 3`, filterx.Success},
		{"raw string", `'$PROGRAM' == "$$PROGRAM"`, filterx.Success},
		{"null", `null`, filterx.Failure},
		{"missing variable", `$NOPE == 1`, filterx.Failure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := sshdMessage(t)
			defer func() { msg.Unref() }()
			assert.Equal(t, tt.want, run(t, tt.code, &msg))
		})
	}
}

func TestAssignments(t *testing.T) {
	msg := sshdMessage(t)
	defer func() { msg.Unref() }()

	code := `
$A = "b"
n = 2
$OUT = "$A-x ${PROGRAM}"
$COPY = n
unset($pid)
`
	require.Equal(t, filterx.Success, run(t, code, &msg))

	s, _, _ := msg.GetValue("A")
	assert.Equal(t, "b", s)
	s, _, _ = msg.GetValue("OUT")
	assert.Equal(t, "b-x sshd", s)
	s, typ, _ := msg.GetValue("COPY")
	assert.Equal(t, "2", s)
	assert.Equal(t, logmsg.TypeInteger, typ)
	_, _, have := msg.GetValue("n")
	assert.False(t, have, "floating variable synced")
	_, _, have = msg.GetValue("pid")
	assert.False(t, have, "pid survived")
}

func TestContainers(t *testing.T) {
	msg := sshdMessage(t)
	defer func() { msg.Unref() }()

	code := `
$doc = {"a": 1, l: [1, "two",], "nested": {"k": $PROGRAM}}
$doc.b = "x"
$doc.nested.k == "sshd"
len($doc.l) == 2
`
	require.Equal(t, filterx.Success, run(t, code, &msg))

	s, typ, _ := msg.GetValue("doc")
	assert.Equal(t, logmsg.TypeJSON, typ)
	assert.True(t, testutil.JSONEqual(s, `{"a":1,"l":[1,"two"],"nested":{"k":"sshd"},"b":"x"}`), s)
}

func TestSelfContainingDict(t *testing.T) {
	logs := testutil.ObserveLogs(t)
	msg := sshdMessage(t)
	defer func() { msg.Unref() }()

	code := "x = {\"a\": 1}\nx.self = x\n$shown = string(x)\n$out = x\n"
	require.Equal(t, filterx.Success, run(t, code, &msg))

	s, _, _ := msg.GetValue("shown")
	assert.Equal(t, `{"a":1,"self":{...}}`, s)

	_, _, have := msg.GetValue("out")
	assert.False(t, have)
	assert.Equal(t, 1, logs.FilterMessage("FILTERX failed to marshal variable into the message").Len())
}

func TestDottedNames(t *testing.T) {
	msg := sshdMessage(t)
	defer func() { msg.Unref() }()

	require.Equal(t, filterx.Success, run(t, `$.meta.user = "alice"; ${.meta.user} == "alice"`, &msg))
	s, _, _ := msg.GetValue(".meta.user")
	assert.Equal(t, "alice", s)
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		code      string
		line, col int
		contains  string
	}{
		{`$A = `, 1, 6, "unexpected end of input"},
		{`"unterminated`, 1, 1, "unterminated string"},
		{"$A == 1\n$B = \"x\\q\"", 2, 8, "bad escape"},
		{`1 == 2 == 3`, 1, 8, "don't chain"},
		{`3 = 4`, 1, 3, "can't assign"},
		{`nosuch(1)`, 1, 1, "unknown function"},
		{`len(1, 2)`, 1, 1, "wrong number of arguments"},
		{`isset("x")`, 1, 1, "takes one variable"},
		{`$A $B`, 1, 4, "expected ';'"},
		{`{1: 2}`, 1, 2, "expected key"},
		{`a & b`, 1, 3, "unexpected '&'"},
		{`$`, 1, 1, "empty message reference"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			_, err := Parse("fx.yaml", tt.code)
			var se *SyntaxError
			require.True(t, errors.As(err, &se), "%v", err)
			assert.Equal(t, "fx.yaml", se.File)
			assert.Equal(t, tt.line, se.Line)
			assert.Equal(t, tt.col, se.Col)
			assert.Contains(t, se.Error(), tt.contains)
		})
	}
}

func TestErrorLocation(t *testing.T) {
	logs := testutil.ObserveLogs(t)

	e, err := NewInterpreter().Compile(context.Background(), map[string]interface{}{
		"file": "fx.yaml",
		"code": "$PROGRAM == \"sshd\"\n  $NO_SUCH_VALUE",
	})
	require.NoError(t, err)
	defer e.Unref()
	assert.Equal(t, `fx.yaml:1:1| $PROGRAM == "sshd"`, e.Location().String())

	msg := sshdMessage(t)
	defer msg.Unref()

	var c filterx.EvalContext
	c.Init(filterx.NewThread(0), nil)
	defer c.Deinit()
	require.Equal(t, filterx.Failure, filterx.Exec(&c, e, msg))

	entries := logs.FilterMessage("FILTERX ERROR").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "fx.yaml:2:3| $NO_SUCH_VALUE", fields["expr"])
	assert.Equal(t, "No such variable: $NO_SUCH_VALUE", fields["error"])
}

func TestBadSource(t *testing.T) {
	i := NewInterpreter()
	for _, src := range []interface{}{
		42,
		map[string]interface{}{"code": 1},
		map[string]interface{}{"code": "true", "file": 1},
	} {
		_, err := i.Compile(context.Background(), src)
		assert.Error(t, err, "%#v", src)
	}
}

func TestRefcounts(t *testing.T) {
	e, err := Parse("fx.yaml", `$A = {"k": [1, lower("X")]}; $A.k2 = $A.k; isset($A)`)
	require.NoError(t, err)

	c := e.(*filterx.Compound)
	require.Len(t, c.Stmts, 3)
	for _, s := range c.Stmts {
		assert.Equal(t, 1, s.(interface{ Refs() int }).Refs())
	}
	e.Unref()
}
