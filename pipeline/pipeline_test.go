package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/logpipe"
	"github.com/OverOrion/axosyslog/util/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	sync.Mutex
	n map[string]int
}

func (c *testConfig) RuleName(kind string, loc filterx.Location) string {
	c.Lock()
	defer c.Unlock()
	if c.n == nil {
		c.n = map[string]int{}
	}
	name := fmt.Sprintf("#anon-%s%d", kind, c.n[kind])
	c.n[kind]++
	return name
}

// capture syncs and keeps what reaches it.
type capture struct {
	logpipe.PipeBase
	sync.Mutex
	msgs []*logmsg.LogMessage
}

func (p *capture) Queue(msg *logmsg.LogMessage, po *logpipe.PathOptions) {
	filterx.SyncMessage(po.FilterXContext, &msg)
	p.Lock()
	p.msgs = append(p.msgs, msg.Ref())
	p.Unlock()
	p.Forward(msg, po)
}

func (p *capture) Clone() logpipe.Pipe {
	return &capture{}
}

func (p *capture) Free() {
	for _, m := range p.msgs {
		m.Unref()
	}
	p.msgs = nil
}

func fx(e filterx.Expr) *FilterXPipe {
	return NewFilterXPipe(e)
}

func TestFilterXStage(t *testing.T) {
	tests := []struct {
		name      string
		block     func() filterx.Expr
		forwarded bool
		matched   bool
	}{
		{
			name:      "truthy forwards",
			block:     func() filterx.Expr { return filterx.NewLiteral(filterx.NewBoolean(true)) },
			forwarded: true,
			matched:   true,
		},
		{
			name:      "falsy drops and clears matched",
			block:     func() filterx.Expr { return filterx.NewLiteral(filterx.NewString("")) },
			forwarded: false,
			matched:   false,
		},
		{
			name: "explicit drop wins over truthy",
			block: func() filterx.Expr {
				return filterx.NewCompound(filterx.NewDrop())
			},
			forwarded: false,
			matched:   true,
		},
		{
			name:      "error is a failure",
			block:     func() filterx.Expr { return filterx.NewMessageRef("NO_SUCH_VALUE") },
			forwarded: false,
			matched:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &capture{}
			p := New("test", 1, fx(tt.block()), out)
			require.True(t, p.Init(&testConfig{}))
			defer p.Free()

			var acks []logmsg.AckType
			p.OnAck = func(m *logmsg.LogMessage, a logmsg.AckType) {
				acks = append(acks, a)
			}

			matched := p.Process(filterx.NewThread(0), logmsg.NewWithText("hello"))
			assert.Equal(t, tt.matched, matched)
			if tt.forwarded {
				assert.Len(t, out.msgs, 1)
			} else {
				assert.Empty(t, out.msgs)
			}
			assert.Equal(t, []logmsg.AckType{logmsg.AckProcessed}, acks)

			s := p.Stats()
			assert.Equal(t, uint64(1), s.Processed)
			if tt.forwarded {
				assert.Equal(t, uint64(1), s.Forwarded)
			} else {
				assert.Equal(t, uint64(1), s.Dropped)
			}
		})
	}
}

func TestErrorStaysInContext(t *testing.T) {
	logs := testutil.ObserveLogs(t)

	th := filterx.NewThread(0)
	var root filterx.EvalContext
	root.Init(th, nil)

	block := filterx.WithLocation(filterx.NewMessageRef("NO_SUCH_VALUE"),
		filterx.Location{File: "fx.yaml", Line: 2, Column: 5, Text: "$NO_SUCH_VALUE"})
	stage := fx(block)
	require.True(t, stage.Init(&testConfig{}))
	defer stage.Free()

	matched := true
	msg := logmsg.NewWithText("x")
	msg.Ref()
	defer msg.Unref()
	stage.Queue(msg, &logpipe.PathOptions{Matched: &matched, FilterXContext: &root, Thread: th})

	assert.False(t, matched)
	nested := th.Current()
	require.NotNil(t, nested)
	assert.NotSame(t, &root, nested)
	assert.True(t, nested.IsActive(), "nested context torn down by the stage")
	assert.Equal(t, "", nested.LastError())
	assert.Equal(t, "", root.LastError())
	assert.True(t, nested.Scope().IsDirty())

	root.Deinit()
	assert.False(t, nested.IsActive())
	assert.Nil(t, th.Current())

	entries := logs.FilterMessage("FILTERX ERROR").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "fx.yaml:2:5| $NO_SUCH_VALUE", entries[0].ContextMap()["expr"])
	assert.Equal(t, "No such variable: $NO_SUCH_VALUE", entries[0].ContextMap()["error"])

	begin := logs.FilterMessage(">>>>>> filterx rule evaluation begin").All()
	require.Len(t, begin, 1)
	assert.Equal(t, "#anon-filter0", begin[0].ContextMap()["rule"])
	result := logs.FilterMessage("<<<<<< filterx rule evaluation result").All()
	require.Len(t, result, 1)
	assert.Equal(t, "Failed to match, dropping", result[0].ContextMap()["eval result"])
	assert.Equal(t, true, result[0].ContextMap()["dirty"])
}

func TestStagesShareScope(t *testing.T) {
	set := filterx.NewAssign(filterx.NewMessageRef("HOST"), filterx.NewLiteral(filterx.NewString("web01")))
	check := filterx.NewCompare(filterx.OpEq,
		filterx.NewMessageRef("HOST"), filterx.NewLiteral(filterx.NewString("web01")))

	out := &capture{}
	p := New("test", 1, fx(set), fx(check), out)
	require.True(t, p.Init(nil))
	defer p.Free()

	assert.True(t, p.Process(filterx.NewThread(0), logmsg.NewWithText("hello")))
	require.Len(t, out.msgs, 1)
	raw, _, have := out.msgs[0].GetValue("HOST")
	require.True(t, have)
	assert.Equal(t, "web01", raw)
}

func TestStageWithoutContextStartsLineage(t *testing.T) {
	th := filterx.NewThread(0)
	out := &capture{}
	stage := fx(filterx.NewAssign(filterx.NewMessageRef("A"), filterx.NewLiteral(filterx.NewInteger(1))))
	logpipe.Link(stage, out)
	defer logpipe.FreeAll(stage)

	stage.Queue(logmsg.New(), &logpipe.PathOptions{Thread: th})
	assert.Nil(t, th.Current())
	require.Len(t, out.msgs, 1)
	raw, typ, _ := out.msgs[0].GetValue("A")
	assert.Equal(t, "1", raw)
	assert.Equal(t, logmsg.TypeInteger, typ)
}

func TestCloneSharesBlock(t *testing.T) {
	block := filterx.NewLiteral(filterx.NewBoolean(true))
	stage := fx(block)
	stage.Name = "myrule"

	c := stage.Clone().(*FilterXPipe)
	assert.Equal(t, "myrule", c.Name)
	assert.Same(t, stage.Block(), c.Block())
	assert.Equal(t, 2, block.Refs())

	c.Free()
	assert.Equal(t, 1, block.Refs())
	stage.Free()
	assert.Equal(t, 0, block.Refs())
	assert.Equal(t, "", stage.Name)
}

func TestRun(t *testing.T) {
	even := filterx.NewCompare(filterx.OpEq,
		filterx.NewMessageRef("n"), filterx.NewLiteral(filterx.NewString("even")))

	p := New("run", 4, fx(even))
	require.True(t, p.Init(nil))
	defer p.Free()

	in := make(chan *logmsg.LogMessage)
	go func() {
		for i := 0; i < 100; i++ {
			m := logmsg.New()
			if i%2 == 0 {
				m.SetValue("n", "even", logmsg.TypeString)
			} else {
				m.SetValue("n", "odd", logmsg.TypeString)
			}
			in <- m
		}
		close(in)
	}()

	require.NoError(t, p.Run(context.Background(), in))
	s := p.Stats()
	assert.Equal(t, uint64(100), s.Processed)
	assert.Equal(t, uint64(50), s.Forwarded)
	assert.Equal(t, uint64(50), s.Dropped)
	assert.Equal(t, uint64(50), s.Unmatched)
}
