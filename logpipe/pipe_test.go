package logpipe

import (
	"testing"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcPipe runs a function on each message.
type funcPipe struct {
	PipeBase
	f func(p *funcPipe, msg *logmsg.LogMessage, po *PathOptions)
}

func (p *funcPipe) Queue(msg *logmsg.LogMessage, po *PathOptions) {
	p.f(p, msg, po)
}

func (p *funcPipe) Clone() Pipe {
	return &funcPipe{f: p.f}
}

func (p *funcPipe) Free() {}

func forward(p *funcPipe, msg *logmsg.LogMessage, po *PathOptions) {
	p.Forward(msg, po)
}

func ackCounter(msg *logmsg.LogMessage) *[]logmsg.AckType {
	var acks []logmsg.AckType
	msg.SetAckFunc(func(m *logmsg.LogMessage, a logmsg.AckType) {
		acks = append(acks, a)
	})
	return &acks
}

func TestForwardToEndDrops(t *testing.T) {
	msg := logmsg.NewWithText("x")
	acks := ackCounter(msg)
	msg.Ref()
	defer msg.Unref()

	head := Link(&funcPipe{f: forward}, &funcPipe{f: forward})
	head.Queue(msg, &PathOptions{AckNeeded: true})

	assert.Equal(t, []logmsg.AckType{logmsg.AckProcessed}, *acks)
	assert.Equal(t, int32(1), msg.Refs())
}

func TestDropWithoutAck(t *testing.T) {
	msg := logmsg.NewWithText("x")
	acks := ackCounter(msg)
	msg.Ref()
	defer msg.Unref()

	Drop(msg, &PathOptions{}, logmsg.AckAborted)
	assert.Empty(t, *acks)
	assert.Equal(t, int32(1), msg.Refs())
}

func TestChain(t *testing.T) {
	matched := true
	th := filterx.NewThread(3)
	var c filterx.EvalContext
	c.Init(th, nil)
	defer c.Deinit()

	prev := &PathOptions{AckNeeded: true, FlowControlRequested: true, Matched: &matched, FilterXContext: &c, Thread: th}
	var local PathOptions
	po := Chain(&local, prev)

	assert.Same(t, &local, po)
	assert.True(t, po.AckNeeded)
	assert.True(t, po.FlowControlRequested)
	assert.Same(t, &matched, po.Matched)
	assert.Same(t, th, po.Thread)
	assert.Nil(t, po.FilterXContext)
	assert.Same(t, prev, po.Parent())
}

func TestMultiplexerIsolatesBranches(t *testing.T) {
	th := filterx.NewThread(0)
	var root filterx.EvalContext
	root.Init(th, nil)
	defer root.Deinit()
	root.SetVariable("A", true, filterx.NewInteger(1))

	msg := logmsg.New()
	acks := ackCounter(msg)
	msg.Ref()
	defer msg.Unref()

	var seenInWriter string
	writer := &funcPipe{f: func(p *funcPipe, msg *logmsg.LogMessage, po *PathOptions) {
		var c filterx.EvalContext
		c.Init(nil, po.FilterXContext)
		c.SetVariable("A", true, filterx.NewInteger(2))
		filterx.SyncMessage(&c, &msg)
		seenInWriter, _, _ = msg.GetValue("A")
		c.Deinit()
		p.Forward(msg, po)
	}}

	var seenInReader int64
	reader := &funcPipe{f: func(p *funcPipe, msg *logmsg.LogMessage, po *PathOptions) {
		var c filterx.EvalContext
		c.Init(nil, po.FilterXContext)
		if v, ok := c.GetVariable("A", true).(*filterx.Integer); ok {
			seenInReader = v.Value
			filterx.Unref(v)
		}
		c.Deinit()
		p.Forward(msg, po)
	}}

	matched := true
	mux := NewMultiplexer(writer, reader)
	require.True(t, mux.Init(nil))
	mux.Queue(msg, &PathOptions{AckNeeded: true, Matched: &matched, FilterXContext: &root, Thread: th})

	assert.Equal(t, "2", seenInWriter)
	assert.Equal(t, int64(1), seenInReader, "write leaked into a sibling branch")
	raw, _, _ := msg.GetValue("A")
	assert.Equal(t, "1", raw)
	assert.True(t, matched)
	assert.Equal(t, []logmsg.AckType{logmsg.AckProcessed}, *acks)
}

func TestMultiplexerNoBranchMatched(t *testing.T) {
	msg := logmsg.New()
	msg.Ref()
	defer msg.Unref()

	reject := &funcPipe{f: func(p *funcPipe, msg *logmsg.LogMessage, po *PathOptions) {
		*po.Matched = false
		Drop(msg, po, logmsg.AckProcessed)
	}}
	var forwarded bool
	after := &funcPipe{f: func(p *funcPipe, msg *logmsg.LogMessage, po *PathOptions) {
		forwarded = true
		Drop(msg, po, logmsg.AckProcessed)
	}}

	matched := true
	mux := NewMultiplexer(reject, reject.Clone())
	Link(mux, after)
	mux.Queue(msg, &PathOptions{Matched: &matched})

	assert.False(t, matched)
	assert.False(t, forwarded)
	assert.Equal(t, int32(1), msg.Refs())
}
