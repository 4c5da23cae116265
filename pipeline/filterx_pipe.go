package pipeline

import (
	"fmt"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/logpipe"
	"github.com/OverOrion/axosyslog/util"

	"go.uber.org/zap"
)

// FilterXPipe evaluates a FilterX block against each message and
// forwards the messages that match.
type FilterXPipe struct {
	logpipe.PipeBase
	Name  string
	block filterx.Expr
}

// NewFilterXPipe takes over the caller's reference to block.
func NewFilterXPipe(block filterx.Expr) *FilterXPipe {
	p := &FilterXPipe{block: block}
	p.SetLocation(block.Location())
	return p
}

func (p *FilterXPipe) Init(cfg logpipe.GlobalConfig) bool {
	p.PipeBase.Init(cfg)
	if p.Name == "" && cfg != nil {
		p.Name = cfg.RuleName("filter", p.Location())
	}
	return true
}

// Queue evaluates the block in a context nested in the path's one.
// The nested context stays active after Queue returns: it belongs to
// the lineage, and the root context tears it down.  Without a context
// on the path, this pipe starts the lineage and tears it down itself.
func (p *FilterXPipe) Queue(msg *logmsg.LogMessage, po *logpipe.PathOptions) {
	var local logpipe.PathOptions
	c := new(filterx.EvalContext)
	c.Init(po.Thread, po.FilterXContext)
	if c.IsRoot() {
		defer c.Deinit()
	}
	po = logpipe.Chain(&local, po)
	po.FilterXContext = c

	if util.TraceEnabled() {
		util.Trace(">>>>>> filterx rule evaluation begin",
			zap.String("rule", p.Name),
			p.LocationTag(),
			logmsg.EvtTagMsgReference(msg))
	}

	payload := msg.Payload.Ref()
	res := filterx.Exec(c, p.block, msg)

	if util.TraceEnabled() {
		util.Trace("<<<<<< filterx rule evaluation result",
			filterx.FormatEvalResult(res),
			zap.String("rule", p.Name),
			p.LocationTag(),
			zap.Bool("dirty", c.Scope().IsDirty()),
			logmsg.EvtTagMsgReference(msg))
	}

	switch res {
	case filterx.Success:
		p.Forward(msg, po)
	case filterx.Failure:
		if po.Matched != nil {
			*po.Matched = false
		}
		logpipe.Drop(msg, po, logmsg.AckProcessed)
	case filterx.Drop:
		logpipe.Drop(msg, po, logmsg.AckProcessed)
	default:
		panic(fmt.Sprintf("filterx pipe %s: unexpected eval result %d", p.Name, int(res)))
	}

	payload.Unref()
}

// Clone shares the block with p.
func (p *FilterXPipe) Clone() logpipe.Pipe {
	p.block.Ref()
	c := NewFilterXPipe(p.block)
	c.Name = p.Name
	return c
}

func (p *FilterXPipe) Free() {
	p.Name = ""
	if p.block != nil {
		p.block.Unref()
		p.block = nil
	}
}

// Block returns the evaluated expression (borrowed).
func (p *FilterXPipe) Block() filterx.Expr {
	return p.block
}
