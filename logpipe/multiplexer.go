package logpipe

import (
	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/util"

	"go.uber.org/zap"
)

// Multiplexer sends each message down several branches.
//
// Before the fan-out the FilterX scope is synced into the message and
// write protected, and the message itself is write protected, so a
// branch that changes either works on its own copy.
//
// The message is forwarded to the next pipe if any branch matched,
// or unconditionally without branches.
type Multiplexer struct {
	PipeBase
	Branches []Pipe
}

func NewMultiplexer(branches ...Pipe) *Multiplexer {
	return &Multiplexer{Branches: branches}
}

func (p *Multiplexer) Init(cfg GlobalConfig) bool {
	p.PipeBase.Init(cfg)
	for _, b := range p.Branches {
		if !InitAll(b, cfg) {
			return false
		}
	}
	return true
}

func (p *Multiplexer) Queue(msg *logmsg.LogMessage, po *PathOptions) {
	filterx.PrepareForFork(po.FilterXContext, &msg)
	msg.WriteProtect()

	matched := len(p.Branches) == 0
	for i, b := range p.Branches {
		branchMatched := true
		var local PathOptions
		Chain(&local, po)
		local.Matched = &branchMatched
		local.FilterXContext = po.FilterXContext

		if po.AckNeeded {
			msg.AddAck()
		}
		b.Queue(msg.Ref(), &local)

		util.Trace("Multiplexer branch done",
			zap.Int("branch", i),
			zap.Bool("matched", branchMatched),
			p.LocationTag(),
			logmsg.EvtTagMsgReference(msg))
		if branchMatched {
			matched = true
		}
	}

	if !matched {
		if po.Matched != nil {
			*po.Matched = false
		}
		Drop(msg, po, logmsg.AckProcessed)
		return
	}
	p.Forward(msg, po)
}

func (p *Multiplexer) Clone() Pipe {
	c := &Multiplexer{PipeBase: PipeBase{cfg: p.cfg, loc: p.loc}}
	for _, b := range p.Branches {
		c.Branches = append(c.Branches, b.Clone())
	}
	return c
}

func (p *Multiplexer) Free() {
	for _, b := range p.Branches {
		FreeAll(b)
	}
	p.Branches = nil
}
