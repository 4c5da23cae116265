// Package logpipe defines the pipes that messages travel through and
// the path options that travel with them.
//
// A pipe's Queue takes over the caller's reference to the message:
// it either forwards the message to the next pipe or drops it.
package logpipe

import (
	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"

	"go.uber.org/zap"
)

// GlobalConfig is what a pipe needs from the configuration it belongs
// to.
type GlobalConfig interface {
	// RuleName returns a name for an unnamed rule of the given kind.
	RuleName(kind string, loc filterx.Location) string
}

// Pipe is one hop of a pipeline.
type Pipe interface {
	Init(cfg GlobalConfig) bool
	Deinit() bool
	Queue(msg *logmsg.LogMessage, po *PathOptions)
	Clone() Pipe
	Free()

	Next() Pipe
	SetNext(next Pipe)
}

// PipeBase carries the state common to all pipes.  Embed it and
// implement Queue, Clone and Free.
type PipeBase struct {
	next Pipe
	cfg  GlobalConfig
	loc  filterx.Location
}

func (p *PipeBase) Init(cfg GlobalConfig) bool {
	p.cfg = cfg
	return true
}

func (p *PipeBase) Deinit() bool {
	return true
}

func (p *PipeBase) Config() GlobalConfig {
	return p.cfg
}

func (p *PipeBase) Next() Pipe {
	return p.next
}

func (p *PipeBase) SetNext(next Pipe) {
	p.next = next
}

// Location is where the pipe was defined in the configuration.
func (p *PipeBase) Location() filterx.Location {
	return p.loc
}

func (p *PipeBase) SetLocation(loc filterx.Location) {
	p.loc = loc
}

// LocationTag renders the pipe's location for traces.
func (p *PipeBase) LocationTag() zap.Field {
	return zap.String("location", p.loc.String())
}

// Forward hands msg to the next pipe, or drops it if this is the last
// one.
func (p *PipeBase) Forward(msg *logmsg.LogMessage, po *PathOptions) {
	if p.next == nil {
		Drop(msg, po, logmsg.AckProcessed)
		return
	}
	p.next.Queue(msg, po)
}

// Drop releases msg, acknowledging it if the path asks for that.
func Drop(msg *logmsg.LogMessage, po *PathOptions, ack logmsg.AckType) {
	if po != nil && po.AckNeeded {
		msg.Ack(ack)
	}
	msg.Unref()
}

// Link connects pipes in the given order and returns the first one.
func Link(pipes ...Pipe) Pipe {
	if len(pipes) == 0 {
		return nil
	}
	for i := 0; i < len(pipes)-1; i++ {
		pipes[i].SetNext(pipes[i+1])
	}
	return pipes[0]
}

// InitAll initialises the pipe chain starting at p.
func InitAll(p Pipe, cfg GlobalConfig) bool {
	for ; p != nil; p = p.Next() {
		if !p.Init(cfg) {
			return false
		}
	}
	return true
}

// FreeAll releases the pipe chain starting at p.
func FreeAll(p Pipe) {
	for p != nil {
		next := p.Next()
		p.Deinit()
		p.Free()
		p = next
	}
}
