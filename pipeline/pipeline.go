// Package pipeline runs messages from a source through a chain of
// pipes on a pool of workers.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/logpipe"
	"github.com/OverOrion/axosyslog/logthrdest"
	"github.com/OverOrion/axosyslog/util"

	"go.uber.org/zap"
)

// Stats are the pipeline's message counters.
type Stats struct {
	// Processed messages entered the pipeline.
	Processed uint64

	// Forwarded messages reached the end of the pipeline.
	Forwarded uint64

	// Dropped messages did not.
	Dropped uint64

	// Unmatched messages were rejected by a filter (as opposed to
	// explicitly dropped).
	Unmatched uint64
}

// Pipeline owns a chain of pipes and the workers that feed it.
//
// Each worker has its own filterx.Thread.  For every message the
// worker creates the root FilterX context, queues the message into the
// first pipe and tears the root context down once the call returns,
// which also tears down the nested contexts left behind by FilterX
// stages.
type Pipeline struct {
	Name    string
	Workers int

	// OnAck, if set, is called when a message has been
	// acknowledged by every consumer.
	OnAck logmsg.AckFunc

	head    logpipe.Pipe
	cfg     logpipe.GlobalConfig
	drivers []*logthrdest.Driver

	processed atomic.Uint64
	forwarded atomic.Uint64
	unmatched atomic.Uint64
}

// New links pipes into a pipeline.  An end marker is appended to
// count forwarded messages.
func New(name string, workers int, pipes ...logpipe.Pipe) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	p := &Pipeline{Name: name, Workers: workers}
	p.head = logpipe.Link(append(pipes, &endPipe{p: p})...)
	return p
}

// Init initialises every pipe.
func (p *Pipeline) Init(cfg logpipe.GlobalConfig) bool {
	p.cfg = cfg
	return logpipe.InitAll(p.head, cfg)
}

// Free releases every pipe.
func (p *Pipeline) Free() {
	logpipe.FreeAll(p.head)
	p.head = nil
}

// Run feeds messages from in through the pipeline until in is closed
// or ctx is done.
func (p *Pipeline) Run(ctx context.Context, in <-chan *logmsg.LogMessage) error {
	var wg sync.WaitGroup
	for i := 0; i < p.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, filterx.NewThread(id), in)
		}(i)
	}
	wg.Wait()
	util.Debug("Pipeline stopped", zap.String("pipeline", p.Name), p.stats())
	return ctx.Err()
}

func (p *Pipeline) worker(ctx context.Context, th *filterx.Thread, in <-chan *logmsg.LogMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			p.Process(th, msg)
		}
	}
}

// Process runs one message through the pipeline on th, taking over
// the caller's reference.  It reports whether the message is still
// considered matched.
func (p *Pipeline) Process(th *filterx.Thread, msg *logmsg.LogMessage) bool {
	if msg.PendingAcks() == 0 {
		msg.SetAckFunc(p.acked)
	}

	var root filterx.EvalContext
	root.Init(th, nil)

	matched := true
	po := logpipe.PathOptions{
		AckNeeded:      true,
		Matched:        &matched,
		FilterXContext: &root,
		Thread:         th,
	}

	p.processed.Add(1)
	p.head.Queue(msg, &po)
	root.Deinit()

	if !matched {
		p.unmatched.Add(1)
	}
	return matched
}

func (p *Pipeline) acked(msg *logmsg.LogMessage, ack logmsg.AckType) {
	if p.OnAck != nil {
		p.OnAck(msg, ack)
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	var s Stats
	s.Forwarded = p.forwarded.Load()
	s.Unmatched = p.unmatched.Load()
	s.Processed = p.processed.Load()
	s.Dropped = s.Processed - s.Forwarded
	return s
}

func (p *Pipeline) stats() zap.Field {
	s := p.Stats()
	return zap.Dict("stats",
		zap.Uint64("processed", s.Processed),
		zap.Uint64("forwarded", s.Forwarded),
		zap.Uint64("dropped", s.Dropped))
}

// endPipe counts what makes it through.
type endPipe struct {
	logpipe.PipeBase
	p *Pipeline
}

func (e *endPipe) Queue(msg *logmsg.LogMessage, po *logpipe.PathOptions) {
	e.p.forwarded.Add(1)
	logpipe.Drop(msg, po, logmsg.AckProcessed)
}

func (e *endPipe) Clone() logpipe.Pipe {
	return &endPipe{p: e.p}
}

func (e *endPipe) Free() {}
