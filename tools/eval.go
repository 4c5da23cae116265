package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/OverOrion/axosyslog/config"
	"github.com/OverOrion/axosyslog/filterx"
	"github.com/OverOrion/axosyslog/interpreters"
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/logpipe"
	"github.com/OverOrion/axosyslog/pipeline"
)

// EvalResult reports what the rules did with one message.
type EvalResult struct {
	// Matched is false if a rule rejected the message.
	Matched bool `json:"matched"`

	// Forwarded is true if the message made it through every
	// rule, in which case Message is what came out.
	Forwarded bool                   `json:"forwarded"`
	Message   map[string]interface{} `json:"message,omitempty"`
}

// Eval runs each line of in through the configuration's rules and
// writes one EvalResult per line, as JSON, to out.  Lines are parsed
// like the stdio source does.  Destinations are ignored.
func Eval(ctx context.Context, c *config.Config, is interpreters.Map, in io.Reader, out io.Writer) error {
	stages, err := pipeline.BuildRules(ctx, c, is)
	if err != nil {
		return err
	}
	last := &keeper{}
	p := pipeline.New("eval", 1, append(stages, last)...)
	defer p.Free()
	if !p.Init(c) {
		return pipeline.ErrInit
	}

	var (
		th  = filterx.NewThread(0)
		enc = json.NewEncoder(out)
		s   = bufio.NewScanner(in)
	)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for s.Scan() {
		line := bytes.TrimSpace(s.Bytes())
		if len(line) == 0 {
			continue
		}
		r := EvalResult{
			Matched: p.Process(th, logmsg.FromJSON(line)),
		}
		if msg := last.take(); msg != nil {
			r.Forwarded = true
			r.Message = msg.Map()
			msg.Unref()
		}
		if err := enc.Encode(&r); err != nil {
			return err
		}
	}
	return s.Err()
}

// keeper holds on to the last message that reached it, with the
// FilterX scope synced into it.
type keeper struct {
	logpipe.PipeBase
	msg *logmsg.LogMessage
}

func (k *keeper) Queue(msg *logmsg.LogMessage, po *logpipe.PathOptions) {
	filterx.SyncMessage(po.FilterXContext, &msg)
	if k.msg != nil {
		k.msg.Unref()
	}
	k.msg = msg.Ref()
	k.Forward(msg, po)
}

func (k *keeper) take() *logmsg.LogMessage {
	msg := k.msg
	k.msg = nil
	return msg
}

func (k *keeper) Clone() logpipe.Pipe {
	return &keeper{}
}

func (k *keeper) Free() {
	if k.msg != nil {
		k.msg.Unref()
		k.msg = nil
	}
}
