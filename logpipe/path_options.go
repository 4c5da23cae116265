package logpipe

import (
	"github.com/OverOrion/axosyslog/filterx"
)

// PathOptions travel with a message along a path.
type PathOptions struct {
	// AckNeeded means the source waits for an acknowledgement.
	AckNeeded bool

	FlowControlRequested bool

	// Matched, if not nil, is cleared by filters that reject the
	// message.
	Matched *bool

	// FilterXContext is the innermost FilterX evaluation context
	// of this path.  Nil until a root context has been created.
	FilterXContext *filterx.EvalContext

	// Thread is the worker the message is processed on.
	Thread *filterx.Thread

	parent *PathOptions
}

// Chain makes local continue prev and returns local.  The FilterX
// context is left alone: the caller sets up its own.
func Chain(local, prev *PathOptions) *PathOptions {
	local.AckNeeded = prev.AckNeeded
	local.FlowControlRequested = prev.FlowControlRequested
	local.Matched = prev.Matched
	local.Thread = prev.Thread
	local.parent = prev
	return local
}

// Parent returns the options local was chained from.
func (po *PathOptions) Parent() *PathOptions {
	return po.parent
}
