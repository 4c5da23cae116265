package filterx

import (
	"bytes"
	"fmt"
	"time"

	"github.com/OverOrion/axosyslog/logmsg"

	"go.uber.org/zap"
)

// EvalResult is the outcome of evaluating a rule against a message.
type EvalResult int

const (
	// Success doubles as "no classification" in an error slot.
	Success EvalResult = iota
	Failure
	Drop
)

// String returns the label used in traces.
func (r EvalResult) String() string {
	switch r {
	case Success:
		return "Succesfully matched, forwarding"
	case Drop:
		return "Explicitly dropped"
	case Failure:
		return "Failed to match, dropping"
	}
	panic(fmt.Sprintf("filterx: unknown eval result %d", int(r)))
}

// Control is set by expressions that want to stop the evaluation.
type Control int

const (
	ControlNotSet Control = iota
	ControlDrop
	ControlDone
)

// TemplateOptions affect how templates render values.
type TemplateOptions struct {
	TimeZone *time.Location

	// Escape quotes and backslashes in substituted values.
	Escape bool
}

func DefaultTemplateOptions() TemplateOptions {
	return TemplateOptions{TimeZone: time.UTC}
}

// Thread tracks the innermost evaluation context of one worker
// goroutine.  A Thread must not be shared between goroutines.
type Thread struct {
	ID int

	current *EvalContext
	scratch bytes.Buffer
}

func NewThread(id int) *Thread {
	return &Thread{ID: id}
}

// Current returns the innermost active context, or nil.
func (t *Thread) Current() *EvalContext {
	if t == nil {
		return nil
	}
	return t.current
}

func (t *Thread) SetCurrent(c *EvalContext) {
	if t == nil {
		return
	}
	t.current = c
}

// EvalContext is the state of one (possibly nested) evaluation.
//
// A root context (no previous) owns a fresh Scope and the weak
// reference registry.  A nested context shares its previous context's
// scope (until it has to write to a protected one) and registry.
// Contexts are initialised and torn down in LIFO order on one Thread.
type EvalContext struct {
	msgs            []*logmsg.LogMessage
	scope           *Scope
	err             Error
	templateOptions TemplateOptions
	weakRefs        *WeakRefs
	control         Control

	previous *EvalContext
	root     *EvalContext
	children []*EvalContext
	thread   *Thread
	active   bool
}

// Init prepares c on thread t.  With a previous context, c is nested
// in previous's lineage; t may then be nil to use previous's thread.
func (c *EvalContext) Init(t *Thread, previous *EvalContext) {
	if c.active {
		panic("filterx: EvalContext initialised twice")
	}
	*c = EvalContext{
		templateOptions: DefaultTemplateOptions(),
		previous:        previous,
		thread:          t,
		active:          true,
	}
	if previous != nil {
		c.weakRefs = previous.weakRefs
		c.root = previous.root
		c.scope = previous.scope.Ref()
		makeWritable(c, &c.scope)
		if c.thread == nil {
			c.thread = previous.thread
		}
		c.root.children = append(c.root.children, c)
	} else {
		c.scope = newScope()
		c.weakRefs = newWeakRefs()
		c.root = c
	}
	c.thread.SetCurrent(c)
}

// Deinit releases c.  A root context first tears down any nested
// context of its lineage that is still active, newest first, and then
// releases the weak reference registry.
func (c *EvalContext) Deinit() {
	if !c.active {
		return
	}
	if c.IsRoot() {
		for i := len(c.children) - 1; i >= 0; i-- {
			c.children[i].Deinit()
		}
		c.children = nil
		c.weakRefs.release()
	} else {
		c.root.forget(c)
	}
	c.weakRefs = nil
	c.err.clear()
	c.scope.Unref()
	c.scope = nil
	c.msgs = nil
	c.active = false
	c.thread.SetCurrent(c.previous)
}

func (c *EvalContext) forget(child *EvalContext) {
	for i := len(c.children) - 1; i >= 0; i-- {
		if c.children[i] == child {
			c.children = append(c.children[:i], c.children[i+1:]...)
			return
		}
	}
}

func (c *EvalContext) IsRoot() bool {
	return c.previous == nil
}

func (c *EvalContext) IsActive() bool {
	return c != nil && c.active
}

func (c *EvalContext) Previous() *EvalContext {
	return c.previous
}

func (c *EvalContext) Thread() *Thread {
	return c.thread
}

// Scope returns the current scope.  Use the context's methods to
// change it.
func (c *EvalContext) Scope() *Scope {
	return c.scope
}

// WeakRefs returns the lineage's registry.
func (c *EvalContext) WeakRefs() *WeakRefs {
	return c.weakRefs
}

func (c *EvalContext) TemplateOptions() *TemplateOptions {
	return &c.templateOptions
}

// Messages returns the messages bound by Exec.
func (c *EvalContext) Messages() []*logmsg.LogMessage {
	return c.msgs
}

// Message returns the first bound message, or nil.
func (c *EvalContext) Message() *logmsg.LogMessage {
	if len(c.msgs) == 0 {
		return nil
	}
	return c.msgs[0]
}

func (c *EvalContext) bind(msgs ...*logmsg.LogMessage) {
	c.msgs = msgs
}

// StoreWeakRef keeps o alive until the root context is torn down.
// Nil and frozen objects are ignored, and an object is registered at
// most once.
func (c *EvalContext) StoreWeakRef(o Object) {
	if c == nil || o == nil || IsFrozen(o) {
		return
	}
	b := baseOf(o)
	if !b.weakReferenced.CompareAndSwap(false, true) {
		return
	}
	if c.weakRefs == nil {
		panic("filterx: no weak reference registry")
	}
	c.weakRefs.add(o)
}

// Error returns the error slot.
func (c *EvalContext) Error() *Error {
	return &c.err
}

// PushError records an error with an object payload (a new reference
// is taken).  Without a context this does nothing.
func (c *EvalContext) PushError(message string, expr Expr, o Object) {
	if c == nil {
		return
	}
	c.err.clear()
	c.err.Message = message
	c.err.Expr = expr
	if o != nil {
		c.err.payload = &objectPayload{obj: Ref(o)}
	}
}

// PushErrorInfo records an error with a text payload.  With freeInfo
// the slot owns info; without a context, an owned info is released
// right away.
func (c *EvalContext) PushErrorInfo(message string, expr Expr, info *Info, freeInfo bool) {
	if c == nil {
		if freeInfo {
			info.Release()
		}
		return
	}
	c.err.clear()
	c.err.Message = message
	c.err.Expr = expr
	if info != nil {
		c.err.payload = &infoPayload{info: info, owned: freeInfo}
	}
}

// PushErrorf is a convenience for PushErrorInfo with a formatted,
// owned info.
func (c *EvalContext) PushErrorf(message string, expr Expr, format string, args ...interface{}) {
	c.PushErrorInfo(message, expr, NewInfo(format, args...), true)
}

func (c *EvalContext) ClearErrors() {
	if c == nil {
		return
	}
	c.err.clear()
}

// LastError returns the message of the pending error, or "".
func (c *EvalContext) LastError() string {
	if c == nil {
		return ""
	}
	return c.err.Message
}

// FormatLastError renders the pending error as a log field.  Object
// payloads are rendered into the thread's scratch buffer, which the
// next call reuses.
func (c *EvalContext) FormatLastError() zap.Field {
	if c == nil || c.err.Message == "" {
		return zap.String("error", "Error information unset")
	}
	if c.err.payload == nil {
		return zap.String("error", c.err.Message)
	}
	buf := c.scratch()
	if !c.err.payload.extra(buf) {
		buf.WriteString("<unprintable>")
	}
	return zap.String("error", c.err.Message+": "+buf.String())
}

// FormatLastErrorLocation renders where the pending error happened.
func (c *EvalContext) FormatLastErrorLocation() zap.Field {
	if c == nil {
		return FormatLocation(nil)
	}
	return FormatLocation(c.err.Expr)
}

func (c *EvalContext) scratch() *bytes.Buffer {
	var buf *bytes.Buffer
	if c.thread != nil {
		buf = &c.thread.scratch
	} else {
		buf = new(bytes.Buffer)
	}
	buf.Reset()
	return buf
}

// FormatEvalResult renders r as a log field.
func FormatEvalResult(r EvalResult) zap.Field {
	return zap.String("eval result", r.String())
}

func (c *EvalContext) Control() Control {
	return c.control
}

// SetControl records a control request.  Drop also classifies the
// evaluation as dropped.
func (c *EvalContext) SetControl(ctl Control) {
	c.control = ctl
	if ctl == ControlDrop {
		c.err.Result = Drop
	}
}

// GetVariable returns a new reference to a variable's value, or nil if
// it is unset.  Message-tied variables are loaded from the bound
// message on first access.
func (c *EvalContext) GetVariable(name string, messageTied bool) Object {
	if v, have := c.scope.lookupVariable(name); have {
		return Ref(v.value)
	}
	if !messageTied {
		return nil
	}
	msg := c.Message()
	if msg == nil {
		return nil
	}
	raw, t, have := msg.GetValue(name)
	if !have {
		return nil
	}
	o := NewMessageValue(raw, t)
	makeWritable(c, &c.scope).set(name, true, o, false)
	return o
}

// SetVariable assigns a variable (taking a reference to value).
func (c *EvalContext) SetVariable(name string, messageTied bool, value Object) {
	makeWritable(c, &c.scope).set(name, messageTied, value, true)
}

func (c *EvalContext) UnsetVariable(name string, messageTied bool) {
	makeWritable(c, &c.scope).unset(name, messageTied)
}

// IsVariableSet reports whether the variable has a value.
func (c *EvalContext) IsVariableSet(name string, messageTied bool) bool {
	if v, have := c.scope.lookupVariable(name); have {
		return v.value != nil
	}
	if !messageTied || c.Message() == nil {
		return false
	}
	_, _, have := c.Message().GetValue(name)
	return have
}

// MarkDirty flags the scope as needing a sync.
func (c *EvalContext) MarkDirty() {
	makeWritable(c, &c.scope).setDirty()
}

// SyncMessage writes the scope's changes into *pmsg, making the message
// writable first.  Nothing happens without a context or changes.
func SyncMessage(c *EvalContext, pmsg **logmsg.LogMessage) {
	if c == nil || !c.scope.IsDirty() {
		return
	}
	logmsg.MakeWritable(pmsg)
	c.scope.Sync(*pmsg)
}

// PrepareForFork syncs and then write protects the scope so that the
// branches of a fork each get their own copy when they write.
func PrepareForFork(c *EvalContext, pmsg **logmsg.LogMessage) {
	SyncMessage(c, pmsg)
	if c != nil {
		c.scope.writeProtect()
	}
}
