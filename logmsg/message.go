// Package logmsg provides the log message that flows through a
// pipeline: a reference-counted, copy-on-write table of typed
// name-value pairs plus receipt metadata and acknowledgement
// tracking.
package logmsg

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// AckType is the outcome reported back to the source of a message.
type AckType int32

const (
	AckProcessed AckType = iota
	AckSuspended
	AckAborted
)

func (a AckType) String() string {
	switch a {
	case AckProcessed:
		return "processed"
	case AckSuspended:
		return "suspended"
	case AckAborted:
		return "aborted"
	}
	return fmt.Sprintf("AckType(%d)", int32(a))
}

// AckFunc is called once all pending acknowledgements of a message
// have arrived.  The AckType is the worst one reported.
type AckFunc func(msg *LogMessage, ack AckType)

// MessageKey is the name of the value holding the message text.
const MessageKey = "MESSAGE"

// LogMessage is a single log record.
//
// A message is shared by reference; callers that hold a message
// beyond the call that gave it to them must Ref it.  Once a message
// is write protected (because it was handed to more than one
// consumer), it must be made writable with MakeWritable before it is
// modified.
type LogMessage struct {
	Payload *NVTable

	// RcptID uniquely identifies this message.
	RcptID uuid.UUID

	// Stamp is the time the event happened, Received is the time
	// we got it.
	Stamp    time.Time
	Received time.Time

	tags map[string]struct{}

	refs           atomic.Int32
	writeProtected atomic.Bool

	original *LogMessage
	ackFunc  AckFunc
	acks     atomic.Int32
	worstAck atomic.Int32
}

// New makes an empty message with one reference.
func New() *LogMessage {
	now := time.Now().UTC()
	m := &LogMessage{
		Payload:  NewNVTable(),
		RcptID:   uuid.New(),
		Stamp:    now,
		Received: now,
	}
	m.refs.Store(1)
	return m
}

// NewWithText makes a message whose MESSAGE is the given text.
func NewWithText(text string) *LogMessage {
	m := New()
	m.SetValue(MessageKey, text, TypeString)
	return m
}

func (m *LogMessage) Ref() *LogMessage {
	m.refs.Add(1)
	return m
}

func (m *LogMessage) Unref() {
	switch n := m.refs.Add(-1); {
	case n == 0:
		m.Payload.Unref()
		m.Payload = nil
		if m.original != nil {
			m.original.Unref()
			m.original = nil
		}
	case n < 0:
		panic("logmsg: message refcount underflow")
	}
}

// Refs returns the current reference count.
func (m *LogMessage) Refs() int32 {
	return m.refs.Load()
}

// WriteProtect marks the message read-only.  There is no way back;
// writers must clone.
func (m *LogMessage) WriteProtect() {
	m.writeProtected.Store(true)
}

func (m *LogMessage) IsWriteProtected() bool {
	return m.writeProtected.Load()
}

// Clone makes a writable copy sharing the payload table.  The payload
// is copied lazily on the first write.  The copy inherits one pending
// acknowledgement of m: acknowledging the copy acknowledges m.
func (m *LogMessage) Clone() *LogMessage {
	c := &LogMessage{
		Payload:  m.Payload.Ref(),
		RcptID:   m.RcptID,
		Stamp:    m.Stamp,
		Received: m.Received,
		original: m.Ref(),
	}
	if len(m.tags) > 0 {
		c.tags = make(map[string]struct{}, len(m.tags))
		for k := range m.tags {
			c.tags[k] = struct{}{}
		}
	}
	c.refs.Store(1)
	c.acks.Store(1)
	return c
}

// MakeWritable replaces *pm with a writable message.  If *pm is write
// protected, it is cloned and the caller's reference to the original
// is released.
func MakeWritable(pm **LogMessage) *LogMessage {
	m := *pm
	if m.IsWriteProtected() {
		c := m.Clone()
		m.Unref()
		*pm = c
	}
	return *pm
}

func (m *LogMessage) mustBeWritable() {
	if m.IsWriteProtected() {
		panic("logmsg: modifying a write protected message " + m.RcptID.String())
	}
	if m.Payload.Shared() {
		p := m.Payload.Clone()
		m.Payload.Unref()
		m.Payload = p
	}
}

// GetValue returns the named value.
func (m *LogMessage) GetValue(name string) (string, ValueType, bool) {
	v, have := m.Payload.Get(name)
	if !have {
		return "", TypeNull, false
	}
	return v.Raw, v.Type, true
}

// Value returns the named value in its stored form.
func (m *LogMessage) Value(name string) (Value, bool) {
	return m.Payload.Get(name)
}

// SetValue stores a value, copying a shared payload table first.
func (m *LogMessage) SetValue(name, raw string, t ValueType) {
	m.mustBeWritable()
	m.Payload.set(name, Value{Type: t, Raw: raw})
}

func (m *LogMessage) UnsetValue(name string) {
	if _, have := m.Payload.Get(name); !have {
		return
	}
	m.mustBeWritable()
	m.Payload.unset(name)
}

// Names lists the value names in sorted order.
func (m *LogMessage) Names() []string {
	return m.Payload.Names()
}

func (m *LogMessage) SetTag(tag string) {
	if m.IsWriteProtected() {
		panic("logmsg: tagging a write protected message")
	}
	if m.tags == nil {
		m.tags = make(map[string]struct{}, 4)
	}
	m.tags[tag] = struct{}{}
}

func (m *LogMessage) HasTag(tag string) bool {
	_, have := m.tags[tag]
	return have
}

// Tags returns the tags in sorted order.
func (m *LogMessage) Tags() []string {
	acc := make([]string, 0, len(m.tags))
	for k := range m.tags {
		acc = append(acc, k)
	}
	sort.Strings(acc)
	return acc
}

// SetAckFunc installs the callback used when all pending
// acknowledgements have arrived.  It also registers the first
// pending acknowledgement.
func (m *LogMessage) SetAckFunc(f AckFunc) {
	m.ackFunc = f
	m.acks.Store(1)
}

// AddAck registers another pending acknowledgement, for example when
// the message is forked to several consumers.
func (m *LogMessage) AddAck() {
	m.acks.Add(1)
}

// PendingAcks returns the number of acknowledgements still expected.
func (m *LogMessage) PendingAcks() int32 {
	return m.acks.Load()
}

// Ack reports one outcome.  The last one triggers the AckFunc (or
// acknowledges the message this one was cloned from).
func (m *LogMessage) Ack(t AckType) {
	for {
		w := m.worstAck.Load()
		if int32(t) <= w || m.worstAck.CompareAndSwap(w, int32(t)) {
			break
		}
	}
	switch n := m.acks.Add(-1); {
	case n > 0:
		return
	case n < 0:
		panic("logmsg: too many acks for " + m.RcptID.String())
	}
	worst := AckType(m.worstAck.Load())
	if m.original != nil {
		m.original.Ack(worst)
		return
	}
	if m.ackFunc != nil {
		m.ackFunc(m, worst)
	}
}
