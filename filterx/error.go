package filterx

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	infoPool = sync.Pool{
		New: func() interface{} { return new(bytes.Buffer) },
	}
	infoOutstanding atomic.Int64
)

// Info is the free-form text attached to an error.  It is either a
// static string or a pooled buffer that must be released.
type Info struct {
	buf  *bytes.Buffer
	text string
}

// NewInfo formats into a pooled buffer.
func NewInfo(format string, args ...interface{}) *Info {
	buf := infoPool.Get().(*bytes.Buffer)
	buf.Reset()
	fmt.Fprintf(buf, format, args...)
	infoOutstanding.Add(1)
	return &Info{buf: buf}
}

// StaticInfo wraps a string that needs no release.
func StaticInfo(text string) *Info {
	return &Info{text: text}
}

func (i *Info) String() string {
	if i == nil {
		return ""
	}
	if i.buf != nil {
		return i.buf.String()
	}
	return i.text
}

// Release returns a pooled buffer.  Releasing twice is harmless.
func (i *Info) Release() {
	if i == nil || i.buf == nil {
		return
	}
	infoPool.Put(i.buf)
	i.buf = nil
	infoOutstanding.Add(-1)
}

// OutstandingInfos returns the number of pooled Info buffers that have
// not been released.
func OutstandingInfos() int64 {
	return infoOutstanding.Load()
}

type errorPayload interface {
	extra(buf *bytes.Buffer) bool
	release()
}

type objectPayload struct {
	obj Object
}

func (p *objectPayload) extra(buf *bytes.Buffer) bool {
	if p.obj.Repr(buf) {
		return true
	}
	buf.Reset()
	if _, ok := p.obj.Marshal(buf); ok {
		return true
	}
	buf.Reset()
	fmt.Fprintf(buf, "<%s>", p.obj.Type().Name)
	return true
}

func (p *objectPayload) release() {
	Unref(p.obj)
	p.obj = nil
}

type infoPayload struct {
	info  *Info
	owned bool
}

func (p *infoPayload) extra(buf *bytes.Buffer) bool {
	buf.WriteString(p.info.String())
	return true
}

func (p *infoPayload) release() {
	if p.owned {
		p.info.Release()
	}
	p.info = nil
}

// Error is the single error slot of an evaluation context.
//
// Message and Expr are borrowed.  The payload (an object or an Info)
// is owned by the slot and released when the slot is cleared.
type Error struct {
	// Result is the explicit classification; Success means none.
	Result EvalResult

	Message string
	Expr    Expr

	payload errorPayload
}

func (e *Error) clear() {
	if e.payload != nil {
		e.payload.release()
	}
	*e = Error{}
}

// Object returns the object payload, if any.
func (e *Error) Object() Object {
	if p, is := e.payload.(*objectPayload); is {
		return p.obj
	}
	return nil
}

// Info returns the text payload, if any.
func (e *Error) Info() string {
	if p, is := e.payload.(*infoPayload); is {
		return p.info.String()
	}
	return ""
}
