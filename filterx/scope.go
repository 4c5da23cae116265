package filterx

import (
	"bytes"
	"sync/atomic"

	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/util"

	"go.uber.org/zap"
)

// variable is one entry of a Scope.
//
// Message-tied variables mirror a value of the bound message and are
// written back by Sync.  Floating variables live only as long as the
// evaluation.
type variable struct {
	name        string
	messageTied bool

	// value is nil for an unset variable.
	value Object

	// assigned is set when the value changed since the last sync.
	assigned bool
}

// Scope holds the variables of an evaluation lineage.
//
// The exported methods are read-only.  Changes go through an
// EvalContext, which makes the scope writable first (cloning it if it
// is write protected).
type Scope struct {
	refs atomic.Int32

	vars  map[string]*variable
	order []string

	dirty          bool
	writeProtected bool
}

func newScope() *Scope {
	s := &Scope{vars: make(map[string]*variable, 16)}
	s.refs.Store(1)
	return s
}

func (s *Scope) Ref() *Scope {
	s.refs.Add(1)
	return s
}

func (s *Scope) Unref() {
	switch n := s.refs.Add(-1); {
	case n == 0:
		for _, v := range s.vars {
			Unref(v.value)
		}
		s.vars = nil
		s.order = nil
	case n < 0:
		panic("filterx: scope refcount underflow")
	}
}

// Lookup returns a borrowed reference to a set variable.
func (s *Scope) Lookup(name string) (Object, bool) {
	v, have := s.vars[name]
	if !have || v.value == nil {
		return nil, false
	}
	return v.value, true
}

// Has reports whether the variable is known, set or not.
func (s *Scope) Has(name string) bool {
	_, have := s.vars[name]
	return have
}

func (s *Scope) IsDirty() bool {
	return s.dirty
}

func (s *Scope) IsWriteProtected() bool {
	return s.writeProtected
}

func (s *Scope) Len() int {
	return len(s.order)
}

// Foreach calls f for every set variable in creation order until f
// returns false.
func (s *Scope) Foreach(f func(name string, messageTied bool, value Object) bool) {
	for _, name := range s.order {
		v := s.vars[name]
		if v.value == nil {
			continue
		}
		if !f(name, v.messageTied, v.value) {
			return
		}
	}
}

// Sync writes changed message-tied variables into msg, which must be
// writable, and clears the dirty flag.
func (s *Scope) Sync(msg *logmsg.LogMessage) {
	if !s.dirty {
		return
	}
	if s.writeProtected {
		panic("filterx: syncing a write protected scope")
	}
	var buf bytes.Buffer
	for _, name := range s.order {
		v := s.vars[name]
		if !v.messageTied {
			continue
		}
		ch, isContainer := v.value.(container)
		if !v.assigned && !(isContainer && ch.IsModified()) {
			continue
		}
		if v.value == nil {
			msg.UnsetValue(name)
		} else {
			buf.Reset()
			t, ok := v.value.Marshal(&buf)
			if !ok {
				// Left assigned so a later sync retries it.
				util.Error("FILTERX failed to marshal variable into the message",
					zap.String("variable", name),
					zap.String("type", v.value.Type().Name),
					logmsg.EvtTagMsgReference(msg))
				continue
			}
			msg.SetValue(name, buf.String(), t)
		}
		v.assigned = false
		if isContainer {
			ch.ClearModified()
		}
	}
	s.dirty = false
}

func (s *Scope) setDirty() {
	s.dirty = true
}

func (s *Scope) writeProtect() {
	s.writeProtected = true
}

func (s *Scope) mustBeWritable() {
	if s.writeProtected {
		panic("filterx: modifying a write protected scope")
	}
}

func (s *Scope) lookupVariable(name string) (*variable, bool) {
	v, have := s.vars[name]
	return v, have
}

// set stores value (taking a reference).  A nil value unsets.
func (s *Scope) set(name string, messageTied bool, value Object, assigned bool) {
	s.mustBeWritable()
	v, have := s.vars[name]
	if !have {
		v = &variable{name: name, messageTied: messageTied}
		s.vars[name] = v
		s.order = append(s.order, name)
	}
	old := v.value
	v.value = Ref(value)
	Unref(old)
	if assigned {
		v.assigned = true
		s.dirty = true
	}
}

func (s *Scope) unset(name string, messageTied bool) {
	s.mustBeWritable()
	if !messageTied {
		v, have := s.vars[name]
		if !have {
			return
		}
		Unref(v.value)
		delete(s.vars, name)
		for i, n := range s.order {
			if n == name {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		return
	}
	s.set(name, true, nil, true)
}

// clone makes an unprotected copy.  Containers are copied so that
// modifying them on one side of a fork isn't seen on the other.  The
// copies' parent links are registered with c's weak reference
// registry.
func (s *Scope) clone(c *EvalContext) *Scope {
	cs := newScope()
	for _, name := range s.order {
		v := s.vars[name]
		cv := *v
		cv.value = copyObject(c, v.value)
		cs.vars[name] = &cv
		cs.order = append(cs.order, name)
	}
	cs.dirty = s.dirty
	return cs
}

// makeWritable replaces *ps with a writable scope.
func makeWritable(c *EvalContext, ps **Scope) *Scope {
	s := *ps
	if s.writeProtected {
		cs := s.clone(c)
		s.Unref()
		*ps = cs
	}
	return *ps
}

// copyObject returns a new reference to o, deep-copying unfrozen
// containers.  Past MaxDepth (cycles) the original is shared.
func copyObject(c *EvalContext, o Object) Object {
	return copyObjectDepth(c, o, 0, false)
}

// Thaw returns an unfrozen deep copy of a container, or a new
// reference to anything else.
func Thaw(c *EvalContext, o Object) Object {
	return copyObjectDepth(c, o, 0, true)
}

func copyObjectDepth(c *EvalContext, o Object, depth int, thaw bool) Object {
	if o == nil {
		return nil
	}
	if IsFrozen(o) && !(thaw && o.Type().Container) {
		return o
	}
	if depth > MaxDepth {
		return Ref(o)
	}
	switch vv := o.(type) {
	case *Dict:
		d := NewDict()
		for _, k := range vv.keys {
			e := copyObjectDepth(c, vv.values[k], depth+1, thaw)
			d.Set(c, k, e)
			Unref(e)
		}
		d.modified = vv.modified
		return d
	case *List:
		l := NewList()
		for _, e := range vv.elts {
			e = copyObjectDepth(c, e, depth+1, thaw)
			l.Append(c, e)
			Unref(e)
		}
		l.modified = vv.modified
		return l
	}
	return Ref(o)
}
