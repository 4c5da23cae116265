package filterx

// WeakRefs keeps objects alive until the root evaluation context is
// torn down.
//
// This is not a collector.  Objects that are (or may become) part of
// a reference cycle are registered here; the cycle is broken only when
// the root context releases the whole registry.  Nested contexts share
// their root's registry.
type WeakRefs struct {
	objs []Object
}

func newWeakRefs() *WeakRefs {
	return &WeakRefs{objs: make([]Object, 0, 16)}
}

func (w *WeakRefs) add(o Object) {
	w.objs = append(w.objs, Ref(o))
}

// Len returns the number of registered objects.
func (w *WeakRefs) Len() int {
	if w == nil {
		return 0
	}
	return len(w.objs)
}

func (w *WeakRefs) release() {
	for i, o := range w.objs {
		Unref(o)
		w.objs[i] = nil
	}
	w.objs = w.objs[:0]
}

// WeakRef points at an object without owning a reference.  The target
// stays valid while the root context it was set under is alive.
type WeakRef struct {
	obj Object
}

// Set registers o with c's registry and points w at it.
func (w *WeakRef) Set(c *EvalContext, o Object) {
	c.StoreWeakRef(o)
	w.obj = o
}

// Get returns the target, or nil.
func (w *WeakRef) Get() Object {
	return w.obj
}

func (w *WeakRef) Clear() {
	w.obj = nil
}
