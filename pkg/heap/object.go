// Package heap models the managed-heap object graph that reference
// processing operates on: plain objects, the four kinds of reference
// objects, and the pending list that cleared references funnel into.
package heap

import "sync/atomic"

// Object is a managed heap object. The engine never inspects an Object's
// payload; it only passes objects to the tracer's liveness and keep-alive
// closures. The mark word is owned by the tracer.
type Object struct {
	// ID identifies the object in logs and test output.
	ID uint64

	// Edges are the object's outgoing strong references, followed by the
	// tracer when the object is kept alive.
	Edges []*Object

	marked atomic.Bool
}

// NewObject creates an unmarked object with the given identity.
func NewObject(id uint64) *Object {
	return &Object{ID: id}
}

// Marked reports whether the tracer has marked this object reachable.
func (o *Object) Marked() bool {
	return o.marked.Load()
}

// SetMarked sets the mark word. Returns false if the object was already
// marked, so a concurrent tracer claims each object exactly once.
func (o *Object) SetMarked() bool {
	return o.marked.CompareAndSwap(false, true)
}

// ClearMarked resets the mark word between collection cycles.
func (o *Object) ClearMarked() {
	o.marked.Store(false)
}
