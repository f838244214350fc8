// Package refproc implements the deferred-reference processing engine of a
// tracing collector: discovery of soft/weak/final/phantom references during
// heap tracing, balanced multi-worker processing of the discovered queues in
// a fixed category order, and delivery of cleared references to the pending
// list consumed by finalization.
//
// The engine owns no tracing machinery of its own. Liveness queries,
// keep-alive propagation and the scope of discovery are supplied by the
// enclosing tracer through the interfaces below. Contract violations inside
// the engine (non-empty queues across cycle boundaries, lost references
// during balancing, removals in the keep-alive phase) are programming
// errors, not runtime conditions, and panic.
package refproc

import (
	"fmt"
	"sync/atomic"

	"github.com/gc-refproc/pkg/heap"
)

// AlivePredicate answers liveness queries against the current trace. It is
// supplied by the tracer and must be safe for concurrent use when discovery
// runs concurrently with the mutator.
type AlivePredicate interface {
	IsAlive(obj *heap.Object) bool
}

// AliveFunc adapts a function to AlivePredicate.
type AliveFunc func(obj *heap.Object) bool

// IsAlive implements AlivePredicate.
func (f AliveFunc) IsAlive(obj *heap.Object) bool { return f(obj) }

// KeepAliveVisitor re-roots a referent field: visiting it causes the
// referenced subgraph to be traced as reachable. Invoking it is the only
// way a referent survives processing.
type KeepAliveVisitor interface {
	Visit(field *atomic.Pointer[heap.Object])
}

// KeepAliveFunc adapts a function to KeepAliveVisitor.
type KeepAliveFunc func(field *atomic.Pointer[heap.Object])

// Visit implements KeepAliveVisitor.
func (f KeepAliveFunc) Visit(field *atomic.Pointer[heap.Object]) { f(field) }

// SubjectToDiscovery scopes discovery to the portion of the heap currently
// being collected.
type SubjectToDiscovery interface {
	IsSubjectToDiscovery(ref *heap.Reference) bool
}

// SubjectFunc adapts a function to SubjectToDiscovery.
type SubjectFunc func(ref *heap.Reference) bool

// IsSubjectToDiscovery implements SubjectToDiscovery.
func (f SubjectFunc) IsSubjectToDiscovery(ref *heap.Reference) bool { return f(ref) }

// PendingSink is the atomic swap primitive of the global pending list. The
// engine is the sole producer; an external finalization consumer drains it.
type PendingSink interface {
	Swap(newHead *heap.Reference) *heap.Reference
}

// Tracer supplies the per-worker closures for one processing run. Workers
// never share closure state, so implementations may hand out per-worker
// mark stacks.
type Tracer interface {
	// AlivePredicate returns the liveness predicate for a worker.
	AlivePredicate(workerID int) AlivePredicate
	// KeepAliveVisitor returns the keep-alive visitor for a worker.
	KeepAliveVisitor(workerID int) KeepAliveVisitor
	// CompleteWork closes the reachable set for a worker, draining any
	// deferred marking the keep-alive visitor queued up.
	CompleteWork(workerID int)
}

// YieldSignal is the cooperative cancellation contract for preclean passes.
// ShouldReturn is polled between queues, ShouldReturnFineGrain between
// individual list entries.
type YieldSignal interface {
	ShouldReturn() bool
	ShouldReturnFineGrain() bool
}

// HeapUsage reports heap occupancy to the LRU soft-reference policies.
type HeapUsage interface {
	// MaxCapacity is the committed upper bound of the heap in bytes.
	MaxCapacity() uint64
	// Capacity is the current heap capacity in bytes.
	Capacity() uint64
	// Used is the heap usage at the last collection in bytes.
	Used() uint64
}

// assertf panics when an engine invariant is violated.
func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintf("refproc: "+format, args...))
	}
}
