package sim

import (
	"sync/atomic"

	"github.com/gc-refproc/internal/refproc"
	"github.com/gc-refproc/pkg/heap"
)

// graphTracer is the simulator's stand-in for a collector's marking
// machinery: liveness is the object mark bit and keep-alive marks the
// referenced subgraph immediately, so no deferred closure step is needed.
type graphTracer struct{}

// AlivePredicate implements refproc.Tracer.
func (graphTracer) AlivePredicate(int) refproc.AlivePredicate {
	return refproc.AliveFunc(func(obj *heap.Object) bool { return obj.Marked() })
}

// KeepAliveVisitor implements refproc.Tracer.
func (graphTracer) KeepAliveVisitor(int) refproc.KeepAliveVisitor {
	return refproc.KeepAliveFunc(func(field *atomic.Pointer[heap.Object]) {
		Mark(field.Load())
	})
}

// CompleteWork implements refproc.Tracer.
func (graphTracer) CompleteWork(int) {}

// Mark marks obj and everything reachable from it. Already-marked objects
// stop the walk, so shared subgraphs are traversed once.
func Mark(obj *heap.Object) {
	if obj == nil || !obj.SetMarked() {
		return
	}
	for _, edge := range obj.Edges {
		Mark(edge)
	}
}

// heapUsage is a fixed heap shape for the soft-reference policies.
type heapUsage struct {
	max      uint64
	capacity uint64
	used     uint64
}

func (u heapUsage) MaxCapacity() uint64 { return u.max }
func (u heapUsage) Capacity() uint64    { return u.capacity }
func (u heapUsage) Used() uint64        { return u.used }
