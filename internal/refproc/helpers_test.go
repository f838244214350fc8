package refproc

import (
	"sync/atomic"

	"github.com/gc-refproc/pkg/heap"
)

// markTracer is a test tracer over the Object mark bit: liveness is the
// mark bit, keep-alive marks the referent's subgraph immediately.
type markTracer struct{}

func (markTracer) AlivePredicate(int) AlivePredicate {
	return AliveFunc(func(obj *heap.Object) bool { return obj.Marked() })
}

func (markTracer) KeepAliveVisitor(int) KeepAliveVisitor {
	return KeepAliveFunc(func(field *atomic.Pointer[heap.Object]) {
		markSubgraph(field.Load())
	})
}

func (markTracer) CompleteWork(int) {}

func markSubgraph(obj *heap.Object) {
	if obj == nil || !obj.SetMarked() {
		return
	}
	for _, edge := range obj.Edges {
		markSubgraph(edge)
	}
}

// allSubject admits every reference to discovery.
var allSubject = SubjectFunc(func(*heap.Reference) bool { return true })

// buildList threads refs into list in insertion order: the first ref
// becomes the head, the last self-loops.
func buildList(list *DiscoveredList, refs ...*heap.Reference) {
	for i, ref := range refs {
		if i == len(refs)-1 {
			ref.SetDiscovered(ref)
		} else {
			ref.SetDiscovered(refs[i+1])
		}
	}
	if len(refs) > 0 {
		list.SetHead(refs[0])
		list.IncLength(len(refs))
	}
}

// listEntries walks a discovered list head-to-tail.
func listEntries(list *DiscoveredList) []*heap.Reference {
	var out []*heap.Reference
	var prev *heap.Reference
	for ref := list.Head(); ref != nil && ref != prev; {
		out = append(out, ref)
		prev = ref
		ref = ref.Discovered()
	}
	return out
}

// newRefs creates n references of one category, each with a fresh referent.
func newRefs(rt heap.ReferenceType, n int) []*heap.Reference {
	refs := make([]*heap.Reference, n)
	for i := range refs {
		refs[i] = heap.NewReference(rt, heap.NewObject(uint64(i+1)))
	}
	return refs
}

// stubUsage is a fixed-size HeapUsage for policy tests.
type stubUsage struct {
	max, capacity, used uint64
}

func (u stubUsage) MaxCapacity() uint64 { return u.max }
func (u stubUsage) Capacity() uint64    { return u.capacity }
func (u stubUsage) Used() uint64        { return u.used }

// yieldAfter fires its fine-grain signal after n polls.
type yieldAfter struct {
	coarse  bool
	n       int
	polls   int
	aborted bool
}

func (y *yieldAfter) ShouldReturn() bool { return y.coarse }

func (y *yieldAfter) ShouldReturnFineGrain() bool {
	y.polls++
	if y.polls > y.n {
		y.aborted = true
		return true
	}
	return false
}

// neverYield never asks for control back.
type neverYield struct{}

func (neverYield) ShouldReturn() bool          { return false }
func (neverYield) ShouldReturnFineGrain() bool { return false }
