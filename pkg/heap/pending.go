package heap

import "sync/atomic"

// PendingList is the single output chain that all reference categories
// funnel into. The processing engine is the sole producer, pushing whole
// per-queue chains with one atomic swap each; the finalization consumer is
// the sole drainer. Entries are chained through their discovered fields and
// the chain is nil-terminated.
type PendingList struct {
	head atomic.Pointer[Reference]
}

// Swap installs newHead as the list head and returns the previous head.
// The caller links the previous head onto the tail of its batch, so a whole
// chain is published in O(1) without locks.
func (p *PendingList) Swap(newHead *Reference) *Reference {
	return p.head.Swap(newHead)
}

// Head returns the current head without modifying the list.
func (p *PendingList) Head() *Reference {
	return p.head.Load()
}

// Drain detaches the whole chain and returns its entries in list order,
// clearing each entry's discovered field. This is the consumer side of the
// protocol and is not called concurrently with producers.
func (p *PendingList) Drain() []*Reference {
	var out []*Reference
	for ref := p.head.Swap(nil); ref != nil; {
		next := ref.Discovered()
		ref.SetDiscovered(nil)
		out = append(out, ref)
		ref = next
	}
	return out
}

// Len walks the chain and returns its length. Intended for tests and logs.
func (p *PendingList) Len() int {
	n := 0
	for ref := p.head.Load(); ref != nil; ref = ref.Discovered() {
		n++
	}
	return n
}
