package refproc

import "github.com/gc-refproc/pkg/heap"

// DiscoveredListIterator is a single-pass cursor over one DiscoveredList.
// It supports removing the current reference, keeping its referent alive,
// clearing the referent, and splicing kept references onto the chain that
// CompleteEnqueue finally publishes to the pending list.
//
// The iterator tracks the previous kept reference so that both Remove and
// Enqueue can rewrite the previous link: the list head when no reference has
// been kept yet, the previous reference's discovered field otherwise.
type DiscoveredListIterator struct {
	list *DiscoveredList

	current *heap.Reference
	next    *heap.Reference
	prev    *heap.Reference

	referent *heap.Object

	// first is the original head, kept to catch a cycle that would make
	// this pass non-terminating.
	first *heap.Reference

	keepAlive KeepAliveVisitor
	isAlive   AlivePredicate
	pending   PendingSink

	removed   int
	processed int
}

// NewDiscoveredListIterator positions a fresh cursor at the head of list.
// keepAlive and isAlive may be nil when a pass does not need them.
func NewDiscoveredListIterator(list *DiscoveredList, keepAlive KeepAliveVisitor, isAlive AlivePredicate, pending PendingSink) *DiscoveredListIterator {
	return &DiscoveredListIterator{
		list:      list,
		current:   list.Head(),
		first:     list.Head(),
		keepAlive: keepAlive,
		isAlive:   isAlive,
		pending:   pending,
	}
}

// HasNext reports whether unvisited references remain.
func (it *DiscoveredListIterator) HasNext() bool { return it.current != nil }

// Ref returns the reference under the cursor.
func (it *DiscoveredListIterator) Ref() *heap.Reference { return it.current }

// Referent returns the referent loaded by the last LoadPtrs call.
func (it *DiscoveredListIterator) Referent() *heap.Object { return it.referent }

// Removed returns how many references this pass unlinked.
func (it *DiscoveredListIterator) Removed() int { return it.removed }

// Processed returns how many references the cursor has advanced past.
func (it *DiscoveredListIterator) Processed() int { return it.processed }

// LoadPtrs reads the current reference's discovered link and referent. A nil
// referent is only permitted when discovery ran concurrently with the
// mutator, which may clear referents after discovery; otherwise it indicates
// a protocol violation.
func (it *DiscoveredListIterator) LoadPtrs(allowNullReferent bool) {
	it.next = it.current.Discovered()
	assertf(it.next != nil, "queued reference with nil discovered field")
	it.referent = it.current.Referent()
	assertf(allowNullReferent || it.referent != nil,
		"nil referent in %s during non-concurrent processing", it.current.Type())
}

// IsReferentAlive delegates to the tracer's liveness predicate.
func (it *DiscoveredListIterator) IsReferentAlive() bool {
	return it.isAlive.IsAlive(it.referent)
}

// Remove unlinks the current reference: the previous link skips over it (or
// self-loops the previous reference when removing the tail), the length
// drops by one, and the reference's own discovered field is cleared.
func (it *DiscoveredListIterator) Remove() {
	it.current.SetDiscovered(nil)

	var newNext *heap.Reference
	if it.next == it.current {
		// Removing the tail: the previous reference becomes the tail and
		// must self-loop. If the tail was also the head, prev is nil and
		// the list head is cleared.
		newNext = it.prev
	} else {
		newNext = it.next
	}
	it.setPrevLink(newNext)
	it.removed++
	it.list.DecLength(1)
}

// MakeReferentAlive hands the referent field to the keep-alive visitor,
// causing the referent and its descendants to be traced as reachable.
func (it *DiscoveredListIterator) MakeReferentAlive() {
	it.keepAlive.Visit(it.current.ReferentField())
}

// ClearReferent nulls the referent field.
func (it *DiscoveredListIterator) ClearReferent() {
	it.current.ClearReferent()
}

// Enqueue keeps the current reference on the output chain by pointing the
// previous link directly at it, skipping any references removed in between.
func (it *DiscoveredListIterator) Enqueue() {
	it.setPrevLink(it.current)
}

// CompleteEnqueue publishes the locally built chain: one atomic swap against
// the pending-list head, then the chain's tail is linked to whatever the
// list held before. A pass that kept nothing publishes nothing.
func (it *DiscoveredListIterator) CompleteEnqueue() {
	if it.prev == nil {
		return
	}
	// prev is the last reference kept on the chain; its self-loop (or stale
	// link) is replaced by the previous pending-list head, which may be nil.
	old := it.pending.Swap(it.list.Head())
	it.prev.SetDiscovered(old)
}

// Next keeps the current reference and advances past it.
func (it *DiscoveredListIterator) Next() {
	it.prev = it.current
	it.MoveToNext()
}

// MoveToNext advances past the current reference without keeping it. Must
// follow Remove, which has already rewritten the previous link.
func (it *DiscoveredListIterator) MoveToNext() {
	if it.current == it.next {
		it.current = nil
	} else {
		it.current = it.next
	}
	assertf(it.current == nil || it.current != it.first, "cyclic discovered list")
	it.processed++
}

// setPrevLink writes v through the previous link: the list head before any
// reference has been kept, the previous reference's discovered field after.
func (it *DiscoveredListIterator) setPrevLink(v *heap.Reference) {
	if it.prev == nil {
		it.list.SetHead(v)
	} else {
		it.prev.SetDiscovered(v)
	}
}
