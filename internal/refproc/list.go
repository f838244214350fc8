package refproc

import "github.com/gc-refproc/pkg/heap"

// DiscoveredList is a thin handle onto a chain of reference objects threaded
// through their own discovered fields. The head of a non-empty list is the
// most recently discovered reference; the tail's discovered field points to
// itself. A list is exclusively owned by one worker at a time: its own
// discoverer while discovery runs, and its assigned processing worker during
// a phase.
type DiscoveredList struct {
	head   *heap.Reference
	length int
}

// Head returns the first reference on the list, or nil if empty.
func (l *DiscoveredList) Head() *heap.Reference { return l.head }

// SetHead replaces the list head without touching the length.
func (l *DiscoveredList) SetHead(ref *heap.Reference) { l.head = ref }

// IsEmpty reports whether the list holds no references.
func (l *DiscoveredList) IsEmpty() bool { return l.head == nil }

// Length returns the number of references on the list.
func (l *DiscoveredList) Length() int { return l.length }

// AddAsHead installs ref as the new head. The caller has already linked
// ref's discovered field at the previous head (or at ref itself for an
// empty list).
func (l *DiscoveredList) AddAsHead(ref *heap.Reference) {
	l.head = ref
	l.length++
}

// IncLength adjusts the length after splicing a chain onto the list.
func (l *DiscoveredList) IncLength(n int) { l.length += n }

// DecLength adjusts the length after unlinking entries.
func (l *DiscoveredList) DecLength(n int) {
	l.length -= n
	assertf(l.length >= 0, "discovered list length went negative: %d", l.length)
}

// Clear resets the handle. It does not touch the chained references; callers
// that need the entries unlinked walk the chain first.
func (l *DiscoveredList) Clear() {
	l.head = nil
	l.length = 0
}
