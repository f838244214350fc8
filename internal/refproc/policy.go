package refproc

import "github.com/gc-refproc/pkg/heap"

// SoftRefPolicy decides whether a soft reference is stale enough to clear.
// Setup is called once per collection cycle, before any clearing decision of
// that cycle, so the decision stays consistent across the whole cycle.
type SoftRefPolicy interface {
	Setup()
	ShouldClear(ref *heap.Reference, clockMillis int64) bool
}

const bytesPerMB = 1024 * 1024

// DefaultMsPerMB is the default soft-reference lifetime granted per
// megabyte of free heap.
const DefaultMsPerMB = 1000

// AlwaysClearPolicy clears every discovered soft reference. Used when the
// collector is under enough pressure that softly reachable objects must go.
type AlwaysClearPolicy struct{}

// Setup implements SoftRefPolicy.
func (AlwaysClearPolicy) Setup() {}

// ShouldClear implements SoftRefPolicy.
func (AlwaysClearPolicy) ShouldClear(*heap.Reference, int64) bool { return true }

// LRUMaxHeapPolicy grants soft references a lifetime proportional to the
// free space below the maximum heap capacity: the emptier the heap could
// still become, the longer softly reachable objects linger.
type LRUMaxHeapPolicy struct {
	heap        HeapUsage
	msPerMB     int64
	maxInterval int64
}

// NewLRUMaxHeapPolicy creates the policy; msPerMB <= 0 selects the default.
func NewLRUMaxHeapPolicy(usage HeapUsage, msPerMB int64) *LRUMaxHeapPolicy {
	if msPerMB <= 0 {
		msPerMB = DefaultMsPerMB
	}
	return &LRUMaxHeapPolicy{heap: usage, msPerMB: msPerMB}
}

// Setup snapshots the cycle's staleness interval from headroom below the
// maximum capacity.
func (p *LRUMaxHeapPolicy) Setup() {
	maxHeap := p.heap.MaxCapacity()
	used := p.heap.Used()
	var free uint64
	if maxHeap > used {
		free = maxHeap - used
	}
	p.maxInterval = int64(free/bytesPerMB) * p.msPerMB
	assertf(p.maxInterval >= 0, "negative soft-ref interval %d", p.maxInterval)
}

// ShouldClear clears references not touched within the cycle's interval.
func (p *LRUMaxHeapPolicy) ShouldClear(ref *heap.Reference, clockMillis int64) bool {
	interval := clockMillis - ref.Timestamp()
	assertf(interval >= 0, "soft-ref timestamp %d ahead of clock %d", ref.Timestamp(), clockMillis)
	return interval > p.maxInterval
}

// LRUCurrentHeapPolicy is like LRUMaxHeapPolicy but measures headroom
// against the current capacity, clearing more aggressively when the heap
// has not grown to its maximum.
type LRUCurrentHeapPolicy struct {
	heap        HeapUsage
	msPerMB     int64
	maxInterval int64
}

// NewLRUCurrentHeapPolicy creates the policy; msPerMB <= 0 selects the
// default.
func NewLRUCurrentHeapPolicy(usage HeapUsage, msPerMB int64) *LRUCurrentHeapPolicy {
	if msPerMB <= 0 {
		msPerMB = DefaultMsPerMB
	}
	return &LRUCurrentHeapPolicy{heap: usage, msPerMB: msPerMB}
}

// Setup snapshots the cycle's staleness interval from free space at the
// last collection.
func (p *LRUCurrentHeapPolicy) Setup() {
	capacity := p.heap.Capacity()
	used := p.heap.Used()
	var free uint64
	if capacity > used {
		free = capacity - used
	}
	p.maxInterval = int64(free/bytesPerMB) * p.msPerMB
	assertf(p.maxInterval >= 0, "negative soft-ref interval %d", p.maxInterval)
}

// ShouldClear clears references not touched within the cycle's interval.
func (p *LRUCurrentHeapPolicy) ShouldClear(ref *heap.Reference, clockMillis int64) bool {
	interval := clockMillis - ref.Timestamp()
	assertf(interval >= 0, "soft-ref timestamp %d ahead of clock %d", ref.Timestamp(), clockMillis)
	return interval > p.maxInterval
}
