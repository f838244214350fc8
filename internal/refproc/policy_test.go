package refproc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gc-refproc/pkg/heap"
)

func TestAlwaysClearPolicy(t *testing.T) {
	var p AlwaysClearPolicy
	p.Setup()

	ref := heap.NewReference(heap.RefSoft, heap.NewObject(1))
	ref.Touch(5000)
	assert.True(t, p.ShouldClear(ref, 5000))
}

func TestLRUMaxHeapPolicy_IntervalFromMaxHeadroom(t *testing.T) {
	// 64 MB max, 16 MB used: 48 MB free at 1000 ms/MB.
	usage := stubUsage{max: 64 * bytesPerMB, capacity: 32 * bytesPerMB, used: 16 * bytesPerMB}
	p := NewLRUMaxHeapPolicy(usage, 0)
	p.Setup()

	ref := heap.NewReference(heap.RefSoft, heap.NewObject(1))
	ref.Touch(1000)

	assert.False(t, p.ShouldClear(ref, 1000), "just touched")
	assert.False(t, p.ShouldClear(ref, 1000+48000), "exactly at the interval is kept")
	assert.True(t, p.ShouldClear(ref, 1000+48001), "one past the interval clears")
}

func TestLRUCurrentHeapPolicy_IntervalFromCurrentHeadroom(t *testing.T) {
	// Same heap shape, but measured against the 32 MB current capacity:
	// 16 MB free, so the current-heap policy clears sooner.
	usage := stubUsage{max: 64 * bytesPerMB, capacity: 32 * bytesPerMB, used: 16 * bytesPerMB}
	p := NewLRUCurrentHeapPolicy(usage, 0)
	p.Setup()

	ref := heap.NewReference(heap.RefSoft, heap.NewObject(1))
	ref.Touch(0)

	assert.False(t, p.ShouldClear(ref, 16000))
	assert.True(t, p.ShouldClear(ref, 16001))
}

func TestLRUPolicy_FullHeapClearsImmediately(t *testing.T) {
	usage := stubUsage{max: 64 * bytesPerMB, capacity: 64 * bytesPerMB, used: 64 * bytesPerMB}
	p := NewLRUMaxHeapPolicy(usage, 1000)
	p.Setup()

	ref := heap.NewReference(heap.RefSoft, heap.NewObject(1))
	ref.Touch(100)

	assert.False(t, p.ShouldClear(ref, 100), "zero interval keeps a just-touched ref")
	assert.True(t, p.ShouldClear(ref, 101))
}

func TestLRUPolicy_OverCommittedHeapClampsToZero(t *testing.T) {
	// Used above capacity must not produce a negative interval.
	usage := stubUsage{max: 32 * bytesPerMB, capacity: 32 * bytesPerMB, used: 48 * bytesPerMB}
	p := NewLRUMaxHeapPolicy(usage, 1000)
	p.Setup()

	ref := heap.NewReference(heap.RefSoft, heap.NewObject(1))
	ref.Touch(0)
	assert.True(t, p.ShouldClear(ref, 1))
}

func TestLRUPolicy_SetupSnapshotsPerCycle(t *testing.T) {
	usage := &mutableUsage{stubUsage{max: 64 * bytesPerMB, used: 0}}
	p := NewLRUMaxHeapPolicy(usage, 1000)
	p.Setup()

	ref := heap.NewReference(heap.RefSoft, heap.NewObject(1))
	ref.Touch(0)

	// Heap fills up mid-cycle; the decision sticks with the snapshot.
	usage.u.used = 64 * bytesPerMB
	assert.False(t, p.ShouldClear(ref, 1000))

	p.Setup()
	assert.True(t, p.ShouldClear(ref, 1000))
}

func TestLRUPolicy_TimestampAheadOfClockPanics(t *testing.T) {
	p := NewLRUMaxHeapPolicy(stubUsage{max: bytesPerMB}, 1000)
	p.Setup()

	ref := heap.NewReference(heap.RefSoft, heap.NewObject(1))
	ref.Touch(2000)
	assert.Panics(t, func() { p.ShouldClear(ref, 1000) })
}

func TestSetupPolicy_AlwaysClearOverride(t *testing.T) {
	rp := newTestProcessor(Options{DefaultPolicy: keepAllPolicy{}})

	rp.SetupPolicy(true)
	rp.EnableDiscovery()
	soft := heap.NewReference(heap.RefSoft, heap.NewObject(1))
	assert.True(t, rp.DiscoverReference(soft, 0), "clear-all cycles bypass the default policy")
	rp.AbandonPartialDiscovery()

	rp.SetupPolicy(false)
	rp.EnableDiscovery()
	soft = heap.NewReference(heap.RefSoft, heap.NewObject(2))
	assert.False(t, rp.DiscoverReference(soft, 0), "default policy is back next cycle")
}

// mutableUsage lets a test change the reported heap shape between reads.
type mutableUsage struct {
	u stubUsage
}

func (m *mutableUsage) MaxCapacity() uint64 { return m.u.MaxCapacity() }
func (m *mutableUsage) Capacity() uint64    { return m.u.Capacity() }
func (m *mutableUsage) Used() uint64        { return m.u.Used() }
