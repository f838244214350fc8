package refproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gc-refproc/pkg/heap"
	"github.com/gc-refproc/pkg/parallel"
	"github.com/gc-refproc/pkg/utils"
)

func TestProcess_SoftRefsParallelEndToEnd(t *testing.T) {
	pending := &heap.PendingList{}
	rp := New(Options{
		Subject:          allSubject,
		ProcessingDegree: 2,
		RefsPerThread:    2,
		Pending:          pending,
	})
	rp.EnableDiscovery()

	refs := newRefs(heap.RefSoft, 4)
	for _, ref := range refs {
		require.True(t, rp.DiscoverReference(ref, 0))
	}
	require.Equal(t, 4, rp.TotalReferenceCount(heap.RefSoft))

	stats := rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, parallel.NewWorkers(2))

	assert.Equal(t, 4, stats.SoftDiscovered)
	assert.Equal(t, 0, stats.SoftDropped)
	assert.True(t, stats.ProcessingIsMT)

	drained := pending.Drain()
	assert.Len(t, drained, 4)
	for _, ref := range drained {
		assert.Nil(t, ref.Referent(), "pending soft refs must be cleared")
	}
	assert.Equal(t, 0, rp.TotalReferenceCount(heap.RefSoft))
}

func TestProcess_SoftRefsMixedLivenessParallel(t *testing.T) {
	pending := &heap.PendingList{}
	rp := New(Options{
		Subject:          allSubject,
		ProcessingDegree: 2,
		RefsPerThread:    2,
		Pending:          pending,
	})
	rp.EnableDiscovery()

	// Four refs spread round-robin over both queues, referents alternating
	// dead, alive, dead, alive.
	refs := newRefs(heap.RefSoft, 4)
	for i, ref := range refs {
		if i%2 == 1 {
			markSubgraph(ref.Referent())
		}
		require.True(t, rp.DiscoverReference(ref, 0))
	}

	stats := rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, parallel.NewWorkers(2))

	assert.Equal(t, 4, stats.SoftDiscovered)
	assert.Equal(t, 2, stats.SoftDropped)
	assert.True(t, stats.ProcessingIsMT)

	drained := pending.Drain()
	require.Len(t, drained, 2)
	for _, ref := range drained {
		assert.Nil(t, ref.Referent())
	}

	// The live refs stay out of the pending list with their referents intact.
	for i := 1; i < 4; i += 2 {
		assert.NotNil(t, refs[i].Referent())
		assert.NotSame(t, refs[i], refs[i].Next())
	}
}

func TestProcess_FinalRefKeepsReferentAlive(t *testing.T) {
	pending := &heap.PendingList{}
	rp := New(Options{Subject: allSubject, Pending: pending})
	rp.EnableDiscovery()

	child := heap.NewObject(2)
	referent := heap.NewObject(1)
	referent.Edges = []*heap.Object{child}
	ref := heap.NewReference(heap.RefFinal, referent)
	require.True(t, rp.DiscoverReference(ref, 0))

	stats := rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, nil)

	assert.Equal(t, 1, stats.FinalDiscovered)
	assert.Equal(t, 0, stats.FinalDropped)

	// The referent and everything it reaches survive for the finalizer.
	assert.Same(t, referent, ref.Referent())
	assert.True(t, referent.Marked())
	assert.True(t, child.Marked())

	// Delivery is recorded and bars rediscovery in later cycles.
	assert.Same(t, ref, ref.Next())
	rp.EnableDiscovery()
	assert.False(t, rp.DiscoverReference(ref, 0))
	rp.DisableDiscovery()

	drained := pending.Drain()
	require.Len(t, drained, 1)
	assert.Same(t, ref, drained[0])
}

func TestProcess_LiveReferentDropped(t *testing.T) {
	pending := &heap.PendingList{}
	rp := New(Options{Subject: allSubject, Pending: pending})
	rp.EnableDiscovery()

	referent := heap.NewObject(1)
	ref := heap.NewReference(heap.RefWeak, referent)
	require.True(t, rp.DiscoverReference(ref, 0))

	// The referent turns out reachable by the time processing runs.
	markSubgraph(referent)

	stats := rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, nil)

	assert.Equal(t, 1, stats.WeakDiscovered)
	assert.Equal(t, 1, stats.WeakDropped)
	assert.Same(t, referent, ref.Referent(), "dropped refs keep their referent")
	assert.Nil(t, ref.Discovered())
	assert.Empty(t, pending.Drain())
}

func TestProcess_ClearedReferentDroppedUnderConcurrentDiscovery(t *testing.T) {
	pending := &heap.PendingList{}
	rp := New(Options{Subject: allSubject, ConcurrentDiscovery: true, Pending: pending})
	rp.EnableDiscovery()

	ref := heap.NewReference(heap.RefWeak, heap.NewObject(1))
	require.True(t, rp.DiscoverReference(ref, 0))

	// Mutator cleared the reference after discovery.
	ref.ClearReferent()

	stats := rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, nil)

	assert.Equal(t, 1, stats.WeakDropped)
	assert.Empty(t, pending.Drain())
}

func TestProcess_PhantomSeesFinalKeepAlive(t *testing.T) {
	// A Phantom reference to an object a Final reference revives must be
	// dropped, not enqueued: the phantom phase runs only after keep-alive
	// propagation from Final referents has settled.
	pending := &heap.PendingList{}
	rp := New(Options{Subject: allSubject, Pending: pending})
	rp.EnableDiscovery()

	obj := heap.NewObject(1)
	final := heap.NewReference(heap.RefFinal, obj)
	phantom := heap.NewReference(heap.RefPhantom, obj)
	require.True(t, rp.DiscoverReference(final, 0))
	require.True(t, rp.DiscoverReference(phantom, 0))

	stats := rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, nil)

	assert.Equal(t, 0, stats.FinalDropped)
	assert.Equal(t, 1, stats.PhantomDropped)
	assert.Same(t, obj, phantom.Referent())

	drained := pending.Drain()
	require.Len(t, drained, 1)
	assert.Same(t, final, drained[0])
}

func TestProcess_WeakClearedDespiteFinalRevival(t *testing.T) {
	// Weak references are resolved before the keep-alive phase, so a Weak
	// and a Final reference to the same dead object split: the Weak one is
	// cleared and enqueued, the Final one revives the object afterwards.
	pending := &heap.PendingList{}
	rp := New(Options{Subject: allSubject, Pending: pending})
	rp.EnableDiscovery()

	obj := heap.NewObject(1)
	weak := heap.NewReference(heap.RefWeak, obj)
	final := heap.NewReference(heap.RefFinal, obj)
	require.True(t, rp.DiscoverReference(weak, 0))
	require.True(t, rp.DiscoverReference(final, 0))

	rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, nil)

	assert.Nil(t, weak.Referent())
	assert.Same(t, obj, final.Referent())
	assert.True(t, obj.Marked())
	assert.Len(t, pending.Drain(), 2)
}

func TestProcess_EmptyCycle(t *testing.T) {
	pending := &heap.PendingList{}
	rp := New(Options{Subject: allSubject, Pending: pending})
	rp.EnableDiscovery()

	stats := rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, nil)

	assert.Equal(t, 0, stats.TotalDiscovered())
	assert.False(t, stats.ProcessingIsMT)
	assert.Empty(t, pending.Drain())
}

func TestProcess_MixedCategoriesStats(t *testing.T) {
	pending := &heap.PendingList{}
	rp := New(Options{Subject: allSubject, Pending: pending})
	rp.EnableDiscovery()

	liveObj := heap.NewObject(100)
	liveSoft := heap.NewReference(heap.RefSoft, liveObj)
	require.True(t, rp.DiscoverReference(liveSoft, 0))
	for _, ref := range newRefs(heap.RefSoft, 1) {
		require.True(t, rp.DiscoverReference(ref, 0))
	}
	for _, ref := range newRefs(heap.RefWeak, 3) {
		require.True(t, rp.DiscoverReference(ref, 0))
	}
	for _, ref := range newRefs(heap.RefPhantom, 2) {
		require.True(t, rp.DiscoverReference(ref, 0))
	}
	markSubgraph(liveObj)

	stats := rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, nil)

	assert.Equal(t, 2, stats.SoftDiscovered)
	assert.Equal(t, 1, stats.SoftDropped)
	assert.Equal(t, 3, stats.WeakDiscovered)
	assert.Equal(t, 0, stats.WeakDropped)
	assert.Equal(t, 0, stats.FinalDiscovered)
	assert.Equal(t, 2, stats.PhantomDiscovered)
	assert.Equal(t, 6, stats.TotalDiscovered())
	assert.Len(t, pending.Drain(), 5)
}

func TestProcess_DegreeRestoredAfterCycle(t *testing.T) {
	pending := &heap.PendingList{}
	rp := New(Options{
		Subject:          allSubject,
		ProcessingDegree: 4,
		RefsPerThread:    -1,
		Pending:          pending,
	})
	rp.EnableDiscovery()

	for _, ref := range newRefs(heap.RefWeak, 4) {
		require.True(t, rp.DiscoverReference(ref, 0))
	}

	rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, parallel.NewWorkers(4))

	assert.Equal(t, 4, rp.NumQueues(), "degree must be restored after the cycle")
	pending.Drain()
}

func TestSoftRefClock_NeverRegresses(t *testing.T) {
	clock := utils.NewMockClock(time.Unix(0, 0))
	clock.SetMillis(1000)

	pending := &heap.PendingList{}
	rp := New(Options{Subject: allSubject, Pending: pending, Clock: clock})
	require.Equal(t, int64(1000), rp.SoftRefClock())

	// The time source steps backwards; the soft-ref clock must stall.
	clock.SetMillis(400)
	rp.EnableDiscovery()
	rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, nil)
	assert.Equal(t, int64(1000), rp.SoftRefClock())

	// Once real time catches up the clock advances again.
	clock.SetMillis(2500)
	rp.EnableDiscovery()
	rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, nil)
	assert.Equal(t, int64(2500), rp.SoftRefClock())
}

func TestSoftRefClock_AdvancesOncePerCycle(t *testing.T) {
	clock := utils.NewMockClock(time.Unix(0, 0))
	clock.SetMillis(10)

	rp := New(Options{Subject: allSubject, Pending: &heap.PendingList{}, Clock: clock})

	// TouchSoftRef stamps with the cycle clock, not the live time source.
	clock.SetMillis(500)
	ref := heap.NewReference(heap.RefSoft, heap.NewObject(1))
	rp.TouchSoftRef(ref)
	assert.Equal(t, int64(10), ref.Timestamp())

	rp.EnableDiscovery()
	rp.ProcessDiscoveredReferences(context.Background(), markTracer{}, nil)
	assert.Equal(t, int64(500), rp.SoftRefClock())
}
