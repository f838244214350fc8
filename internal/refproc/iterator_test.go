package refproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gc-refproc/pkg/heap"
)

func iterOver(list *DiscoveredList, pending PendingSink) *DiscoveredListIterator {
	tracer := markTracer{}
	return NewDiscoveredListIterator(list, tracer.KeepAliveVisitor(0), tracer.AlivePredicate(0), pending)
}

func TestIterator_WalkInInsertionOrder(t *testing.T) {
	var list DiscoveredList
	refs := newRefs(heap.RefWeak, 3)
	buildList(&list, refs...)

	iter := iterOver(&list, nil)
	var seen []*heap.Reference
	for iter.HasNext() {
		iter.LoadPtrs(false)
		seen = append(seen, iter.Ref())
		iter.Next()
	}

	require.Len(t, seen, 3)
	assert.Same(t, refs[0], seen[0])
	assert.Same(t, refs[1], seen[1])
	assert.Same(t, refs[2], seen[2])
	assert.Equal(t, 3, iter.Processed())
	assert.Equal(t, 0, iter.Removed())
}

func TestIterator_RemoveHead(t *testing.T) {
	var list DiscoveredList
	refs := newRefs(heap.RefWeak, 3)
	buildList(&list, refs...)

	iter := iterOver(&list, nil)
	iter.LoadPtrs(false)
	iter.Remove()
	iter.MoveToNext()

	assert.Equal(t, 2, list.Length())
	assert.Same(t, refs[1], list.Head())
	assert.Nil(t, refs[0].Discovered(), "removed entry must be unlinked")

	got := listEntries(&list)
	require.Len(t, got, 2)
	assert.Same(t, refs[1], got[0])
	assert.Same(t, refs[2], got[1])
}

func TestIterator_RemoveMiddle(t *testing.T) {
	var list DiscoveredList
	refs := newRefs(heap.RefWeak, 3)
	buildList(&list, refs...)

	iter := iterOver(&list, nil)
	iter.LoadPtrs(false)
	iter.Next() // keep refs[0]
	iter.LoadPtrs(false)
	iter.Remove() // drop refs[1]
	iter.MoveToNext()

	assert.Equal(t, 2, list.Length())
	assert.Same(t, refs[2], refs[0].Discovered(), "predecessor must skip removed entry")
}

func TestIterator_RemoveTailSelfLoopsPredecessor(t *testing.T) {
	var list DiscoveredList
	refs := newRefs(heap.RefWeak, 2)
	buildList(&list, refs...)

	iter := iterOver(&list, nil)
	iter.LoadPtrs(false)
	iter.Next() // keep refs[0]
	iter.LoadPtrs(false)
	iter.Remove() // drop tail refs[1]
	iter.MoveToNext()

	assert.False(t, iter.HasNext())
	assert.Equal(t, 1, list.Length())
	assert.Same(t, refs[0], refs[0].Discovered(), "new tail must self-loop")
}

func TestIterator_RemoveOnlyEntryEmptiesList(t *testing.T) {
	var list DiscoveredList
	refs := newRefs(heap.RefWeak, 1)
	buildList(&list, refs...)

	iter := iterOver(&list, nil)
	iter.LoadPtrs(false)
	iter.Remove()
	iter.MoveToNext()

	assert.False(t, iter.HasNext())
	assert.True(t, list.IsEmpty())
	assert.Nil(t, list.Head())
}

func TestIterator_ClearAndMakeAlive(t *testing.T) {
	var list DiscoveredList
	refs := newRefs(heap.RefFinal, 1)
	referent := refs[0].Referent()
	buildList(&list, refs...)

	iter := iterOver(&list, nil)
	iter.LoadPtrs(false)

	iter.MakeReferentAlive()
	assert.True(t, referent.Marked(), "keep-alive must mark the referent")

	iter.ClearReferent()
	assert.Nil(t, refs[0].Referent())
}

func TestIterator_EnqueueSkipsRemovedEntries(t *testing.T) {
	var list DiscoveredList
	var pending heap.PendingList
	refs := newRefs(heap.RefWeak, 3)
	buildList(&list, refs...)

	iter := iterOver(&list, &pending)
	// Keep refs[0] on the output chain.
	iter.LoadPtrs(false)
	iter.Enqueue()
	iter.Next()
	// Drop refs[1].
	iter.LoadPtrs(false)
	iter.Remove()
	iter.MoveToNext()
	// Keep refs[2]; Enqueue must point refs[0] straight at it.
	iter.LoadPtrs(false)
	iter.Enqueue()
	iter.Next()

	assert.Same(t, refs[2], refs[0].Discovered())

	iter.CompleteEnqueue()
	list.Clear()

	got := pending.Drain()
	require.Len(t, got, 2)
	assert.Same(t, refs[0], got[0])
	assert.Same(t, refs[2], got[1])
}

func TestIterator_CompleteEnqueueKeepsNothingSilent(t *testing.T) {
	var list DiscoveredList
	var pending heap.PendingList
	refs := newRefs(heap.RefWeak, 1)
	buildList(&list, refs...)

	iter := iterOver(&list, &pending)
	iter.LoadPtrs(false)
	iter.Remove()
	iter.MoveToNext()
	iter.CompleteEnqueue()

	assert.Equal(t, 0, pending.Len(), "a pass that kept nothing must publish nothing")
}

func TestIterator_CompleteEnqueueChainsOntoPreviousBatch(t *testing.T) {
	var pending heap.PendingList

	var listA DiscoveredList
	refsA := newRefs(heap.RefWeak, 2)
	buildList(&listA, refsA...)
	iter := iterOver(&listA, &pending)
	for iter.HasNext() {
		iter.LoadPtrs(false)
		iter.Enqueue()
		iter.Next()
	}
	iter.CompleteEnqueue()
	listA.Clear()

	var listB DiscoveredList
	refsB := newRefs(heap.RefWeak, 1)
	buildList(&listB, refsB...)
	iter = iterOver(&listB, &pending)
	for iter.HasNext() {
		iter.LoadPtrs(false)
		iter.Enqueue()
		iter.Next()
	}
	iter.CompleteEnqueue()
	listB.Clear()

	got := pending.Drain()
	require.Len(t, got, 3)
	assert.Same(t, refsB[0], got[0], "later batch must sit in front")
	assert.Same(t, refsA[0], got[1])
	assert.Same(t, refsA[1], got[2])
}

func TestIterator_NilReferentOnlyAllowedWhenConcurrent(t *testing.T) {
	var list DiscoveredList
	ref := heap.NewReference(heap.RefWeak, nil)
	buildList(&list, ref)

	iter := iterOver(&list, nil)
	assert.Panics(t, func() { iter.LoadPtrs(false) })

	iter = iterOver(&list, nil)
	assert.NotPanics(t, func() { iter.LoadPtrs(true) })
	assert.Nil(t, iter.Referent())
}
