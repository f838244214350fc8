package refproc

import (
	"context"

	"github.com/gc-refproc/pkg/heap"
	"github.com/gc-refproc/pkg/parallel"
)

// processDiscoveredList is the per-queue walk shared by the SoftWeakFinal
// and Phantom phases. Entries whose referent is already cleared or still
// alive are dropped from the list (a live referent is re-visited so any
// pointer update propagates). The rest are cleared and spliced onto the
// pending chain when doEnqueueAndClear is set; Final entries keep their
// referent intact here because the keep-alive phase revives it next.
// Returns the number of dropped entries.
func (rp *Processor) processDiscoveredList(list *DiscoveredList, isAlive AlivePredicate, keepAlive KeepAliveVisitor, doEnqueueAndClear bool) int {
	iter := NewDiscoveredListIterator(list, keepAlive, isAlive, rp.pending)
	for iter.HasNext() {
		iter.LoadPtrs(rp.discoveryIsConcurrent)
		if iter.Referent() == nil {
			// Referent cleared since discovery; only possible when
			// discovery is concurrent with the mutator.
			rp.logDropped(iter, "cleared")
			iter.Remove()
			iter.MoveToNext()
		} else if iter.IsReferentAlive() {
			// The referent is reachable after all.
			rp.logDropped(iter, "reachable")
			iter.Remove()
			// Re-visit the referent field so the trace observes it; no
			// recursive marking results because the referent was already
			// traversed.
			iter.MakeReferentAlive()
			iter.MoveToNext()
		} else {
			if doEnqueueAndClear {
				iter.ClearReferent()
				iter.Enqueue()
				rp.logEnqueued(iter, "cleared")
			}
			iter.Next()
		}
	}
	if doEnqueueAndClear {
		iter.CompleteEnqueue()
		list.Clear()
	}

	rp.logger.Trace(" Dropped %d active refs out of %d refs in discovered list",
		iter.Removed(), iter.Processed())
	return iter.Removed()
}

// processFinalKeepAliveWork revives every queued Final referent, marks the
// reference delivered by self-looping its next field, and splices it onto
// the pending chain. Nothing is ever removed here: every reference that
// reached this phase is handled exactly once.
func (rp *Processor) processFinalKeepAliveWork(list *DiscoveredList, keepAlive KeepAliveVisitor) int {
	iter := NewDiscoveredListIterator(list, keepAlive, nil, rp.pending)
	for iter.HasNext() {
		iter.LoadPtrs(false)
		// Keep the referent and its followers around for the finalizer.
		iter.MakeReferentAlive()

		assertf(iter.Ref().Next() == nil, "FinalReference already delivered")
		iter.Ref().SelfLoopNext()

		iter.Enqueue()
		rp.logEnqueued(iter, "Final")
		iter.Next()
	}
	iter.CompleteEnqueue()
	list.Clear()

	assertf(iter.Removed() == 0, "keep-alive phase removed %d references", iter.Removed())
	return iter.Removed()
}

func (rp *Processor) logDropped(iter *DiscoveredListIterator, reason string) {
	if rp.logger.TraceEnabled() {
		rp.logger.Trace("Dropping %s reference %p: %s", iter.Ref().Type(), iter.Ref(), reason)
	}
}

func (rp *Processor) logEnqueued(iter *DiscoveredListIterator, reason string) {
	if rp.logger.TraceEnabled() {
		rp.logger.Trace("Enqueue %s reference %p: %s", iter.Ref().Type(), iter.Ref(), reason)
	}
}

// refProcTask carries what every phase task needs: the processor, the
// per-worker closures, and the cycle accumulator.
type refProcTask struct {
	rp     *Processor
	tracer Tracer
	times  *PhaseTimes
}

// processQueue runs the shared walk over one worker's queue of one
// category. Final references are not enqueued and cleared here.
func (t *refProcTask) processQueue(workerID int, rt heap.ReferenceType) {
	doEnqueueAndClear := rt != heap.RefFinal
	removed := t.rp.processDiscoveredList(
		&t.rp.lists[rt][workerID],
		t.tracer.AlivePredicate(workerID),
		t.tracer.KeepAliveVisitor(workerID),
		doEnqueueAndClear,
	)
	t.times.AddDropped(rt, removed)
}

// softWeakFinalTask is the phase-1 worker body: Soft, Weak and Final queues
// at this worker's index, in that order.
type softWeakFinalTask struct {
	refProcTask
}

// Work implements parallel.IndexedTask.
func (t *softWeakFinalTask) Work(_ context.Context, workerID int) {
	t.processQueue(workerID, heap.RefSoft)
	t.processQueue(workerID, heap.RefWeak)
	t.processQueue(workerID, heap.RefFinal)

	// Close the reachable set; needed for tracers whose keep-alive visitor
	// defers its transitive work.
	t.tracer.CompleteWork(workerID)
}

// keepAliveFinalTask is the phase-2 worker body.
type keepAliveFinalTask struct {
	refProcTask
}

// Work implements parallel.IndexedTask.
func (t *keepAliveFinalTask) Work(_ context.Context, workerID int) {
	t.rp.processFinalKeepAliveWork(
		&t.rp.lists[heap.RefFinal][workerID],
		t.tracer.KeepAliveVisitor(workerID),
	)
	t.tracer.CompleteWork(workerID)
}

// phantomTask is the phase-3 worker body.
type phantomTask struct {
	refProcTask
}

// Work implements parallel.IndexedTask.
func (t *phantomTask) Work(_ context.Context, workerID int) {
	t.processQueue(workerID, heap.RefPhantom)
	t.tracer.CompleteWork(workerID)
}

// processSoftWeakFinalRefs drives phase 1. Soft and Weak queues must be
// fully drained by it; Final entries survive for the keep-alive phase.
func (rp *Processor) processSoftWeakFinalRefs(ctx context.Context, tracerCtx Tracer, workers *parallel.Workers, times *PhaseTimes) {
	numSoft := times.Discovered(heap.RefSoft)
	numWeak := times.Discovered(heap.RefWeak)
	numFinal := times.Discovered(heap.RefFinal)
	numTotal := numSoft + numWeak + numFinal

	if numTotal == 0 {
		rp.logger.Debug("Skipped %s: no references", PhaseSoftWeakFinal)
		return
	}

	start := rp.clock.Now()
	ctx, span := rp.startPhaseSpan(ctx, PhaseSoftWeakFinal, numTotal)
	defer span.End()

	adjuster := newMTDegreeAdjuster(rp, PhaseSoftWeakFinal, maxWorkerCount(workers), numTotal)
	defer adjuster.restore()

	if rp.processingIsMT() {
		rp.maybeBalanceQueues(rp.lists[heap.RefSoft])
		rp.maybeBalanceQueues(rp.lists[heap.RefWeak])
		rp.maybeBalanceQueues(rp.lists[heap.RefFinal])
	}

	rp.logReflist("SoftWeakFinalRefsPhase Soft before ", rp.lists[heap.RefSoft], rp.maxNumQueues)
	rp.logReflist("SoftWeakFinalRefsPhase Weak before ", rp.lists[heap.RefWeak], rp.maxNumQueues)
	rp.logReflist("SoftWeakFinalRefsPhase Final before ", rp.lists[heap.RefFinal], rp.maxNumQueues)

	task := &softWeakFinalTask{refProcTask{rp: rp, tracer: tracerCtx, times: times}}
	rp.runTask(ctx, task, workers)

	rp.verifyTotalCountZero(rp.lists[heap.RefSoft], "SoftReference")
	rp.verifyTotalCountZero(rp.lists[heap.RefWeak], "WeakReference")
	rp.logReflist("SoftWeakFinalRefsPhase Final after ", rp.lists[heap.RefFinal], rp.maxNumQueues)

	times.SetPhaseDuration(PhaseSoftWeakFinal, rp.clock.Since(start))
}

// processFinalKeepAlive drives phase 2, reviving surviving Final referents
// and delivering the references to finalization.
func (rp *Processor) processFinalKeepAlive(ctx context.Context, tracerCtx Tracer, workers *parallel.Workers, times *PhaseTimes) {
	numFinal := times.Discovered(heap.RefFinal)

	if numFinal == 0 {
		rp.logger.Debug("Skipped %s: no references", PhaseKeepAliveFinal)
		return
	}

	start := rp.clock.Now()
	ctx, span := rp.startPhaseSpan(ctx, PhaseKeepAliveFinal, numFinal)
	defer span.End()

	adjuster := newMTDegreeAdjuster(rp, PhaseKeepAliveFinal, maxWorkerCount(workers), numFinal)
	defer adjuster.restore()

	if rp.processingIsMT() {
		rp.maybeBalanceQueues(rp.lists[heap.RefFinal])
	}

	// Traverse referents of final references and keep them and their
	// followers alive.
	task := &keepAliveFinalTask{refProcTask{rp: rp, tracer: tracerCtx, times: times}}
	rp.runTask(ctx, task, workers)

	rp.verifyTotalCountZero(rp.lists[heap.RefFinal], "FinalReference")

	times.SetPhaseDuration(PhaseKeepAliveFinal, rp.clock.Since(start))
}

// processPhantomRefs drives phase 3, after keep-alive propagation from
// Final referents has settled.
func (rp *Processor) processPhantomRefs(ctx context.Context, tracerCtx Tracer, workers *parallel.Workers, times *PhaseTimes) {
	numPhantom := times.Discovered(heap.RefPhantom)

	if numPhantom == 0 {
		rp.logger.Debug("Skipped %s: no references", PhasePhantom)
		return
	}

	start := rp.clock.Now()
	ctx, span := rp.startPhaseSpan(ctx, PhasePhantom, numPhantom)
	defer span.End()

	adjuster := newMTDegreeAdjuster(rp, PhasePhantom, maxWorkerCount(workers), numPhantom)
	defer adjuster.restore()

	if rp.processingIsMT() {
		rp.maybeBalanceQueues(rp.lists[heap.RefPhantom])
	}

	rp.logReflist("PhantomRefsPhase Phantom before ", rp.lists[heap.RefPhantom], rp.maxNumQueues)

	task := &phantomTask{refProcTask{rp: rp, tracer: tracerCtx, times: times}}
	rp.runTask(ctx, task, workers)

	rp.verifyTotalCountZero(rp.lists[heap.RefPhantom], "PhantomReference")

	times.SetPhaseDuration(PhasePhantom, rp.clock.Since(start))
}

// maxWorkerCount returns the pool's degree ceiling, one when no pool is
// supplied.
func maxWorkerCount(workers *parallel.Workers) int {
	if workers == nil {
		return 1
	}
	return workers.MaxWorkers()
}
