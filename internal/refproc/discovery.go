package refproc

import "github.com/gc-refproc/pkg/heap"

// DiscoverReference records ref for deferred processing instead of having
// the tracer follow it immediately. It returns false when the reference
// must be traced as a normal object: the discovery window is closed, the
// reference is outside the collected region, the referent is already known
// reachable, or the soft-reference policy wants the referent kept.
//
// Discovery is idempotent within a cycle: a reference whose discovered
// field is already set is reported as discovered without re-adding it,
// which concurrent marking relies on when it restarts from a checkpoint.
//
// workerID selects the discoverer's own queue during multi-threaded
// discovery and is ignored otherwise.
func (rp *Processor) DiscoverReference(ref *heap.Reference, workerID int) bool {
	if !rp.discoveringRefs {
		return false
	}

	rt := ref.Type()
	if rt == heap.RefFinal && ref.Next() != nil {
		// Don't rediscover references already delivered to finalization.
		return false
	}

	if !rp.subject.IsSubjectToDiscovery(ref) {
		return false
	}

	// Only discover references whose referents are not yet known to be
	// strongly reachable.
	if rp.aliveNonHeader != nil {
		referent := ref.Referent()
		assertf(referent != nil || rp.discoveryIsConcurrent,
			"nil referent in %s during non-concurrent discovery", rt)
		if referent != nil && rp.aliveNonHeader.IsAlive(referent) {
			return false
		}
	}

	if rt == heap.RefSoft {
		// Decide now whether this soft reference is a clearing candidate.
		// The clock only advances between cycles, so the answer cannot
		// change while discovery runs; a "keep" answer means the caller
		// traces the reference as a strong one.
		if !rp.currentPolicy.ShouldClear(ref, rp.softRefClock.read()) {
			return false
		}
	}

	if ref.Discovered() != nil {
		// Already discovered earlier in this cycle. Legitimate only when
		// concurrent marking restarts and re-visits; still counts as
		// discovered so the referent is not kept alive by a normal trace.
		assertf(rp.discoveryIsConcurrent, "re-discovery of %s outside concurrent marking", rt)
		rp.logger.Trace("Already discovered reference (%s ref %p)", rt, ref)
		return true
	}

	list := rp.getDiscoveredList(rt, workerID)
	rp.addToDiscoveredList(list, ref)
	return true
}

// getDiscoveredList selects the queue a discovery inserts into: the
// discoverer's own index during multi-threaded discovery (contention-free),
// round-robin when single-threaded discovery feeds a parallel processing
// pool, queue zero otherwise.
func (rp *Processor) getDiscoveredList(rt heap.ReferenceType, workerID int) *DiscoveredList {
	id := 0
	if rp.discoveryIsMT {
		id = workerID
	} else if rp.processingIsMT() {
		id = rp.nextID()
	}
	assertf(id >= 0 && id < rp.maxNumQueues, "queue index %d out of bounds (max %d)", id, rp.maxNumQueues)
	return &rp.lists[rt][id]
}

// nextID advances the round-robin cursor over the active queues.
func (rp *Processor) nextID() int {
	id := rp.roundRobin
	rp.roundRobin++
	if rp.roundRobin == rp.numQueues {
		rp.roundRobin = 0
	}
	return id
}

// addToDiscoveredList links ref at the head of list. The discovered field
// of the last reference must point to itself, so an insert into an empty
// list self-loops.
func (rp *Processor) addToDiscoveredList(list *DiscoveredList, ref *heap.Reference) {
	currentHead := list.Head()
	nextDiscovered := ref
	if currentHead != nil {
		nextDiscovered = currentHead
	}

	if rp.setDiscoveredLink(ref, nextDiscovered) {
		// The list head is private to this discoverer, so no
		// synchronization is needed beyond winning the link.
		list.AddAsHead(ref)
		rp.logger.Trace("Discovered reference (%s) (%s ref %p)", discoveryModeName(rp.discoveryIsMT), ref.Type(), ref)
	} else {
		rp.logger.Trace("Already discovered reference (mt) (%s ref %p)", ref.Type(), ref)
	}
}

// setDiscoveredLink claims ref for a queue. Multi-threaded discovery races
// through a compare-and-exchange against nil so exactly one thread owns
// each reference; a lost race is a benign no-op. Single-threaded discovery
// stores directly.
func (rp *Processor) setDiscoveredLink(ref, nextDiscovered *heap.Reference) bool {
	if rp.discoveryIsMT {
		return ref.CompareAndSwapDiscovered(nextDiscovered)
	}
	ref.SetDiscovered(nextDiscovered)
	return true
}

func discoveryModeName(mt bool) string {
	if mt {
		return "mt"
	}
	return "st"
}
