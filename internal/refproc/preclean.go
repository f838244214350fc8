package refproc

import "github.com/gc-refproc/pkg/heap"

// PrecleanDiscoveredReferences is the optional early, concurrent pass over
// already-discovered lists: entries whose referent is already cleared or
// known alive are dropped before the main pause ever sees them. The pass is
// cooperative: the yield signal is polled between queues and between
// individual entries, and the pass returns immediately when asked.
// Categories can be precleaned in any order; nothing here clears referents
// or touches the pending list.
func (rp *Processor) PrecleanDiscoveredReferences(isAlive AlivePredicate, yield YieldSignal) {
	for rt := 0; rt < heap.NumTypes; rt++ {
		lists := rp.lists[rt]
		rp.logReflist(heap.ReferenceType(rt).String()+" before: ", lists, rp.maxNumQueues)
		for i := range lists {
			if yield.ShouldReturn() {
				return
			}
			if rp.precleanDiscoveredReflist(&lists[i], isAlive, yield) {
				rp.logReflist(heap.ReferenceType(rt).String()+" abort: ", lists, rp.maxNumQueues)
				return
			}
		}
		rp.logReflist(heap.ReferenceType(rt).String()+" after: ", lists, rp.maxNumQueues)
	}
}

// precleanDiscoveredReflist walks one list dropping dead-weight entries.
// Returns true if the yield signal aborted the walk.
func (rp *Processor) precleanDiscoveredReflist(list *DiscoveredList, isAlive AlivePredicate, yield YieldSignal) bool {
	iter := NewDiscoveredListIterator(list, nil, isAlive, rp.pending)
	for iter.HasNext() {
		if yield.ShouldReturnFineGrain() {
			return true
		}
		iter.LoadPtrs(true)
		if iter.Referent() == nil {
			rp.logPreclean(iter, "cleared")
			iter.Remove()
			iter.MoveToNext()
		} else if iter.IsReferentAlive() {
			rp.logPreclean(iter, "reachable")
			iter.Remove()
			iter.MoveToNext()
		} else {
			iter.Next()
		}
	}

	if iter.Processed() > 0 {
		rp.logger.Trace(" Dropped %d refs out of %d refs in discovered list", iter.Removed(), iter.Processed())
	}
	return false
}

func (rp *Processor) logPreclean(iter *DiscoveredListIterator, reason string) {
	if rp.logger.TraceEnabled() {
		rp.logger.Trace("Precleaning %s reference %p: %s", iter.Ref().Type(), iter.Ref(), reason)
	}
}
