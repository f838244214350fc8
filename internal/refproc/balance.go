package refproc

// needBalanceQueues decides whether a category's queues must be rebalanced
// before a parallel phase. Balancing is forced when any queue beyond the
// active processing range is non-empty, since those entries would otherwise
// never be processed; otherwise configuration decides.
func (rp *Processor) needBalanceQueues(lists []DiscoveredList) bool {
	assertf(rp.processingIsMT(), "balancing single-threaded processing")
	if rp.balancing {
		return true
	}
	for i := rp.numQueues; i < rp.maxNumQueues; i++ {
		if !lists[i].IsEmpty() {
			return true
		}
	}
	return false
}

func (rp *Processor) maybeBalanceQueues(lists []DiscoveredList) {
	assertf(rp.processingIsMT(), "balancing single-threaded processing")
	if rp.needBalanceQueues(lists) {
		rp.balanceQueues(lists)
	}
}

// balanceQueues redistributes one category's entries so that only queues
// [0, numQueues) hold work and no active queue exceeds the biased average
// avg = total/numQueues + 1. The bias slightly over-fills early queues
// rather than starving late ones. Entries move as detached chains spliced
// onto the destination head, so the pass is O(total) and loss-less.
func (rp *Processor) balanceQueues(lists []DiscoveredList) {
	rp.logger.Trace("Balance discovered lists")
	rp.logReflist("", lists, rp.maxNumQueues)

	total := 0
	for i := 0; i < rp.maxNumQueues; i++ {
		total += lists[i].Length()
	}
	avg := total/rp.numQueues + 1

	toIdx := 0
	for fromIdx := 0; fromIdx < rp.maxNumQueues; fromIdx++ {
		fromLen := lists[fromIdx].Length()

		var remainingToMove int
		if fromIdx >= rp.numQueues {
			// Beyond the active range: move everything.
			remainingToMove = fromLen
		} else if fromLen > avg {
			remainingToMove = fromLen - avg
		}

		for remainingToMove > 0 {
			assertf(toIdx < rp.numQueues, "balance destination %d beyond active range", toIdx)

			toLen := lists[toIdx].Length()
			if toLen >= avg {
				// This list is full enough; move on to the next.
				toIdx++
				continue
			}
			refsToMove := remainingToMove
			if avg-toLen < refsToMove {
				refsToMove = avg - toLen
			}
			assertf(refsToMove > 0, "empty move in balance pass")

			// Detach the first refsToMove entries from the source by
			// walking the chain to the split point.
			moveHead := lists[fromIdx].Head()
			moveTail := moveHead
			newHead := moveHead
			for j := 0; j < refsToMove; j++ {
				moveTail = newHead
				newHead = newHead.Discovered()
			}

			// Splice the chain onto the destination head. An empty
			// destination turns the chain's tail into a self-loop.
			if lists[toIdx].Head() == nil {
				moveTail.SetDiscovered(moveTail)
			} else {
				moveTail.SetDiscovered(lists[toIdx].Head())
			}
			lists[toIdx].SetHead(moveHead)
			lists[toIdx].IncLength(refsToMove)

			// Remove the chain from the source.
			if moveTail == newHead {
				// The split point was the source's tail.
				lists[fromIdx].SetHead(nil)
			} else {
				lists[fromIdx].SetHead(newHead)
			}
			lists[fromIdx].DecLength(refsToMove)

			remainingToMove -= refsToMove
		}
	}

	rp.logReflist("", lists, rp.numQueues)
	balancedTotal := 0
	for i := 0; i < rp.numQueues; i++ {
		balancedTotal += lists[i].Length()
	}
	assertf(total == balancedTotal, "balancing was incomplete: %d before, %d after", total, balancedTotal)
}
