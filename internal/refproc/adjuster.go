package refproc

import "runtime"

// mtDegreeAdjuster installs an ergonomic processing degree for one phase
// and restores the previous degree when the phase ends. Callers pair the
// constructor with a deferred restore so the old degree comes back even if
// the phase panics.
type mtDegreeAdjuster struct {
	rp          *Processor
	savedDegree int
}

func newMTDegreeAdjuster(rp *Processor, phase Phase, maxWorkers int, refCount int) *mtDegreeAdjuster {
	a := &mtDegreeAdjuster{rp: rp, savedDegree: rp.numQueues}
	rp.setActiveDegree(rp.ergoProcDegree(refCount, maxWorkers, phase))
	return a
}

// restore reverts to the degree active before the phase.
func (a *mtDegreeAdjuster) restore() {
	a.rp.setActiveDegree(a.savedDegree)
}

// ergoProcDegree computes the worker count a phase should actually use:
// one worker per refsPerThread discovered references, capped by the pool
// maximum, the processor count, and the queue count. The keep-alive phase
// always uses the maximum, since even a few Final referents can fan out
// into large subgraphs.
func (rp *Processor) ergoProcDegree(refCount, maxWorkers int, phase Phase) int {
	assertf(maxWorkers > 0, "must allow at least one worker")

	degree := maxWorkers
	if phase != PhaseKeepAliveFinal && rp.refsPerThread != 0 {
		threadCount := 1 + refCount/rp.refsPerThread
		if threadCount < degree {
			degree = threadCount
		}
		if procs := runtime.GOMAXPROCS(0); procs < degree {
			degree = procs
		}
	}
	if degree > rp.maxNumQueues {
		degree = rp.maxNumQueues
	}
	return degree
}
