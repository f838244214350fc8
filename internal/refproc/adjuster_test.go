package refproc

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func adjusterProcessor(processingDegree, refsPerThread int) *Processor {
	return newTestProcessor(Options{
		ProcessingDegree: processingDegree,
		RefsPerThread:    refsPerThread,
	})
}

func TestErgoProcDegree_ScalesWithRefCount(t *testing.T) {
	if runtime.GOMAXPROCS(0) < 3 {
		t.Skip("needs at least 3 procs for the uncapped cases")
	}
	rp := adjusterProcessor(8, 100)

	assert.Equal(t, 1, rp.ergoProcDegree(0, 8, PhaseSoftWeakFinal))
	assert.Equal(t, 1, rp.ergoProcDegree(99, 8, PhaseSoftWeakFinal))
	assert.Equal(t, 2, rp.ergoProcDegree(100, 8, PhaseSoftWeakFinal))
	assert.Equal(t, 3, rp.ergoProcDegree(250, 8, PhaseSoftWeakFinal))
}

func TestErgoProcDegree_CappedByPoolAndQueues(t *testing.T) {
	rp := adjusterProcessor(2, 1)

	// Plenty of refs, but never above the pool degree or the queue count.
	assert.LessOrEqual(t, rp.ergoProcDegree(1000000, 2, PhaseSoftWeakFinal), 2)

	got := rp.ergoProcDegree(1000000, 64, PhaseSoftWeakFinal)
	assert.LessOrEqual(t, got, rp.MaxNumQueues())
}

func TestErgoProcDegree_ZeroRefsPerThreadDisablesCap(t *testing.T) {
	rp := adjusterProcessor(4, 0)

	assert.Equal(t, 4, rp.ergoProcDegree(1, 4, PhaseSoftWeakFinal))
}

func TestErgoProcDegree_KeepAliveAlwaysMax(t *testing.T) {
	rp := adjusterProcessor(4, 1000)

	// Even one Final reference can fan out into a large subgraph.
	assert.Equal(t, 4, rp.ergoProcDegree(1, 4, PhaseKeepAliveFinal))
}

func TestMTDegreeAdjuster_RestoresSavedDegree(t *testing.T) {
	rp := adjusterProcessor(4, 1000)
	assert.Equal(t, 4, rp.NumQueues())

	adjuster := newMTDegreeAdjuster(rp, PhaseSoftWeakFinal, 4, 10)
	assert.Equal(t, 1, rp.NumQueues(), "10 refs at 1000 per thread is single-threaded")

	adjuster.restore()
	assert.Equal(t, 4, rp.NumQueues())
}

func TestMTDegreeAdjuster_ResetsRoundRobinCursor(t *testing.T) {
	rp := adjusterProcessor(4, 0)
	rp.roundRobin = 3

	adjuster := newMTDegreeAdjuster(rp, PhaseSoftWeakFinal, 2, 10)
	assert.Equal(t, 0, rp.roundRobin)
	adjuster.restore()
	assert.Equal(t, 0, rp.roundRobin)
}
