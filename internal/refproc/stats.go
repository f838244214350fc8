package refproc

import (
	"sync/atomic"
	"time"

	"github.com/gc-refproc/pkg/heap"
)

// Phase identifies one of the three processing phases.
type Phase int

const (
	// PhaseSoftWeakFinal drops or clears Soft, Weak and Final references.
	PhaseSoftWeakFinal Phase = iota
	// PhaseKeepAliveFinal revives Final referents and delivers the
	// references to finalization.
	PhaseKeepAliveFinal
	// PhasePhantom drops or clears Phantom references after finalization
	// reachability has settled.
	PhasePhantom
)

// NumPhases is the number of processing phases.
const NumPhases = 3

// String returns the phase name used in logs and spans.
func (p Phase) String() string {
	switch p {
	case PhaseSoftWeakFinal:
		return "SoftWeakFinalRefsPhase"
	case PhaseKeepAliveFinal:
		return "KeepAliveFinalRefsPhase"
	case PhasePhantom:
		return "PhantomRefsPhase"
	default:
		return "UnknownPhase"
	}
}

// PhaseTimes accumulates the bookkeeping of one processing cycle:
// discovered counts snapshotted when discovery closes, dropped counts
// accumulated by concurrently running workers, and wall-clock durations per
// phase.
type PhaseTimes struct {
	discovered [heap.NumTypes]int
	dropped    [heap.NumTypes]atomic.Int64

	phaseDuration [NumPhases]time.Duration
	totalDuration time.Duration

	processingIsMT bool
}

// NewPhaseTimes creates an empty per-cycle accumulator.
func NewPhaseTimes() *PhaseTimes {
	return &PhaseTimes{}
}

// SetDiscovered records the count of references discovered for a category.
func (pt *PhaseTimes) SetDiscovered(rt heap.ReferenceType, n int) {
	pt.discovered[rt] = n
}

// Discovered returns the discovered count for a category.
func (pt *PhaseTimes) Discovered(rt heap.ReferenceType) int {
	return pt.discovered[rt]
}

// AddDropped accumulates references dropped (removed with referent kept or
// already cleared) for a category. Safe for concurrent workers.
func (pt *PhaseTimes) AddDropped(rt heap.ReferenceType, n int) {
	pt.dropped[rt].Add(int64(n))
}

// Dropped returns the dropped count for a category.
func (pt *PhaseTimes) Dropped(rt heap.ReferenceType) int {
	return int(pt.dropped[rt].Load())
}

// SetPhaseDuration records a phase's wall-clock duration.
func (pt *PhaseTimes) SetPhaseDuration(p Phase, d time.Duration) {
	pt.phaseDuration[p] = d
}

// PhaseDuration returns a phase's wall-clock duration.
func (pt *PhaseTimes) PhaseDuration(p Phase) time.Duration {
	return pt.phaseDuration[p]
}

// SetTotalDuration records the cycle's total processing duration.
func (pt *PhaseTimes) SetTotalDuration(d time.Duration) {
	pt.totalDuration = d
}

// TotalDuration returns the cycle's total processing duration.
func (pt *PhaseTimes) TotalDuration() time.Duration {
	return pt.totalDuration
}

// SetProcessingIsMT records whether the cycle processed queues in parallel.
func (pt *PhaseTimes) SetProcessingIsMT(mt bool) {
	pt.processingIsMT = mt
}

// ProcessingIsMT reports whether the cycle processed queues in parallel.
func (pt *PhaseTimes) ProcessingIsMT() bool {
	return pt.processingIsMT
}

// Stats is the aggregate result of one processing cycle.
type Stats struct {
	SoftDiscovered    int
	WeakDiscovered    int
	FinalDiscovered   int
	PhantomDiscovered int

	SoftDropped    int
	WeakDropped    int
	FinalDropped   int
	PhantomDropped int

	SoftWeakFinalDuration time.Duration
	KeepAliveDuration     time.Duration
	PhantomDuration       time.Duration
	TotalDuration         time.Duration

	ProcessingIsMT bool
}

// TotalDiscovered returns the number of references discovered this cycle
// across all categories.
func (s Stats) TotalDiscovered() int {
	return s.SoftDiscovered + s.WeakDiscovered + s.FinalDiscovered + s.PhantomDiscovered
}

// statsFromPhaseTimes freezes the accumulator into the returned Stats.
func statsFromPhaseTimes(pt *PhaseTimes) Stats {
	return Stats{
		SoftDiscovered:    pt.Discovered(heap.RefSoft),
		WeakDiscovered:    pt.Discovered(heap.RefWeak),
		FinalDiscovered:   pt.Discovered(heap.RefFinal),
		PhantomDiscovered: pt.Discovered(heap.RefPhantom),

		SoftDropped:    pt.Dropped(heap.RefSoft),
		WeakDropped:    pt.Dropped(heap.RefWeak),
		FinalDropped:   pt.Dropped(heap.RefFinal),
		PhantomDropped: pt.Dropped(heap.RefPhantom),

		SoftWeakFinalDuration: pt.PhaseDuration(PhaseSoftWeakFinal),
		KeepAliveDuration:     pt.PhaseDuration(PhaseKeepAliveFinal),
		PhantomDuration:       pt.PhaseDuration(PhasePhantom),
		TotalDuration:         pt.TotalDuration(),

		ProcessingIsMT: pt.ProcessingIsMT(),
	}
}
