package refproc

import (
	"context"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gc-refproc/pkg/heap"
	"github.com/gc-refproc/pkg/parallel"
	"github.com/gc-refproc/pkg/utils"
)

// Options configures a Processor.
type Options struct {
	// Subject scopes discovery to the heap region being collected. Required.
	Subject SubjectToDiscovery

	// ProcessingDegree is the maximum number of workers used to process
	// discovered queues. Values below one are treated as one.
	ProcessingDegree int

	// DiscoveryDegree is the maximum number of threads that discover
	// concurrently. Discovery is multi-threaded when it exceeds one.
	DiscoveryDegree int

	// ConcurrentDiscovery marks discovery as running concurrently with the
	// mutator, which permits nil referents and re-discovery after a
	// marking restart.
	ConcurrentDiscovery bool

	// AliveNonHeader, when set, filters out references whose referents are
	// already known reachable at discovery time.
	AliveNonHeader AlivePredicate

	// Pending is the global pending-list sink. Required.
	Pending PendingSink

	// DefaultPolicy is the soft-reference policy used outside of
	// clear-all cycles. Defaults to AlwaysClearPolicy.
	DefaultPolicy SoftRefPolicy

	// RefsPerThread sizes the ergonomic worker count for a phase: one
	// worker per this many discovered references. Zero disables the
	// ergonomic cap. Defaults to 1000 when negative.
	RefsPerThread int

	// Balancing enables queue balancing before parallel phases even when
	// no out-of-range queue forces it.
	Balancing bool

	// Clock supplies the soft-reference timestamp clock. Defaults to the
	// real clock.
	Clock utils.Clock

	// Logger receives the engine's debug and trace output. Defaults to a
	// NullLogger.
	Logger utils.Logger

	// Tracer records one span per processing phase. Defaults to a tracer
	// from the globally registered provider.
	Tracer trace.Tracer
}

// Processor discovers reference objects during heap tracing and resolves
// them at the end of the cycle. One Processor serves one collected heap; it
// is not itself goroutine-safe beyond the documented discovery and
// processing protocols.
type Processor struct {
	subject        SubjectToDiscovery
	aliveNonHeader AlivePredicate
	pending        PendingSink

	discoveringRefs       bool
	discoveryIsMT         bool
	discoveryIsConcurrent bool

	// numQueues is the active processing degree; maxNumQueues the number
	// of queues allocated per category (the discovery degree ceiling).
	numQueues    int
	maxNumQueues int

	// roundRobin is the queue cursor for single-threaded discovery that
	// feeds a multi-threaded processing pool.
	roundRobin int

	lists [heap.NumTypes][]DiscoveredList

	defaultPolicy SoftRefPolicy
	currentPolicy SoftRefPolicy

	softRefClock softRefClock

	refsPerThread int
	balancing     bool

	clock  utils.Clock
	logger utils.Logger
	tracer trace.Tracer
}

// New creates a Processor with all discovered lists empty and discovery
// disabled.
func New(opts Options) *Processor {
	assertf(opts.Subject != nil, "subject-to-discovery predicate must be set")
	assertf(opts.Pending != nil, "pending sink must be set")

	processing := opts.ProcessingDegree
	if processing < 1 {
		processing = 1
	}
	maxQueues := processing
	if opts.DiscoveryDegree > maxQueues {
		maxQueues = opts.DiscoveryDegree
	}

	refsPerThread := opts.RefsPerThread
	if refsPerThread < 0 {
		refsPerThread = 1000
	}

	clock := opts.Clock
	if clock == nil {
		clock = utils.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("refproc")
	}
	policy := opts.DefaultPolicy
	if policy == nil {
		policy = AlwaysClearPolicy{}
	}

	rp := &Processor{
		subject:               opts.Subject,
		aliveNonHeader:        opts.AliveNonHeader,
		pending:               opts.Pending,
		discoveryIsMT:         opts.DiscoveryDegree > 1,
		discoveryIsConcurrent: opts.ConcurrentDiscovery,
		numQueues:             processing,
		maxNumQueues:          maxQueues,
		defaultPolicy:         policy,
		refsPerThread:         refsPerThread,
		balancing:             opts.Balancing,
		clock:                 clock,
		logger:                logger,
		tracer:                tracer,
	}
	for rt := 0; rt < heap.NumTypes; rt++ {
		rp.lists[rt] = make([]DiscoveredList, maxQueues)
	}
	rp.softRefClock.init(clock.NowMillis())
	rp.SetupPolicy(false)
	return rp
}

// SetupPolicy installs the soft-reference policy for the coming cycle and
// lets it snapshot its per-cycle state. alwaysClear overrides the default
// policy for cycles that must shed all softly reachable memory.
func (rp *Processor) SetupPolicy(alwaysClear bool) {
	if alwaysClear {
		rp.currentPolicy = AlwaysClearPolicy{}
	} else {
		rp.currentPolicy = rp.defaultPolicy
	}
	rp.currentPolicy.Setup()
}

// EnableDiscovery opens the discovery window. Calling it while discovery is
// already enabled, or with references still queued, is a contract breach.
func (rp *Processor) EnableDiscovery() {
	assertf(!rp.discoveringRefs, "nested EnableDiscovery call")
	rp.verifyNoReferencesRecorded()
	rp.discoveringRefs = true
}

// DisableDiscovery closes the discovery window.
func (rp *Processor) DisableDiscovery() {
	rp.discoveringRefs = false
}

// DiscoveringRefs reports whether the discovery window is open.
func (rp *Processor) DiscoveringRefs() bool {
	return rp.discoveringRefs
}

// DiscoveryIsConcurrent reports whether discovery runs concurrently with
// the mutator.
func (rp *Processor) DiscoveryIsConcurrent() bool {
	return rp.discoveryIsConcurrent
}

// DiscoveryIsMT reports whether discovery is multi-threaded.
func (rp *Processor) DiscoveryIsMT() bool {
	return rp.discoveryIsMT
}

// NumQueues returns the active processing degree.
func (rp *Processor) NumQueues() int {
	return rp.numQueues
}

// MaxNumQueues returns the number of queues allocated per category.
func (rp *Processor) MaxNumQueues() int {
	return rp.maxNumQueues
}

// processingIsMT reports whether queue processing runs in parallel.
func (rp *Processor) processingIsMT() bool {
	return rp.numQueues > 1
}

// setActiveDegree installs a new processing degree and resets the
// round-robin discovery cursor.
func (rp *Processor) setActiveDegree(v int) {
	assertf(v <= rp.maxNumQueues, "degree %d above maximum %d", v, rp.maxNumQueues)
	rp.numQueues = v
	rp.roundRobin = 0
}

// SoftRefClock returns the current soft-reference timestamp clock in
// milliseconds.
func (rp *Processor) SoftRefClock() int64 {
	return rp.softRefClock.read()
}

// TouchSoftRef stamps a soft reference with the current clock, as the
// mutator side does on every soft-reference access.
func (rp *Processor) TouchSoftRef(ref *heap.Reference) {
	ref.Touch(rp.softRefClock.read())
}

// updateSoftRefClock advances the clock once per cycle, after discovery
// closes and before any clearing decision. The clock never regresses: a
// backwards time source stalls it until real time catches up.
func (rp *Processor) updateSoftRefClock() {
	now := rp.clock.NowMillis()
	if regressed := rp.softRefClock.advance(now); regressed {
		rp.logger.Warn("time warp: soft-ref clock source moved backwards to %d", now)
	}
}

// TotalReferenceCount returns the number of currently queued references of
// one category across all queues.
func (rp *Processor) TotalReferenceCount(rt heap.ReferenceType) int {
	return rp.totalCount(rp.lists[rt])
}

func (rp *Processor) totalCount(lists []DiscoveredList) int {
	total := 0
	for i := range lists {
		total += lists[i].Length()
	}
	return total
}

// verifyNoReferencesRecorded asserts every queue of every category is empty.
func (rp *Processor) verifyNoReferencesRecorded() {
	assertf(!rp.discoveringRefs, "discovery window open during verification")
	for rt := 0; rt < heap.NumTypes; rt++ {
		for i := range rp.lists[rt] {
			assertf(rp.lists[rt][i].IsEmpty(),
				"non-empty %s queue %d at cycle boundary: %d entries",
				heap.ReferenceType(rt), i, rp.lists[rt][i].Length())
		}
	}
}

func (rp *Processor) verifyTotalCountZero(lists []DiscoveredList, kind string) {
	count := rp.totalCount(lists)
	assertf(count == 0, "%ss must be empty but has %d elements", kind, count)
}

// AbandonPartialDiscovery unlinks every queued reference and resets all
// lists, for cycles that abort before processing.
func (rp *Processor) AbandonPartialDiscovery() {
	rp.discoveringRefs = false
	for rt := 0; rt < heap.NumTypes; rt++ {
		rp.logger.Debug("Abandoning %s discovered lists", heap.ReferenceType(rt))
		for i := range rp.lists[rt] {
			rp.clearDiscoveredReferences(&rp.lists[rt][i])
		}
	}
}

// clearDiscoveredReferences walks one list, clearing each entry's
// discovered field, and resets the handle.
func (rp *Processor) clearDiscoveredReferences(list *DiscoveredList) {
	var ref *heap.Reference
	next := list.Head()
	for next != ref {
		ref = next
		next = ref.Discovered()
		ref.SetDiscovered(nil)
	}
	list.Clear()
}

// ProcessDiscoveredReferences resolves everything discovered this cycle:
// closes the discovery window, advances the soft-reference clock, runs the
// three phases in order, verifies all queues drained, and returns the
// cycle's statistics.
func (rp *Processor) ProcessDiscoveredReferences(ctx context.Context, tracerCtx Tracer, workers *parallel.Workers) Stats {
	start := rp.clock.Now()

	ctx, span := rp.tracer.Start(ctx, "ReferenceProcessing")
	defer span.End()

	rp.DisableDiscovery()

	times := NewPhaseTimes()
	times.SetDiscovered(heap.RefSoft, rp.totalCount(rp.lists[heap.RefSoft]))
	times.SetDiscovered(heap.RefWeak, rp.totalCount(rp.lists[heap.RefWeak]))
	times.SetDiscovered(heap.RefFinal, rp.totalCount(rp.lists[heap.RefFinal]))
	times.SetDiscovered(heap.RefPhantom, rp.totalCount(rp.lists[heap.RefPhantom]))

	rp.updateSoftRefClock()

	times.SetProcessingIsMT(rp.processingIsMT())

	rp.processSoftWeakFinalRefs(ctx, tracerCtx, workers, times)
	rp.processFinalKeepAlive(ctx, tracerCtx, workers, times)
	rp.processPhantomRefs(ctx, tracerCtx, workers, times)

	times.SetTotalDuration(rp.clock.Since(start))

	// Every queued reference was either dropped or pushed to pending.
	rp.verifyNoReferencesRecorded()

	return statsFromPhaseTimes(times)
}

// runTask dispatches a phase task: one worker per active queue index when
// processing is parallel, otherwise a single inline pass over every queue.
func (rp *Processor) runTask(ctx context.Context, task parallel.IndexedTask, workers *parallel.Workers) {
	rp.logger.Debug("Executing phase task: queues %d, %s",
		rp.numQueues, threadModelName(rp.processingIsMT()))
	if rp.processingIsMT() {
		assertf(workers != nil, "cannot dispatch multi-threaded without workers")
		workers.Run(ctx, task, rp.numQueues)
	} else {
		for i := 0; i < rp.maxNumQueues; i++ {
			task.Work(ctx, i)
		}
	}
}

func threadModelName(mt bool) string {
	if mt {
		return "multi-threaded"
	}
	return "single-threaded"
}

// startPhaseSpan opens a span for one processing phase.
func (rp *Processor) startPhaseSpan(ctx context.Context, phase Phase, refCount int) (context.Context, trace.Span) {
	return rp.tracer.Start(ctx, phase.String(), trace.WithAttributes(
		attribute.Int("refs.discovered", refCount),
		attribute.Int("refs.queues", rp.numQueues),
	))
}

// logReflist prints per-queue lengths for one category at trace level.
func (rp *Processor) logReflist(prefix string, lists []DiscoveredList, numActive int) {
	if !rp.logger.TraceEnabled() {
		return
	}
	var sb strings.Builder
	total := 0
	for i := 0; i < numActive; i++ {
		sb.WriteString(strconv.Itoa(lists[i].Length()))
		sb.WriteByte(' ')
		total += lists[i].Length()
	}
	rp.logger.Trace("%s%s(%d)", prefix, sb.String(), total)
}
