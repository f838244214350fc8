// Package sim drives the reference-processing engine against a synthetic
// heap: it fabricates reference populations, plays the collector's part of
// the cycle (discovery, marking, processing) and collects per-cycle
// results.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/gc-refproc/internal/refproc"
	"github.com/gc-refproc/pkg/config"
	"github.com/gc-refproc/pkg/heap"
	"github.com/gc-refproc/pkg/parallel"
	"github.com/gc-refproc/pkg/utils"
)

const bytesPerMB = 1024 * 1024

// CycleResult is the outcome of one simulated collection cycle.
type CycleResult struct {
	Cycle   int
	Stats   refproc.Stats
	Pending int
}

// Simulator owns one engine instance and the synthetic workload driving it.
type Simulator struct {
	simCfg    config.SimulatorConfig
	engineCfg config.EngineConfig

	rp      *refproc.Processor
	workers *parallel.Workers
	pending *heap.PendingList

	rng    *rand.Rand
	logger utils.Logger
	runID  string

	nextObjectID uint64
}

// New creates a Simulator from configuration.
func New(cfg *config.Config, logger utils.Logger) (*Simulator, error) {
	if logger == nil {
		logger = &utils.NullLogger{}
	}

	usage := heapUsage{
		max:      uint64(cfg.Simulator.MaxHeapMB) * bytesPerMB,
		capacity: uint64(cfg.Simulator.CurrentHeapMB) * bytesPerMB,
		used:     uint64(cfg.Simulator.UsedHeapMB) * bytesPerMB,
	}

	policy, err := softPolicy(cfg.Engine, usage)
	if err != nil {
		return nil, err
	}

	pending := &heap.PendingList{}
	rp := refproc.New(refproc.Options{
		Subject:             refproc.SubjectFunc(func(*heap.Reference) bool { return true }),
		ProcessingDegree:    cfg.Engine.ProcessingDegree,
		DiscoveryDegree:     cfg.Engine.DiscoveryDegree,
		ConcurrentDiscovery: cfg.Engine.ConcurrentDiscovery,
		Pending:             pending,
		DefaultPolicy:       policy,
		RefsPerThread:       cfg.Engine.RefsPerThread,
		Balancing:           cfg.Engine.Balancing,
		Logger:              logger,
	})

	maxWorkers := cfg.Engine.ProcessingDegree
	if cfg.Engine.DiscoveryDegree > maxWorkers {
		maxWorkers = cfg.Engine.DiscoveryDegree
	}

	return &Simulator{
		simCfg:    cfg.Simulator,
		engineCfg: cfg.Engine,
		rp:        rp,
		workers:   parallel.NewWorkers(maxWorkers),
		pending:   pending,
		rng:       rand.New(rand.NewSource(cfg.Simulator.Seed)),
		logger:    logger,
		runID:     fmt.Sprintf("run-%d", time.Now().Unix()),
	}, nil
}

// softPolicy builds the configured soft-reference policy.
func softPolicy(cfg config.EngineConfig, usage heapUsage) (refproc.SoftRefPolicy, error) {
	switch cfg.SoftPolicy {
	case "", "always_clear":
		return refproc.AlwaysClearPolicy{}, nil
	case "lru_max":
		return refproc.NewLRUMaxHeapPolicy(usage, cfg.SoftMsPerMB), nil
	case "lru_current":
		return refproc.NewLRUCurrentHeapPolicy(usage, cfg.SoftMsPerMB), nil
	default:
		return nil, fmt.Errorf("unknown soft policy: %s", cfg.SoftPolicy)
	}
}

// RunID identifies this simulator run.
func (s *Simulator) RunID() string {
	return s.runID
}

// Run executes the configured number of cycles and returns their results.
func (s *Simulator) Run(ctx context.Context) ([]CycleResult, error) {
	results := make([]CycleResult, 0, s.simCfg.Cycles)
	for cycle := 0; cycle < s.simCfg.Cycles; cycle++ {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		result := s.RunCycle(ctx, cycle)
		s.logger.Info("cycle %d: discovered %d, pending %d, total %v",
			cycle, result.Stats.TotalDiscovered(), result.Pending, result.Stats.TotalDuration)
		results = append(results, result)
	}
	return results, nil
}

// RunCycle runs one complete collection cycle: population, discovery,
// marking of the live fraction, optional precleaning, and processing.
func (s *Simulator) RunCycle(ctx context.Context, cycle int) CycleResult {
	s.rp.SetupPolicy(false)

	population := s.generatePopulation()

	s.rp.EnableDiscovery()
	s.discover(ctx, population)

	// Marking: the live fraction of referents turns out reachable.
	for _, ref := range population {
		if obj := ref.Referent(); obj != nil && s.rng.Float64() < s.simCfg.LiveFraction {
			Mark(obj)
		}
	}

	if s.engineCfg.Preclean {
		s.rp.PrecleanDiscoveredReferences(graphTracer{}.AlivePredicate(0), noYield{})
	}

	stats := s.rp.ProcessDiscoveredReferences(ctx, graphTracer{}, s.workers)
	pending := s.pending.Drain()

	return CycleResult{Cycle: cycle, Stats: stats, Pending: len(pending)}
}

// generatePopulation fabricates one cycle's reference objects, split evenly
// across the four categories, each referent carrying a small edge fan-out.
// Half of the soft references are touched so LRU policies have both stale
// and fresh candidates.
func (s *Simulator) generatePopulation() []*heap.Reference {
	count := s.simCfg.RefsPerCycle
	if count < heap.NumTypes {
		count = heap.NumTypes
	}

	refs := make([]*heap.Reference, 0, count)
	for i := 0; i < count; i++ {
		rt := heap.ReferenceType(i % heap.NumTypes)
		ref := heap.NewReference(rt, s.newObject(s.simCfg.FanOut))
		if rt == heap.RefSoft && s.rng.Intn(2) == 0 {
			s.rp.TouchSoftRef(ref)
		}
		refs = append(refs, ref)
	}
	return refs
}

// newObject allocates a synthetic object with fanOut leaf children.
func (s *Simulator) newObject(fanOut int) *heap.Object {
	s.nextObjectID++
	obj := heap.NewObject(s.nextObjectID)
	for i := 0; i < fanOut; i++ {
		s.nextObjectID++
		obj.Edges = append(obj.Edges, heap.NewObject(s.nextObjectID))
	}
	return obj
}

// discover feeds the population to the engine, multi-threaded when the
// engine's discovery degree allows it.
func (s *Simulator) discover(ctx context.Context, population []*heap.Reference) {
	degree := s.engineCfg.DiscoveryDegree
	if degree <= 1 {
		for _, ref := range population {
			s.rp.DiscoverReference(ref, 0)
		}
		return
	}

	s.workers.RunFunc(ctx, degree, func(_ context.Context, workerID int) {
		for i := workerID; i < len(population); i += degree {
			s.rp.DiscoverReference(population[i], workerID)
		}
	})
}

// noYield is the yield signal of a simulator that never needs the engine
// to hand control back.
type noYield struct{}

func (noYield) ShouldReturn() bool          { return false }
func (noYield) ShouldReturnFineGrain() bool { return false }
