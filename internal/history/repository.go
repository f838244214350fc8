package history

import "context"

// Repository stores and queries recorded cycles.
type Repository interface {
	// SaveCycle inserts one cycle record and fills in its generated ID.
	SaveCycle(ctx context.Context, run *CycleRun) error

	// CyclesByRun returns all cycles of one run in cycle order.
	CyclesByRun(ctx context.Context, runID string) ([]*CycleRun, error)

	// RecentRuns returns the distinct run IDs of the most recent runs,
	// newest first.
	RecentRuns(ctx context.Context, limit int) ([]string, error)

	// RunSummary aggregates one run's cycles.
	RunSummary(ctx context.Context, runID string) (*RunSummary, error)
}

// RunSummary is the aggregate of one run.
type RunSummary struct {
	RunID           string
	Cycles          int
	TotalDiscovered int
	TotalDropped    int
	TotalPending    int
	TotalMicros     int64
}
