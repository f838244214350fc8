package history

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// GormRepository implements Repository using GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new GormRepository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// SaveCycle inserts one cycle record.
func (r *GormRepository) SaveCycle(ctx context.Context, run *CycleRun) error {
	row := rowFromCycleRun(run)

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to save cycle %d of run %s: %w", run.Cycle, run.RunID, err)
	}

	run.ID = row.ID
	run.CreateTime = row.CreateTime
	return nil
}

// CyclesByRun returns all cycles of one run in cycle order.
func (r *GormRepository) CyclesByRun(ctx context.Context, runID string) ([]*CycleRun, error) {
	var rows []cycleRunRow

	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("cycle ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles of run %s: %w", runID, err)
	}

	runs := make([]*CycleRun, len(rows))
	for i := range rows {
		runs[i] = rows[i].ToModel()
	}
	return runs, nil
}

// RecentRuns returns the distinct run IDs of the most recent runs.
func (r *GormRepository) RecentRuns(ctx context.Context, limit int) ([]string, error) {
	var runIDs []string

	err := r.db.WithContext(ctx).
		Model(&cycleRunRow{}).
		Distinct("run_id").
		Order("run_id DESC").
		Limit(limit).
		Pluck("run_id", &runIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}

	return runIDs, nil
}

// RunSummary aggregates one run's cycles.
func (r *GormRepository) RunSummary(ctx context.Context, runID string) (*RunSummary, error) {
	var agg struct {
		Cycles          int
		TotalDiscovered int
		TotalDropped    int
		TotalPending    int
		TotalMicros     int64
	}

	err := r.db.WithContext(ctx).
		Model(&cycleRunRow{}).
		Select(
			"COUNT(*) AS cycles, " +
				"COALESCE(SUM(soft_discovered + weak_discovered + final_discovered + phantom_discovered), 0) AS total_discovered, " +
				"COALESCE(SUM(soft_dropped + weak_dropped + final_dropped + phantom_dropped), 0) AS total_dropped, " +
				"COALESCE(SUM(pending), 0) AS total_pending, " +
				"COALESCE(SUM(total_micros), 0) AS total_micros",
		).
		Where("run_id = ?", runID).
		Scan(&agg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize run %s: %w", runID, err)
	}
	if agg.Cycles == 0 {
		return nil, fmt.Errorf("run not found: %s", runID)
	}

	return &RunSummary{
		RunID:           runID,
		Cycles:          agg.Cycles,
		TotalDiscovered: agg.TotalDiscovered,
		TotalDropped:    agg.TotalDropped,
		TotalPending:    agg.TotalPending,
		TotalMicros:     agg.TotalMicros,
	}, nil
}
