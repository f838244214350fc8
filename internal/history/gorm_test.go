package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gc-refproc/internal/refproc"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&cycleRunRow{}))
	return db
}

func sampleRun(runID string, cycle int) *CycleRun {
	stats := refproc.Stats{
		SoftDiscovered:    10,
		WeakDiscovered:    20,
		FinalDiscovered:   5,
		PhantomDiscovered: 3,
		SoftDropped:       2,
		WeakDropped:       4,

		SoftWeakFinalDuration: 3 * time.Millisecond,
		KeepAliveDuration:     time.Millisecond,
		PhantomDuration:       500 * time.Microsecond,
		TotalDuration:         5 * time.Millisecond,

		ProcessingIsMT: true,
	}
	return NewCycleRun(runID, cycle, stats, 32, "reports/"+runID)
}

func TestGormRepository_SaveCycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRepository(db)
	ctx := context.Background()

	run := sampleRun("run-1", 0)
	require.NoError(t, repo.SaveCycle(ctx, run))

	assert.NotZero(t, run.ID)
	assert.False(t, run.CreateTime.IsZero())

	got, err := repo.CyclesByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].SoftDiscovered)
	assert.Equal(t, 38, got[0].TotalDiscovered())
	assert.Equal(t, int64(5000), got[0].TotalMicros)
	assert.True(t, got[0].ProcessingIsMT)
	assert.Equal(t, "reports/run-1", got[0].ReportKey)
}

func TestGormRepository_CyclesByRun_Order(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRepository(db)
	ctx := context.Background()

	for _, cycle := range []int{2, 0, 1} {
		require.NoError(t, repo.SaveCycle(ctx, sampleRun("run-1", cycle)))
	}
	require.NoError(t, repo.SaveCycle(ctx, sampleRun("run-2", 0)))

	got, err := repo.CyclesByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, run := range got {
		assert.Equal(t, i, run.Cycle)
		assert.Equal(t, "run-1", run.RunID)
	}
}

func TestGormRepository_RecentRuns(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRepository(db)
	ctx := context.Background()

	for _, runID := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, repo.SaveCycle(ctx, sampleRun(runID, 0)))
		require.NoError(t, repo.SaveCycle(ctx, sampleRun(runID, 1)))
	}

	runs, err := repo.RecentRuns(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-c", "run-b"}, runs)
}

func TestGormRepository_RunSummary(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.SaveCycle(ctx, sampleRun("run-1", 0)))
	require.NoError(t, repo.SaveCycle(ctx, sampleRun("run-1", 1)))

	summary, err := repo.RunSummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Cycles)
	assert.Equal(t, 76, summary.TotalDiscovered)
	assert.Equal(t, 12, summary.TotalDropped)
	assert.Equal(t, 64, summary.TotalPending)
	assert.Equal(t, int64(10000), summary.TotalMicros)

	_, err = repo.RunSummary(ctx, "missing")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}
