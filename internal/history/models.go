// Package history persists per-cycle reference-processing statistics.
package history

import (
	"time"

	"github.com/gc-refproc/internal/refproc"
)

// CycleRun is one recorded processing cycle.
type CycleRun struct {
	ID    int64
	RunID string
	Cycle int

	SoftDiscovered    int
	WeakDiscovered    int
	FinalDiscovered   int
	PhantomDiscovered int

	SoftDropped    int
	WeakDropped    int
	FinalDropped   int
	PhantomDropped int

	Pending int

	SoftWeakFinalMicros int64
	KeepAliveMicros     int64
	PhantomMicros       int64
	TotalMicros         int64

	ProcessingIsMT bool
	ReportKey      string

	CreateTime time.Time
}

// NewCycleRun builds a CycleRun from one cycle's engine statistics.
func NewCycleRun(runID string, cycle int, stats refproc.Stats, pendingCount int, reportKey string) *CycleRun {
	return &CycleRun{
		RunID: runID,
		Cycle: cycle,

		SoftDiscovered:    stats.SoftDiscovered,
		WeakDiscovered:    stats.WeakDiscovered,
		FinalDiscovered:   stats.FinalDiscovered,
		PhantomDiscovered: stats.PhantomDiscovered,

		SoftDropped:    stats.SoftDropped,
		WeakDropped:    stats.WeakDropped,
		FinalDropped:   stats.FinalDropped,
		PhantomDropped: stats.PhantomDropped,

		Pending: pendingCount,

		SoftWeakFinalMicros: stats.SoftWeakFinalDuration.Microseconds(),
		KeepAliveMicros:     stats.KeepAliveDuration.Microseconds(),
		PhantomMicros:       stats.PhantomDuration.Microseconds(),
		TotalMicros:         stats.TotalDuration.Microseconds(),

		ProcessingIsMT: stats.ProcessingIsMT,
		ReportKey:      reportKey,
	}
}

// TotalDiscovered returns the cycle's discovered count across categories.
func (r *CycleRun) TotalDiscovered() int {
	return r.SoftDiscovered + r.WeakDiscovered + r.FinalDiscovered + r.PhantomDiscovered
}

// cycleRunRow represents the cycle_runs table.
type cycleRunRow struct {
	ID    int64  `gorm:"column:id;primaryKey;autoIncrement"`
	RunID string `gorm:"column:run_id;type:varchar(64);index"`
	Cycle int    `gorm:"column:cycle"`

	SoftDiscovered    int `gorm:"column:soft_discovered"`
	WeakDiscovered    int `gorm:"column:weak_discovered"`
	FinalDiscovered   int `gorm:"column:final_discovered"`
	PhantomDiscovered int `gorm:"column:phantom_discovered"`

	SoftDropped    int `gorm:"column:soft_dropped"`
	WeakDropped    int `gorm:"column:weak_dropped"`
	FinalDropped   int `gorm:"column:final_dropped"`
	PhantomDropped int `gorm:"column:phantom_dropped"`

	Pending int `gorm:"column:pending"`

	SoftWeakFinalMicros int64 `gorm:"column:soft_weak_final_micros"`
	KeepAliveMicros     int64 `gorm:"column:keep_alive_micros"`
	PhantomMicros       int64 `gorm:"column:phantom_micros"`
	TotalMicros         int64 `gorm:"column:total_micros"`

	ProcessingIsMT bool   `gorm:"column:processing_is_mt"`
	ReportKey      string `gorm:"column:report_key;type:varchar(512)"`

	CreateTime time.Time `gorm:"column:create_time;autoCreateTime"`
}

// TableName returns the table name for cycleRunRow.
func (cycleRunRow) TableName() string {
	return "cycle_runs"
}

func rowFromCycleRun(run *CycleRun) *cycleRunRow {
	return &cycleRunRow{
		ID:    run.ID,
		RunID: run.RunID,
		Cycle: run.Cycle,

		SoftDiscovered:    run.SoftDiscovered,
		WeakDiscovered:    run.WeakDiscovered,
		FinalDiscovered:   run.FinalDiscovered,
		PhantomDiscovered: run.PhantomDiscovered,

		SoftDropped:    run.SoftDropped,
		WeakDropped:    run.WeakDropped,
		FinalDropped:   run.FinalDropped,
		PhantomDropped: run.PhantomDropped,

		Pending: run.Pending,

		SoftWeakFinalMicros: run.SoftWeakFinalMicros,
		KeepAliveMicros:     run.KeepAliveMicros,
		PhantomMicros:       run.PhantomMicros,
		TotalMicros:         run.TotalMicros,

		ProcessingIsMT: run.ProcessingIsMT,
		ReportKey:      run.ReportKey,

		CreateTime: run.CreateTime,
	}
}

// ToModel converts a table row to a CycleRun.
func (r *cycleRunRow) ToModel() *CycleRun {
	return &CycleRun{
		ID:    r.ID,
		RunID: r.RunID,
		Cycle: r.Cycle,

		SoftDiscovered:    r.SoftDiscovered,
		WeakDiscovered:    r.WeakDiscovered,
		FinalDiscovered:   r.FinalDiscovered,
		PhantomDiscovered: r.PhantomDiscovered,

		SoftDropped:    r.SoftDropped,
		WeakDropped:    r.WeakDropped,
		FinalDropped:   r.FinalDropped,
		PhantomDropped: r.PhantomDropped,

		Pending: r.Pending,

		SoftWeakFinalMicros: r.SoftWeakFinalMicros,
		KeepAliveMicros:     r.KeepAliveMicros,
		PhantomMicros:       r.PhantomMicros,
		TotalMicros:         r.TotalMicros,

		ProcessingIsMT: r.ProcessingIsMT,
		ReportKey:      r.ReportKey,

		CreateTime: r.CreateTime,
	}
}
