package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/gc-refproc/internal/refproc"
	"github.com/gc-refproc/pkg/compression"
)

// CycleReport is the stored JSON document for one processing cycle.
type CycleReport struct {
	RunID     string    `json:"run_id"`
	Cycle     int       `json:"cycle"`
	Timestamp time.Time `json:"timestamp"`

	Discovered CategoryCounts `json:"discovered"`
	Dropped    CategoryCounts `json:"dropped"`
	Pending    int            `json:"pending"`

	SoftWeakFinalMicros int64 `json:"soft_weak_final_micros"`
	KeepAliveMicros     int64 `json:"keep_alive_micros"`
	PhantomMicros       int64 `json:"phantom_micros"`
	TotalMicros         int64 `json:"total_micros"`

	ProcessingIsMT bool `json:"processing_is_mt"`
}

// CategoryCounts holds one count per reference category.
type CategoryCounts struct {
	Soft    int `json:"soft"`
	Weak    int `json:"weak"`
	Final   int `json:"final"`
	Phantom int `json:"phantom"`
}

// NewCycleReport builds a report from one cycle's engine statistics.
func NewCycleReport(runID string, cycle int, stats refproc.Stats, pendingCount int, now time.Time) *CycleReport {
	return &CycleReport{
		RunID:     runID,
		Cycle:     cycle,
		Timestamp: now,

		Discovered: CategoryCounts{
			Soft:    stats.SoftDiscovered,
			Weak:    stats.WeakDiscovered,
			Final:   stats.FinalDiscovered,
			Phantom: stats.PhantomDiscovered,
		},
		Dropped: CategoryCounts{
			Soft:    stats.SoftDropped,
			Weak:    stats.WeakDropped,
			Final:   stats.FinalDropped,
			Phantom: stats.PhantomDropped,
		},
		Pending: pendingCount,

		SoftWeakFinalMicros: stats.SoftWeakFinalDuration.Microseconds(),
		KeepAliveMicros:     stats.KeepAliveDuration.Microseconds(),
		PhantomMicros:       stats.PhantomDuration.Microseconds(),
		TotalMicros:         stats.TotalDuration.Microseconds(),

		ProcessingIsMT: stats.ProcessingIsMT,
	}
}

// Writer renders cycle reports and stores them.
type Writer struct {
	storage    Storage
	compressor compression.Compressor
}

// NewWriter creates a Writer. A nil compressor stores reports uncompressed.
func NewWriter(storage Storage, compressor compression.Compressor) *Writer {
	if compressor == nil {
		compressor = compression.NewNoOpCompressor()
	}
	return &Writer{storage: storage, compressor: compressor}
}

// Write stores one cycle report and returns its storage key.
func (w *Writer) Write(ctx context.Context, rep *CycleReport) (string, error) {
	data, err := json.Marshal(rep)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal cycle report")
	}

	compressed, err := w.compressor.Compress(data)
	if err != nil {
		return "", errors.Wrap(err, "failed to compress cycle report")
	}

	key := Key(rep.RunID, rep.Cycle, w.compressor)
	if err := w.storage.Upload(ctx, key, bytes.NewReader(compressed)); err != nil {
		return "", errors.Wrapf(err, "failed to store cycle report %s", key)
	}

	return key, nil
}

// Read loads one stored cycle report, decompressing as needed.
func (w *Writer) Read(ctx context.Context, key string) (*CycleReport, error) {
	rc, err := w.storage.Download(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load cycle report %s", key)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read cycle report %s", key)
	}

	data, err := compression.AutoDecompress(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decompress cycle report %s", key)
	}

	var rep CycleReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal cycle report %s", key)
	}
	return &rep, nil
}

// Key returns the storage key for one cycle's report.
func Key(runID string, cycle int, compressor compression.Compressor) string {
	key := fmt.Sprintf("%s/cycle-%04d.json", runID, cycle)
	if compressor != nil && compressor.Type() != compression.TypeNone {
		key += "." + compressor.Name()
	}
	return key
}
