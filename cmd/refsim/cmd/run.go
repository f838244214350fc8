package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gc-refproc/internal/history"
	"github.com/gc-refproc/internal/report"
	"github.com/gc-refproc/internal/sim"
	"github.com/gc-refproc/pkg/compression"
	"github.com/gc-refproc/pkg/telemetry"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run simulated reference-processing cycles",
	Long: `Run the configured number of collection cycles against a synthetic
heap. Each cycle's statistics are printed, stored as a report, and
recorded in the history database when one is configured.`,
	RunE: runSimulation,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx)
	if err != nil {
		logger.Warn("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed: %v", err)
		}
	}()

	simulator, err := sim.New(cfg, logger)
	if err != nil {
		return err
	}

	writer, err := newReportWriter()
	if err != nil {
		return err
	}

	repo, cleanup, err := newHistoryRepository()
	if err != nil {
		return err
	}
	defer cleanup()

	runID := simulator.RunID()
	logger.Info("Starting run %s: %d cycles, %d refs per cycle",
		runID, cfg.Simulator.Cycles, cfg.Simulator.RefsPerCycle)

	results, runErr := simulator.Run(ctx)

	for _, result := range results {
		key := ""
		if writer != nil {
			rep := report.NewCycleReport(runID, result.Cycle, result.Stats, result.Pending, time.Now().UTC())
			key, err = writer.Write(ctx, rep)
			if err != nil {
				logger.Error("Failed to store report for cycle %d: %v", result.Cycle, err)
			}
		}

		if repo != nil {
			run := history.NewCycleRun(runID, result.Cycle, result.Stats, result.Pending, key)
			if err := repo.SaveCycle(ctx, run); err != nil {
				logger.Error("Failed to record cycle %d: %v", result.Cycle, err)
			}
		}
	}

	printSummary(runID, results)
	return runErr
}

func newReportWriter() (*report.Writer, error) {
	storage, err := report.NewStorage(&cfg.Report)
	if err != nil {
		return nil, err
	}

	var comp compression.Compressor
	if cfg.Report.Compress {
		comp = compression.Default()
	}
	return report.NewWriter(storage, comp), nil
}

// newHistoryRepository opens the history database, or returns a nil
// repository when recording is disabled.
func newHistoryRepository() (history.Repository, func(), error) {
	if cfg.Database.Type == "" {
		return nil, func() {}, nil
	}

	db, err := history.NewGormDB(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return history.NewGormRepository(db), cleanup, nil
}

func printSummary(runID string, results []sim.CycleResult) {
	totalDiscovered := 0
	totalPending := 0
	var totalDuration time.Duration
	for _, result := range results {
		totalDiscovered += result.Stats.TotalDiscovered()
		totalPending += result.Pending
		totalDuration += result.Stats.TotalDuration
	}
	logger.Info("Run %s finished: %d cycles, %d discovered, %d delivered, %v processing",
		runID, len(results), totalDiscovered, totalPending, totalDuration)
}
