package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded runs from the history database",
	RunE:  showHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func showHistory(cmd *cobra.Command, args []string) error {
	repo, cleanup, err := newHistoryRepository()
	if err != nil {
		return err
	}
	defer cleanup()
	if repo == nil {
		return fmt.Errorf("no history database configured")
	}

	ctx := cmd.Context()
	runIDs, err := repo.RecentRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runIDs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	for _, runID := range runIDs {
		summary, err := repo.RunSummary(ctx, runID)
		if err != nil {
			logger.Warn("Failed to summarize %s: %v", runID, err)
			continue
		}
		fmt.Printf("%s  cycles=%d discovered=%d dropped=%d delivered=%d processing=%v\n",
			summary.RunID, summary.Cycles, summary.TotalDiscovered,
			summary.TotalDropped, summary.TotalPending,
			time.Duration(summary.TotalMicros)*time.Microsecond)
	}
	return nil
}
