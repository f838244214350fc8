// Package cmd implements the refsim command line interface.
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gc-refproc/pkg/config"
	"github.com/gc-refproc/pkg/utils"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger utils.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "refsim",
	Short: "A reference-processing engine simulator",
	Long: `refsim drives a garbage collector's deferred-reference processing
engine against synthetic heaps: soft, weak, final and phantom references
are discovered during a simulated trace, processed in phases by a
configurable worker pool, and delivered to a pending list.

Per-cycle statistics can be stored as compressed reports in object
storage and recorded in a cycle-history database.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		level := utils.ParseLogLevel(cfg.Log.Level)
		if verbose {
			level = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(level, os.Stdout)
		utils.SetGlobalLogger(logger)

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	binName := BinName()
	rootCmd.Example = `  # Run the configured number of cycles
  ` + binName + ` run

  # Run with a config file and parallel discovery
  ` + binName + ` run -c ./configs/config.yaml

  # Show recorded runs
  ` + binName + ` history --limit 5`
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
