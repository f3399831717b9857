package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/heapstream/pkg/config"
	"github.com/heapstream/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string

	logger utils.Logger
	cfg    *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "heapstream",
	Short: "A streaming analyzer for JVM HPROF heap dumps",
	Long: `heapstream analyzes JVM heap dumps in the HPROF binary format in a
single streaming pass, so dumps much larger than available memory can be
summarized quickly.

It reports the top allocated classes by total size, the largest single
instances per class, instance counts, thread stack traces and optionally
every captured string. Results can be printed as tables, written as JSON,
persisted to a database and uploaded to object storage.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		logLevel := utils.ParseLogLevel(cfg.Log.Level)
		if verbose {
			logLevel = utils.LevelDebug
			cfg.Analysis.Debug = true
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stderr)
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
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	binName := BinName()
	rootCmd.Example = `  # Analyze a heap dump
  ` + binName + ` analyze -i ./dump.hprof

  # Top 50 classes, JSON artifact alongside the tables
  ` + binName + ` analyze -i ./dump.hprof --top 50 --json

  # Gzipped dumps work transparently
  ` + binName + ` analyze -i ./dump.hprof.gz

  # Analyze several dumps concurrently and persist run history
  ` + binName + ` analyze -i a.hprof -i b.hprof --persist`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
