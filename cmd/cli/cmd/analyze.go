package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heapstream/internal/render"
	"github.com/heapstream/internal/repository"
	"github.com/heapstream/internal/service"
	"github.com/heapstream/internal/storage"
	"github.com/heapstream/pkg/telemetry"
)

var (
	// Analyze command flags
	inputFiles  []string
	topN        int
	listStrings bool
	emitJSON    bool
	chunkSize   int
	classFilter string
	outputDir   string
	persistRun  bool
	uploadRun   bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one or more HPROF heap dumps",
	Long: `Analyze heap dumps and print a summary of the heap contents.

For each dump the command prints:
  - A file content summary (records and GC sub-records by kind)
  - Thread stack traces
  - The top allocated classes by total size
  - The top classes by largest single instance

Dumps compressed with gzip (.hprof.gz) are inflated on the fly. Multiple
-i flags analyze several dumps concurrently.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringArrayVarP(&inputFiles, "input", "i", nil, "Input HPROF file (repeatable)")
	analyzeCmd.Flags().IntVarP(&topN, "top", "t", 0, "Number of rows in the top tables (default 20)")
	analyzeCmd.Flags().BoolVar(&listStrings, "list-strings", false, "Include every captured string in the output")
	analyzeCmd.Flags().BoolVar(&emitJSON, "json", false, "Write the result record as a JSON artifact")
	analyzeCmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Read buffer size in bytes (default 1 MiB)")
	analyzeCmd.Flags().StringVar(&classFilter, "filter", "", "Only show classes whose name contains this substring")
	analyzeCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory for JSON artifacts (default .)")
	analyzeCmd.Flags().BoolVar(&persistRun, "persist", false, "Record the run and its result in the database")
	analyzeCmd.Flags().BoolVar(&uploadRun, "upload", false, "Upload the JSON artifact to the configured storage")
	_ = analyzeCmd.MarkFlagRequired("input")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	applyFlagOverrides()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx)
	if err != nil {
		logger.Warn("telemetry disabled: %v", err)
	} else {
		defer func() { _ = shutdown(context.Background()) }()
	}

	opts := []service.Option{}
	if persistRun {
		db, err := repository.NewGormDB(&cfg.Database)
		if err != nil {
			return err
		}
		opts = append(opts, service.WithRepository(repository.NewGormRunRepository(db)))
	}
	if uploadRun {
		store, err := storage.New(&cfg.Storage)
		if err != nil {
			return err
		}
		opts = append(opts, service.WithStorage(store))
	}

	svc := service.New(cfg, logger, opts...)
	outcomes := svc.AnalyzeAll(ctx, inputFiles)

	var firstErr error
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			logger.Error("analysis of %s failed: %v", outcome.InputPath, outcome.Err)
			if firstErr == nil {
				firstErr = outcome.Err
			}
			continue
		}
		printResult(outcome)
	}
	return firstErr
}

// applyFlagOverrides layers command-line flags over the loaded config.
func applyFlagOverrides() {
	if topN > 0 {
		cfg.Analysis.TopN = topN
	}
	if listStrings {
		cfg.Analysis.ListStrings = true
	}
	if emitJSON || uploadRun {
		cfg.Analysis.EmitJSON = true
	}
	if chunkSize > 0 {
		cfg.Analysis.ChunkSize = chunkSize
	}
	if classFilter != "" {
		cfg.Analysis.ClassFilter = classFilter
	}
	if outputDir != "" {
		cfg.Analysis.OutputDir = outputDir
	}
	if persistRun {
		cfg.Database.Enabled = true
	}
	if uploadRun {
		cfg.Storage.Enabled = true
	}
}

func printResult(outcome service.Outcome) {
	res := outcome.Result

	if len(inputFiles) > 1 {
		fmt.Printf("\n==== %s ====\n", outcome.InputPath)
	}
	fmt.Print(render.Summary(res))
	fmt.Print(render.Threads(res))
	fmt.Println()
	fmt.Print(render.MemoryUsage(res))
	if dup := render.DuplicateStrings(res); dup != "" {
		fmt.Print(dup)
	}
	if len(res.Strings) > 0 {
		fmt.Print(render.Strings(res))
	}
}
