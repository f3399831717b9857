// Package service orchestrates analyzer runs: it drives the core pipeline
// and handles rendering artifacts, persistence and uploads around it.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/heapstream/internal/hprof"
	"github.com/heapstream/internal/repository"
	"github.com/heapstream/internal/storage"
	"github.com/heapstream/pkg/config"
	"github.com/heapstream/pkg/model"
	"github.com/heapstream/pkg/parallel"
	"github.com/heapstream/pkg/utils"
	"github.com/heapstream/pkg/writer"
)

const tracerName = "github.com/heapstream/internal/service"

// Service runs analyses according to the loaded configuration.
type Service struct {
	cfg    *config.Config
	logger utils.Logger
	repo   repository.RunRepository
	store  storage.Storage
}

// Option configures a Service.
type Option func(*Service)

// WithRepository enables run persistence.
func WithRepository(repo repository.RunRepository) Option {
	return func(s *Service) {
		s.repo = repo
	}
}

// WithStorage enables result artifact uploads.
func WithStorage(store storage.Storage) Option {
	return func(s *Service) {
		s.store = store
	}
}

// New creates a Service.
func New(cfg *config.Config, logger utils.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	s := &Service{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Outcome is the result of analyzing one input file.
type Outcome struct {
	InputPath  string
	RunUUID    string
	Result     *model.Result
	ArtifactID string
	Err        error
}

// AnalyzeAll analyzes every input path, running up to max_worker analyses
// concurrently. Results come back in input order.
func (s *Service) AnalyzeAll(ctx context.Context, paths []string) []Outcome {
	pool := parallel.NewWorkerPool[string, Outcome](
		parallel.DefaultPoolConfig().WithWorkers(s.cfg.Analysis.MaxWorker))

	results := pool.Execute(ctx, paths, func(ctx context.Context, path string) (Outcome, error) {
		return s.Analyze(ctx, path), nil
	})

	outcomes := make([]Outcome, len(results))
	for i, r := range results {
		if r.Error != nil {
			outcomes[i] = Outcome{InputPath: r.Input, Err: r.Error}
			continue
		}
		outcomes[i] = r.Result
	}
	return outcomes
}

// Analyze runs the pipeline on one dump file and applies the configured
// post-processing: JSON artifact, storage upload, run persistence.
func (s *Service) Analyze(ctx context.Context, path string) Outcome {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analyze")
	defer span.End()

	runUUID := newRunUUID()
	outcome := Outcome{InputPath: path, RunUUID: runUUID}
	timer := utils.NewTimer("analyze "+filepath.Base(path), utils.WithLogger(s.debugLogger()))

	var inputBytes int64
	if info, err := os.Stat(path); err == nil {
		inputBytes = info.Size()
	}

	if s.repo != nil {
		err := s.repo.CreateRun(ctx, &model.AnalysisRun{
			RunUUID:    runUUID,
			InputPath:  path,
			InputBytes: inputBytes,
			Status:     model.RunStatusRunning,
			CreateTime: time.Now(),
		})
		if err != nil {
			s.logger.Warn("failed to record run %s: %v", runUUID, err)
		}
	}

	pt := timer.Start("pipeline")
	result, err := hprof.Run(ctx, hprof.Options{
		Path:        path,
		TopN:        s.cfg.Analysis.TopN,
		ListStrings: s.cfg.Analysis.ListStrings,
		ChunkSize:   s.cfg.Analysis.ChunkSize,
		ClassFilter: s.cfg.Analysis.ClassFilter,
		Debug:       s.cfg.Analysis.Debug,
		Logger:      s.logger,
	})
	pt.Stop()
	if err != nil {
		s.failRun(ctx, runUUID, err)
		outcome.Err = err
		return outcome
	}
	outcome.Result = result

	var artifactPath, artifactKey string
	if s.cfg.Analysis.EmitJSON {
		timer.TimeFunc("write artifact", func() {
			artifactPath, err = s.writeArtifact(result, runUUID)
		})
		if err != nil {
			s.failRun(ctx, runUUID, err)
			outcome.Err = err
			return outcome
		}
		outcome.ArtifactID = artifactPath
	}

	if s.store != nil && artifactPath != "" {
		artifactKey = "results/" + filepath.Base(artifactPath)
		timer.TimeFunc("upload artifact", func() {
			err = s.store.UploadFile(ctx, artifactKey, artifactPath)
		})
		if err != nil {
			s.failRun(ctx, runUUID, err)
			outcome.Err = err
			return outcome
		}
		s.logger.Info("uploaded result to %s", s.store.GetURL(artifactKey))
	}

	if s.repo != nil {
		if err := s.repo.CompleteRun(ctx, runUUID, result, artifactKey); err != nil {
			s.logger.Warn("failed to complete run %s: %v", runUUID, err)
		}
	}

	timer.PrintSummary()
	return outcome
}

// writeArtifact serializes the result record as a pretty-printed JSON file.
func (s *Service) writeArtifact(result *model.Result, runUUID string) (string, error) {
	dir := s.cfg.Analysis.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("heapstream-%s.json", runUUID))
	w := writer.NewPrettyJSONWriter[*model.Result]()
	if err := w.WriteToFile(result, path); err != nil {
		return "", err
	}
	s.logger.Info("wrote JSON result to %s", path)
	return path, nil
}

func (s *Service) failRun(ctx context.Context, runUUID string, cause error) {
	if s.repo == nil {
		return
	}
	if err := s.repo.FailRun(ctx, runUUID, cause.Error()); err != nil {
		s.logger.Warn("failed to mark run %s failed: %v", runUUID, err)
	}
}

// debugLogger returns the logger for timing output, or nil to suppress it.
func (s *Service) debugLogger() utils.Logger {
	if s.cfg.Analysis.Debug {
		return s.logger
	}
	return nil
}

// newRunUUID produces a unique id for one analyzer invocation.
func newRunUUID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%d-%s", time.Now().Unix(), hex.EncodeToString(b))
}
