// Package repository persists analysis runs and their results.
package repository

import (
	"context"

	"github.com/heapstream/pkg/model"
)

// RunRepository is the interface for analysis run persistence.
type RunRepository interface {
	// CreateRun records a newly started analysis run.
	CreateRun(ctx context.Context, run *model.AnalysisRun) error

	// CompleteRun marks a run finished and stores its result.
	CompleteRun(ctx context.Context, runUUID string, result *model.Result, resultKey string) error

	// FailRun marks a run failed with a reason.
	FailRun(ctx context.Context, runUUID string, reason string) error

	// GetRunByUUID retrieves a run, including its result when present.
	GetRunByUUID(ctx context.Context, runUUID string) (*model.AnalysisRun, error)

	// ListRecentRuns returns the most recent runs, newest first.
	ListRecentRuns(ctx context.Context, limit int) ([]*model.AnalysisRun, error)
}
