package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/heapstream/pkg/errors"
	"github.com/heapstream/pkg/model"
)

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db, clock: time.Now}
}

// CreateRun records a newly started analysis run.
func (r *GormRunRepository) CreateRun(ctx context.Context, run *model.AnalysisRun) error {
	row, err := fromModel(run)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to encode run", err)
	}

	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to create run", err)
	}
	return nil
}

// CompleteRun marks a run finished and stores its result.
func (r *GormRunRepository) CompleteRun(ctx context.Context, runUUID string, result *model.Result, resultKey string) error {
	data, err := json.Marshal(result)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to encode result", err)
	}

	now := r.clock()
	res := r.db.WithContext(ctx).
		Model(&AnalysisRunRow{}).
		Where("run_uuid = ?", runUUID).
		Updates(map[string]interface{}{
			"status":     string(model.RunStatusCompleted),
			"result":     JSONField(data),
			"result_key": resultKey,
			"end_time":   &now,
		})

	if res.Error != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to complete run", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.Newf(apperrors.CodeDatabaseError, "run not found: %s", runUUID)
	}
	return nil
}

// FailRun marks a run failed with a reason.
func (r *GormRunRepository) FailRun(ctx context.Context, runUUID string, reason string) error {
	now := r.clock()
	res := r.db.WithContext(ctx).
		Model(&AnalysisRunRow{}).
		Where("run_uuid = ?", runUUID).
		Updates(map[string]interface{}{
			"status":      string(model.RunStatusFailed),
			"status_info": reason,
			"end_time":    &now,
		})

	if res.Error != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to mark run failed", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.Newf(apperrors.CodeDatabaseError, "run not found: %s", runUUID)
	}
	return nil
}

// GetRunByUUID retrieves a run, including its result when present.
func (r *GormRunRepository) GetRunByUUID(ctx context.Context, runUUID string) (*model.AnalysisRun, error) {
	var row AnalysisRunRow

	err := r.db.WithContext(ctx).Where("run_uuid = ?", runUUID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.CodeDatabaseError, "run not found: %s", runUUID)
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get run", err)
	}

	run, err := row.ToModel()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError,
			fmt.Sprintf("failed to decode stored result for %s", runUUID), err)
	}
	return run, nil
}

// ListRecentRuns returns the most recent runs, newest first.
func (r *GormRunRepository) ListRecentRuns(ctx context.Context, limit int) ([]*model.AnalysisRun, error) {
	var rows []AnalysisRunRow

	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to list runs", err)
	}

	runs := make([]*model.AnalysisRun, 0, len(rows))
	for i := range rows {
		run, err := rows[i].ToModel()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to decode stored result", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}
