package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/heapstream/pkg/model"
)

// JSONField stores arbitrary JSON in a single column.
type JSONField []byte

// Value implements driver.Valuer.
func (j JSONField) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = []byte(v)
	default:
		return errors.New("unsupported type for JSONField")
	}
	return nil
}

// AnalysisRunRow represents the analysis_runs table.
type AnalysisRunRow struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement"`
	RunUUID    string     `gorm:"column:run_uuid;type:varchar(64);uniqueIndex"`
	InputPath  string     `gorm:"column:input_path;type:varchar(512)"`
	InputBytes int64      `gorm:"column:input_bytes"`
	Status     string     `gorm:"column:status;type:varchar(16)"`
	StatusInfo string     `gorm:"column:status_info;type:text"`
	ResultKey  string     `gorm:"column:result_key;type:varchar(512)"`
	Result     JSONField  `gorm:"column:result;type:json"`
	CreateTime time.Time  `gorm:"column:create_time;autoCreateTime"`
	EndTime    *time.Time `gorm:"column:end_time"`
}

// TableName returns the table name for AnalysisRunRow.
func (AnalysisRunRow) TableName() string {
	return "analysis_runs"
}

// ToModel converts the row to a model.AnalysisRun.
func (r *AnalysisRunRow) ToModel() (*model.AnalysisRun, error) {
	run := &model.AnalysisRun{
		RunUUID:    r.RunUUID,
		InputPath:  r.InputPath,
		InputBytes: r.InputBytes,
		Status:     model.RunStatus(r.Status),
		StatusInfo: r.StatusInfo,
		ResultKey:  r.ResultKey,
		CreateTime: r.CreateTime,
		EndTime:    r.EndTime,
	}

	if len(r.Result) > 0 {
		var res model.Result
		if err := json.Unmarshal(r.Result, &res); err != nil {
			return nil, err
		}
		run.Result = &res
	}

	return run, nil
}

// fromModel converts a model.AnalysisRun to a row.
func fromModel(run *model.AnalysisRun) (*AnalysisRunRow, error) {
	row := &AnalysisRunRow{
		RunUUID:    run.RunUUID,
		InputPath:  run.InputPath,
		InputBytes: run.InputBytes,
		Status:     string(run.Status),
		StatusInfo: run.StatusInfo,
		ResultKey:  run.ResultKey,
		CreateTime: run.CreateTime,
		EndTime:    run.EndTime,
	}

	if run.Result != nil {
		data, err := json.Marshal(run.Result)
		if err != nil {
			return nil, err
		}
		row.Result = data
	}

	return row, nil
}
