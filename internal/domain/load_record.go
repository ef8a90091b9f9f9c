package domain

import (
	"encoding/json"
	"time"
)

// LoadMode selects the write semantics of a load against the target table.
type LoadMode string

const (
	// LoadModeInsert truncates the target table on the first chunk and appends every row.
	LoadModeInsert LoadMode = "insert"
	// LoadModeUpdate updates existing rows by key equality; missing keys are errors.
	LoadModeUpdate LoadMode = "update"
	// LoadModeSync upserts: existing keys are updated, new keys inserted.
	LoadModeSync LoadMode = "sync"
	// LoadModeRollback marks ledger entries created by reversing an insert load.
	LoadModeRollback LoadMode = "rollback"
)

// Valid reports whether the mode is one a caller may submit.
func (m LoadMode) Valid() bool {
	switch m {
	case LoadModeInsert, LoadModeUpdate, LoadModeSync:
		return true
	}
	return false
}

// LoadStatus is the ledger entry lifecycle state.
type LoadStatus string

const (
	LoadStatusPending    LoadStatus = "pending"
	LoadStatusProcessing LoadStatus = "processing"
	LoadStatusCompleted  LoadStatus = "completed"
	LoadStatusFailed     LoadStatus = "failed"
)

// RollbackInfo is the descriptor captured at load time that makes an
// insert-mode load reversible. Immutable once written.
type RollbackInfo struct {
	Timestamp    time.Time `json:"timestamp"`
	Mode         LoadMode  `json:"mode"`
	TargetTable  string    `json:"target_table"`
	InsertedRows int       `json:"inserted_rows"`
	UpdatedRows  int       `json:"updated_rows"`
	// InsertedIDs holds the explicit row identifiers captured during the
	// load. When empty, rollback falls back to the CutoffTime heuristic.
	InsertedIDs []int64 `json:"inserted_ids,omitempty"`
	// CutoffTime deletes rows created at or after the load start. This can
	// over-delete if unrelated inserts ran concurrently.
	CutoffTime *time.Time `json:"cutoff_time,omitempty"`
}

// LoadRecord is the durable ledger entry for one load attempt.
// Created when a job begins processing, updated as chunks complete,
// finalized exactly once.
type LoadRecord struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	JobID         string     `gorm:"index" json:"job_id"`
	ConfigName    string     `json:"config_name"`
	SourceFile    string     `json:"source_file"`
	TargetTable   string     `gorm:"index" json:"target_table"`
	Mode          LoadMode   `json:"mode"`
	TotalRows     int        `gorm:"default:0" json:"total_rows"`
	InsertedRows  int        `gorm:"default:0" json:"inserted_rows"`
	UpdatedRows   int        `gorm:"default:0" json:"updated_rows"`
	ErrorRows     int        `gorm:"default:0" json:"error_rows"`
	SuccessRate   float64    `gorm:"default:0" json:"success_rate"`
	ExecutionTime int        `json:"execution_time"`
	Status        LoadStatus `gorm:"default:pending;index" json:"status"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	RollbackData  string     `gorm:"type:text" json:"-"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name for LoadRecord.
func (LoadRecord) TableName() string {
	return "load_history"
}

// RollbackInfo decodes the stored rollback descriptor, or nil when absent.
func (r *LoadRecord) RollbackInfo() (*RollbackInfo, error) {
	if r.RollbackData == "" {
		return nil, nil
	}
	var info RollbackInfo
	if err := json.Unmarshal([]byte(r.RollbackData), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SetRollbackInfo encodes and attaches the rollback descriptor.
func (r *LoadRecord) SetRollbackInfo(info *RollbackInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	r.RollbackData = string(data)
	return nil
}

// CanRollback reports whether the load may be reversed: only completed
// insert-mode loads carrying a rollback descriptor qualify.
func (r *LoadRecord) CanRollback() bool {
	return r.Status == LoadStatusCompleted &&
		r.Mode == LoadModeInsert &&
		r.RollbackData != ""
}

// Summary is the external representation of a ledger entry.
type Summary struct {
	ID            uint       `json:"id"`
	JobID         string     `json:"job_id"`
	ConfigName    string     `json:"config_name"`
	SourceFile    string     `json:"source_file"`
	TargetTable   string     `json:"target_table"`
	Mode          LoadMode   `json:"mode"`
	Status        LoadStatus `json:"status"`
	TotalRows     int        `json:"total_rows"`
	InsertedRows  int        `json:"inserted_rows"`
	UpdatedRows   int        `json:"updated_rows"`
	ErrorRows     int        `json:"error_rows"`
	SuccessRate   float64    `json:"success_rate"`
	ExecutionTime int        `json:"execution_time"`
	CanRollback   bool       `json:"can_rollback"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Summary builds the external view of the record.
func (r *LoadRecord) Summary() *Summary {
	return &Summary{
		ID:            r.ID,
		JobID:         r.JobID,
		ConfigName:    r.ConfigName,
		SourceFile:    r.SourceFile,
		TargetTable:   r.TargetTable,
		Mode:          r.Mode,
		Status:        r.Status,
		TotalRows:     r.TotalRows,
		InsertedRows:  r.InsertedRows,
		UpdatedRows:   r.UpdatedRows,
		ErrorRows:     r.ErrorRows,
		SuccessRate:   r.SuccessRate,
		ExecutionTime: r.ExecutionTime,
		CanRollback:   r.CanRollback(),
		ErrorMessage:  r.ErrorMessage,
		CreatedBy:     r.CreatedBy,
		CreatedAt:     r.CreatedAt,
		CompletedAt:   r.CompletedAt,
	}
}
