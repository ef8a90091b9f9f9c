// Package ledger keeps the durable history of load attempts and drives
// rollback of completed insert loads. Every job that starts processing
// gets exactly one ledger entry; the entry is finalized exactly once.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/andresvega/loaderd/internal/domain"
	"github.com/andresvega/loaderd/internal/logger"
	"github.com/andresvega/loaderd/internal/repository"
)

// ErrAlreadyFinal is returned when a second terminal transition is
// attempted on a ledger entry.
var ErrAlreadyFinal = errors.New("load record already finalized")

// ErrNotRollbackable is returned when rollback is requested for an
// entry that does not qualify (not completed, not insert mode, or no
// rollback descriptor).
var ErrNotRollbackable = errors.New("load record cannot be rolled back")

// Ledger records load attempts and executes rollbacks.
type Ledger struct {
	db      *gorm.DB
	records *repository.LoadRecordRepository
}

// New creates a Ledger over the record repository. The raw handle is
// needed for rollback deletes against arbitrary target tables.
func New(db *gorm.DB, records *repository.LoadRecordRepository) *Ledger {
	return &Ledger{db: db, records: records}
}

// Start opens a ledger entry for a job that began processing.
func (l *Ledger) Start(ctx context.Context, job *domain.Job, configName, sourceFile, table string, mode domain.LoadMode, createdBy string) (*domain.LoadRecord, error) {
	rec := &domain.LoadRecord{
		JobID:       job.ID,
		ConfigName:  configName,
		SourceFile:  sourceFile,
		TargetTable: table,
		Mode:        mode,
		Status:      domain.LoadStatusProcessing,
		CreatedBy:   createdBy,
	}
	if err := l.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("opening ledger entry: %w", err)
	}
	return rec, nil
}

// Progress folds one chunk's accounting into the entry and persists it,
// so a crash mid-load leaves honest partial counters behind.
func (l *Ledger) Progress(ctx context.Context, rec *domain.LoadRecord, rows, inserted, updated, errorRows int) error {
	rec.TotalRows += rows
	rec.InsertedRows += inserted
	rec.UpdatedRows += updated
	rec.ErrorRows += errorRows
	return l.records.Save(ctx, rec)
}

// CompleteSuccessfully finalizes the entry as completed, computes the
// success rate, and attaches the rollback descriptor for insert loads.
// A second terminal transition returns ErrAlreadyFinal.
func (l *Ledger) CompleteSuccessfully(ctx context.Context, rec *domain.LoadRecord, startedAt time.Time, insertedIDs []int64) error {
	if rec.Status == domain.LoadStatusCompleted || rec.Status == domain.LoadStatusFailed {
		return ErrAlreadyFinal
	}

	if rec.Mode == domain.LoadModeInsert {
		cutoff := startedAt
		info := &domain.RollbackInfo{
			Timestamp:    time.Now(),
			Mode:         rec.Mode,
			TargetTable:  rec.TargetTable,
			InsertedRows: rec.InsertedRows,
			UpdatedRows:  rec.UpdatedRows,
			InsertedIDs:  insertedIDs,
			CutoffTime:   &cutoff,
		}
		if err := rec.SetRollbackInfo(info); err != nil {
			return fmt.Errorf("encoding rollback descriptor: %w", err)
		}
	}

	now := time.Now()
	rec.Status = domain.LoadStatusCompleted
	rec.CompletedAt = &now
	rec.ExecutionTime = int(now.Sub(startedAt).Seconds())
	if rec.TotalRows > 0 {
		rec.SuccessRate = float64(rec.InsertedRows+rec.UpdatedRows) / float64(rec.TotalRows) * 100
	}
	return l.records.Save(ctx, rec)
}

// FailWithError finalizes the entry as failed, keeping the partial
// counters accumulated so far. A second terminal transition returns
// ErrAlreadyFinal.
func (l *Ledger) FailWithError(ctx context.Context, rec *domain.LoadRecord, startedAt time.Time, cause error) error {
	if rec.Status == domain.LoadStatusCompleted || rec.Status == domain.LoadStatusFailed {
		return ErrAlreadyFinal
	}
	now := time.Now()
	rec.Status = domain.LoadStatusFailed
	rec.CompletedAt = &now
	rec.ExecutionTime = int(now.Sub(startedAt).Seconds())
	if cause != nil {
		rec.ErrorMessage = cause.Error()
	}
	if rec.TotalRows > 0 {
		rec.SuccessRate = float64(rec.InsertedRows+rec.UpdatedRows) / float64(rec.TotalRows) * 100
	}
	return l.records.Save(ctx, rec)
}

// ExecuteRollback reverses a completed insert load. Rows are deleted by
// the captured identifiers when present, otherwise by the created_at
// cutoff recorded at load time. The reversal is itself recorded as a new
// rollback-mode ledger entry, so history shows both the load and its
// undoing.
func (l *Ledger) ExecuteRollback(ctx context.Context, recordID uint, requestedBy string) (*domain.LoadRecord, error) {
	rec, err := l.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !rec.CanRollback() {
		return nil, ErrNotRollbackable
	}
	info, err := rec.RollbackInfo()
	if err != nil {
		return nil, fmt.Errorf("decoding rollback descriptor: %w", err)
	}
	if info == nil {
		return nil, ErrNotRollbackable
	}

	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldComponent: "ledger",
		logger.FieldTable:     info.TargetTable,
		"record_id":           recordID,
	})

	start := time.Now()
	var deleted int64
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch {
		case len(info.InsertedIDs) > 0:
			res := tx.Exec(fmt.Sprintf(`DELETE FROM %q WHERE id IN ?`, info.TargetTable), info.InsertedIDs)
			if res.Error != nil {
				return res.Error
			}
			deleted = res.RowsAffected
		case info.CutoffTime != nil:
			res := tx.Exec(fmt.Sprintf(`DELETE FROM %q WHERE created_at >= ?`, info.TargetTable), *info.CutoffTime)
			if res.Error != nil {
				return res.Error
			}
			deleted = res.RowsAffected
		default:
			return ErrNotRollbackable
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rolling back load %d: %w", recordID, err)
	}

	now := time.Now()
	reversal := &domain.LoadRecord{
		JobID:         fmt.Sprintf("rollback-%d", recordID),
		ConfigName:    rec.ConfigName,
		SourceFile:    rec.SourceFile,
		TargetTable:   rec.TargetTable,
		Mode:          domain.LoadModeRollback,
		TotalRows:     int(deleted),
		Status:        domain.LoadStatusCompleted,
		ErrorMessage:  fmt.Sprintf("rollback of load %d", recordID),
		CreatedBy:     requestedBy,
		CompletedAt:   &now,
		ExecutionTime: int(now.Sub(start).Seconds()),
		SuccessRate:   100,
	}
	if err := l.records.Create(ctx, reversal); err != nil {
		return nil, fmt.Errorf("recording rollback: %w", err)
	}

	// Spent descriptor: a second rollback of the same load is illegal.
	rec.RollbackData = ""
	if err := l.records.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("consuming rollback descriptor: %w", err)
	}

	log.WithField(logger.FieldRows, deleted).Info("rollback executed")
	return reversal, nil
}
