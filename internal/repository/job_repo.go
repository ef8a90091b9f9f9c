package repository

import (
	"context"
	"errors"
	"time"

	"github.com/andresvega/loaderd/internal/domain"
	"gorm.io/gorm"
)

// ErrJobNotFound is returned when a job id is unknown.
var ErrJobNotFound = errors.New("job not found")

// JobRepository handles job queue persistence.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.Job: job record if found.
//   - error: ErrJobNotFound when the id is unknown.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// MarkProcessing transitions a pending job to processing and stamps the
// start time. Returns false when the job is no longer pending, which
// covers jobs cancelled between enqueue and dequeue.
func (r *JobRepository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]any{
			"status":     domain.JobStatusProcessing,
			"started_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkCompleted finalizes a job with its result payload.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string, result string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       domain.JobStatusCompleted,
			"result":       result,
			"progress":     100.0,
			"completed_at": now,
		}).Error
}

// MarkFailed finalizes a job with the captured error message.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.JobStatusFailed,
			"error_message": errMsg,
			"completed_at":  now,
		}).Error
}

// Cancel transitions a pending job to cancelled. Returns false when the
// job is already running or terminal; in-flight jobs are not preemptible.
func (r *JobRepository) Cancel(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ? AND status = ?", id, domain.JobStatusPending).
		Updates(map[string]any{
			"status":        domain.JobStatusCancelled,
			"error_message": "cancelled by user",
			"completed_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateProgress writes the job's progress percentage.
func (r *JobRepository) UpdateProgress(ctx context.Context, id string, progress float64) error {
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("id = ?", id).
		Update("progress", progress).Error
}

// CountByStatus returns the number of jobs per status.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	type row struct {
		Status domain.JobStatus
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&domain.Job{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.JobStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// DeleteTerminalOlderThan removes completed, failed and cancelled jobs
// created before the cutoff. Returns the number of rows removed.
func (r *JobRepository) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("created_at < ? AND status IN ?", cutoff, []domain.JobStatus{
			domain.JobStatusCompleted,
			domain.JobStatusFailed,
			domain.JobStatusCancelled,
		}).
		Delete(&domain.Job{})
	return res.RowsAffected, res.Error
}

// FailPending marks every still-pending job failed with the given reason.
// Used on shutdown so queued work is not silently lost.
func (r *JobRepository) FailPending(ctx context.Context, reason string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.Job{}).
		Where("status = ?", domain.JobStatusPending).
		Updates(map[string]any{
			"status":        domain.JobStatusFailed,
			"error_message": reason,
			"completed_at":  now,
		}).Error
}
