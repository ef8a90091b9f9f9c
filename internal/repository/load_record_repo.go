package repository

import (
	"context"
	"errors"
	"time"

	"github.com/andresvega/loaderd/internal/domain"
	"gorm.io/gorm"
)

// ErrRecordNotFound is returned when a ledger entry id is unknown.
var ErrRecordNotFound = errors.New("load record not found")

// LoadRecordRepository handles load ledger persistence.
type LoadRecordRepository struct {
	db *gorm.DB
}

// NewLoadRecordRepository creates a new LoadRecordRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *LoadRecordRepository: repository instance bound to db.
func NewLoadRecordRepository(db *gorm.DB) *LoadRecordRepository {
	return &LoadRecordRepository{db: db}
}

// Create inserts a new ledger entry.
func (r *LoadRecordRepository) Create(ctx context.Context, rec *domain.LoadRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// Save persists all fields of an existing ledger entry.
func (r *LoadRecordRepository) Save(ctx context.Context, rec *domain.LoadRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// GetByID retrieves a ledger entry by id.
func (r *LoadRecordRepository) GetByID(ctx context.Context, id uint) (*domain.LoadRecord, error) {
	var rec domain.LoadRecord
	if err := r.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// GetByJobID retrieves the ledger entry created by a job.
func (r *LoadRecordRepository) GetByJobID(ctx context.Context, jobID string) (*domain.LoadRecord, error) {
	var rec domain.LoadRecord
	if err := r.db.WithContext(ctx).First(&rec, "job_id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Recent returns the most recent ledger entries, newest first.
func (r *LoadRecordRepository) Recent(ctx context.Context, limit int) ([]domain.LoadRecord, error) {
	var recs []domain.LoadRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// ByTable returns all ledger entries for one target table, newest first.
func (r *LoadRecordRepository) ByTable(ctx context.Context, table string) ([]domain.LoadRecord, error) {
	var recs []domain.LoadRecord
	err := r.db.WithContext(ctx).
		Where("target_table = ?", table).
		Order("created_at DESC").
		Find(&recs).Error
	return recs, err
}

// Failed returns all failed ledger entries, newest first.
func (r *LoadRecordRepository) Failed(ctx context.Context) ([]domain.LoadRecord, error) {
	var recs []domain.LoadRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.LoadStatusFailed).
		Order("created_at DESC").
		Find(&recs).Error
	return recs, err
}

// GeneralStats aggregates ledger activity over a trailing window.
type GeneralStats struct {
	TotalLoads         int64   `json:"total_loads"`
	SuccessfulLoads    int64   `json:"successful_loads"`
	FailedLoads        int64   `json:"failed_loads"`
	SuccessPercentage  float64 `json:"success_percentage"`
	AvgSuccessRate     float64 `json:"avg_success_rate"`
	AvgExecutionTime   float64 `json:"avg_execution_time"`
	TotalRowsProcessed int64   `json:"total_rows_processed"`
	TotalInserted      int64   `json:"total_inserted"`
	TotalUpdated       int64   `json:"total_updated"`
	TotalErrors        int64   `json:"total_errors"`
}

// TableStats aggregates ledger activity per target table.
type TableStats struct {
	Table          string     `json:"table" gorm:"column:target_table"`
	LoadsCount     int64      `json:"loads_count"`
	AvgSuccessRate float64    `json:"avg_success_rate"`
	LastLoad       *time.Time `json:"last_load"`
}

// Statistics holds the trailing-window aggregate view of the ledger.
type Statistics struct {
	PeriodDays int          `json:"period_days"`
	General    GeneralStats `json:"general"`
	ByTable    []TableStats `json:"by_table"`
}

// Statistics computes load statistics for the last N days.
func (r *LoadRecordRepository) Statistics(ctx context.Context, days int) (*Statistics, error) {
	since := time.Now().AddDate(0, 0, -days)

	var general GeneralStats
	err := r.db.WithContext(ctx).Model(&domain.LoadRecord{}).
		Select(`COUNT(*) as total_loads,
			COUNT(CASE WHEN status = 'completed' THEN 1 END) as successful_loads,
			COUNT(CASE WHEN status = 'failed' THEN 1 END) as failed_loads,
			COALESCE(AVG(success_rate), 0) as avg_success_rate,
			COALESCE(AVG(execution_time), 0) as avg_execution_time,
			COALESCE(SUM(total_rows), 0) as total_rows_processed,
			COALESCE(SUM(inserted_rows), 0) as total_inserted,
			COALESCE(SUM(updated_rows), 0) as total_updated,
			COALESCE(SUM(error_rows), 0) as total_errors`).
		Where("created_at >= ?", since).
		Scan(&general).Error
	if err != nil {
		return nil, err
	}
	if general.TotalLoads > 0 {
		general.SuccessPercentage = float64(general.SuccessfulLoads) / float64(general.TotalLoads) * 100
	}

	var byTable []TableStats
	err = r.db.WithContext(ctx).Model(&domain.LoadRecord{}).
		Select(`target_table,
			COUNT(*) as loads_count,
			COALESCE(AVG(success_rate), 0) as avg_success_rate,
			MAX(created_at) as last_load`).
		Where("created_at >= ?", since).
		Group("target_table").
		Order("loads_count DESC").
		Scan(&byTable).Error
	if err != nil {
		return nil, err
	}

	return &Statistics{
		PeriodDays: days,
		General:    general,
		ByTable:    byTable,
	}, nil
}
