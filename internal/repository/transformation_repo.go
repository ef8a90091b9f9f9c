package repository

import (
	"context"
	"errors"

	"github.com/andresvega/loaderd/internal/domain"
	"gorm.io/gorm"
)

// ErrTransformationNotFound is returned when a registered transformation
// name is unknown.
var ErrTransformationNotFound = errors.New("custom transformation not found")

// TransformationRepository handles the custom transformation registry.
type TransformationRepository struct {
	db *gorm.DB
}

// NewTransformationRepository creates a new TransformationRepository.
func NewTransformationRepository(db *gorm.DB) *TransformationRepository {
	return &TransformationRepository{db: db}
}

// Upsert creates or replaces a transformation keyed by name.
func (r *TransformationRepository) Upsert(ctx context.Context, t *domain.CustomTransformation) error {
	var existing domain.CustomTransformation
	err := r.db.WithContext(ctx).First(&existing, "name = ?", t.Name).Error
	switch {
	case err == nil:
		t.ID = existing.ID
		t.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(t).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Create(t).Error
	default:
		return err
	}
}

// GetByName retrieves a transformation by its registered name.
func (r *TransformationRepository) GetByName(ctx context.Context, name string) (*domain.CustomTransformation, error) {
	var t domain.CustomTransformation
	if err := r.db.WithContext(ctx).First(&t, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransformationNotFound
		}
		return nil, err
	}
	return &t, nil
}

// List returns all registered transformations ordered by name.
func (r *TransformationRepository) List(ctx context.Context) ([]domain.CustomTransformation, error) {
	var ts []domain.CustomTransformation
	err := r.db.WithContext(ctx).Order("name").Find(&ts).Error
	return ts, err
}
