package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/screening-api/internal/models"
)

// CombinationRepository persists test combinations.
type CombinationRepository interface {
	GetByID(ctx context.Context, id uint) (models.TestCombination, error)
	ListByApplication(ctx context.Context, applicationID uint) ([]models.TestCombination, error)
	ListByApplicationAndStatus(ctx context.Context, applicationID uint, status string) ([]models.TestCombination, error)
	TransitionStatus(ctx context.Context, id uint, from []string, to string, fields map[string]interface{}) error
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
}

type combinationRepository struct {
	db *gorm.DB
}

// NewCombinationRepository constructs the repository implementation.
func NewCombinationRepository(db *gorm.DB) CombinationRepository {
	return &combinationRepository{db: db}
}

func (r *combinationRepository) GetByID(ctx context.Context, id uint) (models.TestCombination, error) {
	var combination models.TestCombination
	err := r.db.WithContext(ctx).First(&combination, id).Error
	return combination, err
}

func (r *combinationRepository) ListByApplication(ctx context.Context, applicationID uint) ([]models.TestCombination, error) {
	var items []models.TestCombination
	err := r.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *combinationRepository) ListByApplicationAndStatus(ctx context.Context, applicationID uint, status string) ([]models.TestCombination, error) {
	var items []models.TestCombination
	err := r.db.WithContext(ctx).
		Where("application_id = ? AND status = ?", applicationID, status).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *combinationRepository) TransitionStatus(ctx context.Context, id uint, from []string, to string, fields map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for key, value := range fields {
		updates[key] = value
	}

	result := r.db.WithContext(ctx).
		Model(&models.TestCombination{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return affectedOrStale(result.RowsAffected, result.Error)
}

func (r *combinationRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.TestCombination{}).
		Where("id = ?", id).
		Updates(fields)
	return affectedOrStale(result.RowsAffected, result.Error)
}
