package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/screening-api/internal/models"
)

// TestLibraryRepository reads and maintains the reusable test library.
type TestLibraryRepository interface {
	GetByID(ctx context.Context, id uint) (models.TestLibraryEntry, error)
	ListCandidates(ctx context.Context, sourceLanguage, targetLanguage, domain, serviceType string) ([]models.TestLibraryEntry, error)
	IncrementUsage(ctx context.Context, id uint, now time.Time) error
	IncrementOutcome(ctx context.Context, id uint, passed bool) error
	UpsertBatch(ctx context.Context, items []models.TestLibraryEntry) (int64, error)
}

type testLibraryRepository struct {
	db *gorm.DB
}

// NewTestLibraryRepository constructs the repository implementation.
func NewTestLibraryRepository(db *gorm.DB) TestLibraryRepository {
	return &testLibraryRepository{db: db}
}

func (r *testLibraryRepository) GetByID(ctx context.Context, id uint) (models.TestLibraryEntry, error) {
	var entry models.TestLibraryEntry
	err := r.db.WithContext(ctx).First(&entry, id).Error
	return entry, err
}

// ListCandidates returns active tests for the combination, least used first.
func (r *testLibraryRepository) ListCandidates(ctx context.Context, sourceLanguage, targetLanguage, domain, serviceType string) ([]models.TestLibraryEntry, error) {
	var items []models.TestLibraryEntry
	err := r.db.WithContext(ctx).
		Where("source_language = ? AND target_language = ? AND domain = ? AND service_type = ? AND is_active = ?",
			sourceLanguage, targetLanguage, domain, serviceType, true).
		Order("times_used ASC").
		Order("last_used_at ASC NULLS FIRST").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *testLibraryRepository) IncrementUsage(ctx context.Context, id uint, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.TestLibraryEntry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"times_used":   gorm.Expr("times_used + 1"),
			"last_used_at": now,
		})
	return affectedOrStale(result.RowsAffected, result.Error)
}

func (r *testLibraryRepository) IncrementOutcome(ctx context.Context, id uint, passed bool) error {
	column := "fail_count"
	if passed {
		column = "pass_count"
	}
	result := r.db.WithContext(ctx).
		Model(&models.TestLibraryEntry{}).
		Where("id = ?", id).
		Update(column, gorm.Expr(column+" + 1"))
	return affectedOrStale(result.RowsAffected, result.Error)
}

func (r *testLibraryRepository) UpsertBatch(ctx context.Context, items []models.TestLibraryEntry) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "source_language", "target_language", "domain", "service_type", "difficulty",
			"source_text", "instructions", "lqa_source_translation", "mqm_dimensions",
			"reference_translation", "lqa_answer_key", "ai_assessment_rubric", "is_active", "updated_at",
		}),
	})

	result := tx.Create(&items)
	return result.RowsAffected, result.Error
}
