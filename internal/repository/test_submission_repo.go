package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/screening-api/internal/models"
)

// ReminderMarker names a once-only follow-up timestamp column.
type ReminderMarker string

// Follow-up markers, each stamped at most once per submission.
const (
	MarkerDay2     ReminderMarker = "reminder_day2_sent_at"
	MarkerDay3     ReminderMarker = "reminder_day3_sent_at"
	MarkerDay7     ReminderMarker = "reminder_day7_sent_at"
	MarkerArchival ReminderMarker = "archival_checked_at"
)

// SubmissionResult carries the applicant's final answer.
type SubmissionResult struct {
	Content string
	Notes   string
	FileURL string
}

// TestSubmissionRepository persists issued tests and their token lifecycle.
type TestSubmissionRepository interface {
	Create(ctx context.Context, submission *models.TestSubmission) error
	GetByID(ctx context.Context, id uint) (models.TestSubmission, error)
	GetByToken(ctx context.Context, token string) (models.TestSubmission, error)
	ListByApplication(ctx context.Context, applicationID uint) ([]models.TestSubmission, error)
	HasActiveTest(ctx context.Context, applicationID uint, now time.Time) (bool, error)

	RecordView(ctx context.Context, id uint, now time.Time) error
	SaveDraft(ctx context.Context, id uint, content string, now time.Time) error
	MarkSubmitted(ctx context.Context, id uint, result SubmissionResult, now time.Time) error
	MarkExpired(ctx context.Context, id uint) error
	Void(ctx context.Context, id uint, now time.Time) error
	MarkAssessed(ctx context.Context, id uint, score *float64, assessment datatypes.JSON, now time.Time) error

	ClaimReminder(ctx context.Context, id uint, now time.Time) error
	ClaimMarker(ctx context.Context, id uint, marker ReminderMarker, statuses []string, now time.Time) error
	ExpireAndClaim(ctx context.Context, id uint, now time.Time) error

	ListDueForReminder(ctx context.Context, createdBefore, now time.Time, limit int) ([]models.TestSubmission, error)
	ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]models.TestSubmission, error)
	ListDueForFinalChance(ctx context.Context, createdBefore time.Time, limit int) ([]models.TestSubmission, error)
	ListDueForArchival(ctx context.Context, createdBefore time.Time, limit int) ([]models.TestSubmission, error)
	ListAwaitingAssessment(ctx context.Context, idleBefore time.Time, limit int) ([]models.TestSubmission, error)
	ClaimAwaitingAssessment(ctx context.Context, id uint, idleBefore, now time.Time) error
}

type testSubmissionRepository struct {
	db *gorm.DB
}

// NewTestSubmissionRepository constructs the repository implementation.
func NewTestSubmissionRepository(db *gorm.DB) TestSubmissionRepository {
	return &testSubmissionRepository{db: db}
}

func (r *testSubmissionRepository) Create(ctx context.Context, submission *models.TestSubmission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *testSubmissionRepository) GetByID(ctx context.Context, id uint) (models.TestSubmission, error) {
	var submission models.TestSubmission
	err := r.db.WithContext(ctx).First(&submission, id).Error
	return submission, err
}

func (r *testSubmissionRepository) GetByToken(ctx context.Context, token string) (models.TestSubmission, error) {
	var submission models.TestSubmission
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&submission).Error
	return submission, err
}

func (r *testSubmissionRepository) ListByApplication(ctx context.Context, applicationID uint) ([]models.TestSubmission, error) {
	var items []models.TestSubmission
	err := r.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// HasActiveTest reports whether the application has a turned-in test or a token still open at now.
func (r *testSubmissionRepository) HasActiveTest(ctx context.Context, applicationID uint, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TestSubmission{}).
		Where("application_id = ?", applicationID).
		Where(r.db.Where("status IN ?", []string{models.SubmissionStatusSubmitted, models.SubmissionStatusAssessed}).
			Or("status IN ? AND token_expires_at > ? AND voided_at IS NULL", models.OpenSubmissionStatuses, now)).
		Count(&count).Error
	return count > 0, err
}

func (r *testSubmissionRepository) openWindow(ctx context.Context, id uint, now time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.TestSubmission{}).
		Where("id = ? AND status IN ? AND token_expires_at > ?", id, models.OpenSubmissionStatuses, now)
}

// RecordView bumps the view counter, stamps the first view and moves sent to viewed in one statement.
func (r *testSubmissionRepository) RecordView(ctx context.Context, id uint, now time.Time) error {
	result := r.openWindow(ctx, id, now).Updates(map[string]interface{}{
		"view_count":      gorm.Expr("view_count + 1"),
		"first_viewed_at": gorm.Expr("COALESCE(first_viewed_at, ?)", now),
		"status":          gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", models.SubmissionStatusSent, models.SubmissionStatusViewed),
	})
	return affectedOrStale(result.RowsAffected, result.Error)
}

func (r *testSubmissionRepository) SaveDraft(ctx context.Context, id uint, content string, now time.Time) error {
	result := r.openWindow(ctx, id, now).Updates(map[string]interface{}{
		"draft_content":       content,
		"draft_last_saved_at": now,
		"status":              models.SubmissionStatusDraftSaved,
	})
	return affectedOrStale(result.RowsAffected, result.Error)
}

func (r *testSubmissionRepository) MarkSubmitted(ctx context.Context, id uint, submitted SubmissionResult, now time.Time) error {
	result := r.openWindow(ctx, id, now).Updates(map[string]interface{}{
		"submitted_content":  submitted.Content,
		"submitted_notes":    submitted.Notes,
		"submitted_file_url": submitted.FileURL,
		"submitted_at":       now,
		"status":             models.SubmissionStatusSubmitted,
	})
	return affectedOrStale(result.RowsAffected, result.Error)
}

// MarkExpired flips a still-open row to expired without touching follow-up markers.
func (r *testSubmissionRepository) MarkExpired(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.TestSubmission{}).
		Where("id = ? AND status IN ?", id, models.OpenSubmissionStatuses).
		Update("status", models.SubmissionStatusExpired)
	return affectedOrStale(result.RowsAffected, result.Error)
}

// Void retires the row for good: an open token stops working and no follow-up stage picks it up.
func (r *testSubmissionRepository) Void(ctx context.Context, id uint, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.TestSubmission{}).
		Where("id = ? AND voided_at IS NULL AND status IN ?", id, expirableStatuses()).
		Updates(map[string]interface{}{
			"status":    models.SubmissionStatusExpired,
			"voided_at": now,
		})
	return affectedOrStale(result.RowsAffected, result.Error)
}

func (r *testSubmissionRepository) MarkAssessed(ctx context.Context, id uint, score *float64, assessment datatypes.JSON, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.TestSubmission{}).
		Where("id = ? AND status = ?", id, models.SubmissionStatusSubmitted).
		Updates(map[string]interface{}{
			"assessment_score":  score,
			"assessment_result": assessment,
			"assessed_at":       now,
			"status":            models.SubmissionStatusAssessed,
		})
	return affectedOrStale(result.RowsAffected, result.Error)
}

// ClaimReminder stamps the day-2 marker while the token is still open at now.
func (r *testSubmissionRepository) ClaimReminder(ctx context.Context, id uint, now time.Time) error {
	result := r.openWindow(ctx, id, now).
		Where("reminder_day2_sent_at IS NULL AND voided_at IS NULL").
		Update(string(MarkerDay2), now)
	return affectedOrStale(result.RowsAffected, result.Error)
}

// ClaimMarker stamps the marker if it is still null and the row is in one of the statuses.
func (r *testSubmissionRepository) ClaimMarker(ctx context.Context, id uint, marker ReminderMarker, statuses []string, now time.Time) error {
	column := string(marker)
	result := r.db.WithContext(ctx).
		Model(&models.TestSubmission{}).
		Where("id = ? AND "+column+" IS NULL AND voided_at IS NULL AND status IN ?", id, statuses).
		Update(column, now)
	return affectedOrStale(result.RowsAffected, result.Error)
}

// ExpireAndClaim moves an open or lazily expired row to expired and stamps the expiry notice marker.
func (r *testSubmissionRepository) ExpireAndClaim(ctx context.Context, id uint, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.TestSubmission{}).
		Where("id = ? AND reminder_day3_sent_at IS NULL AND voided_at IS NULL AND status IN ? AND token_expires_at <= ?", id, expirableStatuses(), now).
		Updates(map[string]interface{}{
			"status":                models.SubmissionStatusExpired,
			"reminder_day3_sent_at": now,
		})
	return affectedOrStale(result.RowsAffected, result.Error)
}

func (r *testSubmissionRepository) ListDueForReminder(ctx context.Context, createdBefore, now time.Time, limit int) ([]models.TestSubmission, error) {
	var items []models.TestSubmission
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at <= ? AND token_expires_at > ? AND reminder_day2_sent_at IS NULL AND voided_at IS NULL",
			models.OpenSubmissionStatuses, createdBefore, now).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *testSubmissionRepository) ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]models.TestSubmission, error) {
	var items []models.TestSubmission
	err := r.db.WithContext(ctx).
		Where("status IN ? AND token_expires_at <= ? AND reminder_day3_sent_at IS NULL AND voided_at IS NULL", expirableStatuses(), now).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *testSubmissionRepository) ListDueForFinalChance(ctx context.Context, createdBefore time.Time, limit int) ([]models.TestSubmission, error) {
	var items []models.TestSubmission
	err := r.db.WithContext(ctx).
		Where("status = ? AND reminder_day3_sent_at IS NOT NULL AND reminder_day7_sent_at IS NULL AND voided_at IS NULL AND created_at <= ?",
			models.SubmissionStatusExpired, createdBefore).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *testSubmissionRepository) ListDueForArchival(ctx context.Context, createdBefore time.Time, limit int) ([]models.TestSubmission, error) {
	var items []models.TestSubmission
	err := r.db.WithContext(ctx).
		Where("status = ? AND reminder_day7_sent_at IS NOT NULL AND archival_checked_at IS NULL AND voided_at IS NULL AND created_at <= ?",
			models.SubmissionStatusExpired, createdBefore).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// ListAwaitingAssessment returns submitted rows that no assessment has touched since idleBefore.
func (r *testSubmissionRepository) ListAwaitingAssessment(ctx context.Context, idleBefore time.Time, limit int) ([]models.TestSubmission, error) {
	var items []models.TestSubmission
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", models.SubmissionStatusSubmitted, idleBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *testSubmissionRepository) ClaimAwaitingAssessment(ctx context.Context, id uint, idleBefore, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.TestSubmission{}).
		Where("id = ? AND status = ? AND updated_at <= ?", id, models.SubmissionStatusSubmitted, idleBefore).
		Update("updated_at", now)
	return affectedOrStale(result.RowsAffected, result.Error)
}

func expirableStatuses() []string {
	return append(append([]string{}, models.OpenSubmissionStatuses...), models.SubmissionStatusExpired)
}
