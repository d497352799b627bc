package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/screening-api/internal/models"
)

// ApplicationFilter narrows staff listings.
type ApplicationFilter struct {
	Status   string
	RoleType string
	Search   string
	Page     int
	PageSize int
}

// ApplicationRepository persists applications and their pipeline state.
type ApplicationRepository interface {
	Create(ctx context.Context, application *models.Application) error
	GetByID(ctx context.Context, id uint) (models.Application, error)
	GetWithCombinations(ctx context.Context, id uint) (models.Application, error)
	List(ctx context.Context, filter ApplicationFilter) ([]models.Application, int64, error)
	ActiveCooldown(ctx context.Context, email string, now time.Time) (*time.Time, error)
	TransitionStatus(ctx context.Context, id uint, from []string, to string, fields map[string]interface{}) error
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	AppendNegotiation(ctx context.Context, id uint, event models.NegotiationEvent) (models.Application, error)
	ListRejectionEmailsDue(ctx context.Context, queuedBefore time.Time, limit int) ([]models.Application, error)
	MarkRejectionEmail(ctx context.Context, id uint, from, to string) error
	ListStalled(ctx context.Context, statuses []string, idleBefore time.Time, limit int) ([]models.Application, error)
	ClaimStalled(ctx context.Context, id uint, status string, idleBefore, now time.Time) error
}

type applicationRepository struct {
	db *gorm.DB
}

// NewApplicationRepository constructs the repository implementation.
func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

// Create stores the application and its combinations in one transaction and assigns
// the APP-YY-NNNN number from the generated primary key.
func (r *applicationRepository) Create(ctx context.Context, application *models.Application) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		application.ApplicationNumber = "pending-" + uuid.NewString()
		if err := tx.Create(application).Error; err != nil {
			return err
		}

		created := application.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		number := fmt.Sprintf("APP-%02d-%04d", created.Year()%100, application.ID)
		if err := tx.Model(&models.Application{}).
			Where("id = ?", application.ID).
			Update("application_number", number).Error; err != nil {
			return err
		}
		application.ApplicationNumber = number
		return nil
	})
}

func (r *applicationRepository) GetByID(ctx context.Context, id uint) (models.Application, error) {
	var application models.Application
	err := r.db.WithContext(ctx).First(&application, id).Error
	return application, err
}

func (r *applicationRepository) GetWithCombinations(ctx context.Context, id uint) (models.Application, error) {
	var application models.Application
	err := r.db.WithContext(ctx).
		Preload("Combinations", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&application, id).Error
	return application, err
}

func (r *applicationRepository) List(ctx context.Context, filter ApplicationFilter) ([]models.Application, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Application{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.RoleType != "" {
		query = query.Where("role_type = ?", filter.RoleType)
	}
	if search := strings.TrimSpace(strings.ToLower(filter.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(application_number) LIKE ?", like, like, like)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var items []models.Application
	if err := query.Order("created_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ActiveCooldown returns the furthest reapplication date still in force for the email, if any.
func (r *applicationRepository) ActiveCooldown(ctx context.Context, email string, now time.Time) (*time.Time, error) {
	var application models.Application
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ? AND status = ? AND cooldown_until > ?", strings.ToLower(strings.TrimSpace(email)), models.ApplicationStatusRejected, now).
		Order("cooldown_until DESC").
		Limit(1).
		Find(&application).Error
	if err != nil {
		return nil, err
	}
	if application.ID == 0 {
		return nil, nil
	}
	return application.CooldownUntil, nil
}

// TransitionStatus moves the application to the target status only while its current status is in from.
func (r *applicationRepository) TransitionStatus(ctx context.Context, id uint, from []string, to string, fields map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for key, value := range fields {
		updates[key] = value
	}

	result := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return affectedOrStale(result.RowsAffected, result.Error)
}

func (r *applicationRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ?", id).
		Updates(fields)
	return affectedOrStale(result.RowsAffected, result.Error)
}

func (r *applicationRepository) AppendNegotiation(ctx context.Context, id uint, event models.NegotiationEvent) (models.Application, error) {
	var application models.Application
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&application, id).Error; err != nil {
			return err
		}
		application.NegotiationLog = append(application.NegotiationLog, event)
		return tx.Model(&application).Select("negotiation_log").Updates(&application).Error
	})
	return application, err
}

func (r *applicationRepository) ListRejectionEmailsDue(ctx context.Context, queuedBefore time.Time, limit int) ([]models.Application, error) {
	var items []models.Application
	err := r.db.WithContext(ctx).
		Where("status = ? AND rejection_email_status = ? AND rejection_email_queued_at <= ?",
			models.ApplicationStatusRejected, models.RejectionEmailQueued, queuedBefore).
		Order("rejection_email_queued_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// MarkRejectionEmail moves the rejection email state while the application is still rejected.
func (r *applicationRepository) MarkRejectionEmail(ctx context.Context, id uint, from, to string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ? AND status = ? AND rejection_email_status = ?", id, models.ApplicationStatusRejected, from).
		Update("rejection_email_status", to)
	return affectedOrStale(result.RowsAffected, result.Error)
}

// ListStalled returns applications parked in one of the statuses without any write since idleBefore.
func (r *applicationRepository) ListStalled(ctx context.Context, statuses []string, idleBefore time.Time, limit int) ([]models.Application, error) {
	var items []models.Application
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at <= ?", statuses, idleBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// ClaimStalled bumps updated_at on a still-stalled application so concurrent sweeps re-dispatch it once.
func (r *applicationRepository) ClaimStalled(ctx context.Context, id uint, status string, idleBefore, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Application{}).
		Where("id = ? AND status = ? AND updated_at <= ?", id, status, idleBefore).
		Update("updated_at", now)
	return affectedOrStale(result.RowsAffected, result.Error)
}
