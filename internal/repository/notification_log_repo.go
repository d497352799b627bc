package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/screening-api/internal/models"
)

// NotificationLogRepository stores outbound notification attempts.
type NotificationLogRepository interface {
	Create(ctx context.Context, entry *models.NotificationLog) error
	ListByApplication(ctx context.Context, applicationID uint) ([]models.NotificationLog, error)
}

type notificationLogRepository struct {
	db *gorm.DB
}

// NewNotificationLogRepository constructs a repository backed by GORM.
func NewNotificationLogRepository(db *gorm.DB) NotificationLogRepository {
	return &notificationLogRepository{db: db}
}

func (r *notificationLogRepository) Create(ctx context.Context, entry *models.NotificationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *notificationLogRepository) ListByApplication(ctx context.Context, applicationID uint) ([]models.NotificationLog, error) {
	var items []models.NotificationLog
	err := r.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, err
}
