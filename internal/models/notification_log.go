package models

import "time"

// NotificationLog records each outbound applicant notification attempt.
type NotificationLog struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ApplicationID *uint     `gorm:"index" json:"application_id,omitempty"`
	Template      string    `gorm:"size:64;not null;index" json:"template"`
	Recipient     string    `gorm:"size:255;not null" json:"recipient"`
	Delivered     bool      `gorm:"not null" json:"delivered"`
	Error         string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
