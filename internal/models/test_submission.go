package models

import (
	"time"

	"gorm.io/datatypes"
)

// TestSubmission is an issued test instance bound to a single-use token.
// Token and TokenExpiresAt are written once on create.
type TestSubmission struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CombinationID  uint      `gorm:"not null;index" json:"combination_id"`
	ApplicationID  uint      `gorm:"not null;index" json:"application_id"`
	TestID         uint      `gorm:"not null;index" json:"test_id"`
	Token          string    `gorm:"<-:create;size:64;not null;uniqueIndex" json:"-"`
	TokenExpiresAt time.Time `gorm:"<-:create;not null;index" json:"token_expires_at"`
	Status         string    `gorm:"size:32;not null;index" json:"status"`

	DraftContent     string     `gorm:"type:text" json:"draft_content,omitempty"`
	DraftLastSavedAt *time.Time `json:"draft_last_saved_at,omitempty"`
	FirstViewedAt    *time.Time `json:"first_viewed_at,omitempty"`
	ViewCount        int        `gorm:"not null;default:0" json:"view_count"`

	SubmittedContent string     `gorm:"type:text" json:"submitted_content,omitempty"`
	SubmittedNotes   string     `gorm:"type:text" json:"submitted_notes,omitempty"`
	SubmittedFileURL string     `gorm:"size:512" json:"submitted_file_url,omitempty"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`

	AssessmentScore  *float64       `json:"assessment_score"`
	AssessmentResult datatypes.JSON `json:"assessment_result,omitempty"`
	AssessedAt       *time.Time     `json:"assessed_at,omitempty"`

	ReminderDay2SentAt *time.Time `json:"reminder_day2_sent_at,omitempty"`
	ReminderDay3SentAt *time.Time `json:"reminder_day3_sent_at,omitempty"`
	ReminderDay7SentAt *time.Time `json:"reminder_day7_sent_at,omitempty"`
	ArchivalCheckedAt  *time.Time `json:"archival_checked_at,omitempty"`
	VoidedAt           *time.Time `gorm:"index" json:"voided_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOpen reports whether the token still accepts drafts and submissions at the given instant.
func (s TestSubmission) IsOpen(now time.Time) bool {
	return IsOpenSubmissionStatus(s.Status) && now.Before(s.TokenExpiresAt)
}

// WasSubmitted reports whether the applicant has turned the test in.
func (s TestSubmission) WasSubmitted() bool {
	return s.Status == SubmissionStatusSubmitted || s.Status == SubmissionStatusAssessed
}
