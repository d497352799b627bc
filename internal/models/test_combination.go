package models

import (
	"time"

	"gorm.io/datatypes"
)

// Test domains.
const (
	DomainLegal       = "legal"
	DomainMedical     = "medical"
	DomainImmigration = "immigration"
	DomainFinancial   = "financial"
	DomainTechnical   = "technical"
	DomainGeneral     = "general"
)

// Service types a combination can be tested for.
const (
	ServiceTranslation       = "translation"
	ServiceTranslationReview = "translation_review"
	ServiceLQAReview         = "lqa_review"
)

// TestCombination is one (language pair, domain, service) unit an applicant is evaluated on.
type TestCombination struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ApplicationID  uint   `gorm:"not null;index" json:"application_id"`
	SourceLanguage string `gorm:"size:16;not null" json:"source_language"`
	TargetLanguage string `gorm:"size:16;not null" json:"target_language"`
	Domain         string `gorm:"size:32;not null" json:"domain"`
	ServiceType    string `gorm:"size:32;not null" json:"service_type"`
	Status         string `gorm:"size:32;not null;index" json:"status"`

	TestID       *uint `json:"test_id,omitempty"`
	SubmissionID *uint `json:"submission_id,omitempty"`

	Score            *float64       `json:"score"`
	AssessmentResult datatypes.JSON `json:"assessment_result,omitempty"`
	ApprovedAt       *time.Time     `json:"approved_at,omitempty"`
	ApprovedBy       *uint          `json:"approved_by,omitempty"`
	TokenExpiredAt   *time.Time     `json:"token_expired_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether no further automatic step applies to the combination.
func (c TestCombination) IsTerminal() bool {
	return IsTerminalCombinationStatus(c.Status)
}

// Label renders the combination for emails and logs.
func (c TestCombination) Label() string {
	return c.SourceLanguage + " → " + c.TargetLanguage + " (" + c.Domain + ", " + c.ServiceType + ")"
}
