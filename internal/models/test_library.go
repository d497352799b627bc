package models

import "time"

// Test difficulties.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// TestLibraryEntry is a reusable skills test. Reference material never leaves the service layer.
type TestLibraryEntry struct {
	ID             uint   `gorm:"primaryKey" json:"id" yaml:"-"`
	Slug           string `gorm:"size:128;uniqueIndex" json:"slug" yaml:"slug"`
	Title          string `gorm:"size:255;not null" json:"title" yaml:"title"`
	SourceLanguage string `gorm:"size:16;not null;index:idx_test_library_match" json:"source_language" yaml:"source_language"`
	TargetLanguage string `gorm:"size:16;not null;index:idx_test_library_match" json:"target_language" yaml:"target_language"`
	Domain         string `gorm:"size:32;not null;index:idx_test_library_match" json:"domain" yaml:"domain"`
	ServiceType    string `gorm:"size:32;not null;index:idx_test_library_match" json:"service_type" yaml:"service_type"`
	Difficulty     string `gorm:"size:16;not null" json:"difficulty" yaml:"difficulty"`

	SourceText           string   `gorm:"type:text" json:"source_text" yaml:"source_text"`
	Instructions         string   `gorm:"type:text" json:"instructions" yaml:"instructions"`
	LQASourceTranslation string   `gorm:"type:text" json:"lqa_source_translation,omitempty" yaml:"lqa_source_translation"`
	MQMDimensions        []string `gorm:"serializer:json" json:"mqm_dimensions,omitempty" yaml:"mqm_dimensions"`

	ReferenceTranslation string        `gorm:"type:text" json:"-" yaml:"reference_translation"`
	LQAAnswerKey         []AnswerEntry `gorm:"serializer:json" json:"-" yaml:"lqa_answer_key"`
	AIAssessmentRubric   string        `gorm:"type:text" json:"-" yaml:"ai_assessment_rubric"`

	IsActive   bool       `gorm:"not null" json:"is_active" yaml:"-"`
	TimesUsed  int        `gorm:"not null;default:0" json:"times_used" yaml:"-"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" yaml:"-"`
	PassCount  int        `gorm:"not null;default:0" json:"pass_count" yaml:"-"`
	FailCount  int        `gorm:"not null;default:0" json:"fail_count" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// AnswerEntry is one planted error in an LQA test's flawed translation.
type AnswerEntry struct {
	Location string `json:"location" yaml:"location"`
	Category string `json:"category" yaml:"category"`
	Severity string `json:"severity" yaml:"severity"`
	Note     string `json:"note,omitempty" yaml:"note"`
}
