package dto

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/screening-api/internal/models"
)

// LanguagePair is a declared source/target language combination.
type LanguagePair struct {
	Source string `json:"source" validate:"required,min=2,max=16"`
	Target string `json:"target" validate:"required,min=2,max=16,nefield=Source"`
}

// CertificateInput is a declared professional credential.
type CertificateInput struct {
	Name          string     `json:"name" validate:"required,max=255"`
	CustomName    string     `json:"custom_name" validate:"omitempty,max=255"`
	ExpiryDate    *time.Time `json:"expiry_date"`
	FileReference string     `json:"file_reference" validate:"omitempty,max=512"`
}

// ApplicationSubmitRequest is the public application form payload.
type ApplicationSubmitRequest struct {
	RoleType       string `json:"role_type" validate:"required,oneof=translator cognitive_debriefing"`
	FullName       string `json:"full_name" validate:"required,min=2,max=255"`
	Email          string `json:"email" validate:"required,email,max=255"`
	Phone          string `json:"phone" validate:"omitempty,max=64"`
	City           string `json:"city" validate:"omitempty,max=128"`
	Country        string `json:"country" validate:"required,max=128"`
	LinkedInURL    string `json:"linkedin_url" validate:"omitempty,url,max=512"`
	ReferralSource string `json:"referral_source" validate:"omitempty,max=128"`
	Notes          string `json:"notes" validate:"omitempty,max=4000"`

	YearsExperience *int               `json:"years_experience" validate:"omitempty,min=0,max=80"`
	EducationLevel  string             `json:"education_level" validate:"omitempty,max=64"`
	Certifications  []CertificateInput `json:"certifications" validate:"omitempty,max=20,dive"`
	CATTools        []string           `json:"cat_tools" validate:"omitempty,max=30,dive,max=64"`
	LanguagePairs   []LanguagePair     `json:"language_pairs" validate:"required_if=RoleType translator,max=20,dive"`
	Domains         []string           `json:"domains" validate:"required_if=RoleType translator,max=10,dive,oneof=legal medical immigration financial technical general"`
	Services        []string           `json:"services" validate:"required_if=RoleType translator,max=3,dive,oneof=translation translation_review lqa_review"`
	RateExpectation *float64           `json:"rate_expectation" validate:"omitempty,gte=0"`

	CogYearsExperience     *int     `json:"cog_years_experience" validate:"omitempty,min=0,max=80"`
	CogDegreeField         string   `json:"cog_degree_field" validate:"omitempty,max=128"`
	CogCredentials         string   `json:"cog_credentials" validate:"omitempty,max=4000"`
	CogInstrumentTypes     []string `json:"cog_instrument_types" validate:"omitempty,max=20,dive,max=64"`
	CogTherapyAreas        []string `json:"cog_therapy_areas" validate:"omitempty,max=20,dive,max=64"`
	CogPharmaClients       string   `json:"cog_pharma_clients" validate:"omitempty,max=4000"`
	CogISPORFamiliarity    string   `json:"cog_ispor_familiarity" validate:"omitempty,max=32"`
	CogFDAFamiliarity      string   `json:"cog_fda_familiarity" validate:"omitempty,max=32"`
	CogPriorDebriefReports bool     `json:"cog_prior_debrief_reports"`
	CogNativeLanguage      string   `json:"cog_native_language" validate:"omitempty,max=16"`
	CogAvailability        string   `json:"cog_availability" validate:"omitempty,max=64"`

	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// ApplicationSubmitResponse acknowledges a new application.
type ApplicationSubmitResponse struct {
	ID                uint   `json:"id"`
	ApplicationNumber string `json:"application_number"`
	Status            string `json:"status"`
	Combinations      int    `json:"combinations"`
}

// CombinationResponse is the staff view of a test combination.
type CombinationResponse struct {
	ID               uint           `json:"id"`
	SourceLanguage   string         `json:"source_language"`
	TargetLanguage   string         `json:"target_language"`
	Domain           string         `json:"domain"`
	ServiceType      string         `json:"service_type"`
	Status           string         `json:"status"`
	TestID           *uint          `json:"test_id,omitempty"`
	SubmissionID     *uint          `json:"submission_id,omitempty"`
	Score            *float64       `json:"score"`
	AssessmentResult datatypes.JSON `json:"assessment_result,omitempty"`
	ApprovedAt       *time.Time     `json:"approved_at,omitempty"`
	ApprovedBy       *uint          `json:"approved_by,omitempty"`
	TokenExpiredAt   *time.Time     `json:"token_expired_at,omitempty"`
}

// ApplicationSummary is a list row in the staff dashboard.
type ApplicationSummary struct {
	ID                uint      `json:"id"`
	ApplicationNumber string    `json:"application_number"`
	RoleType          string    `json:"role_type"`
	FullName          string    `json:"full_name"`
	Email             string    `json:"email"`
	Country           string    `json:"country"`
	Status            string    `json:"status"`
	PrescreenScore    *float64  `json:"prescreen_score"`
	AssignedTier      *string   `json:"assigned_tier"`
	CreatedAt         time.Time `json:"created_at"`
}

// ApplicationDetail is the full staff view of an application.
type ApplicationDetail struct {
	models.Application
	Combinations []CombinationResponse `json:"combinations"`
}

// ApplicationListRequest filters the staff application list.
type ApplicationListRequest struct {
	Page     int
	PageSize int
	Status   string
	RoleType string
	Search   string
}

// NewCombinationResponse converts a model into a DTO.
func NewCombinationResponse(combination models.TestCombination) CombinationResponse {
	return CombinationResponse{
		ID:               combination.ID,
		SourceLanguage:   combination.SourceLanguage,
		TargetLanguage:   combination.TargetLanguage,
		Domain:           combination.Domain,
		ServiceType:      combination.ServiceType,
		Status:           combination.Status,
		TestID:           combination.TestID,
		SubmissionID:     combination.SubmissionID,
		Score:            combination.Score,
		AssessmentResult: combination.AssessmentResult,
		ApprovedAt:       combination.ApprovedAt,
		ApprovedBy:       combination.ApprovedBy,
		TokenExpiredAt:   combination.TokenExpiredAt,
	}
}

// NewApplicationSummary converts a model into a list row.
func NewApplicationSummary(application models.Application) ApplicationSummary {
	return ApplicationSummary{
		ID:                application.ID,
		ApplicationNumber: application.ApplicationNumber,
		RoleType:          application.RoleType,
		FullName:          application.FullName,
		Email:             application.Email,
		Country:           application.Country,
		Status:            application.Status,
		PrescreenScore:    application.PrescreenScore,
		AssignedTier:      application.AssignedTier,
		CreatedAt:         application.CreatedAt,
	}
}

// NewApplicationDetail converts an application with its combinations.
func NewApplicationDetail(application models.Application) ApplicationDetail {
	combinations := make([]CombinationResponse, 0, len(application.Combinations))
	for _, combination := range application.Combinations {
		combinations = append(combinations, NewCombinationResponse(combination))
	}
	detail := ApplicationDetail{Application: application, Combinations: combinations}
	detail.Application.Combinations = nil
	return detail
}
