package models

import (
	"time"

	"gorm.io/datatypes"
)

// Role types an applicant can apply under.
const (
	// RoleTypeTranslator covers skills providers who receive language-pair tests.
	RoleTypeTranslator = "translator"
	// RoleTypeCognitiveDebriefing covers domain consultants who are always reviewed by staff.
	RoleTypeCognitiveDebriefing = "cognitive_debriefing"
)

// Vendor tiers.
const (
	TierStandard = "standard"
	TierSenior   = "senior"
	TierExpert   = "expert"
)

// Application is a single applicant's submission and its pipeline state.
type Application struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	ApplicationNumber string `gorm:"size:40;uniqueIndex" json:"application_number"`
	RoleType          string `gorm:"size:32;not null;index" json:"role_type"`

	Email          string `gorm:"size:255;not null;index" json:"email"`
	FullName       string `gorm:"size:255;not null" json:"full_name"`
	Phone          string `gorm:"size:64" json:"phone,omitempty"`
	City           string `gorm:"size:128" json:"city,omitempty"`
	Country        string `gorm:"size:128" json:"country"`
	LinkedInURL    string `gorm:"size:512" json:"linkedin_url,omitempty"`
	ReferralSource string `gorm:"size:128" json:"referral_source,omitempty"`
	Notes          string `gorm:"type:text" json:"notes,omitempty"`
	IPAddress      string `gorm:"size:64" json:"-"`
	UserAgent      string `gorm:"size:512" json:"-"`

	YearsExperience *int          `json:"years_experience,omitempty"`
	EducationLevel  string        `gorm:"size:64" json:"education_level,omitempty"`
	Certifications  []Certificate `gorm:"serializer:json" json:"certifications,omitempty"`
	CATTools        []string      `gorm:"serializer:json" json:"cat_tools,omitempty"`
	ServicesOffered []string      `gorm:"serializer:json" json:"services_offered,omitempty"`
	Domains         []string      `gorm:"serializer:json" json:"domains,omitempty"`
	RateExpectation *float64      `json:"rate_expectation,omitempty"`

	CogYearsExperience     *int     `json:"cog_years_experience,omitempty"`
	CogDegreeField         string   `gorm:"size:128" json:"cog_degree_field,omitempty"`
	CogCredentials         string   `gorm:"type:text" json:"cog_credentials,omitempty"`
	CogInstrumentTypes     []string `gorm:"serializer:json" json:"cog_instrument_types,omitempty"`
	CogTherapyAreas        []string `gorm:"serializer:json" json:"cog_therapy_areas,omitempty"`
	CogPharmaClients       string   `gorm:"type:text" json:"cog_pharma_clients,omitempty"`
	CogISPORFamiliarity    string   `gorm:"size:32" json:"cog_ispor_familiarity,omitempty"`
	CogFDAFamiliarity      string   `gorm:"size:32" json:"cog_fda_familiarity,omitempty"`
	CogPriorDebriefReports bool     `json:"cog_prior_debrief_reports"`
	CogNativeLanguage      string   `gorm:"size:16" json:"cog_native_language,omitempty"`
	CogAvailability        string   `gorm:"size:64" json:"cog_availability,omitempty"`

	Status          string         `gorm:"size:32;not null;index" json:"status"`
	PrescreenScore  *float64       `json:"prescreen_score"`
	PrescreenResult datatypes.JSON `json:"prescreen_result,omitempty"`
	PrescreenedAt   *time.Time     `json:"prescreened_at,omitempty"`

	AssignedTier   *string    `gorm:"size:16" json:"assigned_tier"`
	TierOverrideBy *uint      `json:"tier_override_by,omitempty"`
	TierOverrideAt *time.Time `json:"tier_override_at,omitempty"`

	NegotiationLog []NegotiationEvent `gorm:"serializer:json" json:"negotiation_log,omitempty"`

	StaffReviewNotes string     `gorm:"type:text" json:"staff_review_notes,omitempty"`
	StaffReviewedBy  *uint      `json:"staff_reviewed_by,omitempty"`
	StaffReviewedAt  *time.Time `json:"staff_reviewed_at,omitempty"`
	WaitlistNotes    string     `gorm:"type:text" json:"waitlist_notes,omitempty"`

	RejectionReason        string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	RejectionEmailStatus   *string    `gorm:"size:16;index" json:"rejection_email_status,omitempty"`
	RejectionEmailQueuedAt *time.Time `json:"rejection_email_queued_at,omitempty"`
	CooldownUntil          *time.Time `json:"cooldown_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Combinations []TestCombination `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"combinations,omitempty"`
}

// Certificate is a professional credential declared on the form.
type Certificate struct {
	Name          string     `json:"name"`
	CustomName    string     `json:"custom_name,omitempty"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	FileReference string     `json:"file_reference,omitempty"`
}

// NegotiationEvent is one entry of the append-only rate negotiation log.
type NegotiationEvent struct {
	Event     string    `json:"event"`
	Amount    *float64  `json:"amount,omitempty"`
	Note      string    `json:"note,omitempty"`
	ActorID   *uint     `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsTranslator reports whether the application follows the testing path.
func (a Application) IsTranslator() bool {
	return a.RoleType == RoleTypeTranslator
}
