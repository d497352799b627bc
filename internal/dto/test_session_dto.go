package dto

import "time"

// TestView is what an applicant sees when redeeming a token. It never carries reference material.
type TestView struct {
	ApplicationNumber    string     `json:"application_number"`
	ApplicantName        string     `json:"applicant_name"`
	SourceLanguage       string     `json:"source_language"`
	TargetLanguage       string     `json:"target_language"`
	Domain               string     `json:"domain"`
	ServiceType          string     `json:"service_type"`
	Difficulty           string     `json:"difficulty"`
	Title                string     `json:"title"`
	Instructions         string     `json:"instructions"`
	SourceText           string     `json:"source_text"`
	LQASourceTranslation string     `json:"lqa_source_translation,omitempty"`
	MQMDimensions        []string   `json:"mqm_dimensions,omitempty"`
	Status               string     `json:"status"`
	DraftContent         string     `json:"draft_content,omitempty"`
	DraftLastSavedAt     *time.Time `json:"draft_last_saved_at,omitempty"`
	ExpiresAt            time.Time  `json:"expires_at"`
	HoursRemaining       int        `json:"hours_remaining"`
	MinutesRemaining     int        `json:"minutes_remaining"`
}

// SaveDraftRequest carries autosaved content.
type SaveDraftRequest struct {
	Content string `json:"content" validate:"max=200000"`
}

// SaveDraftResponse acknowledges a saved draft.
type SaveDraftResponse struct {
	SavedAt time.Time `json:"saved_at"`
}

// SubmitTestRequest is the final answer for a test.
type SubmitTestRequest struct {
	Content string `json:"content" validate:"required,max=200000"`
	Notes   string `json:"notes" validate:"omitempty,max=4000"`
	FileURL string `json:"file_url" validate:"omitempty,url,max=512"`
}

// SubmitTestResponse acknowledges a submitted test.
type SubmitTestResponse struct {
	SubmissionID      uint      `json:"submission_id"`
	ApplicationStatus string    `json:"application_status"`
	SubmittedAt       time.Time `json:"submitted_at"`
}

// UploadResponse describes a stored test attachment.
type UploadResponse struct {
	URL       string `json:"url"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}
