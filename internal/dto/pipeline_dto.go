package dto

// PrescreenOutcome reports what a prescreen run decided.
type PrescreenOutcome struct {
	ApplicationID uint     `json:"application_id"`
	Status        string   `json:"status"`
	Score         *float64 `json:"score"`
	Fallback      bool     `json:"fallback"`
	Skipped       bool     `json:"skipped"`
}

// IssuedTest is one token issued by the matching engine.
type IssuedTest struct {
	CombinationID uint   `json:"combination_id"`
	SubmissionID  uint   `json:"submission_id"`
	TestID        uint   `json:"test_id"`
	Label         string `json:"label"`
	Link          string `json:"link"`
}

// CombinationFailure isolates the error of one combination in a batch.
type CombinationFailure struct {
	CombinationID uint   `json:"combination_id"`
	Error         string `json:"error"`
}

// AssignTestsResult summarises one matching run.
type AssignTestsResult struct {
	ApplicationID     uint                 `json:"application_id"`
	Issued            []IssuedTest         `json:"issued"`
	NoTestAvailable   []uint               `json:"no_test_available"`
	Failures          []CombinationFailure `json:"failures"`
	ApplicationStatus string               `json:"application_status"`
	InvitationSent    bool                 `json:"invitation_sent"`
}

// AssessmentOutcome reports the routing of one assessed submission.
type AssessmentOutcome struct {
	SubmissionID      uint     `json:"submission_id"`
	CombinationID     uint     `json:"combination_id"`
	CombinationStatus string   `json:"combination_status"`
	Score             *float64 `json:"score"`
	Fallback          bool     `json:"fallback"`
	ApplicationStatus string   `json:"application_status"`
	Skipped           bool     `json:"skipped"`
}

// SweepResult counts the side effects of one follow-up sweep per stage.
type SweepResult struct {
	Reminders       int  `json:"reminders"`
	Expired         int  `json:"expired"`
	FinalChance     int  `json:"final_chance"`
	Archived        int  `json:"archived"`
	ArchivalChecked int  `json:"archival_checked"`
	RejectionEmails int  `json:"rejection_emails"`
	Redispatched    int  `json:"redispatched"`
	Errors          int  `json:"errors"`
	Skipped         bool `json:"skipped"`
}
