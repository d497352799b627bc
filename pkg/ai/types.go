package ai

import (
	"context"
	"encoding/json"
)

// Kind discriminates both the request being scored and the shape of the judgment returned.
type Kind string

// Judgment kinds.
const (
	KindTranslatorPrescreen   Kind = "translator_prescreen"
	KindConsultantPrescreen   Kind = "consultant_prescreen"
	KindTranslationAssessment Kind = "translation_assessment"
	KindLQAAssessment         Kind = "lqa_assessment"
	KindFallback              Kind = "fallback"
)

// FallbackErrorCode marks judgments produced without a usable oracle answer.
const FallbackErrorCode = "ai_fallback"

// Oracle scores applicants and test submissions.
type Oracle interface {
	Score(ctx context.Context, req ScoreRequest) (Judgment, error)
}

// ScoreRequest carries the context for one scoring call. Applicant is set for
// prescreen kinds and Attempt for assessment kinds.
type ScoreRequest struct {
	Kind      Kind
	Applicant *ApplicantProfile
	Attempt   *TestAttempt
}

// ApplicantProfile is the prescreen view of an application.
type ApplicantProfile struct {
	ApplicationNumber string
	FullName          string
	Country           string
	YearsExperience   *int
	EducationLevel    string
	Certifications    []string
	CATTools          []string
	Services          []string
	Domains           []string
	LanguagePairs     []string
	RateExpectation   *float64
	Notes             string

	CogYearsExperience     *int
	CogDegreeField         string
	CogCredentials         string
	CogInstrumentTypes     []string
	CogTherapyAreas        []string
	CogPharmaClients       string
	CogISPORFamiliarity    string
	CogFDAFamiliarity      string
	CogPriorDebriefReports bool
	CogNativeLanguage      string
}

// TestAttempt is the assessment view of a submitted test.
type TestAttempt struct {
	SourceLanguage       string
	TargetLanguage       string
	Domain               string
	ServiceType          string
	Difficulty           string
	Instructions         string
	SourceText           string
	ReferenceTranslation string
	LQASourceTranslation string
	AnswerKey            []AnswerKeyItem
	Rubric               string
	Submission           string
	ApplicantNotes       string
}

// AnswerKeyItem is one expected LQA finding.
type AnswerKeyItem struct {
	Location string `json:"location"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Note     string `json:"note,omitempty"`
}

// Judgment is a tagged union; Kind selects which payload field is populated.
type Judgment struct {
	Kind                  Kind                   `json:"kind"`
	Provider              string                 `json:"provider,omitempty"`
	Model                 string                 `json:"model,omitempty"`
	TranslatorPrescreen   *TranslatorPrescreen   `json:"translator_prescreen,omitempty"`
	ConsultantPrescreen   *ConsultantPrescreen   `json:"consultant_prescreen,omitempty"`
	TranslationAssessment *TranslationAssessment `json:"translation_assessment,omitempty"`
	LQAAssessment         *LQAAssessment         `json:"lqa_assessment,omitempty"`
	Fallback              *Fallback              `json:"fallback,omitempty"`
}

// TranslatorPrescreen is the prescreen shape for skills providers.
type TranslatorPrescreen struct {
	OverallScore              float64  `json:"overall_score"`
	Recommendation            string   `json:"recommendation"`
	DemandMatch               string   `json:"demand_match"`
	CertificationQuality      string   `json:"certification_quality"`
	ExperienceConsistency     string   `json:"experience_consistency"`
	SampleQuality             string   `json:"sample_quality,omitempty"`
	RateExpectationAssessment string   `json:"rate_expectation_assessment"`
	RedFlags                  []string `json:"red_flags"`
	Notes                     string   `json:"notes"`
	SuggestedTestDifficulty   string   `json:"suggested_test_difficulty,omitempty"`
	SuggestedTestTypes        []string `json:"suggested_test_types,omitempty"`
	SuggestedTier             string   `json:"suggested_tier,omitempty"`
}

// ConsultantPrescreen is the prescreen shape for domain consultants. It is advisory only.
type ConsultantPrescreen struct {
	OverallScore            float64  `json:"overall_score"`
	Recommendation          string   `json:"recommendation"`
	COAInstrumentExperience string   `json:"coa_instrument_experience"`
	GuidelineFamiliarity    string   `json:"guideline_familiarity"`
	InterviewingSkills      string   `json:"interviewing_skills"`
	LanguageFluency         string   `json:"language_fluency"`
	ReportWritingExperience string   `json:"report_writing_experience"`
	RedFlags                []string `json:"red_flags"`
	Notes                   string   `json:"notes"`
}

// TranslationAssessment scores a translation or translation review test.
type TranslationAssessment struct {
	OverallScore    float64            `json:"overall_score"`
	Pass            bool               `json:"pass"`
	DimensionScores DimensionScores    `json:"dimension_scores"`
	Errors          []TranslationError `json:"errors"`
	Strengths       []string           `json:"strengths,omitempty"`
	FeedbackDraft   string             `json:"feedback_draft,omitempty"`
	SuggestedTier   string             `json:"suggested_tier,omitempty"`
	Confidence      string             `json:"confidence,omitempty"`
}

// DimensionScores are the weighted MQM dimensions of a translation assessment.
type DimensionScores struct {
	Accuracy               float64 `json:"accuracy"`
	Fluency                float64 `json:"fluency"`
	Terminology            float64 `json:"terminology"`
	Formatting             float64 `json:"formatting"`
	CertificationReadiness float64 `json:"certification_readiness"`
}

// TranslationError is one error found in a translation.
type TranslationError struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	Location string `json:"location,omitempty"`
	Note     string `json:"note,omitempty"`
}

// LQAAssessment scores a linguistic quality review test against its answer key.
type LQAAssessment struct {
	OverallScore              float64  `json:"overall_score"`
	Pass                      bool     `json:"pass"`
	ErrorsIdentifiedCorrectly int      `json:"errors_identified_correctly"`
	ErrorsMissed              int      `json:"errors_missed"`
	FalsePositives            int      `json:"false_positives"`
	CategoryAccuracy          float64  `json:"category_accuracy"`
	SeverityAccuracy          float64  `json:"severity_accuracy"`
	CommentQuality            float64  `json:"comment_quality"`
	DetailedFeedback          string   `json:"detailed_feedback,omitempty"`
	Strengths                 []string `json:"strengths,omitempty"`
	Weaknesses                []string `json:"weaknesses,omitempty"`
	Confidence                string   `json:"confidence,omitempty"`
}

// Fallback marks a judgment that could not be obtained from the oracle.
type Fallback struct {
	Error         string `json:"error"`
	Reason        string `json:"reason"`
	AttemptedKind Kind   `json:"attempted_kind"`
}

// FallbackJudgment builds the marker recorded when scoring gave up.
func FallbackJudgment(attempted Kind, reason string) Judgment {
	return Judgment{
		Kind: KindFallback,
		Fallback: &Fallback{
			Error:         FallbackErrorCode,
			Reason:        reason,
			AttemptedKind: attempted,
		},
	}
}

// IsFallback reports whether the judgment is a fallback marker.
func (j Judgment) IsFallback() bool {
	return j.Kind == KindFallback
}

// Score returns the overall score. The boolean is false for fallback markers.
func (j Judgment) Score() (float64, bool) {
	switch j.Kind {
	case KindTranslatorPrescreen:
		if j.TranslatorPrescreen != nil {
			return j.TranslatorPrescreen.OverallScore, true
		}
	case KindConsultantPrescreen:
		if j.ConsultantPrescreen != nil {
			return j.ConsultantPrescreen.OverallScore, true
		}
	case KindTranslationAssessment:
		if j.TranslationAssessment != nil {
			return j.TranslationAssessment.OverallScore, true
		}
	case KindLQAAssessment:
		if j.LQAAssessment != nil {
			return j.LQAAssessment.OverallScore, true
		}
	}
	return 0, false
}

// MarshalJSONBytes renders the judgment for storage in a JSON column.
func (j Judgment) MarshalJSONBytes() ([]byte, error) {
	return json.Marshal(j)
}

// IsPrescreen reports whether the kind scores an application rather than a test.
func (k Kind) IsPrescreen() bool {
	return k == KindTranslatorPrescreen || k == KindConsultantPrescreen
}

// UnmarshalJSONBytes restores a judgment stored with MarshalJSONBytes.
func (j *Judgment) UnmarshalJSONBytes(raw []byte) error {
	return json.Unmarshal(raw, j)
}
