package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/observability"
	"github.com/noah-isme/screening-api/pkg/ai"
)

const maxOracleAttempts = 2

var errOracleUnavailable = errors.New("scoring oracle is not configured")

// Orchestrator applies the retry-once-then-fallback policy to every oracle call.
type Orchestrator struct {
	oracle  ai.Oracle
	timeout time.Duration
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewOrchestrator constructs the policy wrapper. A nil oracle always yields fallback judgments.
func NewOrchestrator(oracle ai.Oracle, timeout time.Duration, logger zerolog.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Orchestrator{
		oracle:  oracle,
		timeout: timeout,
		logger:  logger.With().Str("component", "assessment_orchestrator").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/screening-api/internal/service/orchestrator"),
	}
}

// Prescreen scores an application profile. The result is a fallback marker when the oracle could not answer.
func (o *Orchestrator) Prescreen(ctx context.Context, application models.Application) ai.Judgment {
	kind := ai.KindTranslatorPrescreen
	if application.RoleType == models.RoleTypeCognitiveDebriefing {
		kind = ai.KindConsultantPrescreen
	}
	return o.score(ctx, ai.ScoreRequest{Kind: kind, Applicant: applicantProfile(application)})
}

// Assess scores a submitted test attempt.
func (o *Orchestrator) Assess(ctx context.Context, serviceType string, attempt *ai.TestAttempt) ai.Judgment {
	kind := ai.KindTranslationAssessment
	if serviceType == models.ServiceLQAReview {
		kind = ai.KindLQAAssessment
	}
	return o.score(ctx, ai.ScoreRequest{Kind: kind, Attempt: attempt})
}

func (o *Orchestrator) score(ctx context.Context, req ai.ScoreRequest) ai.Judgment {
	ctx, span := o.tracer.Start(ctx, "orchestrator.score", trace.WithAttributes(attribute.String("kind", string(req.Kind))))
	defer span.End()

	if o.oracle == nil {
		observability.OracleFallbacks().WithLabelValues(string(req.Kind)).Inc()
		return ai.FallbackJudgment(req.Kind, errOracleUnavailable.Error())
	}

	var lastErr error
	for attempt := 1; attempt <= maxOracleAttempts; attempt++ {
		judgment, err := o.call(ctx, req)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return judgment
		}
		lastErr = err
		o.logger.Warn().Err(err).
			Str("kind", string(req.Kind)).
			Int("attempt", attempt).
			Msg("oracle call failed")
		if ctx.Err() != nil {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetAttributes(attribute.Bool("fallback", true))
	observability.OracleFallbacks().WithLabelValues(string(req.Kind)).Inc()
	return ai.FallbackJudgment(req.Kind, lastErr.Error())
}

func (o *Orchestrator) call(ctx context.Context, req ai.ScoreRequest) (ai.Judgment, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	judgment, err := o.oracle.Score(callCtx, req)
	if err != nil {
		return ai.Judgment{}, err
	}
	if judgment.Kind != req.Kind {
		return ai.Judgment{}, errors.New("oracle returned a judgment of kind " + string(judgment.Kind) + " for " + string(req.Kind))
	}
	return judgment, nil
}

func applicantProfile(application models.Application) *ai.ApplicantProfile {
	profile := &ai.ApplicantProfile{
		ApplicationNumber:      application.ApplicationNumber,
		FullName:               application.FullName,
		Country:                application.Country,
		YearsExperience:        application.YearsExperience,
		EducationLevel:         application.EducationLevel,
		CATTools:               application.CATTools,
		Services:               application.ServicesOffered,
		Domains:                application.Domains,
		RateExpectation:        application.RateExpectation,
		Notes:                  application.Notes,
		CogYearsExperience:     application.CogYearsExperience,
		CogDegreeField:         application.CogDegreeField,
		CogCredentials:         application.CogCredentials,
		CogInstrumentTypes:     application.CogInstrumentTypes,
		CogTherapyAreas:        application.CogTherapyAreas,
		CogPharmaClients:       application.CogPharmaClients,
		CogISPORFamiliarity:    application.CogISPORFamiliarity,
		CogFDAFamiliarity:      application.CogFDAFamiliarity,
		CogPriorDebriefReports: application.CogPriorDebriefReports,
		CogNativeLanguage:      application.CogNativeLanguage,
	}

	for _, certificate := range application.Certifications {
		name := certificate.Name
		if certificate.CustomName != "" {
			name = certificate.CustomName
		}
		if certificate.ExpiryDate != nil {
			name += " (expires " + certificate.ExpiryDate.Format("2006-01-02") + ")"
		}
		profile.Certifications = append(profile.Certifications, name)
	}

	seen := map[string]struct{}{}
	for _, combination := range application.Combinations {
		pair := combination.SourceLanguage + " → " + combination.TargetLanguage
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		profile.LanguagePairs = append(profile.LanguagePairs, pair)
	}

	return profile
}

func testAttempt(entry models.TestLibraryEntry, submission models.TestSubmission) *ai.TestAttempt {
	attempt := &ai.TestAttempt{
		SourceLanguage:       entry.SourceLanguage,
		TargetLanguage:       entry.TargetLanguage,
		Domain:               entry.Domain,
		ServiceType:          entry.ServiceType,
		Difficulty:           entry.Difficulty,
		Instructions:         entry.Instructions,
		SourceText:           entry.SourceText,
		ReferenceTranslation: entry.ReferenceTranslation,
		LQASourceTranslation: entry.LQASourceTranslation,
		Rubric:               entry.AIAssessmentRubric,
		Submission:           submission.SubmittedContent,
		ApplicantNotes:       submission.SubmittedNotes,
	}
	for _, item := range entry.LQAAnswerKey {
		attempt.AnswerKey = append(attempt.AnswerKey, ai.AnswerKeyItem{
			Location: item.Location,
			Category: item.Category,
			Severity: item.Severity,
			Note:     item.Note,
		})
	}
	return attempt
}
