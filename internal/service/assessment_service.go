package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/observability"
	"github.com/noah-isme/screening-api/internal/repository"
)

// AssessmentService scores submitted tests and routes their combinations.
type AssessmentService interface {
	AssessSubmission(ctx context.Context, submissionID uint) (dto.AssessmentOutcome, error)
}

type assessmentService struct {
	submissions  repository.TestSubmissionRepository
	combinations repository.CombinationRepository
	library      repository.TestLibraryRepository
	orchestrator *Orchestrator
	lifecycle    LifecycleService
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NewAssessmentService constructs the assessment service.
func NewAssessmentService(submissions repository.TestSubmissionRepository, combinations repository.CombinationRepository, library repository.TestLibraryRepository, orchestrator *Orchestrator, lifecycle LifecycleService, logger zerolog.Logger) AssessmentService {
	return &assessmentService{
		submissions:  submissions,
		combinations: combinations,
		library:      library,
		orchestrator: orchestrator,
		lifecycle:    lifecycle,
		logger:       logger.With().Str("component", "assessment_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/screening-api/internal/service/assessment"),
		now:          time.Now,
	}
}

// AssessSubmission is idempotent: a submission that is no longer awaiting assessment is skipped.
func (s *assessmentService) AssessSubmission(ctx context.Context, submissionID uint) (dto.AssessmentOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "assessment.assess_submission", trace.WithAttributes(attribute.Int("submission.id", int(submissionID))))
	defer span.End()

	outcome := dto.AssessmentOutcome{SubmissionID: submissionID}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		err = mapNotFound(err, ErrTokenNotFound)
		span.RecordError(err)
		return outcome, err
	}
	outcome.CombinationID = submission.CombinationID

	if submission.Status != models.SubmissionStatusSubmitted {
		outcome.Skipped = true
		return outcome, nil
	}

	combination, err := s.combinations.GetByID(ctx, submission.CombinationID)
	if err != nil {
		err = mapNotFound(err, ErrCombinationNotFound)
		span.RecordError(err)
		return outcome, err
	}

	entry, err := s.library.GetByID(ctx, submission.TestID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "test lookup failed")
		return outcome, wrapf(err, "load test %d", submission.TestID)
	}

	judgment := s.orchestrator.Assess(ctx, combination.ServiceType, testAttempt(entry, submission))
	now := s.now().UTC()
	resultJSON := judgmentJSON(judgment)

	target := models.CombinationStatusAssessed
	var score *float64
	if value, ok := judgment.Score(); ok {
		score = &value
		target = routeAssessment(value)
	}

	if err := s.submissions.MarkAssessed(ctx, submissionID, score, resultJSON, now); err != nil {
		if isConditionNotMet(err) {
			outcome.Skipped = true
			return outcome, nil
		}
		span.RecordError(err)
		return outcome, wrapf(err, "mark submission %d assessed", submissionID)
	}

	fields := map[string]interface{}{
		"score":             score,
		"assessment_result": resultJSON,
	}
	if target == models.CombinationStatusApproved {
		fields["approved_at"] = now
	}
	err = s.combinations.TransitionStatus(ctx, combination.ID, []string{models.CombinationStatusTestSubmitted}, target, fields)
	if err != nil && !isConditionNotMet(err) {
		span.RecordError(err)
		return outcome, wrapf(err, "route combination %d", combination.ID)
	}
	if err == nil {
		s.recordOutcome(ctx, entry.ID, target)
	} else {
		s.logger.Warn().Uint("combination_id", combination.ID).Msg("combination left test_submitted before routing")
	}

	outcome.CombinationStatus = target
	outcome.Score = score
	outcome.Fallback = judgment.IsFallback()
	observability.AssessmentOutcomes().WithLabelValues("assessment", target).Inc()

	status, err := s.lifecycle.RecomputeFromCombinations(ctx, submission.ApplicationID)
	if err != nil {
		span.RecordError(err)
		return outcome, err
	}
	outcome.ApplicationStatus = status

	s.logger.Info().
		Uint("submission_id", submissionID).
		Uint("combination_id", combination.ID).
		Str("combination_status", target).
		Bool("fallback", outcome.Fallback).
		Str("application_status", status).
		Msg("submission assessed")

	return outcome, nil
}

func (s *assessmentService) recordOutcome(ctx context.Context, testID uint, status string) {
	var err error
	switch status {
	case models.CombinationStatusApproved:
		err = s.library.IncrementOutcome(ctx, testID, true)
	case models.CombinationStatusRejected:
		err = s.library.IncrementOutcome(ctx, testID, false)
	default:
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Uint("test_id", testID).Msg("failed to update test outcome counters")
	}
}

// routeAssessment maps a test score to the combination outcome.
func routeAssessment(score float64) string {
	switch {
	case score >= AssessmentApproveScore:
		return models.CombinationStatusApproved
	case score >= AssessmentBorderlineMin:
		return models.CombinationStatusAssessed
	default:
		return models.CombinationStatusRejected
	}
}
