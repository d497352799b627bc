package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/observability"
	"github.com/noah-isme/screening-api/internal/queue"
	"github.com/noah-isme/screening-api/internal/repository"
	"github.com/noah-isme/screening-api/pkg/ai"
)

const maxRecomputeAttempts = 3

// testPhaseStatuses are the only statuses the aggregate rule may move an application out of.
var testPhaseStatuses = []string{
	models.ApplicationStatusTestSent,
	models.ApplicationStatusTestInProgress,
	models.ApplicationStatusTestSubmitted,
}

// LifecycleService drives the automatic part of the application state machine.
type LifecycleService interface {
	RunPrescreen(ctx context.Context, applicationID uint) (dto.PrescreenOutcome, error)
	RecomputeFromCombinations(ctx context.Context, applicationID uint) (string, error)
}

type lifecycleService struct {
	applications repository.ApplicationRepository
	combinations repository.CombinationRepository
	orchestrator *Orchestrator
	notifier     Notifier
	dispatcher   queue.Dispatcher
	settings     PipelineSettings
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NewLifecycleService constructs the lifecycle service.
func NewLifecycleService(applications repository.ApplicationRepository, combinations repository.CombinationRepository, orchestrator *Orchestrator, notifier Notifier, dispatcher queue.Dispatcher, settings PipelineSettings, logger zerolog.Logger) LifecycleService {
	return &lifecycleService{
		applications: applications,
		combinations: combinations,
		orchestrator: orchestrator,
		notifier:     notifier,
		dispatcher:   dispatcher,
		settings:     settings.WithDefaults(),
		logger:       logger.With().Str("component", "lifecycle_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/screening-api/internal/service/lifecycle"),
		now:          time.Now,
	}
}

// RunPrescreen scores the application and routes it. Re-delivery of the task is a no-op once routed.
func (s *lifecycleService) RunPrescreen(ctx context.Context, applicationID uint) (dto.PrescreenOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.run_prescreen", trace.WithAttributes(attribute.Int("application.id", int(applicationID))))
	defer span.End()

	outcome := dto.PrescreenOutcome{ApplicationID: applicationID}

	application, err := s.applications.GetWithCombinations(ctx, applicationID)
	if err != nil {
		err = mapNotFound(err, ErrApplicationNotFound)
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return outcome, err
	}

	switch application.Status {
	case models.ApplicationStatusSubmitted:
		err := s.applications.TransitionStatus(ctx, applicationID, []string{models.ApplicationStatusSubmitted}, models.ApplicationStatusPrescreening, nil)
		if isConditionNotMet(err) {
			outcome.Status = application.Status
			outcome.Skipped = true
			return outcome, nil
		}
		if err != nil {
			span.RecordError(err)
			return outcome, wrapf(err, "start prescreen for application %d", applicationID)
		}
		observability.StatusTransitions().WithLabelValues(models.ApplicationStatusPrescreening).Inc()
	case models.ApplicationStatusPrescreening:
		// Redelivered task or staff re-run; the routing CAS below decides the winner.
	default:
		outcome.Status = application.Status
		outcome.Skipped = true
		return outcome, nil
	}

	judgment := s.orchestrator.Prescreen(ctx, application)
	now := s.now().UTC()

	target, score := routePrescreen(application, judgment)
	fields := map[string]interface{}{
		"prescreen_score":  score,
		"prescreen_result": judgmentJSON(judgment),
		"prescreened_at":   now,
	}
	if tier := suggestedTier(judgment); tier != "" && application.AssignedTier == nil {
		fields["assigned_tier"] = tier
	}
	if target == models.ApplicationStatusRejected {
		for key, value := range rejectionFields(now, fmt.Sprintf("AI pre-screening score: %s/100", formatScore(*score)), s.settings.CooldownPeriod) {
			fields[key] = value
		}
	}

	err = s.applications.TransitionStatus(ctx, applicationID, []string{models.ApplicationStatusPrescreening}, target, fields)
	if isConditionNotMet(err) {
		outcome.Skipped = true
		return outcome, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "route failed")
		return outcome, wrapf(err, "route prescreen for application %d", applicationID)
	}

	observability.StatusTransitions().WithLabelValues(target).Inc()
	observability.AssessmentOutcomes().WithLabelValues("prescreen", target).Inc()

	outcome.Status = target
	outcome.Score = score
	outcome.Fallback = judgment.IsFallback()
	span.SetAttributes(attribute.String("prescreen.status", target), attribute.Bool("prescreen.fallback", outcome.Fallback))

	s.logger.Info().
		Uint("application_id", applicationID).
		Str("status", target).
		Bool("fallback", outcome.Fallback).
		Msg("prescreen routed")

	switch target {
	case models.ApplicationStatusPrescreened:
		s.notify(ctx, application, TemplatePrescreenPassed, nil)
		dispatchTask(ctx, s.dispatcher, queue.Task{Kind: queue.KindAssignTests, ApplicationID: applicationID}, s.logger)
	case models.ApplicationStatusStaffReview:
		s.notify(ctx, application, TemplateUnderReview, nil)
	}

	return outcome, nil
}

// RecomputeFromCombinations re-derives the application status from its combinations.
// Applying it again without intervening changes leaves the application untouched.
func (s *lifecycleService) RecomputeFromCombinations(ctx context.Context, applicationID uint) (string, error) {
	ctx, span := s.tracer.Start(ctx, "lifecycle.recompute", trace.WithAttributes(attribute.Int("application.id", int(applicationID))))
	defer span.End()

	for attempt := 1; ; attempt++ {
		application, err := s.applications.GetWithCombinations(ctx, applicationID)
		if err != nil {
			err = mapNotFound(err, ErrApplicationNotFound)
			span.RecordError(err)
			return "", err
		}

		statuses := make([]string, 0, len(application.Combinations))
		for _, combination := range application.Combinations {
			statuses = append(statuses, combination.Status)
		}

		target, ok := models.AggregateApplicationStatus(statuses)
		if !ok || target == application.Status || !containsStatus(testPhaseStatuses, application.Status) || !models.CanTransition(application.Status, target) {
			return application.Status, nil
		}

		now := s.now().UTC()
		var fields map[string]interface{}
		if target == models.ApplicationStatusRejected {
			fields = rejectionFields(now, testRejectionReason(application.Combinations), s.settings.CooldownPeriod)
		}

		err = s.applications.TransitionStatus(ctx, applicationID, []string{application.Status}, target, fields)
		if isConditionNotMet(err) && attempt < maxRecomputeAttempts {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return application.Status, wrapf(err, "apply aggregate status to application %d", applicationID)
		}

		observability.StatusTransitions().WithLabelValues(target).Inc()
		s.logger.Info().
			Uint("application_id", applicationID).
			Str("from", application.Status).
			Str("to", target).
			Msg("application status recomputed")

		if target == models.ApplicationStatusStaffReview {
			s.notify(ctx, application, TemplateUnderReview, nil)
		}
		return target, nil
	}
}

func (s *lifecycleService) notify(ctx context.Context, application models.Application, template string, params map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	params["applicationNumber"] = application.ApplicationNumber
	s.notifier.Send(ctx, Notification{
		ApplicationID: application.ID,
		Template:      template,
		Email:         application.Email,
		Name:          application.FullName,
		Params:        params,
	})
}

// routePrescreen maps a prescreen judgment to the next status and the score to persist.
func routePrescreen(application models.Application, judgment ai.Judgment) (string, *float64) {
	value, ok := judgment.Score()
	if !ok {
		return models.ApplicationStatusStaffReview, nil
	}
	score := &value

	if application.RoleType == models.RoleTypeCognitiveDebriefing {
		return models.ApplicationStatusStaffReview, score
	}

	switch {
	case value >= PrescreenPassScore:
		return models.ApplicationStatusPrescreened, score
	case value >= PrescreenReviewScore:
		return models.ApplicationStatusStaffReview, score
	default:
		return models.ApplicationStatusRejected, score
	}
}

func suggestedTier(judgment ai.Judgment) string {
	if judgment.TranslatorPrescreen == nil {
		return ""
	}
	switch tier := judgment.TranslatorPrescreen.SuggestedTier; tier {
	case models.TierStandard, models.TierSenior, models.TierExpert:
		return tier
	default:
		return ""
	}
}

func suggestedDifficulty(raw []byte) string {
	judgment, ok := decodeJudgment(raw)
	if !ok || judgment.TranslatorPrescreen == nil {
		return models.DifficultyIntermediate
	}
	switch difficulty := judgment.TranslatorPrescreen.SuggestedTestDifficulty; difficulty {
	case models.DifficultyBeginner, models.DifficultyIntermediate, models.DifficultyAdvanced:
		return difficulty
	default:
		return models.DifficultyIntermediate
	}
}

func testRejectionReason(combinations []models.TestCombination) string {
	var best *float64
	for _, combination := range combinations {
		if combination.Status != models.CombinationStatusRejected || combination.Score == nil {
			continue
		}
		if best == nil || *combination.Score > *best {
			value := *combination.Score
			best = &value
		}
	}
	if best == nil {
		return "Skills test not passed"
	}
	return fmt.Sprintf("Skills test score: %s/100", formatScore(*best))
}
