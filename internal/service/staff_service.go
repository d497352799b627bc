package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/observability"
	"github.com/noah-isme/screening-api/internal/queue"
	"github.com/noah-isme/screening-api/internal/repository"
)

const defaultStaffRejectionReason = "Application not accepted after staff review"

// StaffService carries the human decisions of the review dashboard.
type StaffService interface {
	Approve(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffDecisionRequest) (dto.StaffActionResponse, error)
	Reject(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffDecisionRequest) (dto.StaffActionResponse, error)
	Waitlist(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffDecisionRequest) (dto.StaffActionResponse, error)
	RequestInfo(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffDecisionRequest) (dto.StaffActionResponse, error)
	Archive(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffDecisionRequest) (dto.StaffActionResponse, error)
	OverrideTier(ctx context.Context, actor dto.StaffActor, id uint, req dto.TierOverrideRequest) (dto.ApplicationDetail, error)
	SaveNotes(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffNotesRequest) (dto.ApplicationDetail, error)
	AppendNegotiation(ctx context.Context, actor dto.StaffActor, id uint, req dto.NegotiationRequest) (dto.ApplicationDetail, error)
	InterceptRejection(ctx context.Context, actor dto.StaffActor, id uint) (dto.StaffActionResponse, error)
	DecideCombination(ctx context.Context, actor dto.StaffActor, applicationID, combinationID uint, req dto.CombinationDecisionRequest) (dto.ApplicationDetail, error)
	SkipCombination(ctx context.Context, actor dto.StaffActor, applicationID, combinationID uint) (dto.ApplicationDetail, error)
	RerunPrescreen(ctx context.Context, actor dto.StaffActor, id uint) (dto.StaffActionResponse, error)
	ResendTests(ctx context.Context, actor dto.StaffActor, id uint, req dto.ResendTestsRequest) (dto.StaffActionResponse, error)
}

type staffService struct {
	applications repository.ApplicationRepository
	combinations repository.CombinationRepository
	submissions  repository.TestSubmissionRepository
	library      repository.TestLibraryRepository
	lifecycle    LifecycleService
	notifier     Notifier
	dispatcher   queue.Dispatcher
	validator    *validator.Validate
	policy       *bluemonday.Policy
	settings     PipelineSettings
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NewStaffService constructs the staff decision service.
func NewStaffService(
	applications repository.ApplicationRepository,
	combinations repository.CombinationRepository,
	submissions repository.TestSubmissionRepository,
	library repository.TestLibraryRepository,
	lifecycle LifecycleService,
	notifier Notifier,
	dispatcher queue.Dispatcher,
	validate *validator.Validate,
	settings PipelineSettings,
	logger zerolog.Logger,
) StaffService {
	return &staffService{
		applications: applications,
		combinations: combinations,
		submissions:  submissions,
		library:      library,
		lifecycle:    lifecycle,
		notifier:     notifier,
		dispatcher:   dispatcher,
		validator:    validate,
		policy:       bluemonday.StrictPolicy(),
		settings:     settings.WithDefaults(),
		logger:       logger.With().Str("component", "staff_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/screening-api/internal/service/staff"),
		now:          time.Now,
	}
}

func (s *staffService) Approve(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffDecisionRequest) (dto.StaffActionResponse, error) {
	return s.decide(ctx, actor, id, req, models.ApplicationStatusApproved, nil, TemplateApproved)
}

// Reject queues the rejection email behind the hold window so staff can still intercept it.
func (s *staffService) Reject(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffDecisionRequest) (dto.StaffActionResponse, error) {
	reason := strings.TrimSpace(s.policy.Sanitize(req.Reason))
	if reason == "" {
		reason = defaultStaffRejectionReason
	}
	fields := rejectionFields(s.now().UTC(), reason, s.settings.CooldownPeriod)
	return s.decide(ctx, actor, id, req, models.ApplicationStatusRejected, fields, "")
}

func (s *staffService) Waitlist(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffDecisionRequest) (dto.StaffActionResponse, error) {
	fields := map[string]interface{}{"waitlist_notes": strings.TrimSpace(s.policy.Sanitize(req.Notes))}
	return s.decide(ctx, actor, id, req, models.ApplicationStatusWaitlisted, fields, TemplateWaitlisted)
}

func (s *staffService) RequestInfo(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffDecisionRequest) (dto.StaffActionResponse, error) {
	return s.decide(ctx, actor, id, req, models.ApplicationStatusInfoRequested, nil, TemplateRequestMoreInfo)
}

func (s *staffService) Archive(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffDecisionRequest) (dto.StaffActionResponse, error) {
	return s.decide(ctx, actor, id, req, models.ApplicationStatusArchived, nil, "")
}

// decide applies a staff status write. It conflicts only when the application already holds the target status.
func (s *staffService) decide(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffDecisionRequest, target string, extra map[string]interface{}, template string) (dto.StaffActionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "staff.decide", trace.WithAttributes(
		attribute.Int("application.id", int(id)),
		attribute.String("application.target_status", target),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.RecordError(err)
		return dto.StaffActionResponse{}, err
	}

	application, err := s.applications.GetByID(ctx, id)
	if err != nil {
		return dto.StaffActionResponse{}, mapNotFound(err, ErrApplicationNotFound)
	}
	if application.Status == target {
		return dto.StaffActionResponse{}, ErrStatusConflict
	}

	now := s.now().UTC()
	fields := map[string]interface{}{
		"staff_reviewed_by": actor.ID,
		"staff_reviewed_at": now,
	}
	if notes := strings.TrimSpace(s.policy.Sanitize(req.Notes)); notes != "" {
		fields["staff_review_notes"] = notes
	}
	if target != models.ApplicationStatusRejected {
		for key, value := range clearedRejectionFields() {
			fields[key] = value
		}
	}
	for key, value := range extra {
		fields[key] = value
	}

	if err := s.applications.TransitionStatus(ctx, id, models.SourcesFor(target), target, fields); err != nil {
		if isConditionNotMet(err) {
			return dto.StaffActionResponse{}, ErrStatusConflict
		}
		span.RecordError(err)
		return dto.StaffActionResponse{}, wrapf(err, "set application %d %s", id, target)
	}
	observability.StatusTransitions().WithLabelValues(target).Inc()

	s.logger.Info().
		Uint("application_id", id).
		Uint("staff_id", actor.ID).
		Str("from", application.Status).
		Str("to", target).
		Msg("staff decision recorded")

	if template != "" {
		s.notify(ctx, application, template, nil)
	}

	response := dto.StaffActionResponse{ApplicationID: id, Status: target}
	if target == models.ApplicationStatusRejected {
		if until, ok := fields["cooldown_until"].(time.Time); ok {
			response.CooldownUntil = &until
		}
	}
	return response, nil
}

func (s *staffService) OverrideTier(ctx context.Context, actor dto.StaffActor, id uint, req dto.TierOverrideRequest) (dto.ApplicationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ApplicationDetail{}, err
	}
	err := s.applications.Update(ctx, id, map[string]interface{}{
		"assigned_tier":    req.Tier,
		"tier_override_by": actor.ID,
		"tier_override_at": s.now().UTC(),
	})
	if err != nil {
		return dto.ApplicationDetail{}, s.updateError(err)
	}
	s.logger.Info().Uint("application_id", id).Uint("staff_id", actor.ID).Str("tier", req.Tier).Msg("tier overridden")
	return s.detail(ctx, id)
}

func (s *staffService) SaveNotes(ctx context.Context, actor dto.StaffActor, id uint, req dto.StaffNotesRequest) (dto.ApplicationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ApplicationDetail{}, err
	}
	err := s.applications.Update(ctx, id, map[string]interface{}{
		"staff_review_notes": strings.TrimSpace(s.policy.Sanitize(req.Notes)),
		"staff_reviewed_by":  actor.ID,
		"staff_reviewed_at":  s.now().UTC(),
	})
	if err != nil {
		return dto.ApplicationDetail{}, s.updateError(err)
	}
	return s.detail(ctx, id)
}

func (s *staffService) AppendNegotiation(ctx context.Context, actor dto.StaffActor, id uint, req dto.NegotiationRequest) (dto.ApplicationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ApplicationDetail{}, err
	}

	event := models.NegotiationEvent{
		Event:     req.Event,
		Amount:    req.Amount,
		Note:      strings.TrimSpace(s.policy.Sanitize(req.Note)),
		ActorID:   uintPtr(actor.ID),
		Timestamp: s.now().UTC(),
	}
	application, err := s.applications.AppendNegotiation(ctx, id, event)
	if err != nil {
		return dto.ApplicationDetail{}, mapNotFound(err, ErrApplicationNotFound)
	}

	params := map[string]interface{}{}
	if req.Amount != nil {
		params["amount"] = formatScore(*req.Amount)
	}
	switch req.Event {
	case "offer_sent":
		s.notify(ctx, application, TemplateNegotiationOffer, params)
	case "rate_agreed":
		s.notify(ctx, application, TemplateRateAgreed, params)
	}

	return s.detail(ctx, id)
}

// InterceptRejection cancels a queued rejection email before the scheduler sends it.
func (s *staffService) InterceptRejection(ctx context.Context, actor dto.StaffActor, id uint) (dto.StaffActionResponse, error) {
	application, err := s.applications.GetByID(ctx, id)
	if err != nil {
		return dto.StaffActionResponse{}, mapNotFound(err, ErrApplicationNotFound)
	}
	if err := s.applications.MarkRejectionEmail(ctx, id, models.RejectionEmailQueued, models.RejectionEmailIntercepted); err != nil {
		if isConditionNotMet(err) {
			return dto.StaffActionResponse{}, ErrStatusConflict
		}
		return dto.StaffActionResponse{}, err
	}
	s.logger.Info().Uint("application_id", id).Uint("staff_id", actor.ID).Msg("rejection email intercepted")
	return dto.StaffActionResponse{ApplicationID: id, Status: application.Status, CooldownUntil: application.CooldownUntil}, nil
}

// DecideCombination resolves a borderline combination and re-derives the application status.
func (s *staffService) DecideCombination(ctx context.Context, actor dto.StaffActor, applicationID, combinationID uint, req dto.CombinationDecisionRequest) (dto.ApplicationDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ApplicationDetail{}, err
	}
	combination, err := s.ownedCombination(ctx, applicationID, combinationID)
	if err != nil {
		return dto.ApplicationDetail{}, err
	}

	fields := map[string]interface{}{}
	if req.Decision == models.CombinationStatusApproved {
		fields["approved_at"] = s.now().UTC()
		fields["approved_by"] = actor.ID
	}
	err = s.combinations.TransitionStatus(ctx, combinationID, []string{models.CombinationStatusAssessed}, req.Decision, fields)
	if err != nil {
		if isConditionNotMet(err) {
			return dto.ApplicationDetail{}, ErrStatusConflict
		}
		return dto.ApplicationDetail{}, err
	}

	if combination.TestID != nil {
		if err := s.library.IncrementOutcome(ctx, *combination.TestID, req.Decision == models.CombinationStatusApproved); err != nil {
			s.logger.Warn().Err(err).Uint("test_id", *combination.TestID).Msg("failed to update test outcome counters")
		}
	}

	if _, err := s.lifecycle.RecomputeFromCombinations(ctx, applicationID); err != nil {
		return dto.ApplicationDetail{}, err
	}
	return s.detail(ctx, applicationID)
}

// SkipCombination withdraws a combination that has not been scored. An open token is voided.
func (s *staffService) SkipCombination(ctx context.Context, actor dto.StaffActor, applicationID, combinationID uint) (dto.ApplicationDetail, error) {
	combination, err := s.ownedCombination(ctx, applicationID, combinationID)
	if err != nil {
		return dto.ApplicationDetail{}, err
	}

	from := []string{
		models.CombinationStatusPending,
		models.CombinationStatusNoTestAvailable,
		models.CombinationStatusTestSent,
	}
	if err := s.combinations.TransitionStatus(ctx, combinationID, from, models.CombinationStatusSkipped, nil); err != nil {
		if isConditionNotMet(err) {
			return dto.ApplicationDetail{}, ErrStatusConflict
		}
		return dto.ApplicationDetail{}, err
	}

	if combination.SubmissionID != nil {
		if err := s.submissions.Void(ctx, *combination.SubmissionID, s.now().UTC()); err != nil && !isConditionNotMet(err) {
			s.logger.Warn().Err(err).Uint("submission_id", *combination.SubmissionID).Msg("failed to void skipped submission")
		}
	}
	s.logger.Info().Uint("combination_id", combinationID).Uint("staff_id", actor.ID).Msg("combination skipped")

	if _, err := s.lifecycle.RecomputeFromCombinations(ctx, applicationID); err != nil {
		return dto.ApplicationDetail{}, err
	}
	return s.detail(ctx, applicationID)
}

// RerunPrescreen sends a reviewed application through the automatic prescreen again. An application
// still waiting in submitted or prescreening only has its task dispatched again.
func (s *staffService) RerunPrescreen(ctx context.Context, actor dto.StaffActor, id uint) (dto.StaffActionResponse, error) {
	application, err := s.applications.GetByID(ctx, id)
	if err != nil {
		return dto.StaffActionResponse{}, mapNotFound(err, ErrApplicationNotFound)
	}
	switch application.Status {
	case models.ApplicationStatusSubmitted, models.ApplicationStatusPrescreening:
		s.logger.Info().Uint("application_id", id).Uint("staff_id", actor.ID).Str("status", application.Status).Msg("stalled prescreen re-dispatched")
		dispatchTask(ctx, s.dispatcher, queue.Task{Kind: queue.KindPrescreen, ApplicationID: id}, s.logger)
		return dto.StaffActionResponse{ApplicationID: id, Status: application.Status}, nil
	}
	if !models.CanTransition(application.Status, models.ApplicationStatusPrescreening) {
		return dto.StaffActionResponse{}, ErrInvalidTransition
	}

	from := []string{models.ApplicationStatusStaffReview, models.ApplicationStatusInfoRequested}
	if err := s.applications.TransitionStatus(ctx, id, from, models.ApplicationStatusPrescreening, nil); err != nil {
		if isConditionNotMet(err) {
			return dto.StaffActionResponse{}, ErrStatusConflict
		}
		return dto.StaffActionResponse{}, err
	}
	observability.StatusTransitions().WithLabelValues(models.ApplicationStatusPrescreening).Inc()
	s.logger.Info().Uint("application_id", id).Uint("staff_id", actor.ID).Msg("prescreen re-run requested")

	dispatchTask(ctx, s.dispatcher, queue.Task{Kind: queue.KindPrescreen, ApplicationID: id}, s.logger)
	return dto.StaffActionResponse{ApplicationID: id, Status: models.ApplicationStatusPrescreening}, nil
}

// ResendTests returns untested combinations to pending and asks the matching engine to issue them.
// Without explicit ids it selects every combination that has no test or whose token expired.
func (s *staffService) ResendTests(ctx context.Context, actor dto.StaffActor, id uint, req dto.ResendTestsRequest) (dto.StaffActionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.StaffActionResponse{}, err
	}
	application, err := s.applications.GetWithCombinations(ctx, id)
	if err != nil {
		return dto.StaffActionResponse{}, mapNotFound(err, ErrApplicationNotFound)
	}
	if !application.IsTranslator() || !containsStatus(assignableStatuses, application.Status) {
		return dto.StaffActionResponse{}, ErrInvalidTransition
	}

	selected := make(map[uint]bool, len(req.CombinationIDs))
	for _, combinationID := range req.CombinationIDs {
		selected[combinationID] = true
	}

	reset := 0
	for _, combination := range application.Combinations {
		if len(selected) > 0 && !selected[combination.ID] {
			continue
		}
		resendable := combination.Status == models.CombinationStatusNoTestAvailable ||
			(combination.Status == models.CombinationStatusTestSent && combination.TokenExpiredAt != nil)
		if !resendable {
			continue
		}
		err := s.combinations.TransitionStatus(ctx, combination.ID, []string{combination.Status}, models.CombinationStatusPending, map[string]interface{}{
			"test_id":          nil,
			"submission_id":    nil,
			"token_expired_at": nil,
		})
		if err != nil && !isConditionNotMet(err) {
			return dto.StaffActionResponse{}, wrapf(err, "reset combination %d", combination.ID)
		}
		if err != nil {
			continue
		}
		reset++
		if combination.SubmissionID != nil {
			// The lapsed token is superseded by the re-issue; its follow-ups stop here.
			if err := s.submissions.Void(ctx, *combination.SubmissionID, s.now().UTC()); err != nil && !isConditionNotMet(err) {
				s.logger.Warn().Err(err).Uint("submission_id", *combination.SubmissionID).Msg("failed to retire superseded submission")
			}
		}
	}
	if reset == 0 {
		return dto.StaffActionResponse{}, ErrStatusConflict
	}

	s.logger.Info().Uint("application_id", id).Uint("staff_id", actor.ID).Int("combinations", reset).Msg("tests queued for re-issue")
	dispatchTask(ctx, s.dispatcher, queue.Task{Kind: queue.KindAssignTests, ApplicationID: id}, s.logger)
	return dto.StaffActionResponse{ApplicationID: id, Status: application.Status}, nil
}

func (s *staffService) ownedCombination(ctx context.Context, applicationID, combinationID uint) (models.TestCombination, error) {
	combination, err := s.combinations.GetByID(ctx, combinationID)
	if err != nil {
		return models.TestCombination{}, mapNotFound(err, ErrCombinationNotFound)
	}
	if combination.ApplicationID != applicationID {
		return models.TestCombination{}, ErrCombinationNotFound
	}
	return combination, nil
}

func (s *staffService) detail(ctx context.Context, id uint) (dto.ApplicationDetail, error) {
	application, err := s.applications.GetWithCombinations(ctx, id)
	if err != nil {
		return dto.ApplicationDetail{}, mapNotFound(err, ErrApplicationNotFound)
	}
	return dto.NewApplicationDetail(application), nil
}

func (s *staffService) updateError(err error) error {
	if isConditionNotMet(err) {
		return ErrApplicationNotFound
	}
	return err
}

func (s *staffService) notify(ctx context.Context, application models.Application, template string, params map[string]interface{}) {
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
