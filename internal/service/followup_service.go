package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
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

// Follow-up stage ages, measured from token issuance.
const (
	ReminderAge    = 24 * time.Hour
	FinalChanceAge = 7 * 24 * time.Hour
	ArchivalAge    = 10 * 24 * time.Hour
)

// StallAge is how long an application may sit in an automatic stage, or a submission wait for
// assessment, before the sweep hands it to the queue again.
const StallAge = 30 * time.Minute

const followupLeaseKey = "screening:followups:lease"

// archivableStatuses are the application statuses an idle application may be archived from.
var archivableStatuses = []string{models.ApplicationStatusTestSent, models.ApplicationStatusTestInProgress}

// stalledStatuses map automatic application stages to the task that moves them on.
var stalledStatuses = map[string]queue.Kind{
	models.ApplicationStatusSubmitted:    queue.KindPrescreen,
	models.ApplicationStatusPrescreening: queue.KindPrescreen,
	models.ApplicationStatusPrescreened:  queue.KindAssignTests,
}

// FollowupService runs the periodic follow-up sweep over issued tests and queued rejections.
type FollowupService interface {
	Sweep(ctx context.Context) (dto.SweepResult, error)
}

type followupService struct {
	applications repository.ApplicationRepository
	combinations repository.CombinationRepository
	submissions  repository.TestSubmissionRepository
	notifier     Notifier
	dispatcher   queue.Dispatcher
	cache        *redis.Client
	leaseTTL     time.Duration
	settings     PipelineSettings
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NewFollowupService constructs the scheduler service. A nil cache disables the cross-replica lease
// and a nil dispatcher disables the stalled-work stage.
func NewFollowupService(
	applications repository.ApplicationRepository,
	combinations repository.CombinationRepository,
	submissions repository.TestSubmissionRepository,
	notifier Notifier,
	dispatcher queue.Dispatcher,
	cache *redis.Client,
	leaseTTL time.Duration,
	settings PipelineSettings,
	logger zerolog.Logger,
) FollowupService {
	if leaseTTL <= 0 {
		leaseTTL = time.Hour
	}
	return &followupService{
		applications: applications,
		combinations: combinations,
		submissions:  submissions,
		notifier:     notifier,
		dispatcher:   dispatcher,
		cache:        cache,
		leaseTTL:     leaseTTL,
		settings:     settings.WithDefaults(),
		logger:       logger.With().Str("component", "followup_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/screening-api/internal/service/followup"),
		now:          time.Now,
	}
}

// Sweep claims every due row with a conditional update before sending anything, so overlapping
// sweeps never notify twice. Per-row failures are counted and do not stop the sweep.
func (s *followupService) Sweep(ctx context.Context) (dto.SweepResult, error) {
	ctx, span := s.tracer.Start(ctx, "followup.sweep")
	defer span.End()

	var result dto.SweepResult

	release, acquired, err := s.acquireLease(ctx)
	if err != nil {
		// Redis trouble must not stop follow-ups; row claims keep the sweep safe.
		s.logger.Warn().Err(err).Msg("followup lease unavailable, sweeping without it")
	} else if !acquired {
		result.Skipped = true
		return result, nil
	}
	defer release()

	now := s.now().UTC()
	var stageErrs []error

	stages := []struct {
		name string
		run  func(context.Context, time.Time, *dto.SweepResult) error
	}{
		{"reminder", s.sendReminders},
		{"expiry", s.expireTokens},
		{"final_chance", s.sendFinalChance},
		{"archival", s.archiveIdle},
		{"rejection_email", s.sendRejectionEmails},
		{"stalled", s.redispatchStalled},
	}
	for _, stage := range stages {
		if err := stage.run(ctx, now, &result); err != nil {
			result.Errors++
			stageErrs = append(stageErrs, fmt.Errorf("%s stage: %w", stage.name, err))
			s.logger.Error().Err(err).Str("stage", stage.name).Msg("followup stage failed")
		}
	}

	span.SetAttributes(
		attribute.Int("followup.reminders", result.Reminders),
		attribute.Int("followup.expired", result.Expired),
		attribute.Int("followup.final_chance", result.FinalChance),
		attribute.Int("followup.archived", result.Archived),
		attribute.Int("followup.rejection_emails", result.RejectionEmails),
		attribute.Int("followup.redispatched", result.Redispatched),
		attribute.Int("followup.errors", result.Errors),
	)

	s.logger.Info().
		Int("reminders", result.Reminders).
		Int("expired", result.Expired).
		Int("final_chance", result.FinalChance).
		Int("archived", result.Archived).
		Int("archival_checked", result.ArchivalChecked).
		Int("rejection_emails", result.RejectionEmails).
		Int("redispatched", result.Redispatched).
		Int("errors", result.Errors).
		Msg("followup sweep completed")

	return result, errors.Join(stageErrs...)
}

func (s *followupService) sendReminders(ctx context.Context, now time.Time, result *dto.SweepResult) error {
	due, err := s.submissions.ListDueForReminder(ctx, now.Add(-ReminderAge), now, s.settings.BatchSize)
	if err != nil {
		return err
	}
	for _, submission := range due {
		if err := s.submissions.ClaimReminder(ctx, submission.ID, now); err != nil {
			if !isConditionNotMet(err) {
				s.rowError(err, submission.ID, string(repository.MarkerDay2), result)
			}
			continue
		}
		hours := int(math.Max(0, math.Floor(submission.TokenExpiresAt.Sub(now).Hours())))
		s.notifyApplicant(ctx, submission.ApplicationID, TemplateTestReminder, map[string]interface{}{
			"hoursRemaining": hours,
			"testLink":       fmt.Sprintf("%s/test/%s", s.settings.AppPublicURL, submission.Token),
		}, result)
		result.Reminders++
		observability.FollowupActions().WithLabelValues("reminder").Inc()
	}
	return nil
}

func (s *followupService) expireTokens(ctx context.Context, now time.Time, result *dto.SweepResult) error {
	due, err := s.submissions.ListDueForExpiry(ctx, now, s.settings.BatchSize)
	if err != nil {
		return err
	}
	for _, submission := range due {
		if err := s.submissions.ExpireAndClaim(ctx, submission.ID, now); err != nil {
			if !isConditionNotMet(err) {
				s.rowError(err, submission.ID, "expiry", result)
			}
			continue
		}
		if err := s.combinations.Update(ctx, submission.CombinationID, map[string]interface{}{"token_expired_at": now}); err != nil {
			s.rowError(err, submission.ID, "expiry", result)
		}
		s.notifyApplicant(ctx, submission.ApplicationID, TemplateTestExpired, nil, result)
		result.Expired++
		observability.FollowupActions().WithLabelValues("expiry").Inc()
	}
	return nil
}

func (s *followupService) sendFinalChance(ctx context.Context, now time.Time, result *dto.SweepResult) error {
	due, err := s.submissions.ListDueForFinalChance(ctx, now.Add(-FinalChanceAge), s.settings.BatchSize)
	if err != nil {
		return err
	}
	expired := []string{models.SubmissionStatusExpired}
	for _, submission := range due {
		if !s.claim(ctx, submission.ID, repository.MarkerDay7, expired, now, result) {
			continue
		}
		s.notifyApplicant(ctx, submission.ApplicationID, TemplateTestFinalChance, nil, result)
		result.FinalChance++
		observability.FollowupActions().WithLabelValues("final_chance").Inc()
	}
	return nil
}

// archiveIdle archives applications whose tests all lapsed. An application with a turned-in test or a
// token still open, such as one re-issued by staff, is kept. No email is sent.
func (s *followupService) archiveIdle(ctx context.Context, now time.Time, result *dto.SweepResult) error {
	due, err := s.submissions.ListDueForArchival(ctx, now.Add(-ArchivalAge), s.settings.BatchSize)
	if err != nil {
		return err
	}
	expired := []string{models.SubmissionStatusExpired}
	for _, submission := range due {
		if !s.claim(ctx, submission.ID, repository.MarkerArchival, expired, now, result) {
			continue
		}
		result.ArchivalChecked++

		active, err := s.submissions.HasActiveTest(ctx, submission.ApplicationID, now)
		if err != nil {
			s.rowError(err, submission.ID, "archival", result)
			continue
		}
		if active {
			continue
		}

		err = s.applications.TransitionStatus(ctx, submission.ApplicationID, archivableStatuses, models.ApplicationStatusArchived, nil)
		switch {
		case err == nil:
			result.Archived++
			observability.StatusTransitions().WithLabelValues(models.ApplicationStatusArchived).Inc()
			observability.FollowupActions().WithLabelValues("archival").Inc()
			s.logger.Info().Uint("application_id", submission.ApplicationID).Msg("idle application archived")
		case !isConditionNotMet(err):
			s.rowError(err, submission.ID, "archival", result)
		}
	}
	return nil
}

// sendRejectionEmails releases rejection emails whose staff hold window has passed.
func (s *followupService) sendRejectionEmails(ctx context.Context, now time.Time, result *dto.SweepResult) error {
	due, err := s.applications.ListRejectionEmailsDue(ctx, now.Add(-s.settings.RejectionHold), s.settings.BatchSize)
	if err != nil {
		return err
	}
	for _, application := range due {
		err := s.applications.MarkRejectionEmail(ctx, application.ID, models.RejectionEmailQueued, models.RejectionEmailSent)
		if err != nil {
			if !isConditionNotMet(err) {
				s.rowError(err, application.ID, "rejection_email", result)
			}
			continue
		}
		params := map[string]interface{}{"applicationNumber": application.ApplicationNumber}
		if application.CooldownUntil != nil {
			params["reapplyDate"] = application.CooldownUntil.Format("2006-01-02")
		}
		if s.notifier != nil {
			s.notifier.Send(ctx, Notification{
				ApplicationID: application.ID,
				Template:      TemplateRejected,
				Email:         application.Email,
				Name:          application.FullName,
				Params:        params,
			})
		}
		result.RejectionEmails++
		observability.FollowupActions().WithLabelValues("rejection_email").Inc()
	}
	return nil
}

// redispatchStalled re-queues work whose task was lost, for example when a worker stopped mid-prescreen.
// Every pipeline task is idempotent, so a task that is merely slow is harmless to send twice.
func (s *followupService) redispatchStalled(ctx context.Context, now time.Time, result *dto.SweepResult) error {
	if s.dispatcher == nil {
		return nil
	}
	idleBefore := now.Add(-StallAge)

	statuses := make([]string, 0, len(stalledStatuses))
	for status := range stalledStatuses {
		statuses = append(statuses, status)
	}
	applications, err := s.applications.ListStalled(ctx, statuses, idleBefore, s.settings.BatchSize)
	if err != nil {
		return err
	}
	for _, application := range applications {
		if err := s.applications.ClaimStalled(ctx, application.ID, application.Status, idleBefore, now); err != nil {
			if !isConditionNotMet(err) {
				s.rowError(err, application.ID, "stalled", result)
			}
			continue
		}
		s.redispatch(ctx, queue.Task{Kind: stalledStatuses[application.Status], ApplicationID: application.ID}, result)
	}

	submissions, err := s.submissions.ListAwaitingAssessment(ctx, idleBefore, s.settings.BatchSize)
	if err != nil {
		return err
	}
	for _, submission := range submissions {
		if err := s.submissions.ClaimAwaitingAssessment(ctx, submission.ID, idleBefore, now); err != nil {
			if !isConditionNotMet(err) {
				s.rowError(err, submission.ID, "stalled", result)
			}
			continue
		}
		s.redispatch(ctx, queue.Task{Kind: queue.KindAssessSubmission, ApplicationID: submission.ApplicationID, SubmissionID: submission.ID}, result)
	}
	return nil
}

func (s *followupService) redispatch(ctx context.Context, task queue.Task, result *dto.SweepResult) {
	dispatchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := s.dispatcher.Dispatch(dispatchCtx, task); err != nil {
		s.rowError(err, task.ApplicationID, "stalled", result)
		return
	}
	result.Redispatched++
	observability.FollowupActions().WithLabelValues("redispatch").Inc()
	s.logger.Info().
		Str("task_kind", string(task.Kind)).
		Uint("application_id", task.ApplicationID).
		Uint("submission_id", task.SubmissionID).
		Msg("stalled work re-dispatched")
}

func (s *followupService) claim(ctx context.Context, submissionID uint, marker repository.ReminderMarker, statuses []string, now time.Time, result *dto.SweepResult) bool {
	err := s.submissions.ClaimMarker(ctx, submissionID, marker, statuses, now)
	if err == nil {
		return true
	}
	if !isConditionNotMet(err) {
		s.rowError(err, submissionID, string(marker), result)
	}
	return false
}

func (s *followupService) notifyApplicant(ctx context.Context, applicationID uint, template string, params map[string]interface{}, result *dto.SweepResult) {
	if s.notifier == nil {
		return
	}
	application, err := s.applications.GetByID(ctx, applicationID)
	if err != nil {
		s.rowError(err, applicationID, template, result)
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

func (s *followupService) rowError(err error, id uint, stage string, result *dto.SweepResult) {
	result.Errors++
	s.logger.Error().Err(err).Uint("row_id", id).Str("stage", stage).Msg("followup row failed")
}

// acquireLease takes the sweep lease with SETNX. The returned release func is always safe to call.
func (s *followupService) acquireLease(ctx context.Context) (func(), bool, error) {
	noop := func() {}
	if s.cache == nil {
		return noop, true, nil
	}

	holder := uuid.NewString()
	ok, err := s.cache.SetNX(ctx, followupLeaseKey, holder, s.leaseTTL).Result()
	if err != nil {
		return noop, false, err
	}
	if !ok {
		return noop, false, nil
	}

	return func() {
		current, err := s.cache.Get(context.WithoutCancel(ctx), followupLeaseKey).Result()
		if err == nil && current == holder {
			s.cache.Del(context.WithoutCancel(ctx), followupLeaseKey)
		}
	}, true, nil
}
