package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/screening-api/internal/middleware"
	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/queue"
	"github.com/noah-isme/screening-api/internal/repository"
	"github.com/noah-isme/screening-api/pkg/ai"
)

// Routing thresholds.
const (
	PrescreenPassScore      = 70.0
	PrescreenReviewScore    = 50.0
	AssessmentApproveScore  = 80.0
	AssessmentBorderlineMin = 65.0
)

// PipelineSettings are the timing rules shared by the pipeline services.
type PipelineSettings struct {
	AppPublicURL   string
	TokenTTL       time.Duration
	CooldownPeriod time.Duration
	RejectionHold  time.Duration
	BatchSize      int
}

// WithDefaults fills unset values with the production defaults.
func (s PipelineSettings) WithDefaults() PipelineSettings {
	if s.TokenTTL <= 0 {
		s.TokenTTL = 48 * time.Hour
	}
	if s.CooldownPeriod <= 0 {
		s.CooldownPeriod = 180 * 24 * time.Hour
	}
	if s.RejectionHold <= 0 {
		s.RejectionHold = 48 * time.Hour
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 50
	}
	return s
}

func rejectionFields(now time.Time, reason string, cooldown time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"rejection_reason":          reason,
		"rejection_email_status":    models.RejectionEmailQueued,
		"rejection_email_queued_at": now,
		"cooldown_until":            now.Add(cooldown),
	}
}

// clearedRejectionFields lift the reapplication cooldown and cancel a rejection email still on hold.
func clearedRejectionFields() map[string]interface{} {
	emailStatus := gorm.Expr("CASE WHEN rejection_email_status = ? THEN ? ELSE rejection_email_status END",
		models.RejectionEmailQueued, models.RejectionEmailIntercepted)
	return map[string]interface{}{
		"cooldown_until":         nil,
		"rejection_email_status": emailStatus,
	}
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

func judgmentJSON(judgment ai.Judgment) datatypes.JSON {
	encoded, err := judgment.MarshalJSONBytes()
	if err != nil {
		return nil
	}
	return datatypes.JSON(encoded)
}

func decodeJudgment(raw datatypes.JSON) (ai.Judgment, bool) {
	if len(raw) == 0 {
		return ai.Judgment{}, false
	}
	var judgment ai.Judgment
	if err := judgment.UnmarshalJSONBytes(raw); err != nil {
		return ai.Judgment{}, false
	}
	return judgment, true
}

func mapNotFound(err error, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}

// dispatchTimeout bounds how long a caller waits on a full queue. A dropped task is picked up
// again by the follow-up sweep's stalled-application stage.
var dispatchTimeout = 2 * time.Second

func dispatchTask(ctx context.Context, dispatcher queue.Dispatcher, task queue.Task, logger zerolog.Logger) {
	if dispatcher == nil {
		return
	}
	if task.CorrelationID == "" {
		task.CorrelationID = middleware.CorrelationIDFromContext(ctx)
	}
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()
	if err := dispatcher.Dispatch(dispatchCtx, task); err != nil {
		logger.Error().Err(err).
			Str("task_kind", string(task.Kind)).
			Uint("application_id", task.ApplicationID).
			Uint("submission_id", task.SubmissionID).
			Msg("failed to dispatch pipeline task")
	}
}

func isConditionNotMet(err error) bool {
	return errors.Is(err, repository.ErrConditionNotMet)
}

func uintPtr(value uint) *uint {
	return &value
}

func wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
