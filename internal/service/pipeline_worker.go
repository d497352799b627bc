package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/screening-api/internal/middleware"
	"github.com/noah-isme/screening-api/internal/queue"
)

// PipelineWorker routes queued tasks to the stage that owns them.
type PipelineWorker struct {
	lifecycle  LifecycleService
	matching   MatchingService
	assessment AssessmentService
	logger     zerolog.Logger
}

// NewPipelineWorker constructs the task router.
func NewPipelineWorker(lifecycle LifecycleService, matching MatchingService, assessment AssessmentService, logger zerolog.Logger) *PipelineWorker {
	return &PipelineWorker{
		lifecycle:  lifecycle,
		matching:   matching,
		assessment: assessment,
		logger:     logger.With().Str("component", "pipeline_worker").Logger(),
	}
}

// Handle runs one task. Tasks for rows that no longer exist are dropped rather than retried.
func (w *PipelineWorker) Handle(ctx context.Context, task queue.Task) error {
	ctx = middleware.ContextWithCorrelation(ctx, task.CorrelationID)

	var err error
	switch task.Kind {
	case queue.KindPrescreen:
		res, runErr := w.lifecycle.RunPrescreen(ctx, task.ApplicationID)
		err = runErr
		if err == nil && res.Skipped {
			w.logger.Debug().Uint("application_id", task.ApplicationID).Str("status", res.Status).Msg("prescreen skipped")
		}
	case queue.KindAssignTests:
		res, runErr := w.matching.AssignTests(ctx, task.ApplicationID)
		err = runErr
		if err == nil && len(res.Failures) > 0 {
			w.logger.Warn().Uint("application_id", task.ApplicationID).Int("failures", len(res.Failures)).Msg("some combinations were not issued")
		}
	case queue.KindAssessSubmission:
		_, err = w.assessment.AssessSubmission(ctx, task.SubmissionID)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}

	if isMissingEntity(err) {
		w.logger.Warn().Err(err).Str("task_kind", string(task.Kind)).Msg("dropping task for missing entity")
		return nil
	}
	return err
}

func isMissingEntity(err error) bool {
	return errors.Is(err, ErrApplicationNotFound) ||
		errors.Is(err, ErrCombinationNotFound) ||
		errors.Is(err, ErrTokenNotFound)
}
