package service

import (
	"context"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/observability"
	"github.com/noah-isme/screening-api/internal/queue"
	"github.com/noah-isme/screening-api/internal/repository"
)

// TestSessionService serves the applicant-facing test page behind a token.
type TestSessionService interface {
	Resolve(ctx context.Context, token string) (dto.TestView, error)
	SaveDraft(ctx context.Context, token string, req dto.SaveDraftRequest) (dto.SaveDraftResponse, error)
	Submit(ctx context.Context, token string, req dto.SubmitTestRequest) (dto.SubmitTestResponse, error)
	UploadFile(ctx context.Context, token string, file *multipart.FileHeader) (dto.UploadResponse, error)
}

type testSessionService struct {
	applications repository.ApplicationRepository
	combinations repository.CombinationRepository
	submissions  repository.TestSubmissionRepository
	library      repository.TestLibraryRepository
	uploads      UploadService
	notifier     Notifier
	dispatcher   queue.Dispatcher
	validator    *validator.Validate
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// NewTestSessionService constructs the token redemption service.
func NewTestSessionService(
	applications repository.ApplicationRepository,
	combinations repository.CombinationRepository,
	submissions repository.TestSubmissionRepository,
	library repository.TestLibraryRepository,
	uploads UploadService,
	notifier Notifier,
	dispatcher queue.Dispatcher,
	validate *validator.Validate,
	logger zerolog.Logger,
) TestSessionService {
	return &testSessionService{
		applications: applications,
		combinations: combinations,
		submissions:  submissions,
		library:      library,
		uploads:      uploads,
		notifier:     notifier,
		dispatcher:   dispatcher,
		validator:    validate,
		logger:       logger.With().Str("component", "test_session_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/screening-api/internal/service/test_session"),
		now:          time.Now,
	}
}

func (s *testSessionService) Resolve(ctx context.Context, token string) (dto.TestView, error) {
	ctx, span := s.tracer.Start(ctx, "test_session.resolve")
	defer span.End()

	now := s.now().UTC()
	submission, err := s.open(ctx, token, now)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return dto.TestView{}, err
	}

	if err := s.submissions.RecordView(ctx, submission.ID, now); err != nil {
		if !isConditionNotMet(err) {
			span.RecordError(err)
			return dto.TestView{}, wrapf(err, "record view for submission %d", submission.ID)
		}
		// The window closed between the read and the write.
		return dto.TestView{}, s.classify(ctx, submission.ID, now)
	}

	submission, err = s.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		span.RecordError(err)
		return dto.TestView{}, err
	}

	entry, err := s.library.GetByID(ctx, submission.TestID)
	if err != nil {
		span.RecordError(err)
		return dto.TestView{}, wrapf(err, "load test %d", submission.TestID)
	}
	combination, err := s.combinations.GetByID(ctx, submission.CombinationID)
	if err != nil {
		span.RecordError(err)
		return dto.TestView{}, mapNotFound(err, ErrCombinationNotFound)
	}
	application, err := s.applications.GetByID(ctx, submission.ApplicationID)
	if err != nil {
		span.RecordError(err)
		return dto.TestView{}, mapNotFound(err, ErrApplicationNotFound)
	}

	remaining := submission.TokenExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	return dto.TestView{
		ApplicationNumber:    application.ApplicationNumber,
		ApplicantName:        application.FullName,
		SourceLanguage:       combination.SourceLanguage,
		TargetLanguage:       combination.TargetLanguage,
		Domain:               combination.Domain,
		ServiceType:          combination.ServiceType,
		Difficulty:           entry.Difficulty,
		Title:                entry.Title,
		Instructions:         entry.Instructions,
		SourceText:           entry.SourceText,
		LQASourceTranslation: entry.LQASourceTranslation,
		MQMDimensions:        entry.MQMDimensions,
		Status:               submission.Status,
		DraftContent:         submission.DraftContent,
		DraftLastSavedAt:     submission.DraftLastSavedAt,
		ExpiresAt:            submission.TokenExpiresAt,
		HoursRemaining:       int(remaining / time.Hour),
		MinutesRemaining:     int((remaining % time.Hour) / time.Minute),
	}, nil
}

// SaveDraft is safe to call repeatedly from autosave; it fails once the window has closed.
func (s *testSessionService) SaveDraft(ctx context.Context, token string, req dto.SaveDraftRequest) (dto.SaveDraftResponse, error) {
	ctx, span := s.tracer.Start(ctx, "test_session.save_draft")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.RecordError(err)
		return dto.SaveDraftResponse{}, err
	}

	now := s.now().UTC()
	submission, err := s.open(ctx, token, now)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return dto.SaveDraftResponse{}, err
	}

	if err := s.submissions.SaveDraft(ctx, submission.ID, req.Content, now); err != nil {
		if isConditionNotMet(err) {
			return dto.SaveDraftResponse{}, s.classify(ctx, submission.ID, now)
		}
		span.RecordError(err)
		return dto.SaveDraftResponse{}, wrapf(err, "save draft for submission %d", submission.ID)
	}

	return dto.SaveDraftResponse{SavedAt: now}, nil
}

// Submit accepts the final answer exactly once. A concurrent expiry sweep and a submit race on the
// same conditional update; whichever commits first decides the outcome.
func (s *testSessionService) Submit(ctx context.Context, token string, req dto.SubmitTestRequest) (dto.SubmitTestResponse, error) {
	ctx, span := s.tracer.Start(ctx, "test_session.submit")
	defer span.End()

	req.Content = strings.TrimSpace(req.Content)
	req.Notes = strings.TrimSpace(req.Notes)
	req.FileURL = strings.TrimSpace(req.FileURL)
	if err := s.validator.Struct(req); err != nil {
		span.RecordError(err)
		return dto.SubmitTestResponse{}, err
	}

	now := s.now().UTC()
	submission, err := s.open(ctx, token, now)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return dto.SubmitTestResponse{}, err
	}

	result := repository.SubmissionResult{Content: req.Content, Notes: req.Notes, FileURL: req.FileURL}
	if err := s.submissions.MarkSubmitted(ctx, submission.ID, result, now); err != nil {
		if isConditionNotMet(err) {
			return dto.SubmitTestResponse{}, s.classify(ctx, submission.ID, now)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return dto.SubmitTestResponse{}, wrapf(err, "mark submission %d submitted", submission.ID)
	}

	err = s.combinations.TransitionStatus(ctx, submission.CombinationID, []string{models.CombinationStatusTestSent}, models.CombinationStatusTestSubmitted, nil)
	if err != nil && !isConditionNotMet(err) {
		span.RecordError(err)
		return dto.SubmitTestResponse{}, wrapf(err, "mark combination %d submitted", submission.CombinationID)
	}

	status, err := s.advanceApplication(ctx, submission.ApplicationID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmitTestResponse{}, err
	}

	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("application_id", submission.ApplicationID).
		Str("application_status", status).
		Msg("test submitted")

	if application, err := s.applications.GetByID(ctx, submission.ApplicationID); err == nil && s.notifier != nil {
		s.notifier.Send(ctx, Notification{
			ApplicationID: application.ID,
			Template:      TemplateTestReceived,
			Email:         application.Email,
			Name:          application.FullName,
			Params:        map[string]interface{}{"applicationNumber": application.ApplicationNumber},
		})
	}

	dispatchTask(ctx, s.dispatcher, queue.Task{
		Kind:          queue.KindAssessSubmission,
		ApplicationID: submission.ApplicationID,
		SubmissionID:  submission.ID,
	}, s.logger)

	return dto.SubmitTestResponse{
		SubmissionID:      submission.ID,
		ApplicationStatus: status,
		SubmittedAt:       now,
	}, nil
}

func (s *testSessionService) UploadFile(ctx context.Context, token string, file *multipart.FileHeader) (dto.UploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "test_session.upload")
	defer span.End()

	submission, err := s.open(ctx, token, s.now().UTC())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return dto.UploadResponse{}, err
	}
	if s.uploads == nil {
		return dto.UploadResponse{}, ErrUploadUnavailable
	}

	return s.uploads.Upload(ctx, file, "submission-"+strconv.FormatUint(uint64(submission.ID), 10))
}

// open loads the submission and applies the not-found, already-submitted and expired checks in that order.
func (s *testSessionService) open(ctx context.Context, token string, now time.Time) (models.TestSubmission, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.TestSubmission{}, ErrTokenNotFound
	}

	submission, err := s.submissions.GetByToken(ctx, token)
	if err != nil {
		return models.TestSubmission{}, mapNotFound(err, ErrTokenNotFound)
	}

	if err := s.check(ctx, submission, now); err != nil {
		return models.TestSubmission{}, err
	}
	return submission, nil
}

func (s *testSessionService) check(ctx context.Context, submission models.TestSubmission, now time.Time) error {
	if submission.WasSubmitted() {
		return ErrTestAlreadySubmitted
	}
	if submission.Status == models.SubmissionStatusExpired {
		return ErrTokenExpired
	}
	if !now.Before(submission.TokenExpiresAt) {
		if err := s.submissions.MarkExpired(ctx, submission.ID); err != nil && !isConditionNotMet(err) {
			s.logger.Warn().Err(err).Uint("submission_id", submission.ID).Msg("failed to flag expired submission")
		}
		return ErrTokenExpired
	}
	return nil
}

// classify re-reads a row whose conditional update matched nothing and reports why.
func (s *testSessionService) classify(ctx context.Context, submissionID uint, now time.Time) error {
	current, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return mapNotFound(err, ErrTokenNotFound)
	}
	if err := s.check(ctx, current, now); err != nil {
		return err
	}
	return ErrStatusConflict
}

// advanceApplication moves the application into the test phase matching its combinations.
func (s *testSessionService) advanceApplication(ctx context.Context, applicationID uint) (string, error) {
	combinations, err := s.combinations.ListByApplication(ctx, applicationID)
	if err != nil {
		return "", wrapf(err, "list combinations for application %d", applicationID)
	}

	target := models.ApplicationStatusTestSubmitted
	for _, combination := range combinations {
		if combination.Status != models.CombinationStatusTestSubmitted && !combination.IsTerminal() {
			target = models.ApplicationStatusTestInProgress
			break
		}
	}

	from := []string{models.ApplicationStatusTestSent}
	if target == models.ApplicationStatusTestSubmitted {
		from = append(from, models.ApplicationStatusTestInProgress)
	}
	err = s.applications.TransitionStatus(ctx, applicationID, from, target, nil)
	switch {
	case err == nil:
		observability.StatusTransitions().WithLabelValues(target).Inc()
		return target, nil
	case isConditionNotMet(err):
		application, getErr := s.applications.GetByID(ctx, applicationID)
		if getErr != nil {
			return "", getErr
		}
		return application.Status, nil
	default:
		return "", wrapf(err, "advance application %d", applicationID)
	}
}
