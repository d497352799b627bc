package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/observability"
	"github.com/noah-isme/screening-api/internal/repository"
)

const tokenBytes = 32

// assignableStatuses are the application statuses in which pending combinations may receive tests.
var assignableStatuses = []string{
	models.ApplicationStatusPrescreened,
	models.ApplicationStatusStaffReview,
	models.ApplicationStatusTestSent,
	models.ApplicationStatusTestInProgress,
}

// MatchingService issues skills tests for pending combinations.
type MatchingService interface {
	AssignTests(ctx context.Context, applicationID uint) (dto.AssignTestsResult, error)
}

type matchingService struct {
	applications repository.ApplicationRepository
	combinations repository.CombinationRepository
	submissions  repository.TestSubmissionRepository
	library      repository.TestLibraryRepository
	notifier     Notifier
	settings     PipelineSettings
	logger       zerolog.Logger
	tracer       trace.Tracer
	now          func() time.Time
	newToken     func() (string, error)
}

// NewMatchingService constructs the matching engine.
func NewMatchingService(applications repository.ApplicationRepository, combinations repository.CombinationRepository, submissions repository.TestSubmissionRepository, library repository.TestLibraryRepository, notifier Notifier, settings PipelineSettings, logger zerolog.Logger) MatchingService {
	return &matchingService{
		applications: applications,
		combinations: combinations,
		submissions:  submissions,
		library:      library,
		notifier:     notifier,
		settings:     settings.WithDefaults(),
		logger:       logger.With().Str("component", "matching_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/screening-api/internal/service/matching"),
		now:          time.Now,
		newToken:     generateToken,
	}
}

// AssignTests acts only on pending combinations, so re-running it after a partial failure resumes
// without issuing duplicates. One combination failing never aborts its siblings.
func (s *matchingService) AssignTests(ctx context.Context, applicationID uint) (dto.AssignTestsResult, error) {
	ctx, span := s.tracer.Start(ctx, "matching.assign_tests", trace.WithAttributes(attribute.Int("application.id", int(applicationID))))
	defer span.End()

	result := dto.AssignTestsResult{
		ApplicationID:   applicationID,
		Issued:          []dto.IssuedTest{},
		NoTestAvailable: []uint{},
		Failures:        []dto.CombinationFailure{},
	}

	application, err := s.applications.GetWithCombinations(ctx, applicationID)
	if err != nil {
		err = mapNotFound(err, ErrApplicationNotFound)
		span.RecordError(err)
		return result, err
	}
	result.ApplicationStatus = application.Status

	if !application.IsTranslator() || !containsStatus(assignableStatuses, application.Status) {
		return result, nil
	}

	difficulty := suggestedDifficulty(application.PrescreenResult)
	for _, combination := range application.Combinations {
		if combination.Status != models.CombinationStatusPending {
			continue
		}

		issued, assigned, err := s.assignOne(ctx, application, combination, difficulty)
		switch {
		case err != nil:
			s.logger.Error().Err(err).
				Uint("application_id", applicationID).
				Uint("combination_id", combination.ID).
				Msg("test assignment failed")
			result.Failures = append(result.Failures, dto.CombinationFailure{CombinationID: combination.ID, Error: err.Error()})
		case issued != nil:
			result.Issued = append(result.Issued, *issued)
		case !assigned:
			result.NoTestAvailable = append(result.NoTestAvailable, combination.ID)
		}
	}

	span.SetAttributes(
		attribute.Int("matching.issued", len(result.Issued)),
		attribute.Int("matching.no_test", len(result.NoTestAvailable)),
		attribute.Int("matching.failures", len(result.Failures)),
	)

	if len(result.Issued) > 0 {
		err := s.applications.TransitionStatus(ctx, applicationID,
			[]string{models.ApplicationStatusPrescreened, models.ApplicationStatusStaffReview},
			models.ApplicationStatusTestSent, nil)
		switch {
		case err == nil:
			observability.StatusTransitions().WithLabelValues(models.ApplicationStatusTestSent).Inc()
			result.ApplicationStatus = models.ApplicationStatusTestSent
		case !isConditionNotMet(err):
			span.RecordError(err)
			return result, wrapf(err, "mark application %d test_sent", applicationID)
		}
		result.InvitationSent = s.sendInvitation(ctx, application, result.Issued)
	} else if application.Status == models.ApplicationStatusPrescreened && len(result.Failures) == 0 && len(result.NoTestAvailable) > 0 {
		// Nothing could be issued: hand the application to staff rather than leave it parked.
		err := s.applications.TransitionStatus(ctx, applicationID, []string{models.ApplicationStatusPrescreened}, models.ApplicationStatusStaffReview, nil)
		if err == nil {
			observability.StatusTransitions().WithLabelValues(models.ApplicationStatusStaffReview).Inc()
			result.ApplicationStatus = models.ApplicationStatusStaffReview
		} else if !isConditionNotMet(err) {
			return result, wrapf(err, "route application %d to staff review", applicationID)
		}
	}

	s.logger.Info().
		Uint("application_id", applicationID).
		Int("issued", len(result.Issued)).
		Int("no_test_available", len(result.NoTestAvailable)).
		Int("failures", len(result.Failures)).
		Msg("test assignment completed")

	return result, nil
}

// assignOne claims the combination, selects a test and issues the token. The claim is released on failure.
func (s *matchingService) assignOne(ctx context.Context, application models.Application, combination models.TestCombination, difficulty string) (*dto.IssuedTest, bool, error) {
	err := s.combinations.TransitionStatus(ctx, combination.ID, []string{models.CombinationStatusPending}, models.CombinationStatusTestAssigned, nil)
	if isConditionNotMet(err) {
		// Another worker claimed it.
		return nil, true, nil
	}
	if err != nil {
		return nil, false, wrapf(err, "claim combination %d", combination.ID)
	}

	candidates, err := s.library.ListCandidates(ctx, combination.SourceLanguage, combination.TargetLanguage, combination.Domain, combination.ServiceType)
	if err != nil {
		return nil, false, s.release(ctx, combination.ID, wrapf(err, "list candidate tests"))
	}
	if len(candidates) == 0 {
		if err := s.combinations.TransitionStatus(ctx, combination.ID, []string{models.CombinationStatusTestAssigned}, models.CombinationStatusNoTestAvailable, nil); err != nil {
			return nil, false, s.release(ctx, combination.ID, wrapf(err, "flag combination without test"))
		}
		return nil, false, nil
	}

	entry := selectTest(candidates, difficulty)

	token, err := s.newToken()
	if err != nil {
		return nil, false, s.release(ctx, combination.ID, wrapf(err, "generate token"))
	}

	now := s.now().UTC()
	submission := models.TestSubmission{
		CombinationID:  combination.ID,
		ApplicationID:  application.ID,
		TestID:         entry.ID,
		Token:          token,
		TokenExpiresAt: now.Add(s.settings.TokenTTL),
		Status:         models.SubmissionStatusSent,
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return nil, false, s.release(ctx, combination.ID, wrapf(err, "create submission"))
	}

	err = s.combinations.TransitionStatus(ctx, combination.ID, []string{models.CombinationStatusTestAssigned}, models.CombinationStatusTestSent, map[string]interface{}{
		"test_id":       entry.ID,
		"submission_id": submission.ID,
	})
	if err != nil {
		if expireErr := s.submissions.Void(ctx, submission.ID, now); expireErr != nil {
			s.logger.Warn().Err(expireErr).Uint("submission_id", submission.ID).Msg("failed to void orphaned submission")
		}
		return nil, false, s.release(ctx, combination.ID, wrapf(err, "mark combination test_sent"))
	}

	if err := s.library.IncrementUsage(ctx, entry.ID, now); err != nil {
		s.logger.Warn().Err(err).Uint("test_id", entry.ID).Msg("failed to increment test usage")
	}
	observability.TokensIssued().Inc()

	return &dto.IssuedTest{
		CombinationID: combination.ID,
		SubmissionID:  submission.ID,
		TestID:        entry.ID,
		Label:         combination.Label(),
		Link:          s.testLink(token),
	}, true, nil
}

func (s *matchingService) release(ctx context.Context, combinationID uint, cause error) error {
	err := s.combinations.TransitionStatus(ctx, combinationID, []string{models.CombinationStatusTestAssigned}, models.CombinationStatusPending, map[string]interface{}{
		"test_id":       nil,
		"submission_id": nil,
	})
	if err != nil {
		s.logger.Error().Err(err).Uint("combination_id", combinationID).Msg("failed to release combination claim")
	}
	return cause
}

func (s *matchingService) sendInvitation(ctx context.Context, application models.Application, issued []dto.IssuedTest) bool {
	if s.notifier == nil {
		return false
	}
	links := make([]string, 0, len(issued))
	for _, test := range issued {
		links = append(links, test.Label+": "+test.Link)
	}
	return s.notifier.Send(ctx, Notification{
		ApplicationID: application.ID,
		Template:      TemplateTestInvitation,
		Email:         application.Email,
		Name:          application.FullName,
		Params: map[string]interface{}{
			"applicationNumber": application.ApplicationNumber,
			"testCount":         len(issued),
			"testLinks":         links,
			"expiryHours":       int(math.Round(s.settings.TokenTTL.Hours())),
		},
	})
}

func (s *matchingService) testLink(token string) string {
	return fmt.Sprintf("%s/test/%s", s.settings.AppPublicURL, token)
}

// selectTest prefers the first candidate at the suggested difficulty. Candidates arrive ordered by
// least used, then least recently used.
func selectTest(candidates []models.TestLibraryEntry, difficulty string) models.TestLibraryEntry {
	for _, candidate := range candidates {
		if candidate.Difficulty == difficulty {
			return candidate
		}
	}
	return candidates[0]
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func containsStatus(statuses []string, status string) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}
