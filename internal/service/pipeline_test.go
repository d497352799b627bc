package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/queue"
	"github.com/noah-isme/screening-api/internal/repository"
	"github.com/noah-isme/screening-api/pkg/ai"
	"github.com/noah-isme/screening-api/pkg/brevo"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type oracleReply struct {
	judgment ai.Judgment
	err      error
}

// oracleStub answers calls in order; once the script runs out it repeats the last reply.
type oracleStub struct {
	mu      sync.Mutex
	replies []oracleReply
	calls   []ai.ScoreRequest
}

func (o *oracleStub) Score(ctx context.Context, req ai.ScoreRequest) (ai.Judgment, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, req)
	if len(o.replies) == 0 {
		return ai.Judgment{}, errors.New("no scripted reply")
	}
	reply := o.replies[0]
	if len(o.replies) > 1 {
		o.replies = o.replies[1:]
	}
	return reply.judgment, reply.err
}

func (o *oracleStub) script(replies ...oracleReply) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.replies = replies
	o.calls = nil
}

func (o *oracleStub) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

type sentEmail struct {
	template string
	to       brevo.Recipient
	params   map[string]interface{}
}

type senderStub struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (s *senderStub) SendTemplate(ctx context.Context, template string, to brevo.Recipient, params map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEmail{template: template, to: to, params: params})
	return s.err
}

func (s *senderStub) templates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, email := range s.sent {
		out = append(out, email.template)
	}
	return out
}

func (s *senderStub) count(template string) int {
	n := 0
	for _, sent := range s.templates() {
		if sent == template {
			n++
		}
	}
	return n
}

func (s *senderStub) last(template string) (sentEmail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].template == template {
			return s.sent[i], true
		}
	}
	return sentEmail{}, false
}

type dispatcherStub struct {
	mu    sync.Mutex
	tasks []queue.Task
}

func (d *dispatcherStub) Dispatch(ctx context.Context, task queue.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	return nil
}

func (d *dispatcherStub) kinds() []queue.Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]queue.Kind, 0, len(d.tasks))
	for _, task := range d.tasks {
		out = append(out, task.Kind)
	}
	return out
}

type pipelineFixture struct {
	db           *gorm.DB
	applications repository.ApplicationRepository
	combinations repository.CombinationRepository
	submissions  repository.TestSubmissionRepository
	library      repository.TestLibraryRepository
	oracle       *oracleStub
	sender       *senderStub
	dispatcher   *dispatcherStub
	storage      *storageStub

	intake     ApplicationService
	lifecycle  LifecycleService
	matching   MatchingService
	assessment AssessmentService
	sessions   TestSessionService
	followups  FollowupService
	staff      StaffService
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Application{},
		&models.TestCombination{},
		&models.TestSubmission{},
		&models.TestLibraryEntry{},
		&models.NotificationLog{},
	))
	return db
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	db := setupServiceDB(t)
	logger := testLogger()
	validate := validator.New(validator.WithRequiredStructEnabled())

	f := &pipelineFixture{
		db:           db,
		applications: repository.NewApplicationRepository(db),
		combinations: repository.NewCombinationRepository(db),
		submissions:  repository.NewTestSubmissionRepository(db),
		library:      repository.NewTestLibraryRepository(db),
		oracle:       &oracleStub{},
		sender:       &senderStub{},
		dispatcher:   &dispatcherStub{},
		storage:      &storageStub{},
	}

	settings := PipelineSettings{AppPublicURL: "https://apply.example.com"}
	notifier := NewNotifier(f.sender, repository.NewNotificationLogRepository(db), logger)
	orchestrator := NewOrchestrator(f.oracle, time.Second, logger)

	f.intake = NewApplicationService(f.applications, notifier, f.dispatcher, validate, logger)
	f.lifecycle = NewLifecycleService(f.applications, f.combinations, orchestrator, notifier, f.dispatcher, settings, logger)
	f.matching = NewMatchingService(f.applications, f.combinations, f.submissions, f.library, notifier, settings, logger)
	f.assessment = NewAssessmentService(f.submissions, f.combinations, f.library, orchestrator, f.lifecycle, logger)
	uploads := NewUploadService(f.storage, 5, logger)
	f.sessions = NewTestSessionService(f.applications, f.combinations, f.submissions, f.library, uploads, notifier, f.dispatcher, validate, logger)
	f.followups = NewFollowupService(f.applications, f.combinations, f.submissions, notifier, f.dispatcher, nil, time.Hour, settings, logger)
	f.staff = NewStaffService(f.applications, f.combinations, f.submissions, f.library, f.lifecycle, notifier, f.dispatcher, validate, settings, logger)
	return f
}

func translatorJudgment(score float64, difficulty string) ai.Judgment {
	return ai.Judgment{
		Kind: ai.KindTranslatorPrescreen,
		TranslatorPrescreen: &ai.TranslatorPrescreen{
			OverallScore:            score,
			Recommendation:          "proceed",
			SuggestedTestDifficulty: difficulty,
			SuggestedTier:           models.TierSenior,
		},
	}
}

func assessmentJudgment(score float64) ai.Judgment {
	return ai.Judgment{
		Kind:                  ai.KindTranslationAssessment,
		TranslationAssessment: &ai.TranslationAssessment{OverallScore: score, Pass: score >= AssessmentApproveScore},
	}
}

func translatorRequest(email string, pairs []dto.LanguagePair, domains, services []string) dto.ApplicationSubmitRequest {
	years := 8
	return dto.ApplicationSubmitRequest{
		RoleType:        models.RoleTypeTranslator,
		FullName:        "Ana Lima",
		Email:           email,
		Country:         "Brazil",
		YearsExperience: &years,
		LanguagePairs:   pairs,
		Domains:         domains,
		Services:        services,
	}
}

func (f *pipelineFixture) seedTest(t *testing.T, slug, source, target, domain, service, difficulty string) models.TestLibraryEntry {
	t.Helper()
	entry := models.TestLibraryEntry{
		Slug:                 slug,
		Title:                "Test " + slug,
		SourceLanguage:       source,
		TargetLanguage:       target,
		Domain:               domain,
		ServiceType:          service,
		Difficulty:           difficulty,
		SourceText:           "Source text for " + slug,
		Instructions:         "Translate it.",
		ReferenceTranslation: "secret reference",
		AIAssessmentRubric:   "secret rubric",
		IsActive:             true,
	}
	require.NoError(t, f.db.Create(&entry).Error)
	return entry
}

// submitTranslator creates an application and returns its id.
func (f *pipelineFixture) submitTranslator(t *testing.T, email string, pairs []dto.LanguagePair, domains, services []string) uint {
	t.Helper()
	resp, err := f.intake.Submit(context.Background(), translatorRequest(email, pairs, domains, services))
	require.NoError(t, err)
	return resp.ID
}

// issueTests drives an application from submission to test_sent with the given prescreen score.
func (f *pipelineFixture) issueTests(t *testing.T, id uint, score float64) dto.AssignTestsResult {
	t.Helper()
	ctx := context.Background()
	f.oracle.script(oracleReply{judgment: translatorJudgment(score, models.DifficultyIntermediate)})
	outcome, err := f.lifecycle.RunPrescreen(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusPrescreened, outcome.Status)

	result, err := f.matching.AssignTests(ctx, id)
	require.NoError(t, err)
	return result
}

func (f *pipelineFixture) application(t *testing.T, id uint) models.Application {
	t.Helper()
	app, err := f.applications.GetWithCombinations(context.Background(), id)
	require.NoError(t, err)
	return app
}

func (f *pipelineFixture) submissionsFor(t *testing.T, id uint) []models.TestSubmission {
	t.Helper()
	items, err := f.submissions.ListByApplication(context.Background(), id)
	require.NoError(t, err)
	return items
}

func TestPrescreenPassIssuesOneTokenPerCombination(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	f.seedTest(t, "es-en-legal", "es", "en", models.DomainLegal, models.ServiceTranslation, models.DifficultyIntermediate)
	f.seedTest(t, "es-en-medical", "es", "en", models.DomainMedical, models.ServiceTranslation, models.DifficultyIntermediate)
	f.seedTest(t, "pt-en-legal", "pt", "en", models.DomainLegal, models.ServiceTranslation, models.DifficultyIntermediate)
	f.seedTest(t, "pt-en-medical", "pt", "en", models.DomainMedical, models.ServiceTranslation, models.DifficultyIntermediate)

	id := f.submitTranslator(t, "ana@example.com",
		[]dto.LanguagePair{{Source: "es", Target: "en"}, {Source: "pt", Target: "en"}},
		[]string{models.DomainLegal, models.DomainMedical},
		[]string{models.ServiceTranslation})
	require.Equal(t, []queue.Kind{queue.KindPrescreen}, f.dispatcher.kinds())

	f.oracle.script(oracleReply{judgment: translatorJudgment(85, models.DifficultyIntermediate)})
	outcome, err := f.lifecycle.RunPrescreen(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusPrescreened, outcome.Status)
	require.NotNil(t, outcome.Score)
	require.Equal(t, 85.0, *outcome.Score)
	require.Equal(t, []queue.Kind{queue.KindPrescreen, queue.KindAssignTests}, f.dispatcher.kinds())

	result, err := f.matching.AssignTests(ctx, id)
	require.NoError(t, err)
	require.Len(t, result.Issued, 4)
	require.Empty(t, result.Failures)
	require.Equal(t, models.ApplicationStatusTestSent, result.ApplicationStatus)
	require.True(t, result.InvitationSent)

	app := f.application(t, id)
	require.Equal(t, models.ApplicationStatusTestSent, app.Status)
	require.NotNil(t, app.AssignedTier)
	require.Equal(t, models.TierSenior, *app.AssignedTier)
	for _, combination := range app.Combinations {
		require.Equal(t, models.CombinationStatusTestSent, combination.Status)
		require.NotNil(t, combination.SubmissionID)
	}

	tokens := map[string]struct{}{}
	for _, submission := range f.submissionsFor(t, id) {
		tokens[submission.Token] = struct{}{}
		require.Len(t, submission.Token, 43)
		require.WithinDuration(t, submission.CreatedAt.Add(48*time.Hour), submission.TokenExpiresAt, 5*time.Second)
	}
	require.Len(t, tokens, 4)

	require.Equal(t, 1, f.sender.count(TemplateTestInvitation))
	invitation, ok := f.sender.last(TemplateTestInvitation)
	require.True(t, ok)
	require.Equal(t, 4, invitation.params["testCount"])
	require.Equal(t, 48, invitation.params["expiryHours"])
	links, ok := invitation.params["testLinks"].([]string)
	require.True(t, ok)
	require.Len(t, links, 4)
	require.Contains(t, links[0], "https://apply.example.com/test/")

	// Re-running the engine finds nothing pending and issues nothing new.
	again, err := f.matching.AssignTests(ctx, id)
	require.NoError(t, err)
	require.Empty(t, again.Issued)
	require.Len(t, f.submissionsFor(t, id), 4)
}

func TestPrescreenDoubleOracleFailureFallsBackToStaffReview(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	id := f.submitTranslator(t, "bo@example.com",
		[]dto.LanguagePair{{Source: "es", Target: "en"}}, []string{models.DomainLegal}, []string{models.ServiceTranslation})

	f.oracle.script(oracleReply{err: errors.New("upstream 503")})
	outcome, err := f.lifecycle.RunPrescreen(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, f.oracle.callCount(), "one retry, never a third call")
	require.Equal(t, models.ApplicationStatusStaffReview, outcome.Status)
	require.True(t, outcome.Fallback)
	require.Nil(t, outcome.Score)

	app := f.application(t, id)
	require.Equal(t, models.ApplicationStatusStaffReview, app.Status)
	require.Nil(t, app.PrescreenScore)
	judgment, ok := decodeJudgment(app.PrescreenResult)
	require.True(t, ok)
	require.True(t, judgment.IsFallback())
	require.Equal(t, ai.FallbackErrorCode, judgment.Fallback.Error)
	require.Equal(t, 1, f.sender.count(TemplateUnderReview))
	require.NotContains(t, f.dispatcher.kinds(), queue.KindAssignTests)
}

func TestPrescreenRetrySucceedsOnSecondCall(t *testing.T) {
	f := newPipelineFixture(t)
	id := f.submitTranslator(t, "cy@example.com",
		[]dto.LanguagePair{{Source: "es", Target: "en"}}, []string{models.DomainLegal}, []string{models.ServiceTranslation})

	f.oracle.script(
		oracleReply{err: errors.New("timeout")},
		oracleReply{judgment: translatorJudgment(60, "")},
	)
	outcome, err := f.lifecycle.RunPrescreen(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 2, f.oracle.callCount())
	require.False(t, outcome.Fallback)
	require.Equal(t, models.ApplicationStatusStaffReview, outcome.Status)
	require.Equal(t, 60.0, *outcome.Score)
}

func TestPrescreenLowScoreRejectsWithCooldown(t *testing.T) {
	f := newPipelineFixture(t)
	id := f.submitTranslator(t, "di@example.com",
		[]dto.LanguagePair{{Source: "es", Target: "en"}}, []string{models.DomainLegal}, []string{models.ServiceTranslation})

	f.oracle.script(oracleReply{judgment: translatorJudgment(42.5, "")})
	outcome, err := f.lifecycle.RunPrescreen(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusRejected, outcome.Status)

	app := f.application(t, id)
	require.Equal(t, "AI pre-screening score: 42.5/100", app.RejectionReason)
	require.NotNil(t, app.RejectionEmailStatus)
	require.Equal(t, models.RejectionEmailQueued, *app.RejectionEmailStatus)
	require.NotNil(t, app.CooldownUntil)
	require.WithinDuration(t, time.Now().Add(180*24*time.Hour), *app.CooldownUntil, time.Minute)
	require.Zero(t, f.sender.count(TemplateRejected), "rejection email waits for the hold window")

	// A second application from the same address hits the cooldown.
	_, err = f.intake.Submit(context.Background(), translatorRequest("DI@example.com",
		[]dto.LanguagePair{{Source: "es", Target: "en"}}, []string{models.DomainLegal}, []string{models.ServiceTranslation}))
	var cooldown *CooldownError
	require.ErrorAs(t, err, &cooldown)
	require.WithinDuration(t, *app.CooldownUntil, cooldown.Until, time.Second)
}

func TestPrescreenConsultantAlwaysGoesToStaffReview(t *testing.T) {
	f := newPipelineFixture(t)
	resp, err := f.intake.Submit(context.Background(), dto.ApplicationSubmitRequest{
		RoleType:       models.RoleTypeCognitiveDebriefing,
		FullName:       "Dr. Eva Ortiz",
		Email:          "eva@example.com",
		Country:        "Spain",
		CogDegreeField: "Psychology",
	})
	require.NoError(t, err)
	require.Zero(t, resp.Combinations)

	f.oracle.script(oracleReply{judgment: ai.Judgment{
		Kind:                ai.KindConsultantPrescreen,
		ConsultantPrescreen: &ai.ConsultantPrescreen{OverallScore: 95, Recommendation: "staff_review"},
	}})
	outcome, err := f.lifecycle.RunPrescreen(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusStaffReview, outcome.Status)
	require.Equal(t, 95.0, *outcome.Score)
	require.Equal(t, ai.KindConsultantPrescreen, f.oracle.calls[0].Kind)
}

func TestPrescreenRedeliveryIsNoop(t *testing.T) {
	f := newPipelineFixture(t)
	id := f.submitTranslator(t, "ed@example.com",
		[]dto.LanguagePair{{Source: "es", Target: "en"}}, []string{models.DomainLegal}, []string{models.ServiceTranslation})

	f.oracle.script(oracleReply{judgment: translatorJudgment(55, "")})
	_, err := f.lifecycle.RunPrescreen(context.Background(), id)
	require.NoError(t, err)

	outcome, err := f.lifecycle.RunPrescreen(context.Background(), id)
	require.NoError(t, err)
	require.True(t, outcome.Skipped)
	require.Equal(t, 1, f.oracle.callCount())
	require.Equal(t, 1, f.sender.count(TemplateUnderReview))
}

func TestPrescreenUnknownApplication(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.lifecycle.RunPrescreen(context.Background(), 999)
	require.ErrorIs(t, err, ErrApplicationNotFound)
}

func TestAssignTestsWithoutLibraryRoutesToStaffReview(t *testing.T) {
	f := newPipelineFixture(t)
	id := f.submitTranslator(t, "fi@example.com",
		[]dto.LanguagePair{{Source: "ja", Target: "en"}}, []string{models.DomainLegal}, []string{models.ServiceTranslation})

	result := f.issueTests(t, id, 90)
	require.Empty(t, result.Issued)
	require.Len(t, result.NoTestAvailable, 1)
	require.Equal(t, models.ApplicationStatusStaffReview, result.ApplicationStatus)
	require.False(t, result.InvitationSent)

	app := f.application(t, id)
	require.Equal(t, models.CombinationStatusNoTestAvailable, app.Combinations[0].Status)
}

func TestAssignTestsPrefersSuggestedDifficulty(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	f.seedTest(t, "easy", "es", "en", models.DomainLegal, models.ServiceTranslation, models.DifficultyBeginner)
	hard := f.seedTest(t, "hard", "es", "en", models.DomainLegal, models.ServiceTranslation, models.DifficultyAdvanced)

	id := f.submitTranslator(t, "gu@example.com",
		[]dto.LanguagePair{{Source: "es", Target: "en"}}, []string{models.DomainLegal}, []string{models.ServiceTranslation})

	f.oracle.script(oracleReply{judgment: translatorJudgment(88, models.DifficultyAdvanced)})
	_, err := f.lifecycle.RunPrescreen(ctx, id)
	require.NoError(t, err)

	result, err := f.matching.AssignTests(ctx, id)
	require.NoError(t, err)
	require.Len(t, result.Issued, 1)
	require.Equal(t, hard.ID, result.Issued[0].TestID)

	stored, err := f.library.GetByID(ctx, hard.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.TimesUsed)
	require.NotNil(t, stored.LastUsedAt)
}

type failingLibrary struct {
	repository.TestLibraryRepository
	failDomain string
}

func (l failingLibrary) ListCandidates(ctx context.Context, source, target, domain, service string) ([]models.TestLibraryEntry, error) {
	if domain == l.failDomain {
		return nil, errors.New("library unavailable")
	}
	return l.TestLibraryRepository.ListCandidates(ctx, source, target, domain, service)
}

func TestAssignTestsIsolatesCombinationFailures(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	f.seedTest(t, "legal", "es", "en", models.DomainLegal, models.ServiceTranslation, models.DifficultyIntermediate)
	f.seedTest(t, "medical", "es", "en", models.DomainMedical, models.ServiceTranslation, models.DifficultyIntermediate)

	id := f.submitTranslator(t, "ha@example.com",
		[]dto.LanguagePair{{Source: "es", Target: "en"}},
		[]string{models.DomainLegal, models.DomainMedical}, []string{models.ServiceTranslation})
	f.oracle.script(oracleReply{judgment: translatorJudgment(80, "")})
	_, err := f.lifecycle.RunPrescreen(ctx, id)
	require.NoError(t, err)

	broken := NewMatchingService(f.applications, f.combinations, f.submissions,
		failingLibrary{TestLibraryRepository: f.library, failDomain: models.DomainMedical},
		NewNotifier(f.sender, nil, testLogger()), PipelineSettings{}, testLogger())

	result, err := broken.AssignTests(ctx, id)
	require.NoError(t, err)
	require.Len(t, result.Issued, 1)
	require.Len(t, result.Failures, 1)
	require.Equal(t, models.ApplicationStatusTestSent, result.ApplicationStatus)

	app := f.application(t, id)
	statuses := map[string]string{}
	for _, combination := range app.Combinations {
		statuses[combination.Domain] = combination.Status
	}
	require.Equal(t, models.CombinationStatusTestSent, statuses[models.DomainLegal])
	require.Equal(t, models.CombinationStatusPending, statuses[models.DomainMedical], "failed claim is released")

	// The healthy engine resumes the released combination.
	resumed, err := f.matching.AssignTests(ctx, id)
	require.NoError(t, err)
	require.Len(t, resumed.Issued, 1)
	require.Len(t, f.submissionsFor(t, id), 2)
}

func TestRecomputeAllRejectedIsIdempotent(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	f.seedTest(t, "legal", "es", "en", models.DomainLegal, models.ServiceTranslation, models.DifficultyIntermediate)
	f.seedTest(t, "medical", "es", "en", models.DomainMedical, models.ServiceTranslation, models.DifficultyIntermediate)

	id := f.submitTranslator(t, "ib@example.com",
		[]dto.LanguagePair{{Source: "es", Target: "en"}},
		[]string{models.DomainLegal, models.DomainMedical}, []string{models.ServiceTranslation})
	f.issueTests(t, id, 75)

	for i, combination := range f.application(t, id).Combinations {
		score := 40.0 + float64(i)*10
		require.NoError(t, f.combinations.Update(ctx, combination.ID, map[string]interface{}{
			"status": models.CombinationStatusRejected,
			"score":  score,
		}))
	}

	status, err := f.lifecycle.RecomputeFromCombinations(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusRejected, status)

	app := f.application(t, id)
	require.Equal(t, "Skills test score: 50/100", app.RejectionReason)
	require.NotNil(t, app.CooldownUntil)
	firstUpdate := app.UpdatedAt

	status, err = f.lifecycle.RecomputeFromCombinations(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusRejected, status)
	require.Equal(t, firstUpdate, f.application(t, id).UpdatedAt)
}

func TestPipelineWorkerRoutesTasks(t *testing.T) {
	f := newPipelineFixture(t)
	worker := NewPipelineWorker(f.lifecycle, f.matching, f.assessment, testLogger())
	id := f.submitTranslator(t, "jo@example.com",
		[]dto.LanguagePair{{Source: "es", Target: "en"}}, []string{models.DomainLegal}, []string{models.ServiceTranslation})

	f.oracle.script(oracleReply{judgment: translatorJudgment(90, "")})
	require.NoError(t, worker.Handle(context.Background(), queue.Task{Kind: queue.KindPrescreen, ApplicationID: id, CorrelationID: "corr-1"}))
	require.Equal(t, models.ApplicationStatusPrescreened, f.application(t, id).Status)

	require.NoError(t, worker.Handle(context.Background(), queue.Task{Kind: queue.KindAssignTests, ApplicationID: id}))
	require.Equal(t, models.ApplicationStatusStaffReview, f.application(t, id).Status)

	require.NoError(t, worker.Handle(context.Background(), queue.Task{Kind: queue.KindPrescreen, ApplicationID: 4242}), "missing rows are dropped")
	require.Error(t, worker.Handle(context.Background(), queue.Task{Kind: "bogus"}))
}

func TestDispatchTaskGivesUpOnFullQueue(t *testing.T) {
	previous := dispatchTimeout
	dispatchTimeout = 20 * time.Millisecond
	defer func() { dispatchTimeout = previous }()

	full := queue.NewLocalQueue(1, 1, testLogger())
	require.NoError(t, full.Dispatch(context.Background(), queue.Task{Kind: queue.KindPrescreen, ApplicationID: 1}))

	done := make(chan struct{})
	go func() {
		dispatchTask(context.Background(), full, queue.Task{Kind: queue.KindPrescreen, ApplicationID: 2}, testLogger())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on a full queue")
	}
}
