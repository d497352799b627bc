package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/pkg/ai"
)

func submitOne(t *testing.T, f *pipelineFixture, submission models.TestSubmission, content string) {
	t.Helper()
	_, err := f.sessions.Submit(context.Background(), submission.Token, dto.SubmitTestRequest{Content: content})
	require.NoError(t, err)
}

func TestAssessmentHighScoreApproves(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	id, submission := issuedSession(t, f)
	submitOne(t, f, submission, "a careful translation")

	f.oracle.script(oracleReply{judgment: assessmentJudgment(91)})
	outcome, err := f.assessment.AssessSubmission(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.CombinationStatusApproved, outcome.CombinationStatus)
	require.Equal(t, models.ApplicationStatusTestAssessed, outcome.ApplicationStatus)
	require.False(t, outcome.Fallback)

	combination, err := f.combinations.GetByID(ctx, submission.CombinationID)
	require.NoError(t, err)
	require.Equal(t, 91.0, *combination.Score)
	require.NotNil(t, combination.ApprovedAt)

	stored, err := f.submissions.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusAssessed, stored.Status)

	entry, err := f.library.GetByID(ctx, submission.TestID)
	require.NoError(t, err)
	require.Equal(t, 1, entry.PassCount)

	require.Equal(t, ai.KindTranslationAssessment, f.oracle.calls[0].Kind)
	require.NotNil(t, f.oracle.calls[0].Attempt)
	require.Equal(t, models.ApplicationStatusTestAssessed, f.application(t, id).Status)
}

func TestAssessmentBorderlineRoutesToStaff(t *testing.T) {
	f := newPipelineFixture(t)
	id, submission := issuedSession(t, f)
	submitOne(t, f, submission, "decent")

	f.oracle.script(oracleReply{judgment: assessmentJudgment(72)})
	outcome, err := f.assessment.AssessSubmission(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.CombinationStatusAssessed, outcome.CombinationStatus)
	require.Equal(t, models.ApplicationStatusStaffReview, f.application(t, id).Status)
	require.Equal(t, 1, f.sender.count(TemplateUnderReview))
}

func TestAssessmentFallbackLeavesScoreEmpty(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	id, submission := issuedSession(t, f)
	submitOne(t, f, submission, "anything")

	f.oracle.script(oracleReply{err: errors.New("model overloaded")})
	outcome, err := f.assessment.AssessSubmission(ctx, submission.ID)
	require.NoError(t, err)
	require.True(t, outcome.Fallback)
	require.Nil(t, outcome.Score)
	require.Equal(t, 2, f.oracle.callCount())
	require.Equal(t, models.CombinationStatusAssessed, outcome.CombinationStatus)

	combination, err := f.combinations.GetByID(ctx, submission.CombinationID)
	require.NoError(t, err)
	require.Nil(t, combination.Score)
	judgment, ok := decodeJudgment(combination.AssessmentResult)
	require.True(t, ok)
	require.True(t, judgment.IsFallback())
	require.Equal(t, models.ApplicationStatusStaffReview, f.application(t, id).Status)
}

func TestAssessmentAllRejectedRejectsApplication(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	f.seedTest(t, "legal", "es", "en", models.DomainLegal, models.ServiceTranslation, models.DifficultyIntermediate)
	f.seedTest(t, "medical", "es", "en", models.DomainMedical, models.ServiceTranslation, models.DifficultyIntermediate)
	id := f.submitTranslator(t, "mo@example.com",
		[]dto.LanguagePair{{Source: "es", Target: "en"}},
		[]string{models.DomainLegal, models.DomainMedical}, []string{models.ServiceTranslation})
	f.issueTests(t, id, 78)

	submissions := f.submissionsFor(t, id)
	require.Len(t, submissions, 2)
	for _, submission := range submissions {
		submitOne(t, f, submission, "weak")
	}

	f.oracle.script(oracleReply{judgment: assessmentJudgment(40)})
	first, err := f.assessment.AssessSubmission(ctx, submissions[0].ID)
	require.NoError(t, err)
	require.Equal(t, models.CombinationStatusRejected, first.CombinationStatus)
	require.Equal(t, models.ApplicationStatusTestInProgress, first.ApplicationStatus)

	f.oracle.script(oracleReply{judgment: assessmentJudgment(55)})
	second, err := f.assessment.AssessSubmission(ctx, submissions[1].ID)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusRejected, second.ApplicationStatus)

	app := f.application(t, id)
	require.Equal(t, models.ApplicationStatusRejected, app.Status)
	require.Equal(t, "Skills test score: 55/100", app.RejectionReason)
	require.Equal(t, models.RejectionEmailQueued, *app.RejectionEmailStatus)
	require.NotNil(t, app.CooldownUntil)
}

func TestAssessmentRedeliveryIsSkipped(t *testing.T) {
	f := newPipelineFixture(t)
	_, submission := issuedSession(t, f)
	submitOne(t, f, submission, "text")

	f.oracle.script(oracleReply{judgment: assessmentJudgment(85)})
	_, err := f.assessment.AssessSubmission(context.Background(), submission.ID)
	require.NoError(t, err)

	again, err := f.assessment.AssessSubmission(context.Background(), submission.ID)
	require.NoError(t, err)
	require.True(t, again.Skipped)
	require.Equal(t, 1, f.oracle.callCount())
}

func TestAssessmentUnknownSubmission(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.assessment.AssessSubmission(context.Background(), 12345)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestAssessmentKindMismatchCountsAsFailure(t *testing.T) {
	f := newPipelineFixture(t)
	_, submission := issuedSession(t, f)
	submitOne(t, f, submission, "text")

	f.oracle.script(oracleReply{judgment: translatorJudgment(99, "")})
	outcome, err := f.assessment.AssessSubmission(context.Background(), submission.ID)
	require.NoError(t, err)
	require.True(t, outcome.Fallback)
	require.Equal(t, 2, f.oracle.callCount())
}
