package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/queue"
)

func TestSubmitExpandsCombinations(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	req := translatorRequest("  Ana@Example.com ",
		[]dto.LanguagePair{{Source: "ES", Target: "en"}, {Source: "es", Target: "EN"}, {Source: "pt", Target: "en"}},
		[]string{models.DomainLegal, models.DomainMedical},
		[]string{models.ServiceTranslation, models.ServiceLQAReview})
	req.Notes = "<script>alert(1)</script>Available weekends"

	resp, err := f.intake.Submit(ctx, req)
	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusSubmitted, resp.Status)
	require.Equal(t, 8, resp.Combinations, "duplicate pairs collapse")
	require.Regexp(t, regexp.MustCompile(`^APP-\d{2}-\d{4}$`), resp.ApplicationNumber)

	app := f.application(t, resp.ID)
	require.Equal(t, "ana@example.com", app.Email)
	require.Equal(t, "Available weekends", app.Notes)
	for _, combination := range app.Combinations {
		require.Equal(t, models.CombinationStatusPending, combination.Status)
		require.Equal(t, strings.ToLower(combination.SourceLanguage), combination.SourceLanguage)
	}

	require.Equal(t, []string{TemplateApplicationReceived}, f.sender.templates())
	require.Equal(t, []queue.Kind{queue.KindPrescreen}, f.dispatcher.kinds())
}

func TestSubmitValidation(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	cases := map[string]dto.ApplicationSubmitRequest{
		"missing pairs": translatorRequest("a@example.com", nil, []string{models.DomainLegal}, []string{models.ServiceTranslation}),
		"same language": translatorRequest("a@example.com", []dto.LanguagePair{{Source: "en", Target: "en"}},
			[]string{models.DomainLegal}, []string{models.ServiceTranslation}),
		"unknown domain": translatorRequest("a@example.com", []dto.LanguagePair{{Source: "es", Target: "en"}},
			[]string{"astrology"}, []string{models.ServiceTranslation}),
		"bad email": translatorRequest("not-an-email", []dto.LanguagePair{{Source: "es", Target: "en"}},
			[]string{models.DomainLegal}, []string{models.ServiceTranslation}),
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.intake.Submit(ctx, req)
			var validationErrs validator.ValidationErrors
			require.ErrorAs(t, err, &validationErrs)
		})
	}
	require.Empty(t, f.dispatcher.kinds())
}

func TestListApplicationsPaginates(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.submitTranslator(t, fmt.Sprintf("user%d@example.com", i),
			[]dto.LanguagePair{{Source: "es", Target: "en"}}, []string{models.DomainLegal}, []string{models.ServiceTranslation})
	}

	page, err := f.intake.List(ctx, dto.ApplicationListRequest{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, int64(3), page.Pagination.TotalItems)
	require.Equal(t, 2, page.Pagination.TotalPages)

	search, err := f.intake.List(ctx, dto.ApplicationListRequest{Search: "USER1"})
	require.NoError(t, err)
	require.Len(t, search.Items, 1)
	require.Equal(t, defaultApplicationPageSize, search.Pagination.PageSize)

	capped, err := f.intake.List(ctx, dto.ApplicationListRequest{PageSize: 1000, Status: models.ApplicationStatusSubmitted})
	require.NoError(t, err)
	require.Equal(t, maxApplicationPageSize, capped.Pagination.PageSize)
	require.Len(t, capped.Items, 3)
}

func TestGetApplicationDetail(t *testing.T) {
	f := newPipelineFixture(t)
	id := f.submitTranslator(t, "qi@example.com",
		[]dto.LanguagePair{{Source: "es", Target: "en"}}, []string{models.DomainLegal}, []string{models.ServiceTranslation})

	detail, err := f.intake.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, detail.ID)
	require.Len(t, detail.Combinations, 1)

	_, err = f.intake.Get(context.Background(), 9999)
	require.ErrorIs(t, err, ErrApplicationNotFound)
}
