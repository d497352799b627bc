package service

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/repository"
)

const testLibraryFixture = "../../testdata/test_library.yaml"

func TestParseTestLibraryFixture(t *testing.T) {
	file, err := os.Open(testLibraryFixture)
	require.NoError(t, err)
	defer file.Close()

	entries, err := ParseTestLibrary(file)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	bySlug := map[string]models.TestLibraryEntry{}
	for _, entry := range entries {
		bySlug[entry.Slug] = entry
	}

	legal := bySlug["en-es-legal-translation-intermediate"]
	require.True(t, legal.IsActive)
	require.NotEmpty(t, legal.ReferenceTranslation)
	require.NotEmpty(t, legal.AIAssessmentRubric)

	var lqa, inactive *models.TestLibraryEntry
	for i := range entries {
		switch {
		case entries[i].ServiceType == models.ServiceLQAReview:
			lqa = &entries[i]
		case !entries[i].IsActive:
			inactive = &entries[i]
		}
	}
	require.NotNil(t, lqa)
	require.NotEmpty(t, lqa.LQASourceTranslation)
	require.NotEmpty(t, lqa.LQAAnswerKey)
	require.NotNil(t, inactive)
	require.Equal(t, models.DifficultyBeginner, inactive.Difficulty)
}

func TestParseTestLibraryDefaultsAndErrors(t *testing.T) {
	entries, err := ParseTestLibrary(strings.NewReader(`
tests:
  - title: Short notice
    source_language: PT
    target_language: en
    domain: Immigration
    service_type: translation
    source_text: Aviso de audiência.
`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "pt-en-immigration-translation-intermediate", entries[0].Slug)
	require.Equal(t, models.DifficultyIntermediate, entries[0].Difficulty)
	require.True(t, entries[0].IsActive)

	cases := map[string]string{
		"empty":        "tests: []",
		"bad yaml":     "tests: [",
		"same pair":    "tests:\n  - {title: x, source_language: en, target_language: en, domain: legal, service_type: translation, source_text: y}",
		"bad domain":   "tests:\n  - {title: x, source_language: en, target_language: es, domain: sports, service_type: translation, source_text: y}",
		"lqa no text":  "tests:\n  - {title: x, source_language: en, target_language: es, domain: legal, service_type: lqa_review, source_text: y}",
		"bad level":    "tests:\n  - {title: x, source_language: en, target_language: es, domain: legal, service_type: translation, difficulty: expert, source_text: y}",
		"no source":    "tests:\n  - {title: x, source_language: en, target_language: es, domain: legal, service_type: translation}",
		"duplicate id": "tests:\n  - {slug: a, title: x, source_language: en, target_language: es, domain: legal, service_type: translation, source_text: y}\n  - {slug: a, title: z, source_language: en, target_language: fr, domain: legal, service_type: translation, source_text: y}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTestLibrary(strings.NewReader(doc))
			require.ErrorIs(t, err, ErrSeedInvalid)
		})
	}
}

func TestSeedServiceTokenGuard(t *testing.T) {
	db := setupServiceDB(t)
	library := repository.NewTestLibraryRepository(db)
	svc := NewSeedService(library, true, "secret", testLogger())

	doc := "tests:\n  - {title: x, source_language: en, target_language: es, domain: legal, service_type: translation, source_text: y}"

	_, err := svc.SeedTestLibrary(context.Background(), "wrong", strings.NewReader(doc))
	require.ErrorIs(t, err, ErrSeedUnauthorized)

	affected, err := svc.SeedTestLibrary(context.Background(), " secret ", strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, int64(1), affected)

	disabled := NewSeedService(library, false, "secret", testLogger())
	_, err = disabled.SeedTestLibrary(context.Background(), "secret", strings.NewReader(doc))
	require.ErrorIs(t, err, ErrSeedDisabled)

	unset := NewSeedService(library, true, "", testLogger())
	_, err = unset.SeedTestLibrary(context.Background(), "", strings.NewReader(doc))
	require.ErrorIs(t, err, ErrSeedUnauthorized)
}

func TestLoadTestLibraryFileFeedsMatching(t *testing.T) {
	db := setupServiceDB(t)
	library := repository.NewTestLibraryRepository(db)
	svc := NewSeedService(library, false, "", testLogger())

	_, err := svc.LoadTestLibraryFile(context.Background(), testLibraryFixture)
	require.NoError(t, err)

	// Loading twice upserts by slug.
	_, err = svc.LoadTestLibraryFile(context.Background(), testLibraryFixture)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.TestLibraryEntry{}).Count(&count).Error)
	require.Equal(t, int64(4), count)

	candidates, err := library.ListCandidates(context.Background(), "en", "es", models.DomainLegal, models.ServiceTranslation)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	inactive, err := library.ListCandidates(context.Background(), "en", "de", models.DomainTechnical, models.ServiceTranslation)
	require.NoError(t, err)
	require.Empty(t, inactive)

	_, err = svc.LoadTestLibraryFile(context.Background(), "missing.yaml")
	require.Error(t, err)
}
