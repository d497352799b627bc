package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/screening-api/internal/models"
	"github.com/noah-isme/screening-api/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
	// ErrSeedInvalid indicates the test library document is malformed.
	ErrSeedInvalid = errors.New("invalid test library document")
)

// TestLibraryDocument is the YAML layout of a test library file.
type TestLibraryDocument struct {
	Tests []TestLibrarySeed `yaml:"tests"`
}

// TestLibrarySeed is one library entry as written in the seed file. Active defaults to true.
type TestLibrarySeed struct {
	models.TestLibraryEntry `yaml:",inline"`
	Active                  *bool `yaml:"active"`
}

// SeedService loads the skills test library.
type SeedService interface {
	SeedTestLibrary(ctx context.Context, token string, document io.Reader) (int64, error)
	LoadTestLibraryFile(ctx context.Context, path string) (int64, error)
}

type seedService struct {
	library repository.TestLibraryRepository
	enabled bool
	token   string
	logger  zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(library repository.TestLibraryRepository, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		library: library,
		enabled: enabled,
		token:   token,
		logger:  logger.With().Str("component", "seed_service").Logger(),
	}
}

// SeedTestLibrary upserts a YAML document posted by an operator.
func (s *seedService) SeedTestLibrary(ctx context.Context, token string, document io.Reader) (int64, error) {
	if !s.enabled {
		return 0, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return 0, ErrSeedUnauthorized
	}
	return s.load(ctx, document, "request")
}

// LoadTestLibraryFile upserts the library from a local file. It is an operator command and skips the token.
func (s *seedService) LoadTestLibraryFile(ctx context.Context, path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open test library file: %w", err)
	}
	defer file.Close()
	return s.load(ctx, file, path)
}

func (s *seedService) load(ctx context.Context, document io.Reader, source string) (int64, error) {
	entries, err := ParseTestLibrary(document)
	if err != nil {
		return 0, err
	}
	affected, err := s.library.UpsertBatch(ctx, entries)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("source", source).Int("entries", len(entries)).Int64("affected", affected).Msg("test library seeded")
	return affected, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}

// ParseTestLibrary decodes and normalizes a YAML test library document.
func ParseTestLibrary(document io.Reader) ([]models.TestLibraryEntry, error) {
	var doc TestLibraryDocument
	if err := yaml.NewDecoder(document).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSeedInvalid, err)
	}
	if len(doc.Tests) == 0 {
		return nil, fmt.Errorf("%w: no tests defined", ErrSeedInvalid)
	}

	entries := make([]models.TestLibraryEntry, 0, len(doc.Tests))
	seen := make(map[string]struct{}, len(doc.Tests))
	for i, seed := range doc.Tests {
		entry := normalizeTestEntry(seed)
		if err := validateTestEntry(entry); err != nil {
			return nil, fmt.Errorf("%w: test %d: %v", ErrSeedInvalid, i+1, err)
		}
		if _, ok := seen[entry.Slug]; ok {
			return nil, fmt.Errorf("%w: duplicate slug %q", ErrSeedInvalid, entry.Slug)
		}
		seen[entry.Slug] = struct{}{}
		entries = append(entries, entry)
	}
	return entries, nil
}

func normalizeTestEntry(seed TestLibrarySeed) models.TestLibraryEntry {
	entry := seed.TestLibraryEntry
	entry.SourceLanguage = strings.ToLower(strings.TrimSpace(entry.SourceLanguage))
	entry.TargetLanguage = strings.ToLower(strings.TrimSpace(entry.TargetLanguage))
	entry.Domain = strings.ToLower(strings.TrimSpace(entry.Domain))
	entry.ServiceType = strings.ToLower(strings.TrimSpace(entry.ServiceType))
	entry.Difficulty = strings.ToLower(strings.TrimSpace(entry.Difficulty))
	if entry.Difficulty == "" {
		entry.Difficulty = models.DifficultyIntermediate
	}
	if entry.Slug == "" {
		entry.Slug = strings.Join([]string{entry.SourceLanguage, entry.TargetLanguage, entry.Domain, entry.ServiceType, entry.Difficulty}, "-")
	}
	entry.IsActive = seed.Active == nil || *seed.Active
	return entry
}

func validateTestEntry(entry models.TestLibraryEntry) error {
	switch {
	case entry.Title == "":
		return errors.New("title is required")
	case entry.SourceLanguage == "" || entry.TargetLanguage == "":
		return errors.New("source_language and target_language are required")
	case entry.SourceLanguage == entry.TargetLanguage:
		return errors.New("source and target language must differ")
	case strings.TrimSpace(entry.SourceText) == "":
		return errors.New("source_text is required")
	}
	switch entry.Domain {
	case models.DomainLegal, models.DomainMedical, models.DomainImmigration,
		models.DomainFinancial, models.DomainTechnical, models.DomainGeneral:
	default:
		return fmt.Errorf("unknown domain %q", entry.Domain)
	}
	switch entry.ServiceType {
	case models.ServiceTranslation, models.ServiceTranslationReview:
	case models.ServiceLQAReview:
		if strings.TrimSpace(entry.LQASourceTranslation) == "" {
			return errors.New("lqa_source_translation is required for lqa_review tests")
		}
	default:
		return fmt.Errorf("unknown service_type %q", entry.ServiceType)
	}
	switch entry.Difficulty {
	case models.DifficultyBeginner, models.DifficultyIntermediate, models.DifficultyAdvanced:
	default:
		return fmt.Errorf("unknown difficulty %q", entry.Difficulty)
	}
	return nil
}
