package handler_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/screening-api/internal/handler"
	"github.com/noah-isme/screening-api/internal/service"
)

type mockSeedService struct {
	lastToken string
	lastDoc   string
	affected  int64
	err       error
}

func (m *mockSeedService) SeedTestLibrary(_ context.Context, token string, document io.Reader) (int64, error) {
	m.lastToken = token
	data, err := io.ReadAll(document)
	if err != nil {
		return 0, err
	}
	m.lastDoc = string(data)
	return m.affected, m.err
}

func (m *mockSeedService) LoadTestLibraryFile(context.Context, string) (int64, error) {
	return m.affected, m.err
}

const seedDocument = "tests:\n  - {title: x, source_language: en, target_language: es, domain: legal, service_type: translation, source_text: y}\n"

func seedRequest(token, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/seed/test-library", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-yaml")
	if token != "" {
		req.Header.Set("X-Seed-Token", token)
	}
	return req
}

func TestSeedHandler_TestLibrarySuccess(t *testing.T) {
	svc := &mockSeedService{affected: 1}
	app := fiber.New()
	handler.NewSeedHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/seed"))

	resp, err := app.Test(seedRequest("secret", seedDocument))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "secret", svc.lastToken)
	require.Equal(t, seedDocument, svc.lastDoc)

	var body struct {
		Data struct {
			Affected int64 `json:"affected"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, int64(1), body.Data.Affected)
}

func TestSeedHandler_Errors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{service.ErrSeedDisabled, fiber.StatusForbidden},
		{service.ErrSeedUnauthorized, fiber.StatusForbidden},
		{fmt.Errorf("%w: no tests defined", service.ErrSeedInvalid), fiber.StatusUnprocessableEntity},
		{fmt.Errorf("database down"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		app := fiber.New()
		handler.NewSeedHandler(&mockSeedService{err: tc.err}, zerolog.New(io.Discard)).Register(app.Group("/api/seed"))

		resp, err := app.Test(seedRequest("secret", seedDocument))
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode, tc.err.Error())
	}
}

func TestSeedHandler_EmptyBody(t *testing.T) {
	svc := &mockSeedService{}
	app := fiber.New()
	handler.NewSeedHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/seed"))

	resp, err := app.Test(seedRequest("secret", "  "))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Empty(t, svc.lastToken)
}
