package handler_test

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/handler"
	"github.com/noah-isme/screening-api/internal/service"
)

type mockTestSessionService struct {
	lastToken  string
	lastDraft  dto.SaveDraftRequest
	lastSubmit dto.SubmitTestRequest
	lastFile   string
	view       dto.TestView
	err        error
}

func (m *mockTestSessionService) Resolve(_ context.Context, token string) (dto.TestView, error) {
	m.lastToken = token
	return m.view, m.err
}

func (m *mockTestSessionService) SaveDraft(_ context.Context, token string, req dto.SaveDraftRequest) (dto.SaveDraftResponse, error) {
	m.lastToken = token
	m.lastDraft = req
	return dto.SaveDraftResponse{SavedAt: time.Now()}, m.err
}

func (m *mockTestSessionService) Submit(_ context.Context, token string, req dto.SubmitTestRequest) (dto.SubmitTestResponse, error) {
	m.lastToken = token
	m.lastSubmit = req
	return dto.SubmitTestResponse{SubmissionID: 4, ApplicationStatus: "test_submitted"}, m.err
}

func (m *mockTestSessionService) UploadFile(_ context.Context, token string, file *multipart.FileHeader) (dto.UploadResponse, error) {
	m.lastToken = token
	if file != nil {
		m.lastFile = file.Filename
	}
	return dto.UploadResponse{URL: "https://cdn.example.com/answer.docx"}, m.err
}

func newTestSessionApp(svc service.TestSessionService) *fiber.App {
	app := fiber.New()
	handler.NewTestSessionHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/tests"))
	return app
}

func TestTestSessionHandler_Resolve(t *testing.T) {
	svc := &mockTestSessionService{view: dto.TestView{Title: "Legal contract", SourceLanguage: "es", HoursRemaining: 40}}
	app := newTestSessionApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/tests/tok-123", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data dto.TestView `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "Legal contract", body.Data.Title)
	require.Equal(t, "tok-123", svc.lastToken)
}

func TestTestSessionHandler_ErrorCodes(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown token", service.ErrTokenNotFound, fiber.StatusNotFound, "token_not_found"},
		{"expired", service.ErrTokenExpired, fiber.StatusGone, "token_expired"},
		{"already submitted", service.ErrTestAlreadySubmitted, fiber.StatusConflict, "already_submitted"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestSessionApp(&mockTestSessionService{err: tc.err})
			resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/tests/tok/submit", map[string]string{"content": "x"}))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			var body envelope
			decodeResponse(t, resp, &body)
			require.Equal(t, tc.code, body.Code)
		})
	}
}

func TestTestSessionHandler_DraftAndSubmit(t *testing.T) {
	svc := &mockTestSessionService{}
	app := newTestSessionApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodPut, "/api/tests/tok/draft", map[string]string{"content": "first pass"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "first pass", svc.lastDraft.Content)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/api/tests/tok/submit", map[string]string{"content": "final", "notes": "glossary used"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "final", svc.lastSubmit.Content)
	require.Equal(t, "glossary used", svc.lastSubmit.Notes)

	var body struct {
		Data dto.SubmitTestResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, uint(4), body.Data.SubmissionID)
}

func TestTestSessionHandler_Upload(t *testing.T) {
	svc := &mockTestSessionService{}
	app := newTestSessionApp(svc)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "answer.docx")
	require.NoError(t, err)
	_, err = part.Write([]byte("translated text"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/tests/tok/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "answer.docx", svc.lastFile)

	missing := httptest.NewRequest(http.MethodPost, "/api/tests/tok/upload", nil)
	resp, err = app.Test(missing)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTestSessionHandler_UploadUnavailable(t *testing.T) {
	app := newTestSessionApp(&mockTestSessionService{err: service.ErrUploadUnavailable})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "answer.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/tests/tok/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
