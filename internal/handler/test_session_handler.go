package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/service"
	"github.com/noah-isme/screening-api/internal/utils"
)

// TestSessionHandler serves the token-addressed test pages.
type TestSessionHandler struct {
	service service.TestSessionService
	logger  zerolog.Logger
}

// NewTestSessionHandler constructs a test session handler.
func NewTestSessionHandler(service service.TestSessionService, logger zerolog.Logger) *TestSessionHandler {
	return &TestSessionHandler{
		service: service,
		logger:  logger.With().Str("component", "test_session_handler").Logger(),
	}
}

// Register wires test session routes.
func (h *TestSessionHandler) Register(router fiber.Router) {
	router.Get("/:token", h.resolve)
	router.Put("/:token/draft", h.saveDraft)
	router.Post("/:token/submit", h.submit)
	router.Post("/:token/upload", h.upload)
}

func (h *TestSessionHandler) resolve(c *fiber.Ctx) error {
	view, err := h.service.Resolve(c.UserContext(), c.Params("token"))
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load test")
	}
	return utils.SendSuccess(c, "test loaded", view)
}

func (h *TestSessionHandler) saveDraft(c *fiber.Ctx) error {
	var payload dto.SaveDraftRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.SaveDraft(c.UserContext(), c.Params("token"), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to save draft")
	}
	return utils.SendSuccess(c, "draft saved", response)
}

func (h *TestSessionHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmitTestRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Submit(c.UserContext(), c.Params("token"), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to submit test")
	}
	return utils.SendSuccess(c, "test submitted", response)
}

func (h *TestSessionHandler) upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	result, err := h.service.UploadFile(c.UserContext(), c.Params("token"), file)
	if err != nil {
		return sendServiceError(c, h.logger, err, "upload failed")
	}
	return utils.SendSuccess(c, "upload successful", result)
}
