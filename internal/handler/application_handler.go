package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/service"
	"github.com/noah-isme/screening-api/internal/utils"
)

// ApplicationHandler accepts public application forms.
type ApplicationHandler struct {
	service service.ApplicationService
	logger  zerolog.Logger
}

// NewApplicationHandler constructs an application handler.
func NewApplicationHandler(service service.ApplicationService, logger zerolog.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		service: service,
		logger:  logger.With().Str("component", "application_handler").Logger(),
	}
}

// Register wires application intake routes.
func (h *ApplicationHandler) Register(router fiber.Router) {
	router.Post("", h.submit)
}

func (h *ApplicationHandler) submit(c *fiber.Ctx) error {
	var payload dto.ApplicationSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	payload.IPAddress = c.IP()
	payload.UserAgent = c.Get(fiber.HeaderUserAgent)

	response, err := h.service.Submit(c.UserContext(), payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to submit application")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "application received", response)
}
