package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/middleware"
	"github.com/noah-isme/screening-api/internal/service"
	"github.com/noah-isme/screening-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseIDParam(c *fiber.Ctx, key string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(key), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func staffActorFromContext(c *fiber.Ctx) dto.StaffActor {
	return dto.StaffActor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

func validationDetails(err error) []fiber.Map {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make([]fiber.Map, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details = append(details, fiber.Map{"field": fieldErr.Namespace(), "rule": fieldErr.Tag()})
	}
	return details
}

// sendServiceError maps pipeline errors onto the API envelope. Unknown errors are logged and hidden.
func sendServiceError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	var cooldown *service.CooldownError
	switch {
	case isValidationError(err):
		return utils.SendErrorCode(c, fiber.StatusUnprocessableEntity, "validation_failed", "validation failed", validationDetails(err))
	case errors.As(err, &cooldown):
		return utils.SendErrorCode(c, fiber.StatusConflict, "cooldown_active", err.Error(),
			fiber.Map{"reapply_after": cooldown.Until.Format("2006-01-02")})
	case errors.Is(err, service.ErrApplicationNotFound), errors.Is(err, service.ErrCombinationNotFound):
		return utils.SendErrorCode(c, fiber.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, service.ErrTokenNotFound):
		return utils.SendErrorCode(c, fiber.StatusNotFound, "token_not_found", err.Error(), nil)
	case errors.Is(err, service.ErrTestAlreadySubmitted):
		return utils.SendErrorCode(c, fiber.StatusConflict, "already_submitted", err.Error(), nil)
	case errors.Is(err, service.ErrTokenExpired):
		return utils.SendErrorCode(c, fiber.StatusGone, "token_expired", err.Error(), nil)
	case errors.Is(err, service.ErrStatusConflict):
		return utils.SendErrorCode(c, fiber.StatusConflict, "status_conflict", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidTransition):
		return utils.SendErrorCode(c, fiber.StatusUnprocessableEntity, "invalid_transition", err.Error(), nil)
	case errors.Is(err, service.ErrUploadMissing), errors.Is(err, service.ErrUploadTypeNotAllowed), errors.Is(err, service.ErrUploadScanFailed):
		return utils.SendErrorCode(c, fiber.StatusBadRequest, "invalid_upload", err.Error(), nil)
	case errors.Is(err, service.ErrUploadTooLarge):
		return utils.SendErrorCode(c, fiber.StatusRequestEntityTooLarge, "upload_too_large", err.Error(), nil)
	case errors.Is(err, service.ErrUploadUnavailable):
		return utils.SendErrorCode(c, fiber.StatusServiceUnavailable, "upload_unavailable", err.Error(), nil)
	default:
		requestLogger(logger, c).Error().Err(err).Msg(fallback)
		return utils.SendError(c, fiber.StatusInternalServerError, fallback)
	}
}
