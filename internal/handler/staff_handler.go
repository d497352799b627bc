package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/screening-api/internal/dto"
	"github.com/noah-isme/screening-api/internal/service"
	"github.com/noah-isme/screening-api/internal/utils"
)

// StaffHandler exposes the review dashboard operations.
type StaffHandler struct {
	applications service.ApplicationService
	staff        service.StaffService
	followups    service.FollowupService
	logger       zerolog.Logger
}

// NewStaffHandler constructs a staff handler.
func NewStaffHandler(applications service.ApplicationService, staff service.StaffService, followups service.FollowupService, logger zerolog.Logger) *StaffHandler {
	return &StaffHandler{
		applications: applications,
		staff:        staff,
		followups:    followups,
		logger:       logger.With().Str("component", "staff_handler").Logger(),
	}
}

// Register wires staff routes. The router is expected to be authenticated already.
func (h *StaffHandler) Register(router fiber.Router) {
	router.Get("/applications", h.list)
	router.Get("/applications/:id", h.get)

	router.Post("/applications/:id/approve", h.decision("application approved", func(c *fiber.Ctx, a dto.StaffActor, id uint, r dto.StaffDecisionRequest) (dto.StaffActionResponse, error) {
		return h.staff.Approve(c.UserContext(), a, id, r)
	}))
	router.Post("/applications/:id/reject", h.decision("application rejected", func(c *fiber.Ctx, a dto.StaffActor, id uint, r dto.StaffDecisionRequest) (dto.StaffActionResponse, error) {
		return h.staff.Reject(c.UserContext(), a, id, r)
	}))
	router.Post("/applications/:id/waitlist", h.decision("application waitlisted", func(c *fiber.Ctx, a dto.StaffActor, id uint, r dto.StaffDecisionRequest) (dto.StaffActionResponse, error) {
		return h.staff.Waitlist(c.UserContext(), a, id, r)
	}))
	router.Post("/applications/:id/request-info", h.decision("more information requested", func(c *fiber.Ctx, a dto.StaffActor, id uint, r dto.StaffDecisionRequest) (dto.StaffActionResponse, error) {
		return h.staff.RequestInfo(c.UserContext(), a, id, r)
	}))
	router.Post("/applications/:id/archive", h.decision("application archived", func(c *fiber.Ctx, a dto.StaffActor, id uint, r dto.StaffDecisionRequest) (dto.StaffActionResponse, error) {
		return h.staff.Archive(c.UserContext(), a, id, r)
	}))

	router.Post("/applications/:id/intercept-rejection", h.interceptRejection)
	router.Post("/applications/:id/rerun-prescreen", h.rerunPrescreen)
	router.Post("/applications/:id/resend-tests", h.resendTests)
	router.Put("/applications/:id/tier", h.overrideTier)
	router.Put("/applications/:id/notes", h.saveNotes)
	router.Post("/applications/:id/negotiation", h.appendNegotiation)
	router.Post("/applications/:id/combinations/:combinationId/decision", h.decideCombination)
	router.Post("/applications/:id/combinations/:combinationId/skip", h.skipCombination)

	router.Post("/followups/run", h.runFollowups)
}

func (h *StaffHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}

	result, err := h.applications.List(c.UserContext(), dto.ApplicationListRequest{
		Page:     page,
		PageSize: pageSize,
		Status:   c.Query("status"),
		RoleType: c.Query("role_type"),
		Search:   c.Query("search"),
	})
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to list applications")
	}
	return utils.SendSuccess(c, "applications retrieved", result)
}

func (h *StaffHandler) get(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid application id")
	}
	detail, err := h.applications.Get(c.UserContext(), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to load application")
	}
	return utils.SendSuccess(c, "application retrieved", detail)
}

func (h *StaffHandler) decision(message string, apply func(*fiber.Ctx, dto.StaffActor, uint, dto.StaffDecisionRequest) (dto.StaffActionResponse, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseIDParam(c, "id")
		if !ok {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid application id")
		}
		var payload dto.StaffDecisionRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&payload); err != nil {
				return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
			}
		}

		response, err := apply(c, staffActorFromContext(c), id, payload)
		if err != nil {
			return sendServiceError(c, h.logger, err, "failed to update application")
		}
		return utils.SendSuccess(c, message, response)
	}
}

func (h *StaffHandler) interceptRejection(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid application id")
	}
	response, err := h.staff.InterceptRejection(c.UserContext(), staffActorFromContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to intercept rejection")
	}
	return utils.SendSuccess(c, "rejection email intercepted", response)
}

func (h *StaffHandler) rerunPrescreen(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid application id")
	}
	response, err := h.staff.RerunPrescreen(c.UserContext(), staffActorFromContext(c), id)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to rerun prescreen")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "prescreen queued", response)
}

func (h *StaffHandler) resendTests(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid application id")
	}
	var payload dto.ResendTestsRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}
	response, err := h.staff.ResendTests(c.UserContext(), staffActorFromContext(c), id, payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to resend tests")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "tests queued", response)
}

func (h *StaffHandler) overrideTier(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid application id")
	}
	var payload dto.TierOverrideRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	detail, err := h.staff.OverrideTier(c.UserContext(), staffActorFromContext(c), id, payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to override tier")
	}
	return utils.SendSuccess(c, "tier updated", detail)
}

func (h *StaffHandler) saveNotes(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid application id")
	}
	var payload dto.StaffNotesRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	detail, err := h.staff.SaveNotes(c.UserContext(), staffActorFromContext(c), id, payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to save notes")
	}
	return utils.SendSuccess(c, "notes saved", detail)
}

func (h *StaffHandler) appendNegotiation(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid application id")
	}
	var payload dto.NegotiationRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	detail, err := h.staff.AppendNegotiation(c.UserContext(), staffActorFromContext(c), id, payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to record negotiation")
	}
	return utils.SendSuccess(c, "negotiation recorded", detail)
}

func (h *StaffHandler) decideCombination(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid application id")
	}
	combinationID, ok := parseIDParam(c, "combinationId")
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid combination id")
	}
	var payload dto.CombinationDecisionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}
	detail, err := h.staff.DecideCombination(c.UserContext(), staffActorFromContext(c), id, combinationID, payload)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to decide combination")
	}
	return utils.SendSuccess(c, "combination decided", detail)
}

func (h *StaffHandler) skipCombination(c *fiber.Ctx) error {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid application id")
	}
	combinationID, ok := parseIDParam(c, "combinationId")
	if !ok {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid combination id")
	}
	detail, err := h.staff.SkipCombination(c.UserContext(), staffActorFromContext(c), id, combinationID)
	if err != nil {
		return sendServiceError(c, h.logger, err, "failed to skip combination")
	}
	return utils.SendSuccess(c, "combination skipped", detail)
}

func (h *StaffHandler) runFollowups(c *fiber.Ctx) error {
	result, err := h.followups.Sweep(c.UserContext())
	if err != nil {
		return sendServiceError(c, h.logger, err, "follow-up sweep failed")
	}
	requestLogger(h.logger, c).Info().
		Uint("actor_id", userIDFromContext(c)).
		Int("reminders", result.Reminders).
		Int("expired", result.Expired).
		Int("archived", result.Archived).
		Msg("manual follow-up sweep")
	return utils.SendSuccess(c, "follow-up sweep finished", result)
}
