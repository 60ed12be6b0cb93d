package notifications

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/dto"
	"github.com/haitech14/miservicios-sub001/internal/handlers"
	"github.com/haitech14/miservicios-sub001/internal/tenant"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "Unauthorized"})
}

func (h *Handler) List(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	list, err := h.svc.List(c.UserContext(), userID, c.QueryBool("noLeidas"), c.QueryInt("limite", 20), c.QueryInt("offset", 0))
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(list)
}

func (h *Handler) UnreadCount(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	n, err := h.svc.UnreadCount(c.UserContext(), userID)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(fiber.Map{"count": n})
}

func (h *Handler) MarkRead(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return handlers.BadRequest(c, "id must be a UUID")
	}
	n, err := h.svc.MarkRead(c.UserContext(), userID, id)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(n)
}

func (h *Handler) MarkAllRead(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	n, err := h.svc.MarkAllRead(c.UserContext(), userID)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(fiber.Map{"updated": n})
}

func (h *Handler) GetPreferences(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	p, err := h.svc.GetPreferences(c.UserContext(), userID)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(p)
}

func (h *Handler) UpdatePreferences(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req PreferencesInput
	if err := c.BodyParser(&req); err != nil {
		return handlers.BadRequest(c, "Invalid request body")
	}
	p, err := h.svc.UpdatePreferences(c.UserContext(), userID, req)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(p)
}

func (h *Handler) RegisterPushToken(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req PushTokenInput
	if err := c.BodyParser(&req); err != nil {
		return handlers.BadRequest(c, "Invalid request body")
	}
	reg, err := h.svc.RegisterPushToken(c.UserContext(), userID, req)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(reg)
}

func (h *Handler) DeactivatePushToken(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	if err := h.svc.DeactivatePushToken(c.UserContext(), userID); err != nil {
		return handlers.RespondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) Announce(c *fiber.Ctx) error {
	var req AnnouncementInput
	if err := c.BodyParser(&req); err != nil {
		return handlers.BadRequest(c, "Invalid request body")
	}
	report, err := h.svc.Announce(c.UserContext(), req)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(report)
}
