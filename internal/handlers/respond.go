package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
	"github.com/haitech14/miservicios-sub001/internal/dto"
)

// RespondError writes err as {"error": message} with the status of its kind.
// Server errors are logged and their details hidden.
func RespondError(c *fiber.Ctx, err error) error {
	status := apperr.Status(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("request failed", "method", c.Method(), "path", c.Path(),
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID), "error", err)
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: apperr.Message(err)})
}

// RespondStatus writes err with an explicit status, for conflicts the API
// reports as 400.
func RespondStatus(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: apperr.Message(err)})
}

// BadRequest writes a 400 with msg.
func BadRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg})
}
