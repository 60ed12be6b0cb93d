package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
	"github.com/haitech14/miservicios-sub001/internal/config"
	"github.com/haitech14/miservicios-sub001/internal/dto"
	"github.com/haitech14/miservicios-sub001/internal/handlers"
	"golang.org/x/crypto/bcrypt"
)

const AdminTokenHeader = "X-Admin-Token"

// AdminRequired checks the X-Admin-Token header against the bcrypt hash in
// ADMIN_TOKEN_HASH. With no hash configured every admin route answers 403.
func AdminRequired(cfg *config.Config) fiber.Handler {
	hash := []byte(cfg.AdminTokenHash)

	return func(c *fiber.Ctx) error {
		token := c.Get(AdminTokenHeader)
		if token == "" {
			return handlers.RespondError(c, apperr.Unauthorized("Unauthorized"))
		}
		if len(hash) == 0 || bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: "Admin access required",
			})
		}
		return c.Next()
	}
}
