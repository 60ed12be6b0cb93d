package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
	"github.com/haitech14/miservicios-sub001/internal/config"
	"github.com/haitech14/miservicios-sub001/internal/handlers"
	"github.com/haitech14/miservicios-sub001/internal/tenant"

	jwtware "github.com/gofiber/contrib/jwt"
)

// UserIDHeader carries the pre-authenticated user id from the gateway.
const UserIDHeader = "x-user-id"

var (
	ErrInvalidToken  = apperr.Unauthorized("Unauthorized: invalid or expired token")
	ErrMissingUserID = apperr.Unauthorized("Missing x-user-id header")
	ErrInvalidUserID = apperr.Unauthorized("Invalid user id")
)

// Identity resolves the caller's user id from a bearer JWT (sub claim) when
// JWT_SECRET is configured and an Authorization header is present, otherwise
// from the x-user-id header. Requests without a valid id get 401.
func Identity(cfg *config.Config) fiber.Handler {
	var bearer fiber.Handler
	if cfg.JWTSecret != "" {
		bearer = jwtware.New(jwtware.Config{
			SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
			Filter: func(c *fiber.Ctx) bool {
				return c.Get(fiber.HeaderAuthorization) == ""
			},
			SuccessHandler: resolveUser,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				return handlers.RespondError(c, ErrInvalidToken)
			},
		})
	}

	return func(c *fiber.Ctx) error {
		if bearer != nil && c.Get(fiber.HeaderAuthorization) != "" {
			return bearer(c)
		}
		return resolveUser(c)
	}
}

func resolveUser(c *fiber.Ctx) error {
	raw := ""
	if token, ok := c.Locals("user").(*jwt.Token); ok && token != nil {
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			raw, _ = claims["sub"].(string)
		}
	}
	if raw == "" {
		raw = strings.TrimSpace(c.Get(UserIDHeader))
	}
	if raw == "" {
		return handlers.RespondError(c, ErrMissingUserID)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return handlers.RespondError(c, ErrInvalidUserID)
	}
	tenant.SetUserID(c, id)
	return c.Next()
}
