package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/haitech14/miservicios-sub001/internal/config"
)

// CORS allows the web clients of every organization. Credentials are only
// allowed with an explicit origin list; the cors middleware rejects them with "*".
func CORS(cfg *config.Config) fiber.Handler {
	origins := strings.TrimSpace(cfg.CORSOrigins)
	if origins == "" {
		origins = "*"
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Authorization, Accept, " + UserIDHeader + ", " + AdminTokenHeader,
		AllowMethods:     "GET, POST, PUT, DELETE, PATCH, OPTIONS",
		ExposeHeaders:    fiber.HeaderXRequestID,
		AllowCredentials: origins != "*",
		MaxAge:           600,
	})
}
