package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/haitech14/miservicios-sub001/internal/database"
	"github.com/haitech14/miservicios-sub001/internal/dto"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db      *gorm.DB
	plugins int
}

func NewHealthHandler(db *gorm.DB, plugins int) *HealthHandler {
	return &HealthHandler{db: db, plugins: plugins}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	dbStatus := "ok"
	if err := database.Ping(h.db); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	return c.JSON(dto.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		Plugins:   h.plugins,
	})
}
