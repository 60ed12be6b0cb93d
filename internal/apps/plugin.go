package apps

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Plugin defines the interface every feature area must implement.
type Plugin interface {
	// ID returns the unique plugin identifier used in logs.
	ID() string

	// Models returns the list of GORM model pointers for AutoMigrate.
	Models() []interface{}

	// RegisterRoutes mounts the plugin's routes on the /api group.
	// identity resolves the caller's user id and answers 401 when it is missing;
	// plugins attach it to the routes that need a user.
	RegisterRoutes(router fiber.Router, identity fiber.Handler)
}

// AdminPlugin extends Plugin with admin-specific route registration.
type AdminPlugin interface {
	Plugin

	// RegisterAdminRoutes mounts admin-only routes on the given Fiber group.
	// The group has the admin token middleware applied.
	RegisterAdminRoutes(router fiber.Router)
}

// Seeder is implemented by plugins that insert catalog rows at startup.
// Seeding must be idempotent.
type Seeder interface {
	Seed(ctx context.Context) error
}
