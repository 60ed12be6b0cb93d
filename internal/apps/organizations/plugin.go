package organizations

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/haitech14/miservicios-sub001/internal/catalog"
	"github.com/haitech14/miservicios-sub001/internal/storage"
	"gorm.io/gorm"
)

type Plugin struct {
	seed    *catalog.Seed
	catalog *CatalogService
	orgs    *OrganizationService
}

// New wires the organizations plugin. uploader may be nil when object
// storage is not configured.
func New(db *gorm.DB, uploader storage.Uploader, seed *catalog.Seed) *Plugin {
	return &Plugin{
		seed:    seed,
		catalog: NewCatalogService(db),
		orgs:    NewOrganizationService(db, uploader),
	}
}

func (p *Plugin) ID() string { return "organizations" }

func (p *Plugin) Models() []interface{} {
	return []interface{}{
		&Vertical{},
		&Module{},
		&Organization{},
		&OrgConfig{},
		&OrganizationMember{},
	}
}

// Organizations exposes the service for other plugins (member lookups).
func (p *Plugin) Organizations() *OrganizationService { return p.orgs }

func (p *Plugin) Seed(ctx context.Context) error {
	if p.seed == nil {
		return nil
	}
	return p.catalog.Seed(ctx, p.seed)
}

func (p *Plugin) RegisterRoutes(router fiber.Router, identity fiber.Handler) {
	catalogHandler := NewCatalogHandler(p.catalog)
	orgHandler := NewOrganizationHandler(p.orgs)

	router.Get("/verticals", catalogHandler.ListVerticals)
	router.Get("/verticals/:slug/modules", catalogHandler.GetVerticalModules)

	router.Get("/organizations", orgHandler.List)
	router.Post("/organizations", orgHandler.Create)
	router.Get("/organizations/match", orgHandler.Match)
	router.Get("/organizations/:slug", orgHandler.Get)
	router.Patch("/organizations/:slug/modules", orgHandler.UpdateModules)
	router.Patch("/organizations/:slug/branding", orgHandler.UpdateBranding)
	router.Post("/organizations/:slug/branding/:kind", orgHandler.UploadAsset)
	router.Get("/organizations/:slug/theme", orgHandler.Theme)
	router.Post("/organizations/:slug/users", orgHandler.AddMember)
	router.Get("/organizations/:slug/users", orgHandler.ListMembers)

	router.Put("/users/me", identity, orgHandler.UpsertProfile)
	router.Get("/users/me/organizations", identity, orgHandler.MyOrganizations)
}

func (p *Plugin) RegisterAdminRoutes(router fiber.Router) {
	catalogHandler := NewCatalogHandler(p.catalog)

	router.Post("/verticals", catalogHandler.CreateVertical)
	router.Post("/verticals/:slug/modules", catalogHandler.AddModule)
}
