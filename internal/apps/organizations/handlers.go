package organizations

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/dto"
	"github.com/haitech14/miservicios-sub001/internal/handlers"
	"github.com/haitech14/miservicios-sub001/internal/storage"
	"github.com/haitech14/miservicios-sub001/internal/tenant"
)

const maxAssetSize = 5 * 1024 * 1024

// --- Catalog Handler ---

type CatalogHandler struct {
	catalog *CatalogService
}

func NewCatalogHandler(catalog *CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

func (h *CatalogHandler) ListVerticals(c *fiber.Ctx) error {
	verticals, err := h.catalog.ListVerticals(c.UserContext())
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(verticals)
}

func (h *CatalogHandler) GetVerticalModules(c *fiber.Ctx) error {
	vm, err := h.catalog.VerticalModules(c.UserContext(), c.Params("slug"))
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(vm)
}

func (h *CatalogHandler) CreateVertical(c *fiber.Ctx) error {
	var req CreateVerticalInput
	if err := c.BodyParser(&req); err != nil {
		return handlers.BadRequest(c, "Invalid request body")
	}
	v, err := h.catalog.CreateVertical(c.UserContext(), req)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(v)
}

func (h *CatalogHandler) AddModule(c *fiber.Ctx) error {
	var req AddModuleInput
	if err := c.BodyParser(&req); err != nil {
		return handlers.BadRequest(c, "Invalid request body")
	}
	m, err := h.catalog.AddModule(c.UserContext(), c.Params("slug"), req)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// --- Organization Handler ---

type OrganizationHandler struct {
	orgs *OrganizationService
}

func NewOrganizationHandler(orgs *OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{orgs: orgs}
}

func (h *OrganizationHandler) List(c *fiber.Ctx) error {
	orgs, err := h.orgs.List(c.UserContext())
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(orgs)
}

func (h *OrganizationHandler) Create(c *fiber.Ctx) error {
	var req struct {
		CreateOrganizationInput
		AdditionalModulesEN []string `json:"additionalModules"`
	}
	if err := c.BodyParser(&req); err != nil {
		return handlers.BadRequest(c, "Invalid request body")
	}
	in := req.CreateOrganizationInput
	if len(in.AdditionalModules) == 0 {
		in.AdditionalModules = req.AdditionalModulesEN
	}

	org, err := h.orgs.Create(c.UserContext(), in)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(org)
}

func (h *OrganizationHandler) Get(c *fiber.Ctx) error {
	org, err := h.orgs.Get(c.UserContext(), c.Params("slug"))
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(org)
}

func (h *OrganizationHandler) UpdateModules(c *fiber.Ctx) error {
	var req struct {
		AdditionalModules *[]string `json:"additionalModules"`
	}
	if err := c.BodyParser(&req); err != nil || req.AdditionalModules == nil {
		return handlers.BadRequest(c, "additionalModules must be an array of module keys")
	}
	org, err := h.orgs.UpdateAdditionalModules(c.UserContext(), c.Params("slug"), *req.AdditionalModules)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(org)
}

func (h *OrganizationHandler) UpdateBranding(c *fiber.Ctx) error {
	var req BrandingInput
	if err := c.BodyParser(&req); err != nil {
		return handlers.BadRequest(c, "Invalid request body")
	}
	org, err := h.orgs.UpdateBranding(c.UserContext(), c.Params("slug"), req)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(org)
}

func (h *OrganizationHandler) UploadAsset(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return handlers.BadRequest(c, "file is required")
	}
	if file.Size > maxAssetSize {
		return handlers.BadRequest(c, "file exceeds 5MB")
	}
	contentType := file.Header.Get(fiber.HeaderContentType)
	if !strings.HasPrefix(contentType, "image/") {
		return handlers.BadRequest(c, "file must be an image")
	}

	f, err := file.Open()
	if err != nil {
		return handlers.BadRequest(c, "file could not be read")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return handlers.BadRequest(c, "file could not be read")
	}

	org, err := h.orgs.UploadBrandingAsset(c.UserContext(), c.Params("slug"), c.Params("kind"), file.Filename, contentType, data)
	if errors.Is(err, storage.ErrNotConfigured) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "File uploads are not configured"})
	}
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(org)
}

func (h *OrganizationHandler) Theme(c *fiber.Ctx) error {
	b, err := h.orgs.Branding(c.UserContext(), c.Params("slug"))
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(b)
}

// Match resolves ?email= or ?domain= to an organization and its branding.
func (h *OrganizationHandler) Match(c *fiber.Ctx) error {
	q := c.Query("email")
	if q == "" {
		q = c.Query("domain")
	}
	org, b, err := h.orgs.Match(c.UserContext(), q)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(fiber.Map{"organization": org, "branding": b})
}

func (h *OrganizationHandler) AddMember(c *fiber.Ctx) error {
	var req struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return handlers.BadRequest(c, "userId is required")
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return handlers.BadRequest(c, "userId must be a UUID")
	}

	member, err := h.orgs.AddMember(c.UserContext(), c.Params("slug"), userID, req.Role)
	if errors.Is(err, ErrAlreadyMember) {
		return handlers.RespondStatus(c, fiber.StatusBadRequest, err)
	}
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(member)
}

func (h *OrganizationHandler) ListMembers(c *fiber.Ctx) error {
	members, err := h.orgs.ListMembers(c.UserContext(), c.Params("slug"))
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(members)
}

// --- Profile Handler ---

func (h *OrganizationHandler) UpsertProfile(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "Unauthorized"})
	}
	var req ProfileInput
	if err := c.BodyParser(&req); err != nil {
		return handlers.BadRequest(c, "Invalid request body")
	}
	result, err := h.orgs.UpsertProfile(c.UserContext(), userID, req)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(result)
}

func (h *OrganizationHandler) MyOrganizations(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "Unauthorized"})
	}
	memberships, err := h.orgs.OrganizationsForUser(c.UserContext(), userID)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(memberships)
}
