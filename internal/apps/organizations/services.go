package organizations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
	"github.com/haitech14/miservicios-sub001/internal/catalog"
	"github.com/haitech14/miservicios-sub001/internal/models"
	"github.com/haitech14/miservicios-sub001/internal/storage"
	"github.com/haitech14/miservicios-sub001/internal/tenant"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrVerticalNotFound = apperr.NotFound("vertical not found")
	ErrUnknownVertical  = apperr.Validation("verticalSlug does not match a known vertical")
	ErrVerticalExists   = apperr.Conflict("vertical already exists")
	ErrModuleExists     = apperr.Conflict("module already exists for this vertical")
	ErrOrgNotFound      = apperr.NotFound("organization not found")
	ErrSlugTaken        = apperr.Conflict("organization slug already exists")
	ErrAlreadyMember    = apperr.Conflict("user is already a member of this organization")
	ErrNoDomainMatch    = apperr.NotFound("no organization matches this email domain")
	ErrInvalidAssetKind = apperr.Validation("asset kind must be logo or cover")
	ErrAssetUpload      = apperr.Upstream("branding asset upload failed")
)

// --- Catalog Service ---

type VerticalModules struct {
	Vertical   Vertical `json:"vertical"`
	Base       []Module `json:"base"`
	Additional []Module `json:"additional"`
}

type CatalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

func (s *CatalogService) ListVerticals(ctx context.Context) ([]Vertical, error) {
	var verticals []Vertical
	err := s.db.WithContext(ctx).Order("slug ASC").Find(&verticals).Error
	return verticals, err
}

func (s *CatalogService) GetVertical(ctx context.Context, verticalSlug string) (*Vertical, error) {
	return findVertical(s.db.WithContext(ctx), verticalSlug)
}

func (s *CatalogService) VerticalModules(ctx context.Context, verticalSlug string) (*VerticalModules, error) {
	db := s.db.WithContext(ctx)
	v, err := findVertical(db, verticalSlug)
	if err != nil {
		return nil, err
	}
	mods, err := modulesOf(db, v.Slug)
	if err != nil {
		return nil, err
	}

	out := &VerticalModules{Vertical: *v, Base: []Module{}, Additional: []Module{}}
	for _, m := range mods {
		if m.IsBase {
			out.Base = append(out.Base, m)
		} else {
			out.Additional = append(out.Additional, m)
		}
	}
	return out, nil
}

// BaseKeys returns the keys of the vertical's mandatory modules.
func (s *CatalogService) BaseKeys(ctx context.Context, verticalSlug string) ([]string, error) {
	vm, err := s.VerticalModules(ctx, verticalSlug)
	if err != nil {
		return nil, err
	}
	return moduleKeys(vm.Base), nil
}

// AdditionalKeys returns the keys of the vertical's optional modules.
func (s *CatalogService) AdditionalKeys(ctx context.Context, verticalSlug string) ([]string, error) {
	vm, err := s.VerticalModules(ctx, verticalSlug)
	if err != nil {
		return nil, err
	}
	return moduleKeys(vm.Additional), nil
}

type CreateVerticalInput struct {
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Profile        string `json:"profile"`
	AudienceLabel  string `json:"audienceLabel"`
	ThemePrimary   string `json:"themePrimary"`
	ThemeSecondary string `json:"themeSecondary"`
	ThemeAccent    string `json:"themeAccent"`
	ThemeOnPrimary string `json:"themeOnPrimary"`
}

func (s *CatalogService) CreateVertical(ctx context.Context, in CreateVerticalInput) (*Vertical, error) {
	in.Slug = strings.TrimSpace(in.Slug)
	in.Name = strings.TrimSpace(in.Name)
	if in.Slug == "" || in.Name == "" {
		return nil, apperr.Validation("slug and name are required")
	}
	for _, c := range []string{in.ThemePrimary, in.ThemeSecondary, in.ThemeAccent, in.ThemeOnPrimary} {
		if c != "" && !ValidHexColor(c) {
			return nil, apperr.Validation("theme colors must be #rgb or #rrggbb")
		}
	}

	v := Vertical{
		Slug:           in.Slug,
		Name:           in.Name,
		Description:    in.Description,
		Profile:        in.Profile,
		AudienceLabel:  in.AudienceLabel,
		ThemePrimary:   in.ThemePrimary,
		ThemeSecondary: in.ThemeSecondary,
		ThemeAccent:    in.ThemeAccent,
		ThemeOnPrimary: in.ThemeOnPrimary,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Vertical{}).Where("slug = ?", v.Slug).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrVerticalExists
		}
		return tx.Create(&v).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrVerticalExists
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type AddModuleInput struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	IsBase bool   `json:"isBase"`
	Icon   string `json:"icon"`
}

// AddModule appends a module to a vertical. Existing organizations keep their
// base snapshot; a new optional module becomes selectable immediately.
func (s *CatalogService) AddModule(ctx context.Context, verticalSlug string, in AddModuleInput) (*Module, error) {
	key := strings.ToLower(strings.TrimSpace(in.Key))
	name := strings.TrimSpace(in.Name)
	if key == "" || name == "" {
		return nil, apperr.Validation("key and name are required")
	}

	var m Module
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := findVertical(tx, verticalSlug)
		if err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&Module{}).Where("vertical_slug = ?", v.Slug).Count(&count).Error; err != nil {
			return err
		}
		var dup int64
		if err := tx.Model(&Module{}).Where(`vertical_slug = ? AND "key" = ?`, v.Slug, key).Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return ErrModuleExists
		}
		m = Module{VerticalSlug: v.Slug, Key: key, Name: name, IsBase: in.IsBase, Icon: in.Icon, SortOrder: int(count)}
		return tx.Create(&m).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrModuleExists
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Seed inserts every vertical and module of the catalog that is not stored yet.
func (s *CatalogService) Seed(ctx context.Context, seed *catalog.Seed) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sv := range seed.Verticals {
			v := Vertical{
				Slug:           sv.Slug,
				Name:           sv.Name,
				Description:    sv.Description,
				Profile:        sv.Profile,
				AudienceLabel:  sv.AudienceLabel,
				ThemePrimary:   sv.Theme.Primary,
				ThemeSecondary: sv.Theme.Secondary,
				ThemeAccent:    sv.Theme.Accent,
				ThemeOnPrimary: sv.Theme.OnPrimary,
			}
			if err := tx.Where(Vertical{Slug: sv.Slug}).FirstOrCreate(&v).Error; err != nil {
				return fmt.Errorf("seed vertical %s: %w", sv.Slug, err)
			}
			for i, sm := range sv.Modules {
				m := Module{VerticalSlug: sv.Slug, Key: sm.Key, Name: sm.Name, IsBase: sm.IsBase, Icon: sm.Icon, SortOrder: i}
				if err := tx.Where(Module{VerticalSlug: sv.Slug, Key: sm.Key}).FirstOrCreate(&m).Error; err != nil {
					return fmt.Errorf("seed module %s/%s: %w", sv.Slug, sm.Key, err)
				}
			}
		}
		return nil
	})
}

func findVertical(db *gorm.DB, verticalSlug string) (*Vertical, error) {
	var v Vertical
	if err := db.Where("slug = ?", verticalSlug).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVerticalNotFound
		}
		return nil, err
	}
	return &v, nil
}

func modulesOf(db *gorm.DB, verticalSlug string) ([]Module, error) {
	var mods []Module
	err := db.Where("vertical_slug = ?", verticalSlug).Order(`sort_order ASC, "key" ASC`).Find(&mods).Error
	return mods, err
}

func moduleKeys(mods []Module) []string {
	keys := make([]string, 0, len(mods))
	for _, m := range mods {
		keys = append(keys, m.Key)
	}
	return keys
}

func splitKeys(mods []Module) (base, optional []string) {
	base, optional = []string{}, []string{}
	for _, m := range mods {
		if m.IsBase {
			base = append(base, m.Key)
		} else {
			optional = append(optional, m.Key)
		}
	}
	return base, optional
}

// FilterAdditional keeps the requested keys that name an optional module,
// de-duplicated in order of first occurrence. Unknown keys are dropped.
func FilterAdditional(requested, optional []string) []string {
	allowed := make(map[string]bool, len(optional))
	for _, k := range optional {
		allowed[k] = true
	}
	out := []string{}
	seen := make(map[string]bool, len(requested))
	for _, k := range requested {
		k = strings.TrimSpace(k)
		if allowed[k] && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// ActiveModules returns base ∪ additional, sorted.
func ActiveModules(cfg *OrgConfig) []string {
	if cfg == nil {
		return []string{}
	}
	set := make(map[string]struct{}, len(cfg.BaseModuleKeys)+len(cfg.AdditionalModuleKeys))
	for _, k := range cfg.BaseModuleKeys {
		set[k] = struct{}{}
	}
	for _, k := range cfg.AdditionalModuleKeys {
		set[k] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// --- Organization Service ---

type OrganizationDetail struct {
	Organization
	ActiveModules []string `json:"activeModules"`
}

func detailOf(org Organization) OrganizationDetail {
	return OrganizationDetail{Organization: org, ActiveModules: ActiveModules(org.Config)}
}

type OrganizationService struct {
	db       *gorm.DB
	uploader storage.Uploader
}

// NewOrganizationService builds the service. uploader may be nil, in which
// case branding uploads fail with storage.ErrNotConfigured.
func NewOrganizationService(db *gorm.DB, uploader storage.Uploader) *OrganizationService {
	return &OrganizationService{db: db, uploader: uploader}
}

type CreateOrganizationInput struct {
	Slug              string   `json:"slug"`
	Name              string   `json:"name"`
	VerticalSlug      string   `json:"verticalSlug"`
	ProductSlug       string   `json:"productSlug"`
	LogoURL           string   `json:"logoUrl"`
	CoverURL          string   `json:"coverUrl"`
	PrimaryColor      string   `json:"primaryColor"`
	SecondaryColor    string   `json:"secondaryColor"`
	EmailDomain       string   `json:"emailDomain"`
	AdditionalModules []string `json:"modulosAdicionales"`
}

func (s *OrganizationService) Create(ctx context.Context, in CreateOrganizationInput) (*OrganizationDetail, error) {
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.VerticalSlug) == "" {
		return nil, apperr.Validation("slug, name and verticalSlug are required")
	}
	orgSlug := slug.Make(in.Slug)
	if orgSlug == "" {
		return nil, apperr.Validation("slug is invalid")
	}
	if err := validateColors(in.PrimaryColor, in.SecondaryColor); err != nil {
		return nil, err
	}

	var org Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := findVertical(tx, strings.TrimSpace(in.VerticalSlug))
		if errors.Is(err, ErrVerticalNotFound) {
			return ErrUnknownVertical
		}
		if err != nil {
			return err
		}
		mods, err := modulesOf(tx, v.Slug)
		if err != nil {
			return err
		}
		base, optional := splitKeys(mods)

		var count int64
		if err := tx.Model(&Organization{}).Where("slug = ?", orgSlug).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrSlugTaken
		}

		org = Organization{
			Slug:           orgSlug,
			Name:           strings.TrimSpace(in.Name),
			LogoURL:        in.LogoURL,
			CoverURL:       in.CoverURL,
			PrimaryColor:   in.PrimaryColor,
			SecondaryColor: in.SecondaryColor,
			EmailDomain:    NormalizeDomain(in.EmailDomain),
			VerticalSlug:   v.Slug,
			ProductSlug:    in.ProductSlug,
		}
		if err := tx.Create(&org).Error; err != nil {
			return err
		}

		cfg := OrgConfig{
			OrganizationID:       org.ID,
			BaseModuleKeys:       base,
			AdditionalModuleKeys: FilterAdditional(in.AdditionalModules, optional),
		}
		if err := tx.Create(&cfg).Error; err != nil {
			return err
		}
		org.Config = &cfg
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrSlugTaken
	}
	if err != nil {
		return nil, err
	}
	detail := detailOf(org)
	return &detail, nil
}

func (s *OrganizationService) Get(ctx context.Context, orgSlug string) (*OrganizationDetail, error) {
	org, err := findOrganization(s.db.WithContext(ctx), orgSlug)
	if err != nil {
		return nil, err
	}
	detail := detailOf(*org)
	return &detail, nil
}

func (s *OrganizationService) List(ctx context.Context) ([]OrganizationDetail, error) {
	var orgs []Organization
	if err := s.db.WithContext(ctx).Preload("Config").Order("created_at ASC, slug ASC").Find(&orgs).Error; err != nil {
		return nil, err
	}
	out := make([]OrganizationDetail, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, detailOf(o))
	}
	return out, nil
}

// UpdateAdditionalModules replaces the optional module set after filtering it
// against the organization's vertical.
func (s *OrganizationService) UpdateAdditionalModules(ctx context.Context, orgSlug string, requested []string) (*OrganizationDetail, error) {
	var org *Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		org, err = findOrganization(tx, orgSlug)
		if err != nil {
			return err
		}
		mods, err := modulesOf(tx, org.VerticalSlug)
		if err != nil {
			return err
		}
		_, optional := splitKeys(mods)
		filtered := FilterAdditional(requested, optional)

		if org.Config == nil {
			org.Config = &OrgConfig{OrganizationID: org.ID, BaseModuleKeys: []string{}, AdditionalModuleKeys: filtered}
			return tx.Create(org.Config).Error
		}
		if err := tx.Model(&OrgConfig{}).Where("id = ?", org.Config.ID).
			Update("additional_module_keys", datatypes.JSONSlice[string](filtered)).Error; err != nil {
			return err
		}
		org.Config.AdditionalModuleKeys = filtered
		return nil
	})
	if err != nil {
		return nil, err
	}
	detail := detailOf(*org)
	return &detail, nil
}

func (s *OrganizationService) GetActiveModules(ctx context.Context, orgSlug string) ([]string, error) {
	org, err := findOrganization(s.db.WithContext(ctx), orgSlug)
	if err != nil {
		return nil, err
	}
	return ActiveModules(org.Config), nil
}

// BrandingInput is a partial update; nil fields are left untouched.
type BrandingInput struct {
	Name           *string `json:"name"`
	LogoURL        *string `json:"logoUrl"`
	CoverURL       *string `json:"coverUrl"`
	PrimaryColor   *string `json:"primaryColor"`
	SecondaryColor *string `json:"secondaryColor"`
	EmailDomain    *string `json:"emailDomain"`
}

func (s *OrganizationService) UpdateBranding(ctx context.Context, orgSlug string, in BrandingInput) (*OrganizationDetail, error) {
	updates := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.Validation("name cannot be empty")
		}
		updates["name"] = name
	}
	if in.PrimaryColor != nil {
		if err := validateColors(*in.PrimaryColor); err != nil {
			return nil, err
		}
		updates["primary_color"] = *in.PrimaryColor
	}
	if in.SecondaryColor != nil {
		if err := validateColors(*in.SecondaryColor); err != nil {
			return nil, err
		}
		updates["secondary_color"] = *in.SecondaryColor
	}
	if in.LogoURL != nil {
		updates["logo_url"] = *in.LogoURL
	}
	if in.CoverURL != nil {
		updates["cover_url"] = *in.CoverURL
	}
	if in.EmailDomain != nil {
		updates["email_domain"] = NormalizeDomain(*in.EmailDomain)
	}

	db := s.db.WithContext(ctx)
	org, err := findOrganization(db, orgSlug)
	if err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := db.Model(&Organization{}).Where("id = ?", org.ID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, org.Slug)
}

// FindByEmailDomain accepts a domain or a full email address. When several
// organizations share a domain the earliest created one wins.
func (s *OrganizationService) FindByEmailDomain(ctx context.Context, domainOrEmail string) (*Organization, error) {
	domain := NormalizeDomain(domainOrEmail)
	if domain == "" {
		return nil, apperr.Validation("email or domain is required")
	}
	return findByDomain(s.db.WithContext(ctx), domain)
}

func findByDomain(db *gorm.DB, domain string) (*Organization, error) {
	var org Organization
	err := db.Preload("Config").Where("email_domain = ?", domain).Order("created_at ASC, id ASC").First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoDomainMatch
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// NormalizeDomain lower-cases and trims the input, reducing an email
// address to its domain.
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(s, ".")
}

// Branding resolves the presentation data for an organization.
func (s *OrganizationService) Branding(ctx context.Context, orgSlug string) (*Branding, error) {
	db := s.db.WithContext(ctx)
	org, err := findOrganization(db, orgSlug)
	if err != nil {
		return nil, err
	}
	return brandingFor(db, org)
}

func brandingFor(db *gorm.DB, org *Organization) (*Branding, error) {
	v, err := findVertical(db, org.VerticalSlug)
	if err != nil {
		return nil, err
	}
	b := ResolveBranding(org, v)
	return &b, nil
}

// Match finds the organization for an email domain together with its branding.
func (s *OrganizationService) Match(ctx context.Context, domainOrEmail string) (*OrganizationDetail, *Branding, error) {
	org, err := s.FindByEmailDomain(ctx, domainOrEmail)
	if err != nil {
		return nil, nil, err
	}
	b, err := brandingFor(s.db.WithContext(ctx), org)
	if err != nil {
		return nil, nil, err
	}
	detail := detailOf(*org)
	return &detail, b, nil
}

// UploadBrandingAsset stores a logo or cover image and points the
// organization at its public URL.
func (s *OrganizationService) UploadBrandingAsset(ctx context.Context, orgSlug, kind, filename, contentType string, data []byte) (*OrganizationDetail, error) {
	if s.uploader == nil {
		return nil, storage.ErrNotConfigured
	}
	column := map[string]string{"logo": "logo_url", "cover": "cover_url"}[kind]
	if column == "" {
		return nil, ErrInvalidAssetKind
	}
	if len(data) == 0 {
		return nil, apperr.Validation("file is empty")
	}

	db := s.db.WithContext(ctx)
	org, err := findOrganization(db, orgSlug)
	if err != nil {
		return nil, err
	}

	key := storage.BrandingKey(org.Slug, kind, uuid.NewString(), filename)
	url, err := s.uploader.Upload(ctx, s.uploader.Bucket(), key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s for %s: %w", ErrAssetUpload, kind, org.Slug, err)
	}
	if err := db.Model(&Organization{}).Where("id = ?", org.ID).Update(column, url).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, org.Slug)
}

// --- Membership ---

type MemberView struct {
	UserID    uuid.UUID `json:"userId"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatarUrl"`
}

type Membership struct {
	Organization OrganizationDetail `json:"organization"`
	Role         string             `json:"role"`
}

func (s *OrganizationService) AddMember(ctx context.Context, orgSlug string, userID uuid.UUID, role string) (*OrganizationMember, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("userId is required")
	}
	if role == "" {
		role = RoleMember
	}
	if role != RoleMember && role != RoleAdmin {
		return nil, apperr.Validation("role must be member or admin")
	}

	var member OrganizationMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := findOrganization(tx, orgSlug)
		if err != nil {
			return err
		}
		if err := models.EnsureUser(tx, userID); err != nil {
			return err
		}
		m, err := addMember(tx, org.ID, userID, role)
		if err != nil {
			return err
		}
		member = *m
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrAlreadyMember
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func addMember(tx *gorm.DB, orgID, userID uuid.UUID, role string) (*OrganizationMember, error) {
	var count int64
	if err := tx.Model(&OrganizationMember{}).Scopes(tenant.ForOrganization(orgID), tenant.ForUser(userID)).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrAlreadyMember
	}
	m := OrganizationMember{OrganizationID: orgID, UserID: userID, Role: role}
	if err := tx.Create(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *OrganizationService) ListMembers(ctx context.Context, orgSlug string) ([]MemberView, error) {
	db := s.db.WithContext(ctx)
	org, err := findOrganization(db, orgSlug)
	if err != nil {
		return nil, err
	}

	var members []OrganizationMember
	if err := db.Scopes(tenant.ForOrganization(org.ID)).Order("joined_at ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	users, err := usersByID(db, members)
	if err != nil {
		return nil, err
	}

	out := make([]MemberView, 0, len(members))
	for _, m := range members {
		u := users[m.UserID]
		out = append(out, MemberView{
			UserID:    m.UserID,
			Role:      m.Role,
			JoinedAt:  m.JoinedAt,
			Name:      u.Name,
			Email:     u.Email,
			AvatarURL: u.AvatarURL,
		})
	}
	return out, nil
}

// MemberIDs returns the user ids of every member of an organization.
func (s *OrganizationService) MemberIDs(ctx context.Context, orgSlug string) ([]uuid.UUID, error) {
	db := s.db.WithContext(ctx)
	org, err := findOrganization(db, orgSlug)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	err = db.Model(&OrganizationMember{}).Scopes(tenant.ForOrganization(org.ID)).
		Order("joined_at ASC").Pluck("user_id", &ids).Error
	return ids, err
}

func (s *OrganizationService) OrganizationsForUser(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	db := s.db.WithContext(ctx)
	var members []OrganizationMember
	if err := db.Scopes(tenant.ForUser(userID)).Order("joined_at ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []Membership{}, nil
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.OrganizationID)
	}
	var orgs []Organization
	if err := db.Preload("Config").Where("id IN ?", ids).Find(&orgs).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]Organization, len(orgs))
	for _, o := range orgs {
		byID[o.ID] = o
	}

	out := make([]Membership, 0, len(members))
	for _, m := range members {
		if o, ok := byID[m.OrganizationID]; ok {
			out = append(out, Membership{Organization: detailOf(o), Role: m.Role})
		}
	}
	return out, nil
}

func usersByID(db *gorm.DB, members []OrganizationMember) (map[uuid.UUID]models.User, error) {
	out := make(map[uuid.UUID]models.User, len(members))
	if len(members) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	var users []models.User
	if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// --- Profiles ---

type ProfileInput struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	AvatarURL *string `json:"avatarUrl"`
}

type ProfileResult struct {
	User   models.User         `json:"user"`
	Joined *OrganizationDetail `json:"joinedOrganization,omitempty"`
}

// UpsertProfile stores the user's display fields. When the email domain
// matches an organization the user is not a member of yet, the user joins it.
func (s *OrganizationService) UpsertProfile(ctx context.Context, userID uuid.UUID, in ProfileInput) (*ProfileResult, error) {
	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*in.AvatarURL)
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email != "" && !strings.Contains(email, "@") {
			return nil, apperr.Validation("email is invalid")
		}
		updates["email"] = email
	}

	result := &ProfileResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.EnsureUser(tx, userID); err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
				return err
			}
		}
		if err := tx.First(&result.User, "id = ?", userID).Error; err != nil {
			return err
		}

		domain := NormalizeDomain(result.User.Email)
		if domain == "" {
			return nil
		}
		org, err := findByDomain(tx, domain)
		if errors.Is(err, ErrNoDomainMatch) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := addMember(tx, org.ID, userID, RoleMember); err != nil {
			if errors.Is(err, ErrAlreadyMember) {
				return nil
			}
			return err
		}
		detail := detailOf(*org)
		result.Joined = &detail
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func findOrganization(db *gorm.DB, orgSlug string) (*Organization, error) {
	var org Organization
	if err := db.Preload("Config").Where("slug = ?", orgSlug).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrgNotFound
		}
		return nil, err
	}
	return &org, nil
}

func validateColors(colors ...string) error {
	for _, c := range colors {
		if c != "" && !ValidHexColor(c) {
			return apperr.Validation("colors must be #rgb or #rrggbb")
		}
	}
	return nil
}
