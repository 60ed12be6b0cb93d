package organizations

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Vertical is a product line such as education or fitness. Its slug is the
// public identifier (e.g. "HaiActive").
type Vertical struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Slug           string    `gorm:"size:60;not null;uniqueIndex" json:"slug"`
	Name           string    `gorm:"size:120;not null" json:"name"`
	Description    string    `gorm:"type:text" json:"description"`
	Profile        string    `gorm:"size:40" json:"profile"`
	AudienceLabel  string    `gorm:"size:60" json:"audienceLabel"`
	ThemePrimary   string    `gorm:"size:9" json:"themePrimary"`
	ThemeSecondary string    `gorm:"size:9" json:"themeSecondary"`
	ThemeAccent    string    `gorm:"size:9" json:"themeAccent"`
	ThemeOnPrimary string    `gorm:"size:9" json:"themeOnPrimary"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (v *Vertical) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// Module is a feature area of a vertical. (VerticalSlug, Key) is unique.
type Module struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VerticalSlug string    `gorm:"size:60;not null;uniqueIndex:idx_module_vertical_key" json:"verticalSlug"`
	Key          string    `gorm:"size:60;not null;uniqueIndex:idx_module_vertical_key" json:"key"`
	Name         string    `gorm:"size:120;not null" json:"name"`
	IsBase       bool      `gorm:"not null;default:false" json:"isBase"`
	Icon         string    `gorm:"size:60" json:"icon,omitempty"`
	SortOrder    int       `gorm:"not null;default:0" json:"sortOrder"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (m *Module) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

type Organization struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Slug           string     `gorm:"size:80;not null;uniqueIndex" json:"slug"`
	Name           string     `gorm:"size:160;not null" json:"name"`
	LogoURL        string     `gorm:"type:text" json:"logoUrl"`
	CoverURL       string     `gorm:"type:text" json:"coverUrl"`
	PrimaryColor   string     `gorm:"size:9" json:"primaryColor"`
	SecondaryColor string     `gorm:"size:9" json:"secondaryColor"`
	EmailDomain    string     `gorm:"size:255;index" json:"emailDomain"`
	VerticalSlug   string     `gorm:"size:60;not null;index" json:"verticalSlug"`
	ProductSlug    string     `gorm:"size:60" json:"productSlug"`
	Config         *OrgConfig `gorm:"foreignKey:OrganizationID" json:"config,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrgConfig snapshots the vertical's base modules at creation time and holds
// the mutable set of optional modules.
type OrgConfig struct {
	ID                   uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID       uuid.UUID                   `gorm:"type:uuid;not null;uniqueIndex" json:"organizationId"`
	BaseModuleKeys       datatypes.JSONSlice[string] `json:"baseModuleKeys"`
	AdditionalModuleKeys datatypes.JSONSlice[string] `json:"additionalModuleKeys"`
	CreatedAt            time.Time                   `json:"createdAt"`
	UpdatedAt            time.Time                   `json:"updatedAt"`
}

func (c *OrgConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type OrganizationMember struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_member" json:"organizationId"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_org_member;index" json:"userId"`
	Role           string    `gorm:"size:20;not null;default:'member'" json:"role"`
	JoinedAt       time.Time `json:"joinedAt"`
}

func (m *OrganizationMember) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	return nil
}
