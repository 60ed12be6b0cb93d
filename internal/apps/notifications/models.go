package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Notification struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index:idx_notification_user" json:"userId"`
	Type      string     `gorm:"size:40;not null" json:"type"`
	Title     string     `gorm:"size:200;not null" json:"title"`
	Message   string     `gorm:"type:text" json:"message"`
	Link      string     `gorm:"size:500" json:"link,omitempty"`
	IsRead    bool       `gorm:"not null;index:idx_notification_user" json:"isRead"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `gorm:"index" json:"createdAt"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// Preferences are created lazily with every channel enabled. TypeFlags are
// stored for clients but not consulted when notifications are created.
type Preferences struct {
	ID           uuid.UUID                           `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID                           `gorm:"type:uuid;not null;uniqueIndex" json:"userId"`
	EmailEnabled bool                                `gorm:"not null" json:"emailEnabled"`
	PushEnabled  bool                                `gorm:"not null" json:"pushEnabled"`
	TypeFlags    datatypes.JSONType[map[string]bool] `json:"typeFlags"`
	UpdatedAt    time.Time                           `json:"updatedAt"`
}

func (Preferences) TableName() string {
	return "notification_preferences"
}

func (p *Preferences) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func defaultPreferences(userID uuid.UUID) Preferences {
	return Preferences{
		UserID:       userID,
		EmailEnabled: true,
		PushEnabled:  true,
		TypeFlags:    datatypes.NewJSONType(map[string]bool{}),
	}
}

// PushRegistration is the single device token of a user.
type PushRegistration struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"userId"`
	Token       string         `gorm:"type:text;not null" json:"token"`
	Platform    string         `gorm:"size:20" json:"platform,omitempty"`
	IsActive    bool           `gorm:"not null" json:"isActive"`
	Preferences datatypes.JSON `json:"preferences,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (r *PushRegistration) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

const (
	AttemptSent    = "sent"
	AttemptFailed  = "failed"
	AttemptSkipped = "skipped"
)

type DeliveryAttempt struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	NotificationID uuid.UUID `gorm:"type:uuid;not null;index" json:"notificationId"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index" json:"userId"`
	Channel        string    `gorm:"size:40;not null" json:"channel"`
	Status         string    `gorm:"size:20;not null" json:"status"`
	Error          string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (a *DeliveryAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
