package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
	"github.com/haitech14/miservicios-sub001/internal/tenant"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotificationNotFound = apperr.NotFound("notification not found")
	ErrNoPushToken          = apperr.NotFound("no push token registered")
)

const EventAnnouncement = "announcement"

// MemberDirectory resolves the members of an organization.
type MemberDirectory interface {
	MemberIDs(ctx context.Context, orgSlug string) ([]uuid.UUID, error)
}

type Service struct {
	db         *gorm.DB
	dispatcher *Dispatcher
	members    MemberDirectory
}

// NewService builds the inbox service. members may be nil, which disables
// organization-wide announcements.
func NewService(db *gorm.DB, dispatcher *Dispatcher, members MemberDirectory) *Service {
	return &Service{db: db, dispatcher: dispatcher, members: members}
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	q := s.db.WithContext(ctx).Scopes(tenant.ForUser(userID))
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var list []Notification
	err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Notification{}).Scopes(tenant.ForUser(userID)).
		Where("is_read = ?", false).Count(&n).Error
	return n, err
}

// MarkRead marks one of the user's notifications as read. Another user's
// notification is reported as not found.
func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) (*Notification, error) {
	db := s.db.WithContext(ctx)
	var n Notification
	err := db.Scopes(tenant.ForUser(userID)).Where("id = ?", id).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, err
	}
	if n.IsRead {
		return &n, nil
	}
	now := time.Now()
	if err := db.Model(&n).Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error; err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	n.IsRead = true
	n.ReadAt = &now
	return &n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Notification{}).Scopes(tenant.ForUser(userID)).
		Where("is_read = ?", false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now()})
	return res.RowsAffected, res.Error
}

// GetPreferences returns the user's preferences, creating the defaults on first read.
func (s *Service) GetPreferences(ctx context.Context, userID uuid.UUID) (*Preferences, error) {
	db := s.db.WithContext(ctx)
	p := defaultPreferences(userID)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("create preferences: %w", err)
	}
	var stored Preferences
	if err := db.Where("user_id = ?", userID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

type PreferencesInput struct {
	EmailEnabled *bool           `json:"emailEnabled"`
	PushEnabled  *bool           `json:"pushEnabled"`
	TypeFlags    map[string]bool `json:"typeFlags"`
}

// UpdatePreferences applies only the fields present; type flags are merged.
func (s *Service) UpdatePreferences(ctx context.Context, userID uuid.UUID, in PreferencesInput) (*Preferences, error) {
	p, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.EmailEnabled != nil {
		p.EmailEnabled = *in.EmailEnabled
	}
	if in.PushEnabled != nil {
		p.PushEnabled = *in.PushEnabled
	}
	if len(in.TypeFlags) > 0 {
		flags := map[string]bool{}
		for k, v := range p.TypeFlags.Data() {
			flags[k] = v
		}
		for k, v := range in.TypeFlags {
			flags[k] = v
		}
		p.TypeFlags = datatypes.NewJSONType(flags)
	}
	err = s.db.WithContext(ctx).Model(&Preferences{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"email_enabled": p.EmailEnabled,
		"push_enabled":  p.PushEnabled,
		"type_flags":    p.TypeFlags,
		"updated_at":    time.Now(),
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	return p, nil
}

type PushTokenInput struct {
	Token       string                 `json:"token"`
	Platform    string                 `json:"platform"`
	Preferences map[string]interface{} `json:"preferences"`
}

// RegisterPushToken stores the user's device token, replacing any previous
// one, and marks it active.
func (s *Service) RegisterPushToken(ctx context.Context, userID uuid.UUID, in PushTokenInput) (*PushRegistration, error) {
	token := strings.TrimSpace(in.Token)
	if token == "" {
		return nil, apperr.Validation("token is required")
	}
	reg := PushRegistration{UserID: userID, Token: token, Platform: strings.ToLower(strings.TrimSpace(in.Platform)), IsActive: true}
	if in.Preferences != nil {
		b, err := json.Marshal(in.Preferences)
		if err != nil {
			return nil, apperr.Validation("preferences must be a JSON object")
		}
		reg.Preferences = datatypes.JSON(b)
	}

	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "platform", "is_active", "preferences", "updated_at"}),
	}).Create(&reg).Error
	if err != nil {
		return nil, fmt.Errorf("register push token: %w", err)
	}
	var stored PushRegistration
	if err := db.Where("user_id = ?", userID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *Service) DeactivatePushToken(ctx context.Context, userID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&PushRegistration{}).Scopes(tenant.ForUser(userID)).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoPushToken
	}
	return nil
}

type AnnouncementInput struct {
	UserIDs []string `json:"userIds"`
	OrgSlug string   `json:"orgSlug"`
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Link    string   `json:"link"`
}

// Announce notifies the listed users, or every member of OrgSlug.
func (s *Service) Announce(ctx context.Context, in AnnouncementInput) (DispatchReport, error) {
	var recipients []uuid.UUID
	for _, raw := range in.UserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return DispatchReport{}, apperr.Validation("userIds must be UUIDs")
		}
		recipients = append(recipients, id)
	}
	if slug := strings.TrimSpace(in.OrgSlug); slug != "" {
		if s.members == nil {
			return DispatchReport{}, apperr.Validation("organization announcements are not available")
		}
		ids, err := s.members.MemberIDs(ctx, slug)
		if err != nil {
			return DispatchReport{}, err
		}
		recipients = append(recipients, ids...)
	}
	if len(in.UserIDs) == 0 && strings.TrimSpace(in.OrgSlug) == "" {
		return DispatchReport{}, apperr.Validation("userIds or orgSlug is required")
	}

	eventType := in.Type
	if strings.TrimSpace(eventType) == "" {
		eventType = EventAnnouncement
	}
	return s.dispatcher.Notify(ctx, eventType, recipients, Payload{Title: in.Title, Message: in.Message, Link: in.Link})
}
