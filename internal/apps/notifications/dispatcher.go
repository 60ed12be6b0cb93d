package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
	"github.com/haitech14/miservicios-sub001/internal/models"
	"gorm.io/gorm"
)

type DispatchReport struct {
	Created   int `json:"created"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Dispatcher creates in-app notifications and fans them out to channels.
type Dispatcher struct {
	db       *gorm.DB
	channels []Channel
}

func NewDispatcher(db *gorm.DB, channels ...Channel) *Dispatcher {
	return &Dispatcher{db: db, channels: channels}
}

// Notify creates one in-app notification per recipient and then offers it to
// every channel the recipient's preferences allow. A failure for one
// recipient or channel is logged and counted; the rest still run. When the
// recipients' contact data cannot be loaded the in-app rows are still
// created and every channel attempt is recorded as failed.
func (d *Dispatcher) Notify(ctx context.Context, eventType string, recipients []uuid.UUID, p Payload) (DispatchReport, error) {
	var report DispatchReport
	eventType = strings.TrimSpace(eventType)
	p.Title = strings.TrimSpace(p.Title)
	if eventType == "" || p.Title == "" {
		return report, apperr.Validation("type and title are required")
	}
	p.Type = eventType
	recipients = uniqueIDs(recipients)
	if len(recipients) == 0 {
		return report, nil
	}

	db := d.db.WithContext(ctx)
	targets, lookupErr := d.loadRecipients(db, recipients)
	if lookupErr != nil {
		slog.Error("notification recipients not loaded", "action", "notify", "error", lookupErr)
	}

	for _, id := range recipients {
		t := targets[id]
		n := Notification{UserID: id, Type: eventType, Title: p.Title, Message: p.Message, Link: p.Link}
		if err := db.Create(&n).Error; err != nil {
			slog.Error("notification create failed", "action", "notify", "user_id", id.String(), "error", err)
			report.Failed++
			continue
		}
		report.Created++

		for _, ch := range d.channels {
			status, sendErr := AttemptFailed, lookupErr
			if lookupErr == nil {
				status, sendErr = d.deliver(ctx, ch, t, p)
			}
			switch status {
			case AttemptSent:
				report.Delivered++
			case AttemptFailed:
				report.Failed++
				slog.Warn("notification delivery failed", "channel", ch.Name(), "user_id", id.String(), "error", sendErr)
			}
			d.record(db, n, ch, status, sendErr)
		}
	}
	return report, nil
}

// NotifyUser sends a single-recipient notification.
func (d *Dispatcher) NotifyUser(ctx context.Context, userID uuid.UUID, eventType, title, message string) error {
	report, err := d.Notify(ctx, eventType, []uuid.UUID{userID}, Payload{Title: title, Message: message})
	if err != nil {
		return err
	}
	if report.Created == 0 {
		return fmt.Errorf("notification for %s was not created", userID)
	}
	return nil
}

type target struct {
	Recipient
	prefs  Preferences
	active bool
}

func (d *Dispatcher) loadRecipients(db *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]target, error) {
	targets := make(map[uuid.UUID]target, len(ids))
	for _, id := range ids {
		targets[id] = target{Recipient: Recipient{UserID: id}, prefs: defaultPreferences(id)}
	}
	if len(d.channels) == 0 {
		return targets, nil
	}

	var users []models.User
	if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}
	for _, u := range users {
		t := targets[u.ID]
		t.Email = u.Email
		targets[u.ID] = t
	}

	var prefs []Preferences
	if err := db.Where("user_id IN ?", ids).Find(&prefs).Error; err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	for _, p := range prefs {
		t := targets[p.UserID]
		t.prefs = p
		targets[p.UserID] = t
	}

	var regs []PushRegistration
	if err := db.Where("user_id IN ? AND is_active = ?", ids, true).Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("load push registrations: %w", err)
	}
	for _, r := range regs {
		t := targets[r.UserID]
		t.PushToken = r.Token
		t.active = true
		targets[r.UserID] = t
	}
	return targets, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, t target, p Payload) (string, error) {
	switch ch.Kind() {
	case KindPush:
		if !t.active || !t.prefs.PushEnabled {
			return AttemptSkipped, nil
		}
	case KindEmail:
		if t.Email == "" || !t.prefs.EmailEnabled {
			return AttemptSkipped, nil
		}
	}
	if err := ch.Send(ctx, t.Recipient, p); err != nil {
		return AttemptFailed, err
	}
	return AttemptSent, nil
}

func (d *Dispatcher) record(db *gorm.DB, n Notification, ch Channel, status string, sendErr error) {
	a := DeliveryAttempt{NotificationID: n.ID, UserID: n.UserID, Channel: ch.Name(), Status: status}
	if sendErr != nil {
		a.Error = sendErr.Error()
	}
	if err := db.Create(&a).Error; err != nil {
		slog.Warn("delivery attempt not recorded", "channel", ch.Name(), "user_id", n.UserID.String(), "error", err)
	}
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
