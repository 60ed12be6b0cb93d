package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	KindPush  = "push"
	KindEmail = "email"
)

// Recipient is what a channel needs to reach one user.
type Recipient struct {
	UserID    uuid.UUID
	Email     string
	PushToken string
}

type Payload struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

// Channel delivers a payload outside the in-app inbox. Kind decides which
// preference gates it.
type Channel interface {
	Name() string
	Kind() string
	Send(ctx context.Context, to Recipient, p Payload) error
}

// InAppPushChannel records the push as a second inbox entry of type "push".
type InAppPushChannel struct {
	db *gorm.DB
}

func NewInAppPushChannel(db *gorm.DB) *InAppPushChannel {
	return &InAppPushChannel{db: db}
}

func (c *InAppPushChannel) Name() string { return "in_app_push" }
func (c *InAppPushChannel) Kind() string { return KindPush }

func (c *InAppPushChannel) Send(ctx context.Context, to Recipient, p Payload) error {
	n := Notification{UserID: to.UserID, Type: KindPush, Title: p.Title, Message: p.Message, Link: p.Link}
	return c.db.WithContext(ctx).Create(&n).Error
}

// Publisher is satisfied by queue.Publisher.
type Publisher interface {
	Publish(ctx context.Context, queue string, payload interface{}) error
}

// PushJob is the message consumed by the push delivery worker.
type PushJob struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	Link   string `json:"link,omitempty"`
	Type   string `json:"type"`
}

// QueueChannel hands push jobs to RabbitMQ.
type QueueChannel struct {
	publisher Publisher
	queue     string
}

func NewQueueChannel(publisher Publisher, queue string) *QueueChannel {
	return &QueueChannel{publisher: publisher, queue: queue}
}

func (c *QueueChannel) Name() string { return "push_queue" }
func (c *QueueChannel) Kind() string { return KindPush }

func (c *QueueChannel) Send(ctx context.Context, to Recipient, p Payload) error {
	if to.PushToken == "" {
		return errors.New("no push token")
	}
	job := PushJob{
		UserID: to.UserID.String(),
		Token:  to.PushToken,
		Title:  p.Title,
		Body:   p.Message,
		Link:   p.Link,
		Type:   p.Type,
	}
	if err := c.publisher.Publish(ctx, c.queue, job); err != nil {
		return fmt.Errorf("queue push: %w", err)
	}
	return nil
}

// LogChannel only logs. It stands in for email until a provider exists.
type LogChannel struct {
	name string
	kind string
}

func NewLogChannel(name, kind string) *LogChannel {
	return &LogChannel{name: name, kind: kind}
}

func (c *LogChannel) Name() string { return c.name }
func (c *LogChannel) Kind() string { return c.kind }

func (c *LogChannel) Send(ctx context.Context, to Recipient, p Payload) error {
	slog.InfoContext(ctx, "notification delivered to log channel",
		"channel", c.name, "user_id", to.UserID.String(), "type", p.Type, "title", p.Title)
	return nil
}
