package notifications

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type Plugin struct {
	dispatcher *Dispatcher
	svc        *Service
}

// New wires the notifications plugin. members may be nil.
func New(db *gorm.DB, members MemberDirectory, channels ...Channel) *Plugin {
	d := NewDispatcher(db, channels...)
	return &Plugin{dispatcher: d, svc: NewService(db, d, members)}
}

func (p *Plugin) ID() string { return "notifications" }

func (p *Plugin) Models() []interface{} {
	return []interface{}{
		&Notification{},
		&Preferences{},
		&PushRegistration{},
		&DeliveryAttempt{},
	}
}

// Dispatcher is the Notifier handed to other plugins.
func (p *Plugin) Dispatcher() *Dispatcher { return p.dispatcher }

func (p *Plugin) RegisterRoutes(router fiber.Router, identity fiber.Handler) {
	h := NewHandler(p.svc)
	g := router.Group("/notificaciones", identity)

	g.Get("/", h.List)
	g.Get("/no-leidas", h.UnreadCount)
	g.Post("/leer-todas", h.MarkAllRead)
	g.Post("/:id/leer", h.MarkRead)
	g.Get("/preferencias", h.GetPreferences)
	g.Put("/preferencias", h.UpdatePreferences)
	g.Post("/push-token", h.RegisterPushToken)
	g.Delete("/push-token", h.DeactivatePushToken)
}

func (p *Plugin) RegisterAdminRoutes(router fiber.Router) {
	h := NewHandler(p.svc)
	router.Post("/notificaciones", h.Announce)
}
