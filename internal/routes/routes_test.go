package routes

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/apps"
	"github.com/haitech14/miservicios-sub001/internal/apps/gamification"
	"github.com/haitech14/miservicios-sub001/internal/apps/notifications"
	"github.com/haitech14/miservicios-sub001/internal/apps/organizations"
	"github.com/haitech14/miservicios-sub001/internal/catalog"
	"github.com/haitech14/miservicios-sub001/internal/config"
	"github.com/haitech14/miservicios-sub001/internal/dto"
	"github.com/haitech14/miservicios-sub001/internal/handlers"
	"github.com/haitech14/miservicios-sub001/internal/testutil"
	"golang.org/x/crypto/bcrypt"
)

const adminToken = "s3cret-admin"

func newServer(t *testing.T) *fiber.App {
	t.Helper()
	var models []interface{}
	models = append(models, (&organizations.Plugin{}).Models()...)
	models = append(models, (&gamification.Plugin{}).Models()...)
	models = append(models, (&notifications.Plugin{}).Models()...)
	db := testutil.SetupTestDB(t, models...)

	seed, err := catalog.Load("")
	if err != nil {
		t.Fatal(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{AdminTokenHash: string(hash)}

	orgs := organizations.New(db, nil, seed)
	notify := notifications.New(db, orgs.Organizations())
	game := gamification.New(db, nil, notify.Dispatcher(), seed)
	plugins := []apps.Plugin{orgs, game, notify}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	for _, p := range plugins {
		if s, ok := p.(apps.Seeder); ok {
			if err := s.Seed(ctx); err != nil {
				t.Fatalf("seed %s: %v", p.ID(), err)
			}
		}
	}

	app := fiber.New()
	Setup(app, cfg, handlers.NewHealthHandler(db, len(plugins)), plugins)
	return app
}

func call(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp.StatusCode, out.Bytes()
}

func TestHealth(t *testing.T) {
	app := newServer(t)
	status, body := call(t, app, "GET", "/api/health", nil, nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var h dto.HealthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatal(err)
	}
	if h.DB != "ok" || h.Plugins != 3 {
		t.Errorf("health = %+v", h)
	}
}

func TestAdminGate(t *testing.T) {
	app := newServer(t)
	body := map[string]interface{}{
		"key": "constante", "name": "Constante", "conditionType": "points_at_least", "conditionValue": 300,
	}

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"missing token", nil, fiber.StatusUnauthorized},
		{"wrong token", map[string]string{"X-Admin-Token": "guess"}, fiber.StatusForbidden},
		{"valid token", map[string]string{"X-Admin-Token": adminToken}, fiber.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := call(t, app, "POST", "/api/admin/achievements", body, tt.headers)
			if status != tt.want {
				t.Errorf("status = %d, want %d body=%s", status, tt.want, resp)
			}
		})
	}
}

func TestLevelUpReachesInbox(t *testing.T) {
	app := newServer(t)
	user := uuid.NewString()
	asUser := map[string]string{"x-user-id": user}

	status, body := call(t, app, "POST", "/api/gamification/points", map[string]interface{}{
		"userId": user, "points": 100, "reason": "asistencia perfecta",
	}, nil)
	if status != fiber.StatusOK {
		t.Fatalf("award status = %d body=%s", status, body)
	}

	status, body = call(t, app, "GET", "/api/notificaciones", nil, asUser)
	if status != fiber.StatusOK {
		t.Fatalf("inbox status = %d body=%s", status, body)
	}
	var inbox []notifications.Notification
	if err := json.Unmarshal(body, &inbox); err != nil {
		t.Fatal(err)
	}
	types := map[string]int{}
	for _, n := range inbox {
		types[n.Type]++
	}
	// 100 points unlocks primer_paso and principiante and reaches level 2.
	if types[gamification.EventLevelUp] != 1 || types[gamification.EventAchievementUnlocked] != 2 {
		t.Errorf("inbox types = %v", types)
	}

	status, _ = call(t, app, "GET", "/api/notificaciones", nil, nil)
	if status != fiber.StatusUnauthorized {
		t.Errorf("inbox without identity = %d", status)
	}
}

func TestAnnouncementToOrganization(t *testing.T) {
	app := newServer(t)
	admin := map[string]string{"X-Admin-Token": adminToken}
	member := uuid.NewString()

	status, body := call(t, app, "POST", "/api/organizations", map[string]interface{}{
		"slug": "colegio-norte", "name": "Colegio Norte", "verticalSlug": "HaiEdu",
	}, nil)
	if status != fiber.StatusCreated {
		t.Fatalf("create org = %d body=%s", status, body)
	}
	if status, body = call(t, app, "POST", "/api/organizations/colegio-norte/users", map[string]string{"userId": member}, nil); status != fiber.StatusCreated {
		t.Fatalf("add member = %d body=%s", status, body)
	}

	status, body = call(t, app, "POST", "/api/admin/notificaciones", map[string]interface{}{
		"orgSlug": "colegio-norte", "title": "Reunión de padres",
	}, admin)
	if status != fiber.StatusCreated {
		t.Fatalf("announce = %d body=%s", status, body)
	}

	status, body = call(t, app, "GET", "/api/notificaciones/no-leidas", nil, map[string]string{"x-user-id": member})
	if status != fiber.StatusOK {
		t.Fatalf("unread = %d", status)
	}
	var count struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(body, &count); err != nil || count.Count != 1 {
		t.Errorf("unread = %s", body)
	}
}
