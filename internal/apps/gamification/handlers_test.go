package gamification

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/catalog"
	"github.com/haitech14/miservicios-sub001/internal/config"
	"github.com/haitech14/miservicios-sub001/internal/middleware"
	"github.com/haitech14/miservicios-sub001/internal/testutil"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	db := testutil.SetupTestDB(t, (&Plugin{}).Models()...)
	seed, err := catalog.Load("")
	if err != nil {
		t.Fatal(err)
	}
	p := New(db, newMemIndex(), &recordingNotifier{}, seed)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := p.Seed(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	app := fiber.New()
	api := app.Group("/api")
	p.RegisterRoutes(api, middleware.Identity(&config.Config{}))
	p.RegisterAdminRoutes(api.Group("/admin"))
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body interface{}, userID string) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
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

func TestHandlers_PointsAndProfile(t *testing.T) {
	app := newTestApp(t)
	user := uuid.NewString()

	status, body := doRequest(t, app, "POST", "/api/gamification/points", map[string]interface{}{
		"userId": user, "points": 10, "reason": "primera clase", "serviceId": "reservas_clases", "serviceName": "Reservas de clases",
	}, "")
	if status != fiber.StatusOK {
		t.Fatalf("points status = %d body=%s", status, body)
	}
	var award AwardResult
	if err := json.Unmarshal(body, &award); err != nil {
		t.Fatal(err)
	}
	// primer_paso from the seeded catalog adds its reward.
	if award.TotalPoints != 15 || len(award.Unlocked) != 1 {
		t.Errorf("award = %+v", award)
	}

	status, body = doRequest(t, app, "GET", "/api/gamification/mi-perfil", nil, user)
	if status != fiber.StatusOK {
		t.Fatalf("profile status = %d", status)
	}
	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		t.Fatal(err)
	}
	if profile.TotalPoints != 15 || len(profile.Achievements) != 1 {
		t.Errorf("profile = %+v", profile)
	}

	status, body = doRequest(t, app, "GET", "/api/gamification/ranking?limite=5", nil, "")
	if status != fiber.StatusOK {
		t.Fatalf("ranking status = %d", status)
	}
	var entries []RankingEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].UserID.String() != user {
		t.Errorf("ranking = %+v", entries)
	}
}

func TestHandlers_ErrorStatuses(t *testing.T) {
	app := newTestApp(t)
	user := uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		user   string
		want   int
	}{
		{"points missing reason", "POST", "/api/gamification/points", map[string]interface{}{"userId": user, "points": 5}, "", 400},
		{"points missing amount", "POST", "/api/gamification/points", map[string]interface{}{"userId": user, "reason": "x"}, "", 400},
		{"points not a number", "POST", "/api/gamification/points", map[string]interface{}{"userId": user, "points": "ten", "reason": "x"}, "", 400},
		{"points negative", "POST", "/api/gamification/points", map[string]interface{}{"userId": user, "points": -3, "reason": "x"}, "", 400},
		{"points bad user", "POST", "/api/gamification/points", map[string]interface{}{"userId": "nope", "points": 3, "reason": "x"}, "", 400},
		{"ranking bad limit", "GET", "/api/gamification/ranking?limite=abc", nil, "", 400},
		{"ranking limit too high", "GET", "/api/gamification/ranking?limite=500", nil, "", 400},
		{"ranking bad period", "GET", "/api/gamification/ranking?periodo=anual", nil, "", 400},
		{"profile without identity", "GET", "/api/gamification/mi-perfil", nil, "", 401},
		{"claim without identity", "POST", "/api/gamification/premio-diario", map[string]string{"dailyRewardId": uuid.NewString()}, "", 401},
		{"claim unknown reward", "POST", "/api/gamification/premio-diario", map[string]string{"dailyRewardId": uuid.NewString()}, user, 404},
		{"status bad id", "GET", "/api/gamification/premio-diario/abc/estado", nil, user, 400},
		{"admin bad achievement", "POST", "/api/admin/achievements", map[string]string{"key": "x"}, "", 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, app, tt.method, tt.path, tt.body, tt.user)
			if status != tt.want {
				t.Errorf("status = %d, want %d body=%s", status, tt.want, body)
			}
		})
	}
}

func TestHandlers_DailyClaimTwice(t *testing.T) {
	app := newTestApp(t)
	user := uuid.NewString()

	status, body := doRequest(t, app, "GET", "/api/gamification/premios-diarios", nil, "")
	if status != fiber.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var rewards []DailyReward
	if err := json.Unmarshal(body, &rewards); err != nil || len(rewards) == 0 {
		t.Fatalf("rewards = %s, %v", body, err)
	}
	id := rewards[0].ID.String()

	status, body = doRequest(t, app, "POST", "/api/gamification/premio-diario", map[string]string{"dailyRewardId": id}, user)
	if status != fiber.StatusOK {
		t.Fatalf("claim status = %d body=%s", status, body)
	}
	status, body = doRequest(t, app, "POST", "/api/gamification/premio-diario", map[string]string{"dailyRewardId": id}, user)
	if status != fiber.StatusBadRequest {
		t.Errorf("second claim status = %d body=%s", status, body)
	}

	status, body = doRequest(t, app, "GET", "/api/gamification/premio-diario/"+id+"/estado", nil, user)
	if status != fiber.StatusOK {
		t.Fatalf("status code = %d", status)
	}
	var st ClaimStatus
	if err := json.Unmarshal(body, &st); err != nil || !st.ClaimedToday {
		t.Errorf("claim status = %s", body)
	}
}
