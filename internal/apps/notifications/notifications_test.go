package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
	"github.com/haitech14/miservicios-sub001/internal/models"
	"github.com/haitech14/miservicios-sub001/internal/testutil"
	"gorm.io/gorm"
)

type fakeChannel struct {
	name string
	kind string
	fail map[uuid.UUID]bool

	mu   sync.Mutex
	sent []Recipient
}

func (c *fakeChannel) Name() string { return c.name }
func (c *fakeChannel) Kind() string { return c.kind }

func (c *fakeChannel) Send(_ context.Context, to Recipient, _ Payload) error {
	if c.fail[to.UserID] {
		return errors.New("provider unavailable")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, to)
	return nil
}

type fakePublisher struct {
	queue string
	jobs  []interface{}
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, queue string, payload interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.queue = queue
	p.jobs = append(p.jobs, payload)
	return nil
}

type fakeMembers map[string][]uuid.UUID

func (m fakeMembers) MemberIDs(_ context.Context, orgSlug string) ([]uuid.UUID, error) {
	ids, ok := m[orgSlug]
	if !ok {
		return nil, apperr.NotFound("organization not found")
	}
	return ids, nil
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.SetupTestDB(t, (&Plugin{}).Models()...)
}

func countAttempts(t *testing.T, db *gorm.DB, userID uuid.UUID, status string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&DeliveryAttempt{}).Where("user_id = ? AND status = ?", userID, status).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func TestNotify_InAppSurvivesRecipientLookupFailure(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	user := uuid.New()

	push := &fakeChannel{name: "push", kind: KindPush}
	d := NewDispatcher(db, push)
	if err := db.Migrator().DropTable(&Preferences{}); err != nil {
		t.Fatal(err)
	}

	report, err := d.Notify(ctx, "announcement", []uuid.UUID{user}, Payload{Title: "Reunión de padres"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if report.Created != 1 || report.Delivered != 0 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(push.sent) != 0 {
		t.Errorf("push sent = %+v", push.sent)
	}
	var inbox int64
	db.Model(&Notification{}).Where("user_id = ?", user).Count(&inbox)
	if inbox != 1 {
		t.Errorf("in-app notifications = %d, want 1", inbox)
	}
	if n := countAttempts(t, db, user, AttemptFailed); n != 1 {
		t.Errorf("failed attempts = %d, want 1", n)
	}
}

func TestNotify_RespectsPreferencesAndRegistrations(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	withPush, noPush, optedOut := uuid.New(), uuid.New(), uuid.New()
	db.Create(&models.User{ID: withPush, Email: "ana@colegio.edu"})
	db.Create(&models.User{ID: noPush})

	push := &fakeChannel{name: "push", kind: KindPush}
	email := &fakeChannel{name: "email", kind: KindEmail}
	d := NewDispatcher(db, push, email)
	svc := NewService(db, d, nil)

	for _, id := range []uuid.UUID{withPush, optedOut} {
		if _, err := svc.RegisterPushToken(ctx, id, PushTokenInput{Token: "tok-" + id.String()}); err != nil {
			t.Fatal(err)
		}
	}
	off := false
	if _, err := svc.UpdatePreferences(ctx, optedOut, PreferencesInput{PushEnabled: &off}); err != nil {
		t.Fatal(err)
	}

	report, err := d.Notify(ctx, "level_up", []uuid.UUID{withPush, noPush, optedOut, withPush}, Payload{Title: "Nivel 2"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 3 || report.Delivered != 2 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(push.sent) != 1 || push.sent[0].UserID != withPush || push.sent[0].PushToken != "tok-"+withPush.String() {
		t.Errorf("push sent = %+v", push.sent)
	}
	if len(email.sent) != 1 || email.sent[0].Email != "ana@colegio.edu" {
		t.Errorf("email sent = %+v", email.sent)
	}
	if got := countAttempts(t, db, optedOut, AttemptSkipped); got != 2 {
		t.Errorf("opted-out skipped attempts = %d, want 2", got)
	}

	for _, id := range []uuid.UUID{withPush, noPush, optedOut} {
		n, err := svc.UnreadCount(ctx, id)
		if err != nil || n != 1 {
			t.Errorf("unread for %s = %d, %v", id, n, err)
		}
	}
}

func TestNotify_ChannelFailureDoesNotAbort(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	bad, good := uuid.New(), uuid.New()

	push := &fakeChannel{name: "push", kind: KindPush, fail: map[uuid.UUID]bool{bad: true}}
	d := NewDispatcher(db, push)
	svc := NewService(db, d, nil)
	for _, id := range []uuid.UUID{bad, good} {
		if _, err := svc.RegisterPushToken(ctx, id, PushTokenInput{Token: "t"}); err != nil {
			t.Fatal(err)
		}
	}

	report, err := d.Notify(ctx, "announcement", []uuid.UUID{bad, good}, Payload{Title: "Hola"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 2 || report.Delivered != 1 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}
	if got := countAttempts(t, db, bad, AttemptFailed); got != 1 {
		t.Errorf("failed attempts = %d", got)
	}
}

func TestNotify_Validation(t *testing.T) {
	d := NewDispatcher(setupDB(t))
	if _, err := d.Notify(context.Background(), "", []uuid.UUID{uuid.New()}, Payload{Title: "x"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("missing type err = %v", err)
	}
	if _, err := d.Notify(context.Background(), "x", []uuid.UUID{uuid.New()}, Payload{}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("missing title err = %v", err)
	}
}

func TestInAppPushChannel_CreatesPushEntry(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	user := uuid.New()
	d := NewDispatcher(db, NewInAppPushChannel(db))
	svc := NewService(db, d, nil)
	if _, err := svc.RegisterPushToken(ctx, user, PushTokenInput{Token: "device"}); err != nil {
		t.Fatal(err)
	}

	if err := d.NotifyUser(ctx, user, "achievement_unlocked", "¡Nuevo logro!", "Primer paso"); err != nil {
		t.Fatal(err)
	}
	list, err := svc.List(ctx, user, false, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	types := map[string]int{}
	for _, n := range list {
		types[n.Type]++
	}
	if len(list) != 2 || types["achievement_unlocked"] != 1 || types[KindPush] != 1 {
		t.Errorf("notifications = %v", types)
	}
}

func TestQueueChannel_PublishesJob(t *testing.T) {
	pub := &fakePublisher{}
	ch := NewQueueChannel(pub, "notifications.push")
	user := uuid.New()

	err := ch.Send(context.Background(), Recipient{UserID: user, PushToken: "abc"}, Payload{Type: "level_up", Title: "Nivel 3", Message: "Bien"})
	if err != nil {
		t.Fatal(err)
	}
	job, ok := pub.jobs[0].(PushJob)
	if !ok || pub.queue != "notifications.push" {
		t.Fatalf("published %T to %q", pub.jobs[0], pub.queue)
	}
	if job.Token != "abc" || job.Body != "Bien" || job.Type != "level_up" || job.UserID != user.String() {
		t.Errorf("job = %+v", job)
	}

	if err := ch.Send(context.Background(), Recipient{UserID: user}, Payload{Title: "x"}); err == nil {
		t.Error("expected error without token")
	}
	pub.err = errors.New("connection refused")
	if err := ch.Send(context.Background(), Recipient{UserID: user, PushToken: "abc"}, Payload{Title: "x"}); err == nil {
		t.Error("expected publish error")
	}
}

func TestService_ReadState(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	d := NewDispatcher(db)
	svc := NewService(db, d, nil)
	user, other := uuid.New(), uuid.New()

	if _, err := d.Notify(ctx, "announcement", []uuid.UUID{user, other}, Payload{Title: "Uno"}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Notify(ctx, "announcement", []uuid.UUID{user}, Payload{Title: "Dos"}); err != nil {
		t.Fatal(err)
	}

	list, err := svc.List(ctx, user, true, 10, 0)
	if err != nil || len(list) != 2 {
		t.Fatalf("unread list = %d, %v", len(list), err)
	}

	theirs, err := svc.List(ctx, other, false, 10, 0)
	if err != nil || len(theirs) != 1 {
		t.Fatal(err)
	}
	if _, err := svc.MarkRead(ctx, user, theirs[0].ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("mark other's notification err = %v", err)
	}

	n, err := svc.MarkRead(ctx, user, list[0].ID)
	if err != nil || !n.IsRead || n.ReadAt == nil {
		t.Fatalf("mark read = %+v, %v", n, err)
	}
	if c, _ := svc.UnreadCount(ctx, user); c != 1 {
		t.Errorf("unread after one = %d", c)
	}
	if updated, err := svc.MarkAllRead(ctx, user); err != nil || updated != 1 {
		t.Errorf("mark all = %d, %v", updated, err)
	}
	if c, _ := svc.UnreadCount(ctx, other); c != 1 {
		t.Errorf("other user's unread changed to %d", c)
	}
}

func TestService_PreferencesAndTokens(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	svc := NewService(db, NewDispatcher(db), nil)
	user := uuid.New()

	p, err := svc.GetPreferences(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !p.EmailEnabled || !p.PushEnabled {
		t.Fatalf("defaults = %+v", p)
	}

	off := false
	p, err = svc.UpdatePreferences(ctx, user, PreferencesInput{EmailEnabled: &off, TypeFlags: map[string]bool{"level_up": false}})
	if err != nil {
		t.Fatal(err)
	}
	p, err = svc.UpdatePreferences(ctx, user, PreferencesInput{TypeFlags: map[string]bool{"announcement": true}})
	if err != nil {
		t.Fatal(err)
	}
	flags := p.TypeFlags.Data()
	if p.EmailEnabled || !p.PushEnabled || len(flags) != 2 || flags["level_up"] {
		t.Errorf("after partial updates = %+v flags=%v", p, flags)
	}

	if _, err := svc.RegisterPushToken(ctx, user, PushTokenInput{Token: " "}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty token err = %v", err)
	}
	if _, err := svc.RegisterPushToken(ctx, user, PushTokenInput{Token: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeactivatePushToken(ctx, user); err != nil {
		t.Fatal(err)
	}
	reg, err := svc.RegisterPushToken(ctx, user, PushTokenInput{Token: "second", Platform: "Android"})
	if err != nil {
		t.Fatal(err)
	}
	if reg.Token != "second" || !reg.IsActive || reg.Platform != "android" {
		t.Errorf("registration = %+v", reg)
	}
	var count int64
	db.Model(&PushRegistration{}).Where("user_id = ?", user).Count(&count)
	if count != 1 {
		t.Errorf("registrations = %d", count)
	}

	if err := svc.DeactivatePushToken(ctx, uuid.New()); !errors.Is(err, ErrNoPushToken) {
		t.Errorf("deactivate missing err = %v", err)
	}
}

func TestService_Announce(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	svc := NewService(db, NewDispatcher(db), fakeMembers{"fit-club": {a, b}})

	report, err := svc.Announce(ctx, AnnouncementInput{OrgSlug: "fit-club", UserIDs: []string{c.String(), a.String()}, Title: "Cierre por feriado"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 3 {
		t.Errorf("created = %d, want 3", report.Created)
	}

	tests := []struct {
		name string
		in   AnnouncementInput
		want error
	}{
		{"no target", AnnouncementInput{Title: "x"}, apperr.ErrValidation},
		{"bad id", AnnouncementInput{UserIDs: []string{"nope"}, Title: "x"}, apperr.ErrValidation},
		{"unknown org", AnnouncementInput{OrgSlug: "ghost", Title: "x"}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Announce(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
