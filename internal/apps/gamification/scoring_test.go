package gamification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
)

func TestAwardPoints_Accumulates(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()

	first := f.award(t, user, 30, "")
	if first.TotalPoints != 30 || first.Level != 1 || first.LeveledUp {
		t.Fatalf("first award = %+v", first)
	}
	second := f.award(t, user, 70, "")
	if second.TotalPoints != 100 || second.Level != 2 || !second.LeveledUp {
		t.Fatalf("second award = %+v", second)
	}

	var ledger int64
	f.db.Model(&PointTransaction{}).Where("user_id = ?", user).Count(&ledger)
	if ledger != 2 {
		t.Errorf("ledger rows = %d, want 2", ledger)
	}
	if got := f.notifier.count(EventLevelUp); got != 1 {
		t.Errorf("level-up notifications = %d, want 1", got)
	}
}

func TestAwardPoints_Validation(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()

	tests := []struct {
		name string
		in   AwardInput
	}{
		{"negative amount", AwardInput{UserID: user, Amount: -5, Reason: "penalty"}},
		{"missing reason", AwardInput{UserID: user, Amount: 5, Reason: "  "}},
		{"missing user", AwardInput{Amount: 5, Reason: "bonus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.scoring.AwardPoints(context.Background(), tt.in)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}

	var count int64
	f.db.Model(&UserScore{}).Count(&count)
	if count != 0 {
		t.Errorf("rejected awards created %d scores", count)
	}
}

func TestAwardPoints_ZeroIsAccepted(t *testing.T) {
	f := newFixture(t)
	res := f.award(t, uuid.New(), 0, "")
	if res.TotalPoints != 0 || res.Level != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestAwardPoints_AchievementCascade(t *testing.T) {
	f := newFixture(t)
	f.addAchievement(t, "primer_paso", ConditionPointsAtLeast, 10, 5)
	f.addAchievement(t, "quince", ConditionPointsAtLeast, 15, 0)
	f.addAchievement(t, "principiante", ConditionPointsAtLeast, 100, 10)
	user := uuid.New()

	res := f.award(t, user, 10, "")
	if res.TotalPoints != 15 {
		t.Fatalf("total = %d, want 15 after reward", res.TotalPoints)
	}
	keys := map[string]bool{}
	for _, a := range res.Unlocked {
		keys[a.Key] = true
	}
	if len(res.Unlocked) != 2 || !keys["primer_paso"] || !keys["quince"] {
		t.Fatalf("unlocked = %v", keys)
	}

	var reward PointTransaction
	if err := f.db.Where("user_id = ? AND reason = ?", user, "Achievement: primer_paso").First(&reward).Error; err != nil {
		t.Fatalf("reward ledger row: %v", err)
	}
	if reward.Amount != 5 {
		t.Errorf("reward amount = %d", reward.Amount)
	}
	if got := f.notifier.count(EventAchievementUnlocked); got != 2 {
		t.Errorf("achievement notifications = %d, want 2", got)
	}
}

func TestEvaluateAchievements_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.addAchievement(t, "primer_paso", ConditionPointsAtLeast, 10, 5)
	user := uuid.New()
	f.award(t, user, 10, "")

	again, err := f.scoring.EvaluateAchievements(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("second evaluation unlocked %d", len(again))
	}
	res := f.award(t, user, 0, "")
	if len(res.Unlocked) != 0 || res.TotalPoints != 15 {
		t.Fatalf("zero award = %+v", res)
	}

	var unlocks int64
	f.db.Model(&UserAchievement{}).Where("user_id = ?", user).Count(&unlocks)
	if unlocks != 1 {
		t.Errorf("user achievements = %d, want 1", unlocks)
	}
}

func TestEvaluateAchievements_LevelCondition(t *testing.T) {
	f := newFixture(t)
	f.addAchievement(t, "nivel_5", ConditionLevelAtLeast, 5, 0)
	f.addAchievement(t, "raro", "streak_days", 1, 0)
	user := uuid.New()

	if res := f.award(t, user, 1599, ""); len(res.Unlocked) != 0 {
		t.Fatalf("level %d unlocked %v", res.Level, res.Unlocked)
	}
	res := f.award(t, user, 1, "")
	if res.Level != 5 || len(res.Unlocked) != 1 || res.Unlocked[0].Key != "nivel_5" {
		t.Fatalf("result = %+v", res)
	}
}

func TestAwardPoints_ServiceScore(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	ctx := context.Background()

	if _, err := f.scoring.AwardPoints(ctx, AwardInput{UserID: user, Amount: 20, Reason: "clase", ServiceID: "reservas_clases", ServiceName: "Reservas"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.scoring.AwardPoints(ctx, AwardInput{UserID: user, Amount: 5, Reason: "clase", ServiceID: "reservas_clases", ServiceName: "Otro nombre"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.scoring.AwardPoints(ctx, AwardInput{UserID: user, Amount: 7, Reason: "acceso", ServiceID: "acceso"}); err != nil {
		t.Fatal(err)
	}

	var svc ServiceScore
	if err := f.db.Where("user_id = ? AND service_id = ?", user, "reservas_clases").First(&svc).Error; err != nil {
		t.Fatal(err)
	}
	if svc.Points != 25 || svc.ServiceName != "Reservas" {
		t.Errorf("service score = %d %q, want 25 Reservas", svc.Points, svc.ServiceName)
	}
	if svc.RankWithinService == nil || *svc.RankWithinService != 1 {
		t.Errorf("rank within service = %v", svc.RankWithinService)
	}

	var unnamed int64
	f.db.Model(&ServiceScore{}).Where("user_id = ? AND service_id = ?", user, "acceso").Count(&unnamed)
	if unnamed != 0 {
		t.Errorf("service score created without a service name")
	}
	var ledger PointTransaction
	if err := f.db.Where("user_id = ? AND reason = ?", user, "acceso").First(&ledger).Error; err != nil {
		t.Fatal(err)
	}
	if ledger.ServiceID == nil || *ledger.ServiceID != "acceso" {
		t.Errorf("ledger service = %v", ledger.ServiceID)
	}
	score, _ := f.scoring.Score(ctx, user)
	if score.TotalPoints != 32 {
		t.Errorf("total = %d, want 32", score.TotalPoints)
	}
}

func TestAwardPoints_Concurrent(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.scoring.AwardPoints(context.Background(), AwardInput{UserID: user, Amount: 5, Reason: "tick"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent award: %v", err)
		}
	}

	score, err := f.scoring.Score(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	if score.TotalPoints != 100 || score.Level != 2 {
		t.Fatalf("score = %d level %d, want 100 level 2", score.TotalPoints, score.Level)
	}
}

func TestCreateAchievement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := CreateAchievementInput{Key: "Madrugador", Name: "Madrugador", ConditionType: ConditionPointsAtLeast, ConditionValue: 50}
	a, err := f.scoring.CreateAchievement(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if a.Key != "madrugador" || !a.IsActive {
		t.Errorf("created = %+v", a)
	}
	if _, err := f.scoring.CreateAchievement(ctx, in); !errors.Is(err, ErrAchievementExists) {
		t.Errorf("duplicate err = %v", err)
	}
	bad := in
	bad.Key = "otro"
	bad.ConditionType = "unknown"
	if _, err := f.scoring.CreateAchievement(ctx, bad); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad condition err = %v", err)
	}
}

func TestListAchievements_Flags(t *testing.T) {
	f := newFixture(t)
	f.addAchievement(t, "primer_paso", ConditionPointsAtLeast, 10, 0)
	f.addAchievement(t, "principiante", ConditionPointsAtLeast, 100, 0)
	user := uuid.New()
	f.award(t, user, 10, "")

	list, err := f.scoring.ListAchievements(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	for _, st := range list {
		want := st.Key == "primer_paso"
		if st.Unlocked != want {
			t.Errorf("%s unlocked = %v", st.Key, st.Unlocked)
		}
		if want && st.UnlockedAt == nil {
			t.Errorf("%s missing unlockedAt", st.Key)
		}
	}
}
