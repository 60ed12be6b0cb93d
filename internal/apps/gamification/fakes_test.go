package gamification

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/testutil"
	"gorm.io/gorm"
)

// memIndex is an in-memory RankIndex ordered like the SQL ranking.
type memIndex struct {
	mu     sync.Mutex
	totals map[uuid.UUID]int64
}

func newMemIndex() *memIndex {
	return &memIndex{totals: make(map[uuid.UUID]int64)}
}

func (m *memIndex) Set(_ context.Context, userID uuid.UUID, total int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.totals[userID]; ok && cur >= total {
		return nil
	}
	m.totals[userID] = total
	return nil
}

func (m *memIndex) Len(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.totals)), nil
}

func (m *memIndex) sorted() []RankedUser {
	out := make([]RankedUser, 0, len(m.totals))
	for id, total := range m.totals {
		out = append(out, RankedUser{UserID: id, TotalPoints: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

func (m *memIndex) Rank(_ context.Context, userID uuid.UUID) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, u := range m.sorted() {
		if u.UserID == userID {
			return int64(i + 1), true, nil
		}
	}
	return 0, false, nil
}

func (m *memIndex) Top(_ context.Context, n int) ([]RankedUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

func (m *memIndex) Rebuild(_ context.Context, users []RankedUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals = make(map[uuid.UUID]int64, len(users))
	for _, u := range users {
		m.totals[u.UserID] = u.TotalPoints
	}
	return nil
}

type sentNotification struct {
	UserID    uuid.UUID
	EventType string
	Message   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) NotifyUser(_ context.Context, userID uuid.UUID, eventType, _, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{UserID: userID, EventType: eventType, Message: message})
	return nil
}

func (r *recordingNotifier) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.EventType == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	db       *gorm.DB
	index    *memIndex
	notifier *recordingNotifier
	clock    *testutil.Clock
	ranking  *RankingService
	scoring  *ScoringService
	rewards  *DailyRewardService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t, (&Plugin{}).Models()...)
	f := &fixture{
		db:       db,
		index:    newMemIndex(),
		notifier: &recordingNotifier{},
		clock:    testutil.NewClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)),
	}
	f.ranking = NewRankingService(db, f.index).WithClock(f.clock.Now)
	f.scoring = NewScoringService(db, f.ranking, f.notifier).WithClock(f.clock.Now)
	f.rewards = NewDailyRewardService(db, f.scoring).WithClock(f.clock.Now)
	return f
}

func (f *fixture) addAchievement(t *testing.T, key, condition string, value, reward int64) Achievement {
	t.Helper()
	a := Achievement{
		Key:            key,
		Name:           key,
		ConditionType:  condition,
		ConditionValue: value,
		RewardPoints:   reward,
		IsActive:       true,
	}
	if err := f.db.Create(&a).Error; err != nil {
		t.Fatalf("create achievement %s: %v", key, err)
	}
	return a
}

func (f *fixture) award(t *testing.T, userID uuid.UUID, amount int64, serviceID string) *AwardResult {
	t.Helper()
	res, err := f.scoring.AwardPoints(context.Background(), AwardInput{
		UserID:      userID,
		Amount:      amount,
		Reason:      "test",
		ServiceID:   serviceID,
		ServiceName: serviceID,
	})
	if err != nil {
		t.Fatalf("AwardPoints(%d): %v", amount, err)
	}
	return res
}
