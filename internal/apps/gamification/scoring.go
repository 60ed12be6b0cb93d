package gamification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Notifier delivers gamification events to a user. Failures are logged by
// the caller and never undo an award.
type Notifier interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, eventType, title, message string) error
}

const (
	EventLevelUp             = "level_up"
	EventAchievementUnlocked = "achievement_unlocked"
)

type AwardInput struct {
	UserID      uuid.UUID
	Amount      int64
	Reason      string
	ServiceID   string
	ServiceName string
}

type AwardResult struct {
	TotalPoints int64         `json:"points"`
	Level       int           `json:"level"`
	LeveledUp   bool          `json:"leveledUp"`
	Unlocked    []Achievement `json:"unlocked"`
}

type ScoringService struct {
	db       *gorm.DB
	ranking  *RankingService
	notifier Notifier
	now      func() time.Time
}

// NewScoringService builds the scoring engine. notifier may be nil.
func NewScoringService(db *gorm.DB, ranking *RankingService, notifier Notifier) *ScoringService {
	return &ScoringService{db: db, ranking: ranking, notifier: notifier, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (s *ScoringService) WithClock(now func() time.Time) *ScoringService {
	s.now = now
	return s
}

// AwardPoints credits amount to the user and, when a service id is given, to
// that service. The credit commits first; achievement evaluation, ranking
// and notifications follow as best-effort steps whose failures are logged.
func (s *ScoringService) AwardPoints(ctx context.Context, in AwardInput) (*AwardResult, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	in.ServiceID = strings.TrimSpace(in.ServiceID)
	in.ServiceName = strings.TrimSpace(in.ServiceName)
	switch {
	case in.UserID == uuid.Nil:
		return nil, apperr.Validation("userId is required")
	case in.Reason == "":
		return nil, apperr.Validation("reason is required")
	case in.Amount < 0:
		return nil, apperr.Validation("points must be zero or greater")
	}

	var score *UserScore
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		score, err = s.credit(tx, in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("award points: %w", err)
	}
	var rankedService string
	if in.scoresService() {
		rankedService = in.ServiceID
	}
	return s.settle(ctx, in.UserID, LevelFor(score.TotalPoints-in.Amount), score, rankedService), nil
}

// credit applies one award inside tx. The total is incremented in place so
// concurrent awards for the same user never lose updates; the level is then
// derived from the stored total.
func (s *ScoringService) credit(tx *gorm.DB, in AwardInput) (*UserScore, error) {
	now := s.now()

	seed := UserScore{UserID: in.UserID, Level: 1, LastUpdatedAt: now}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("create user score: %w", err)
	}

	if err := tx.Model(&UserScore{}).Where("user_id = ?", in.UserID).
		UpdateColumn("total_points", gorm.Expr("total_points + ?", in.Amount)).Error; err != nil {
		return nil, fmt.Errorf("increment user score: %w", err)
	}

	var score UserScore
	if err := tx.Where("user_id = ?", in.UserID).First(&score).Error; err != nil {
		return nil, fmt.Errorf("reload user score: %w", err)
	}
	score.Level = LevelFor(score.TotalPoints)
	score.LastUpdatedAt = now
	if err := tx.Model(&UserScore{}).Where("id = ?", score.ID).UpdateColumns(map[string]interface{}{
		"level":           score.Level,
		"last_updated_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("update level: %w", err)
	}

	if in.scoresService() {
		if err := creditService(tx, in, now); err != nil {
			return nil, err
		}
	}
	var serviceID *string
	if in.ServiceID != "" {
		serviceID = &in.ServiceID
	}

	entry := PointTransaction{UserID: in.UserID, Amount: in.Amount, Reason: in.Reason, ServiceID: serviceID, CreatedAt: now}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("write ledger: %w", err)
	}
	return &score, nil
}

// scoresService reports whether the award also counts towards a service
// score. Both the id and the display name are required; an id alone is only
// recorded on the ledger row.
func (in AwardInput) scoresService() bool {
	return in.ServiceID != "" && in.ServiceName != ""
}

// creditService upserts the user's score for the service. The label is
// stored on first write and never updated afterwards.
func creditService(tx *gorm.DB, in AwardInput, now time.Time) error {
	seed := ServiceScore{UserID: in.UserID, ServiceID: in.ServiceID, ServiceName: in.ServiceName, LastActivityAt: now}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "service_id"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return fmt.Errorf("create service score: %w", err)
	}
	if err := tx.Model(&ServiceScore{}).Where("user_id = ? AND service_id = ?", in.UserID, in.ServiceID).
		UpdateColumns(map[string]interface{}{
			"points":           gorm.Expr("points + ?", in.Amount),
			"last_activity_at": now,
		}).Error; err != nil {
		return fmt.Errorf("increment service score: %w", err)
	}
	return nil
}

// settle runs the follow-ups of a committed credit and reports the totals
// after any achievement cascade.
func (s *ScoringService) settle(ctx context.Context, userID uuid.UUID, prevLevel int, score *UserScore, serviceID string) *AwardResult {
	log := slog.With("user_id", userID.String())

	unlocked, err := s.EvaluateAchievements(ctx, userID)
	if err != nil {
		log.Error("achievement evaluation failed", "action", "evaluate_achievements", "error", err)
	}

	final := *score
	if len(unlocked) > 0 {
		var fresh UserScore
		if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&fresh).Error; err != nil {
			log.Error("reload score after achievements failed", "error", err)
		} else {
			final = fresh
		}
	}

	if s.ranking != nil {
		s.ranking.refreshAfterAward(ctx, userID, final.TotalPoints, serviceID)
	}
	s.notify(ctx, userID, prevLevel, final.Level, unlocked)

	if unlocked == nil {
		unlocked = []Achievement{}
	}
	return &AwardResult{
		TotalPoints: final.TotalPoints,
		Level:       final.Level,
		LeveledUp:   final.Level > prevLevel,
		Unlocked:    unlocked,
	}
}

func (s *ScoringService) notify(ctx context.Context, userID uuid.UUID, prevLevel, level int, unlocked []Achievement) {
	if s.notifier == nil {
		return
	}
	if level > prevLevel {
		msg := fmt.Sprintf("Alcanzaste el nivel %d", level)
		if err := s.notifier.NotifyUser(ctx, userID, EventLevelUp, "¡Subiste de nivel!", msg); err != nil {
			slog.Warn("level-up notification failed", "user_id", userID.String(), "error", err)
		}
	}
	for _, a := range unlocked {
		msg := fmt.Sprintf("Desbloqueaste el logro %s", a.Name)
		if err := s.notifier.NotifyUser(ctx, userID, EventAchievementUnlocked, "¡Nuevo logro!", msg); err != nil {
			slog.Warn("achievement notification failed", "user_id", userID.String(), "achievement", a.Key, "error", err)
		}
	}
}

// Score returns the stored score, or a zero score at level 1 when the user
// has never been awarded points.
func (s *ScoringService) Score(ctx context.Context, userID uuid.UUID) (*UserScore, error) {
	var score UserScore
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&score).Error
	if err != nil {
		return nil, err
	}
	if score.ID == uuid.Nil {
		return &UserScore{UserID: userID, Level: 1}, nil
	}
	return &score, nil
}
