package gamification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
	"github.com/haitech14/miservicios-sub001/internal/models"
	"gorm.io/gorm"
)

const (
	PeriodGeneral = "general"
	PeriodDaily   = "diario"
	PeriodWeekly  = "semanal"
	PeriodMonthly = "mensual"

	defaultRankingLimit = 10
	maxRankingLimit     = 100
	recentBadgeCount    = 3
)

const generalRankSQL = `UPDATE user_scores SET general_rank = r.rn
FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY total_points DESC, user_id ASC) AS rn FROM user_scores) AS r
WHERE user_scores.id = r.id`

const serviceRankSQL = `UPDATE service_scores SET rank_within_service = r.rn
FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY points DESC, user_id ASC) AS rn
      FROM service_scores WHERE service_id = ?) AS r
WHERE service_scores.id = r.id`

type Badge struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Icon       string    `json:"icon"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

type RankingEntry struct {
	Rank        int64     `json:"rank"`
	UserID      uuid.UUID `json:"userId"`
	Name        string    `json:"name"`
	AvatarURL   string    `json:"avatarUrl"`
	Points      int64     `json:"points"`
	Level       int       `json:"level"`
	ServiceName string    `json:"serviceName,omitempty"`
	Badges      []Badge   `json:"achievements"`
}

type RankingService struct {
	db    *gorm.DB
	index RankIndex
	now   func() time.Time
}

// NewRankingService builds the ranking reader and writer. index may be nil.
func NewRankingService(db *gorm.DB, index RankIndex) *RankingService {
	return &RankingService{db: db, index: index, now: time.Now}
}

func (s *RankingService) WithClock(now func() time.Time) *RankingService {
	s.now = now
	return s
}

// RecomputeGeneralRanking rewrites every general_rank in one statement.
func (s *RankingService) RecomputeGeneralRanking(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Exec(generalRankSQL).Error
	})
}

func (s *RankingService) RecomputeServiceRanking(ctx context.Context, serviceID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Exec(serviceRankSQL, serviceID).Error
	})
}

// RecomputeAll rebuilds every stored rank and the rank index from
// user_scores. It repairs any drift left by failed best-effort updates.
func (s *RankingService) RecomputeAll(ctx context.Context) error {
	if err := s.RecomputeGeneralRanking(ctx); err != nil {
		return fmt.Errorf("general ranking: %w", err)
	}

	var services []string
	if err := s.db.WithContext(ctx).Model(&ServiceScore{}).Distinct("service_id").Pluck("service_id", &services).Error; err != nil {
		return fmt.Errorf("list services: %w", err)
	}
	for _, id := range services {
		if err := s.RecomputeServiceRanking(ctx, id); err != nil {
			return fmt.Errorf("service ranking %s: %w", id, err)
		}
	}

	if s.index == nil {
		return nil
	}
	var scores []UserScore
	if err := s.db.WithContext(ctx).Select("user_id", "total_points").Find(&scores).Error; err != nil {
		return fmt.Errorf("load scores: %w", err)
	}
	users := make([]RankedUser, 0, len(scores))
	for _, sc := range scores {
		users = append(users, RankedUser{UserID: sc.UserID, TotalPoints: sc.TotalPoints})
	}
	if err := s.index.Rebuild(ctx, users); err != nil {
		return fmt.Errorf("rebuild rank index: %w", err)
	}
	return nil
}

// refreshAfterAward keeps rank reads current after a credit. With an index
// only the user's entry moves and the stored general_rank is left to
// RecomputeAll; without one the column is rewritten.
func (s *RankingService) refreshAfterAward(ctx context.Context, userID uuid.UUID, total int64, serviceID string) {
	if s.index != nil {
		if err := s.index.Set(ctx, userID, total); err != nil {
			slog.Warn("rank index update failed", "user_id", userID.String(), "error", err)
		}
	} else if err := s.RecomputeGeneralRanking(ctx); err != nil {
		slog.Error("general ranking recompute failed", "action", "recompute_ranking", "error", err)
	}
	if serviceID != "" {
		if err := s.RecomputeServiceRanking(ctx, serviceID); err != nil {
			slog.Error("service ranking recompute failed", "action", "recompute_ranking", "service_id", serviceID, "error", err)
		}
	}
}

// NormalizeLimit applies the default and rejects values outside 1..100.
func NormalizeLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return defaultRankingLimit, nil
	case limit < 0 || limit > maxRankingLimit:
		return 0, apperr.Validation(fmt.Sprintf("limite must be between 1 and %d", maxRankingLimit))
	default:
		return limit, nil
	}
}

// periodStart returns the lower bound of the ledger window for period.
func (s *RankingService) periodStart(period string) (time.Time, error) {
	now := s.now()
	switch period {
	case PeriodDaily:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	case PeriodWeekly:
		return now.AddDate(0, 0, -7), nil
	case PeriodMonthly:
		return now.AddDate(0, 0, -30), nil
	default:
		return time.Time{}, apperr.Validation("periodo must be general, diario, semanal or mensual")
	}
}

// GetGeneralRanking lists the top users overall or, for diario, semanal and
// mensual, by points earned inside the period.
func (s *RankingService) GetGeneralRanking(ctx context.Context, limit int, period string) ([]RankingEntry, error) {
	limit, err := NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	period = strings.ToLower(strings.TrimSpace(period))
	if period == "" || period == PeriodGeneral {
		return s.generalRanking(ctx, limit)
	}

	since, err := s.periodStart(period)
	if err != nil {
		return nil, err
	}
	var rows []RankedUser
	err = s.db.WithContext(ctx).Model(&PointTransaction{}).
		Select("user_id, CAST(SUM(amount) AS BIGINT) AS total_points").
		Where("created_at >= ?", since).
		Group("user_id").
		Order("total_points DESC, user_id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("period ranking: %w", err)
	}
	return s.decorate(ctx, rows, nil)
}

func (s *RankingService) generalRanking(ctx context.Context, limit int) ([]RankingEntry, error) {
	if s.index != nil {
		top, complete, err := s.indexTop(ctx, limit)
		switch {
		case err != nil:
			slog.Warn("rank index read failed, using database", "error", err)
		case complete:
			return s.decorate(ctx, top, nil)
		}
	}

	var scores []UserScore
	err := s.db.WithContext(ctx).Order("total_points DESC, user_id ASC").Limit(limit).Find(&scores).Error
	if err != nil {
		return nil, fmt.Errorf("general ranking: %w", err)
	}
	rows := make([]RankedUser, 0, len(scores))
	for _, sc := range scores {
		rows = append(rows, RankedUser{UserID: sc.UserID, TotalPoints: sc.TotalPoints})
	}
	return s.decorate(ctx, rows, nil)
}

// indexComplete reports whether the index holds every scored user. It is
// false after a cold start or a flushed Redis until RecomputeAll runs.
func (s *RankingService) indexComplete(ctx context.Context) (bool, error) {
	indexed, err := s.index.Len(ctx)
	if err != nil {
		return false, err
	}
	var scored int64
	if err := s.db.WithContext(ctx).Model(&UserScore{}).Count(&scored).Error; err != nil {
		return false, fmt.Errorf("count scores: %w", err)
	}
	if indexed < scored {
		slog.Warn("rank index incomplete, using database", "indexed", indexed, "scored", scored)
		return false, nil
	}
	return true, nil
}

func (s *RankingService) indexTop(ctx context.Context, limit int) ([]RankedUser, bool, error) {
	complete, err := s.indexComplete(ctx)
	if err != nil || !complete {
		return nil, false, err
	}
	top, err := s.index.Top(ctx, limit)
	if err != nil {
		return nil, false, err
	}
	return top, true, nil
}

func (s *RankingService) indexRank(ctx context.Context, userID uuid.UUID) (int64, bool, error) {
	complete, err := s.indexComplete(ctx)
	if err != nil || !complete {
		return 0, false, err
	}
	return s.index.Rank(ctx, userID)
}

// liveRank computes a user's general position straight from user_scores with
// the same ordering as the ranking statement.
func (s *RankingService) liveRank(ctx context.Context, score UserScore) (int64, error) {
	var ahead int64
	err := s.db.WithContext(ctx).Model(&UserScore{}).
		Where("total_points > ? OR (total_points = ? AND user_id < ?)", score.TotalPoints, score.TotalPoints, score.UserID).
		Count(&ahead).Error
	if err != nil {
		return 0, fmt.Errorf("live rank: %w", err)
	}
	return ahead + 1, nil
}

func (s *RankingService) GetServiceRanking(ctx context.Context, serviceID string, limit int) ([]RankingEntry, error) {
	limit, err := NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return nil, apperr.Validation("serviceId is required")
	}

	var scores []ServiceScore
	err = s.db.WithContext(ctx).Where("service_id = ?", serviceID).
		Order("points DESC, user_id ASC").Limit(limit).Find(&scores).Error
	if err != nil {
		return nil, fmt.Errorf("service ranking: %w", err)
	}
	rows := make([]RankedUser, 0, len(scores))
	labels := make(map[uuid.UUID]string, len(scores))
	for _, sc := range scores {
		rows = append(rows, RankedUser{UserID: sc.UserID, TotalPoints: sc.Points})
		labels[sc.UserID] = sc.ServiceName
	}
	return s.decorate(ctx, rows, labels)
}

// decorate turns ordered rows into ranked entries with display fields,
// levels, and each user's most recent achievements.
func (s *RankingService) decorate(ctx context.Context, rows []RankedUser, labels map[uuid.UUID]string) ([]RankingEntry, error) {
	entries := make([]RankingEntry, 0, len(rows))
	if len(rows) == 0 {
		return entries, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	db := s.db.WithContext(ctx)

	var users []models.User
	if err := db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	byID := make(map[uuid.UUID]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	var scores []UserScore
	if err := db.Where("user_id IN ?", ids).Find(&scores).Error; err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	levels := make(map[uuid.UUID]int, len(scores))
	for _, sc := range scores {
		levels[sc.UserID] = sc.Level
	}

	var unlocked []UserAchievement
	if err := db.Preload("Achievement").Where("user_id IN ?", ids).
		Order("unlocked_at DESC, id ASC").Find(&unlocked).Error; err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	badges := make(map[uuid.UUID][]Badge, len(rows))
	for _, ua := range unlocked {
		if len(badges[ua.UserID]) >= recentBadgeCount {
			continue
		}
		badges[ua.UserID] = append(badges[ua.UserID], Badge{
			Key:        ua.Achievement.Key,
			Name:       ua.Achievement.Name,
			Icon:       ua.Achievement.Icon,
			UnlockedAt: ua.UnlockedAt,
		})
	}

	for i, r := range rows {
		level, ok := levels[r.UserID]
		if !ok {
			level = 1
		}
		b := badges[r.UserID]
		if b == nil {
			b = []Badge{}
		}
		u := byID[r.UserID]
		entries = append(entries, RankingEntry{
			Rank:        int64(i + 1),
			UserID:      r.UserID,
			Name:        u.Name,
			AvatarURL:   u.AvatarURL,
			Points:      r.TotalPoints,
			Level:       level,
			ServiceName: labels[r.UserID],
			Badges:      b,
		})
	}
	return entries, nil
}

type Profile struct {
	UserID       uuid.UUID          `json:"userId"`
	TotalPoints  int64              `json:"totalPoints"`
	Level        int                `json:"level"`
	Progress     LevelProgress      `json:"progress"`
	GeneralRank  *int64             `json:"generalRank"`
	Services     []ServiceScore     `json:"services"`
	Achievements []UserAchievement  `json:"achievements"`
	Recent       []PointTransaction `json:"recentTransactions"`
}

// GetProfile assembles the user's gamification profile. A user without
// points gets a zero profile at level 1.
func (s *RankingService) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	db := s.db.WithContext(ctx)

	var score UserScore
	if err := db.Where("user_id = ?", userID).Limit(1).Find(&score).Error; err != nil {
		return nil, fmt.Errorf("load score: %w", err)
	}
	p := &Profile{
		UserID:      userID,
		TotalPoints: score.TotalPoints,
		Level:       LevelFor(score.TotalPoints),
		Progress:    ProgressFor(score.TotalPoints),
		GeneralRank: score.GeneralRank,
	}

	if s.index != nil && score.ID != uuid.Nil {
		rank, ok, err := s.indexRank(ctx, userID)
		if err != nil {
			slog.Warn("rank index read failed", "user_id", userID.String(), "error", err)
		}
		if err != nil || !ok {
			if rank, err = s.liveRank(ctx, score); err != nil {
				return nil, err
			}
		}
		p.GeneralRank = &rank
	}

	if err := db.Where("user_id = ?", userID).Order("points DESC, service_id ASC").Find(&p.Services).Error; err != nil {
		return nil, fmt.Errorf("load service scores: %w", err)
	}
	if err := db.Preload("Achievement").Where("user_id = ?", userID).
		Order("unlocked_at DESC, id ASC").Find(&p.Achievements).Error; err != nil {
		return nil, fmt.Errorf("load achievements: %w", err)
	}
	if err := db.Where("user_id = ?", userID).Order("created_at DESC, id ASC").
		Limit(10).Find(&p.Recent).Error; err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return p, nil
}
