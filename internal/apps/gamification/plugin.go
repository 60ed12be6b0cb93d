package gamification

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/haitech14/miservicios-sub001/internal/catalog"
	"gorm.io/gorm"
)

type Plugin struct {
	db      *gorm.DB
	seed    *catalog.Seed
	scoring *ScoringService
	ranking *RankingService
	rewards *DailyRewardService
}

// New wires the gamification plugin. index and notifier may be nil.
func New(db *gorm.DB, index RankIndex, notifier Notifier, seed *catalog.Seed) *Plugin {
	ranking := NewRankingService(db, index)
	scoring := NewScoringService(db, ranking, notifier)
	return &Plugin{
		db:      db,
		seed:    seed,
		scoring: scoring,
		ranking: ranking,
		rewards: NewDailyRewardService(db, scoring),
	}
}

func (p *Plugin) ID() string { return "gamification" }

func (p *Plugin) Models() []interface{} {
	return []interface{}{
		&UserScore{},
		&ServiceScore{},
		&PointTransaction{},
		&Achievement{},
		&UserAchievement{},
		&DailyReward{},
		&UserDailyReward{},
	}
}

// Ranking exposes the ranking service for the reconciliation job.
func (p *Plugin) Ranking() *RankingService { return p.ranking }

func (p *Plugin) Seed(ctx context.Context) error {
	if p.seed == nil {
		return nil
	}
	return Seed(ctx, p.db, p.seed)
}

func (p *Plugin) RegisterRoutes(router fiber.Router, identity fiber.Handler) {
	h := NewHandler(p.scoring, p.ranking, p.rewards)
	g := router.Group("/gamification")

	g.Post("/points", h.AwardPoints)
	g.Get("/ranking", h.GeneralRanking)
	g.Get("/ranking/:serviceId", h.ServiceRanking)
	g.Get("/premios-diarios", h.ListDailyRewards)

	g.Get("/mi-perfil", identity, h.Profile)
	g.Get("/logros", identity, h.Achievements)
	g.Get("/premio-diario/:id/estado", identity, h.ClaimStatus)
	g.Post("/premio-diario", identity, h.Claim)
}

func (p *Plugin) RegisterAdminRoutes(router fiber.Router) {
	h := NewHandler(p.scoring, p.ranking, p.rewards)

	router.Post("/achievements", h.CreateAchievement)
	router.Post("/daily-rewards", h.CreateDailyReward)
	router.Post("/ranking/recompute", h.RecomputeRanking)
}
