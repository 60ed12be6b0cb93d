package gamification

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/dto"
	"github.com/haitech14/miservicios-sub001/internal/handlers"
	"github.com/haitech14/miservicios-sub001/internal/tenant"
)

type Handler struct {
	scoring *ScoringService
	ranking *RankingService
	rewards *DailyRewardService
}

func NewHandler(scoring *ScoringService, ranking *RankingService, rewards *DailyRewardService) *Handler {
	return &Handler{scoring: scoring, ranking: ranking, rewards: rewards}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "Unauthorized"})
}

func queryLimit(c *fiber.Ctx) (int, error) {
	raw := c.Query("limite")
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// --- Points ---

func (h *Handler) AwardPoints(c *fiber.Ctx) error {
	var req struct {
		UserID      string `json:"userId"`
		Points      *int64 `json:"points"`
		Reason      string `json:"reason"`
		ServiceID   string `json:"serviceId"`
		ServiceName string `json:"serviceName"`
	}
	if err := c.BodyParser(&req); err != nil {
		return handlers.BadRequest(c, "Invalid request body")
	}
	if req.UserID == "" || req.Reason == "" || req.Points == nil {
		return handlers.BadRequest(c, "userId, points and reason are required")
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return handlers.BadRequest(c, "userId must be a UUID")
	}

	result, err := h.scoring.AwardPoints(c.UserContext(), AwardInput{
		UserID:      userID,
		Amount:      *req.Points,
		Reason:      req.Reason,
		ServiceID:   req.ServiceID,
		ServiceName: req.ServiceName,
	})
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(result)
}

// --- Ranking ---

func (h *Handler) GeneralRanking(c *fiber.Ctx) error {
	limit, err := queryLimit(c)
	if err != nil {
		return handlers.BadRequest(c, "limite must be a number")
	}
	entries, err := h.ranking.GetGeneralRanking(c.UserContext(), limit, c.Query("periodo"))
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(entries)
}

func (h *Handler) ServiceRanking(c *fiber.Ctx) error {
	limit, err := queryLimit(c)
	if err != nil {
		return handlers.BadRequest(c, "limite must be a number")
	}
	entries, err := h.ranking.GetServiceRanking(c.UserContext(), c.Params("serviceId"), limit)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(entries)
}

func (h *Handler) Profile(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	profile, err := h.ranking.GetProfile(c.UserContext(), userID)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(profile)
}

func (h *Handler) Achievements(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	list, err := h.scoring.ListAchievements(c.UserContext(), userID)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(list)
}

// --- Daily rewards ---

func (h *Handler) ListDailyRewards(c *fiber.Ctx) error {
	rewards, err := h.rewards.ListDailyRewards(c.UserContext())
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(rewards)
}

func (h *Handler) ClaimStatus(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	rewardID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return handlers.BadRequest(c, "id must be a UUID")
	}
	status, err := h.rewards.ClaimStatus(c.UserContext(), userID, rewardID)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(status)
}

func (h *Handler) Claim(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var req struct {
		DailyRewardID string `json:"dailyRewardId"`
	}
	if err := c.BodyParser(&req); err != nil || req.DailyRewardID == "" {
		return handlers.BadRequest(c, "dailyRewardId is required")
	}
	rewardID, err := uuid.Parse(req.DailyRewardID)
	if err != nil {
		return handlers.BadRequest(c, "dailyRewardId must be a UUID")
	}

	result, err := h.rewards.Claim(c.UserContext(), userID, rewardID)
	if errors.Is(err, ErrAlreadyClaimed) {
		return handlers.RespondStatus(c, fiber.StatusBadRequest, err)
	}
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(result)
}

// --- Admin ---

func (h *Handler) CreateAchievement(c *fiber.Ctx) error {
	var req CreateAchievementInput
	if err := c.BodyParser(&req); err != nil {
		return handlers.BadRequest(c, "Invalid request body")
	}
	a, err := h.scoring.CreateAchievement(c.UserContext(), req)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(a)
}

func (h *Handler) CreateDailyReward(c *fiber.Ctx) error {
	var req CreateDailyRewardInput
	if err := c.BodyParser(&req); err != nil {
		return handlers.BadRequest(c, "Invalid request body")
	}
	r, err := h.rewards.CreateDailyReward(c.UserContext(), req)
	if err != nil {
		return handlers.RespondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

func (h *Handler) RecomputeRanking(c *fiber.Ctx) error {
	if err := h.ranking.RecomputeAll(c.UserContext()); err != nil {
		return handlers.RespondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
