package gamification

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrAlreadyClaimed = apperr.Conflict("daily reward already claimed today")
	ErrRewardNotFound = apperr.NotFound("daily reward not found")
	ErrNoPrizes       = apperr.Validation("daily reward has no prizes configured")
	ErrInvalidReward  = apperr.Validation("type must be wheel or raffle and prizes must not be empty")
	ErrNegativePrize  = apperr.Validation("prize points must be zero or greater")
)

const (
	dailyRewardReason = "Daily reward"
	claimDateLayout   = "2006-01-02"
)

type DailyRewardService struct {
	db      *gorm.DB
	scoring *ScoringService
	pick    func(n int) int
	now     func() time.Time
}

func NewDailyRewardService(db *gorm.DB, scoring *ScoringService) *DailyRewardService {
	return &DailyRewardService{db: db, scoring: scoring, pick: rand.IntN, now: time.Now}
}

// WithPicker replaces the prize picker; pick(n) must return a value in [0, n).
func (s *DailyRewardService) WithPicker(pick func(n int) int) *DailyRewardService {
	s.pick = pick
	return s
}

func (s *DailyRewardService) WithClock(now func() time.Time) *DailyRewardService {
	s.now = now
	return s
}

type ClaimResult struct {
	Prize  Prize           `json:"prize"`
	Claim  UserDailyReward `json:"claim"`
	Points *AwardResult    `json:"points,omitempty"`
}

// Claim spins the reward once for today. The claim and the prize credit
// commit together; the unique (user, reward, day) index turns a concurrent
// second claim into ErrAlreadyClaimed.
func (s *DailyRewardService) Claim(ctx context.Context, userID, rewardID uuid.UUID) (*ClaimResult, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("userId is required")
	}
	now := s.now()
	day := now.Format(claimDateLayout)

	var (
		claim    UserDailyReward
		prize    Prize
		score    *UserScore
		credited bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&UserDailyReward{}).
			Where("user_id = ? AND daily_reward_id = ? AND claim_date = ?", userID, rewardID, day).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyClaimed
		}

		var reward DailyReward
		err := tx.Where("id = ? AND is_active = ?", rewardID, true).First(&reward).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRewardNotFound
		}
		if err != nil {
			return err
		}
		prizes := reward.Config.Data().Prizes
		if len(prizes) == 0 {
			return ErrNoPrizes
		}
		prize = prizes[s.pick(len(prizes))]

		claim = UserDailyReward{
			UserID:        userID,
			DailyRewardID: rewardID,
			ClaimDate:     day,
			ClaimedAt:     now,
			AwardedPrize:  datatypes.NewJSONType(prize),
		}
		if err := tx.Create(&claim).Error; err != nil {
			return err
		}

		if prize.Points > 0 {
			score, err = s.scoring.credit(tx, AwardInput{UserID: userID, Amount: prize.Points, Reason: dailyRewardReason})
			if err != nil {
				return err
			}
			credited = true
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrAlreadyClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("claim daily reward: %w", err)
	}

	result := &ClaimResult{Prize: prize, Claim: claim}
	if credited {
		result.Points = s.scoring.settle(ctx, userID, LevelFor(score.TotalPoints-prize.Points), score, "")
	}
	return result, nil
}

type ClaimStatus struct {
	ClaimedToday bool   `json:"claimedToday"`
	Prize        *Prize `json:"prize,omitempty"`
}

// ClaimStatus reports whether today's claim exists and what it awarded.
func (s *DailyRewardService) ClaimStatus(ctx context.Context, userID, rewardID uuid.UUID) (*ClaimStatus, error) {
	db := s.db.WithContext(ctx)
	var reward DailyReward
	err := db.Where("id = ?", rewardID).First(&reward).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRewardNotFound
	}
	if err != nil {
		return nil, err
	}

	var claim UserDailyReward
	err = db.Where("user_id = ? AND daily_reward_id = ? AND claim_date = ?",
		userID, rewardID, s.now().Format(claimDateLayout)).Limit(1).Find(&claim).Error
	if err != nil {
		return nil, err
	}
	if claim.ID == uuid.Nil {
		return &ClaimStatus{}, nil
	}
	prize := claim.AwardedPrize.Data()
	return &ClaimStatus{ClaimedToday: true, Prize: &prize}, nil
}

func (s *DailyRewardService) ListDailyRewards(ctx context.Context) ([]DailyReward, error) {
	var rewards []DailyReward
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at ASC, id ASC").Find(&rewards).Error
	return rewards, err
}

type CreateDailyRewardInput struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Prizes   []Prize `json:"prizes"`
	IsActive *bool   `json:"isActive"`
}

func (s *DailyRewardService) CreateDailyReward(ctx context.Context, in CreateDailyRewardInput) (*DailyReward, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	kind := strings.ToLower(strings.TrimSpace(in.Type))
	if (kind != RewardTypeWheel && kind != RewardTypeRaffle) || len(in.Prizes) == 0 {
		return nil, ErrInvalidReward
	}
	for _, p := range in.Prizes {
		if p.Points < 0 {
			return nil, ErrNegativePrize
		}
	}

	reward := DailyReward{
		Name:     name,
		Type:     kind,
		Config:   datatypes.NewJSONType(RewardConfig{Prizes: in.Prizes}),
		IsActive: in.IsActive == nil || *in.IsActive,
	}
	if err := s.db.WithContext(ctx).Create(&reward).Error; err != nil {
		return nil, fmt.Errorf("create daily reward: %w", err)
	}
	return &reward, nil
}
