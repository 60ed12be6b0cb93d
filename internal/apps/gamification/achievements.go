package gamification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haitech14/miservicios-sub001/internal/apperr"
	"github.com/haitech14/miservicios-sub001/internal/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAchievementExists = apperr.Conflict("achievement key already exists")

// EvaluateAchievements unlocks every active achievement whose condition the
// user meets. Reward points are credited through the same increment as any
// award, so a reward can satisfy further achievements; passes repeat until
// one unlocks nothing. Already-unlocked achievements are never unlocked again.
func (s *ScoringService) EvaluateAchievements(ctx context.Context, userID uuid.UUID) ([]Achievement, error) {
	var unlocked []Achievement
	for {
		newly, err := s.evaluatePass(ctx, userID)
		unlocked = append(unlocked, newly...)
		if err != nil {
			return unlocked, err
		}
		if len(newly) == 0 {
			return unlocked, nil
		}
	}
}

func (s *ScoringService) evaluatePass(ctx context.Context, userID uuid.UUID) ([]Achievement, error) {
	db := s.db.WithContext(ctx)

	var score UserScore
	if err := db.Where("user_id = ?", userID).Limit(1).Find(&score).Error; err != nil {
		return nil, err
	}
	if score.ID == uuid.Nil {
		return nil, nil
	}

	var achievements []Achievement
	if err := db.Where("is_active = ?", true).Order("created_at ASC, id ASC").Find(&achievements).Error; err != nil {
		return nil, err
	}

	var have []uuid.UUID
	if err := db.Model(&UserAchievement{}).Scopes(tenant.ForUser(userID)).Pluck("achievement_id", &have).Error; err != nil {
		return nil, err
	}
	owned := make(map[uuid.UUID]bool, len(have))
	for _, id := range have {
		owned[id] = true
	}

	var newly []Achievement
	for _, a := range achievements {
		if owned[a.ID] || !a.Satisfied(score.TotalPoints, score.Level) {
			continue
		}
		ok, err := s.unlock(ctx, userID, a)
		if err != nil {
			return newly, fmt.Errorf("unlock %s: %w", a.Key, err)
		}
		if ok {
			newly = append(newly, a)
		}
	}
	return newly, nil
}

// unlock records the achievement and credits its reward in one transaction.
// It reports false when another request unlocked it first.
func (s *ScoringService) unlock(ctx context.Context, userID uuid.UUID, a Achievement) (bool, error) {
	created := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ua := UserAchievement{UserID: userID, AchievementID: a.ID, UnlockedAt: s.now()}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
			DoNothing: true,
		}).Create(&ua)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		created = true
		if a.RewardPoints > 0 {
			_, err := s.credit(tx, AwardInput{UserID: userID, Amount: a.RewardPoints, Reason: "Achievement: " + a.Name})
			return err
		}
		return nil
	})
	return created, err
}

type AchievementStatus struct {
	Achievement
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

// ListAchievements returns the active catalog with the user's unlock state.
func (s *ScoringService) ListAchievements(ctx context.Context, userID uuid.UUID) ([]AchievementStatus, error) {
	db := s.db.WithContext(ctx)
	var achievements []Achievement
	if err := db.Where("is_active = ?", true).Order("created_at ASC, id ASC").Find(&achievements).Error; err != nil {
		return nil, err
	}
	var owned []UserAchievement
	if err := db.Scopes(tenant.ForUser(userID)).Find(&owned).Error; err != nil {
		return nil, err
	}
	at := make(map[uuid.UUID]time.Time, len(owned))
	for _, ua := range owned {
		at[ua.AchievementID] = ua.UnlockedAt
	}

	out := make([]AchievementStatus, 0, len(achievements))
	for _, a := range achievements {
		st := AchievementStatus{Achievement: a}
		if t, ok := at[a.ID]; ok {
			t := t
			st.Unlocked = true
			st.UnlockedAt = &t
		}
		out = append(out, st)
	}
	return out, nil
}

type CreateAchievementInput struct {
	Key            string `json:"key"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Icon           string `json:"icon"`
	ConditionType  string `json:"conditionType"`
	ConditionValue int64  `json:"conditionValue"`
	RewardPoints   int64  `json:"rewardPoints"`
	IsActive       *bool  `json:"isActive"`
}

func (s *ScoringService) CreateAchievement(ctx context.Context, in CreateAchievementInput) (*Achievement, error) {
	key := strings.ToLower(strings.TrimSpace(in.Key))
	name := strings.TrimSpace(in.Name)
	switch {
	case key == "" || name == "":
		return nil, apperr.Validation("key and name are required")
	case in.ConditionType != ConditionPointsAtLeast && in.ConditionType != ConditionLevelAtLeast:
		return nil, apperr.Validation("conditionType must be points_at_least or level_at_least")
	case in.ConditionValue < 0 || in.RewardPoints < 0:
		return nil, apperr.Validation("conditionValue and rewardPoints must be zero or greater")
	}

	a := Achievement{
		Key:            key,
		Name:           name,
		Description:    in.Description,
		Icon:           in.Icon,
		ConditionType:  in.ConditionType,
		ConditionValue: in.ConditionValue,
		RewardPoints:   in.RewardPoints,
		IsActive:       in.IsActive == nil || *in.IsActive,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Achievement{}).Where(`"key" = ?`, key).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAchievementExists
		}
		return tx.Create(&a).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrAchievementExists
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
