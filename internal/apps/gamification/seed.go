package gamification

import (
	"context"
	"fmt"

	"github.com/haitech14/miservicios-sub001/internal/catalog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Seed inserts the catalog's achievements and daily rewards that are not
// present yet. Existing rows are left untouched.
func Seed(ctx context.Context, db *gorm.DB, seed *catalog.Seed) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sa := range seed.Achievements {
			a := Achievement{
				Key:            sa.Key,
				Name:           sa.Name,
				Description:    sa.Description,
				Icon:           sa.Icon,
				ConditionType:  sa.ConditionType,
				ConditionValue: sa.ConditionValue,
				RewardPoints:   sa.RewardPoints,
				IsActive:       true,
			}
			if err := tx.Where(Achievement{Key: sa.Key}).FirstOrCreate(&a).Error; err != nil {
				return fmt.Errorf("seed achievement %s: %w", sa.Key, err)
			}
		}

		for _, sr := range seed.DailyRewards {
			prizes := make([]Prize, 0, len(sr.Prizes))
			for _, p := range sr.Prizes {
				prizes = append(prizes, Prize{Label: p.Label, Points: p.Points})
			}
			r := DailyReward{
				Name:     sr.Name,
				Type:     sr.Type,
				Config:   datatypes.NewJSONType(RewardConfig{Prizes: prizes}),
				IsActive: true,
			}
			if err := tx.Where(DailyReward{Name: sr.Name}).FirstOrCreate(&r).Error; err != nil {
				return fmt.Errorf("seed daily reward %s: %w", sr.Name, err)
			}
		}
		return nil
	})
}
