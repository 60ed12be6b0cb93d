package gamification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserScore is the running total for one user. Level is always
// LevelFor(TotalPoints) once an award has returned.
type UserScore struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"userId"`
	TotalPoints   int64     `gorm:"not null;default:0;index" json:"totalPoints"`
	Level         int       `gorm:"not null;default:1" json:"level"`
	GeneralRank   *int64    `json:"generalRank"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (s *UserScore) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ServiceScore tracks points earned through one service (module). The label
// is stored on first award and never updated.
type ServiceScore struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_service_score_user" json:"userId"`
	ServiceID         string    `gorm:"size:80;not null;uniqueIndex:idx_service_score_user;index" json:"serviceId"`
	ServiceName       string    `gorm:"size:120" json:"serviceName"`
	Points            int64     `gorm:"not null;default:0" json:"points"`
	RankWithinService *int64    `json:"rankWithinService"`
	LastActivityAt    time.Time `json:"lastActivityAt"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (s *ServiceScore) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// PointTransaction is the ledger row written for every credit.
type PointTransaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"userId"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Reason    string    `gorm:"size:255;not null" json:"reason"`
	ServiceID *string   `gorm:"size:80" json:"serviceId,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (t *PointTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

const (
	ConditionPointsAtLeast = "points_at_least"
	ConditionLevelAtLeast  = "level_at_least"
)

type Achievement struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Key            string    `gorm:"size:60;not null;uniqueIndex" json:"key"`
	Name           string    `gorm:"size:120;not null" json:"name"`
	Description    string    `gorm:"type:text" json:"description"`
	Icon           string    `gorm:"size:60" json:"icon"`
	ConditionType  string    `gorm:"size:40;not null" json:"conditionType"`
	ConditionValue int64     `gorm:"not null" json:"conditionValue"`
	RewardPoints   int64     `gorm:"not null;default:0" json:"rewardPoints"`
	IsActive       bool      `gorm:"not null" json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (a *Achievement) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Satisfied evaluates the unlock condition. Unknown condition types never unlock.
func (a *Achievement) Satisfied(totalPoints int64, level int) bool {
	switch a.ConditionType {
	case ConditionPointsAtLeast:
		return totalPoints >= a.ConditionValue
	case ConditionLevelAtLeast:
		return int64(level) >= a.ConditionValue
	default:
		return false
	}
}

type UserAchievement struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_user_achievement" json:"userId"`
	AchievementID uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_user_achievement" json:"achievementId"`
	UnlockedAt    time.Time   `gorm:"not null;index" json:"unlockedAt"`
	Achievement   Achievement `gorm:"foreignKey:AchievementID" json:"achievement"`
}

func (u *UserAchievement) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

const (
	RewardTypeWheel  = "wheel"
	RewardTypeRaffle = "raffle"
)

type Prize struct {
	Label  string `json:"label"`
	Points int64  `json:"points,omitempty"`
}

type RewardConfig struct {
	Prizes []Prize `json:"prizes"`
}

// DailyReward is a claimable prize mechanism. Wheel and raffle both pick a
// prize uniformly at random.
type DailyReward struct {
	ID        uuid.UUID                        `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string                           `gorm:"size:120;not null" json:"name"`
	Type      string                           `gorm:"size:20;not null" json:"type"`
	Config    datatypes.JSONType[RewardConfig] `json:"config"`
	IsActive  bool                             `gorm:"not null" json:"isActive"`
	CreatedAt time.Time                        `json:"createdAt"`
}

func (d *DailyReward) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// UserDailyReward is one successful claim. ClaimDate is the server's local
// calendar day; the unique index allows one claim per reward per day.
type UserDailyReward struct {
	ID            uuid.UUID                 `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex:idx_daily_claim" json:"userId"`
	DailyRewardID uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex:idx_daily_claim" json:"dailyRewardId"`
	ClaimDate     string                    `gorm:"size:10;not null;uniqueIndex:idx_daily_claim" json:"claimDate"`
	ClaimedAt     time.Time                 `gorm:"not null" json:"claimedAt"`
	AwardedPrize  datatypes.JSONType[Prize] `json:"awardedPrize"`
}

func (u *UserDailyReward) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
