package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// User holds the display fields of an externally authenticated user.
// Rows are created lazily the first time a user id is seen.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"size:255;index" json:"email"`
	Name      string    `gorm:"size:120" json:"name"`
	AvatarURL string    `gorm:"type:text" json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// EnsureUser inserts a bare user row if none exists for id.
func EnsureUser(tx *gorm.DB, id uuid.UUID) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&User{ID: id}).Error
}
