package logging

import (
	"fmt"
	"time"

	"github.com/haitech14/miservicios-sub001/internal/models"
	"gorm.io/gorm"
)

// Cleanup deletes system_logs older than retention and returns the number removed.
// It is run by the scheduler.
func Cleanup(db *gorm.DB, retention time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-retention)
	result := db.Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("log cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}
