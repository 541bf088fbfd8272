package db

import (
	"fmt"

	"github.com/zulandar/autodialer/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model persisted by the autodialer.
func AllModels() []interface{} {
	return []interface{}{
		&models.CallSession{},
		&models.CallLogRecord{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
