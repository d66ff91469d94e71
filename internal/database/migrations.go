package database

import (
	"gorm.io/gorm"

	"github.com/pollhive/pollhive/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Admin{},
		&models.Poll{},
		&models.Option{},
		&models.Vote{},
		&models.AuditLog{},
	)
}
