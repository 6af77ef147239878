package database

import (
	"errors"
	"fmt"

	"portfolio-tracker/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer; one connection also keeps ":memory:"
	// databases from splitting across the pool.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates or updates the tables for every model.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Portfolio{},
		&models.Position{},
		&models.Watchlist{},
		&models.WatchlistItem{},
		&models.Setting{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// SeedAdmin makes sure an administrator with the given token exists. An
// empty token skips seeding.
func SeedAdmin(db *gorm.DB, username, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	var existing models.User
	err := db.Where("username = ?", username).First(&existing).Error
	switch {
	case err == nil:
		if existing.APIToken == token && existing.IsAdmin {
			return false, nil
		}
		if err := db.Model(&existing).Updates(map[string]any{"api_token": token, "is_admin": true}).Error; err != nil {
			return false, fmt.Errorf("failed to update admin '%s': %w", username, err)
		}
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		admin := models.User{Username: username, APIToken: token, IsAdmin: true}
		if err := db.Create(&admin).Error; err != nil {
			return false, fmt.Errorf("failed to create admin '%s': %w", username, err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("failed to look up admin '%s': %w", username, err)
	}
}
