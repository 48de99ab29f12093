package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"resolution-dashboard/models"
)

var DB *gorm.DB

// InitDB opens the dashboard database at path and keeps it as the
// package-wide handle.
func InitDB(path string) error {
	db, err := Open(path)
	if err != nil {
		return err
	}
	DB = db
	log.Info().Str("path", path).Msg("database connected")
	return nil
}

// Open opens a sqlite database and migrates the dashboard tables.
// Use ":memory:" for a throwaway database.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// sqlite serializes writers; one connection also keeps ":memory:" shared
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Preference{}, &models.CommandHistory{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func GetDB() *gorm.DB {
	return DB
}
