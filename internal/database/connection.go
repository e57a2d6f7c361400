package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pockpet/social/internal/config"
	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	var logLevel gormlogger.LogLevel
	if cfg.AppEnv == "development" {
		logLevel = gormlogger.Info
	} else {
		logLevel = gormlogger.Error
	}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	default:
		dialector = sqlite.Open(cfg.DBPath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true, // Skip wrapping every operation in a transaction
		PrepareStmt:            true, // Cache prepared statements
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// A single device talks to at most a handful of peers at a time,
	// so the pool stays small. SQLite additionally serializes writers.
	if cfg.DBDriver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	logger.Info("Database connected successfully", "driver", cfg.DBDriver)
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	logger.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.Friend{},
		&models.FriendRequest{},
		&models.Message{},
		&models.QueuedMessage{},
		&models.GameSessionRecord{},
		&models.PresetPhrase{},
	)

	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

func SeedPresets(db *gorm.DB) error {
	logger.Info("Checking for preset phrases...")

	var count int64
	db.Model(&models.PresetPhrase{}).Count(&count)
	if count > 0 {
		return nil
	}

	logger.Info("Seeding initial preset phrases...")
	presets := []models.PresetPhrase{
		{Text: "Hi there!", Category: "greeting", SortOrder: 1},
		{Text: "How is your pet doing?", Category: "greeting", SortOrder: 2},
		{Text: "Want to play a game?", Category: "play", SortOrder: 3},
		{Text: "Good game!", Category: "play", SortOrder: 4},
		{Text: "My pet is sleepy today.", Category: "status", SortOrder: 5},
		{Text: "My pet just learned a trick!", Category: "status", SortOrder: 6},
		{Text: "See you later!", Category: "greeting", SortOrder: 7},
	}

	return db.Create(&presets).Error
}
