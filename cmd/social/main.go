package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pockpet/social/internal/config"
	"github.com/pockpet/social/internal/database"
	"github.com/pockpet/social/internal/social"
	"github.com/pockpet/social/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	// Initialize logger
	logger.Init()
	defer logger.Sync()

	logger.Info("Starting social stack...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", err)
	}

	// Run GORM auto-migration
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Seed preset phrases
	if err := database.SeedPresets(db); err != nil {
		logger.Warn("Failed to seed presets", "error", err)
	}

	// Assemble and start the coordinator
	coordinator, err := social.NewCoordinator(cfg, db)
	if err != nil {
		logger.Fatal("Failed to build coordinator", err)
	}
	if err := coordinator.Start(); err != nil {
		logger.Fatal("Failed to start coordinator", err)
	}

	logger.Info("Social stack running", "device", cfg.DeviceName, "env", cfg.AppEnv)

	// Drain notifications so the stream never backs up when no UI is
	// attached.
	go func() {
		for event := range coordinator.Events() {
			logger.Info("Event", "kind", event.Kind, "peer", event.Peer)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")
	coordinator.Stop()
	logger.Info("Social stack stopped")
}
