package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pockpet/social/pkg/utils"
)

type Config struct {
	// Identity
	DeviceName string
	PetName    string

	// Database
	DBDriver   string // "sqlite" or "postgres"
	DBPath     string // sqlite file path
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Application
	AppEnv   string
	LogLevel string

	// Transport
	ListenPort        int
	ServiceType       string
	DiscoveryTimeout  time.Duration
	ConnectionTimeout time.Duration
	ProbeTimeout      time.Duration
	MaxPayloadBytes   int

	// Messaging
	MessageMaxLength  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMaxAttempts  int
	QueueInterval     time.Duration

	// Friends
	RequestTTL time.Duration
	MaxFriends int

	// Presence
	PollInterval    time.Duration
	PollWorkers     int
	OnlineThreshold time.Duration

	// Games
	InviteTTL time.Duration

	// Notifications
	EventBuffer int
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		DeviceName: getEnv("DEVICE_NAME", ""),
		PetName:    getEnv("PET_NAME", "Pet"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBPath:     getEnv("DB_PATH", "./data/social.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "social"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "social_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ListenPort:        getEnvInt("LISTEN_PORT", 5555),
		ServiceType:       getEnv("SERVICE_TYPE", "_pockpet._tcp"),
		DiscoveryTimeout:  getEnvSeconds("DISCOVERY_TIMEOUT_SECONDS", 5),
		ConnectionTimeout: getEnvSeconds("CONNECTION_TIMEOUT_SECONDS", 5),
		ProbeTimeout:      getEnvSeconds("PROBE_TIMEOUT_SECONDS", 2),
		MaxPayloadBytes:   getEnvInt("MAX_PAYLOAD_BYTES", 8192),

		MessageMaxLength:  getEnvInt("MESSAGE_MAX_LENGTH", 500),
		RetryInitialDelay: getEnvSeconds("RETRY_INITIAL_DELAY_SECONDS", 30),
		RetryMaxDelay:     getEnvSeconds("RETRY_MAX_DELAY_SECONDS", 1800),
		RetryMaxAttempts:  getEnvInt("RETRY_MAX_ATTEMPTS", 5),
		QueueInterval:     getEnvSeconds("QUEUE_INTERVAL_SECONDS", 5),

		RequestTTL: getEnvSeconds("FRIEND_REQUEST_TTL_SECONDS", 72*3600),
		MaxFriends: getEnvInt("MAX_FRIENDS", 20),

		PollInterval:    getEnvSeconds("POLL_INTERVAL_SECONDS", 15),
		PollWorkers:     getEnvInt("POLL_WORKERS", 5),
		OnlineThreshold: getEnvSeconds("ONLINE_THRESHOLD_SECONDS", 300),

		InviteTTL: getEnvSeconds("GAME_INVITE_TTL_SECONDS", 120),

		EventBuffer: getEnvInt("EVENT_BUFFER", 64),
	}

	// First boot without a configured name: derive one from the pet.
	if cfg.DeviceName == "" {
		cfg.DeviceName = utils.ShortName(cfg.PetName, 12) + "-" + utils.GenerateRandomID(6)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("DEVICE_NAME is required")
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		return fmt.Errorf("DB_DRIVER must be 'sqlite' or 'postgres'")
	}
	if c.DBDriver == "postgres" && c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required when DB_DRIVER is postgres")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("LISTEN_PORT must be a valid port number")
	}
	if c.MaxPayloadBytes < 1024 {
		return fmt.Errorf("MAX_PAYLOAD_BYTES must be at least 1024")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.PollWorkers < 1 {
		return fmt.Errorf("POLL_WORKERS must be at least 1")
	}
	return nil
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}
