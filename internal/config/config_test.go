package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("DEVICE_NAME", "pet-abc123")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.DBDriver != "sqlite" {
		t.Errorf("DBDriver = %q, want sqlite", cfg.DBDriver)
	}
	if cfg.ListenPort != 5555 {
		t.Errorf("ListenPort = %d, want 5555", cfg.ListenPort)
	}
	if cfg.RetryInitialDelay != 30*time.Second {
		t.Errorf("RetryInitialDelay = %v, want 30s", cfg.RetryInitialDelay)
	}
	if cfg.RetryMaxDelay != 30*time.Minute {
		t.Errorf("RetryMaxDelay = %v, want 30m", cfg.RetryMaxDelay)
	}
	if cfg.OnlineThreshold != 5*time.Minute {
		t.Errorf("OnlineThreshold = %v, want 5m", cfg.OnlineThreshold)
	}
	if cfg.RequestTTL != 72*time.Hour {
		t.Errorf("RequestTTL = %v, want 72h", cfg.RequestTTL)
	}
	if cfg.MaxFriends != 20 {
		t.Errorf("MaxFriends = %d, want 20", cfg.MaxFriends)
	}
}

func TestLoadConfigGeneratesDeviceName(t *testing.T) {
	os.Clearenv()
	os.Setenv("PET_NAME", "Rex")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !strings.HasPrefix(cfg.DeviceName, "rex-") {
		t.Errorf("DeviceName = %q, want rex- prefix", cfg.DeviceName)
	}
	if len(cfg.DeviceName) != len("rex-")+6 {
		t.Errorf("DeviceName = %q, want 6 random characters after the prefix", cfg.DeviceName)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"postgres without password", func(c *Config) { c.DBDriver = "postgres"; c.DBPassword = "" }, true},
		{"zero port", func(c *Config) { c.ListenPort = 0 }, true},
		{"port too large", func(c *Config) { c.ListenPort = 70000 }, true},
		{"tiny payload cap", func(c *Config) { c.MaxPayloadBytes = 100 }, true},
		{"zero attempts", func(c *Config) { c.RetryMaxAttempts = 0 }, true},
		{"zero workers", func(c *Config) { c.PollWorkers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				DeviceName:       "pet-abc123",
				DBDriver:         "sqlite",
				ListenPort:       5555,
				MaxPayloadBytes:  8192,
				RetryMaxAttempts: 5,
				PollWorkers:      5,
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetDSN(t *testing.T) {
	cfg := &Config{
		DBHost:     "localhost",
		DBPort:     "5432",
		DBUser:     "social",
		DBPassword: "secret",
		DBName:     "social_db",
		DBSSLMode:  "disable",
	}

	want := "host=localhost port=5432 user=social password=secret dbname=social_db sslmode=disable"
	if got := cfg.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}

func TestEnvOverrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("DEVICE_NAME", "pet-abc123")
	os.Setenv("LISTEN_PORT", "6000")
	os.Setenv("POLL_INTERVAL_SECONDS", "30")
	os.Setenv("LISTEN_PORT_BAD", "oops")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ListenPort != 6000 {
		t.Errorf("ListenPort = %d, want 6000", cfg.ListenPort)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want 30s", cfg.PollInterval)
	}
}
