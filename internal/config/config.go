package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the control plane's configuration. It is constructed once at
// process start and never mutated.
type Config struct {
	ListenAddr  string
	GracePeriod time.Duration
	LogLevel    string
}

// Load reads the configuration from the environment, honoring a .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // a missing .env file is fine

	grace, err := time.ParseDuration(getEnv("SLIPWAY_GRACE_PERIOD", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SLIPWAY_GRACE_PERIOD: %w", err)
	}

	return &Config{
		ListenAddr:  getEnv("SLIPWAY_LISTEN", ":3000"),
		GracePeriod: grace,
		LogLevel:    getEnv("SLIPWAY_LOG_LEVEL", "info"),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
