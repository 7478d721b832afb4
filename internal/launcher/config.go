package launcher

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/slipway-io/slipway/internal/core/domain"
)

// Config is read from the environment exactly once at process start and
// never mutated afterwards.
type Config struct {
	AppDir         string
	UID            int
	GID            int
	SupervisorPath string
	ConfigPath     string
	Port           int
}

// LoadConfig builds the launcher configuration from the environment. A
// .env file in the working directory is honored when present, matching how
// the rest of the system is configured.
func LoadConfig() (Config, error) {
	_ = godotenv.Load() //nolint:errcheck // a missing .env file is the normal case in a container

	cfg := Config{
		AppDir:         getEnv("SLIPWAY_APP_DIR", "/app"),
		SupervisorPath: getEnv("SLIPWAY_SUPERVISOR", "slipway-supervisor"),
		ConfigPath:     getEnv("SLIPWAY_SUPERVISOR_CONFIG", "/app/supervisor.toml"),
	}

	var err error
	if cfg.UID, err = getEnvInt("SLIPWAY_UID", 1000); err != nil {
		return Config{}, err
	}
	if cfg.GID, err = getEnvInt("SLIPWAY_GID", 1000); err != nil {
		return Config{}, err
	}
	if cfg.Port, err = getEnvInt(domain.EnvPort, 3000); err != nil {
		return Config{}, err
	}

	if cfg.UID == 0 || cfg.GID == 0 {
		return Config{}, domain.ErrPrivilegedUser
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("%w: port %d out of range", domain.ErrInvalidSpec, cfg.Port)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}
