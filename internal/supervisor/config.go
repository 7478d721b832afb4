// Package supervisor maintains a pool of worker processes behind one
// listening socket, the way a preforking application server does: the
// supervisor binds the port exactly once, workers inherit the listener and
// accept on it independently.
package supervisor

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/slipway-io/slipway/internal/core/domain"
)

// Duration unmarshals TOML strings like "30s" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// RespawnPolicy bounds how often a crashing worker slot is restarted: each
// crash inside the window doubles the restart delay, and more crashes than
// MaxCrashes inside one window escalate to supervisor failure.
type RespawnPolicy struct {
	MaxCrashes int      `toml:"max_crashes"`
	Window     Duration `toml:"window"`
	Backoff    Duration `toml:"backoff"`
	MaxBackoff Duration `toml:"max_backoff"`
}

// Config is the supervisor's external configuration artifact. It is read
// once at launch and never reloaded.
type Config struct {
	Bind          string   `toml:"bind"`
	Workers       int      `toml:"workers"`
	WorkerCommand []string `toml:"worker_command"`
	GracePeriod   Duration `toml:"grace_period"`

	// Workers exit cleanly after serving this many requests (with jitter so
	// the pool does not recycle in lockstep); 0 disables recycling.
	MaxRequests       int `toml:"max_requests"`
	MaxRequestsJitter int `toml:"max_requests_jitter"`

	Respawn RespawnPolicy `toml:"respawn"`
}

// DefaultConfig mirrors the reference deployment: one worker, a two minute
// drain window and recycling after roughly a thousand requests.
func DefaultConfig() Config {
	return Config{
		Bind:              "0.0.0.0:3000",
		Workers:           1,
		GracePeriod:       Duration(120 * time.Second),
		MaxRequests:       1000,
		MaxRequestsJitter: 100,
		Respawn: RespawnPolicy{
			MaxCrashes: 5,
			Window:     Duration(60 * time.Second),
			Backoff:    Duration(250 * time.Millisecond),
			MaxBackoff: Duration(5 * time.Second),
		},
	}
}

// LoadConfig reads the config file once, fills defaults and validates the
// port contract against the PORT environment value when one is set.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read supervisor config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse supervisor config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	_, portStr, err := net.SplitHostPort(c.Bind)
	if err != nil {
		return fmt.Errorf("invalid bind address %q: %w", c.Bind, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid bind port %q", portStr)
	}
	// The declared port is a single source of truth: when the environment
	// carries one, the config file must agree or the container would look
	// healthy while being unreachable.
	if env := os.Getenv(domain.EnvPort); env != "" && env != portStr {
		return fmt.Errorf("%w: %s=%s but bind is %q", domain.ErrPortMismatch, domain.EnvPort, env, c.Bind)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if len(c.WorkerCommand) == 0 {
		return fmt.Errorf("worker_command is required")
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("grace_period must be positive")
	}
	if c.Respawn.MaxCrashes < 1 || c.Respawn.Window <= 0 || c.Respawn.Backoff <= 0 {
		return fmt.Errorf("respawn policy must be positive")
	}
	if c.Respawn.MaxBackoff < c.Respawn.Backoff {
		return fmt.Errorf("respawn max_backoff below backoff")
	}
	return nil
}

// Port returns the bound port number; Validate has already checked it.
func (c Config) Port() int {
	_, portStr, _ := net.SplitHostPort(c.Bind)
	port, _ := strconv.Atoi(portStr)
	return port
}
