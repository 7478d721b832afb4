package supervisor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/slipway-io/slipway/internal/core/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "supervisor.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_FillsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
bind = "0.0.0.0:3000"
worker_command = ["myapp", "serve"]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Workers)
	}
	if cfg.GracePeriod.Std() != 120*time.Second {
		t.Errorf("GracePeriod = %v, want 2m", cfg.GracePeriod.Std())
	}
	if cfg.MaxRequests != 1000 || cfg.MaxRequestsJitter != 100 {
		t.Errorf("recycling defaults = %d/%d, want 1000/100", cfg.MaxRequests, cfg.MaxRequestsJitter)
	}
	if cfg.Respawn.MaxCrashes != 5 || cfg.Respawn.Window.Std() != time.Minute {
		t.Errorf("respawn defaults = %+v", cfg.Respawn)
	}
}

func TestLoadConfig_FullFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
bind = "0.0.0.0:8080"
workers = 4
worker_command = ["myapp"]
grace_period = "30s"
max_requests = 500
max_requests_jitter = 50

[respawn]
max_crashes = 3
window = "2m"
backoff = "500ms"
max_backoff = "10s"
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 8080 {
		t.Errorf("Port() = %d, want 8080", cfg.Port())
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.GracePeriod.Std() != 30*time.Second {
		t.Errorf("GracePeriod = %v, want 30s", cfg.GracePeriod.Std())
	}
	if cfg.Respawn.Backoff.Std() != 500*time.Millisecond {
		t.Errorf("Backoff = %v, want 500ms", cfg.Respawn.Backoff.Std())
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no bind port", "bind = \"0.0.0.0\"\nworker_command = [\"x\"]\n"},
		{"zero workers", "bind = \"0.0.0.0:3000\"\nworkers = 0\nworker_command = [\"x\"]\n"},
		{"no worker command", "bind = \"0.0.0.0:3000\"\n"},
		{"negative grace", "bind = \"0.0.0.0:3000\"\nworker_command = [\"x\"]\ngrace_period = \"-1s\"\n"},
		{"backoff above cap", "bind = \"0.0.0.0:3000\"\nworker_command = [\"x\"]\n[respawn]\nmax_crashes = 5\nwindow = \"60s\"\nbackoff = \"10s\"\nmax_backoff = \"1s\"\n"},
		{"not toml", "{\"bind\": 1}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tc.body)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadConfig_PortEnvMustAgree(t *testing.T) {
	body := "bind = \"0.0.0.0:3000\"\nworker_command = [\"myapp\"]\n"

	t.Setenv(domain.EnvPort, "8080")
	if _, err := LoadConfig(writeConfig(t, body)); !errors.Is(err, domain.ErrPortMismatch) {
		t.Fatalf("err = %v, want ErrPortMismatch", err)
	}

	t.Setenv(domain.EnvPort, "3000")
	if _, err := LoadConfig(writeConfig(t, body)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
