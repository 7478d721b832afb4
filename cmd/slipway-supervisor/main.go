// slipway-supervisor runs as PID 1 inside the container once the launcher
// has handed off. It binds the declared port, maintains the worker pool and
// drains on termination. Exit status 0 means a clean shutdown; any fatal
// condition (bind failure, crash loop) exits non-zero and leaves restarting
// to the orchestrator.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/charmbracelet/log"

	"github.com/slipway-io/slipway/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "/app/supervisor.toml", "path to the supervisor config file")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "supervisor"})

	if os.Geteuid() == 0 {
		logger.Fatal("refusing to supervise as root; the launcher must drop privileges first")
	}

	cfg, err := supervisor.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("invalid supervisor configuration", "path", *configPath, "err", err)
	}

	if err := supervisor.New(cfg, logger).Run(context.Background()); err != nil {
		logger.Fatal("supervisor failed", "err", err)
	}
}
