// slipway-launcher is the container entry point. It reads its configuration
// from the environment, makes sure the application directory belongs to the
// runtime identity, drops privileges and execs the supervisor in place.
package main

import (
	"os"

	"github.com/charmbracelet/log"

	"github.com/slipway-io/slipway/internal/launcher"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "launcher"})

	cfg, err := launcher.LoadConfig()
	if err != nil {
		logger.Fatal("invalid launch configuration", "err", err)
	}

	// Run only returns on failure; on success this process has become the
	// supervisor.
	if err := launcher.Run(cfg, logger); err != nil {
		logger.Fatal("launch failed", "err", err)
	}
}
