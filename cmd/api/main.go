package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v2"

	"github.com/slipway-io/slipway/internal/adapters/builder"
	"github.com/slipway-io/slipway/internal/adapters/docker"
	"github.com/slipway-io/slipway/internal/adapters/http"
	"github.com/slipway-io/slipway/internal/config"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "slipway"})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", "err", err)
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	// 1. Initialize Adapters (Infrastructure)
	dockerAdapter, err := docker.NewAdapter(logger.WithPrefix("docker"), cfg.GracePeriod)
	if err != nil {
		logger.Fatal("Failed to initialize Docker adapter", "err", err)
	}
	builderAdapter, err := builder.NewBuilderAdapter(logger.WithPrefix("builder"))
	if err != nil {
		logger.Fatal("Failed to initialize builder adapter", "err", err)
	}

	// 2. Initialize HTTP Handlers (Interface Adapters)
	containerHandler := http.NewContainerHandler(dockerAdapter, builderAdapter)
	proxyHandler := http.NewProxyHandler(dockerAdapter)

	// 3. Setup Framework (Fiber)
	app := fiber.New()

	// Subdomain proxy runs first so app traffic never hits the API routes.
	app.Use(proxyHandler.ProxyRequest)

	// 4. Define Routes
	api := app.Group("/api")
	v1 := api.Group("/v1")

	builds := v1.Group("/builds")
	builds.Post("/", containerHandler.BuildImage)

	containers := v1.Group("/containers")
	containers.Get("/", containerHandler.ListContainers)
	containers.Post("/", containerHandler.StartContainer)
	containers.Delete("/:id", containerHandler.StopContainer)
	containers.Get("/:id/logs", containerHandler.GetContainerLogs)

	// 5. Start Server
	logger.Info("Server starting", "addr", cfg.ListenAddr)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		logger.Fatal("Server failed to start", "err", err)
	}
}
