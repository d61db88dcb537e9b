package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/ksolden/weather-market-gateway/internal/api/http"
	"github.com/ksolden/weather-market-gateway/internal/bundle"
	"github.com/ksolden/weather-market-gateway/internal/bundle/sources"
	"github.com/ksolden/weather-market-gateway/internal/config"
	"github.com/ksolden/weather-market-gateway/internal/gridcache"
	"github.com/ksolden/weather-market-gateway/internal/kalshi"
	"github.com/ksolden/weather-market-gateway/internal/scheduler"
	"github.com/ksolden/weather-market-gateway/internal/upstream"
)

func main() {
	// Load configuration (.env picked up inside Load).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound upstream calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Exchange credentials; the signing key is imported lazily on first use.
	keys := kalshi.NewKeys(cfg.KalshiPrivateKeyPEM)
	signer := kalshi.NewSigner(cfg.KalshiAPIKeyID, keys)

	// One retrying fetcher (and circuit) per upstream host.
	exchangeClient := kalshi.NewClient(cfg.KalshiBaseURL, signer, upstream.NewFetcher("kalshi", httpClient))

	gridCache := gridcache.New(cfg.GridpointMaxAge)
	weather := sources.NewWeather(upstream.NewFetcher("nws", httpClient), gridCache, "")
	markets := sources.NewMarkets(exchangeClient)
	ensemble := sources.NewEnsemble(upstream.NewFetcher("ensemble", httpClient), "")

	// Core service orchestrating the per-city sub-fetches.
	service := bundle.NewService(weather, markets, ensemble)

	// Keep gridpoint resolution warm in the background.
	sched := scheduler.New(cfg.Cities, cfg.GridpointRefresh, weather)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-market-gateway",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// API routes.
	httpapi.RegisterRoutes(app, service, cfg.Cities, signer.Configured())

	// Start server with graceful shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
