package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/kelvins/geocoder"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krushirakshak/crop-advisory/internal/alerts"
	httpapi "github.com/krushirakshak/crop-advisory/internal/api/http"
	"github.com/krushirakshak/crop-advisory/internal/config"
	"github.com/krushirakshak/crop-advisory/internal/dashboard"
	"github.com/krushirakshak/crop-advisory/internal/fusion"
	"github.com/krushirakshak/crop-advisory/internal/market"
	"github.com/krushirakshak/crop-advisory/internal/ndvi"
	"github.com/krushirakshak/crop-advisory/internal/observability"
	"github.com/krushirakshak/crop-advisory/internal/scheduler"
	"github.com/krushirakshak/crop-advisory/internal/store"
	"github.com/krushirakshak/crop-advisory/internal/weather"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Rule packs are validated here; a malformed pack is fatal rather than
	// silently skipped at request time.
	rules, err := fusion.LoadStore(cfg.RulesDir)
	if err != nil {
		log.Fatalf("failed to load rule packs: %v", err)
	}
	slogger.Info("rule packs loaded", "rules", rules.Len())

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// In-memory store with configured retention.
	memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	// Weather providers with resilience (backoff + circuit breaker).
	provs := []weather.Provider{
		weather.NewOpenMeteoProvider(httpClient),
	}
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, weather.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey))
	}

	weatherSvc := weather.NewService(memStore, provs, slogger)

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	pipeline := ndvi.NewPipeline(
		ndvi.NewSentinelClient(httpClient, cfg.SentinelBaseURL, cfg.SentinelToken),
		clock, metrics, slogger,
		ndvi.Options{
			WindowDays:      cfg.NdviWindowDays,
			PollDelay:       cfg.NdviPollDelay,
			PollMaxAttempts: cfg.NdviPollMaxAttempts,
		},
	)

	composer := dashboard.NewComposer(
		weatherSvc,
		market.NewClient(httpClient, cfg.MarketBaseURL),
		alerts.NewClient(httpClient, cfg.AlertsBaseURL),
		pipeline,
		rules,
		clock,
		metrics,
		slogger,
		cfg.Crops,
	)

	geocodingEnabled := cfg.GeocoderAPIKey != ""
	if geocodingEnabled {
		geocoder.ApiKey = cfg.GeocoderAPIKey
	}

	// Scheduler that periodically refreshes weather snapshots.
	sched := scheduler.New(cfg.Locations, cfg.FetchInterval, weatherSvc, slogger)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "crop-advisory",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
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

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "crop-advisory",
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Composer:         composer,
		Pipeline:         pipeline,
		GeocodingEnabled: geocodingEnabled,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			slogger.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slogger.Error("error during shutdown", "error", err)
	}
}
