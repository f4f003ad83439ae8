package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	httpapi "github.com/i474232898/weather-etl/internal/api/http"
	"github.com/i474232898/weather-etl/internal/config"
	"github.com/i474232898/weather-etl/internal/logging"
	"github.com/i474232898/weather-etl/internal/metrics"
	"github.com/i474232898/weather-etl/internal/scheduler"
	"github.com/i474232898/weather-etl/internal/store"
	"github.com/i474232898/weather-etl/internal/weather"
	"github.com/i474232898/weather-etl/internal/weather/providers"
)

func main() {
	once := flag.Bool("once", false, "run the pipeline a single time and exit non-zero on failure")
	flag.Parse()

	envErr := godotenv.Load()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Options{}).WithError(err).Fatal("failed to load config")
	}

	logger := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	if envErr != nil {
		logger.WithError(envErr).Debug("no .env file loaded")
	}

	collector := metrics.New()
	service, err := buildService(cfg, logger, collector)
	if err != nil {
		logger.WithError(err).Fatal("failed to build pipeline")
	}

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
		_, err := service.Run(ctx)
		cancel()
		if err != nil {
			os.Exit(1)
		}
		return
	}

	serve(cfg, logger, collector, service)
}

// buildService wires fetcher, normalizer and loader for the configured
// location.
func buildService(cfg *config.AppConfig, logger *logrus.Logger, collector *metrics.Collector) (*weather.Service, error) {
	fetcher := providers.NewOpenMeteoProvider(providers.HTTPClientConfig{
		Client: &http.Client{Timeout: cfg.HTTPTimeout},
		Backoff: providers.BackoffConfig{
			MaxAttempts:     cfg.MaxAttempts,
			InitialInterval: cfg.BackoffInitial,
			MaxInterval:     cfg.BackoffMax,
		},
	}, cfg.OpenMeteoURL, collector, logging.Component(logger, "fetcher"))

	loader, err := store.NewLoader(cfg.DatabaseURL, cfg.Table, store.Options{Monotonic: cfg.UpsertMonotonic}, logging.Component(logger, "loader"))
	if err != nil {
		return nil, err
	}

	req := weather.FetchRequest{Latitude: cfg.Latitude, Longitude: cfg.Longitude}
	return weather.NewService(
		req,
		fetcher,
		weather.NewNormalizer(logging.Component(logger, "normalizer")),
		loader,
		collector,
		logging.Component(logger, "pipeline"),
	), nil
}

// serve runs the scheduler and the read API until SIGINT/SIGTERM.
func serve(cfg *config.AppConfig, logger *logrus.Logger, collector *metrics.Collector, service *weather.Service) {
	apiLog := logging.Component(logger, "api")

	db, err := store.Open(cfg.DatabaseURL, apiLog)
	if err != nil {
		apiLog.WithError(err).Fatal("db connect failed")
	}
	defer func() {
		if err := store.Close(db); err != nil {
			apiLog.WithError(err).Warn("closing read pool")
		}
	}()

	repo, err := store.New(db, cfg.Table, store.Options{}, apiLog)
	if err != nil {
		apiLog.WithError(err).Fatal("invalid table")
	}
	apiLog = apiLog.WithField("table", repo.Table())
	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := repo.EnsureSchema(initCtx); err != nil {
		apiLog.WithError(err).Warn("could not ensure metrics table; reads fail until the first run creates it")
	}
	initCancel()

	// Scheduler that periodically runs the pipeline.
	sched := scheduler.New(service, cfg.ScheduleInterval, cfg.ScheduleCron, cfg.RunTimeout, logging.Component(logger, "scheduler"))
	if err := sched.Start(); err != nil {
		logger.WithError(err).Fatal("failed to start scheduler")
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "weather-etl",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	app.Use(fiberlogger.New(fiberlogger.Config{Output: apiLog.WriterLevel(logrus.InfoLevel)}))
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, repo, collector.Registry())

	go func() {
		apiLog.WithField("port", cfg.Port).Info("http server listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			apiLog.WithError(err).Error("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.WithError(err).Error("error during shutdown")
	}
}
