package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/haitech14/miservicios-sub001/internal/apps"
	"github.com/haitech14/miservicios-sub001/internal/apps/gamification"
	"github.com/haitech14/miservicios-sub001/internal/apps/notifications"
	"github.com/haitech14/miservicios-sub001/internal/apps/organizations"
	"github.com/haitech14/miservicios-sub001/internal/catalog"
	"github.com/haitech14/miservicios-sub001/internal/config"
	"github.com/haitech14/miservicios-sub001/internal/database"
	"github.com/haitech14/miservicios-sub001/internal/dto"
	"github.com/haitech14/miservicios-sub001/internal/handlers"
	"github.com/haitech14/miservicios-sub001/internal/logging"
	"github.com/haitech14/miservicios-sub001/internal/middleware"
	"github.com/haitech14/miservicios-sub001/internal/queue"
	"github.com/haitech14/miservicios-sub001/internal/routes"
	"github.com/haitech14/miservicios-sub001/internal/scheduler"
	"github.com/haitech14/miservicios-sub001/internal/storage"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	seed, err := catalog.Load(cfg.CatalogSeedPath)
	if err != nil {
		slog.Error("failed to load catalog", "path", cfg.CatalogSeedPath, "error", err)
		os.Exit(1)
	}
	slog.Info("catalog loaded", "verticals", len(seed.Verticals), "achievements", len(seed.Achievements))

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	db := database.DB

	if err := database.MigrateShared(db); err != nil {
		slog.Error("shared migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(db)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logging.Level()}),
		pgLogHandler,
	)))

	// Optional infrastructure
	var rankIndex gamification.RankIndex
	rdb := database.NewRedisClient(cfg)
	if rdb != nil {
		rankIndex = gamification.NewRedisRankIndex(rdb)
	}

	channels := []notifications.Channel{notifications.NewLogChannel("email_log", notifications.KindEmail)}
	if cfg.RabbitMQURL != "" {
		channels = append(channels, notifications.NewQueueChannel(queue.NewPublisher(cfg.RabbitMQURL), cfg.PushQueue))
	} else {
		channels = append(channels, notifications.NewInAppPushChannel(db))
	}

	var uploader storage.Uploader
	if cfg.StorageEnabled() {
		u, err := storage.NewS3Uploader(context.Background(), cfg)
		if err != nil {
			slog.Error("object storage init failed", "error", err)
		} else {
			uploader = u
		}
	}

	// Plugins
	orgPlugin := organizations.New(db, uploader, seed)
	notifyPlugin := notifications.New(db, orgPlugin.Organizations(), channels...)
	gamePlugin := gamification.New(db, rankIndex, notifyPlugin.Dispatcher(), seed)
	plugins := []apps.Plugin{orgPlugin, gamePlugin, notifyPlugin}

	for _, p := range plugins {
		if models := p.Models(); len(models) > 0 {
			if err := database.MigrateModels(db, models); err != nil {
				slog.Error("plugin migration failed", "plugin", p.ID(), "error", err)
				os.Exit(1)
			}
			slog.Info("plugin migrated", "plugin", p.ID(), "models", len(models))
		}
	}
	for _, p := range plugins {
		s, ok := p.(apps.Seeder)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := s.Seed(ctx)
		cancel()
		if err != nil {
			slog.Error("plugin seed failed", "plugin", p.ID(), "error", err)
			os.Exit(1)
		}
	}

	// Background jobs
	sched, err := scheduler.Start(
		scheduler.Job{
			Name:       "ranking_reconcile",
			Interval:   cfg.RankingReconcileInterval,
			RunOnStart: true,
			Run:        gamePlugin.Ranking().RecomputeAll,
		},
		scheduler.Job{
			Name:     "system_log_cleanup",
			Interval: 24 * time.Hour,
			Run: func(ctx context.Context) error {
				n, err := logging.Cleanup(db.WithContext(ctx), cfg.LogRetention, time.Now())
				if err == nil && n > 0 {
					slog.Info("system logs cleaned", "deleted", n)
				}
				return err
			},
		},
	)
	if err != nil {
		slog.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    6 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		return c.Next()
	})

	routes.Setup(app, cfg, handlers.NewHealthHandler(db, len(plugins)), plugins)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := sched.Stop(); err != nil {
		slog.Error("scheduler shutdown error", "error", err)
	}
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if rdb != nil {
		_ = rdb.Close()
	}
	if err := database.Close(db); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(dto.ErrorResponse{Error: message})
}
