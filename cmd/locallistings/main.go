package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/LocalListings/app/controllers"
	"github.com/ManuelReschke/LocalListings/app/models"
	"github.com/ManuelReschke/LocalListings/internal/pkg/billing"
	"github.com/ManuelReschke/LocalListings/internal/pkg/cache"
	"github.com/ManuelReschke/LocalListings/internal/pkg/config"
	"github.com/ManuelReschke/LocalListings/internal/pkg/constants"
	"github.com/ManuelReschke/LocalListings/internal/pkg/database"
	"github.com/ManuelReschke/LocalListings/internal/pkg/entitlements"
	"github.com/ManuelReschke/LocalListings/internal/pkg/env"
	"github.com/ManuelReschke/LocalListings/internal/pkg/logger"
	"github.com/ManuelReschke/LocalListings/internal/pkg/router"
)

// Provider webhook bodies are small JSON documents.
const bodyLimit = 1 << 20

func main() {
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	app, cleanup, err := NewApplication(cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Infow("http server listening", "addr", cfg.App.ListenAddr())
		if err := app.Listen(cfg.App.ListenAddr()); err != nil {
			log.Errorw("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warnw("graceful shutdown failed", "error", err)
	}
}

// NewApplication wires storage, providers and routes. The returned cleanup
// releases connections and must run after the server stops.
func NewApplication(cfg *config.Config, log *logger.Logger) (*fiber.App, func(), error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	closers := []func() error{}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warnw("cleanup failed", "error", err)
			}
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		closers = append(closers, sqlDB.Close)
	}

	plans, err := billing.NewPlanResolver(map[entitlements.Plan][]string{
		entitlements.PlanBusiness: cfg.Stripe.BusinessPrices,
		entitlements.PlanPremium:  cfg.Stripe.PremiumPrices,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("price table: %w", err)
	}

	var (
		cacheClient    *redis.Client
		limiterStorage fiber.Storage
		opts           []billing.Option
	)
	if cfg.Cache.Enabled() {
		cacheClient = cache.NewClient(cfg.Cache.Addr(), cfg.Cache.Password, cache.DBDefault)
		closers = append(closers, cacheClient.Close)
		opts = append(opts, billing.WithDeduplicator(
			billing.NewRedisDeduplicator(cacheClient, models.BillingProviderStripe, cfg.Billing.DedupTTL),
		))

		port, _ := strconv.Atoi(cfg.Cache.Port)
		storage := redisstorage.New(redisstorage.Config{
			Host:     cfg.Cache.Host,
			Port:     port,
			Password: cfg.Cache.Password,
			Database: cache.DBLimiter,
		})
		closers = append(closers, storage.Close)
		limiterStorage = storage
	} else {
		log.Warn("cache disabled: duplicate detection uses the audit log only, rate limits are per instance")
	}
	if cfg.Supabase.Enabled() {
		opts = append(opts, billing.WithTierPublisher(
			billing.NewSupabaseTierPublisher(cfg.Supabase.URL, cfg.Supabase.ServiceKey),
		))
	}

	reconciler := billing.NewReconciler(
		billing.NewGormStore(db),
		billing.NewStripeFetcher(cfg.Stripe.SecretKey),
		plans,
		log.With("component", "billing"),
		opts...,
	)

	app := fiber.New(fiber.Config{
		BodyLimit:    bodyLimit,
		ErrorHandler: jsonErrorHandler,
	})
	app.Use(
		requestid.New(requestid.Config{Generator: uuid.NewString}),
		recover.New(),
		fiberlogger.New(fiberlogger.Config{
			Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
		}),
	)

	// SWAGGER / OPENAPI
	if _, err := os.Stat(cfg.App.DocsPath); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: constants.DocsBasePath,
			FilePath: cfg.App.DocsPath,
			Path:     constants.DocsVersion,
		}))
	} else {
		log.Warnw("openapi document not found, docs disabled", "path", cfg.App.DocsPath)
	}

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Billing:        controllers.NewBillingController(reconciler, cfg.Stripe.WebhookSecret, cfg.Billing.SignatureTolerance, log.With("component", "http")),
		Health:         controllers.NewHealthController(db, cacheClient),
		AdminAPIKey:    cfg.App.AdminAPIKey,
		LimiterStorage: limiterStorage,
	})

	return app, cleanup, nil
}

func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	message := "internal error"
	if code < fiber.StatusInternalServerError {
		message = err.Error()
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   "http_error",
		"message": message,
	})
}
