package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-router"
	"github.com/hashicorp/go-metrics"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/goliatone/go-forum-auth/activitymap"
	"github.com/goliatone/go-forum-auth/internal/config"
	"github.com/goliatone/go-forum-auth/internal/mailer"
	"github.com/goliatone/go-forum-auth/internal/observability"
	"github.com/goliatone/go-forum-auth/memstore"
	"github.com/goliatone/go-forum-auth/middleware/gateway"
)

const (
	subsystemTokens   = "tokens"
	subsystemActivity = "activity"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	zl := buildLogger(cfg)
	defer zl.Close()

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		zl.Warn("sentry init failed: %v", err)
	}
	defer observability.FlushSentry()

	var logger, tokensLogger auth.Logger = zl, zl.With(subsystemTokens)
	if cfg.SentryDSN != "" {
		logger = observability.NewSentryLogger(logger, nil)
		tokensLogger = observability.NewSentryLogger(tokensLogger, nil)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := auth.Migrate(ctx, db); err != nil {
		return err
	}

	stores := auth.NewRepositoryManager(db)
	stores.MustValidate()

	revocations, closeRevocations, err := buildRevocationStore(ctx, cfg, stores, logger)
	if err != nil {
		return err
	}
	defer closeRevocations()

	inmem := metrics.NewInmemSink(10*time.Second, time.Minute)
	counters, err := observability.NewMetricsSink(cfg.MetricsService, inmem)
	if err != nil {
		return err
	}

	tokens := auth.NewTokenService(cfg, stores.Users(), revocations).
		WithLogger(tokensLogger).
		WithActivitySink(auth.MultiActivitySink{
			counters,
			activitymap.NewLogSink(zl.With(subsystemActivity)),
		})

	app := buildApp(cfg, tokens, db, inmem, logger)

	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening on %s", cfg.Address)
		errCh <- app.Listen(cfg.Address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	return app.ShutdownWithTimeout(cfg.ShutdownDeadline)
}

// buildRevocationStore returns the configured store and its cleanup
func buildRevocationStore(ctx context.Context, cfg *config.Config, stores auth.RepositoryManager, logger auth.Logger) (auth.RevocationStore, func(), error) {
	if cfg.RevocationStore == "sql" {
		repo := stores.Revocations()
		go runPurger(ctx, repo, cfg.PurgeInterval, logger)
		return repo, func() {}, nil
	}

	store, err := memstore.NewRevocations(memstore.DefaultRevocationsConfig())
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func buildApp(cfg *config.Config, tokens *auth.TokenService, db *bun.DB, inmem *metrics.InmemSink, logger auth.Logger) *fiber.App {
	var sender auth.EmailSender = mailer.NewLogSender(logger)
	if cfg.SMTPHost != "" {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	controller := auth.NewAuthController(tokens,
		auth.WithControllerLogger(logger),
		auth.WithAuthScheme(cfg.GetAuthScheme()),
		auth.WithEmailSender(sender, cfg.GetResetLinkBase()),
		auth.WithLoginRateLimit(cfg.LoginRateLimit, time.Minute),
	)

	var app *fiber.App
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		app = fiber.New(fiber.Config{
			AppName:               "forumauthd",
			DisableStartupMessage: true,
		})
		app.Use(recover.New())
		app.Use(gateway.New(gateway.Config{
			Validator:      tokens,
			ExemptPrefixes: cfg.GetExemptPrefixes(),
			AuthScheme:     cfg.GetAuthScheme(),
			ContextKey:     cfg.GetContextKey(),
			Logger:         logger,
		}))
		controller.MountLoginLimiter(app)
		return app
	})

	r := srv.Router()
	auth.RegisterAuthRoutes(r, controller)

	r.Get("/health", healthHandler(db)).SetName("health")
	r.Get("/metrics", metricsHandler(inmem),
		gateway.AtLeast(auth.RoleAdmin, cfg.GetContextKey()),
	).SetName("metrics")

	return app
}

func healthHandler(db *bun.DB) router.HandlerFunc {
	return func(c router.Context) error {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		body := fiber.Map{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := db.PingContext(ctx); err != nil {
			body["status"] = "degraded"
			return c.JSON(fiber.StatusServiceUnavailable, body)
		}
		return c.JSON(fiber.StatusOK, body)
	}
}

func metricsHandler(inmem *metrics.InmemSink) router.HandlerFunc {
	return func(c router.Context) error {
		summary, err := inmem.DisplayMetrics(nil, nil)
		if err != nil {
			return c.JSON(fiber.StatusServiceUnavailable, fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.StatusOK, summary)
	}
}
