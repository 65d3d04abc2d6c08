package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"goodnoodle/internal/handlers"
	"goodnoodle/internal/jobs/background"
	"goodnoodle/internal/middleware"
	"goodnoodle/internal/oauthstate"
	"goodnoodle/internal/slackclient"
	"goodnoodle/internal/tracing"
	"goodnoodle/internal/workerpool"
	"goodnoodle/pkg/database"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func runServe(ctx context.Context, configFile string) (err error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, log, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, "goodnoodle", cfg.Environment)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer runCleanup(&err, "tracing shutdown", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return shutdownTracing(shutdownCtx)
	})

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := database.Migrate(ctx, a.db); err != nil {
		return err
	}

	rt := a.runtimeIdentity(ctx)
	gifting := a.gifting(rt)

	pool := workerpool.New(workerpool.Config{
		Name:        "slack-events",
		Workers:     cfg.Workers.Count,
		QueueSize:   cfg.Workers.QueueSize,
		TaskTimeout: cfg.Workers.EventTimeout,
		Logger:      log.Named("workers"),
	})
	defer runCleanup(&err, "worker pool shutdown", func() error { return pool.Stop(shutdownTimeout) })

	scheduler, err := background.NewJobScheduler(a.registry, cfg.ReconcileInterval, log.Named("jobs"))
	if err != nil {
		return err
	}
	scheduler.Start()
	defer runCleanup(&err, "scheduler shutdown", scheduler.Stop)
	// Counters may have drifted while the process was down.
	if err := scheduler.RunNow(); err != nil {
		log.Warn("Startup reconciliation not triggered", zap.Error(err))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())
	e.Use(otelecho.Middleware("goodnoodle"))
	e.Use(middleware.RequestLogger(log.Named("http")))

	var dedupe handlers.EventDeduper
	var redisPing handlers.Pinger
	if a.cache != nil {
		dedupe = a.cache
		redisPing = a.cache
	}

	health := handlers.NewHealthHandlers(a.db, redisPing).WithWorkers(pool)
	e.GET("/alive", health.Alive)
	e.GET("/ready", health.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	events := handlers.NewSlackEventsHandlers(gifting, pool, dedupe, rt, log.Named("events"))
	e.POST("/slack/events", events.HandleEvents, middleware.SlackSignature(cfg.Slack.SigningSecret, log))

	if cfg.OAuthEnabled() {
		signer, err := oauthstate.NewSigner(cfg.Slack.StateSecret, 10*time.Minute)
		if err != nil {
			return err
		}
		oauth := handlers.NewOAuthHandlers(signer, a.platform, a.directory, dedupe, slackclient.DefaultBotScopes, log.Named("oauth"))
		e.GET("/slack/install", oauth.Install)
		e.GET("/slack/oauth_redirect", oauth.Callback)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Info("Server starting", zap.String("addr", addr), zap.String("version", version))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var errs []error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("Server stopped unexpectedly", zap.Error(err))
			errs = append(errs, err)
		}
	}

	// The deferred stops drain the worker pool and scheduler after the server stops taking requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// runCleanup runs fn and joins its failure into *err.
func runCleanup(err *error, what string, fn func() error) {
	if cerr := fn(); cerr != nil {
		*err = errors.Join(*err, fmt.Errorf("%s: %w", what, cerr))
	}
}
