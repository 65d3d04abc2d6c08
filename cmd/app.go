package main

import (
	"context"
	"fmt"
	"io"

	"goodnoodle/internal/caching"
	"goodnoodle/internal/config"
	"goodnoodle/internal/interpreter"
	"goodnoodle/internal/logger"
	"goodnoodle/internal/repositories"
	"goodnoodle/internal/services"
	"goodnoodle/internal/slackclient"
	"goodnoodle/pkg/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// app holds the wired domain components shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *pgxpool.Pool
	cache    caching.CacheService
	platform *slackclient.Client

	directory services.TenantDirectory
	registry  services.UserRegistry
	quota     services.QuotaService
	writer    services.LedgerWriter
	interp    *interpreter.Interpreter
}

func loadConfig(configFile string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Environment: cfg.Environment, ServiceName: "goodnoodle"})
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := database.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log, db: db}

	var cache caching.CacheService
	if cfg.Redis.Addr != "" {
		cache = caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log.Named("cache"))
		a.cache = cache
	} else {
		log.Warn("Redis not configured: installation cache and event dedupe disabled")
	}

	a.platform = slackclient.New(slackclient.Config{
		ClientID:     cfg.Slack.ClientID,
		ClientSecret: cfg.Slack.ClientSecret,
		RedirectURL:  cfg.Slack.RedirectURL,
		Logger:       log.Named("slack"),
	})

	a.quota, err = services.NewQuotaService(repositories.NewLedgerRepo(db), cfg.Gifting.WeeklyAllowance)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.directory = services.NewTenantDirectory(repositories.NewInstallationRepo(db), cache, log.Named("directory"))
	a.registry = services.NewUserRegistry(repositories.NewUserRepo(db), a.platform, log.Named("users"))
	a.writer = services.NewLedgerWriter(repositories.NewLedgerRepo(db), log.Named("ledger"))
	a.interp = interpreter.New(cfg.Gifting.TokenMarker)
	return a, nil
}

// runtimeIdentity resolves the bot's own user id once, when a bot token is configured.
func (a *app) runtimeIdentity(ctx context.Context) services.Runtime {
	if a.cfg.Slack.BotToken == "" {
		return services.Runtime{}
	}
	id, err := a.platform.BotUserID(ctx, a.cfg.Slack.BotToken)
	if err != nil {
		a.logger.Warn("Could not resolve bot identity; relying on per-installation bot ids", zap.Error(err))
		return services.Runtime{}
	}
	a.logger.Info("Bot identity resolved", zap.String("bot_user_id", id))
	return services.Runtime{BotUserID: id}
}

func (a *app) gifting(rt services.Runtime) services.GiftingService {
	return services.NewGiftingService(services.GiftingDeps{
		Interpreter: a.interp,
		Directory:   a.directory,
		Registry:    a.registry,
		Quota:       a.quota,
		Writer:      a.writer,
		Platform:    a.platform,
		Logger:      a.logger.Named("gifting"),
	}, services.GiftingConfig{
		SuccessReaction:   a.cfg.Gifting.SuccessReaction,
		OverLimitReaction: a.cfg.Gifting.OverLimitReaction,
		Runtime:           rt,
	})
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("Closing redis failed", zap.Error(err))
		}
	}
	a.db.Close()
	_ = a.logger.Sync()
}

func runReconcile(ctx context.Context, configFile string, out io.Writer) error {
	cfg, log, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.registry.ReconcileAll(ctx)
	fmt.Fprintf(out, "reconciled %d tenants\n", n)
	return err
}

func runMigrate(ctx context.Context, configFile string) error {
	cfg, log, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	db, err := database.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info("Schema applied")
	return nil
}
