package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/notifyhub/whatsapp-dispatcher/internal/config"
	"github.com/notifyhub/whatsapp-dispatcher/internal/db"
	"github.com/notifyhub/whatsapp-dispatcher/internal/gateway"
	"github.com/notifyhub/whatsapp-dispatcher/internal/metrics"
	"github.com/notifyhub/whatsapp-dispatcher/internal/phone"
	"github.com/notifyhub/whatsapp-dispatcher/internal/ratelimiter"
	"github.com/notifyhub/whatsapp-dispatcher/internal/repository"
	"github.com/notifyhub/whatsapp-dispatcher/internal/service"
	"github.com/notifyhub/whatsapp-dispatcher/internal/template"
)

// app holds the dependencies shared by the send and serve commands.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	reg    *prometheus.Registry
	svc    *service.DispatchService
	tmpl   string

	closers []func()
}

func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// newApp wires configuration, run history, gateway and the dispatch service.
// dryRun swaps the real gateway for one that accepts every message.
func newApp(ctx context.Context, dryRun bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	tmpl, err := template.Load(cfg.TemplateFile)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load message template: %w", err)
	}
	a.tmpl = tmpl

	repo, err := a.newRepository(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var gw gateway.Gateway
	if dryRun {
		logger.Warn("dry run: no message will leave this machine")
		gw = gateway.NewMockGateway()
	} else {
		gw = newGateway(cfg, logger)
	}

	a.reg = prometheus.NewRegistry()
	m := metrics.New(a.reg)

	a.svc = service.NewDispatchService(repo, gw, m, service.Options{
		Template:       tmpl,
		InterSendDelay: cfg.InterSendDelay,
		Limiter:        ratelimiter.New(cfg.SendsPerMinute),
		Normalizer:     phone.NewNormalizer(cfg.CountryCode),
	}, logger)
	return a, nil
}

func (a *app) newRepository(ctx context.Context) (repository.RunRepository, error) {
	if a.cfg.DatabaseURL == "" {
		a.logger.Info("DATABASE_URL not set: run history kept in memory")
		return repository.NewMemoryRunRepository(), nil
	}

	pool, err := db.Connect(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	if err := db.Migrate(a.cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	a.logger.Info("database migrations applied")
	return repository.NewPgRunRepository(pool), nil
}

func newGateway(cfg *config.Config, logger *zap.Logger) gateway.Gateway {
	if cfg.Gateway == config.GatewayWebhook {
		return gateway.NewWebhookGateway(cfg.WebhookURL, cfg.WebhookHealthURL, cfg.WebhookTimeout, logger)
	}
	return gateway.NewBrowserGateway(gateway.BrowserConfig{
		Headless:      cfg.BrowserHeadless,
		UserDataDir:   cfg.BrowserUserData,
		ExecPath:      cfg.BrowserExecPath,
		AuthTimeout:   cfg.AuthTimeout,
		SendTimeout:   cfg.SendTimeout,
		SettleDelay:   cfg.SendSettleDelay,
		PostSendDelay: cfg.PostSendDelay,
	}, logger)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
