// Package main is the entry point of the CartPerks engine: it loads
// configuration, wires the catalog and cart sources to the evaluation
// pipeline, and serves the overlay-facing HTTP API.
//
// The layout follows Clean Architecture / DDD:
//   - Domain: rule normalization, progress, eligibility, notification state
//   - Application: pass orchestration (commands) and reads (queries)
//   - Infrastructure: postgres, redis, storefront client, coalescer, bus
//   - Interface: HTTP endpoints for the overlay
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartperks/cartperks-engine/config"
	"github.com/cartperks/cartperks-engine/internal/application/command"
	"github.com/cartperks/cartperks-engine/internal/application/eventhandler"
	"github.com/cartperks/cartperks-engine/internal/application/query"
	"github.com/cartperks/cartperks-engine/internal/domain/announce"
	"github.com/cartperks/cartperks-engine/internal/domain/eligibility"
	"github.com/cartperks/cartperks-engine/internal/domain/notification"
	"github.com/cartperks/cartperks-engine/internal/domain/progress"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
	"github.com/cartperks/cartperks-engine/internal/infrastructure/catalogfile"
	"github.com/cartperks/cartperks-engine/internal/infrastructure/condition"
	"github.com/cartperks/cartperks-engine/internal/infrastructure/external/storefront"
	"github.com/cartperks/cartperks-engine/internal/infrastructure/messaging"
	"github.com/cartperks/cartperks-engine/internal/infrastructure/persistence/postgres"
	redisstore "github.com/cartperks/cartperks-engine/internal/infrastructure/persistence/redis"
	"github.com/cartperks/cartperks-engine/internal/infrastructure/scheduler"
	httpserver "github.com/cartperks/cartperks-engine/internal/interface/http"
	"github.com/cartperks/cartperks-engine/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})
	log.Info("starting engine",
		logger.String("version", cfg.App.Version),
		logger.String("environment", string(cfg.App.Environment)),
		logger.String("shop", cfg.App.Shop),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storefront client (cart source + mutator, maybe catalog) ──────────
	sfConfig := storefront.DefaultClientConfig(cfg.Storefront.BaseURL)
	sfConfig.AccessToken = cfg.Storefront.AccessToken
	sfConfig.Timeout = cfg.Storefront.RequestTimeout
	sfConfig.Logger = slog.Default()
	sfClient := storefront.NewClient(sfConfig)

	// ── Catalog source ────────────────────────────────────────────────────
	var (
		catalogSource rule.CatalogSource
		pool          *pgxpool.Pool
	)
	switch cfg.Engine.CatalogSource {
	case config.CatalogSourceFile:
		catalogSource = catalogfile.NewLoader(cfg.Engine.CatalogFile)

	case config.CatalogSourceStorefront:
		catalogSource = sfClient.CatalogSource()

	default:
		dbCfg := postgres.DefaultConfig()
		dbCfg.URL = cfg.Database.URL
		dbCfg.MaxConns = int32(cfg.Database.MaxConns)
		dbCfg.MinConns = int32(cfg.Database.MinConns)
		dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		dbCfg.ConnectTimeout = cfg.Database.ConnectTimeout

		pool, err = postgres.Connect(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		if cfg.Database.RunMigrations {
			if err := postgres.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		catalogSource = postgres.NewCatalogRepo(pool, cfg.App.Shop, slog.Default())
	}

	// ── Flag store ────────────────────────────────────────────────────────
	var flagStore notification.FlagStore
	var redisFlags *redisstore.FlagStore
	if cfg.Redis.Disabled {
		log.Warn("redis disabled, guard flags will not survive restarts")
		flagStore = notification.NewMemoryFlagStore()
	} else {
		redisCfg := redisstore.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout
		redisCfg.SessionTTL = cfg.Redis.SessionTTL

		redisFlags, err = redisstore.NewFlagStore(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisFlags.Close()
		flagStore = redisFlags
	}

	// ── Event bus and handlers ────────────────────────────────────────────
	bus := messaging.NewInMemoryEventBus(messaging.DefaultInMemoryEventBusConfig())
	defer bus.Close()

	analytics := eventhandler.NewOnRewardGrantedHandler(slog.Default())
	if err := analytics.Register(bus); err != nil {
		return fmt.Errorf("register event handlers: %w", err)
	}

	// ── Domain services ───────────────────────────────────────────────────
	var conditions rule.ConditionEvaluator
	if cfg.Features.IsEnabled(config.FeatureCustomConditions) {
		conditions = condition.NewJSONLogicEvaluator()
	}

	normalizer := rule.NewNormalizer()
	calculator := progress.NewCalculator()
	evaluator := eligibility.NewEvaluator(conditions)
	machine := notification.NewMachine(flagStore).WithAutoCloseDelay(cfg.Engine.PopupAutoCloseDelay)
	aggregator := announce.NewAggregator()

	// ── Application handlers ──────────────────────────────────────────────
	enforcer := command.NewEnforceRewardsHandler(sfClient, sfClient, evaluator, log)
	applier := command.NewApplyRewardHandler(sfClient, log)

	runPass := command.NewRunPassHandler(command.RunPassDeps{
		CatalogSource: catalogSource,
		CartSource:    sfClient,
		Normalizer:    normalizer,
		Calculator:    calculator,
		Evaluator:     evaluator,
		Machine:       machine,
		Aggregator:    aggregator,
		Enforcer:      enforcer,
		Applier:       applier,
		Bus:           bus,
		Settings: command.PassSettings{
			EnforcerEnabled: cfg.Features.IsEnabled(config.FeatureEnforcer),
			PopupsEnabled:   cfg.Features.IsEnabled(config.FeaturePopups),
			AutoAddEnabled:  cfg.Features.IsEnabled(config.FeatureAutoAdd),
		},
		Logger: log,
	})

	getProgress := query.NewGetProgressHandler(catalogSource, sfClient, normalizer, calculator)
	getAnnouncements := query.NewGetAnnouncementsHandler(catalogSource, sfClient, normalizer, evaluator, aggregator)

	// ── Refresh coalescer ─────────────────────────────────────────────────
	coalescer := scheduler.NewCoalescer(
		func(ctx context.Context, session shared.SessionToken) {
			if _, err := runPass.Handle(ctx, command.RunPassCommand{Session: session}); err != nil {
				log.Error("coalesced pass failed",
					logger.Session(session),
					logger.Err(err),
				)
			}
		},
		scheduler.WithWindow(cfg.Engine.DebounceWindow),
		scheduler.WithLogger(slog.Default()),
	)
	defer coalescer.Close()

	// ── HTTP server ───────────────────────────────────────────────────────
	serverCfg := httpserver.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		EnableCORS:     cfg.HTTP.EnableCORS,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}

	deps := httpserver.Dependencies{
		RunPass:          runPass,
		GetProgress:      getProgress,
		GetAnnouncements: getAnnouncements,
		Coalescer:        coalescer,
		Logger:           log,
	}
	if pool != nil {
		deps.HealthCheckers = append(deps.HealthCheckers, postgresChecker{pool})
	}
	if redisFlags != nil {
		deps.HealthCheckers = append(deps.HealthCheckers, redisChecker{redisFlags})
	}

	server := httpserver.NewServer(serverCfg, deps)
	errCh := server.StartAsync()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}

	log.Info("engine stopped")
	return nil
}

// postgresChecker adapts the pool to the readiness probe.
type postgresChecker struct {
	pool *pgxpool.Pool
}

func (c postgresChecker) Check(ctx context.Context) error { return c.pool.Ping(ctx) }
func (c postgresChecker) Name() string                    { return "postgres" }

// redisChecker adapts the flag store to the readiness probe.
type redisChecker struct {
	store *redisstore.FlagStore
}

func (c redisChecker) Check(ctx context.Context) error { return c.store.Ping(ctx) }
func (c redisChecker) Name() string                    { return "redis" }
