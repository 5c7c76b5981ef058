// Package cli implements the subcommands of the insights binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/student-insights/config"
	"github.com/alem-hub/student-insights/internal/application/fetcher"
	"github.com/alem-hub/student-insights/internal/application/pipeline"
	"github.com/alem-hub/student-insights/internal/application/synthesis"
	"github.com/alem-hub/student-insights/internal/domain/alert"
	"github.com/alem-hub/student-insights/internal/domain/metrics"
	"github.com/alem-hub/student-insights/internal/domain/shared"
	"github.com/alem-hub/student-insights/internal/infrastructure/messaging"
	"github.com/alem-hub/student-insights/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/student-insights/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/student-insights/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/student-insights/internal/infrastructure/resilience"
	"github.com/alem-hub/student-insights/internal/infrastructure/telemetry"
	"github.com/alem-hub/student-insights/pkg/logger"
	"github.com/alem-hub/student-insights/pkg/retry"
)

// store is what every backend provides.
type store interface {
	metrics.Reader
	metrics.Writer
	metrics.StudentDirectory
	alert.Repository

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) (int, error)
	Close() error
}

var (
	_ store = (*postgres.Store)(nil)
	_ store = (*sqlite.Store)(nil)
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  store

	// Set by buildPipeline.
	reader    metrics.Reader
	breaker   *resilience.BreakerReader
	cache     *redis.Cache
	bus       shared.EventBus
	telemetry *telemetry.Provider
	metrics   *telemetry.Metrics
	pipeline  *pipeline.Orchestrator
}

// loadApp loads configuration, sets up logging and opens the store.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newApp(ctx, cfg)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	l := setupLogger(cfg)

	st, err := openStore(ctx, cfg, l)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: l, store: st}, nil
}

// setupLogger installs a JSON handler in production and a text handler otherwise.
func setupLogger(cfg *config.Config) *slog.Logger {
	l := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  cfg.Observability.SlogLevel(),
		JSON:   cfg.JSONLogs(),
		App:    cfg.App.Name,
	})
	slog.SetDefault(l)
	return l
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		log.Debug("sqlite store opened", "path", cfg.Store.SQLitePath)
		return st, nil

	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig(cfg.Store.DatabaseURL)
		pgCfg.MaxConns = cfg.Store.MaxConns
		pgCfg.MinConns = cfg.Store.MinConns
		pgCfg.MaxConnLifetime = cfg.Store.ConnMaxLifetime

		r := retry.ConnectRetrier(cfg.Store.ConnectAttempts, func(err error, delay time.Duration) {
			log.Warn("postgres not reachable, retrying", "error", err, "delay", delay)
		})
		st, err := retry.DoWithData(ctx, r, func(ctx context.Context) (*postgres.Store, error) {
			return postgres.Open(ctx, pgCfg)
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// buildPipeline wires the event bus, telemetry, Redis and the orchestrator.
func (a *app) buildPipeline(ctx context.Context) error {
	cfg := a.cfg

	a.reader = a.store
	if cfg.Breaker.Enabled {
		a.breaker = resilience.NewBreakerReader(a.store, resilience.Config{
			FailureThreshold: cfg.Breaker.Threshold,
			OpenTimeout:      cfg.Breaker.Timeout,
		}, a.logger)
		a.reader = a.breaker
	}

	provider, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.App.Name,
		Enabled:     cfg.Observability.MetricsEnabled,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Interval:    cfg.Observability.MetricsInterval,
	})
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	a.telemetry = provider
	if a.metrics, err = telemetry.NewMetrics(provider); err != nil {
		return fmt.Errorf("creating instruments: %w", err)
	}

	if err := a.buildBus(ctx); err != nil {
		return err
	}

	rules, err := config.LoadRules(cfg.Pipeline.RulesFile)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	synthOpts := []synthesis.Option{
		synthesis.WithLogger(a.logger),
		synthesis.WithEventPublisher(a.bus),
	}
	if a.cache != nil {
		synthOpts = append(synthOpts, synthesis.WithDedupGuard(redis.NewDedupGuard(a.cache)))
	}
	synth, err := synthesis.New(rules, a.store, synthesis.Config{
		Policy: synthesis.DedupPolicy(cfg.Alerts.DedupPolicy),
		Window: cfg.Alerts.DedupWindow,
	}, synthOpts...)
	if err != nil {
		return fmt.Errorf("creating synthesizer: %w", err)
	}

	a.pipeline, err = pipeline.New(pipeline.Deps{
		Academic:    fetcher.NewAcademic(a.reader, a.logger),
		Attendance:  fetcher.NewAttendance(a.reader, a.logger),
		Engagement:  fetcher.NewEngagement(a.reader, a.logger),
		Synthesizer: synth,
	}, pipeline.Config{
		Strategy:        cfg.Pipeline.Strategy,
		ConcurrentFetch: cfg.Pipeline.ConcurrentFetch,
	},
		pipeline.WithLogger(a.logger),
		pipeline.WithEventPublisher(a.bus),
		pipeline.WithMetrics(a.metrics),
	)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	a.logger.Info("pipeline ready",
		"strategy", a.pipeline.Strategy(),
		"store", cfg.Store.Driver,
		"dedup_policy", cfg.Alerts.DedupPolicy,
		"redis", a.cache != nil,
	)
	return nil
}

// buildBus connects Redis when enabled and creates the event bus, fanning
// events out on Redis pub/sub when configured.
func (a *app) buildBus(ctx context.Context) error {
	if !a.cfg.Redis.Disabled && a.cache == nil {
		if err := a.connectRedis(ctx); err != nil {
			return err
		}
	}

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = a.logger
	local := messaging.NewInMemoryEventBus(busCfg)
	a.bus = local
	if a.cfg.Redis.PublishEvents && a.cache != nil {
		fanout, err := messaging.NewRedisEventBus(local, a.cache, uuid.NewString(), a.logger)
		if err != nil {
			return fmt.Errorf("creating event fan-out: %w", err)
		}
		a.bus = fanout
	}
	return nil
}

func (a *app) connectRedis(ctx context.Context) error {
	rc := redis.DefaultConfig()
	rc.Host = a.cfg.Redis.Host
	rc.Port = a.cfg.Redis.Port
	rc.Password = a.cfg.Redis.Password
	rc.DB = a.cfg.Redis.DB
	rc.PoolSize = a.cfg.Redis.PoolSize
	rc.DialTimeout = a.cfg.Redis.DialTimeout
	rc.ReadTimeout = a.cfg.Redis.ReadTimeout
	rc.WriteTimeout = a.cfg.Redis.WriteTimeout
	if a.cfg.Redis.KeyPrefix != "" {
		rc.KeyPrefix = a.cfg.Redis.KeyPrefix
	}

	r := retry.ConnectRetrier(a.cfg.Store.ConnectAttempts, func(err error, delay time.Duration) {
		a.logger.Warn("redis not reachable, retrying", "addr", rc.Addr(), "error", err, "delay", delay)
	})
	cache, err := retry.DoWithData(ctx, r, func(context.Context) (*redis.Cache, error) {
		return redis.NewCache(rc)
	})
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	a.cache = cache
	return nil
}

// Close releases everything in reverse order of construction.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.bus != nil {
		if c, ok := a.bus.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
