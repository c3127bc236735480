package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"setup-outcome-lab/internal/config"
	"setup-outcome-lab/internal/fixtures"
	"setup-outcome-lab/internal/lock"
	"setup-outcome-lab/internal/logging"
	"setup-outcome-lab/internal/observability"
	"setup-outcome-lab/internal/outcome"
	"setup-outcome-lab/internal/settlement"
	"setup-outcome-lab/internal/storage"
	"setup-outcome-lab/internal/storage/breaker"
	chstore "setup-outcome-lab/internal/storage/clickhouse"
	"setup-outcome-lab/internal/storage/memory"
	pgstore "setup-outcome-lab/internal/storage/postgres"
	sqlitestore "setup-outcome-lab/internal/storage/sqlite"
)

// app holds everything a subcommand needs.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	stores   *stores
	locker   settlement.Locker
	closers  []func()
}

// stores holds the storage implementations selected by config.
type stores struct {
	snapshots storage.SnapshotStore
	candles   storage.CandleStore
	outcomes  storage.OutcomeStore
	audit     storage.AuditRunStore
}

func loadConfig(path string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logging.New(logging.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
	return cfg, logger, nil
}

// newApp loads config and connects every backend.
func newApp(ctx context.Context, flags *rootFlags) (*app, error) {
	cfg, logger, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  observability.NewMetrics(registry, observability.DefaultNamespace),
	}

	if err := a.createStores(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.createLocker(ctx); err != nil {
		a.close()
		return nil, err
	}

	if flags.demo {
		if err := fixtures.Load(ctx, fixtures.Demo(time.Now()), a.stores.snapshots, a.stores.candles); err != nil {
			a.close()
			return nil, fmt.Errorf("load demo fixtures: %w", err)
		}
	}
	if flags.fixtures != "" {
		if err := fixtures.LoadFile(ctx, flags.fixtures, a.stores.snapshots, a.stores.candles); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

// createStores connects the configured backends. Snapshots and audit runs
// live in PostgreSQL whenever a DSN is configured, verdicts follow the
// storage backend, and candles come from ClickHouse when configured.
func (a *app) createStores(ctx context.Context) error {
	cfg := a.cfg
	s := &stores{
		snapshots: memory.NewSnapshotStore(),
		candles:   memory.NewCandleStore(),
		outcomes:  memory.NewOutcomeStore(),
		audit:     memory.NewAuditRunStore(),
	}

	if cfg.Postgres.DSN != "" && cfg.Storage.Backend != config.BackendMemory {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		s.snapshots = pgstore.NewSnapshotStore(pool)
		s.audit = pgstore.NewAuditRunStore(pool)
		if cfg.Storage.Backend == config.BackendPostgres {
			s.outcomes = pgstore.NewOutcomeStore(pool)
		}
	}

	if cfg.Storage.Backend == config.BackendSQLite {
		st, err := sqlitestore.NewOutcomeStore(cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = st.Close() })
		s.outcomes = st
	}

	if cfg.ClickHouse.DSN != "" {
		conn, err := connectClickhouse(ctx, cfg.ClickHouse)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		s.candles = chstore.NewCandleStore(conn)
	}

	bs := breaker.DefaultSettings("candles")
	bs.ConsecutiveFailures = uint32(cfg.Breaker.MaxFailures)
	bs.Timeout = cfg.Breaker.OpenTimeout.Duration
	if cfg.ClickHouse.DSN == "" {
		bs.Database = "memory"
	}
	s.candles = breaker.NewCandleStore(s.candles, bs, a.metrics)

	a.stores = s
	a.logger.Info().
		Str("backend", cfg.Storage.Backend).
		Bool("postgres", cfg.Postgres.DSN != "" && cfg.Storage.Backend != config.BackendMemory).
		Bool("clickhouse", cfg.ClickHouse.DSN != "").
		Msg("stores ready")
	return nil
}

func connectClickhouse(ctx context.Context, cfg config.ClickHouseConfig) (*chstore.Conn, error) {
	var (
		conn *chstore.Conn
		err  error
	)
	if cfg.Database != "" {
		conn, err = chstore.NewConnWithDatabase(ctx, cfg.DSN, cfg.Database)
	} else {
		conn, err = chstore.NewConn(ctx, cfg.DSN)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	return conn, nil
}

func (a *app) createLocker(ctx context.Context) error {
	if !a.cfg.Redis.Enabled {
		a.locker = lock.NewMemoryLocker()
		return nil
	}
	rdb, err := lock.Dial(ctx, lock.RedisOptions{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	a.locker = lock.NewRedisLocker(rdb)
	return nil
}

// newJob wires the settlement pipeline over the app's stores.
func (a *app) newJob() (*settlement.Job, error) {
	resolver, err := a.cfg.SameBarResolver()
	if err != nil {
		return nil, err
	}

	evaluator := outcome.NewEvaluator(outcome.Options{
		Candles:    a.stores.candles,
		WindowBars: a.cfg.Evaluation.WindowBars,
		Resolver:   resolver,
		Guardrail:  a.cfg.Guardrail(),
		Logger:     a.logger,
	})
	selector := settlement.NewSelector(settlement.SelectorOptions{
		Snapshots: a.stores.snapshots,
		PageSize:  a.cfg.Batch.PageSize,
		Logger:    a.logger,
	})
	runner := settlement.NewRunner(settlement.RunnerOptions{
		Selector:  selector,
		Evaluator: evaluator,
		Outcomes:  a.stores.outcomes,
		Recorder:  a.metrics,
		Logger:    a.logger,
	})
	return settlement.NewJob(settlement.JobOptions{
		Runner:   runner,
		Locker:   a.locker,
		LockTTL:  a.cfg.Batch.LockTTL.Duration,
		Audit:    a.stores.audit,
		Recorder: a.metrics,
		Logger:   a.logger,
	}), nil
}

// defaultParams returns batch parameters from config.
func (a *app) defaultParams() settlement.RunParams {
	return settlement.RunParams{
		SelectParams: settlement.SelectParams{
			DaysBack: a.cfg.Batch.DaysBack,
			Limit:    a.cfg.Batch.Limit,
		},
	}
}

// close releases connections in reverse order.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
