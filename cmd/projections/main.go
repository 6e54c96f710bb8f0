// Package main contains the entrypoint of the projections daemon, which
// projects the commits of a PostgreSQL Event Store into a stream activity
// read model, keeping its checkpoint in PostgreSQL, SQLite or Firestore.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/get-eventually/go-projections/correlation"
	"github.com/get-eventually/go-projections/dispatcher"
	"github.com/get-eventually/go-projections/logger"
	"github.com/get-eventually/go-projections/logger/zaplogger"
	"github.com/get-eventually/go-projections/opentelemetry"
	"github.com/get-eventually/go-projections/polling"
	"github.com/get-eventually/go-projections/postgres"
	"github.com/get-eventually/go-projections/projection"
	"github.com/get-eventually/go-projections/retry"
	"github.com/get-eventually/go-projections/serde"
	"github.com/get-eventually/go-projections/stats"
)

func newLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level, %w", err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = atomicLevel

	return zapConfig.Build()
}

func newRegistry() (*projection.Registry, error) {
	registry := projection.NewRegistry()

	if err := registry.Register(
		streamActivityProjector,
		correlation.WrapFactory(newStreamActivity),
		(*any)(nil),
	); err != nil {
		return nil, err
	}

	return registry, nil
}

//nolint:funlen // Wiring of the whole pipeline.
func run() error {
	config, err := parseConfig()
	if err != nil {
		return fmt.Errorf("projections.main: failed to parse config, %w", err)
	}

	zapLogger, err := newLogger(config.LogLevel)
	if err != nil {
		return fmt.Errorf("projections.main: failed to initialize logger, %w", err)
	}

	//nolint:errcheck // No need for this error to come up if it happens.
	defer zapLogger.Sync()

	log := zaplogger.Wrap(zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := postgres.RunMigrations(config.DatabaseURL); err != nil {
		return fmt.Errorf("projections.main: failed to run migrations, %w", err)
	}

	pool, err := pgxpool.New(ctx, config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("projections.main: failed to connect to the database, %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, createStreamActivityTable); err != nil {
		return fmt.Errorf("projections.main: failed to create read model, %w", err)
	}

	source, err := opentelemetry.NewInstrumentedSource(postgres.NewCommitSource(pool, serde.NewRegistry()))
	if err != nil {
		return fmt.Errorf("projections.main: failed to instrument event source, %w", err)
	}

	adapter, err := polling.NewAdapter(source,
		polling.WithPollInterval(config.Polling.Interval),
		polling.WithPageSize(config.Polling.PageSize),
		polling.WithCacheSize(config.Polling.CacheSize),
		polling.WithLogger(log.Named("polling")),
	)
	if err != nil {
		return fmt.Errorf("projections.main: failed to create polling adapter, %w", err)
	}

	//nolint:errcheck // Closing errors are logged by the adapter.
	defer adapter.Close()

	registry, err := newRegistry()
	if err != nil {
		return fmt.Errorf("projections.main: failed to register projectors, %w", err)
	}

	instrumentedDispatcher, err := opentelemetry.NewInstrumentedDispatcher(projection.NewDispatcher(
		registry,
		postgres.NewUnitOfWorkFactory(pool),
		projection.WithLogger(log.Named("projection")),
	))
	if err != nil {
		return fmt.Errorf("projections.main: failed to instrument dispatcher, %w", err)
	}

	projectionStats := stats.New()

	if err := opentelemetry.RegisterStatsObservers(projectionStats); err != nil {
		return fmt.Errorf("projections.main: failed to register stats metrics, %w", err)
	}

	if err := opentelemetry.RegisterCacheObservers(adapter); err != nil {
		return fmt.Errorf("projections.main: failed to register cache metrics, %w", err)
	}

	checkpoints, closeCheckpoints, err := newCheckpointStore(ctx, config, pool)
	if err != nil {
		return fmt.Errorf("projections.main: failed to create checkpoint store, %w", err)
	}

	//nolint:errcheck // Nothing to do if releasing the store fails on shutdown.
	defer closeCheckpoints()

	durable, err := dispatcher.New(
		config.DispatcherName,
		adapter,
		retry.Dispatcher{
			Dispatcher: instrumentedDispatcher,
			Policy:     retry.For(config.Retry.Interval, config.Retry.MaxDuration),
			Logger:     log.Named("retry"),
		},
		checkpoints,
		dispatcher.WithPersistInterval(config.PersistInterval),
		dispatcher.WithLogger(log.Named("dispatcher")),
		dispatcher.WithStats(projectionStats),
	)
	if err != nil {
		return fmt.Errorf("projections.main: failed to create dispatcher, %w", err)
	}

	//nolint:errcheck // Closing errors are logged by the dispatcher.
	defer durable.Close()

	if err := durable.Start(ctx); err != nil {
		return fmt.Errorf("projections.main: failed to start dispatcher, %w", err)
	}

	log.Info("Projections daemon started",
		logger.With("dispatcher", config.DispatcherName),
		logger.With("checkpointStore", config.Checkpoints.Store),
		logger.With("checkpoint", durable.Checkpoint().String()),
	)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return statsReporter{
			name:   config.DispatcherName,
			stats:  projectionStats,
			source: source,
			logger: log.Named("stats"),
		}.run(ctx, config.StatsInterval)
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("projections.main: %w", err)
	}

	log.Info("Projections daemon stopping")

	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
