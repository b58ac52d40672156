package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore/memengine"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore/postgresengine"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/db"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/runtime"
)

type openedStore struct {
	store  eventstore.AggregateStore
	checks []runtime.ReadyCheck
	close  func()
}

// openStore builds the AggregateStore selected by STORE_DRIVER.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger, obs observability) (openedStore, error) {
	if cfg.StoreDriver == DriverMemory {
		store, err := memengine.NewEventStore(
			memengine.WithLogger(logger),
			memengine.WithMetrics(obs.metrics),
		)
		if err != nil {
			return openedStore{}, err
		}

		return openedStore{store: store, close: func() {}}, nil
	}

	options := []postgresengine.Option{
		postgresengine.WithTableName(cfg.EventTable),
		postgresengine.WithSnapshotTableName(cfg.SnapshotTable),
		postgresengine.WithLogger(logger),
		postgresengine.WithMetrics(obs.metrics),
		postgresengine.WithPollInterval(cfg.FeedPollInterval),
		postgresengine.WithGapTolerance(cfg.FeedGapTolerance),
		postgresengine.WithGapRetention(cfg.FeedGapRetention),
	}
	if obs.contextualLogger != nil {
		options = append(options, postgresengine.WithContextualLogger(obs.contextualLogger))
	}
	if obs.tracing != nil {
		options = append(options, postgresengine.WithTracing(obs.tracing))
	}

	var (
		store  *postgresengine.EventStore
		opened openedStore
		err    error
	)

	switch cfg.StoreDriver {
	case DriverPGX:
		store, opened, err = openPGX(ctx, cfg, options)

	case DriverSQL:
		sqlDB, openErr := db.OpenSQL(ctx, cfg.DatabaseURL, cfg.DB)
		if openErr != nil {
			return openedStore{}, openErr
		}
		opened = openedStore{
			checks: []runtime.ReadyCheck{{Name: "db", Check: db.SQLReadyCheck(sqlDB)}},
			close:  func() { _ = sqlDB.Close() },
		}
		store, err = postgresengine.NewEventStoreFromSQLDB(sqlDB, options...)

	case DriverSQLX:
		sqlxDB, openErr := db.OpenSQLX(ctx, cfg.DatabaseURL, cfg.DB)
		if openErr != nil {
			return openedStore{}, openErr
		}
		opened = openedStore{
			checks: []runtime.ReadyCheck{{Name: "db", Check: db.SQLReadyCheck(sqlxDB.DB)}},
			close:  func() { _ = sqlxDB.Close() },
		}
		store, err = postgresengine.NewEventStoreFromSQLX(sqlxDB, options...)

	default:
		return openedStore{}, fmt.Errorf("%w: %q", errUnknownDriver, cfg.StoreDriver)
	}

	if err != nil {
		if opened.close != nil {
			opened.close()
		}
		return openedStore{}, err
	}

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			opened.close()
			return openedStore{}, err
		}
	}

	opened.store = store

	return opened, nil
}

// openPGX connects the primary pool and, when configured, a replica pool for
// eventually consistent reads.
func openPGX(ctx context.Context, cfg Config, options []postgresengine.Option) (*postgresengine.EventStore, openedStore, error) {
	primary, err := db.Open(ctx, cfg.DatabaseURL, cfg.DB)
	if err != nil {
		return nil, openedStore{}, err
	}

	opened := openedStore{
		checks: []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(primary)}},
		close:  primary.Close,
	}

	if cfg.ReplicaDatabaseURL == "" {
		store, err := postgresengine.NewEventStoreFromPGXPool(primary.Pool, options...)
		return store, opened, err
	}

	replica, err := db.Open(ctx, cfg.ReplicaDatabaseURL, cfg.DB)
	if err != nil {
		primary.Close()
		return nil, openedStore{}, err
	}

	opened.checks = append(opened.checks, runtime.ReadyCheck{Name: "db-replica", Check: db.ReadyCheck(replica)})
	opened.close = func() {
		replica.Close()
		primary.Close()
	}

	store, err := postgresengine.NewEventStoreFromPGXPoolAndReplica(primary.Pool, replica.Pool, options...)

	return store, opened, err
}
