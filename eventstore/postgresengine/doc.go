// Package postgresengine implements eventstore.AggregateStore on PostgreSQL.
//
// Every event row carries its aggregate id and version under a composite primary key, plus a
// bigserial global position used by the change feed. Append is a single INSERT ... SELECT
// guarded by the aggregate's current max version, so the compare-and-swap and the write
// happen in one statement. A concurrent writer that slips past the guard hits the primary
// key and is reported as a concurrency conflict as well.
//
// The engine runs on a pgx pool (optionally with a read replica), database/sql or sqlx:
//
//	pool, _ := pgxpool.New(ctx, dsn)
//	store, _ := postgresengine.NewEventStoreFromPGXPool(pool,
//		postgresengine.WithLogger(logger),
//		postgresengine.WithMetrics(metrics),
//	)
//	_ = store.Migrate(ctx)
//
//	committed, err := store.Append(ctx, "order-42", 0, events)
package postgresengine
