package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore/postgresengine/internal/adapters"
)

const (
	defaultEventTableName    = "events"
	defaultSnapshotTableName = "snapshots"
	defaultPollInterval      = 200 * time.Millisecond
	defaultGapTolerance      = time.Second
	defaultGapRetention      = 10 * time.Minute
	maxPendingGapPositions   = 10_000
	pgUniqueViolation        = "23505"
	dialectPostgres          = "postgres"
	cteContext               = "context"
	cteVals                  = "vals"
	aliasMaxVersion          = "max_version"
	colGlobalPosition        = "global_position"
	colEventID               = "event_id"
	colAggregateID           = "aggregate_id"
	colVersion               = "version"
	colEventType             = "event_type"
	colOccurredAt            = "occurred_at"
	colPayload               = "payload"
	colMetadata              = "metadata"
	castUUID                 = "?::uuid"
	castText                 = "?::text"
	castBigint               = "?::bigint"
	castTimestamp            = "?::timestamp with time zone"
	castJsonb                = "?::jsonb"
	selectEventIDAsText      = "event_id::text"
)

// EventStore is the PostgreSQL aggregate store. Create it with one of the constructors.
type EventStore struct {
	db                adapters.DBAdapter
	eventTableName    string
	snapshotTableName string
	pollInterval      time.Duration
	gapTolerance      time.Duration
	gapRetention      time.Duration
	clock             func() time.Time
	logger            eventstore.Logger
	contextualLogger  eventstore.ContextualLogger
	metricsCollector  eventstore.MetricsCollector
	tracingCollector  eventstore.TracingCollector
}

// NewEventStoreFromPGXPool creates a new EventStore using a pgx Pool.
func NewEventStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapter(db), options...)
}

// NewEventStoreFromPGXPoolAndReplica creates a new EventStore whose eventually consistent
// reads go to replica. Appends and strongly consistent reads always use the primary.
func NewEventStoreFromPGXPoolAndReplica(primary, replica *pgxpool.Pool, options ...Option) (*EventStore, error) {
	if primary == nil || replica == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewPGXAdapterWithReplica(primary, replica), options...)
}

// NewEventStoreFromSQLDB creates a new EventStore using a sql.DB.
func NewEventStoreFromSQLDB(db *sql.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLAdapter(db), options...)
}

// NewEventStoreFromSQLX creates a new EventStore using a sqlx.DB.
func NewEventStoreFromSQLX(db *sqlx.DB, options ...Option) (*EventStore, error) {
	if db == nil {
		return nil, eventstore.ErrNilDatabaseConnection
	}

	return newEventStore(adapters.NewSQLXAdapter(db), options...)
}

func newEventStore(db adapters.DBAdapter, options ...Option) (*EventStore, error) {
	es := &EventStore{
		db:                db,
		eventTableName:    defaultEventTableName,
		snapshotTableName: defaultSnapshotTableName,
		pollInterval:      defaultPollInterval,
		gapTolerance:      defaultGapTolerance,
		gapRetention:      defaultGapRetention,
		clock:             time.Now,
	}

	for _, option := range options {
		if err := option(es); err != nil {
			return nil, err
		}
	}

	return es, nil
}

// Append commits events for one aggregate if its highest version equals expectedVersion.
//
// All events are inserted by a single statement, so either all of them become visible or none.
func (es *EventStore) Append(
	ctx context.Context,
	aggregateID string,
	expectedVersion uint64,
	events []eventstore.StorableEvent,
) ([]eventstore.Event, error) {

	if aggregateID == "" {
		return nil, eventstore.ErrEmptyAggregateID
	}

	if len(events) == 0 {
		return nil, eventstore.ErrNoEventsToAppend
	}

	tracer, ctx := es.startAppendTracing(ctx, aggregateID, len(events), expectedVersion)
	metrics := es.startAppendMetrics(ctx)

	pending, err := es.buildPendingEvents(aggregateID, expectedVersion, events)
	if err != nil {
		tracer.finishError(errorTypeBuildEvents)
		return nil, err
	}

	sqlQuery, err := es.buildAppendQuery(aggregateID, expectedVersion, pending)
	if err != nil {
		es.logError(ctx, logMsgBuildInsertQueryFailed, err, logAttrEventCount, len(events))
		tracer.finishError(errorTypeBuildQuery)

		return nil, err
	}

	start := time.Now()
	positions, err := es.executeAppendQuery(eventstore.WithStrongConsistency(ctx), sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(ctx, sqlQuery, logActionAppend, duration)

	switch {
	case isUniqueViolation(err):
		return nil, es.conflict(ctx, aggregateID, expectedVersion, tracer, metrics)

	case err != nil:
		es.logError(ctx, logMsgDBExecFailed, err, logAttrAggregateID, aggregateID)
		metrics.recordError(errorTypeDatabaseExec, duration)
		tracer.finishError(errorTypeDatabaseExec)

		return nil, errors.Join(eventstore.ErrStorageUnavailable, err)

	case len(positions) < len(pending):
		return nil, es.conflict(ctx, aggregateID, expectedVersion, tracer, metrics)
	}

	for i := range pending {
		pending[i].Position = positions[pending[i].Version]
	}

	es.logOperation(ctx, logMsgEventsAppended,
		logAttrAggregateID, aggregateID,
		logAttrEventCount, len(pending),
		logAttrVersion, pending[len(pending)-1].Version,
		logAttrDurationMS, toMilliseconds(duration))
	metrics.recordSuccess(len(pending), duration)
	tracer.finishSuccess(len(pending))

	return pending, nil
}

// conflict builds the ConflictError, looking up the actual version on a best effort basis.
func (es *EventStore) conflict(
	ctx context.Context,
	aggregateID string,
	expectedVersion uint64,
	tracer *appendTracingObserver,
	metrics *appendMetricsObserver,
) error {

	actual, err := es.Version(eventstore.WithStrongConsistency(ctx), aggregateID)
	if err != nil {
		es.logError(ctx, logMsgVersionLookupFailed, err, logAttrAggregateID, aggregateID)
	}

	es.logOperation(ctx, logMsgConcurrencyConflict,
		logAttrAggregateID, aggregateID,
		logAttrExpectedVersion, expectedVersion,
		logAttrActualVersion, actual)
	metrics.recordConcurrencyConflict()
	tracer.finishConflict(expectedVersion, actual)

	return &eventstore.ConflictError{
		AggregateID:     aggregateID,
		ExpectedVersion: expectedVersion,
		ActualVersion:   actual,
	}
}

func (es *EventStore) buildPendingEvents(
	aggregateID string,
	expectedVersion uint64,
	events []eventstore.StorableEvent,
) ([]eventstore.Event, error) {

	pending := make([]eventstore.Event, 0, len(events))
	now := es.clock().UTC()

	for i, event := range events {
		if event.EventType == "" {
			return nil, eventstore.ErrEmptyEventType
		}

		eventID, err := uuid.NewV7()
		if err != nil {
			return nil, errors.Join(eventstore.ErrStorageUnavailable, err)
		}

		occurredAt := event.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = now
		}

		pending = append(pending, eventstore.Event{
			EventID:     eventID.String(),
			EventType:   event.EventType,
			AggregateID: aggregateID,
			Version:     expectedVersion + uint64(i) + 1,
			Timestamp:   occurredAt.UTC(),
			Payload:     event.PayloadJSON,
			Metadata:    event.Metadata,
		})
	}

	return pending, nil
}

// executeAppendQuery runs the insert and maps each returned version to its global position.
func (es *EventStore) executeAppendQuery(ctx context.Context, sqlQuery string) (map[uint64]uint64, error) {
	rows, err := es.db.Query(ctx, sqlQuery)
	if err != nil {
		return nil, err
	}
	defer es.closeRows(ctx, rows)

	positions := make(map[uint64]uint64)

	for rows.Next() {
		var position, version int64
		if err := rows.Scan(&position, &version); err != nil {
			return nil, err
		}

		positions[uint64(version)] = uint64(position)
	}

	return positions, rows.Err()
}

// buildAppendQuery builds
//
//	WITH context AS (SELECT MAX(version) AS max_version FROM events WHERE aggregate_id = ?),
//	     vals AS (SELECT ... UNION ALL SELECT ...)
//	INSERT INTO events (...) SELECT vals.* FROM context, vals
//	WHERE COALESCE(max_version, 0) = expectedVersion
//	RETURNING global_position, version
func (es *EventStore) buildAppendQuery(
	aggregateID string,
	expectedVersion uint64,
	events []eventstore.Event,
) (string, error) {

	builder := goqu.Dialect(dialectPostgres)

	cteStmt := builder.
		From(es.eventTableName).
		Select(goqu.MAX(colVersion).As(aliasMaxVersion)).
		Where(goqu.C(colAggregateID).Eq(aggregateID))

	var valuesStmt *goqu.SelectDataset

	for _, event := range events {
		metadataJSON, err := eventstore.StorableEvent{Metadata: event.Metadata}.MetadataJSON()
		if err != nil {
			return "", errors.Join(ErrBuildingQueryFailed, err)
		}

		row := builder.Select(
			goqu.L(castUUID, event.EventID).As(colEventID),
			goqu.L(castText, event.AggregateID).As(colAggregateID),
			goqu.L(castBigint, event.Version).As(colVersion),
			goqu.L(castText, event.EventType).As(colEventType),
			goqu.L(castTimestamp, event.Timestamp).As(colOccurredAt),
			goqu.L(castJsonb, string(event.Payload)).As(colPayload),
			goqu.L(castJsonb, string(metadataJSON)).As(colMetadata),
		)

		if valuesStmt == nil {
			valuesStmt = row
			continue
		}

		valuesStmt = valuesStmt.UnionAll(row)
	}

	insertStmt := builder.
		Insert(es.eventTableName).
		Cols(colEventID, colAggregateID, colVersion, colEventType, colOccurredAt, colPayload, colMetadata).
		With(cteContext, cteStmt).
		With(cteVals, valuesStmt).
		FromQuery(
			builder.From(cteContext, cteVals).
				Select(
					valsColumn(colEventID),
					valsColumn(colAggregateID),
					valsColumn(colVersion),
					valsColumn(colEventType),
					valsColumn(colOccurredAt),
					valsColumn(colPayload),
					valsColumn(colMetadata),
				).
				Where(goqu.COALESCE(goqu.C(aliasMaxVersion), 0).Eq(goqu.V(expectedVersion))),
		).
		Returning(colGlobalPosition, colVersion)

	sqlQuery, _, err := insertStmt.ToSQL()
	if err != nil {
		return "", errors.Join(ErrBuildingQueryFailed, err)
	}

	return sqlQuery, nil
}

func valsColumn(column string) string {
	return fmt.Sprintf("%s.%s", cteVals, column)
}

// ReadEvents yields the aggregate's events in version order, one page per round trip.
func (es *EventStore) ReadEvents(
	ctx context.Context,
	aggregateID string,
	options ...eventstore.ReadOption,
) iter.Seq2[eventstore.Event, error] {

	opts := eventstore.BuildReadOptions(options...)

	return func(yield func(eventstore.Event, error) bool) {
		next := opts.FromVersion

		for {
			where := []goqu.Expression{
				goqu.C(colAggregateID).Eq(aggregateID),
				goqu.C(colVersion).Gte(next),
			}
			if opts.ToVersion > 0 {
				where = append(where, goqu.C(colVersion).Lte(opts.ToVersion))
			}

			page, err := es.readPage(ctx, logActionReadEvents, where, colVersion, opts.PageSize)
			if err != nil {
				yield(eventstore.Event{}, err)
				return
			}

			for _, event := range page {
				if !yield(event, nil) {
					return
				}
			}

			if len(page) < opts.PageSize {
				return
			}

			next = page[len(page)-1].Version + 1
		}
	}
}

// ReadAll yields every event with a global position greater than fromPosition.
//
// Positions are assigned when a row is inserted, not when it commits, so a concurrent
// transaction can still fill a lower position later. Consumers that need to see every
// event use Subscribe, which waits for such gaps.
func (es *EventStore) ReadAll(ctx context.Context, fromPosition uint64) iter.Seq2[eventstore.Event, error] {
	return func(yield func(eventstore.Event, error) bool) {
		next := fromPosition

		for {
			where := []goqu.Expression{goqu.C(colGlobalPosition).Gt(next)}

			page, err := es.readPage(ctx, logActionReadAll, where, colGlobalPosition, eventstore.DefaultReadPageSize)
			if err != nil {
				yield(eventstore.Event{}, err)
				return
			}

			for _, event := range page {
				if !yield(event, nil) {
					return
				}
			}

			if len(page) < eventstore.DefaultReadPageSize {
				return
			}

			next = page[len(page)-1].Position
		}
	}
}

// readPositions fetches the events stored at the given global positions, in position order.
func (es *EventStore) readPositions(ctx context.Context, positions []uint64) ([]eventstore.Event, error) {
	if len(positions) == 0 {
		return nil, nil
	}

	where := []goqu.Expression{goqu.C(colGlobalPosition).In(positions)}

	return es.readPage(ctx, logActionReadPositions, where, colGlobalPosition, len(positions))
}

func (es *EventStore) readPage(
	ctx context.Context,
	action string,
	where []goqu.Expression,
	orderBy string,
	limit int,
) ([]eventstore.Event, error) {

	tracer, ctx := es.startReadTracing(ctx, action)
	metrics := es.startReadMetrics(ctx, action)

	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		From(es.eventTableName).
		Select(
			colGlobalPosition,
			goqu.L(selectEventIDAsText),
			colAggregateID,
			colVersion,
			colEventType,
			colOccurredAt,
			colPayload,
			colMetadata,
		).
		Where(where...).
		Order(goqu.I(orderBy).Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		es.logError(ctx, logMsgBuildSelectQueryFailed, err)
		tracer.finishError(errorTypeBuildQuery)

		return nil, errors.Join(ErrBuildingQueryFailed, err)
	}

	start := time.Now()
	rows, err := es.db.Query(ctx, sqlQuery)
	duration := time.Since(start)
	es.logQueryWithDuration(ctx, sqlQuery, action, duration)

	if err != nil {
		es.logError(ctx, logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)
		metrics.recordError(errorTypeDatabaseQuery, duration)
		tracer.finishError(errorTypeDatabaseQuery)

		return nil, errors.Join(eventstore.ErrStorageUnavailable, err)
	}
	defer es.closeRows(ctx, rows)

	page, err := es.scanEvents(ctx, rows)
	if err != nil {
		metrics.recordError(errorTypeRowScan, duration)
		tracer.finishError(errorTypeRowScan)

		return nil, err
	}

	metrics.recordSuccess(len(page), duration)
	tracer.finishSuccess(len(page))

	return page, nil
}

func (es *EventStore) scanEvents(ctx context.Context, rows adapters.DBRows) ([]eventstore.Event, error) {
	page := make([]eventstore.Event, 0)

	for rows.Next() {
		var (
			event             eventstore.Event
			position, version int64
			payload, metadata []byte
		)

		err := rows.Scan(
			&position,
			&event.EventID,
			&event.AggregateID,
			&version,
			&event.EventType,
			&event.Timestamp,
			&payload,
			&metadata,
		)
		if err != nil {
			es.logError(ctx, logMsgScanRowFailed, err)
			return nil, errors.Join(eventstore.ErrStorageUnavailable, ErrScanningDBRowFailed, err)
		}

		decoded, err := eventstore.DecodeMetadata(metadata)
		if err != nil {
			es.logError(ctx, logMsgScanRowFailed, err, logAttrEventType, event.EventType)
			return nil, errors.Join(ErrScanningDBRowFailed, err)
		}

		event.Position = uint64(position)
		event.Version = uint64(version)
		event.Timestamp = event.Timestamp.UTC()
		event.Payload = payload
		event.Metadata = decoded
		page = append(page, event)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Join(eventstore.ErrStorageUnavailable, err)
	}

	return page, nil
}

// Version returns the aggregate's highest committed version, zero when it has no events.
func (es *EventStore) Version(ctx context.Context, aggregateID string) (uint64, error) {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		From(es.eventTableName).
		Select(goqu.COALESCE(goqu.MAX(colVersion), 0)).
		Where(goqu.C(colAggregateID).Eq(aggregateID)).
		ToSQL()
	if err != nil {
		return 0, errors.Join(ErrBuildingQueryFailed, err)
	}

	rows, err := es.db.Query(ctx, sqlQuery)
	if err != nil {
		es.logError(ctx, logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)
		return 0, errors.Join(eventstore.ErrStorageUnavailable, err)
	}
	defer es.closeRows(ctx, rows)

	var version int64
	if rows.Next() {
		if err := rows.Scan(&version); err != nil {
			return 0, errors.Join(eventstore.ErrStorageUnavailable, ErrScanningDBRowFailed, err)
		}
	}

	if err := rows.Err(); err != nil {
		return 0, errors.Join(eventstore.ErrStorageUnavailable, err)
	}

	return uint64(version), nil
}

func (es *EventStore) closeRows(ctx context.Context, rows adapters.DBRows) {
	if err := rows.Close(); err != nil {
		es.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, err.Error())
	}
}

// isUniqueViolation detects a lost primary key race for pgx and lib/pq drivers alike.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}

	return false
}
