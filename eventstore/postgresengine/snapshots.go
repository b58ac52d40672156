package postgresengine

import (
	"context"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

const (
	colState     = "state"
	colCreatedAt = "created_at"
	colExpiresAt = "expires_at"
)

// PutSnapshot upserts the aggregate's snapshot. A stored snapshot with a higher version is kept.
func (es *EventStore) PutSnapshot(ctx context.Context, snapshot eventstore.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return errors.Join(eventstore.ErrSavingSnapshotFailed, err)
	}

	createdAt := snapshot.CreatedAt
	if createdAt.IsZero() {
		createdAt = es.clock()
	}

	var expiresAt any
	if snapshot.TTL > 0 {
		expiresAt = goqu.L(castTimestamp, createdAt.Add(snapshot.TTL).UTC())
	}

	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		Insert(es.snapshotTableName).
		Rows(goqu.Record{
			colAggregateID: snapshot.AggregateID,
			colVersion:     snapshot.Version,
			colState:       goqu.L(castJsonb, string(snapshot.State)),
			colCreatedAt:   goqu.L(castTimestamp, createdAt.UTC()),
			colExpiresAt:   expiresAt,
		}).
		OnConflict(goqu.DoUpdate(colAggregateID, goqu.Record{
			colVersion:   goqu.L("EXCLUDED." + colVersion),
			colState:     goqu.L("EXCLUDED." + colState),
			colCreatedAt: goqu.L("EXCLUDED." + colCreatedAt),
			colExpiresAt: goqu.L("EXCLUDED." + colExpiresAt),
		}).Where(goqu.L(es.snapshotTableName+"."+colVersion+" <= EXCLUDED."+colVersion))).
		ToSQL()
	if err != nil {
		return errors.Join(eventstore.ErrSavingSnapshotFailed, ErrBuildingQueryFailed, err)
	}

	start := time.Now()
	_, err = es.db.Exec(ctx, sqlQuery)
	es.logQueryWithDuration(ctx, sqlQuery, logActionSnapshot, time.Since(start))

	if err != nil {
		es.logError(ctx, logMsgDBExecFailed, err, logAttrAggregateID, snapshot.AggregateID)
		return errors.Join(eventstore.ErrSavingSnapshotFailed, eventstore.ErrStorageUnavailable, err)
	}

	es.logOperation(ctx, logMsgSnapshotSaved,
		logAttrAggregateID, snapshot.AggregateID,
		logAttrVersion, snapshot.Version)

	return nil
}

// ReadLatestSnapshot returns nil when the aggregate has no unexpired snapshot.
func (es *EventStore) ReadLatestSnapshot(ctx context.Context, aggregateID string) (*eventstore.Snapshot, error) {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		From(es.snapshotTableName).
		Select(colVersion, colState, colCreatedAt, colExpiresAt).
		Where(
			goqu.C(colAggregateID).Eq(aggregateID),
			goqu.Or(
				goqu.C(colExpiresAt).IsNull(),
				goqu.C(colExpiresAt).Gt(goqu.L(castTimestamp, es.clock().UTC())),
			),
		).
		ToSQL()
	if err != nil {
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, ErrBuildingQueryFailed, err)
	}

	rows, err := es.db.Query(ctx, sqlQuery)
	if err != nil {
		es.logError(ctx, logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, eventstore.ErrStorageUnavailable, err)
	}
	defer es.closeRows(ctx, rows)

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, eventstore.ErrStorageUnavailable, err)
		}

		return nil, nil
	}

	var (
		version   int64
		state     []byte
		createdAt time.Time
		expiresAt *time.Time
	)

	if err := rows.Scan(&version, &state, &createdAt, &expiresAt); err != nil {
		return nil, errors.Join(eventstore.ErrLoadingSnapshotFailed, ErrScanningDBRowFailed, err)
	}

	snapshot := &eventstore.Snapshot{
		AggregateID: aggregateID,
		Version:     uint64(version),
		State:       state,
		CreatedAt:   createdAt.UTC(),
	}

	if expiresAt != nil {
		snapshot.TTL = expiresAt.Sub(createdAt)
	}

	return snapshot, nil
}
