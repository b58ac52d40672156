package projection

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStore keeps projections in a SQLite database so read models survive restarts.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// The path ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Ping reports whether the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type recordRow struct {
	Key       string `db:"record_key"`
	Data      string `db:"data"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r recordRow) record() Record {
	return Record{Key: r.Key, Data: []byte(r.Data), UpdatedAt: time.UnixMilli(r.UpdatedAt).UTC()}
}

func (s *SQLiteStore) Checkpoint(ctx context.Context, projection, aggregateID string) (uint64, error) {
	return checkpoint(ctx, s.db, projection, aggregateID)
}

func checkpoint(ctx context.Context, q sqlx.QueryerContext, projection, aggregateID string) (uint64, error) {
	var version uint64

	err := sqlx.GetContext(ctx, q, &version,
		`SELECT version FROM projection_checkpoints WHERE projection = ? AND aggregate_id = ?`,
		projection, aggregateID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, storageUnavailable(err)
	}

	return version, nil
}

func (s *SQLiteStore) Apply(ctx context.Context, projection string, event eventstore.Event, fn func(View) error) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, storageUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := checkpoint(ctx, tx, projection, event.AggregateID)
	if err != nil {
		return false, err
	}

	if current >= event.Version {
		return false, nil
	}

	if fn != nil {
		staged := newStagedView(func(key string) (Record, bool, error) {
			return getRecord(ctx, tx, projection, key)
		}, event.Timestamp)

		if err := fn(staged); err != nil {
			return false, err
		}

		for key := range staged.deletes {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM projection_records WHERE projection = ? AND record_key = ?`, projection, key); err != nil {
				return false, storageUnavailable(err)
			}
		}

		for _, record := range staged.puts {
			if err := putRecord(ctx, tx, projection, record); err != nil {
				return false, err
			}
		}
	}

	if err := putCheckpoint(ctx, tx, projection, event.AggregateID, event.Version); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, storageUnavailable(err)
	}

	return true, nil
}

func getRecord(ctx context.Context, q sqlx.QueryerContext, projection, key string) (Record, bool, error) {
	var row recordRow

	err := sqlx.GetContext(ctx, q, &row,
		`SELECT record_key, data, updated_at FROM projection_records WHERE projection = ? AND record_key = ?`,
		projection, key)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Record{}, false, nil
	case err != nil:
		return Record{}, false, storageUnavailable(err)
	}

	return row.record(), true, nil
}

func putRecord(ctx context.Context, tx *sqlx.Tx, projection string, record Record) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO projection_records (projection, record_key, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (projection, record_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		projection, record.Key, string(record.Data), record.UpdatedAt.UTC().UnixMilli())
	if err != nil {
		return storageUnavailable(err)
	}

	return nil
}

func putCheckpoint(ctx context.Context, tx *sqlx.Tx, projection, aggregateID string, version uint64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO projection_checkpoints (projection, aggregate_id, version) VALUES (?, ?, ?)
		 ON CONFLICT (projection, aggregate_id) DO UPDATE SET version = excluded.version`,
		projection, aggregateID, version)
	if err != nil {
		return storageUnavailable(err)
	}

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, projection, key string) (Record, error) {
	record, ok, err := getRecord(ctx, s.db, projection, key)
	if err != nil {
		return Record{}, err
	}

	if !ok {
		return Record{}, ErrRecordNotFound
	}

	return record, nil
}

func (s *SQLiteStore) List(ctx context.Context, projection string, options ListOptions) ([]Record, error) {
	limit := options.Limit
	if limit <= 0 {
		limit = -1
	}

	var rows []recordRow

	err := s.db.SelectContext(ctx, &rows,
		`SELECT record_key, data, updated_at FROM projection_records
		 WHERE projection = ? AND substr(record_key, 1, ?) = ?
		 ORDER BY record_key LIMIT ? OFFSET ?`,
		projection, len(options.Prefix), options.Prefix, limit, max(options.Offset, 0))
	if err != nil {
		return nil, storageUnavailable(err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}

	return records, nil
}

func (s *SQLiteStore) Export(ctx context.Context, projection string) (State, error) {
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT record_key, data, updated_at FROM projection_records WHERE projection = ?`, projection); err != nil {
		return State{}, storageUnavailable(err)
	}

	var checkpoints []struct {
		AggregateID string `db:"aggregate_id"`
		Version     uint64 `db:"version"`
	}
	if err := s.db.SelectContext(ctx, &checkpoints,
		`SELECT aggregate_id, version FROM projection_checkpoints WHERE projection = ?`, projection); err != nil {
		return State{}, storageUnavailable(err)
	}

	state := NewState()
	for _, row := range rows {
		state.Records[row.Key] = row.record()
	}
	for _, cp := range checkpoints {
		state.Checkpoints[cp.AggregateID] = cp.Version
	}

	return state, nil
}

func (s *SQLiteStore) Replace(ctx context.Context, projection string, state State) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageUnavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"projection_records", "projection_checkpoints"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE projection = ?`, projection); err != nil {
			return storageUnavailable(err)
		}
	}

	for _, record := range state.Records {
		if err := putRecord(ctx, tx, projection, record); err != nil {
			return err
		}
	}

	for aggregateID, version := range state.Checkpoints {
		if err := putCheckpoint(ctx, tx, projection, aggregateID, version); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return storageUnavailable(err)
	}

	return nil
}

// storageUnavailable keeps context errors intact and marks everything else as transient.
func storageUnavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return errors.Join(eventstore.ErrStorageUnavailable, err)
}

var _ Store = (*SQLiteStore)(nil)
