package postgresengine

import (
	"context"
	"errors"
	"fmt"
)

// Migrate creates the events and snapshots tables and their indexes if they do not exist.
func (es *EventStore) Migrate(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	global_position BIGSERIAL NOT NULL UNIQUE,
	event_id UUID NOT NULL UNIQUE,
	aggregate_id TEXT NOT NULL,
	version BIGINT NOT NULL CHECK (version > 0),
	event_type TEXT NOT NULL,
	occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
	payload JSONB NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (aggregate_id, version)
)`, es.eventTableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_event_type_idx ON %[1]s (event_type)`, es.eventTableName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	aggregate_id TEXT PRIMARY KEY,
	version BIGINT NOT NULL CHECK (version > 0),
	state JSONB NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	expires_at TIMESTAMP WITH TIME ZONE
)`, es.snapshotTableName),
	}

	for _, statement := range statements {
		if _, err := es.db.Exec(ctx, statement); err != nil {
			es.logError(ctx, logMsgDBExecFailed, err, logAttrQuery, statement)
			return errors.Join(ErrMigrationFailed, err)
		}
	}

	return nil
}
