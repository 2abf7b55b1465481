// Package postgres implements the reading and alert stores on PostgreSQL.
// Active-alert uniqueness is enforced by a partial unique index, so
// concurrent detectors cannot both create an alert for the same key.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // registers the "postgres" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id          BIGSERIAL PRIMARY KEY,
	location    TEXT NOT NULL DEFAULT '',
	lat         DOUBLE PRECISION NOT NULL,
	lon         DOUBLE PRECISION NOT NULL,
	temperature DOUBLE PRECISION NOT NULL,
	rainfall    DOUBLE PRECISION NOT NULL DEFAULT 0,
	wind        DOUBLE PRECISION NOT NULL DEFAULT 0,
	salinity    DOUBLE PRECISION,
	oxygen      DOUBLE PRECISION,
	ph          DOUBLE PRECISION,
	condition   TEXT NOT NULL DEFAULT '',
	observed_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_created_at_idx ON readings (created_at);

CREATE TABLE IF NOT EXISTS alerts (
	id            UUID PRIMARY KEY,
	parameter     TEXT NOT NULL,
	value         DOUBLE PRECISION NOT NULL,
	threshold     TEXT NOT NULL,
	severity      TEXT NOT NULL,
	location_name TEXT NOT NULL,
	lat           DOUBLE PRECISION NOT NULL,
	lon           DOUBLE PRECISION NOT NULL,
	status        TEXT NOT NULL,
	message       TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS alerts_active_key_idx
	ON alerts (parameter, lat, lon) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS alerts_status_created_at_idx ON alerts (status, created_at DESC);
`

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
