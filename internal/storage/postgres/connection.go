package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_records (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	title         TEXT NOT NULL,
	company       TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	salary        TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	quick_apply   BOOLEAN NOT NULL DEFAULT FALSE,
	discovered_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS job_records_user_idx ON job_records (user_id);

CREATE TABLE IF NOT EXISTS swipe_events (
	user_id   TEXT NOT NULL,
	job_id    TEXT NOT NULL,
	direction TEXT NOT NULL,
	at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, job_id)
);

CREATE TABLE IF NOT EXISTS applications (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	job_id     TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	company    TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS applications_user_at_idx ON applications (user_id, applied_at);

CREATE TABLE IF NOT EXISTS profiles (
	user_id    TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS credential_envelopes (
	user_id    TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	payload    BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// DB wraps the relational connection pool
type DB struct {
	*sql.DB
	logger arbor.ILogger
}

// Open connects with lib/pq and applies the schema
func Open(ctx context.Context, logger arbor.ILogger, config *common.PostgresConfig) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if config.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(config.MaxOpenConns)
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Debug().Msg("Postgres schema applied")

	return &DB{DB: conn, logger: logger}, nil
}
