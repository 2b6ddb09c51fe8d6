package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// The canonical schema lives in db/ent/schema; the statements below are the
// rendered DDL per dialect so local and CI runs do not need a migration tool.
var migrations = map[string][]string{
	"postgres": {
		`CREATE TABLE IF NOT EXISTS documents (
			id            UUID PRIMARY KEY,
			owner_id      UUID NOT NULL,
			kind          TEXT NOT NULL,
			content_hash  BYTEA NOT NULL,
			blob_ref      TEXT NOT NULL,
			status        TEXT NOT NULL,
			fields        JSONB,
			confidences   JSONB,
			error_code    TEXT,
			error_message TEXT,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			version       BIGINT NOT NULL DEFAULT 1,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL,
			expires_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS documents_owner_hash ON documents (owner_id, content_hash)`,
		`CREATE INDEX IF NOT EXISTS documents_expires_at ON documents (expires_at)`,
		`CREATE INDEX IF NOT EXISTS documents_status_updated ON documents (status, updated_at)`,
		`CREATE TABLE IF NOT EXISTS line_items (
			id          UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
			position    INTEGER NOT NULL,
			description TEXT NOT NULL,
			quantity    DOUBLE PRECISION NOT NULL,
			unit_price  DOUBLE PRECISION NOT NULL,
			line_total  DOUBLE PRECISION NOT NULL,
			confidence  REAL NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS line_items_document_position ON line_items (document_id, position)`,
	},
	"sqlite": {
		`CREATE TABLE IF NOT EXISTS documents (
			id            TEXT PRIMARY KEY,
			owner_id      TEXT NOT NULL,
			kind          TEXT NOT NULL,
			content_hash  BLOB NOT NULL,
			blob_ref      TEXT NOT NULL,
			status        TEXT NOT NULL,
			fields        TEXT,
			confidences   TEXT,
			error_code    TEXT,
			error_message TEXT,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			version       INTEGER NOT NULL DEFAULT 1,
			created_at    TIMESTAMP NOT NULL,
			updated_at    TIMESTAMP NOT NULL,
			expires_at    TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS documents_owner_hash ON documents (owner_id, content_hash)`,
		`CREATE INDEX IF NOT EXISTS documents_expires_at ON documents (expires_at)`,
		`CREATE INDEX IF NOT EXISTS documents_status_updated ON documents (status, updated_at)`,
		`CREATE TABLE IF NOT EXISTS line_items (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
			position    INTEGER NOT NULL,
			description TEXT NOT NULL,
			quantity    REAL NOT NULL,
			unit_price  REAL NOT NULL,
			line_total  REAL NOT NULL,
			confidence  REAL NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS line_items_document_position ON line_items (document_id, position)`,
	},
}

// Migrate applies the schema for the active driver. Statements are
// idempotent, so running at every startup is safe.
func Migrate(ctx context.Context, db *sql.DB, driver string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	stmts, ok := migrations[driver]
	if !ok {
		return fmt.Errorf("no migrations for driver %q", driver)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			logger.Error("migration statement failed", "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	logger.Info("schema migration complete", "driver", driver)
	return nil
}
