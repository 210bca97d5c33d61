// Package migration creates the metadata schema on first start.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type migrationStep struct {
	Name string
	SQL  string
}

// seq gives rows a stable insertion order when timestamps tie.
var steps = []migrationStep{
	{
		Name: "create_table_files",
		SQL: `CREATE TABLE IF NOT EXISTS files (
  seq          BIGSERIAL   NOT NULL,
  file_id      TEXT        PRIMARY KEY,
  owner_id     TEXT        NOT NULL,
  display_name TEXT        NOT NULL,
  size_bytes   BIGINT      NOT NULL CHECK (size_bytes > 0),
  content_kind TEXT        NOT NULL,
  storage_ref  TEXT        NOT NULL UNIQUE,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  access_count BIGINT      NOT NULL DEFAULT 0 CHECK (access_count >= 0),
  active       BOOLEAN     NOT NULL DEFAULT TRUE,
  deleted_at   TIMESTAMPTZ
);`,
	},
	{
		Name: "create_index_files_owner_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_owner_created_at ON files (owner_id, created_at DESC, seq DESC) WHERE active;`,
	},
	{
		Name: "create_table_audit_logs",
		SQL: `CREATE TABLE IF NOT EXISTS audit_logs (
  seq            BIGSERIAL   PRIMARY KEY,
  actor_id       TEXT        NOT NULL,
  action         TEXT        NOT NULL CHECK (action IN ('upload', 'download', 'delete', 'access_denied')),
  file_id        TEXT,
  ts             TIMESTAMPTZ NOT NULL DEFAULT now(),
  outcome_detail TEXT        NOT NULL DEFAULT '',
  source_ip      TEXT        NOT NULL DEFAULT ''
);`,
	},
	{
		Name: "create_index_audit_logs_actor_ts",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_audit_logs_actor_ts ON audit_logs (actor_id, ts DESC, seq DESC);`,
	},
}

// EnsureMigrated checks if the 'audit_logs' table exists and runs migrations if it doesn't.
// audit_logs is created last, so its presence means every step has run.
func EnsureMigrated(ctx context.Context, db *sql.DB, log zerolog.Logger, dbHost string) error {
	start := time.Now()
	log = log.With().Str("component", "database").Str("db_host", dbHost).Logger()

	log.Info().Str("event", "db_migration_check").Msg("checking schema")

	var exists bool
	query := "SELECT to_regclass('public.audit_logs') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error().Err(err).
			Str("event", "db_migration_failed").
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info().
			Str("event", "db_migration_skip").
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("schema already exists, skipping migration")
		return nil
	}

	log.Info().Str("event", "db_migration_start").Msg("applying schema")

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error().Err(err).
				Str("event", "db_migration_failed").
				Str("migration_step", step.Name).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
				Msg("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Debug().
			Str("event", "db_migration_step").
			Str("migration_step", step.Name).
			Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
			Send()
	}

	log.Info().
		Str("event", "db_migration_success").
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("schema ready")
	return nil
}
