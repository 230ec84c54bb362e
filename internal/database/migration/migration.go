package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_reference_items",
		SQL: `CREATE TABLE IF NOT EXISTS reference_items (
  resource    TEXT  NOT NULL,
  id          UUID  NOT NULL,
  code        TEXT  NOT NULL DEFAULT '',
  title       TEXT  NOT NULL,
  description TEXT,
  attributes  JSONB NOT NULL DEFAULT '{}'::jsonb,
  PRIMARY KEY (resource, id)
);`,
	},
	{
		Name: "create_index_reference_items_code",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_reference_items_resource_code ON reference_items (resource, code, id);`,
	},
	{
		Name: "create_index_reference_items_attributes",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_reference_items_attributes ON reference_items USING GIN (attributes);`,
	},
	{
		Name: "create_table_data_privacy_settings",
		SQL: `CREATE TABLE IF NOT EXISTS data_privacy_settings (
  resource TEXT NOT NULL,
  property TEXT NOT NULL,
  PRIMARY KEY (resource, property)
);`,
	},
}

// EnsureMigrated creates the schema unless the reference_items table already exists.
// Every step is idempotent, so a partially applied schema is completed on the next start.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *zap.Logger, dbHost string) error {
	start := time.Now()
	log = log.With(zap.String("component", "database"), zap.String("db_host", dbHost))

	log.Info("db_migration_check")

	var exists bool
	query := "SELECT to_regclass('public.reference_items') IS NOT NULL AND to_regclass('public.data_privacy_settings') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			zap.Error(err),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			zap.String("msg", "schema already exists, skipping migration"),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil
	}

	log.Info("db_migration_start", zap.Int("steps", len(steps)))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("migration_step", step.Name),
				zap.Error(err),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	log.Info("db_migration_success", zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}
