package migration

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

var collectionName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// collectionSteps returns the DDL for one JSONB document collection.
func collectionSteps(name string) []migrationStep {
	table := pgx.Identifier{name}.Sanitize()
	return []migrationStep{
		{
			Name: "create_table_" + name,
			SQL: `CREATE TABLE IF NOT EXISTS ` + table + ` (
  id         TEXT        PRIMARY KEY,
  doc        JSONB       NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
		},
		{
			Name: "create_index_" + name + "_doc",
			SQL: `CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{"idx_" + name + "_doc"}.Sanitize() +
				` ON ` + table + ` USING GIN (doc jsonb_path_ops);`,
		},
		{
			Name: "create_index_" + name + "_created_at",
			SQL: `CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{"idx_" + name + "_created_at"}.Sanitize() +
				` ON ` + table + ` (created_at, id);`,
		},
	}
}

// EnsureCollections creates the table and indexes of every named collection
// that does not exist yet. Existing tables are left untouched.
func EnsureCollections(ctx context.Context, db *sql.DB, log *zap.Logger, names ...string) error {
	start := time.Now()

	for _, name := range names {
		if !collectionName.MatchString(name) {
			return fmt.Errorf("invalid collection name %q", name)
		}

		var exists bool
		query := "SELECT to_regclass($1) IS NOT NULL"
		if err := db.QueryRowContext(ctx, query, "public."+name).Scan(&exists); err != nil {
			log.Error("db_migration_failed",
				zap.String("collection", name),
				zap.Error(err),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
			return fmt.Errorf("failed to check collection %s: %w", name, err)
		}
		if exists {
			log.Debug("db_migration_skip", zap.String("collection", name))
			continue
		}

		for _, step := range collectionSteps(name) {
			stepStart := time.Now()
			if _, err := db.ExecContext(ctx, step.SQL); err != nil {
				log.Error("db_migration_failed",
					zap.String("migration_step", step.Name),
					zap.Error(err),
					zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
				)
				return fmt.Errorf("migration step %s failed: %w", step.Name, err)
			}
			log.Info("db_migration_step",
				zap.String("migration_step", step.Name),
				zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
			)
		}
	}

	log.Info("db_migration_success",
		zap.Strings("collections", names),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}
