package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a single schema migration owned by a component.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// RunMigrations applies the pending migrations for a component, tracking
// progress per component in the schema_migrations table. Each migration runs
// in its own transaction.
func RunMigrations(ctx context.Context, db *sql.DB, component string, migrations []Migration) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			component TEXT NOT NULL,
			version INTEGER NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(component, version)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db, component)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s/%d (%s) failed: %w",
				component, migration.Version, migration.Description, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schema_migrations (component, version) VALUES ($1, $2)
		`, component, migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s/%d: %w", component, migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s/%d: %w", component, migration.Version, err)
		}
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB, component string) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT version FROM schema_migrations WHERE component = $1
	`, component)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
