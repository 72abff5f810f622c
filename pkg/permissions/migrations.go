package permissions

import "github.com/platinummonkey/docvault/pkg/storage"

// MigrationComponent identifies this package's migrations in schema_migrations.
const MigrationComponent = "permissions"

// GetMigrations returns the permission store migrations.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create stored_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS stored_permissions (
					id BIGSERIAL PRIMARY KEY,
					namespace VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					UNIQUE(namespace, name)
				);

				CREATE INDEX idx_stored_permissions_namespace ON stored_permissions(namespace);
			`,
		},
	}
}
