package roles

import "github.com/platinummonkey/docvault/pkg/storage"

// MigrationComponent identifies this package's migrations in schema_migrations.
const MigrationComponent = "roles"

// GetMigrations returns the authorization graph migrations.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create roles, groups and users tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					label VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS groups (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					label VARCHAR(255) NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					is_superuser BOOLEAN NOT NULL DEFAULT FALSE
				);
			`,
		},
		{
			Version:     2,
			Description: "Create membership tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_groups (
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					UNIQUE(user_id, group_id)
				);

				CREATE TABLE IF NOT EXISTS group_roles (
					group_id BIGINT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					UNIQUE(group_id, role_id)
				);

				CREATE INDEX idx_user_groups_user_id ON user_groups(user_id);
				CREATE INDEX idx_group_roles_group_id ON group_roles(group_id);
			`,
		},
		{
			Version:     3,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					stored_permission_id BIGINT NOT NULL REFERENCES stored_permissions(id) ON DELETE CASCADE,
					UNIQUE(role_id, stored_permission_id)
				);

				CREATE INDEX idx_role_permissions_role_id ON role_permissions(role_id);
			`,
		},
		{
			Version:     4,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					token_digest VARCHAR(64) NOT NULL UNIQUE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}
