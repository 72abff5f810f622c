package acls

import "github.com/platinummonkey/docvault/pkg/storage"

// MigrationComponent identifies this package's migrations in schema_migrations.
const MigrationComponent = "acls"

// GetMigrations returns the ACL store migrations.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create access_control_lists table",
			SQL: `
				CREATE TABLE IF NOT EXISTS access_control_lists (
					id BIGSERIAL PRIMARY KEY,
					object_type VARCHAR(255) NOT NULL,
					object_id BIGINT NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					UNIQUE(object_type, object_id, role_id)
				);

				CREATE INDEX idx_acls_object ON access_control_lists(object_type, object_id);
				CREATE INDEX idx_acls_role_id ON access_control_lists(role_id);
			`,
		},
		{
			Version:     2,
			Description: "Create acl_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS acl_permissions (
					acl_id BIGINT NOT NULL REFERENCES access_control_lists(id) ON DELETE CASCADE,
					stored_permission_id BIGINT NOT NULL REFERENCES stored_permissions(id) ON DELETE CASCADE,
					UNIQUE(acl_id, stored_permission_id)
				);

				CREATE INDEX idx_acl_permissions_acl_id ON acl_permissions(acl_id);
				CREATE INDEX idx_acl_permissions_permission_id ON acl_permissions(stored_permission_id);
			`,
		},
	}
}
