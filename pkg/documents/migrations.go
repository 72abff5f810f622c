package documents

import "github.com/platinummonkey/docvault/pkg/storage"

// MigrationComponent identifies this package's migrations in schema_migrations.
const MigrationComponent = "documents"

// GetMigrations returns the document store migrations.
func GetMigrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create document_types and documents tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS document_types (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					label VARCHAR(255) NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS documents (
					id BIGSERIAL PRIMARY KEY,
					uuid UUID NOT NULL UNIQUE,
					document_type_id BIGINT NOT NULL REFERENCES document_types(id),
					label VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					trashed BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);

				CREATE INDEX idx_documents_type_id ON documents(document_type_id);
				CREATE INDEX idx_documents_trashed ON documents(trashed);
			`,
		},
		{
			Version:     2,
			Description: "Create cabinets table and cabinet membership",
			SQL: `
				CREATE TABLE IF NOT EXISTS cabinets (
					id BIGSERIAL PRIMARY KEY,
					label VARCHAR(255) NOT NULL,
					parent_id BIGINT REFERENCES cabinets(id) ON DELETE CASCADE
				);

				CREATE TABLE IF NOT EXISTS cabinet_documents (
					cabinet_id BIGINT NOT NULL REFERENCES cabinets(id) ON DELETE CASCADE,
					document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
					UNIQUE(cabinet_id, document_id)
				);

				CREATE INDEX idx_cabinets_parent_id ON cabinets(parent_id);
				CREATE INDEX idx_cabinet_documents_document_id ON cabinet_documents(document_id);
			`,
		},
		{
			Version:     3,
			Description: "Create tags table and tag attachments",
			SQL: `
				CREATE TABLE IF NOT EXISTS tags (
					id BIGSERIAL PRIMARY KEY,
					label VARCHAR(255) NOT NULL UNIQUE,
					color VARCHAR(32) NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS document_tags (
					document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
					tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
					UNIQUE(document_id, tag_id)
				);

				CREATE INDEX idx_document_tags_tag_id ON document_tags(tag_id);
			`,
		},
	}
}
