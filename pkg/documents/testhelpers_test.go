package documents

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/docvault/pkg/acls"
	"github.com/platinummonkey/docvault/pkg/permissions"
	"github.com/platinummonkey/docvault/pkg/roles"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE stored_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace TEXT NOT NULL,
			name TEXT NOT NULL,
			UNIQUE(namespace, name)
		);

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			label TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			label TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			is_superuser INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE user_groups (
			user_id INTEGER NOT NULL,
			group_id INTEGER NOT NULL,
			UNIQUE(user_id, group_id)
		);

		CREATE TABLE group_roles (
			group_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL,
			UNIQUE(group_id, role_id)
		);

		CREATE TABLE role_permissions (
			role_id INTEGER NOT NULL,
			stored_permission_id INTEGER NOT NULL,
			UNIQUE(role_id, stored_permission_id)
		);

		CREATE TABLE access_control_lists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			object_type TEXT NOT NULL,
			object_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL,
			UNIQUE(object_type, object_id, role_id)
		);

		CREATE TABLE acl_permissions (
			acl_id INTEGER NOT NULL,
			stored_permission_id INTEGER NOT NULL,
			UNIQUE(acl_id, stored_permission_id)
		);

		CREATE TABLE document_types (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			label TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			document_type_id INTEGER NOT NULL,
			label TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			trashed INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE cabinets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL,
			parent_id INTEGER
		);

		CREATE TABLE cabinet_documents (
			cabinet_id INTEGER NOT NULL,
			document_id INTEGER NOT NULL,
			UNIQUE(cabinet_id, document_id)
		);

		CREATE TABLE tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label TEXT NOT NULL UNIQUE,
			color TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE document_tags (
			document_id INTEGER NOT NULL,
			tag_id INTEGER NOT NULL,
			UNIQUE(document_id, tag_id)
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	return db
}

// fixture wires the full stack: document store, model registrations, ACL
// engine, and one user holding one role through a group.
type fixture struct {
	t  *testing.T
	db *sql.DB

	store     *Store
	perms     *Permissions
	registry  *permissions.Registry
	models    *acls.ModelRegistry
	roleStore *roles.Store
	engine    *acls.Engine

	user *roles.User
	role *roles.Role
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	ctx := context.Background()

	f := &fixture{
		t:         t,
		db:        db,
		store:     NewStore(db),
		registry:  permissions.NewRegistry(),
		models:    acls.NewModelRegistry(),
		roleStore: roles.NewStore(db),
	}

	var err error
	f.perms, err = Setup(f.registry, f.models, f.store)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	f.registry.Freeze()
	f.models.Freeze()

	f.engine = acls.NewEngine(acls.NewStore(db), f.models,
		permissions.NewStore(db, f.registry), f.roleStore)

	f.user = &roles.User{Username: "ana"}
	if err := f.roleStore.CreateUser(ctx, f.user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	group := &roles.Group{Name: "clerks"}
	if err := f.roleStore.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	f.role = &roles.Role{Name: "archivist"}
	if err := f.roleStore.CreateRole(ctx, f.role); err != nil {
		t.Fatalf("CreateRole failed: %v", err)
	}
	if err := f.roleStore.AddUserToGroup(ctx, f.user.ID, group.ID); err != nil {
		t.Fatalf("AddUserToGroup failed: %v", err)
	}
	if err := f.roleStore.AddGroupToRole(ctx, group.ID, f.role.ID); err != nil {
		t.Fatalf("AddGroupToRole failed: %v", err)
	}

	return f
}

func (f *fixture) createType(name string) *DocumentType {
	f.t.Helper()
	dt := &DocumentType{Name: name, Label: name}
	if err := f.store.CreateDocumentType(context.Background(), dt); err != nil {
		f.t.Fatalf("CreateDocumentType failed: %v", err)
	}
	return dt
}

func (f *fixture) createDocument(typeID int64, label string) *Document {
	f.t.Helper()
	doc := &Document{TypeID: typeID, Label: label}
	if err := f.store.CreateDocument(context.Background(), doc); err != nil {
		f.t.Fatalf("CreateDocument failed: %v", err)
	}
	return doc
}

func (f *fixture) createCabinet(label string, parentID *int64) *Cabinet {
	f.t.Helper()
	cabinet := &Cabinet{Label: label, ParentID: parentID}
	if err := f.store.CreateCabinet(context.Background(), cabinet); err != nil {
		f.t.Fatalf("CreateCabinet failed: %v", err)
	}
	return cabinet
}

func (f *fixture) grant(obj acls.Object, perm permissions.Permission) {
	f.t.Helper()
	if _, err := f.engine.Grant(context.Background(), obj, perm, f.role.ID); err != nil {
		f.t.Fatalf("Grant failed: %v", err)
	}
}

func documentObject(doc *Document) acls.Object {
	return acls.Object{Type: "document", ID: doc.ID}
}

func documentTypeObject(typeID int64) acls.Object {
	return acls.Object{Type: "document_type", ID: typeID}
}

func cabinetObject(cabinet *Cabinet) acls.Object {
	return acls.Object{Type: "cabinet", ID: cabinet.ID}
}

func documentIDs(docs []Document) []int64 {
	ids := make([]int64, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return ids
}
