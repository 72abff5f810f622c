package acls

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

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

		-- Fixture domain: categories form a hierarchy, collections belong to
		-- a category, entries belong to a collection and may carry labels.
		CREATE TABLE categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			parent_id INTEGER
		);

		CREATE TABLE collections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category_id INTEGER
		);

		CREATE TABLE entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			collection_id INTEGER
		);

		CREATE TABLE labels (
			id INTEGER PRIMARY KEY AUTOINCREMENT
		);

		CREATE TABLE entry_labels (
			entry_id INTEGER NOT NULL,
			label_id INTEGER NOT NULL,
			UNIQUE(entry_id, label_id)
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	return db
}

func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// toOneEdge builds an inheritance edge over a nullable foreign key column.
func toOneEdge(db *sql.DB, relation, parentType, childTable, fkColumn string) InheritanceEdge {
	return InheritanceEdge{
		Relation:   relation,
		ParentType: parentType,
		ParentsOf: func(ctx context.Context, objectID int64) ([]Object, error) {
			var fk sql.NullInt64
			err := db.QueryRowContext(ctx,
				"SELECT "+fkColumn+" FROM "+childTable+" WHERE id = $1", objectID,
			).Scan(&fk)
			if err == sql.ErrNoRows {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			if !fk.Valid {
				return nil, nil
			}
			return []Object{{Type: parentType, ID: fk.Int64}}, nil
		},
		ChildrenOf: func(ctx context.Context, parentIDs []int64) ([]int64, error) {
			rows, err := db.QueryContext(ctx,
				"SELECT id FROM "+childTable+" WHERE "+fkColumn+" IN ("+inPlaceholders(len(parentIDs))+")",
				int64Args(parentIDs)...,
			)
			if err != nil {
				return nil, err
			}
			defer rows.Close()
			var ids []int64
			for rows.Next() {
				var id int64
				if err := rows.Scan(&id); err != nil {
					return nil, err
				}
				ids = append(ids, id)
			}
			return ids, rows.Err()
		},
	}
}

// toManyEdge builds an inheritance edge over an attachment table.
func toManyEdge(db *sql.DB, relation, parentType, joinTable, childColumn, parentColumn string) InheritanceEdge {
	return InheritanceEdge{
		Relation:   relation,
		ParentType: parentType,
		ParentsOf: func(ctx context.Context, objectID int64) ([]Object, error) {
			rows, err := db.QueryContext(ctx,
				"SELECT "+parentColumn+" FROM "+joinTable+" WHERE "+childColumn+" = $1", objectID,
			)
			if err != nil {
				return nil, err
			}
			defer rows.Close()
			var parents []Object
			for rows.Next() {
				var id int64
				if err := rows.Scan(&id); err != nil {
					return nil, err
				}
				parents = append(parents, Object{Type: parentType, ID: id})
			}
			return parents, rows.Err()
		},
		ChildrenOf: func(ctx context.Context, parentIDs []int64) ([]int64, error) {
			rows, err := db.QueryContext(ctx,
				"SELECT DISTINCT "+childColumn+" FROM "+joinTable+
					" WHERE "+parentColumn+" IN ("+inPlaceholders(len(parentIDs))+")",
				int64Args(parentIDs)...,
			)
			if err != nil {
				return nil, err
			}
			defer rows.Close()
			var ids []int64
			for rows.Next() {
				var id int64
				if err := rows.Scan(&id); err != nil {
					return nil, err
				}
				ids = append(ids, id)
			}
			return ids, rows.Err()
		},
	}
}

// fixture wires a complete engine over the sqlite schema with the library
// fixture domain registered.
type fixture struct {
	t  *testing.T
	db *sql.DB

	registry  *permissions.Registry
	models    *ModelRegistry
	permStore *permissions.Store
	roleStore *roles.Store
	aclStore  *Store
	engine    *Engine

	permEntryView        permissions.Permission
	permEntryEdit        permissions.Permission
	permCollectionManage permissions.Permission
	apiPerms             APIPermissions

	user *roles.User
	role *roles.Role
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)

	registry := permissions.NewRegistry()
	ns := registry.RegisterNamespace("library", "Library")

	f := &fixture{
		t:                    t,
		db:                   db,
		registry:             registry,
		models:               NewModelRegistry(),
		permStore:            permissions.NewStore(db, registry),
		roleStore:            roles.NewStore(db),
		aclStore:             NewStore(db),
		permEntryView:        ns.MustAdd("entry_view", "View entries"),
		permEntryEdit:        ns.MustAdd("entry_edit", "Edit entries"),
		permCollectionManage: ns.MustAdd("collection_manage", "Manage collections"),
	}
	apiPerms, err := RegisterAPIPermissions(registry)
	if err != nil {
		t.Fatalf("RegisterAPIPermissions failed: %v", err)
	}
	f.apiPerms = apiPerms
	registry.Freeze()

	mustRegister := func(err error) {
		if err != nil {
			t.Fatalf("Model registration failed: %v", err)
		}
	}
	mustRegister(f.models.Register("entry", f.permEntryView, f.permEntryEdit))
	mustRegister(f.models.Register("collection", f.permEntryView, f.permEntryEdit, f.permCollectionManage))
	mustRegister(f.models.Register("category", f.permEntryView, f.permEntryEdit))
	mustRegister(f.models.Register("label", f.permEntryView, f.permEntryEdit))

	mustRegister(f.models.RegisterInheritance("entry",
		toOneEdge(db, "collection", "collection", "entries", "collection_id")))
	mustRegister(f.models.RegisterInheritance("entry",
		toManyEdge(db, "labels", "label", "entry_labels", "entry_id", "label_id")))
	mustRegister(f.models.RegisterInheritance("collection",
		toOneEdge(db, "category", "category", "collections", "category_id")))
	mustRegister(f.models.RegisterInheritance("category",
		toOneEdge(db, "parent", "category", "categories", "parent_id")))
	f.models.Freeze()

	f.engine = NewEngine(f.aclStore, f.models, f.permStore, f.roleStore)

	ctx := context.Background()
	f.user = &roles.User{Username: "ana"}
	if err := f.roleStore.CreateUser(ctx, f.user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	group := &roles.Group{Name: "clerks"}
	if err := f.roleStore.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	f.role = &roles.Role{Name: "editor"}
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

func (f *fixture) insertID(query string, args ...interface{}) int64 {
	f.t.Helper()
	result, err := f.db.Exec(query, args...)
	if err != nil {
		f.t.Fatalf("Insert failed: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		f.t.Fatalf("LastInsertId failed: %v", err)
	}
	return id
}

func (f *fixture) createCategory(parentID *int64) int64 {
	return f.insertID(`INSERT INTO categories (parent_id) VALUES ($1)`, parentID)
}

func (f *fixture) createCollection(categoryID *int64) int64 {
	return f.insertID(`INSERT INTO collections (category_id) VALUES ($1)`, categoryID)
}

func (f *fixture) createEntry(collectionID *int64) int64 {
	return f.insertID(`INSERT INTO entries (collection_id) VALUES ($1)`, collectionID)
}

func (f *fixture) createLabel() int64 {
	return f.insertID(`INSERT INTO labels DEFAULT VALUES`)
}

func (f *fixture) attachLabel(entryID, labelID int64) {
	f.insertID(`INSERT INTO entry_labels (entry_id, label_id) VALUES ($1, $2)`, entryID, labelID)
}

func (f *fixture) grant(obj Object, perm permissions.Permission) {
	f.t.Helper()
	if _, err := f.engine.Grant(context.Background(), obj, perm, f.role.ID); err != nil {
		f.t.Fatalf("Grant failed: %v", err)
	}
}

// grantGlobal gives the fixture role a role-level global grant of perm.
func (f *fixture) grantGlobal(perm permissions.Permission) {
	f.t.Helper()
	ctx := context.Background()
	sp, err := f.permStore.Get(ctx, perm)
	if err != nil {
		f.t.Fatalf("permissions.Get failed: %v", err)
	}
	if err := f.roleStore.GrantPermission(ctx, f.role.ID, sp); err != nil {
		f.t.Fatalf("GrantPermission failed: %v", err)
	}
}

// entriesQuery is the fixture Queryset over the entries table.
type entriesQuery struct {
	db         *sql.DB
	ids        []int64
	restricted bool
}

func (q entriesQuery) ObjectType() string { return "entry" }

func (q entriesQuery) FilterIDs(ids []int64) Queryset {
	q.ids = ids
	q.restricted = true
	return q
}

func (q entriesQuery) fetch(t *testing.T) []int64 {
	t.Helper()

	query := `SELECT id FROM entries ORDER BY id`
	var args []interface{}
	if q.restricted {
		if len(q.ids) == 0 {
			return nil
		}
		query = `SELECT id FROM entries WHERE id IN (` + inPlaceholders(len(q.ids)) + `) ORDER BY id`
		args = int64Args(q.ids)
	}

	rows, err := q.db.Query(query, args...)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}
