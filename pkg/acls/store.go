package acls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/platinummonkey/docvault/pkg/permissions"
)

// ErrACLNotFound indicates an ACL lookup that matched no row.
var ErrACLNotFound = errors.New("acl not found")

// ACL ties one content object to one role and carries the permissions the
// role holds on that specific object. At most one row exists per
// (object, role) pair.
type ACL struct {
	ID         int64  `json:"id"`
	ObjectType string `json:"object_type"`
	ObjectID   int64  `json:"object_id"`
	RoleID     int64  `json:"role_id"`
}

// Object returns the content object reference the ACL protects.
func (a *ACL) Object() Object {
	return Object{Type: a.ObjectType, ID: a.ObjectID}
}

// Store handles ACL persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates an ACL store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetOrCreate returns the ACL for (obj, role), creating it if absent. The
// uniqueness invariant is enforced by the insert itself, not by a
// check-then-create: two concurrent callers converge on the same row.
func (s *Store) GetOrCreate(ctx context.Context, obj Object, roleID int64) (*ACL, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO access_control_lists (object_type, object_id, role_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (object_type, object_id, role_id) DO NOTHING
	`, obj.Type, obj.ID, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to create acl for %s: %w", obj, err)
	}

	acl := &ACL{ObjectType: obj.Type, ObjectID: obj.ID, RoleID: roleID}
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM access_control_lists
		WHERE object_type = $1 AND object_id = $2 AND role_id = $3
	`, obj.Type, obj.ID, roleID).Scan(&acl.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load acl for %s: %w", obj, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit acl creation: %w", err)
	}
	return acl, nil
}

// Get returns the ACL for (obj, role) without creating it.
func (s *Store) Get(ctx context.Context, obj Object, roleID int64) (*ACL, error) {
	acl := &ACL{ObjectType: obj.Type, ObjectID: obj.ID, RoleID: roleID}
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM access_control_lists
		WHERE object_type = $1 AND object_id = $2 AND role_id = $3
	`, obj.Type, obj.ID, roleID).Scan(&acl.ID)
	if err == sql.ErrNoRows {
		return nil, ErrACLNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get acl for %s: %w", obj, err)
	}
	return acl, nil
}

// Delete removes an ACL and its permission entries. Removing the ACL ends
// the grant relationship; the role and object are untouched.
func (s *Store) Delete(ctx context.Context, aclID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM access_control_lists WHERE id = $1
	`, aclID)
	if err != nil {
		return fmt.Errorf("failed to delete acl: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrACLNotFound
	}
	return nil
}

// ForObject lists every ACL attached to obj.
func (s *Store) ForObject(ctx context.Context, obj Object) ([]ACL, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, object_type, object_id, role_id
		FROM access_control_lists
		WHERE object_type = $1 AND object_id = $2
		ORDER BY role_id
	`, obj.Type, obj.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list acls for %s: %w", obj, err)
	}
	defer rows.Close()

	var out []ACL
	for rows.Next() {
		var acl ACL
		if err := rows.Scan(&acl.ID, &acl.ObjectType, &acl.ObjectID, &acl.RoleID); err != nil {
			return nil, err
		}
		out = append(out, acl)
	}
	return out, rows.Err()
}

// AddPermission adds a permission to an ACL. Idempotent.
func (s *Store) AddPermission(ctx context.Context, aclID int64, sp permissions.StoredPermission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO acl_permissions (acl_id, stored_permission_id) VALUES ($1, $2)
		ON CONFLICT (acl_id, stored_permission_id) DO NOTHING
	`, aclID, sp.ID)
	if err != nil {
		return fmt.Errorf("failed to add permission to acl: %w", err)
	}
	return nil
}

// RemovePermission removes a permission from an ACL. No-op if absent.
func (s *Store) RemovePermission(ctx context.Context, aclID int64, sp permissions.StoredPermission) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM acl_permissions WHERE acl_id = $1 AND stored_permission_id = $2
	`, aclID, sp.ID)
	if err != nil {
		return fmt.Errorf("failed to remove permission from acl: %w", err)
	}
	return nil
}

// Permissions returns the permissions carried by an ACL.
func (s *Store) Permissions(ctx context.Context, aclID int64) ([]permissions.StoredPermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sp.id, sp.namespace, sp.name
		FROM stored_permissions sp
		JOIN acl_permissions ap ON ap.stored_permission_id = sp.id
		WHERE ap.acl_id = $1
		ORDER BY sp.namespace, sp.name
	`, aclID)
	if err != nil {
		return nil, fmt.Errorf("failed to list acl permissions: %w", err)
	}
	defer rows.Close()
	return scanStoredPermissions(rows)
}

// DirectPermissions returns the permissions granted to role directly on obj
// through its ACL entry, empty if no ACL exists.
func (s *Store) DirectPermissions(ctx context.Context, obj Object, roleID int64) ([]permissions.StoredPermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sp.id, sp.namespace, sp.name
		FROM stored_permissions sp
		JOIN acl_permissions ap ON ap.stored_permission_id = sp.id
		JOIN access_control_lists acl ON acl.id = ap.acl_id
		WHERE acl.object_type = $1 AND acl.object_id = $2 AND acl.role_id = $3
	`, obj.Type, obj.ID, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query direct permissions for %s: %w", obj, err)
	}
	defer rows.Close()
	return scanStoredPermissions(rows)
}

// ObjectIDsWithGrant returns the IDs of objects of objectType on which any of
// the roles holds the stored permission through a direct ACL entry. This is
// the first phase of the bulk restriction path.
func (s *Store) ObjectIDsWithGrant(ctx context.Context, objectType string, roleIDs []int64, spID int64) ([]int64, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(roleIDs))
	args := []interface{}{objectType, spID}
	for i, roleID := range roleIDs {
		placeholders[i] = "$" + strconv.Itoa(len(args)+1)
		args = append(args, roleID)
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT acl.object_id
		FROM access_control_lists acl
		JOIN acl_permissions ap ON ap.acl_id = acl.id
		WHERE acl.object_type = $1 AND ap.stored_permission_id = $2 AND acl.role_id IN (%s)
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query granted object ids for %s: %w", objectType, err)
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
}

func scanStoredPermissions(rows *sql.Rows) ([]permissions.StoredPermission, error) {
	var out []permissions.StoredPermission
	for rows.Next() {
		var sp permissions.StoredPermission
		if err := rows.Scan(&sp.ID, &sp.Namespace, &sp.Name); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}
