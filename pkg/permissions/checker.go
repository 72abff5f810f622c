package permissions

import (
	"context"
	"database/sql"
	"fmt"
)

// Subject is the minimal view of an authenticated user the checker needs.
// The concrete user type lives in the roles package.
type Subject interface {
	SubjectID() int64
	IsSuperuser() bool
}

// Checker answers global (non object-scoped) permission questions: does this
// user hold the permission through any role reachable via group membership?
// Object-scoped checks belong to the acls engine.
type Checker struct {
	db *sql.DB
}

// NewChecker creates a global permission checker.
func NewChecker(db *sql.DB) *Checker {
	return &Checker{db: db}
}

// CheckUserPermission returns nil when the user is a superuser or holds perm
// through a role-level global grant, and ErrPermissionDenied otherwise.
func (c *Checker) CheckUserPermission(ctx context.Context, perm Permission, user Subject) error {
	if user != nil && user.IsSuperuser() {
		return nil
	}
	if user == nil {
		return ErrPermissionDenied
	}

	var count int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM role_permissions rp
		JOIN stored_permissions sp ON sp.id = rp.stored_permission_id
		JOIN group_roles gr ON gr.role_id = rp.role_id
		JOIN user_groups ug ON ug.group_id = gr.group_id
		WHERE ug.user_id = $1 AND sp.namespace = $2 AND sp.name = $3
	`, user.SubjectID(), perm.Namespace, perm.Name).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check global permission %s: %w", perm.String(), err)
	}

	if count == 0 {
		return ErrPermissionDenied
	}
	return nil
}
