package roles

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/docvault/pkg/permissions"
)

var (
	// ErrRoleNotFound indicates a role lookup that matched no row.
	ErrRoleNotFound = errors.New("role not found")

	// ErrGroupNotFound indicates a group lookup that matched no row.
	ErrGroupNotFound = errors.New("group not found")

	// ErrUserNotFound indicates a user lookup that matched no row.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidToken indicates an API token that resolves to no user.
	ErrInvalidToken = errors.New("invalid token")
)

// Store persists the authorization graph: roles, groups, users, their
// memberships, and role-level global permission grants. The acls engine reads
// this graph through EffectiveRoles; it never mutates it.
type Store struct {
	db *sql.DB
}

// NewStore creates an authorization graph store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRole creates a new role.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO roles (name, label, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, role.Name, role.Label, now, now).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID.
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	var role Role
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, label, created_at, updated_at FROM roles WHERE id = $1
	`, roleID).Scan(&role.ID, &role.Name, &role.Label, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrRoleNotFound, roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// GetRoleByName retrieves a role by its unique name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, label, created_at, updated_at FROM roles WHERE name = $1
	`, name).Scan(&role.ID, &role.Name, &role.Label, &role.CreatedAt, &role.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &role, nil
}

// ListRoles returns all roles ordered by name.
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, label, created_at, updated_at FROM roles ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Label, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// DeleteRole deletes a role. ACL entries referencing it are removed by
// foreign key cascade; objects and groups are untouched.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrRoleNotFound, roleID)
	}
	return nil
}

// CreateGroup creates a new group.
func (s *Store) CreateGroup(ctx context.Context, group *Group) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO groups (name, label) VALUES ($1, $2) RETURNING id
	`, group.Name, group.Label).Scan(&group.ID)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// CreateUser creates a new user.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, is_superuser) VALUES ($1, $2) RETURNING id
	`, user.Username, user.Superuser).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, is_superuser FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.Username, &user.Superuser)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// AddUserToGroup makes the user a member of the group. Idempotent.
func (s *Store) AddUserToGroup(ctx context.Context, userID, groupID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2)
		ON CONFLICT (user_id, group_id) DO NOTHING
	`, userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to add user to group: %w", err)
	}
	return nil
}

// RemoveUserFromGroup removes the user from the group. No-op if absent.
func (s *Store) RemoveUserFromGroup(ctx context.Context, userID, groupID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_groups WHERE user_id = $1 AND group_id = $2
	`, userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to remove user from group: %w", err)
	}
	return nil
}

// AddGroupToRole associates the group with the role; members inherit the
// role. Idempotent.
func (s *Store) AddGroupToRole(ctx context.Context, groupID, roleID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_roles (group_id, role_id) VALUES ($1, $2)
		ON CONFLICT (group_id, role_id) DO NOTHING
	`, groupID, roleID)
	if err != nil {
		return fmt.Errorf("failed to add group to role: %w", err)
	}
	return nil
}

// RemoveGroupFromRole dissociates the group from the role. No-op if absent.
func (s *Store) RemoveGroupFromRole(ctx context.Context, groupID, roleID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM group_roles WHERE group_id = $1 AND role_id = $2
	`, groupID, roleID)
	if err != nil {
		return fmt.Errorf("failed to remove group from role: %w", err)
	}
	return nil
}

// GrantPermission grants a global permission to the role. Idempotent.
func (s *Store) GrantPermission(ctx context.Context, roleID int64, sp permissions.StoredPermission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, stored_permission_id) VALUES ($1, $2)
		ON CONFLICT (role_id, stored_permission_id) DO NOTHING
	`, roleID, sp.ID)
	if err != nil {
		return fmt.Errorf("failed to grant permission to role: %w", err)
	}
	return nil
}

// RevokePermission revokes a global permission from the role. No-op if the
// grant is absent.
func (s *Store) RevokePermission(ctx context.Context, roleID int64, sp permissions.StoredPermission) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM role_permissions WHERE role_id = $1 AND stored_permission_id = $2
	`, roleID, sp.ID)
	if err != nil {
		return fmt.Errorf("failed to revoke permission from role: %w", err)
	}
	return nil
}

// RolePermissions returns the role's global permission grants.
func (s *Store) RolePermissions(ctx context.Context, roleID int64) ([]permissions.StoredPermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sp.id, sp.namespace, sp.name
		FROM stored_permissions sp
		JOIN role_permissions rp ON rp.stored_permission_id = sp.id
		WHERE rp.role_id = $1
		ORDER BY sp.namespace, sp.name
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

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

// HasGlobalPermission reports whether any of the user's effective roles
// carries the stored permission as a global grant.
func (s *Store) HasGlobalPermission(ctx context.Context, userID int64, sp permissions.StoredPermission) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM role_permissions rp
		JOIN group_roles gr ON gr.role_id = rp.role_id
		JOIN user_groups ug ON ug.group_id = gr.group_id
		WHERE ug.user_id = $1 AND rp.stored_permission_id = $2
	`, userID, sp.ID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check global permission: %w", err)
	}
	return count > 0, nil
}

// EffectiveRoles returns the union of roles of all groups the user belongs
// to. Order is stable by role name.
func (s *Store) EffectiveRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT r.id, r.name, r.label, r.created_at, r.updated_at
		FROM roles r
		JOIN group_roles gr ON gr.role_id = r.id
		JOIN user_groups ug ON ug.group_id = gr.group_id
		WHERE ug.user_id = $1
		ORDER BY r.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective roles: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Label, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// IssueToken creates an API token for the user and returns the plaintext
// token. Only the SHA-256 digest is stored.
func (s *Store) IssueToken(ctx context.Context, userID int64) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(raw)
	digest := hashToken(token)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_tokens (token_digest, user_id, created_at) VALUES ($1, $2, $3)
	`, digest, userID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return token, nil
}

// ResolveToken returns the user an API token belongs to, or ErrInvalidToken.
func (s *Store) ResolveToken(ctx context.Context, token string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.is_superuser
		FROM users u
		JOIN api_tokens t ON t.user_id = u.id
		WHERE t.token_digest = $1
	`, hashToken(token)).Scan(&user.ID, &user.Username, &user.Superuser)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}
	return &user, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
