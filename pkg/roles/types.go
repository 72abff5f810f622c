package roles

import "time"

// Role is a named bundle of grants: global permissions held through
// role_permissions, and object-scoped permissions held through ACL entries in
// the acls package. Roles reach users through group membership.
type Role struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Group is a named collection of users. Groups are associated with zero or
// more roles; members inherit every associated role.
type Group struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// User is an authenticated principal. Superusers bypass all access checks.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Superuser bool   `json:"is_superuser"`
}

// SubjectID implements permissions.Subject.
func (u *User) SubjectID() int64 { return u.ID }

// IsSuperuser implements permissions.Subject.
func (u *User) IsSuperuser() bool { return u.Superuser }
