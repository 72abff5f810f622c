package roles

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docvault/pkg/httputil"
	"github.com/platinummonkey/docvault/pkg/permissions"
)

// Handlers provides HTTP handlers for managing the authorization graph.
type Handlers struct {
	store     *Store
	permStore *permissions.Store
}

// NewHandlers creates authorization graph handlers.
func NewHandlers(store *Store, permStore *permissions.Store) *Handlers {
	return &Handlers{store: store, permStore: permStore}
}

// RegisterRoutes registers all role, group, and user routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/roles/{id}", h.DeleteRole).Methods("DELETE")

	router.HandleFunc("/roles/{id}/permissions", h.ListRolePermissions).Methods("GET")
	router.HandleFunc("/roles/{id}/permissions", h.GrantPermission).Methods("POST")
	router.HandleFunc("/roles/{id}/permissions/revoke", h.RevokePermission).Methods("POST")

	router.HandleFunc("/roles/{id}/groups/{group_id}", h.AddGroupToRole).Methods("PUT")
	router.HandleFunc("/roles/{id}/groups/{group_id}", h.RemoveGroupFromRole).Methods("DELETE")

	router.HandleFunc("/groups", h.CreateGroup).Methods("POST")
	router.HandleFunc("/groups/{id}/users/{user_id}", h.AddUserToGroup).Methods("PUT")
	router.HandleFunc("/groups/{id}/users/{user_id}", h.RemoveUserFromGroup).Methods("DELETE")

	router.HandleFunc("/users", h.CreateUser).Methods("POST")
	router.HandleFunc("/users/{id}/roles", h.GetEffectiveRoles).Methods("GET")
	router.HandleFunc("/users/{id}/tokens", h.IssueToken).Methods("POST")
}

// CreateRole creates a new role.
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Label string `json:"label"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	role := &Role{Name: req.Name, Label: req.Label}
	if err := h.store.CreateRole(r.Context(), role); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, role)
}

// ListRoles lists all roles.
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, roles)
}

// GetRole retrieves a role by ID.
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	role, err := h.store.GetRole(r.Context(), roleID)
	if errors.Is(err, ErrRoleNotFound) {
		httputil.WriteNotFoundError(w, "role not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, role)
}

// DeleteRole deletes a role.
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	err = h.store.DeleteRole(r.Context(), roleID)
	if errors.Is(err, ErrRoleNotFound) {
		httputil.WriteNotFoundError(w, "role not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListRolePermissions lists the role's global permission grants.
func (h *Handlers) ListRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	perms, err := h.store.RolePermissions(r.Context(), roleID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, perms)
}

type permissionRequest struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// GrantPermission grants a global permission to the role.
func (h *Handlers) GrantPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var req permissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sp, err := h.permStore.Lookup(ctx, req.Namespace, req.Name)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.store.GrantPermission(ctx, roleID, sp); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sp)
}

// RevokePermission revokes a global permission from the role.
func (h *Handlers) RevokePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roleID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var req permissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sp, err := h.permStore.Lookup(ctx, req.Namespace, req.Name)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.store.RevokePermission(ctx, roleID, sp); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AddGroupToRole associates a group with a role.
func (h *Handlers) AddGroupToRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	groupID, err := httputil.ParsePathInt64(r, "group_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.store.AddGroupToRole(r.Context(), groupID, roleID); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RemoveGroupFromRole dissociates a group from a role.
func (h *Handlers) RemoveGroupFromRole(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	groupID, err := httputil.ParsePathInt64(r, "group_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.store.RemoveGroupFromRole(r.Context(), groupID, roleID); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteNoContent(w)
}

// CreateGroup creates a new group.
func (h *Handlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Label string `json:"label"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	group := &Group{Name: req.Name, Label: req.Label}
	if err := h.store.CreateGroup(r.Context(), group); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, group)
}

// AddUserToGroup makes a user a member of a group.
func (h *Handlers) AddUserToGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	userID, err := httputil.ParsePathInt64(r, "user_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.store.AddUserToGroup(r.Context(), userID, groupID); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RemoveUserFromGroup removes a user from a group.
func (h *Handlers) RemoveUserFromGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	userID, err := httputil.ParsePathInt64(r, "user_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.store.RemoveUserFromGroup(r.Context(), userID, groupID); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteNoContent(w)
}

// CreateUser creates a new user.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string `json:"username"`
		Superuser bool   `json:"superuser"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Username == "" {
		httputil.WriteBadRequest(w, "username is required")
		return
	}

	user := &User{Username: req.Username, Superuser: req.Superuser}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, user)
}

// GetEffectiveRoles returns the union of roles the user holds through group
// memberships.
func (h *Handlers) GetEffectiveRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	roles, err := h.store.EffectiveRoles(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, roles)
}

// IssueToken creates an API token for the user. The plaintext token appears
// only in this response.
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if _, err := h.store.GetUser(ctx, userID); errors.Is(err, ErrUserNotFound) {
		httputil.WriteNotFoundError(w, "user not found")
		return
	} else if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	token, err := h.store.IssueToken(ctx, userID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"token": token})
}
