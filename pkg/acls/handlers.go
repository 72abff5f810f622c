package acls

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docvault/pkg/httputil"
	"github.com/platinummonkey/docvault/pkg/middleware"
	"github.com/platinummonkey/docvault/pkg/permissions"
)

// APIPermissions guard the ACL management API itself: reading ACLs requires
// View, granting and revoking require Edit. Both are global role-level
// permissions checked through the permissions.Checker.
type APIPermissions struct {
	View permissions.Permission
	Edit permissions.Permission
}

// RegisterAPIPermissions declares the acls namespace with the permissions
// guarding the management endpoints. Call during startup, before the
// registry is frozen.
func RegisterAPIPermissions(registry *permissions.Registry) (APIPermissions, error) {
	ns := registry.RegisterNamespace("acls", "Access control")
	view, err := ns.Add("acl_view", "View ACLs")
	if err != nil {
		return APIPermissions{}, err
	}
	edit, err := ns.Add("acl_edit", "Manage ACLs")
	if err != nil {
		return APIPermissions{}, err
	}
	return APIPermissions{View: view, Edit: edit}, nil
}

// Handlers provides HTTP handlers for ACL management. Object access denials
// are reported as 404 so responses never reveal whether a protected object
// exists; management-endpoint denials are plain 403s.
type Handlers struct {
	engine   *Engine
	store    *Store
	models   *ModelRegistry
	registry *permissions.Registry
	checker  *permissions.Checker
	perms    APIPermissions
}

// NewHandlers creates ACL handlers. The checker and perms guard the
// management endpoints against callers without the acls permissions.
func NewHandlers(engine *Engine, store *Store, models *ModelRegistry, registry *permissions.Registry, checker *permissions.Checker, perms APIPermissions) *Handlers {
	return &Handlers{
		engine:   engine,
		store:    store,
		models:   models,
		registry: registry,
		checker:  checker,
		perms:    perms,
	}
}

// RegisterRoutes registers all ACL routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/acls/{type}/{id}", h.ListACLs).Methods("GET")
	router.HandleFunc("/acls/{type}/{id}/grant", h.Grant).Methods("POST")
	router.HandleFunc("/acls/{type}/{id}/revoke", h.Revoke).Methods("POST")
	router.HandleFunc("/acls/{type}/{id}/roles/{role_id}/permissions", h.InheritedPermissions).Methods("GET")
	router.HandleFunc("/acls/check", h.Check).Methods("POST")
	router.HandleFunc("/permissions", h.ListPermissions).Methods("GET")
}

type grantRequest struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	RoleID    int64  `json:"role_id"`
}

// authorize requires an authenticated caller holding perm globally. It
// writes the failure response and returns false when the caller does not.
func (h *Handlers) authorize(w http.ResponseWriter, r *http.Request, perm permissions.Permission) bool {
	user := middleware.GetUser(r)
	if user == nil {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return false
	}
	err := h.checker.CheckUserPermission(r.Context(), perm, user)
	if errors.Is(err, permissions.ErrPermissionDenied) {
		httputil.WriteErrorMessage(w, http.StatusForbidden, "permission denied")
		return false
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return false
	}
	return true
}

func (h *Handlers) objectFromPath(r *http.Request) (Object, error) {
	vars := mux.Vars(r)
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		return Object{}, err
	}
	return Object{Type: vars["type"], ID: id}, nil
}

// ListACLs lists the ACL entries attached to an object, with their
// permissions. Requires the acl_view permission.
func (h *Handlers) ListACLs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.authorize(w, r, h.perms.View) {
		return
	}

	obj, err := h.objectFromPath(r)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	acls, err := h.store.ForObject(ctx, obj)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	type aclResponse struct {
		ACL
		Permissions []permissions.StoredPermission `json:"permissions"`
	}
	out := make([]aclResponse, 0, len(acls))
	for _, acl := range acls {
		perms, err := h.store.Permissions(ctx, acl.ID)
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, aclResponse{ACL: acl, Permissions: perms})
	}

	httputil.WriteJSON(w, http.StatusOK, out)
}

// Grant grants a permission on an object to a role. Requires the acl_edit
// permission.
func (h *Handlers) Grant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.authorize(w, r, h.perms.Edit) {
		return
	}

	obj, err := h.objectFromPath(r)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	var req grantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm, err := h.registry.Get(req.Namespace, req.Name)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	acl, err := h.engine.Grant(ctx, obj, perm, req.RoleID)
	if errors.Is(err, ErrPermissionNotAllowed) || errors.Is(err, ErrTypeNotRegistered) {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, acl)
}

// Revoke removes a permission grant from an object's ACL. Requires the
// acl_edit permission.
func (h *Handlers) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.authorize(w, r, h.perms.Edit) {
		return
	}

	obj, err := h.objectFromPath(r)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	var req grantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm, err := h.registry.Get(req.Namespace, req.Name)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.Revoke(ctx, obj, perm, req.RoleID); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	httputil.WriteNoContent(w)
}

// InheritedPermissions returns the full permission set visible to a role on
// an object, direct and inherited. Diagnostic endpoint for admin UIs;
// requires the acl_view permission.
func (h *Handlers) InheritedPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.authorize(w, r, h.perms.View) {
		return
	}

	obj, err := h.objectFromPath(r)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	roleID, err := httputil.ParsePathInt64(r, "role_id")
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	perms, err := h.engine.InheritedPermissions(ctx, obj, roleID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, perms)
}

type checkRequest struct {
	ObjectType string `json:"object_type"`
	ObjectID   int64  `json:"object_id"`
	Namespace  string `json:"namespace"`
	Name       string `json:"name"`
}

// Check evaluates an access check for the authenticated user. A denial is
// reported as 404, indistinguishable from a missing object.
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user := middleware.GetUser(r)
	if user == nil {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req checkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm, err := h.registry.Get(req.Namespace, req.Name)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	obj := Object{Type: req.ObjectType, ID: req.ObjectID}
	err = h.engine.CheckAccess(ctx, obj, perm, user)
	if errors.Is(err, ErrPermissionDenied) {
		httputil.WriteNotFoundError(w, "not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"allowed": true})
}

// ListPermissions lists every registered permission with the object types it
// is valid for.
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	type permissionResponse struct {
		permissions.Permission
		ObjectTypes []string `json:"object_types"`
	}

	all := h.registry.All()
	out := make([]permissionResponse, 0, len(all))
	for _, perm := range all {
		entry := permissionResponse{Permission: perm}
		for _, objectType := range h.models.Types() {
			if h.models.Allows(objectType, perm) {
				entry.ObjectTypes = append(entry.ObjectTypes, objectType)
			}
		}
		out = append(out, entry)
	}

	httputil.WriteJSON(w, http.StatusOK, out)
}
