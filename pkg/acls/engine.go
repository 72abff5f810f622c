package acls

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/platinummonkey/docvault/pkg/permissions"
	"github.com/platinummonkey/docvault/pkg/roles"
)

// Queryset is the bulk-query abstraction the engine can restrict. The
// collaborator's storage layer supplies the implementation; the engine only
// computes the accessible ID set and filters by membership.
type Queryset interface {
	// ObjectType returns the registered object type the queryset selects.
	ObjectType() string
	// FilterIDs returns a copy of the queryset restricted to the given IDs.
	FilterIDs(ids []int64) Queryset
}

// Operator composes multiple permissions in RestrictQueryByAccesses.
type Operator int

const (
	// OperatorOr passes objects accessible under any of the permissions.
	OperatorOr Operator = iota
	// OperatorAnd passes objects accessible under every permission, each
	// possibly through a different inheritance path or role.
	OperatorAnd
)

// Engine is the ACL resolution engine: the authorization decision procedure
// plus bulk queryset restriction. It is stateless per call; all state lives
// in the database and the two frozen registries.
type Engine struct {
	store     *Store
	models    *ModelRegistry
	permStore *permissions.Store
	roleStore *roles.Store

	cache   DecisionCache
	metrics *Metrics
}

// NewEngine creates a resolution engine over the given stores and registry.
func NewEngine(store *Store, models *ModelRegistry, permStore *permissions.Store, roleStore *roles.Store) *Engine {
	return &Engine{
		store:     store,
		models:    models,
		permStore: permStore,
		roleStore: roleStore,
	}
}

// SetDecisionCache installs an optional cache for access decisions.
func (e *Engine) SetDecisionCache(cache DecisionCache) {
	e.cache = cache
}

// SetMetrics installs optional engine metrics.
func (e *Engine) SetMetrics(metrics *Metrics) {
	e.metrics = metrics
}

// CheckAccess determines whether user holds perm on obj, directly or through
// inheritance. It returns nil on grant and ErrPermissionDenied on denial.
// The error never distinguishes a missing object from a denied one.
// Infrastructure failures (database errors, broken resolvers) are returned
// as-is and are not authorization decisions.
func (e *Engine) CheckAccess(ctx context.Context, obj Object, perm permissions.Permission, user *roles.User) error {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.CheckDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if user != nil && user.Superuser {
		e.observeCheck("granted")
		return nil
	}
	if user == nil {
		e.observeCheck("denied")
		return ErrPermissionDenied
	}

	cacheKey := decisionKey(user.ID, obj, perm)
	if e.cache != nil {
		if allowed, ok := e.cache.Get(ctx, cacheKey); ok {
			e.observeCheckCached(allowed)
			if !allowed {
				return ErrPermissionDenied
			}
			return nil
		}
	}

	allowed, err := e.hasAccess(ctx, obj, perm, user)
	if err != nil {
		return err
	}

	if e.cache != nil {
		e.cache.Set(ctx, cacheKey, allowed)
	}
	if !allowed {
		e.observeCheck("denied")
		return ErrPermissionDenied
	}
	e.observeCheck("granted")
	return nil
}

func (e *Engine) hasAccess(ctx context.Context, obj Object, perm permissions.Permission, user *roles.User) (bool, error) {
	effective, err := e.roleStore.EffectiveRoles(ctx, user.ID)
	if err != nil {
		return false, err
	}
	if len(effective) == 0 {
		return false, nil
	}

	sp, err := e.permStore.Get(ctx, perm)
	if err != nil {
		return false, err
	}
	want := sp.String()

	global, err := e.roleStore.HasGlobalPermission(ctx, user.ID, sp)
	if err != nil {
		return false, err
	}
	if global {
		return true, nil
	}

	for _, role := range effective {
		inherited, err := e.inheritedForRole(ctx, obj, role.ID, make(map[Object]bool))
		if err != nil {
			return false, err
		}
		if _, ok := inherited[want]; ok {
			return true, nil
		}
	}
	return false, nil
}

// InheritedPermissions computes the permissions visible to role on obj: its
// direct ACL grants plus every grant inherited through registered
// inheritance edges, at every hop. Ancestor grants are filtered to the
// permissions registered as valid for obj's own type, so a permission that is
// only meaningful for an ancestor type never leaks down.
func (e *Engine) InheritedPermissions(ctx context.Context, obj Object, roleID int64) ([]permissions.StoredPermission, error) {
	set, err := e.inheritedForRole(ctx, obj, roleID, make(map[Object]bool))
	if err != nil {
		return nil, err
	}

	out := make([]permissions.StoredPermission, 0, len(set))
	for _, sp := range set {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// inheritedForRole is the recursive walk. The visited set guards against a
// misconfigured cycle in the relation graph; a revisited object contributes
// nothing further instead of recursing forever.
func (e *Engine) inheritedForRole(ctx context.Context, obj Object, roleID int64, visited map[Object]bool) (map[string]permissions.StoredPermission, error) {
	if visited[obj] {
		return nil, nil
	}
	visited[obj] = true

	result := make(map[string]permissions.StoredPermission)

	direct, err := e.store.DirectPermissions(ctx, obj, roleID)
	if err != nil {
		return nil, err
	}
	for _, sp := range direct {
		result[sp.String()] = sp
	}

	for _, edge := range e.models.Inheritance(obj.Type) {
		parents, err := edge.ParentsOf(ctx, obj.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s.%s for %s: %w", obj.Type, edge.Relation, obj, err)
		}
		for _, parent := range parents {
			ancestor, err := e.inheritedForRole(ctx, parent, roleID, visited)
			if err != nil {
				return nil, err
			}
			for key, sp := range ancestor {
				if e.models.AllowsStored(obj.Type, sp) {
					result[key] = sp
				}
			}
		}
	}
	return result, nil
}

// AccessibleObjectIDs computes the set of objectType IDs the user can reach
// under perm: direct ACL grants unioned with grants inherited transitively
// through every registered edge. This is the first phase of the two-phase
// bulk restriction; it never applies the superuser shortcut (callers that
// want it use RestrictQuery).
func (e *Engine) AccessibleObjectIDs(ctx context.Context, perm permissions.Permission, objectType string, user *roles.User) (map[int64]struct{}, error) {
	if user == nil {
		return map[int64]struct{}{}, nil
	}

	effective, err := e.roleStore.EffectiveRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(effective) == 0 {
		return map[int64]struct{}{}, nil
	}
	roleIDs := make([]int64, len(effective))
	for i, role := range effective {
		roleIDs[i] = role.ID
	}

	sp, err := e.permStore.Get(ctx, perm)
	if err != nil {
		return nil, err
	}

	walk := &bulkWalk{engine: e, sp: sp, roleIDs: roleIDs,
		memo:       make(map[string]map[int64]struct{}),
		inProgress: make(map[string]bool),
	}
	return walk.accessible(ctx, objectType)
}

// RestrictQuery filters q to the objects the user may access under perm.
// Superusers and users holding the permission globally through a role get
// the queryset back unfiltered, matching what CheckAccess would decide for
// every object individually.
func (e *Engine) RestrictQuery(ctx context.Context, perm permissions.Permission, q Queryset, user *roles.User) (Queryset, error) {
	if user != nil && user.Superuser {
		return q, nil
	}
	global, err := e.hasGlobalGrant(ctx, perm, user)
	if err != nil {
		return nil, err
	}
	if global {
		return q, nil
	}
	ids, err := e.AccessibleObjectIDs(ctx, perm, q.ObjectType(), user)
	if err != nil {
		return nil, err
	}
	return q.FilterIDs(setToSlice(ids)), nil
}

// RestrictQueryByAccesses generalizes RestrictQuery to multiple permissions:
// OperatorOr unions the per-permission ID sets, OperatorAnd intersects them.
// Each permission is resolved independently, so under AND an object may
// satisfy different permissions through different inheritance paths or
// roles. An empty permission list restricts to nothing.
func (e *Engine) RestrictQueryByAccesses(ctx context.Context, op Operator, perms []permissions.Permission, q Queryset, user *roles.User) (Queryset, error) {
	if user != nil && user.Superuser {
		return q, nil
	}

	if len(perms) == 0 {
		return q.FilterIDs(setToSlice(nil)), nil
	}

	var combined map[int64]struct{}
	constrained := false
	for _, perm := range perms {
		global, err := e.hasGlobalGrant(ctx, perm, user)
		if err != nil {
			return nil, err
		}
		if global {
			// A global grant covers every object. Under OR that decides
			// the whole composition; under AND this permission constrains
			// nothing.
			if op != OperatorAnd {
				return q, nil
			}
			continue
		}

		ids, err := e.AccessibleObjectIDs(ctx, perm, q.ObjectType(), user)
		if err != nil {
			return nil, err
		}
		if !constrained {
			combined = ids
			constrained = true
			continue
		}
		switch op {
		case OperatorAnd:
			for id := range combined {
				if _, ok := ids[id]; !ok {
					delete(combined, id)
				}
			}
		default:
			for id := range ids {
				combined[id] = struct{}{}
			}
		}
	}
	if !constrained {
		// Every permission was globally granted.
		return q, nil
	}
	return q.FilterIDs(setToSlice(combined)), nil
}

// hasGlobalGrant reports whether user holds perm on every object through a
// role-level global grant rather than an object ACL.
func (e *Engine) hasGlobalGrant(ctx context.Context, perm permissions.Permission, user *roles.User) (bool, error) {
	if user == nil {
		return false, nil
	}
	sp, err := e.permStore.Get(ctx, perm)
	if err != nil {
		return false, err
	}
	return e.roleStore.HasGlobalPermission(ctx, user.ID, sp)
}

// Grant gives role the permission on obj, creating the (obj, role) ACL if
// absent. Idempotent: granting an already-granted permission is a no-op.
// The permission must be registered as valid for obj's type.
func (e *Engine) Grant(ctx context.Context, obj Object, perm permissions.Permission, roleID int64) (*ACL, error) {
	if !e.models.IsRegistered(obj.Type) {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotRegistered, obj.Type)
	}
	if !e.models.Allows(obj.Type, perm) {
		return nil, fmt.Errorf("%w: %s on %s", ErrPermissionNotAllowed, perm.String(), obj.Type)
	}

	sp, err := e.permStore.Get(ctx, perm)
	if err != nil {
		return nil, err
	}
	acl, err := e.store.GetOrCreate(ctx, obj, roleID)
	if err != nil {
		return nil, err
	}
	if err := e.store.AddPermission(ctx, acl.ID, sp); err != nil {
		return nil, err
	}

	e.invalidate(ctx, obj)
	if e.metrics != nil {
		e.metrics.GrantsTotal.Inc()
	}
	return acl, nil
}

// Revoke removes the permission from the (obj, role) ACL. Revoking an
// ungranted permission, or revoking against a missing ACL, is a no-op.
func (e *Engine) Revoke(ctx context.Context, obj Object, perm permissions.Permission, roleID int64) error {
	sp, err := e.permStore.Get(ctx, perm)
	if err != nil {
		return err
	}

	acl, err := e.store.Get(ctx, obj, roleID)
	if err == ErrACLNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if err := e.store.RemovePermission(ctx, acl.ID, sp); err != nil {
		return err
	}

	e.invalidate(ctx, obj)
	if e.metrics != nil {
		e.metrics.RevokesTotal.Inc()
	}
	return nil
}

// invalidate drops cached decisions made stale by an ACL mutation on obj.
// Grants propagate down inheritance edges, so decisions for every descendant
// type are invalidated along with the object's own type.
func (e *Engine) invalidate(ctx context.Context, obj Object) {
	if e.cache == nil {
		return
	}
	e.cache.InvalidateType(ctx, obj.Type)
	for _, descendant := range e.models.DescendantTypes(obj.Type) {
		e.cache.InvalidateType(ctx, descendant)
	}
}

func (e *Engine) observeCheck(result string) {
	if e.metrics != nil {
		e.metrics.ChecksTotal.WithLabelValues(result).Inc()
	}
}

func (e *Engine) observeCheckCached(allowed bool) {
	if e.metrics == nil {
		return
	}
	e.metrics.CacheHitsTotal.Inc()
	if allowed {
		e.metrics.ChecksTotal.WithLabelValues("granted").Inc()
	} else {
		e.metrics.ChecksTotal.WithLabelValues("denied").Inc()
	}
}

// bulkWalk computes accessible ID sets per object type with memoization. A
// type currently being resolved contributes nothing when re-entered, which
// bounds cross-type cycles; self-referential edges (hierarchies) are handled
// separately by expanding to a fixpoint.
type bulkWalk struct {
	engine  *Engine
	sp      permissions.StoredPermission
	roleIDs []int64

	memo       map[string]map[int64]struct{}
	inProgress map[string]bool
}

func (w *bulkWalk) accessible(ctx context.Context, objectType string) (map[int64]struct{}, error) {
	if cached, ok := w.memo[objectType]; ok {
		return cached, nil
	}
	if w.inProgress[objectType] {
		return map[int64]struct{}{}, nil
	}
	w.inProgress[objectType] = true
	defer delete(w.inProgress, objectType)

	ids := make(map[int64]struct{})
	direct, err := w.engine.store.ObjectIDsWithGrant(ctx, objectType, w.roleIDs, w.sp.ID)
	if err != nil {
		return nil, err
	}
	for _, id := range direct {
		ids[id] = struct{}{}
	}

	// Inherited contributions only apply where the permission is valid for
	// the inheriting type, mirroring the per-object filter.
	if w.engine.models.AllowsStored(objectType, w.sp) {
		var selfEdges []InheritanceEdge
		for _, edge := range w.engine.models.Inheritance(objectType) {
			if edge.ParentType == objectType {
				selfEdges = append(selfEdges, edge)
				continue
			}
			parentIDs, err := w.accessible(ctx, edge.ParentType)
			if err != nil {
				return nil, err
			}
			if len(parentIDs) == 0 {
				continue
			}
			children, err := edge.ChildrenOf(ctx, setToSlice(parentIDs))
			if err != nil {
				return nil, fmt.Errorf("failed to map %s.%s grants: %w", objectType, edge.Relation, err)
			}
			for _, id := range children {
				ids[id] = struct{}{}
			}
		}

		// Hierarchical types inherit from themselves; propagate down the
		// hierarchy until no new instances appear.
		for _, edge := range selfEdges {
			frontier := setToSlice(ids)
			for len(frontier) > 0 {
				children, err := edge.ChildrenOf(ctx, frontier)
				if err != nil {
					return nil, fmt.Errorf("failed to map %s.%s grants: %w", objectType, edge.Relation, err)
				}
				frontier = frontier[:0]
				for _, id := range children {
					if _, ok := ids[id]; !ok {
						ids[id] = struct{}{}
						frontier = append(frontier, id)
					}
				}
			}
		}
	}

	w.memo[objectType] = ids
	return ids, nil
}

func setToSlice(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func decisionKey(userID int64, obj Object, perm permissions.Permission) string {
	return fmt.Sprintf("%d:%s:%d:%s", userID, obj.Type, obj.ID, perm.String())
}
