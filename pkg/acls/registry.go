package acls

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/platinummonkey/docvault/pkg/permissions"
)

// ErrPermissionDenied is the single authorization failure raised by the
// engine. Aliased from the permissions package so callers can match either.
var ErrPermissionDenied = permissions.ErrPermissionDenied

var (
	// ErrRegistryFrozen indicates a model registration attempt after startup.
	ErrRegistryFrozen = errors.New("model registry is frozen")

	// ErrTypeNotRegistered indicates an object type that never registered
	// with the model registry.
	ErrTypeNotRegistered = errors.New("object type not registered")

	// ErrPermissionNotAllowed indicates an attempt to grant a permission on
	// an object whose type did not register that permission.
	ErrPermissionNotAllowed = errors.New("permission not valid for object type")
)

// Object is a polymorphic reference to any ACL-protected entity.
type Object struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

func (o Object) String() string {
	return fmt.Sprintf("%s:%d", o.Type, o.ID)
}

// InheritanceEdge declares that permission grants on a related "parent"
// object also apply to instances of the registering type. The edge carries
// both traversal directions: ParentsOf for the per-object recursive walk, and
// ChildrenOf for the bulk ID-set restriction path.
//
// ParentsOf returns the parent object(s) reachable from one instance; a
// missing optional relation returns an empty slice, never an error.
// ChildrenOf returns the IDs of instances whose related parent is in the
// given parent ID set.
type InheritanceEdge struct {
	Relation   string
	ParentType string
	ParentsOf  func(ctx context.Context, objectID int64) ([]Object, error)
	ChildrenOf func(ctx context.Context, parentIDs []int64) ([]int64, error)
}

// ModelRegistry is the process-wide catalog of which object types can carry
// ACLs, which permissions are valid for each type, and how grants propagate
// between types. It is populated during single-threaded startup and frozen
// before serving traffic.
type ModelRegistry struct {
	mu          sync.RWMutex
	frozen      bool
	permissions map[string]map[string]permissions.Permission
	inheritance map[string][]InheritanceEdge
}

// NewModelRegistry creates an empty model registry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		permissions: make(map[string]map[string]permissions.Permission),
		inheritance: make(map[string][]InheritanceEdge),
	}
}

// Register declares that instances of objectType may be the target of ACL
// entries carrying any of perms. Re-registering a type unions into, rather
// than replaces, its permission set.
func (r *ModelRegistry) Register(objectType string, perms ...permissions.Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	existing, ok := r.permissions[objectType]
	if !ok {
		existing = make(map[string]permissions.Permission)
		r.permissions[objectType] = existing
	}
	for _, perm := range perms {
		existing[perm.String()] = perm
	}
	return nil
}

// RegisterInheritance declares a directed inheritance edge from objectType to
// edge.ParentType. Multiple edges for the same type fan out; each parent
// contributes independently and their grants are unioned.
func (r *ModelRegistry) RegisterInheritance(objectType string, edge InheritanceEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if edge.ParentsOf == nil || edge.ChildrenOf == nil {
		return fmt.Errorf("inheritance edge %s.%s: both resolvers are required", objectType, edge.Relation)
	}
	r.inheritance[objectType] = append(r.inheritance[objectType], edge)
	return nil
}

// Inheritance returns all registered inheritance edges for objectType, empty
// if none.
func (r *ModelRegistry) Inheritance(objectType string) []InheritanceEdge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inheritance[objectType]
}

// Permissions returns the permissions registered as valid for objectType,
// sorted by identifier.
func (r *ModelRegistry) Permissions(objectType string) []permissions.Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	perms := make([]permissions.Permission, 0, len(r.permissions[objectType]))
	for _, perm := range r.permissions[objectType] {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool {
		return perms[i].String() < perms[j].String()
	})
	return perms
}

// Allows reports whether perm is registered as valid for objectType.
func (r *ModelRegistry) Allows(objectType string, perm permissions.Permission) bool {
	return r.allowsKey(objectType, perm.String())
}

// AllowsStored reports whether the stored permission's (namespace, name) is
// registered as valid for objectType.
func (r *ModelRegistry) AllowsStored(objectType string, sp permissions.StoredPermission) bool {
	return r.allowsKey(objectType, sp.String())
}

func (r *ModelRegistry) allowsKey(objectType, key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.permissions[objectType][key]
	return ok
}

// DescendantTypes returns every registered type whose instances can inherit
// grants from objectType, directly or through further edges. The type itself
// is not included. Used to scope cache invalidation: a grant on a cabinet
// changes decisions for documents, not just the cabinet.
func (r *ModelRegistry) DescendantTypes(objectType string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	children := make(map[string][]string)
	for childType, edges := range r.inheritance {
		for _, edge := range edges {
			children[edge.ParentType] = append(children[edge.ParentType], childType)
		}
	}

	seen := map[string]bool{objectType: true}
	queue := []string{objectType}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	sort.Strings(out)
	return out
}

// IsRegistered reports whether objectType ever registered with the registry.
func (r *ModelRegistry) IsRegistered(objectType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.permissions[objectType]
	return ok
}

// Types returns all registered object types, sorted.
func (r *ModelRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.permissions))
	for objectType := range r.permissions {
		types = append(types, objectType)
	}
	sort.Strings(types)
	return types
}

// Freeze ends the startup registration phase.
func (r *ModelRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}
