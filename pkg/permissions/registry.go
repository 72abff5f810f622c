package permissions

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrDuplicatePermission indicates the same (namespace, name) pair was
	// registered twice. This is a startup configuration error, not a
	// request-time condition.
	ErrDuplicatePermission = errors.New("permission already registered")

	// ErrInvalidNamespace indicates a stored permission references a
	// namespace that no in-process code registered. Usually means the
	// obsolete-permission purge needs to run.
	ErrInvalidNamespace = errors.New("namespace not registered")

	// ErrUnknownPermission indicates a (namespace, name) lookup that did not
	// match any registered permission.
	ErrUnknownPermission = errors.New("permission not registered")

	// ErrRegistryFrozen indicates a registration attempt after the startup
	// phase completed.
	ErrRegistryFrozen = errors.New("registry is frozen")

	// ErrPermissionDenied is the single authorization failure. It carries no
	// distinction between "object missing" and "object present, access
	// denied" so callers cannot leak object existence.
	ErrPermissionDenied = errors.New("permission denied")
)

// Permission is an atomic named capability, identified by its
// (namespace, name) pair. Permissions are declared in code during startup and
// are immutable afterwards.
type Permission struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Label     string `json:"label"`
}

// String returns the stable identifier for the permission.
func (p Permission) String() string {
	return p.Namespace + "." + p.Name
}

// Namespace groups related permissions under a common prefix.
type Namespace struct {
	Name  string
	Label string

	registry *Registry
}

// Add registers a permission under the namespace. Registering the same
// (namespace, name) twice returns ErrDuplicatePermission.
func (ns *Namespace) Add(name, label string) (Permission, error) {
	return ns.registry.add(Permission{Namespace: ns.Name, Name: name, Label: label})
}

// MustAdd is Add for static startup registration, panicking on conflict.
func (ns *Namespace) MustAdd(name, label string) Permission {
	perm, err := ns.Add(name, label)
	if err != nil {
		panic(fmt.Sprintf("permissions: register %s.%s: %v", ns.Name, name, err))
	}
	return perm
}

// Registry is the process-wide catalog of permission definitions. It is
// populated during a single-threaded startup phase and frozen before serving
// traffic; reads after freeze need no locking but the registry stays safe for
// concurrent use regardless.
type Registry struct {
	mu         sync.RWMutex
	frozen     bool
	namespaces map[string]*Namespace
	perms      map[string]Permission
}

// NewRegistry creates an empty permission registry.
func NewRegistry() *Registry {
	return &Registry{
		namespaces: make(map[string]*Namespace),
		perms:      make(map[string]Permission),
	}
}

// RegisterNamespace returns the namespace with the given name, creating it if
// needed. Re-registration is idempotent and returns the existing namespace.
func (r *Registry) RegisterNamespace(name, label string) *Namespace {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ns, ok := r.namespaces[name]; ok {
		return ns
	}
	ns := &Namespace{Name: name, Label: label, registry: r}
	if !r.frozen {
		r.namespaces[name] = ns
	}
	return ns
}

func (r *Registry) add(perm Permission) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return Permission{}, ErrRegistryFrozen
	}
	key := perm.String()
	if _, ok := r.perms[key]; ok {
		return Permission{}, fmt.Errorf("%w: %s", ErrDuplicatePermission, key)
	}
	r.perms[key] = perm
	return perm, nil
}

// Get resolves a (namespace, name) pair against the live registry. It returns
// ErrInvalidNamespace when the namespace itself is unknown, and
// ErrUnknownPermission when the namespace exists but the name does not.
func (r *Registry) Get(namespace, name string) (Permission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.namespaces[namespace]; !ok {
		return Permission{}, fmt.Errorf("%w: %s", ErrInvalidNamespace, namespace)
	}
	perm, ok := r.perms[namespace+"."+name]
	if !ok {
		return Permission{}, fmt.Errorf("%w: %s.%s", ErrUnknownPermission, namespace, name)
	}
	return perm, nil
}

// Has reports whether the (namespace, name) pair is registered.
func (r *Registry) Has(namespace, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.perms[namespace+"."+name]
	return ok
}

// All returns every registered permission, sorted by identifier.
func (r *Registry) All() []Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	perms := make([]Permission, 0, len(r.perms))
	for _, perm := range r.perms {
		perms = append(perms, perm)
	}
	sort.Slice(perms, func(i, j int) bool {
		return perms[i].String() < perms[j].String()
	})
	return perms
}

// Freeze ends the startup registration phase. Registrations after Freeze
// fail with ErrRegistryFrozen.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}
