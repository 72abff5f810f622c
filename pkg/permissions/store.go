package permissions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// StoredPermission is the persisted counterpart of an in-code Permission,
// created lazily the first time the permission is referenced. At most one row
// exists per (namespace, name) pair.
type StoredPermission struct {
	ID        int64  `json:"id"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// String returns the stable identifier of the underlying permission.
func (sp StoredPermission) String() string {
	return sp.Namespace + "." + sp.Name
}

const storedPermissionCacheSize = 512

// Store persists permissions and resolves in-code Permission values to their
// stored identity. Lookups are cached in-process; stored permission rows are
// append-only outside of PurgeObsolete so a short TTL is plenty.
type Store struct {
	db       *sql.DB
	registry *Registry
	cache    *lru.LRU[string, StoredPermission]
}

// NewStore creates a permission store backed by db, validating lookups
// against registry.
func NewStore(db *sql.DB, registry *Registry) *Store {
	return &Store{
		db:       db,
		registry: registry,
		cache:    lru.NewLRU[string, StoredPermission](storedPermissionCacheSize, nil, 5*time.Minute),
	}
}

// Get returns the stored row for perm, creating it on first access. Safe
// under concurrent first access: the insert tolerates a concurrent winner and
// falls through to the select.
func (s *Store) Get(ctx context.Context, perm Permission) (StoredPermission, error) {
	key := perm.String()
	if sp, ok := s.cache.Get(key); ok {
		return sp, nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stored_permissions (namespace, name)
		VALUES ($1, $2)
		ON CONFLICT (namespace, name) DO NOTHING
	`, perm.Namespace, perm.Name)
	if err != nil {
		return StoredPermission{}, fmt.Errorf("failed to materialize permission %s: %w", key, err)
	}

	sp, err := s.selectOne(ctx, perm.Namespace, perm.Name)
	if err != nil {
		return StoredPermission{}, err
	}

	s.cache.Add(key, sp)
	return sp, nil
}

// Lookup resolves an already-persisted (namespace, name) pair without
// creating it, validating the pair against the live registry first. A stored
// row whose namespace is no longer registered yields ErrInvalidNamespace.
func (s *Store) Lookup(ctx context.Context, namespace, name string) (StoredPermission, error) {
	perm, err := s.registry.Get(namespace, name)
	if err != nil {
		return StoredPermission{}, err
	}
	return s.Get(ctx, perm)
}

// All returns every persisted permission row.
func (s *Store) All(ctx context.Context) ([]StoredPermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, namespace, name FROM stored_permissions ORDER BY namespace, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored permissions: %w", err)
	}
	defer rows.Close()

	var stored []StoredPermission
	for rows.Next() {
		var sp StoredPermission
		if err := rows.Scan(&sp.ID, &sp.Namespace, &sp.Name); err != nil {
			return nil, err
		}
		stored = append(stored, sp)
	}
	return stored, rows.Err()
}

// PurgeObsolete deletes every persisted permission whose (namespace, name)
// no longer resolves against the live registry. Returns the number of rows
// removed. Dependent grant rows are removed by foreign key cascade.
func (s *Store) PurgeObsolete(ctx context.Context) (int64, error) {
	stored, err := s.All(ctx)
	if err != nil {
		return 0, err
	}

	var purged int64
	for _, sp := range stored {
		if s.registry.Has(sp.Namespace, sp.Name) {
			continue
		}
		result, err := s.db.ExecContext(ctx, `
			DELETE FROM stored_permissions WHERE id = $1
		`, sp.ID)
		if err != nil {
			return purged, fmt.Errorf("failed to purge permission %s: %w", sp.String(), err)
		}
		n, _ := result.RowsAffected()
		purged += n
		s.cache.Remove(sp.String())
	}
	return purged, nil
}

func (s *Store) selectOne(ctx context.Context, namespace, name string) (StoredPermission, error) {
	var sp StoredPermission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, namespace, name FROM stored_permissions WHERE namespace = $1 AND name = $2
	`, namespace, name).Scan(&sp.ID, &sp.Namespace, &sp.Name)
	if err != nil {
		return StoredPermission{}, fmt.Errorf("failed to load permission %s.%s: %w", namespace, name, err)
	}
	return sp, nil
}
