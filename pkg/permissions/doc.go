// Package permissions provides the process-wide permission catalog and its
// persisted counterpart.
//
// Permissions are declared in code during startup, grouped into namespaces,
// and frozen before the server starts handling requests:
//
//	registry := permissions.NewRegistry()
//	ns := registry.RegisterNamespace("documents", "Documents")
//	permissionDocumentView := ns.MustAdd("document_view", "View documents")
//	registry.Freeze()
//
// A Permission's persisted identity (StoredPermission) is materialized lazily
// by Store.Get the first time the permission is referenced; at most one row
// exists per (namespace, name) pair. Store.PurgeObsolete removes rows whose
// in-code definition has been deleted.
//
// Object-scoped authorization lives in the acls package; Checker here only
// answers global role-level grants.
package permissions
