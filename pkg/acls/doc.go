// Package acls implements object-level access control with permission
// inheritance.
//
// # Overview
//
// An AccessControlList ties one content object (a polymorphic type + id
// reference) to one role and carries the permissions that role holds on that
// specific object. The resolution engine answers "may this user exercise
// this permission on this object?" by combining three sources:
//
//   - permissions granted directly through an ACL on the object
//   - permissions inherited through registered parent/child relationships,
//     across any number of hops and multiple parents
//   - global permissions granted to the user's roles
//
// Users reach roles through group membership; superusers bypass every check.
//
// # Model registration
//
// Each application package declares, at startup, which of its object types
// carry ACLs and how grants propagate between them:
//
//	models := acls.NewModelRegistry()
//	models.Register("document", permissionDocumentView, permissionDocumentEdit)
//	models.RegisterInheritance("document", acls.InheritanceEdge{
//		Relation:   "document_type",
//		ParentType: "document_type",
//		ParentsOf:  store.DocumentTypeObjects,
//		ChildrenOf: store.DocumentIDsOfTypes,
//	})
//	models.Freeze()
//
// Edges carry both traversal directions: ParentsOf serves the per-object
// recursive walk, ChildrenOf serves the bulk restriction path. After Freeze
// the registry is read-only; further registration fails.
//
// During inheritance, ancestor grants are filtered to the permissions
// registered for the inheriting type, so a permission that is only
// meaningful on a parent type never silently applies to a child.
//
// # Checking access
//
//	err := engine.CheckAccess(ctx, obj, permissionDocumentView, user)
//	if errors.Is(err, acls.ErrPermissionDenied) {
//		// deny; callers conventionally answer 404, not 403
//	}
//
// ErrPermissionDenied is deliberately the only authorization failure: it
// never distinguishes a missing object from a denied one.
//
// # Bulk restriction
//
// Listing endpoints restrict whole querysets instead of checking row by row.
// The engine computes the set of accessible object IDs (direct grants
// unioned with grants mapped down every inheritance edge) and filters the
// queryset by ID membership:
//
//	q, err := engine.RestrictQuery(ctx, permissionDocumentView, store.Documents(), user)
//
// RestrictQueryByAccesses composes multiple permissions with OperatorOr or
// OperatorAnd over the per-permission ID sets.
//
// # Mutation
//
// Grant and Revoke are idempotent. The (object, role) ACL row is created by
// a transactional get-or-create, so concurrent grants converge on one row.
package acls
