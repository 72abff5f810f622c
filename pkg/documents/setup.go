package documents

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/docvault/pkg/acls"
	"github.com/platinummonkey/docvault/pkg/permissions"
)

// Permissions holds the permission set of the documents namespace, populated
// by Setup.
type Permissions struct {
	DocumentView   permissions.Permission
	DocumentEdit   permissions.Permission
	DocumentDelete permissions.Permission
	DocumentTrash  permissions.Permission

	DocumentTypeView   permissions.Permission
	DocumentTypeEdit   permissions.Permission
	DocumentTypeDelete permissions.Permission

	CabinetView           permissions.Permission
	CabinetAddDocument    permissions.Permission
	CabinetRemoveDocument permissions.Permission

	TagView   permissions.Permission
	TagAttach permissions.Permission
	TagRemove permissions.Permission
}

// Setup declares the documents namespace, registers the document object types
// with their valid permissions, and wires the inheritance graph:
//
//	document -> its document type   (to-one)
//	document -> containing cabinets (to-many)
//	document -> attached tags       (to-many)
//	cabinet  -> parent cabinet      (to-one, hierarchical)
//
// Document permissions are also registered for types, cabinets, and tags so
// they can be granted there and flow down to documents.
func Setup(registry *permissions.Registry, models *acls.ModelRegistry, store *Store) (*Permissions, error) {
	ns := registry.RegisterNamespace("documents", "Documents")

	var p Permissions
	var err error
	add := func(name, label string) permissions.Permission {
		if err != nil {
			return permissions.Permission{}
		}
		var perm permissions.Permission
		perm, err = ns.Add(name, label)
		return perm
	}

	p.DocumentView = add("document_view", "View documents")
	p.DocumentEdit = add("document_edit", "Edit documents")
	p.DocumentDelete = add("document_delete", "Delete documents")
	p.DocumentTrash = add("document_trash", "Trash and restore documents")

	p.DocumentTypeView = add("document_type_view", "View document types")
	p.DocumentTypeEdit = add("document_type_edit", "Edit document types")
	p.DocumentTypeDelete = add("document_type_delete", "Delete document types")

	p.CabinetView = add("cabinet_view", "View cabinets")
	p.CabinetAddDocument = add("cabinet_add_document", "Add documents to cabinets")
	p.CabinetRemoveDocument = add("cabinet_remove_document", "Remove documents from cabinets")

	p.TagView = add("tag_view", "View tags")
	p.TagAttach = add("tag_attach", "Attach tags to documents")
	p.TagRemove = add("tag_remove", "Remove tags from documents")
	if err != nil {
		return nil, err
	}

	documentPerms := []permissions.Permission{
		p.DocumentView, p.DocumentEdit, p.DocumentDelete, p.DocumentTrash,
	}

	if err := models.Register("document", documentPerms...); err != nil {
		return nil, err
	}
	if err := models.Register("document_type",
		append(documentPerms, p.DocumentTypeView, p.DocumentTypeEdit, p.DocumentTypeDelete)...); err != nil {
		return nil, err
	}
	if err := models.Register("cabinet",
		append(documentPerms, p.CabinetView, p.CabinetAddDocument, p.CabinetRemoveDocument)...); err != nil {
		return nil, err
	}
	if err := models.Register("tag",
		append(documentPerms, p.TagView, p.TagAttach, p.TagRemove)...); err != nil {
		return nil, err
	}

	db := store.db
	if err := models.RegisterInheritance("document", documentTypeEdge(db)); err != nil {
		return nil, err
	}
	if err := models.RegisterInheritance("document", cabinetMembershipEdge(db)); err != nil {
		return nil, err
	}
	if err := models.RegisterInheritance("document", tagMembershipEdge(db)); err != nil {
		return nil, err
	}
	if err := models.RegisterInheritance("cabinet", cabinetParentEdge(db)); err != nil {
		return nil, err
	}

	return &p, nil
}

func documentTypeEdge(db *sql.DB) acls.InheritanceEdge {
	return acls.InheritanceEdge{
		Relation:   "document_type",
		ParentType: "document_type",
		ParentsOf: func(ctx context.Context, documentID int64) ([]acls.Object, error) {
			var typeID int64
			err := db.QueryRowContext(ctx, `
				SELECT document_type_id FROM documents WHERE id = $1
			`, documentID).Scan(&typeID)
			if err == sql.ErrNoRows {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return []acls.Object{{Type: "document_type", ID: typeID}}, nil
		},
		ChildrenOf: func(ctx context.Context, typeIDs []int64) ([]int64, error) {
			query := `SELECT id FROM documents WHERE document_type_id IN (` +
				placeholderRange(1, len(typeIDs)) + `)`
			rows, err := db.QueryContext(ctx, query, idArgs(typeIDs)...)
			if err != nil {
				return nil, err
			}
			defer rows.Close()
			return scanIDs(rows)
		},
	}
}

func cabinetMembershipEdge(db *sql.DB) acls.InheritanceEdge {
	return acls.InheritanceEdge{
		Relation:   "cabinets",
		ParentType: "cabinet",
		ParentsOf: func(ctx context.Context, documentID int64) ([]acls.Object, error) {
			rows, err := db.QueryContext(ctx, `
				SELECT cabinet_id FROM cabinet_documents WHERE document_id = $1
			`, documentID)
			if err != nil {
				return nil, err
			}
			defer rows.Close()
			ids, err := scanIDs(rows)
			if err != nil {
				return nil, err
			}
			parents := make([]acls.Object, len(ids))
			for i, id := range ids {
				parents[i] = acls.Object{Type: "cabinet", ID: id}
			}
			return parents, nil
		},
		ChildrenOf: func(ctx context.Context, cabinetIDs []int64) ([]int64, error) {
			query := `SELECT DISTINCT document_id FROM cabinet_documents WHERE cabinet_id IN (` +
				placeholderRange(1, len(cabinetIDs)) + `)`
			rows, err := db.QueryContext(ctx, query, idArgs(cabinetIDs)...)
			if err != nil {
				return nil, err
			}
			defer rows.Close()
			return scanIDs(rows)
		},
	}
}

func tagMembershipEdge(db *sql.DB) acls.InheritanceEdge {
	return acls.InheritanceEdge{
		Relation:   "tags",
		ParentType: "tag",
		ParentsOf: func(ctx context.Context, documentID int64) ([]acls.Object, error) {
			rows, err := db.QueryContext(ctx, `
				SELECT tag_id FROM document_tags WHERE document_id = $1
			`, documentID)
			if err != nil {
				return nil, err
			}
			defer rows.Close()
			ids, err := scanIDs(rows)
			if err != nil {
				return nil, err
			}
			parents := make([]acls.Object, len(ids))
			for i, id := range ids {
				parents[i] = acls.Object{Type: "tag", ID: id}
			}
			return parents, nil
		},
		ChildrenOf: func(ctx context.Context, tagIDs []int64) ([]int64, error) {
			query := `SELECT DISTINCT document_id FROM document_tags WHERE tag_id IN (` +
				placeholderRange(1, len(tagIDs)) + `)`
			rows, err := db.QueryContext(ctx, query, idArgs(tagIDs)...)
			if err != nil {
				return nil, err
			}
			defer rows.Close()
			return scanIDs(rows)
		},
	}
}

func cabinetParentEdge(db *sql.DB) acls.InheritanceEdge {
	return acls.InheritanceEdge{
		Relation:   "parent",
		ParentType: "cabinet",
		ParentsOf: func(ctx context.Context, cabinetID int64) ([]acls.Object, error) {
			var parentID sql.NullInt64
			err := db.QueryRowContext(ctx, `
				SELECT parent_id FROM cabinets WHERE id = $1
			`, cabinetID).Scan(&parentID)
			if err == sql.ErrNoRows {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			if !parentID.Valid {
				return nil, nil
			}
			return []acls.Object{{Type: "cabinet", ID: parentID.Int64}}, nil
		},
		ChildrenOf: func(ctx context.Context, parentIDs []int64) ([]int64, error) {
			query := `SELECT id FROM cabinets WHERE parent_id IN (` +
				placeholderRange(1, len(parentIDs)) + `)`
			rows, err := db.QueryContext(ctx, query, idArgs(parentIDs)...)
			if err != nil {
				return nil, err
			}
			defer rows.Close()
			return scanIDs(rows)
		},
	}
}

func idArgs(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
