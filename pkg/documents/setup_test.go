package documents

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/platinummonkey/docvault/pkg/acls"
)

func TestSetupRegistersTypes(t *testing.T) {
	f := newFixture(t)

	want := []string{"cabinet", "document", "document_type", "tag"}
	if !reflect.DeepEqual(f.models.Types(), want) {
		t.Errorf("Expected registered types %v, got %v", want, f.models.Types())
	}

	if !f.models.Allows("document", f.perms.DocumentView) {
		t.Error("Expected document_view to be valid for documents")
	}
	if f.models.Allows("document", f.perms.CabinetView) {
		t.Error("Expected cabinet_view to be invalid for documents")
	}
	// Document permissions are grantable on the parent types so they can
	// propagate down.
	if !f.models.Allows("document_type", f.perms.DocumentView) {
		t.Error("Expected document_view to be valid for document types")
	}
	if !f.models.Allows("cabinet", f.perms.DocumentEdit) {
		t.Error("Expected document_edit to be valid for cabinets")
	}

	if len(f.models.Inheritance("document")) != 3 {
		t.Errorf("Expected 3 inheritance edges for documents, got %d",
			len(f.models.Inheritance("document")))
	}
	if len(f.models.Inheritance("cabinet")) != 1 {
		t.Errorf("Expected 1 inheritance edge for cabinets, got %d",
			len(f.models.Inheritance("cabinet")))
	}
}

// A grant on a document type reaches every document of that type and no
// other.
func TestTypeGrantReachesDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invoices := f.createType("invoice")
	reports := f.createType("report")

	doc1 := f.createDocument(invoices.ID, "doc1")
	doc2 := f.createDocument(invoices.ID, "doc2")
	doc3 := f.createDocument(reports.ID, "doc3")

	f.grant(acls.Object{Type: "document_type", ID: invoices.ID}, f.perms.DocumentView)

	for _, doc := range []*Document{doc1, doc2} {
		if err := f.engine.CheckAccess(ctx, documentObject(doc), f.perms.DocumentView, f.user); err != nil {
			t.Errorf("Expected access to %s through its type, got %v", doc.Label, err)
		}
	}
	err := f.engine.CheckAccess(ctx, documentObject(doc3), f.perms.DocumentView, f.user)
	if !errors.Is(err, acls.ErrPermissionDenied) {
		t.Errorf("Expected denial for the report document, got %v", err)
	}

	// The bulk path agrees.
	q, err := f.engine.RestrictQuery(ctx, f.perms.DocumentView, f.store.Documents(), f.user)
	if err != nil {
		t.Fatalf("RestrictQuery failed: %v", err)
	}
	docs, err := q.(DocumentQuery).Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !reflect.DeepEqual(documentIDs(docs), []int64{doc1.ID, doc2.ID}) {
		t.Errorf("Expected documents %v, got %v", []int64{doc1.ID, doc2.ID}, documentIDs(docs))
	}
}

// A grant on a cabinet reaches documents filed in it and in its descendant
// cabinets.
func TestCabinetGrantReachesFiledDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dt := f.createType("invoice")

	root := f.createCabinet("root", nil)
	child := f.createCabinet("child", &root.ID)
	other := f.createCabinet("other", nil)

	inRoot := f.createDocument(dt.ID, "in root")
	inChild := f.createDocument(dt.ID, "in child")
	inOther := f.createDocument(dt.ID, "in other")
	loose := f.createDocument(dt.ID, "loose")

	mustFile := func(cabinetID, documentID int64) {
		if err := f.store.AddDocumentToCabinet(ctx, cabinetID, documentID); err != nil {
			t.Fatalf("AddDocumentToCabinet failed: %v", err)
		}
	}
	mustFile(root.ID, inRoot.ID)
	mustFile(child.ID, inChild.ID)
	mustFile(other.ID, inOther.ID)

	f.grant(cabinetObject(root), f.perms.DocumentView)

	if err := f.engine.CheckAccess(ctx, documentObject(inRoot), f.perms.DocumentView, f.user); err != nil {
		t.Errorf("Expected access to the root-filed document, got %v", err)
	}
	if err := f.engine.CheckAccess(ctx, documentObject(inChild), f.perms.DocumentView, f.user); err != nil {
		t.Errorf("Expected access through the cabinet hierarchy, got %v", err)
	}
	for _, doc := range []*Document{inOther, loose} {
		err := f.engine.CheckAccess(ctx, documentObject(doc), f.perms.DocumentView, f.user)
		if !errors.Is(err, acls.ErrPermissionDenied) {
			t.Errorf("Expected denial for %s, got %v", doc.Label, err)
		}
	}

	q, err := f.engine.RestrictQuery(ctx, f.perms.DocumentView, f.store.Documents(), f.user)
	if err != nil {
		t.Fatalf("RestrictQuery failed: %v", err)
	}
	docs, err := q.(DocumentQuery).Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	want := []int64{inRoot.ID, inChild.ID}
	if !reflect.DeepEqual(documentIDs(docs), want) {
		t.Errorf("Expected documents %v, got %v", want, documentIDs(docs))
	}

	// The cabinet grant also restricts the cabinet queryset itself.
	cq, err := f.engine.RestrictQuery(ctx, f.perms.DocumentView, f.store.Cabinets(), f.user)
	if err != nil {
		t.Fatalf("RestrictQuery failed: %v", err)
	}
	cabinets, err := cq.(CabinetQuery).Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(cabinets) != 2 || cabinets[0].ID != root.ID || cabinets[1].ID != child.ID {
		t.Errorf("Expected root and child cabinets, got %+v", cabinets)
	}
}

// A grant on a tag reaches the documents carrying it and no other.
func TestTagGrantReachesTaggedDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dt := f.createType("invoice")
	tagged := f.createDocument(dt.ID, "tagged")
	plain := f.createDocument(dt.ID, "plain")

	urgent := &Tag{Label: "urgent", Color: "#cc0000"}
	if err := f.store.CreateTag(ctx, urgent); err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	if err := f.store.AttachTag(ctx, tagged.ID, urgent.ID); err != nil {
		t.Fatalf("AttachTag failed: %v", err)
	}

	f.grant(acls.Object{Type: "tag", ID: urgent.ID}, f.perms.DocumentView)

	if err := f.engine.CheckAccess(ctx, documentObject(tagged), f.perms.DocumentView, f.user); err != nil {
		t.Errorf("Expected access to the tagged document, got %v", err)
	}
	err := f.engine.CheckAccess(ctx, documentObject(plain), f.perms.DocumentView, f.user)
	if !errors.Is(err, acls.ErrPermissionDenied) {
		t.Errorf("Expected denial for the untagged document, got %v", err)
	}

	q, err := f.engine.RestrictQuery(ctx, f.perms.DocumentView, f.store.Documents(), f.user)
	if err != nil {
		t.Fatalf("RestrictQuery failed: %v", err)
	}
	docs, err := q.(DocumentQuery).Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !reflect.DeepEqual(documentIDs(docs), []int64{tagged.ID}) {
		t.Errorf("Expected only the tagged document, got %v", documentIDs(docs))
	}
}

// Cabinet management permissions do not leak onto the documents filed inside.
func TestCabinetPermissionsStayOnCabinets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dt := f.createType("invoice")
	cabinet := f.createCabinet("cabinet", nil)
	doc := f.createDocument(dt.ID, "doc")
	if err := f.store.AddDocumentToCabinet(ctx, cabinet.ID, doc.ID); err != nil {
		t.Fatalf("AddDocumentToCabinet failed: %v", err)
	}

	f.grant(cabinetObject(cabinet), f.perms.CabinetAddDocument)

	err := f.engine.CheckAccess(ctx, documentObject(doc), f.perms.CabinetAddDocument, f.user)
	if !errors.Is(err, acls.ErrPermissionDenied) {
		t.Errorf("Expected cabinet permission not to reach the document, got %v", err)
	}
	if err := f.engine.CheckAccess(ctx, cabinetObject(cabinet), f.perms.CabinetAddDocument, f.user); err != nil {
		t.Errorf("Expected the cabinet permission on the cabinet itself, got %v", err)
	}
}

func TestSetupGrantValidatesObjectType(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Grant(context.Background(),
		acls.Object{Type: "document", ID: 1}, f.perms.TagAttach, f.role.ID)
	if !errors.Is(err, acls.ErrPermissionNotAllowed) {
		t.Errorf("Expected ErrPermissionNotAllowed for tag_attach on a document, got %v", err)
	}
}
