package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docvault/pkg/middleware"
	"github.com/platinummonkey/docvault/pkg/roles"
)

func setupTestRouter(t *testing.T) (*fixture, *mux.Router) {
	t.Helper()
	f := newFixture(t)
	router := mux.NewRouter()
	NewHandlers(f.store, f.engine, f.perms).RegisterRoutes(router)
	return f, router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}, user *roles.User) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != nil {
		req = req.WithContext(middleware.WithUser(req.Context(), user))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandlersCreateAndListDocuments(t *testing.T) {
	f, router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/document-types", map[string]string{"name": "invoice", "label": "Invoice"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var dt DocumentType
	json.NewDecoder(w.Body).Decode(&dt)

	w = doJSON(t, router, "POST", "/documents", map[string]interface{}{
		"type_id": dt.ID, "label": "March invoice",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var doc Document
	json.NewDecoder(w.Body).Decode(&doc)
	if doc.UUID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("Expected the created document to carry a UUID")
	}

	// Creating against an unknown type fails.
	w = doJSON(t, router, "POST", "/documents", map[string]interface{}{
		"type_id": 9999, "label": "orphan",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown type, got %d", w.Code)
	}

	// Without a grant the listing is empty for the user.
	w = doJSON(t, router, "GET", "/documents", nil, f.user)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var docs []Document
	json.NewDecoder(w.Body).Decode(&docs)
	if len(docs) != 0 {
		t.Errorf("Expected empty listing without grants, got %d documents", len(docs))
	}

	// After a type-level grant the document appears.
	f.grant(documentTypeObject(dt.ID), f.perms.DocumentView)
	w = doJSON(t, router, "GET", "/documents", nil, f.user)
	docs = nil
	json.NewDecoder(w.Body).Decode(&docs)
	if len(docs) != 1 || docs[0].ID != doc.ID {
		t.Errorf("Expected the granted document in the listing, got %+v", docs)
	}
}

func TestHandlersGetDocument(t *testing.T) {
	f, router := setupTestRouter(t)

	dt := f.createType("invoice")
	doc := f.createDocument(dt.ID, "doc")

	// Denied reads as 404.
	w := doJSON(t, router, "GET", fmt.Sprintf("/documents/%d", doc.ID), nil, f.user)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a grant, got %d", w.Code)
	}

	f.grant(documentObject(doc), f.perms.DocumentView)
	w = doJSON(t, router, "GET", fmt.Sprintf("/documents/%d", doc.ID), nil, f.user)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 after grant, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Document
		Tags []Tag `json:"tags"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != doc.ID || resp.UUID != doc.UUID {
		t.Errorf("Unexpected document response: %+v", resp)
	}
}

func TestHandlersTrashRestore(t *testing.T) {
	f, router := setupTestRouter(t)

	dt := f.createType("invoice")
	doc := f.createDocument(dt.ID, "doc")

	// View alone does not allow trashing.
	f.grant(documentObject(doc), f.perms.DocumentView)
	w := doJSON(t, router, "POST", fmt.Sprintf("/documents/%d/trash", doc.ID), nil, f.user)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without trash permission, got %d", w.Code)
	}

	f.grant(documentObject(doc), f.perms.DocumentTrash)
	w = doJSON(t, router, "POST", fmt.Sprintf("/documents/%d/trash", doc.ID), nil, f.user)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
	}

	got, err := f.store.GetDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if !got.Trashed {
		t.Error("Expected the document to be trashed")
	}

	// Trashed listing shows it, the default listing does not.
	w = doJSON(t, router, "GET", "/documents?trashed=true", nil, f.user)
	var docs []Document
	json.NewDecoder(w.Body).Decode(&docs)
	if len(docs) != 1 {
		t.Errorf("Expected the trashed document in the trash listing, got %+v", docs)
	}
	w = doJSON(t, router, "GET", "/documents", nil, f.user)
	docs = nil
	json.NewDecoder(w.Body).Decode(&docs)
	if len(docs) != 0 {
		t.Errorf("Expected the trashed document hidden from the default listing, got %+v", docs)
	}

	w = doJSON(t, router, "POST", fmt.Sprintf("/documents/%d/restore", doc.ID), nil, f.user)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	got, err = f.store.GetDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Trashed {
		t.Error("Expected the document restored from the trash")
	}
}

func TestHandlersCabinetFiling(t *testing.T) {
	f, router := setupTestRouter(t)

	dt := f.createType("invoice")
	doc := f.createDocument(dt.ID, "doc")
	cabinet := f.createCabinet("cabinet", nil)

	w := doJSON(t, router, "PUT",
		fmt.Sprintf("/cabinets/%d/documents/%d", cabinet.ID, doc.ID), nil, f.user)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without cabinet permission, got %d", w.Code)
	}

	f.grant(cabinetObject(cabinet), f.perms.CabinetAddDocument)
	w = doJSON(t, router, "PUT",
		fmt.Sprintf("/cabinets/%d/documents/%d", cabinet.ID, doc.ID), nil, f.user)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
	}

	cabinets, err := f.store.DocumentCabinets(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("DocumentCabinets failed: %v", err)
	}
	if len(cabinets) != 1 || cabinets[0] != cabinet.ID {
		t.Errorf("Expected the document filed in the cabinet, got %v", cabinets)
	}
}

func TestHandlersTagging(t *testing.T) {
	f, router := setupTestRouter(t)

	dt := f.createType("invoice")
	doc := f.createDocument(dt.ID, "doc")

	w := doJSON(t, router, "POST", "/tags", map[string]string{"label": "urgent", "color": "#cc0000"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var tag Tag
	json.NewDecoder(w.Body).Decode(&tag)

	w = doJSON(t, router, "PUT",
		fmt.Sprintf("/documents/%d/tags/%d", doc.ID, tag.ID), nil, f.user)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without edit permission, got %d", w.Code)
	}

	f.grant(documentObject(doc), f.perms.DocumentEdit)
	w = doJSON(t, router, "PUT",
		fmt.Sprintf("/documents/%d/tags/%d", doc.ID, tag.ID), nil, f.user)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", w.Code, w.Body.String())
	}

	tags, err := f.store.DocumentTags(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("DocumentTags failed: %v", err)
	}
	if len(tags) != 1 || tags[0].ID != tag.ID {
		t.Errorf("Expected the tag attached, got %+v", tags)
	}

	w = doJSON(t, router, "DELETE",
		fmt.Sprintf("/documents/%d/tags/%d", doc.ID, tag.ID), nil, f.user)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
}
