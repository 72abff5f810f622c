package documents

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docvault/pkg/acls"
	"github.com/platinummonkey/docvault/pkg/httputil"
	"github.com/platinummonkey/docvault/pkg/middleware"
	"github.com/platinummonkey/docvault/pkg/permissions"
)

// Handlers provides HTTP handlers for documents, cabinets, and tags. Every
// read is filtered through the ACL engine; a denial reads as 404 so the
// existence of protected objects is not revealed.
type Handlers struct {
	store  *Store
	engine *acls.Engine
	perms  *Permissions
}

// NewHandlers creates document handlers.
func NewHandlers(store *Store, engine *acls.Engine, perms *Permissions) *Handlers {
	return &Handlers{store: store, engine: engine, perms: perms}
}

// RegisterRoutes registers all document routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/document-types", h.CreateDocumentType).Methods("POST")
	router.HandleFunc("/document-types", h.ListDocumentTypes).Methods("GET")

	router.HandleFunc("/documents", h.CreateDocument).Methods("POST")
	router.HandleFunc("/documents", h.ListDocuments).Methods("GET")
	router.HandleFunc("/documents/{id}", h.GetDocument).Methods("GET")
	router.HandleFunc("/documents/{id}/trash", h.TrashDocument).Methods("POST")
	router.HandleFunc("/documents/{id}/restore", h.RestoreDocument).Methods("POST")
	router.HandleFunc("/documents/{id}/tags/{tag_id}", h.AttachTag).Methods("PUT")
	router.HandleFunc("/documents/{id}/tags/{tag_id}", h.DetachTag).Methods("DELETE")

	router.HandleFunc("/cabinets", h.CreateCabinet).Methods("POST")
	router.HandleFunc("/cabinets", h.ListCabinets).Methods("GET")
	router.HandleFunc("/cabinets/{id}", h.GetCabinet).Methods("GET")
	router.HandleFunc("/cabinets/{id}/documents/{document_id}", h.FileDocument).Methods("PUT")
	router.HandleFunc("/cabinets/{id}/documents/{document_id}", h.UnfileDocument).Methods("DELETE")

	router.HandleFunc("/tags", h.CreateTag).Methods("POST")
}

// checkObject runs an access check and writes the response on failure. A
// denial is written as 404 so forbidden and missing objects read the same.
func (h *Handlers) checkObject(w http.ResponseWriter, r *http.Request, obj acls.Object, perm permissions.Permission) bool {
	err := h.engine.CheckAccess(r.Context(), obj, perm, middleware.GetUser(r))
	if errors.Is(err, acls.ErrPermissionDenied) {
		httputil.WriteNotFoundError(w, "not found")
		return false
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return false
	}
	return true
}

// CreateDocumentType creates a document type.
func (h *Handlers) CreateDocumentType(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Label string `json:"label"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	dt := &DocumentType{Name: req.Name, Label: req.Label}
	if err := h.store.CreateDocumentType(r.Context(), dt); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, dt)
}

// ListDocumentTypes lists all document types.
func (h *Handlers) ListDocumentTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.store.ListDocumentTypes(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, types)
}

// CreateDocument creates a document.
func (h *Handlers) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TypeID      int64  `json:"type_id"`
		Label       string `json:"label"`
		Description string `json:"description"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Label == "" {
		httputil.WriteBadRequest(w, "label is required")
		return
	}
	if _, err := h.store.GetDocumentType(r.Context(), req.TypeID); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	doc := &Document{TypeID: req.TypeID, Label: req.Label, Description: req.Description}
	if err := h.store.CreateDocument(r.Context(), doc); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

// ListDocuments lists the documents the authenticated user may view.
func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(r)

	var q acls.Queryset = h.store.Documents()
	if httputil.ParseQueryBool(r, "trashed", false) {
		q = h.store.TrashedDocuments()
	}

	restricted, err := h.engine.RestrictQuery(ctx, h.perms.DocumentView, q, user)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	docs, err := restricted.(DocumentQuery).Fetch(ctx)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, docs)
}

// GetDocument retrieves a document the user may view. Missing and forbidden
// documents are indistinguishable.
func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	documentID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if !h.checkObject(w, r, acls.Object{Type: "document", ID: documentID}, h.perms.DocumentView) {
		return
	}

	doc, err := h.store.GetDocument(ctx, documentID)
	if errors.Is(err, ErrDocumentNotFound) {
		httputil.WriteNotFoundError(w, "not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	tags, err := h.store.DocumentTags(ctx, documentID)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, struct {
		*Document
		Tags []Tag `json:"tags"`
	}{Document: doc, Tags: tags})
}

// TrashDocument moves a document to the trash.
func (h *Handlers) TrashDocument(w http.ResponseWriter, r *http.Request) {
	h.setTrashed(w, r, true)
}

// RestoreDocument restores a document from the trash.
func (h *Handlers) RestoreDocument(w http.ResponseWriter, r *http.Request) {
	h.setTrashed(w, r, false)
}

func (h *Handlers) setTrashed(w http.ResponseWriter, r *http.Request, trashed bool) {
	ctx := r.Context()

	documentID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if !h.checkObject(w, r, acls.Object{Type: "document", ID: documentID}, h.perms.DocumentTrash) {
		return
	}

	err = h.store.SetDocumentTrashed(ctx, documentID, trashed)
	if errors.Is(err, ErrDocumentNotFound) {
		httputil.WriteNotFoundError(w, "not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteNoContent(w)
}

// AttachTag attaches a tag to a document. Requires edit permission on the
// document.
func (h *Handlers) AttachTag(w http.ResponseWriter, r *http.Request) {
	h.changeTag(w, r, h.store.AttachTag)
}

// DetachTag detaches a tag from a document.
func (h *Handlers) DetachTag(w http.ResponseWriter, r *http.Request) {
	h.changeTag(w, r, h.store.DetachTag)
}

func (h *Handlers) changeTag(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, documentID, tagID int64) error) {
	ctx := r.Context()

	documentID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	tagID, err := httputil.ParsePathInt64(r, "tag_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if !h.checkObject(w, r, acls.Object{Type: "document", ID: documentID}, h.perms.DocumentEdit) {
		return
	}

	if err := op(ctx, documentID, tagID); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteNoContent(w)
}

// CreateCabinet creates a cabinet.
func (h *Handlers) CreateCabinet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label    string `json:"label"`
		ParentID *int64 `json:"parent_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Label == "" {
		httputil.WriteBadRequest(w, "label is required")
		return
	}

	cabinet := &Cabinet{Label: req.Label, ParentID: req.ParentID}
	if err := h.store.CreateCabinet(r.Context(), cabinet); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, cabinet)
}

// ListCabinets lists the cabinets the authenticated user may view.
func (h *Handlers) ListCabinets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := middleware.GetUser(r)

	restricted, err := h.engine.RestrictQuery(ctx, h.perms.CabinetView, h.store.Cabinets(), user)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	cabinets, err := restricted.(CabinetQuery).Fetch(ctx)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cabinets)
}

// GetCabinet retrieves a cabinet and the documents in it the user may view.
func (h *Handlers) GetCabinet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cabinetID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if !h.checkObject(w, r, acls.Object{Type: "cabinet", ID: cabinetID}, h.perms.CabinetView) {
		return
	}

	cabinet, err := h.store.GetCabinet(ctx, cabinetID)
	if errors.Is(err, ErrCabinetNotFound) {
		httputil.WriteNotFoundError(w, "not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, cabinet)
}

// FileDocument files a document into a cabinet.
func (h *Handlers) FileDocument(w http.ResponseWriter, r *http.Request) {
	h.changeFiling(w, r, h.perms.CabinetAddDocument, h.store.AddDocumentToCabinet)
}

// UnfileDocument removes a document from a cabinet.
func (h *Handlers) UnfileDocument(w http.ResponseWriter, r *http.Request) {
	h.changeFiling(w, r, h.perms.CabinetRemoveDocument, h.store.RemoveDocumentFromCabinet)
}

func (h *Handlers) changeFiling(w http.ResponseWriter, r *http.Request, perm permissions.Permission, op func(ctx context.Context, cabinetID, documentID int64) error) {
	ctx := r.Context()

	cabinetID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	documentID, err := httputil.ParsePathInt64(r, "document_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if !h.checkObject(w, r, acls.Object{Type: "cabinet", ID: cabinetID}, perm) {
		return
	}

	if err := op(ctx, cabinetID, documentID); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteNoContent(w)
}

// CreateTag creates a tag.
func (h *Handlers) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
		Color string `json:"color"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Label == "" {
		httputil.WriteBadRequest(w, "label is required")
		return
	}

	tag := &Tag{Label: req.Label, Color: req.Color}
	if err := h.store.CreateTag(r.Context(), tag); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tag)
}
