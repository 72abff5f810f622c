package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docvault/pkg/acls"
)

var (
	// ErrDocumentNotFound indicates a document lookup that matched no row.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDocumentTypeNotFound indicates a document type lookup that matched
	// no row.
	ErrDocumentTypeNotFound = errors.New("document type not found")

	// ErrCabinetNotFound indicates a cabinet lookup that matched no row.
	ErrCabinetNotFound = errors.New("cabinet not found")

	// ErrTagNotFound indicates a tag lookup that matched no row.
	ErrTagNotFound = errors.New("tag not found")
)

// Store persists documents, document types, cabinets, and tags.
type Store struct {
	db *sql.DB
}

// NewStore creates a document store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateDocumentType creates a document type.
func (s *Store) CreateDocumentType(ctx context.Context, dt *DocumentType) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_types (name, label) VALUES ($1, $2) RETURNING id
	`, dt.Name, dt.Label).Scan(&dt.ID)
	if err != nil {
		return fmt.Errorf("failed to create document type: %w", err)
	}
	return nil
}

// GetDocumentType retrieves a document type by ID.
func (s *Store) GetDocumentType(ctx context.Context, typeID int64) (*DocumentType, error) {
	var dt DocumentType
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, label FROM document_types WHERE id = $1
	`, typeID).Scan(&dt.ID, &dt.Name, &dt.Label)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrDocumentTypeNotFound, typeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document type: %w", err)
	}
	return &dt, nil
}

// ListDocumentTypes returns all document types ordered by name.
func (s *Store) ListDocumentTypes(ctx context.Context) ([]DocumentType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, label FROM document_types ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list document types: %w", err)
	}
	defer rows.Close()

	var out []DocumentType
	for rows.Next() {
		var dt DocumentType
		if err := rows.Scan(&dt.ID, &dt.Name, &dt.Label); err != nil {
			return nil, err
		}
		out = append(out, dt)
	}
	return out, rows.Err()
}

// CreateDocument creates a document, assigning it a fresh UUID.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	doc.UUID = uuid.New()
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (uuid, document_type_id, label, description, trashed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $6)
		RETURNING id
	`, doc.UUID.String(), doc.TypeID, doc.Label, doc.Description, now, now).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	doc.Trashed = false
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

const documentColumns = `id, uuid, document_type_id, label, description, trashed, created_at, updated_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*Document, error) {
	var doc Document
	var rawUUID string
	err := row.Scan(&doc.ID, &rawUUID, &doc.TypeID, &doc.Label, &doc.Description,
		&doc.Trashed, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.UUID, err = uuid.Parse(rawUUID)
	if err != nil {
		return nil, fmt.Errorf("malformed document uuid: %w", err)
	}
	return &doc, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, documentID int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE id = $1
	`, documentID)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// GetDocumentByUUID retrieves a document by its public UUID.
func (s *Store) GetDocumentByUUID(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents WHERE uuid = $1
	`, id.String())
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// SetDocumentTrashed moves a document in or out of the trash.
func (s *Store) SetDocumentTrashed(ctx context.Context, documentID int64, trashed bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET trashed = $1, updated_at = $2 WHERE id = $3
	`, trashed, time.Now().UTC(), documentID)
	if err != nil {
		return fmt.Errorf("failed to update document trash state: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	return nil
}

// DeleteDocument permanently removes a document.
func (s *Store) DeleteDocument(ctx context.Context, documentID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	return nil
}

// Documents returns a queryset over non-trashed documents.
func (s *Store) Documents() DocumentQuery {
	return DocumentQuery{db: s.db}
}

// TrashedDocuments returns a queryset over trashed documents.
func (s *Store) TrashedDocuments() DocumentQuery {
	return DocumentQuery{db: s.db, trashed: true}
}

// CreateCabinet creates a cabinet.
func (s *Store) CreateCabinet(ctx context.Context, cabinet *Cabinet) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cabinets (label, parent_id) VALUES ($1, $2) RETURNING id
	`, cabinet.Label, cabinet.ParentID).Scan(&cabinet.ID)
	if err != nil {
		return fmt.Errorf("failed to create cabinet: %w", err)
	}
	return nil
}

// GetCabinet retrieves a cabinet by ID.
func (s *Store) GetCabinet(ctx context.Context, cabinetID int64) (*Cabinet, error) {
	var cabinet Cabinet
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, parent_id FROM cabinets WHERE id = $1
	`, cabinetID).Scan(&cabinet.ID, &cabinet.Label, &cabinet.ParentID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrCabinetNotFound, cabinetID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cabinet: %w", err)
	}
	return &cabinet, nil
}

// Cabinets returns a queryset over all cabinets.
func (s *Store) Cabinets() CabinetQuery {
	return CabinetQuery{db: s.db}
}

// AddDocumentToCabinet files a document into a cabinet. Idempotent.
func (s *Store) AddDocumentToCabinet(ctx context.Context, cabinetID, documentID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cabinet_documents (cabinet_id, document_id) VALUES ($1, $2)
		ON CONFLICT (cabinet_id, document_id) DO NOTHING
	`, cabinetID, documentID)
	if err != nil {
		return fmt.Errorf("failed to add document to cabinet: %w", err)
	}
	return nil
}

// RemoveDocumentFromCabinet removes a document from a cabinet. No-op if
// absent.
func (s *Store) RemoveDocumentFromCabinet(ctx context.Context, cabinetID, documentID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM cabinet_documents WHERE cabinet_id = $1 AND document_id = $2
	`, cabinetID, documentID)
	if err != nil {
		return fmt.Errorf("failed to remove document from cabinet: %w", err)
	}
	return nil
}

// DocumentCabinets returns the IDs of the cabinets a document is filed in.
func (s *Store) DocumentCabinets(ctx context.Context, documentID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cabinet_id FROM cabinet_documents WHERE document_id = $1 ORDER BY cabinet_id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list document cabinets: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// CreateTag creates a tag.
func (s *Store) CreateTag(ctx context.Context, tag *Tag) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tags (label, color) VALUES ($1, $2) RETURNING id
	`, tag.Label, tag.Color).Scan(&tag.ID)
	if err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	return nil
}

// AttachTag attaches a tag to a document. Idempotent.
func (s *Store) AttachTag(ctx context.Context, documentID, tagID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_tags (document_id, tag_id) VALUES ($1, $2)
		ON CONFLICT (document_id, tag_id) DO NOTHING
	`, documentID, tagID)
	if err != nil {
		return fmt.Errorf("failed to attach tag: %w", err)
	}
	return nil
}

// DetachTag detaches a tag from a document. No-op if absent.
func (s *Store) DetachTag(ctx context.Context, documentID, tagID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM document_tags WHERE document_id = $1 AND tag_id = $2
	`, documentID, tagID)
	if err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}
	return nil
}

// DocumentTags returns the tags attached to a document.
func (s *Store) DocumentTags(ctx context.Context, documentID int64) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.label, t.color
		FROM tags t
		JOIN document_tags dt ON dt.tag_id = t.id
		WHERE dt.document_id = $1
		ORDER BY t.label
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list document tags: %w", err)
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Label, &tag.Color); err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

// DocumentQuery is an acls.Queryset over the documents table. The zero filter
// matches every document in the chosen trash state; FilterIDs narrows it to an
// explicit ID set.
type DocumentQuery struct {
	db         *sql.DB
	trashed    bool
	ids        []int64
	restricted bool
}

// ObjectType implements acls.Queryset.
func (q DocumentQuery) ObjectType() string { return "document" }

// FilterIDs implements acls.Queryset.
func (q DocumentQuery) FilterIDs(ids []int64) acls.Queryset {
	q.ids = ids
	q.restricted = true
	return q
}

// Fetch executes the query.
func (q DocumentQuery) Fetch(ctx context.Context) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE trashed = $1`
	args := []interface{}{q.trashed}
	if q.restricted {
		if len(q.ids) == 0 {
			return nil, nil
		}
		query += ` AND id IN (` + placeholderRange(2, len(q.ids)) + `)`
		for _, id := range q.ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// CabinetQuery is an acls.Queryset over the cabinets table.
type CabinetQuery struct {
	db         *sql.DB
	ids        []int64
	restricted bool
}

// ObjectType implements acls.Queryset.
func (q CabinetQuery) ObjectType() string { return "cabinet" }

// FilterIDs implements acls.Queryset.
func (q CabinetQuery) FilterIDs(ids []int64) acls.Queryset {
	q.ids = ids
	q.restricted = true
	return q
}

// Fetch executes the query.
func (q CabinetQuery) Fetch(ctx context.Context) ([]Cabinet, error) {
	query := `SELECT id, label, parent_id FROM cabinets`
	var args []interface{}
	if q.restricted {
		if len(q.ids) == 0 {
			return nil, nil
		}
		query += ` WHERE id IN (` + placeholderRange(1, len(q.ids)) + `)`
		for _, id := range q.ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY id`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cabinets: %w", err)
	}
	defer rows.Close()

	var out []Cabinet
	for rows.Next() {
		var cabinet Cabinet
		if err := rows.Scan(&cabinet.ID, &cabinet.Label, &cabinet.ParentID); err != nil {
			return nil, err
		}
		out = append(out, cabinet)
	}
	return out, rows.Err()
}

// placeholderRange builds "$start, $start+1, …" for n placeholders.
func placeholderRange(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
