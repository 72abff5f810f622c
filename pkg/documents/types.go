package documents

import (
	"time"

	"github.com/google/uuid"
)

// DocumentType categorizes documents. Grants placed on a type apply to every
// document of that type through inheritance.
type DocumentType struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Document is a stored document's metadata record. The binary content itself
// lives in an external object store and is out of scope here.
type Document struct {
	ID          int64     `json:"id"`
	UUID        uuid.UUID `json:"uuid"`
	TypeID      int64     `json:"type_id"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Trashed     bool      `json:"trashed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Cabinet is a hierarchical container. A document may live in many cabinets;
// grants on a cabinet reach its documents and its descendant cabinets.
type Cabinet struct {
	ID       int64  `json:"id"`
	Label    string `json:"label"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// Tag is a free-form marker attachable to documents.
type Tag struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Color string `json:"color"`
}
