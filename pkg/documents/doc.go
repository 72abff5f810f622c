// Package documents implements the document domain: document types,
// documents, hierarchical cabinets, and tags.
//
// The package owns no authorization logic of its own. Setup registers the
// document object types and their valid permissions with the ACL engine's
// model registry, along with the inheritance graph grants propagate across: a
// grant on a document type reaches every document of that type, a grant on a
// cabinet reaches the documents filed in it and every descendant cabinet's
// documents. Handlers filter all reads through the engine, so a caller only
// ever sees what their roles allow.
package documents
