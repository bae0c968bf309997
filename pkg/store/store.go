// Package store owns the connection to a CouchDB database and exposes the
// operations the rest of kubus is built on.
//
// Every operation takes a context, performs exactly one round trip and is
// never retried. Failures reported by the server are returned as *StatusError,
// which matches constants.ErrNotFound, constants.ErrConflict or
// constants.ErrStore with errors.Is.
package store

import (
	"context"
)

// Store is the document store boundary consumed by models and views.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get decodes the document with the given id into dst.
	Get(ctx context.Context, id string, dst any) error
	// Insert creates or updates doc. Documents carrying an "_id" are written
	// under that id, and a "_rev" marks an update.
	Insert(ctx context.Context, doc any) (*Result, error)
	Destroy(ctx context.Context, id, rev string) (*Result, error)
	Copy(ctx context.Context, id, newID string) (*Result, error)
	Bulk(ctx context.Context, docs []any) ([]Result, error)
	// Fetch returns the documents for keys, in order. Missing keys yield a
	// row carrying an Error instead of a Doc.
	Fetch(ctx context.Context, keys []string) ([]Row, error)

	AttachmentInsert(ctx context.Context, id, name string, data []byte, contentType, rev string) (*Result, error)
	AttachmentGet(ctx context.Context, id, name string) ([]byte, error)
	AttachmentDestroy(ctx context.Context, id, name, rev string) (*Result, error)

	View(ctx context.Context, designID, viewName string, opts Options) (*ViewResult, error)
	ViewWithList(ctx context.Context, designID, viewName, listName string, opts Options) ([]byte, error)
	Show(ctx context.Context, designID, showName, docID string, opts Options) ([]byte, error)
	Search(ctx context.Context, designID, indexName string, opts Options) (*SearchResult, error)
}
