package view

import (
	"context"
	"fmt"

	"github.com/kubusdb/kubus/pkg/constants"
	"github.com/kubusdb/kubus/pkg/store"
)

// Queries runs the views, lists, shows and indexes of one design document.
// An empty name selects "main". Caller options are applied over the key
// parameters each method sets.
type Queries struct {
	store   store.Store
	builder *Builder
}

func Bind(s store.Store, b *Builder) *Queries {
	return &Queries{store: s, builder: b}
}

func (q *Queries) Builder() *Builder {
	return q.builder
}

// GetKey queries a view for an exact key.
func (q *Queries) GetKey(ctx context.Context, key any, viewName string, opts store.Options) (*store.ViewResult, error) {
	return q.view(ctx, viewName, store.Merge(store.Options{"key": key}, opts))
}

// GetKeys queries a view for several exact keys.
func (q *Queries) GetKeys(ctx context.Context, keys []any, viewName string, opts store.Options) (*store.ViewResult, error) {
	if keys == nil {
		return nil, fmt.Errorf("%w: keys must be a list", constants.ErrInvalidArgument)
	}
	return q.view(ctx, viewName, store.Merge(store.Options{"keys": keys}, opts))
}

// QueryRange queries a view between startkey and endkey, inclusive.
func (q *Queries) QueryRange(ctx context.Context, startkey, endkey any, viewName string, opts store.Options) (*store.ViewResult, error) {
	if startkey == nil || endkey == nil {
		return nil, fmt.Errorf("%w: startkey and endkey are required", constants.ErrInvalidArgument)
	}
	return q.view(ctx, viewName, store.Merge(store.Options{"startkey": startkey, "endkey": endkey}, opts))
}

// RawQuery queries a view with opts as given.
func (q *Queries) RawQuery(ctx context.Context, viewName string, opts store.Options) (*store.ViewResult, error) {
	return q.view(ctx, viewName, opts.Clone())
}

// GetList runs a list function over a view.
func (q *Queries) GetList(ctx context.Context, viewName, listName string, opts store.Options) ([]byte, error) {
	viewName, listName = orMain(viewName), orMain(listName)
	if !q.builder.HasView(viewName) {
		return nil, q.notRegistered("view", viewName)
	}
	if !q.builder.HasList(listName) {
		return nil, q.notRegistered("list", listName)
	}
	return q.store.ViewWithList(ctx, q.builder.ID(), viewName, listName, opts.Clone())
}

// GetShow renders docID through a show function.
func (q *Queries) GetShow(ctx context.Context, docID, showName string, opts store.Options) ([]byte, error) {
	showName = orMain(showName)
	if docID == "" {
		return nil, fmt.Errorf("%w: show needs a document id", constants.ErrInvalidArgument)
	}
	if !q.builder.HasShow(showName) {
		return nil, q.notRegistered("show", showName)
	}
	return q.store.Show(ctx, q.builder.ID(), showName, docID, opts.Clone())
}

// Search runs a Lucene query against a search index.
func (q *Queries) Search(ctx context.Context, indexName, query string, opts store.Options) (*store.SearchResult, error) {
	indexName = orMain(indexName)
	if !q.builder.HasIndex(indexName) {
		return nil, q.notRegistered("index", indexName)
	}
	return q.store.Search(ctx, q.builder.ID(), indexName, store.Merge(store.Options{"q": query}, opts))
}

func (q *Queries) view(ctx context.Context, viewName string, opts store.Options) (*store.ViewResult, error) {
	viewName = orMain(viewName)
	if !q.builder.HasView(viewName) {
		return nil, q.notRegistered("view", viewName)
	}
	return q.store.View(ctx, q.builder.ID(), viewName, opts)
}

func (q *Queries) notRegistered(kind, name string) error {
	return fmt.Errorf("%w: %s %q in %s", constants.ErrNotRegistered, kind, name, q.builder.ID())
}

func orMain(name string) string {
	if name == "" {
		return constants.DefaultName
	}
	return name
}
