// Package view builds CouchDB design documents, queries them through a store
// and keeps the server copies in step with local definitions.
package view

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/kubusdb/kubus/pkg/constants"
)

// Function is a view entry: a map source and an optional reduce source.
type Function struct {
	Map    string `json:"map" yaml:"map"`
	Reduce string `json:"reduce,omitempty" yaml:"reduce,omitempty"`
}

// Index is a search index entry.
type Index struct {
	Analyzer string `json:"analyzer,omitempty" yaml:"analyzer,omitempty"`
	Index    string `json:"index" yaml:"index"`
}

// DesignDocument is the stored form of a Builder.
type DesignDocument struct {
	ID       string              `json:"_id"`
	Language string              `json:"language"`
	Views    map[string]Function `json:"views"`
	Lists    map[string]string   `json:"lists"`
	Shows    map[string]string   `json:"shows"`
	Indexes  map[string]Index    `json:"indexes,omitempty"`
}

// Definition capabilities picked up by New. Each one supplies the source of
// the corresponding "main" entry.
type (
	Namer interface {
		Name() string
	}
	Mapper interface {
		Map() string
	}
	Reducer interface {
		Reduce() string
	}
	Lister interface {
		List() string
	}
	Shower interface {
		Show() string
	}
	// Registrar adds entries beyond "main".
	Registrar interface {
		Register(b *Builder) error
	}
)

// Builder collects the views, lists, shows and search indexes of one design
// document. It is safe for concurrent use.
type Builder struct {
	mu      sync.RWMutex
	name    string
	views   map[string]Function
	lists   map[string]string
	shows   map[string]string
	indexes map[string]Index
}

// NewBuilder returns a builder for "_design/<name>" holding no-op "main"
// view, list and show functions.
func NewBuilder(name string) (*Builder, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty design document name", constants.ErrInvalidArgument)
	}

	b := newBuilder(name)
	if err := b.RegisterView(constants.DefaultName, NoopMap); err != nil {
		return nil, err
	}
	if err := b.RegisterList(constants.DefaultName, NoopList); err != nil {
		return nil, err
	}
	if err := b.RegisterShow(constants.DefaultName, NoopShow); err != nil {
		return nil, err
	}
	return b, nil
}

func newBuilder(name string) *Builder {
	return &Builder{
		name:    name,
		views:   map[string]Function{},
		lists:   map[string]string{},
		shows:   map[string]string{},
		indexes: map[string]Index{},
	}
}

// New builds a design document from def. The name comes from Name() or the
// Go type name; Map, Reduce, List and Show replace the "main" placeholders;
// Register adds anything else.
func New(def any) (*Builder, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", constants.ErrInvalidArgument)
	}

	name := ""
	if n, ok := def.(Namer); ok {
		name = n.Name()
	} else {
		rt := reflect.TypeOf(def)
		for rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		name = rt.Name()
	}

	b, err := NewBuilder(name)
	if err != nil {
		return nil, err
	}

	mapFn := NoopMap
	if m, ok := def.(Mapper); ok {
		mapFn = m.Map()
	}
	var reduce []string
	if r, ok := def.(Reducer); ok {
		reduce = append(reduce, r.Reduce())
	}
	if err := b.RegisterView(constants.DefaultName, mapFn, reduce...); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if l, ok := def.(Lister); ok {
		if err := b.RegisterList(constants.DefaultName, l.List()); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	if s, ok := def.(Shower); ok {
		if err := b.RegisterShow(constants.DefaultName, s.Show()); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	if r, ok := def.(Registrar); ok {
		if err := r.Register(b); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}

	return b, nil
}

func (b *Builder) Name() string {
	return b.name
}

// ID returns the design document id, "_design/<name>".
func (b *Builder) ID() string {
	return constants.DesignPrefix + b.name
}

// RegisterView adds or replaces the view name. At most one reduce may be
// given; it is either a function or one of CouchDB's built-in reducers.
func (b *Builder) RegisterView(name, mapFn string, reduceFn ...string) error {
	if name == "" {
		return fmt.Errorf("%w: empty view name", constants.ErrInvalidArgument)
	}
	if len(reduceFn) > 1 {
		return fmt.Errorf("%w: view %q has %d reduce functions", constants.ErrInvalidArgument, name, len(reduceFn))
	}

	m, err := Normalize(mapFn)
	if err != nil {
		return fmt.Errorf("view %q map: %w", name, err)
	}
	fn := Function{Map: m}
	if len(reduceFn) == 1 {
		if fn.Reduce, err = normalizeReduce(reduceFn[0]); err != nil {
			return fmt.Errorf("view %q reduce: %w", name, err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.views[name] = fn
	return nil
}

func (b *Builder) RegisterList(name, listFn string) error {
	return b.register(b.lists, "list", name, listFn)
}

func (b *Builder) RegisterShow(name, showFn string) error {
	return b.register(b.shows, "show", name, showFn)
}

// RegisterIndex adds a search index. An empty analyzer leaves the server
// default in place.
func (b *Builder) RegisterIndex(name, analyzer, indexFn string) error {
	if name == "" {
		return fmt.Errorf("%w: empty index name", constants.ErrInvalidArgument)
	}
	src, err := Normalize(indexFn)
	if err != nil {
		return fmt.Errorf("index %q: %w", name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.indexes[name] = Index{Analyzer: analyzer, Index: src}
	return nil
}

func (b *Builder) register(into map[string]string, kind, name, fn string) error {
	if name == "" {
		return fmt.Errorf("%w: empty %s name", constants.ErrInvalidArgument, kind)
	}
	src, err := Normalize(fn)
	if err != nil {
		return fmt.Errorf("%s %q: %w", kind, name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	into[name] = src
	return nil
}

func (b *Builder) HasView(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.views[name]
	return ok
}

func (b *Builder) HasList(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.lists[name]
	return ok
}

func (b *Builder) HasShow(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.shows[name]
	return ok
}

func (b *Builder) HasIndex(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.indexes[name]
	return ok
}

// Views returns the registered view names, sorted.
func (b *Builder) Views() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.views))
	for n := range b.views {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DesignDocument returns a copy of the current registries. Later
// registrations do not affect documents already returned.
func (b *Builder) DesignDocument() DesignDocument {
	b.mu.RLock()
	defer b.mu.RUnlock()

	doc := DesignDocument{
		ID:       b.ID(),
		Language: constants.DesignLanguage,
		Views:    copyMap(b.views),
		Lists:    copyMap(b.lists),
		Shows:    copyMap(b.shows),
	}
	if len(b.indexes) > 0 {
		doc.Indexes = copyMap(b.indexes)
	}
	return doc
}

// copyMap is a full copy since every value type here holds only strings.
func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
