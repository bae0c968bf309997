package view_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubusdb/kubus/pkg/constants"
	"github.com/kubusdb/kubus/pkg/view"
)

const (
	catMap   = "function (doc) { if (doc.type == 'Cat') emit(doc.name, null) }"
	ownerMap = "function byOwner(doc) { if (doc.owner) emit(doc.owner.name, 1) }"
)

type Cats struct{}

func (Cats) Map() string    { return catMap }
func (Cats) Reduce() string { return "_count" }
func (Cats) Show() string   { return "function(doc, req) { return doc.name }" }

func (Cats) Register(b *view.Builder) error {
	return b.RegisterView("by_owner", ownerMap, "_sum")
}

type renamed struct{}

func (renamed) Name() string { return "felines" }

func TestNewBuilderDefaults(t *testing.T) {
	b, err := view.NewBuilder("test")
	require.NoError(t, err)

	doc := b.DesignDocument()
	assert.Equal(t, "_design/test", doc.ID)
	assert.Equal(t, "javascript", doc.Language)
	assert.Equal(t, map[string]view.Function{"main": {Map: view.NoopMap}}, doc.Views)
	assert.Equal(t, map[string]string{"main": view.NoopList}, doc.Lists)
	assert.Equal(t, map[string]string{"main": view.NoopShow}, doc.Shows)
	assert.Nil(t, doc.Indexes)

	_, err = view.NewBuilder("")
	assert.ErrorIs(t, err, constants.ErrInvalidArgument)
}

func TestNewFromDefinition(t *testing.T) {
	b, err := view.New(Cats{})
	require.NoError(t, err)
	assert.Equal(t, "_design/Cats", b.ID())

	doc := b.DesignDocument()
	assert.Equal(t, view.Function{Map: "function(doc) { if (doc.type == 'Cat') emit(doc.name, null) }", Reduce: "_count"}, doc.Views["main"])
	assert.Equal(t, view.Function{Map: "function(doc) { if (doc.owner) emit(doc.owner.name, 1) }", Reduce: "_sum"}, doc.Views["by_owner"])
	assert.Equal(t, view.NoopList, doc.Lists["main"])
	assert.Equal(t, "function(doc, req) { return doc.name }", doc.Shows["main"])

	b, err = view.New(&renamed{})
	require.NoError(t, err)
	assert.Equal(t, "_design/felines", b.ID())
	assert.Equal(t, []string{"main"}, b.Views())

	_, err = view.New(nil)
	assert.ErrorIs(t, err, constants.ErrInvalidArgument)
}

func TestRegisterIsAdditive(t *testing.T) {
	b, err := view.NewBuilder("cats")
	require.NoError(t, err)

	require.NoError(t, b.RegisterView("main", catMap))
	require.NoError(t, b.RegisterView("secondary", ownerMap))
	require.NoError(t, b.RegisterList("csv", "function(head, req) { send('x') }"))
	require.NoError(t, b.RegisterShow("html", "function(doc, req) { return '<h1/>' }"))

	doc := b.DesignDocument()
	assert.Contains(t, doc.Views, "main")
	assert.Contains(t, doc.Views, "secondary")
	assert.Len(t, doc.Lists, 2)
	assert.Len(t, doc.Shows, 2)
	assert.Equal(t, []string{"main", "secondary"}, b.Views())
}

func TestRegisterRejectsBadArguments(t *testing.T) {
	b, err := view.NewBuilder("cats")
	require.NoError(t, err)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"empty view name", func() error { return b.RegisterView("", catMap) }},
		{"map not a function", func() error { return b.RegisterView("v", "emit(doc._id)") }},
		{"reduce not a function", func() error { return b.RegisterView("v", catMap, "_median") }},
		{"two reduces", func() error { return b.RegisterView("v", catMap, "_sum", "_count") }},
		{"empty list name", func() error { return b.RegisterList("", view.NoopList) }},
		{"list not a function", func() error { return b.RegisterList("l", "42") }},
		{"show not a function", func() error { return b.RegisterShow("s", "") }},
		{"index not a function", func() error { return b.RegisterIndex("i", "standard", "index(doc)") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.fn(), constants.ErrInvalidArgument)
		})
	}

	assert.False(t, b.HasView("v"))
	assert.False(t, b.HasList("l"))
	assert.False(t, b.HasShow("s"))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"function(doc) { emit(doc._id) }", "function(doc) { emit(doc._id) }"},
		{"  function map(doc) { emit(doc._id) }\n", "function(doc) { emit(doc._id) }"},
		{"function $reduce (keys, values, rereduce) { return sum(values) }", "function(keys, values, rereduce) { return sum(values) }"},
		{"function (head, req) {}", "function(head, req) {}"},
	}
	for _, tt := range tests {
		got, err := view.Normalize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := view.Normalize("doc => emit(doc._id)")
	assert.ErrorIs(t, err, constants.ErrInvalidArgument)
}

func TestDesignDocumentIsPure(t *testing.T) {
	b, err := view.New(Cats{})
	require.NoError(t, err)
	require.NoError(t, b.RegisterIndex("by_name", "standard", "function(doc) { index('name', doc.name) }"))

	first := b.DesignDocument()
	second := b.DesignDocument()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("design document changed between calls (-first +second):\n%s", diff)
	}

	first.Views["main"] = view.Function{Map: "tampered"}
	delete(first.Shows, "main")
	if diff := cmp.Diff(second, b.DesignDocument()); diff != "" {
		t.Fatalf("mutating a returned document leaked into the builder:\n%s", diff)
	}

	require.NoError(t, b.RegisterView("late", catMap))
	assert.NotContains(t, second.Views, "late")
}
