package view_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubusdb/kubus/pkg/constants"
	"github.com/kubusdb/kubus/pkg/view"
)

const catsYAML = `name: cats
views:
  main:
    map: function map(doc) { if (doc.type == 'Cat') emit(doc.name, null) }
    reduce: _count
  by_owner:
    map: |
      function(doc) {
        if (doc.owner) emit(doc.owner.name, 1)
      }
lists:
  csv: function(head, req) { send('x') }
shows:
  main: function(doc, req) { return doc.name }
indexes:
  by_name:
    analyzer: standard
    index: function(doc) { index('name', doc.name) }
`

const dogsJSON = `{
  // comments and trailing commas are fine
  "views": {
    "main": {"map": "function(doc) { if (doc.type == 'Dog') emit(doc._id, null) }"},
  },
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "cats.view.yaml"), catsYAML)
	writeFile(t, filepath.Join(dir, "nested", "deeper", "birds.view.yaml"), "views:\n  main:\n    map: function(doc) {}\n")
	writeFile(t, filepath.Join(dir, "notes.yaml"), "views: {}")
	writeFile(t, filepath.Join(dir, "README.md"), "# views")

	builders, err := view.LoadDir(dir, ".view.yaml")
	require.NoError(t, err)
	require.Len(t, builders, 2)

	cats := builders[0]
	assert.Equal(t, "_design/cats", cats.ID())
	doc := cats.DesignDocument()
	assert.Equal(t, view.Function{Map: "function(doc) { if (doc.type == 'Cat') emit(doc.name, null) }", Reduce: "_count"}, doc.Views["main"])
	assert.Equal(t, "function(doc) {\n  if (doc.owner) emit(doc.owner.name, 1)\n}", doc.Views["by_owner"].Map)
	assert.Equal(t, view.NoopList, doc.Lists["main"])
	assert.Contains(t, doc.Lists, "csv")
	assert.Equal(t, "function(doc, req) { return doc.name }", doc.Shows["main"])
	assert.Equal(t, "standard", doc.Indexes["by_name"].Analyzer)

	assert.Equal(t, "_design/birds", builders[1].ID())
}

func TestLoadDirJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "dogs.view.json"), dogsJSON)
	writeFile(t, filepath.Join(dir, "cats.view.yaml"), catsYAML)

	builders, err := view.LoadDir(dir, ".view.json")
	require.NoError(t, err)
	require.Len(t, builders, 1)
	assert.Equal(t, "_design/dogs", builders[0].ID())
	assert.True(t, builders[0].HasView("main"))
}

func TestLoadDirMissing(t *testing.T) {
	_, err := view.LoadDir(filepath.Join(t.TempDir(), "nope"), ".view.yaml")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoadDirRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.view.yaml"), "views:\n  main:\n    map: emit(doc._id)\n")

	_, err := view.LoadDir(dir, ".view.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, constants.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "bad.view.yaml")

	dir = t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.view.yaml"), "views: [")
	_, err = view.LoadDir(dir, ".view.yaml")
	assert.Error(t, err)
}

func TestLoadDirRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.view.yaml"), "name: cats\n")
	writeFile(t, filepath.Join(dir, "b.view.yaml"), "name: cats\n")

	_, err := view.LoadDir(dir, ".view.yaml")
	assert.ErrorIs(t, err, constants.ErrInvalidArgument)
}
