package view_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubusdb/kubus/internal/fakestore"
	"github.com/kubusdb/kubus/pkg/constants"
	"github.com/kubusdb/kubus/pkg/store"
	"github.com/kubusdb/kubus/pkg/view"
)

func catsBuilder(t *testing.T) *view.Builder {
	t.Helper()
	b, err := view.New(Cats{})
	require.NoError(t, err)
	return b
}

func TestSyncInsertsMissingDocument(t *testing.T) {
	s := fakestore.New()
	sync := view.NewSynchronizer(s, zerolog.Nop())

	require.NoError(t, sync.SyncBuilders(context.Background(), catsBuilder(t)))

	assert.Equal(t, 1, s.Count(fakestore.OpInsert))
	assert.Equal(t, 0, s.Count(fakestore.OpDestroy))

	stored := s.Doc("_design/Cats")
	require.NotNil(t, stored)
	assert.Equal(t, "javascript", stored["language"])
}

func TestSyncReplacesExistingDocument(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New()
	_, err := s.Insert(ctx, map[string]any{
		"_id":   "_design/Cats",
		"views": map[string]any{"stale": map[string]any{"map": "function(doc) {}"}},
	})
	require.NoError(t, err)
	s.Reset()

	require.NoError(t, view.NewSynchronizer(s, zerolog.Nop()).SyncBuilders(ctx, catsBuilder(t)))

	assert.Equal(t, 1, s.Count(fakestore.OpGet))
	assert.Equal(t, 1, s.Count(fakestore.OpDestroy))
	assert.Equal(t, 1, s.Count(fakestore.OpInsert))

	views := s.Doc("_design/Cats")["views"].(map[string]any)
	assert.NotContains(t, views, "stale")
	assert.Contains(t, views, "main")
	assert.Contains(t, views, "by_owner")
}

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New()
	sync := view.NewSynchronizer(s, zerolog.Nop())
	other, err := view.NewBuilder("other")
	require.NoError(t, err)

	require.NoError(t, sync.SyncBuilders(ctx, catsBuilder(t), other))
	first := withoutRevs(s)

	require.NoError(t, sync.SyncBuilders(ctx, catsBuilder(t), other))
	second := withoutRevs(s)

	assert.Equal(t, []string{"_design/Cats", "_design/other"}, s.IDs())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second sync changed the design documents:\n%s", diff)
	}
}

func withoutRevs(s *fakestore.Store) map[string]map[string]any {
	out := map[string]map[string]any{}
	for _, id := range s.IDs() {
		d := s.Doc(id)
		delete(d, "_rev")
		out[id] = d
	}
	return out
}

func TestSyncFailureNamesTheDocument(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New()
	s.Fail(fakestore.FailureConfig{Op: fakestore.OpGet, ID: "_design/Cats", Status: 500, Reason: "boom"})
	other, err := view.NewBuilder("other")
	require.NoError(t, err)

	err = view.NewSynchronizer(s, zerolog.Nop()).WithConcurrency(1).SyncBuilders(ctx, catsBuilder(t), other)
	require.Error(t, err)
	assert.ErrorIs(t, err, constants.ErrSync)
	assert.ErrorIs(t, err, constants.ErrStore)

	var serr *view.SyncError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "_design/Cats", serr.DesignID)
	assert.Equal(t, 500, store.StatusCode(err))
	assert.Contains(t, err.Error(), "_design/Cats")

	// the other document is still reconciled
	assert.NotNil(t, s.Doc("_design/other"))
	assert.Nil(t, s.Doc("_design/Cats"))
}

func TestSyncDestroyFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New()
	_, err := s.Insert(ctx, map[string]any{"_id": "_design/Cats"})
	require.NoError(t, err)
	s.Fail(fakestore.FailureConfig{Op: fakestore.OpDestroy, Status: 409})

	err = view.NewSynchronizer(s, zerolog.Nop()).SyncBuilders(ctx, catsBuilder(t))
	assert.ErrorIs(t, err, constants.ErrConflict)
	assert.Equal(t, 1, s.Count(fakestore.OpInsert), "only the seed insert")
}
