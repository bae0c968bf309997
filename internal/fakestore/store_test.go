package fakestore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubusdb/kubus/internal/fakestore"
	"github.com/kubusdb/kubus/pkg/constants"
	"github.com/kubusdb/kubus/pkg/store"
)

func TestInsertUpdateDestroy(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New()

	res, err := s.Insert(ctx, map[string]any{"_id": "c1", "name": "Whiskers"})
	require.NoError(t, err)
	assert.Equal(t, "c1", res.ID)
	assert.Regexp(t, `^1-[0-9a-f]{32}$`, res.Rev)

	_, err = s.Insert(ctx, map[string]any{"_id": "c1", "name": "Stale"})
	assert.ErrorIs(t, err, constants.ErrConflict)

	res2, err := s.Insert(ctx, map[string]any{"_id": "c1", "_rev": res.Rev, "name": "Tom"})
	require.NoError(t, err)
	assert.Regexp(t, `^2-`, res2.Rev)

	var got map[string]any
	require.NoError(t, s.Get(ctx, "c1", &got))
	assert.Equal(t, "Tom", got["name"])

	_, err = s.Destroy(ctx, "c1", res.Rev)
	assert.ErrorIs(t, err, constants.ErrConflict)
	_, err = s.Destroy(ctx, "c1", res2.Rev)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Get(ctx, "c1", &got), constants.ErrNotFound)

	assert.Equal(t, 3, s.Count(fakestore.OpInsert))
	assert.Equal(t, 2, s.Count(fakestore.OpGet))
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New()
	s.Fail(fakestore.FailureConfig{Op: fakestore.OpInsert, Status: 500, Times: 1})

	_, err := s.Insert(ctx, map[string]any{"_id": "a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, constants.ErrStore)
	assert.Equal(t, 500, store.StatusCode(err))

	_, err = s.Insert(ctx, map[string]any{"_id": "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Count(fakestore.OpInsert))
}

func TestStubs(t *testing.T) {
	ctx := context.Background()
	s := fakestore.New()
	s.AddStubResponse(fakestore.StubResponse{
		Op:     fakestore.OpView,
		Design: "_design/main",
		Name:   "main",
		View:   &store.ViewResult{TotalRows: 1, Rows: []store.Row{{ID: "a"}}},
	})

	res, err := s.View(ctx, "_design/main", "main", store.Options{"key": "a"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.TotalRows)

	_, err = s.View(ctx, "_design/main", "other", nil)
	assert.ErrorIs(t, err, constants.ErrNotFound)

	calls := s.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].Opts["key"])
}
