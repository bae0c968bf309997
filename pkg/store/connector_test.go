package store_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubusdb/kubus/internal/fakecouch"
	"github.com/kubusdb/kubus/pkg/constants"
	"github.com/kubusdb/kubus/pkg/store"
)

func TestConnectorWithoutConfig(t *testing.T) {
	var c store.Connector

	h, err := c.Connect(context.Background(), nil)
	require.ErrorIs(t, err, constants.ErrNotConfigured)
	assert.Nil(t, h)

	_, err = c.Handle()
	require.ErrorIs(t, err, constants.ErrNotConfigured)
}

func TestConnectorIsIdempotent(t *testing.T) {
	server := fakecouch.NewServer()
	defer server.Close()

	cfg, err := store.ParseConfig(server.URL(), "cats")
	require.NoError(t, err)
	cfg.HTTPClient = server.Client()
	cfg.Logger = zerolog.Nop()

	var c store.Connector
	first, err := c.Connect(context.Background(), cfg)
	require.NoError(t, err)

	other, err := store.ParseConfig(server.URL(), "dogs")
	require.NoError(t, err)
	other.HTTPClient = server.Client()

	second, err := c.Connect(context.Background(), other)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "cats", second.Name())
	assert.Equal(t, 0, server.Count(http.MethodPut, "/dogs"))

	third, err := c.Handle()
	require.NoError(t, err)
	assert.Same(t, first, third)

	require.NoError(t, c.Close())
	_, err = c.Handle()
	require.ErrorIs(t, err, constants.ErrNotConfigured)
}

func TestParseConfig(t *testing.T) {
	cfg, err := store.ParseConfig("https://admin:pw@couch.example.com:6984/prefix/", "cats")
	require.NoError(t, err)
	assert.Equal(t, "https://couch.example.com:6984/prefix", cfg.BaseURL)
	assert.Equal(t, "cats", cfg.Name)
	assert.Equal(t, "admin", cfg.URL.User.Username())

	_, err = store.ParseConfig("ws://localhost:5984", "cats")
	require.ErrorIs(t, err, constants.ErrConfiguration)

	_, err = store.ParseConfig("not a url", "cats")
	require.ErrorIs(t, err, constants.ErrConfiguration)
}

func TestOptionsMerge(t *testing.T) {
	base := store.Options{"key": "a", "limit": 1}
	merged := store.Merge(base, store.Options{"limit": 10, "descending": true})

	assert.Equal(t, store.Options{"key": "a", "limit": 10, "descending": true}, merged)
	assert.Equal(t, store.Options{"key": "a", "limit": 1}, base)
}
