package store

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kubusdb/kubus/pkg/constants"
)

func TestFromResponse(t *testing.T) {
	err := fromResponse("get", http.StatusNotFound, []byte(`{"error":"not_found","reason":"missing"}`))
	assert.ErrorIs(t, err, constants.ErrNotFound)
	assert.Equal(t, "get: 404 missing", err.Error())

	err = fromResponse("show", http.StatusBadGateway, []byte(`<html>bad gateway</html>`))
	assert.ErrorIs(t, err, constants.ErrStore)
	assert.Equal(t, "show: 502 Bad Gateway", err.Error())

	err = fromResponse("insert", http.StatusConflict, []byte(`{"error":"conflict"}`))
	assert.ErrorIs(t, err, constants.ErrConflict)
	assert.Equal(t, "insert: 409 conflict", err.Error())
}

func TestFromDriverKeepsStatusErrors(t *testing.T) {
	orig := &StatusError{Op: "get", StatusCode: http.StatusNotFound, Description: "missing"}
	assert.Same(t, orig, fromDriver("other", orig))
	assert.NoError(t, fromDriver("get", nil))

	err := fromDriver("get", errors.New("dial tcp: refused"))
	assert.ErrorIs(t, err, constants.ErrStore)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}
