package codec_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubusdb/kubus/internal/codec"
)

type cat struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name"`
	Age  int    `json:"age,omitempty"`
}

func TestProject(t *testing.T) {
	c := codec.New()
	in := &cat{ID: "c1", Name: "Whiskers"}

	m, err := codec.Project(c, in)
	require.NoError(t, err)

	assert.Equal(t, "c1", m["_id"])
	assert.Equal(t, "Whiskers", m["name"])
	assert.NotContains(t, m, "age")

	// the source is untouched
	assert.Equal(t, &cat{ID: "c1", Name: "Whiskers"}, in)
}

func TestEncoderDecoder(t *testing.T) {
	c := codec.New()
	buf := bytes.NewBuffer(nil)

	require.NoError(t, c.NewEncoder(buf).Encode(cat{Name: "Tom"}))

	var out cat
	require.NoError(t, c.NewDecoder(buf).Decode(&out))
	assert.Equal(t, "Tom", out.Name)
}
