package codec

import (
	"io"

	"github.com/goccy/go-json"
)

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// JSON implements Marshaler and Unmarshaler with goccy/go-json,
// the wire format every CouchDB endpoint speaks.
type JSON struct{}

// New returns the JSON codec.
func New() *JSON {
	return &JSON{}
}

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) NewEncoder(w io.Writer) Encoder {
	return json.NewEncoder(w)
}

func (JSON) Unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}

func (JSON) NewDecoder(r io.Reader) Decoder {
	return json.NewDecoder(r)
}

// Project encodes v and decodes it into a generic map, giving callers a
// read-only view of a document as it will be stored.
func Project(c *JSON, v any) (map[string]any, error) {
	data, err := c.Marshal(v)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	if err := c.Unmarshal(data, &out); err != nil {
		return nil, err
	}

	return out, nil
}
