package store

import (
	"github.com/goccy/go-json"
)

// Options are query parameters passed through to the store unchanged,
// e.g. "limit", "descending", "include_docs", "reduce", "group".
type Options map[string]any

// Clone returns a shallow copy of o that is never nil.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Merge returns base with every entry of over layered on top.
func Merge(base, over Options) Options {
	out := base.Clone()
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Result is the store's confirmation of a write.
type Result struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id"`
	Rev   string `json:"rev,omitempty"`
	Error string `json:"error,omitempty"`
}

// Row is a single row of a view, _all_docs or fetch response.
type Row struct {
	ID    string          `json:"id,omitempty"`
	Key   json.RawMessage `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Doc   json.RawMessage `json:"doc,omitempty"`
	Error string          `json:"error,omitempty"`
}

// ScanDoc decodes the included document of the row into dst.
func (r Row) ScanDoc(dst any) error {
	return json.Unmarshal(r.Doc, dst)
}

// ScanValue decodes the emitted value of the row into dst.
func (r Row) ScanValue(dst any) error {
	return json.Unmarshal(r.Value, dst)
}

// ScanKey decodes the emitted key of the row into dst.
func (r Row) ScanKey(dst any) error {
	return json.Unmarshal(r.Key, dst)
}

// ViewResult is the response of a view query.
type ViewResult struct {
	TotalRows int64 `json:"total_rows"`
	Offset    int64 `json:"offset"`
	Rows      []Row `json:"rows"`
}

// SearchRow is a single hit of a search index query.
type SearchRow struct {
	ID     string          `json:"id"`
	Order  json.RawMessage `json:"order,omitempty"`
	Fields json.RawMessage `json:"fields,omitempty"`
	Doc    json.RawMessage `json:"doc,omitempty"`
}

// SearchResult is the response of a search index query.
type SearchResult struct {
	TotalRows int64       `json:"total_rows"`
	Bookmark  string      `json:"bookmark,omitempty"`
	Rows      []SearchRow `json:"rows"`
}
