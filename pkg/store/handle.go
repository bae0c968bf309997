package store

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/buger/jsonparser"
	kivik "github.com/go-kivik/kivik/v4"
	"github.com/go-kivik/kivik/v4/couchdb"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/kubusdb/kubus/internal/codec"
	"github.com/kubusdb/kubus/pkg/logger"
)

// Handle is the connection to one database. It keeps no per-call state
// and is safe for concurrent use.
type Handle struct {
	name    string
	client  *kivik.Client
	db      *kivik.DB
	raw     *httpTransport
	codec   *codec.JSON
	logger  zerolog.Logger
	metrics *metrics
}

var _ Store = (*Handle)(nil)

// Open connects to the server described by c and makes sure the database
// exists, creating it when absent.
func Open(ctx context.Context, c *Config) (*Handle, error) {
	if err := c.preConnectionChecks(); err != nil {
		return nil, err
	}

	opts := []kivik.Option{
		couchdb.OptionHTTPClient(c.HTTPClient),
		couchdb.OptionNoRequestCompression(),
	}
	// Credentials travel as basic auth on every request, never in the DSN.
	if c.URL.User != nil {
		password, _ := c.URL.User.Password()
		opts = append(opts, couchdb.BasicAuth(c.URL.User.Username(), password))
	}

	client, err := kivik.New("couch", c.BaseURL, opts...)
	if err != nil {
		return nil, fromDriver("connect", err)
	}

	h := &Handle{
		name:    c.Name,
		client:  client,
		raw:     newHTTPTransport(c),
		codec:   c.Codec,
		logger:  logger.Component(c.Logger, "store").With().Str("db", c.Name).Logger(),
		metrics: newMetrics(c.Registerer),
	}

	if err := h.ensureDB(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	h.db = client.DB(c.Name)
	if err := h.db.Err(); err != nil {
		_ = client.Close()
		return nil, fromDriver("connect", err)
	}

	h.logger.Info().Str("url", c.BaseURL).Msg("connected")
	return h, nil
}

func (h *Handle) ensureDB(ctx context.Context) error {
	start := time.Now()
	err := h.client.CreateDB(ctx, h.name)
	if kivik.HTTPStatus(err) == http.StatusPreconditionFailed {
		h.logger.Debug().Msg("database already exists")
		err = nil
	}
	return h.done("create_db", start, h.name, fromDriver("create_db", err))
}

// Name returns the database name.
func (h *Handle) Name() string {
	return h.name
}

// Close releases the underlying client.
func (h *Handle) Close() error {
	return h.client.Close()
}

func (h *Handle) done(op string, start time.Time, id string, err error) error {
	h.metrics.observe(op, start, err)

	if err != nil {
		h.logger.Warn().Err(err).Str("op", op).Str("id", id).Msg("store request failed")
		return err
	}

	h.logger.Debug().Str("op", op).Str("id", id).Dur("took", time.Since(start)).Msg("store request")
	return nil
}

func (h *Handle) Get(ctx context.Context, id string, dst any) error {
	start := time.Now()
	err := h.db.Get(ctx, id).ScanDoc(dst)
	return h.done("get", start, id, fromDriver("get", err))
}

func (h *Handle) Insert(ctx context.Context, doc any) (*Result, error) {
	start := time.Now()

	data, err := h.codec.Marshal(doc)
	if err != nil {
		return nil, err
	}

	// CouchDB picks the id itself when the document carries none.
	id, _ := jsonparser.GetString(data, "_id")

	var rev string
	if id == "" {
		id, rev, err = h.db.CreateDoc(ctx, json.RawMessage(data))
	} else {
		rev, err = h.db.Put(ctx, id, json.RawMessage(data))
	}
	if err := h.done("insert", start, id, fromDriver("insert", err)); err != nil {
		return nil, err
	}

	return &Result{OK: true, ID: id, Rev: rev}, nil
}

func (h *Handle) Destroy(ctx context.Context, id, rev string) (*Result, error) {
	start := time.Now()
	newRev, err := h.db.Delete(ctx, id, rev)
	if err := h.done("destroy", start, id, fromDriver("destroy", err)); err != nil {
		return nil, err
	}
	return &Result{OK: true, ID: id, Rev: newRev}, nil
}

func (h *Handle) Copy(ctx context.Context, id, newID string) (*Result, error) {
	start := time.Now()
	rev, err := h.db.Copy(ctx, newID, id)
	if err := h.done("copy", start, id, fromDriver("copy", err)); err != nil {
		return nil, err
	}
	return &Result{OK: true, ID: newID, Rev: rev}, nil
}

func (h *Handle) Bulk(ctx context.Context, docs []any) ([]Result, error) {
	start := time.Now()
	results, err := h.db.BulkDocs(ctx, docs)
	if err := h.done("bulk", start, "", fromDriver("bulk", err)); err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		res := Result{OK: r.Error == nil, ID: r.ID, Rev: r.Rev}
		if r.Error != nil {
			res.Error = r.Error.Error()
		}
		out = append(out, res)
	}
	return out, nil
}

func (h *Handle) Fetch(ctx context.Context, keys []string) ([]Row, error) {
	start := time.Now()
	rs := h.db.AllDocs(ctx, kivik.Params(map[string]any{
		"keys":         keys,
		"include_docs": true,
	}))
	rows, _, err := collect(rs)
	if err := h.done("fetch", start, "", fromDriver("fetch", err)); err != nil {
		return nil, err
	}
	return rows, nil
}

func (h *Handle) AttachmentInsert(ctx context.Context, id, name string, data []byte, contentType, rev string) (*Result, error) {
	start := time.Now()
	att := &kivik.Attachment{
		Filename:    name,
		ContentType: contentType,
		Content:     io.NopCloser(bytes.NewReader(data)),
		Size:        int64(len(data)),
	}
	newRev, err := h.db.PutAttachment(ctx, id, att, kivik.Rev(rev))
	if err := h.done("attachment_insert", start, id, fromDriver("attachment_insert", err)); err != nil {
		return nil, err
	}
	return &Result{OK: true, ID: id, Rev: newRev}, nil
}

func (h *Handle) AttachmentGet(ctx context.Context, id, name string) ([]byte, error) {
	start := time.Now()
	att, err := h.db.GetAttachment(ctx, id, name)
	if err := h.done("attachment_get", start, id, fromDriver("attachment_get", err)); err != nil {
		return nil, err
	}
	defer att.Content.Close()

	return io.ReadAll(att.Content)
}

func (h *Handle) AttachmentDestroy(ctx context.Context, id, name, rev string) (*Result, error) {
	start := time.Now()
	newRev, err := h.db.DeleteAttachment(ctx, id, rev, name)
	if err := h.done("attachment_destroy", start, id, fromDriver("attachment_destroy", err)); err != nil {
		return nil, err
	}
	return &Result{OK: true, ID: id, Rev: newRev}, nil
}

func (h *Handle) View(ctx context.Context, designID, viewName string, opts Options) (*ViewResult, error) {
	start := time.Now()
	rs := h.db.Query(ctx, designID, viewName, kivik.Params(opts.Clone()))
	rows, meta, err := collect(rs)
	if err := h.done("view", start, designID, fromDriver("view", err)); err != nil {
		return nil, err
	}

	res := &ViewResult{Rows: rows}
	if meta != nil {
		res.TotalRows = meta.TotalRows
		res.Offset = meta.Offset
	}
	return res, nil
}

func (h *Handle) ViewWithList(ctx context.Context, designID, viewName, listName string, opts Options) ([]byte, error) {
	start := time.Now()
	body, err := h.raw.Do(ctx, "view_with_list", h.raw.designPath(designID, "_list", listName, viewName), opts)
	if err := h.done("view_with_list", start, designID, fromDriver("view_with_list", err)); err != nil {
		return nil, err
	}
	return body, nil
}

func (h *Handle) Show(ctx context.Context, designID, showName, docID string, opts Options) ([]byte, error) {
	start := time.Now()
	segments := []string{"_show", showName}
	if docID != "" {
		segments = append(segments, docID)
	}
	body, err := h.raw.Do(ctx, "show", h.raw.designPath(designID, segments...), opts)
	if err := h.done("show", start, designID, fromDriver("show", err)); err != nil {
		return nil, err
	}
	return body, nil
}

func (h *Handle) Search(ctx context.Context, designID, indexName string, opts Options) (*SearchResult, error) {
	start := time.Now()
	body, err := h.raw.Do(ctx, "search", h.raw.designPath(designID, "_search", indexName), opts)
	if err := h.done("search", start, designID, fromDriver("search", err)); err != nil {
		return nil, err
	}

	var res SearchResult
	if err := h.codec.Unmarshal(body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// collect drains a kivik result set into rows.
func collect(rs *kivik.ResultSet) ([]Row, *kivik.ResultMetadata, error) {
	defer rs.Close()

	rows := []Row{}
	for rs.Next() {
		var row Row
		row.ID, _ = rs.ID()
		_ = rs.ScanKey(&row.Key)
		_ = rs.ScanValue(&row.Value)

		var doc json.RawMessage
		if err := rs.ScanDoc(&doc); err == nil && len(doc) > 0 && string(doc) != "null" {
			row.Doc = doc
		}
		if row.Doc == nil && row.ID == "" && len(row.Value) == 0 {
			// rows for missing keys carry only the key and an error
			row.Error = "not_found"
		}
		rows = append(rows, row)
	}
	if err := rs.Err(); err != nil {
		return nil, nil, err
	}

	// _all_docs with keys reports no totals
	meta, err := rs.Metadata()
	if err != nil {
		return rows, nil, nil
	}
	return rows, meta, nil
}
