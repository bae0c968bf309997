// Package fakestore provides an in-memory store.Store for tests.
//
// It keeps documents as decoded JSON, issues CouchDB-like revisions, counts
// every call and can be told to fail specific operations.
package fakestore

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid"

	"github.com/kubusdb/kubus/pkg/store"
)

// Operation names, as recorded in Calls and matched by FailureConfig.
const (
	OpGet               = "get"
	OpInsert            = "insert"
	OpDestroy           = "destroy"
	OpCopy              = "copy"
	OpBulk              = "bulk"
	OpFetch             = "fetch"
	OpAttachmentInsert  = "attachment_insert"
	OpAttachmentGet     = "attachment_get"
	OpAttachmentDestroy = "attachment_destroy"
	OpView              = "view"
	OpViewWithList      = "view_with_list"
	OpShow              = "show"
	OpSearch            = "search"
)

// Call is a recorded store invocation.
type Call struct {
	Op   string
	ID   string
	Name string
	Opts store.Options
}

// FailureConfig makes matching calls fail with a *store.StatusError.
// Empty ID matches every id. Times <= 0 fails forever.
type FailureConfig struct {
	Op     string
	ID     string
	Status int
	Reason string
	Times  int
}

// StubResponse is returned by query operations (view, list, show, search)
// for the given design document and name.
type StubResponse struct {
	Op     string
	Design string
	Name   string
	View   *store.ViewResult
	Search *store.SearchResult
	Body   []byte
}

type attachment struct {
	contentType string
	data        []byte
}

// Store is an in-memory store.Store.
type Store struct {
	mu          sync.Mutex
	docs        map[string]map[string]any
	attachments map[string]map[string]attachment
	calls       []Call
	failures    []*FailureConfig
	stubs       []StubResponse
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		docs:        map[string]map[string]any{},
		attachments: map[string]map[string]attachment{},
	}
}

// AddStubResponse registers a canned query response.
func (s *Store) AddStubResponse(stub StubResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs = append(s.stubs, stub)
}

// Fail registers a failure.
func (s *Store) Fail(f FailureConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &f)
}

// Calls returns a copy of every recorded call.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many calls of op were made.
func (s *Store) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset forgets recorded calls, keeping documents.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Doc returns the raw stored document, or nil.
func (s *Store) Doc(id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// record must be called with s.mu held.
func (s *Store) record(c Call) error {
	s.calls = append(s.calls, c)
	for _, f := range s.failures {
		if f.Op != c.Op || (f.ID != "" && f.ID != c.ID) {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				f.Op = ""
			}
		}
		reason := f.Reason
		if reason == "" {
			reason = http.StatusText(f.Status)
		}
		return &store.StatusError{Op: c.Op, StatusCode: f.Status, Description: reason}
	}
	return nil
}

func statusError(op string, status int, reason string) error {
	return &store.StatusError{Op: op, StatusCode: status, Description: reason}
}

func nextRev(rev string) string {
	n := 0
	if i := strings.IndexByte(rev, '-'); i > 0 {
		n, _ = strconv.Atoi(rev[:i])
	}
	return fmt.Sprintf("%d-%s", n+1, strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", ""))
}

func (s *Store) Get(_ context.Context, id string, dst any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: OpGet, ID: id}); err != nil {
		return err
	}
	d, ok := s.docs[id]
	if !ok {
		return statusError(OpGet, http.StatusNotFound, "missing")
	}
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func (s *Store) Insert(_ context.Context, doc any) (*store.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := project(doc)
	if err != nil {
		return nil, err
	}
	id, _ := d["_id"].(string)
	if err := s.record(Call{Op: OpInsert, ID: id}); err != nil {
		return nil, err
	}
	return s.put(OpInsert, d)
}

// put must be called with s.mu held.
func (s *Store) put(op string, d map[string]any) (*store.Result, error) {
	id, _ := d["_id"].(string)
	rev, _ := d["_rev"].(string)
	if id == "" {
		id = strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", "")
	}

	current, exists := s.docs[id]
	currentRev := ""
	if exists {
		currentRev, _ = current["_rev"].(string)
	}
	if exists != (rev != "") || rev != currentRev {
		return nil, statusError(op, http.StatusConflict, "Document update conflict.")
	}

	newRev := nextRev(rev)
	d["_id"] = id
	d["_rev"] = newRev
	s.docs[id] = d
	return &store.Result{OK: true, ID: id, Rev: newRev}, nil
}

func (s *Store) Destroy(_ context.Context, id, rev string) (*store.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: OpDestroy, ID: id}); err != nil {
		return nil, err
	}
	d, ok := s.docs[id]
	if !ok {
		return nil, statusError(OpDestroy, http.StatusNotFound, "missing")
	}
	if d["_rev"] != rev {
		return nil, statusError(OpDestroy, http.StatusConflict, "Document update conflict.")
	}
	delete(s.docs, id)
	delete(s.attachments, id)
	return &store.Result{OK: true, ID: id, Rev: nextRev(rev)}, nil
}

func (s *Store) Copy(_ context.Context, id, newID string) (*store.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: OpCopy, ID: id, Name: newID}); err != nil {
		return nil, err
	}
	d, ok := s.docs[id]
	if !ok {
		return nil, statusError(OpCopy, http.StatusNotFound, "missing")
	}
	if _, exists := s.docs[newID]; exists {
		return nil, statusError(OpCopy, http.StatusConflict, "Document update conflict.")
	}
	cp := make(map[string]any, len(d))
	for k, v := range d {
		cp[k] = v
	}
	cp["_id"] = newID
	delete(cp, "_rev")
	return s.put(OpCopy, cp)
}

func (s *Store) Bulk(_ context.Context, docs []any) ([]store.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: OpBulk}); err != nil {
		return nil, err
	}
	out := make([]store.Result, 0, len(docs))
	for _, doc := range docs {
		d, err := project(doc)
		if err != nil {
			return nil, err
		}
		res, err := s.put(OpBulk, d)
		if err != nil {
			id, _ := d["_id"].(string)
			out = append(out, store.Result{ID: id, Error: "conflict"})
			continue
		}
		out = append(out, *res)
	}
	return out, nil
}

func (s *Store) Fetch(_ context.Context, keys []string) ([]store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: OpFetch}); err != nil {
		return nil, err
	}
	rows := make([]store.Row, 0, len(keys))
	for _, k := range keys {
		key, _ := json.Marshal(k)
		d, ok := s.docs[k]
		if !ok {
			rows = append(rows, store.Row{Key: key, Error: "not_found"})
			continue
		}
		doc, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		value, _ := json.Marshal(map[string]any{"rev": d["_rev"]})
		rows = append(rows, store.Row{ID: k, Key: key, Value: value, Doc: doc})
	}
	return rows, nil
}

func (s *Store) AttachmentInsert(_ context.Context, id, name string, data []byte, contentType, rev string) (*store.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: OpAttachmentInsert, ID: id, Name: name}); err != nil {
		return nil, err
	}
	d, ok := s.docs[id]
	if !ok {
		return nil, statusError(OpAttachmentInsert, http.StatusNotFound, "missing")
	}
	if d["_rev"] != rev {
		return nil, statusError(OpAttachmentInsert, http.StatusConflict, "Document update conflict.")
	}
	if s.attachments[id] == nil {
		s.attachments[id] = map[string]attachment{}
	}
	s.attachments[id][name] = attachment{contentType: contentType, data: append([]byte(nil), data...)}
	newRev := nextRev(rev)
	d["_rev"] = newRev
	return &store.Result{OK: true, ID: id, Rev: newRev}, nil
}

func (s *Store) AttachmentGet(_ context.Context, id, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: OpAttachmentGet, ID: id, Name: name}); err != nil {
		return nil, err
	}
	a, ok := s.attachments[id][name]
	if !ok {
		return nil, statusError(OpAttachmentGet, http.StatusNotFound, "Document is missing attachment")
	}
	return append([]byte(nil), a.data...), nil
}

func (s *Store) AttachmentDestroy(_ context.Context, id, name, rev string) (*store.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: OpAttachmentDestroy, ID: id, Name: name}); err != nil {
		return nil, err
	}
	d, ok := s.docs[id]
	if !ok {
		return nil, statusError(OpAttachmentDestroy, http.StatusNotFound, "missing")
	}
	if d["_rev"] != rev {
		return nil, statusError(OpAttachmentDestroy, http.StatusConflict, "Document update conflict.")
	}
	if _, ok := s.attachments[id][name]; !ok {
		return nil, statusError(OpAttachmentDestroy, http.StatusNotFound, "Document is missing attachment")
	}
	delete(s.attachments[id], name)
	newRev := nextRev(rev)
	d["_rev"] = newRev
	return &store.Result{OK: true, ID: id, Rev: newRev}, nil
}

// stub must be called with s.mu held.
func (s *Store) stub(op, design, name string) (StubResponse, error) {
	for i := len(s.stubs) - 1; i >= 0; i-- {
		st := s.stubs[i]
		if st.Op == op && st.Design == design && st.Name == name {
			return st, nil
		}
	}
	return StubResponse{}, statusError(op, http.StatusNotFound, "missing_named_"+op)
}

func (s *Store) View(_ context.Context, designID, viewName string, opts store.Options) (*store.ViewResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: OpView, ID: designID, Name: viewName, Opts: opts.Clone()}); err != nil {
		return nil, err
	}
	st, err := s.stub(OpView, designID, viewName)
	if err != nil {
		return nil, err
	}
	if st.View == nil {
		return &store.ViewResult{}, nil
	}
	res := *st.View
	res.Rows = append([]store.Row(nil), st.View.Rows...)
	return &res, nil
}

func (s *Store) ViewWithList(_ context.Context, designID, viewName, listName string, opts store.Options) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: OpViewWithList, ID: designID, Name: listName + "/" + viewName, Opts: opts.Clone()}); err != nil {
		return nil, err
	}
	st, err := s.stub(OpViewWithList, designID, listName+"/"+viewName)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), st.Body...), nil
}

func (s *Store) Show(_ context.Context, designID, showName, docID string, opts store.Options) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: OpShow, ID: designID, Name: showName, Opts: opts.Clone()}); err != nil {
		return nil, err
	}
	if docID != "" {
		if _, ok := s.docs[docID]; !ok {
			return nil, statusError(OpShow, http.StatusNotFound, "missing")
		}
	}
	st, err := s.stub(OpShow, designID, showName)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), st.Body...), nil
}

func (s *Store) Search(_ context.Context, designID, indexName string, opts store.Options) (*store.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Op: OpSearch, ID: designID, Name: indexName, Opts: opts.Clone()}); err != nil {
		return nil, err
	}
	st, err := s.stub(OpSearch, designID, indexName)
	if err != nil {
		return nil, err
	}
	if st.Search == nil {
		return &store.SearchResult{}, nil
	}
	res := *st.Search
	return &res, nil
}

// IDs returns the stored ids, sorted.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func project(doc any) (map[string]any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var d map[string]any
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	if d == nil {
		d = map[string]any{}
	}
	return d, nil
}
