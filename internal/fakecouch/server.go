// Package fakecouch provides a fake CouchDB HTTP server for testing purposes.
// It keeps databases in memory, enforces revision checks the way CouchDB does
// and answers design document function requests (_view, _list, _show,
// _search) from configurable stub responses.
//
// To inject failures, register a StubResponse or a FailureConfig that matches
// a request and describes the status and body the server should answer with.
package fakecouch

import (
	"crypto/md5" //nolint:gosec // attachment digests, as CouchDB computes them
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gofrs/uuid"
	"github.com/gorilla/mux"
)

// FunctionKind names the design document endpoint a stub answers.
type FunctionKind string

const (
	KindView   FunctionKind = "_view"
	KindList   FunctionKind = "_list"
	KindShow   FunctionKind = "_show"
	KindSearch FunctionKind = "_search"
)

// StubResponse defines a pre-configured response for a design function.
type StubResponse struct {
	Kind FunctionKind
	// Design is the design document name without the "_design/" prefix.
	Design string
	// Name is the view, list, show or index name.
	Name string

	Status      int
	ContentType string
	// Body is sent as is when it is a []byte or string, JSON encoded otherwise.
	Body any
}

// FailureConfig makes every request matching Method and PathPrefix fail.
type FailureConfig struct {
	Method     string
	PathPrefix string
	Status     int
	Error      string
	Reason     string
	// Times limits how many requests fail; 0 means all of them.
	Times int
}

// Request is a request the server received.
type Request struct {
	Method string
	Path   string
	Query  string
}

type attachment struct {
	contentType string
	data        []byte
}

type document struct {
	seq         int
	rev         string
	deleted     bool
	body        map[string]any
	attachments map[string]attachment
}

type database struct {
	docs map[string]*document
}

// Server is a fake CouchDB server.
type Server struct {
	mu       sync.RWMutex
	dbs      map[string]*database
	stubs    []StubResponse
	failures []*FailureConfig
	requests []Request

	router     *mux.Router
	httpServer *httptest.Server
}

// NewServer starts a fake CouchDB server on a random local port.
func NewServer() *Server {
	s := &Server{
		dbs:    make(map[string]*database),
		router: mux.NewRouter(),
	}
	s.routes()
	s.httpServer = httptest.NewServer(s)
	return s
}

// URL is the base URL of the server.
func (s *Server) URL() string {
	return s.httpServer.URL
}

// Client returns an HTTP client wired to the server.
func (s *Server) Client() *http.Client {
	return s.httpServer.Client()
}

func (s *Server) Close() {
	s.httpServer.Close()
}

// Stub registers a response for a design function. Later stubs win.
func (s *Server) Stub(stub StubResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs = append([]StubResponse{stub}, s.stubs...)
}

// Fail registers a failure injection.
func (s *Server) Fail(f FailureConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &f)
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests matched method and path prefix.
func (s *Server) Count(method, pathPrefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, pathPrefix) {
			n++
		}
	}
	return n
}

// Doc returns the stored body of a live document.
func (s *Server) Doc(db, id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dbs[db]
	if !ok {
		return nil, false
	}
	doc, ok := d.docs[id]
	if !ok || doc.deleted {
		return nil, false
	}
	return doc.render(), true
}

// Put stores a document directly, bypassing revision checks.
func (s *Server) Put(db string, body map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.database(db, true)
	id, _ := body["_id"].(string)
	doc, ok := d.docs[id]
	if !ok {
		doc = &document{attachments: map[string]attachment{}}
		d.docs[id] = doc
	}
	doc.write(body)
	return doc.rev
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
	failure := s.matchFailure(r)
	s.mu.Unlock()

	if failure != nil {
		writeError(w, failure.Status, failure.Error, failure.Reason)
		return
	}
	s.router.ServeHTTP(w, r)
}

func (s *Server) matchFailure(r *http.Request) *FailureConfig {
	for _, f := range s.failures {
		if f.Method != "" && f.Method != r.Method {
			continue
		}
		if !strings.HasPrefix(r.URL.Path, f.PathPrefix) {
			continue
		}
		if f.Times < 0 {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				f.Times = -1
			}
		}
		return f
	}
	return nil
}

func (s *Server) routes() {
	r := s.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "missing")
	})

	r.HandleFunc("/{db}", s.putDB).Methods(http.MethodPut)
	r.HandleFunc("/{db}", s.getDB).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{db}", s.postDoc).Methods(http.MethodPost)
	r.HandleFunc("/{db}/_all_docs", s.allDocs).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/{db}/_bulk_docs", s.bulkDocs).Methods(http.MethodPost)

	r.HandleFunc("/{db}/_design/{ddoc}/_view/{name}", s.function(KindView)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/{db}/_design/{ddoc}/_list/{name}/{view}", s.function(KindList)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/{db}/_design/{ddoc}/_show/{name}", s.function(KindShow)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/{db}/_design/{ddoc}/_show/{name}/{docid}", s.function(KindShow)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/{db}/_design/{ddoc}/_search/{name}", s.function(KindSearch)).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/{db}/_design/{ddoc}", s.getDoc).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{db}/_design/{ddoc}", s.putDoc).Methods(http.MethodPut)
	r.HandleFunc("/{db}/_design/{ddoc}", s.deleteDoc).Methods(http.MethodDelete)

	r.HandleFunc("/{db}/{docid}", s.getDoc).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{db}/{docid}", s.putDoc).Methods(http.MethodPut)
	r.HandleFunc("/{db}/{docid}", s.deleteDoc).Methods(http.MethodDelete)
	r.HandleFunc("/{db}/{docid}", s.copyDoc).Methods("COPY")

	r.HandleFunc("/{db}/{docid}/{att}", s.getAttachment).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{db}/{docid}/{att}", s.putAttachment).Methods(http.MethodPut)
	r.HandleFunc("/{db}/{docid}/{att}", s.deleteAttachment).Methods(http.MethodDelete)
}

func docID(r *http.Request) string {
	vars := mux.Vars(r)
	if ddoc, ok := vars["ddoc"]; ok {
		return "_design/" + ddoc
	}
	return vars["docid"]
}

func (s *Server) database(name string, create bool) *database {
	d, ok := s.dbs[name]
	if !ok && create {
		d = &database{docs: make(map[string]*document)}
		s.dbs[name] = d
	}
	return d
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *database {
	d := s.database(mux.Vars(r)["db"], false)
	if d == nil {
		writeError(w, http.StatusNotFound, "not_found", "Database does not exist.")
	}
	return d
}

func (s *Server) putDB(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := mux.Vars(r)["db"]
	if _, ok := s.dbs[name]; ok {
		writeError(w, http.StatusPreconditionFailed, "file_exists", "The database could not be created, the file already exists.")
		return
	}
	s.database(name, true)
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) getDB(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := s.lookup(w, r)
	if d == nil {
		return
	}
	count := 0
	for _, doc := range d.docs {
		if !doc.deleted {
			count++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"db_name": mux.Vars(r)["db"], "doc_count": count})
}

func (s *Server) postDoc(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if _, hasID := body["_id"].(string); !hasID {
		body["_id"] = uuid.Must(uuid.NewV4()).String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.lookup(w, r)
	if d == nil {
		return
	}
	s.write(w, d, body["_id"].(string), body, "")
}

func (s *Server) getDoc(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := s.lookup(w, r)
	if d == nil {
		return
	}
	doc, ok := d.docs[docID(r)]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "missing")
		return
	}
	if doc.deleted {
		writeError(w, http.StatusNotFound, "not_found", "deleted")
		return
	}
	w.Header().Set("ETag", `"`+doc.rev+`"`)
	writeJSON(w, http.StatusOK, doc.render())
}

func (s *Server) putDoc(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	id := docID(r)
	body["_id"] = id

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.lookup(w, r)
	if d == nil {
		return
	}
	s.write(w, d, id, body, requestRev(r))
}

// write stores body under id after checking the revision the caller based
// its edit on, and answers with CouchDB's write confirmation.
func (s *Server) write(w http.ResponseWriter, d *database, id string, body map[string]any, rev string) {
	if bodyRev, ok := body["_rev"].(string); ok && rev == "" {
		rev = bodyRev
	}
	res, status := d.put(id, body, rev)
	if status != http.StatusCreated {
		writeError(w, status, "conflict", "Document update conflict.")
		return
	}
	w.Header().Set("ETag", `"`+res["rev"].(string)+`"`)
	writeJSON(w, http.StatusCreated, res)
}

func (d *database) put(id string, body map[string]any, rev string) (map[string]any, int) {
	doc, exists := d.docs[id]
	if exists && !doc.deleted && doc.rev != rev {
		return nil, http.StatusConflict
	}
	if (!exists || doc.deleted) && rev != "" && (!exists || doc.rev != rev) {
		return nil, http.StatusConflict
	}
	if !exists {
		doc = &document{attachments: map[string]attachment{}}
		d.docs[id] = doc
	}
	doc.write(body)
	return map[string]any{"ok": true, "id": id, "rev": doc.rev}, http.StatusCreated
}

func (doc *document) write(body map[string]any) {
	doc.seq++
	doc.rev = fmt.Sprintf("%d-%s", doc.seq, strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", ""))
	doc.deleted = false

	clean := make(map[string]any, len(body))
	for k, v := range body {
		if k == "_rev" || k == "_attachments" {
			continue
		}
		clean[k] = v
	}
	doc.body = clean
}

func (doc *document) render() map[string]any {
	out := make(map[string]any, len(doc.body)+2)
	for k, v := range doc.body {
		out[k] = v
	}
	out["_rev"] = doc.rev
	if len(doc.attachments) > 0 {
		stubs := make(map[string]any, len(doc.attachments))
		for name, att := range doc.attachments {
			stubs[name] = map[string]any{
				"content_type": att.contentType,
				"length":       len(att.data),
				"digest":       "md5-" + digest(att.data),
				"stub":         true,
			}
		}
		out["_attachments"] = stubs
	}
	return out
}

func (s *Server) deleteDoc(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.lookup(w, r)
	if d == nil {
		return
	}
	id := docID(r)
	doc, ok := d.docs[id]
	if !ok || doc.deleted {
		writeError(w, http.StatusNotFound, "not_found", "missing")
		return
	}
	if doc.rev != requestRev(r) {
		writeError(w, http.StatusConflict, "conflict", "Document update conflict.")
		return
	}
	doc.write(map[string]any{"_id": id})
	doc.deleted = true
	doc.attachments = map[string]attachment{}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "rev": doc.rev})
}

func (s *Server) copyDoc(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.lookup(w, r)
	if d == nil {
		return
	}
	src, ok := d.docs[docID(r)]
	if !ok || src.deleted {
		writeError(w, http.StatusNotFound, "not_found", "missing")
		return
	}

	dest := r.Header.Get("Destination")
	destRev := ""
	if i := strings.Index(dest, "?rev="); i >= 0 {
		dest, destRev = dest[:i], dest[i+len("?rev="):]
	}
	body := src.render()
	delete(body, "_rev")
	delete(body, "_attachments")
	body["_id"] = dest
	s.write(w, d, dest, body, destRev)
}

func (s *Server) bulkDocs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Docs []map[string]any `json:"docs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.lookup(w, r)
	if d == nil {
		return
	}
	results := make([]map[string]any, 0, len(req.Docs))
	for _, body := range req.Docs {
		id, _ := body["_id"].(string)
		if id == "" {
			id = uuid.Must(uuid.NewV4()).String()
			body["_id"] = id
		}
		rev, _ := body["_rev"].(string)
		res, status := d.put(id, body, rev)
		if status != http.StatusCreated {
			results = append(results, map[string]any{"id": id, "error": "conflict", "reason": "Document update conflict."})
			continue
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusCreated, results)
}

func (s *Server) allDocs(w http.ResponseWriter, r *http.Request) {
	var keys []string
	if r.Method == http.MethodPost {
		var req struct {
			Keys []string `json:"keys"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		keys = req.Keys
	} else if raw := r.URL.Query().Get("keys"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &keys); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
	}
	includeDocs := r.URL.Query().Get("include_docs") == "true"

	s.mu.RLock()
	defer s.mu.RUnlock()

	d := s.lookup(w, r)
	if d == nil {
		return
	}

	if keys == nil {
		for id, doc := range d.docs {
			if !doc.deleted {
				keys = append(keys, id)
			}
		}
		sort.Strings(keys)
	}

	rows := make([]map[string]any, 0, len(keys))
	for _, key := range keys {
		doc, ok := d.docs[key]
		if !ok || doc.deleted {
			rows = append(rows, map[string]any{"key": key, "error": "not_found"})
			continue
		}
		row := map[string]any{"id": key, "key": key, "value": map[string]any{"rev": doc.rev}}
		if includeDocs {
			row["doc"] = doc.render()
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_rows": len(d.docs), "offset": 0, "rows": rows})
}

func (s *Server) putAttachment(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.lookup(w, r)
	if d == nil {
		return
	}
	id := docID(r)
	doc, ok := d.docs[id]
	if !ok || doc.deleted {
		doc = &document{attachments: map[string]attachment{}}
		d.docs[id] = doc
		doc.write(map[string]any{"_id": id})
	} else if doc.rev != requestRev(r) {
		writeError(w, http.StatusConflict, "conflict", "Document update conflict.")
		return
	} else {
		doc.write(doc.body)
	}
	doc.attachments[mux.Vars(r)["att"]] = attachment{contentType: r.Header.Get("Content-Type"), data: data}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": id, "rev": doc.rev})
}

func (s *Server) getAttachment(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := s.lookup(w, r)
	if d == nil {
		return
	}
	doc, ok := d.docs[docID(r)]
	if !ok || doc.deleted {
		writeError(w, http.StatusNotFound, "not_found", "missing")
		return
	}
	att, ok := doc.attachments[mux.Vars(r)["att"]]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Document is missing attachment")
		return
	}
	w.Header().Set("Content-Type", att.contentType)
	w.Header().Set("ETag", `"`+digest(att.data)+`"`)
	w.Header().Set("Content-Length", fmt.Sprint(len(att.data)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(att.data)
	}
}

func (s *Server) deleteAttachment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.lookup(w, r)
	if d == nil {
		return
	}
	id := docID(r)
	doc, ok := d.docs[id]
	if !ok || doc.deleted {
		writeError(w, http.StatusNotFound, "not_found", "missing")
		return
	}
	if doc.rev != requestRev(r) {
		writeError(w, http.StatusConflict, "conflict", "Document update conflict.")
		return
	}
	name := mux.Vars(r)["att"]
	if _, ok := doc.attachments[name]; !ok {
		writeError(w, http.StatusNotFound, "not_found", "Document is missing attachment")
		return
	}
	delete(doc.attachments, name)
	doc.write(doc.body)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id, "rev": doc.rev})
}

// function answers design function requests from stubs. Views without a
// stub return no rows as long as the design document defines them.
func (s *Server) function(kind FunctionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		s.mu.RLock()
		defer s.mu.RUnlock()

		d := s.lookup(w, r)
		if d == nil {
			return
		}
		for _, stub := range s.stubs {
			if stub.Kind == kind && stub.Design == vars["ddoc"] && stub.Name == vars["name"] {
				writeStub(w, stub)
				return
			}
		}

		ddoc, ok := d.docs["_design/"+vars["ddoc"]]
		if !ok || ddoc.deleted {
			writeError(w, http.StatusNotFound, "not_found", "missing")
			return
		}
		section, _ := ddoc.body[strings.TrimPrefix(string(kind), "_")+"s"].(map[string]any)
		if kind == KindSearch {
			section, _ = ddoc.body["indexes"].(map[string]any)
		}
		if _, ok := section[vars["name"]]; !ok {
			writeError(w, http.StatusNotFound, "not_found", "missing_named_"+strings.TrimPrefix(string(kind), "_"))
			return
		}
		switch kind {
		case KindView:
			writeJSON(w, http.StatusOK, map[string]any{"total_rows": 0, "offset": 0, "rows": []any{}})
		case KindSearch:
			writeJSON(w, http.StatusOK, map[string]any{"total_rows": 0, "rows": []any{}})
		default:
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
		}
	}
}

func writeStub(w http.ResponseWriter, stub StubResponse) {
	status := stub.Status
	if status == 0 {
		status = http.StatusOK
	}
	switch body := stub.Body.(type) {
	case []byte:
		w.Header().Set("Content-Type", contentType(stub.ContentType, "text/plain"))
		w.WriteHeader(status)
		_, _ = w.Write(body)
	case string:
		w.Header().Set("Content-Type", contentType(stub.ContentType, "text/plain"))
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	default:
		writeJSON(w, status, body)
	}
}

func contentType(ct, fallback string) string {
	if ct == "" {
		return fallback
	}
	return ct
}

func requestRev(r *http.Request) string {
	if rev := r.URL.Query().Get("rev"); rev != "" {
		return rev
	}
	return strings.Trim(r.Header.Get("If-Match"), `"`)
}

func readBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	body := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return nil, false
	}
	return body, true
}

func digest(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec
	return base64.StdEncoding.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errName, reason string) {
	writeJSON(w, status, map[string]string{"error": errName, "reason": reason})
}
