package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kubusdb/kubus/internal/codec"
)

// jsonParams are query parameters CouchDB expects JSON encoded.
var jsonParams = map[string]bool{
	"key":       true,
	"keys":      true,
	"startkey":  true,
	"start_key": true,
	"endkey":    true,
	"end_key":   true,
}

// httpTransport issues the requests kivik has no API for: list, show and
// search functions of a design document.
type httpTransport struct {
	baseURL string
	db      string
	user    *url.Userinfo
	codec   *codec.JSON

	httpClient *http.Client
}

func newHTTPTransport(c *Config) *httpTransport {
	return &httpTransport{
		baseURL:    c.BaseURL,
		db:         c.Name,
		user:       c.URL.User,
		codec:      c.Codec,
		httpClient: c.HTTPClient,
	}
}

// designPath joins a design document id and function segments under the
// database, escaping every segment except the "_design/" prefix.
func (t *httpTransport) designPath(designID string, segments ...string) string {
	parts := []string{url.PathEscape(t.db)}
	name := strings.TrimPrefix(designID, "_design/")
	parts = append(parts, "_design", url.PathEscape(name))
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return "/" + strings.Join(parts, "/")
}

func (t *httpTransport) encodeParams(opts Options) (url.Values, error) {
	values := url.Values{}
	for k, v := range opts {
		if k == "keys" {
			continue
		}
		if s, ok := v.(string); ok && !jsonParams[k] {
			values.Set(k, s)
			continue
		}
		data, err := t.codec.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode query parameter %q: %w", k, err)
		}
		values.Set(k, string(data))
	}
	return values, nil
}

// Do sends a GET, or a POST with {"keys": [...]} when opts carry keys,
// and returns the raw response body.
func (t *httpTransport) Do(ctx context.Context, op, path string, opts Options) ([]byte, error) {
	params, err := t.encodeParams(opts)
	if err != nil {
		return nil, err
	}

	target := t.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	method := http.MethodGet
	var body io.Reader = http.NoBody
	if keys, ok := opts["keys"]; ok {
		data, err := t.codec.Marshal(map[string]any{"keys": keys})
		if err != nil {
			return nil, err
		}
		method = http.MethodPost
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.user != nil {
		password, _ := t.user.Password()
		req.SetBasicAuth(t.user.Username(), password)
	}

	return t.MakeRequest(op, req)
}

func (t *httpTransport) MakeRequest(op string, req *http.Request) ([]byte, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBytes, nil
	}

	return nil, fromResponse(op, resp.StatusCode, respBytes)
}
