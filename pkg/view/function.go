package view

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kubusdb/kubus/pkg/constants"
)

// Placeholder sources registered for the "main" entries of a builder whose
// definition does not provide its own.
const (
	NoopMap  = "function(doc) {}"
	NoopList = "function(head, req) {}"
	NoopShow = "function(doc, req) {}"
)

var builtinReducers = map[string]bool{
	"_sum":                   true,
	"_count":                 true,
	"_stats":                 true,
	"_approx_count_distinct": true,
}

var functionHead = regexp.MustCompile(`^function\s*(?:[A-Za-z_$][\w$]*)?\s*\(`)

// Normalize turns a JavaScript function expression into the anonymous form
// CouchDB stores, e.g. "function map(doc) {...}" becomes "function(doc) {...}".
// Sources are evaluated on the server and cannot reference anything outside
// their own body.
func Normalize(src string) (string, error) {
	src = strings.TrimSpace(src)
	loc := functionHead.FindStringIndex(src)
	if loc == nil || !strings.HasSuffix(src, "}") {
		return "", fmt.Errorf("%w: not a function expression: %q", constants.ErrInvalidArgument, abbreviate(src))
	}
	return "function(" + src[loc[1]:], nil
}

func normalizeReduce(src string) (string, error) {
	src = strings.TrimSpace(src)
	if builtinReducers[src] {
		return src, nil
	}
	return Normalize(src)
}

func abbreviate(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
