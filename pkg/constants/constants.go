package constants

import "time"

const (
	// DesignPrefix prefixes the id of every design document.
	DesignPrefix = "_design/"
	// DesignLanguage is the language CouchDB evaluates design functions in.
	DesignLanguage = "javascript"
	// DefaultName is the view, list and show name used when none is given.
	DefaultName = "main"

	// DefaultViewsFolder is the folder scanned for view definition files.
	DefaultViewsFolder = "dbviews"
	// DefaultViewsSuffix is the file suffix of view definition files.
	DefaultViewsSuffix = ".view.yaml"

	// DefaultHTTPTimeout bounds every request made to the store.
	DefaultHTTPTimeout = 10 * time.Second
	// DefaultSyncConcurrency bounds how many design documents reconcile at once.
	DefaultSyncConcurrency = 4
)

var (
	HTTPScheme       = "http"
	HTTPSecureScheme = "https"
)
