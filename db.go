package kubus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/kubusdb/kubus/pkg/constants"
	"github.com/kubusdb/kubus/pkg/logger"
	"github.com/kubusdb/kubus/pkg/model"
	"github.com/kubusdb/kubus/pkg/store"
	"github.com/kubusdb/kubus/pkg/validation"
	"github.com/kubusdb/kubus/pkg/view"
)

// Options configure Setup.
type Options struct {
	// URL of the CouchDB server, credentials included when needed.
	URL string
	// Name of the database.
	Name string

	// ViewsFolder is searched recursively for files ending in ViewsSuffix.
	// A folder that does not exist holds no views.
	ViewsFolder string
	ViewsSuffix string
	// Views are design document definitions, see view.New.
	Views []any
	// SkipSync connects without touching design documents.
	SkipSync bool

	Logger     *zerolog.Logger
	HTTPClient *http.Client
	Registerer prometheus.Registerer
	// Connector shares one handle between several Setup calls. The first
	// connection wins.
	Connector *store.Connector
	Validator *validation.Validator
}

// DB is a connected database with its models and views.
type DB struct {
	connector *store.Connector
	handle    *store.Handle
	models    *model.Manager
	builders  []*view.Builder
	views     map[string]*view.Queries
	logger    zerolog.Logger
}

// Setup connects to the database and synchronizes its design documents.
func Setup(ctx context.Context, opts Options) (*DB, error) {
	if opts.URL == "" {
		return nil, &ConfigurationError{Field: "url", Value: opts.URL}
	}
	if opts.Name == "" {
		return nil, &ConfigurationError{Field: "name", Value: opts.Name}
	}
	if opts.ViewsFolder == "" {
		opts.ViewsFolder = constants.DefaultViewsFolder
	}
	if opts.ViewsSuffix == "" {
		opts.ViewsSuffix = constants.DefaultViewsSuffix
	}

	log := logger.Default()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	cfg, err := store.ParseConfig(opts.URL, opts.Name)
	if err != nil {
		return nil, &ConfigurationError{Field: "url", Value: opts.URL, Err: err}
	}
	cfg.Logger = log
	cfg.Registerer = opts.Registerer
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	builders, err := loadViews(opts)
	if err != nil {
		return nil, err
	}

	connector := opts.Connector
	if connector == nil {
		connector = &store.Connector{}
	}
	handle, err := connector.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if !opts.SkipSync {
		if err := view.NewSynchronizer(handle, log).SyncBuilders(ctx, builders...); err != nil {
			if opts.Connector == nil {
				_ = connector.Close()
			}
			return nil, err
		}
	}

	db := &DB{
		connector: connector,
		handle:    handle,
		models:    model.NewManager(handle, opts.Validator, log),
		builders:  builders,
		views:     make(map[string]*view.Queries, len(builders)),
		logger:    log,
	}
	for _, b := range builders {
		db.views[b.Name()] = view.Bind(handle, b)
	}

	log.Info().Str("db", opts.Name).Int("views", len(builders)).Msg("kubus ready")
	return db, nil
}

func loadViews(opts Options) ([]*view.Builder, error) {
	var builders []*view.Builder
	for _, def := range opts.Views {
		b, err := view.New(def)
		if err != nil {
			return nil, err
		}
		builders = append(builders, b)
	}

	fromFiles, err := view.LoadDir(opts.ViewsFolder, opts.ViewsSuffix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	builders = append(builders, fromFiles...)

	seen := make(map[string]bool, len(builders))
	for _, b := range builders {
		if seen[b.Name()] {
			return nil, fmt.Errorf("%w: %s is defined twice", constants.ErrInvalidArgument, b.ID())
		}
		seen[b.Name()] = true
	}
	sort.Slice(builders, func(i, j int) bool { return builders[i].Name() < builders[j].Name() })
	return builders, nil
}

func (db *DB) Store() *store.Handle {
	return db.handle
}

func (db *DB) Models() *model.Manager {
	return db.models
}

// View returns the queries of the design document name.
func (db *DB) View(name string) (*view.Queries, error) {
	q, ok := db.views[name]
	if !ok {
		return nil, fmt.Errorf("%w: design document %q", constants.ErrNotRegistered, name)
	}
	return q, nil
}

// Builders returns the design documents known to db, sorted by name.
func (db *DB) Builders() []*view.Builder {
	return append([]*view.Builder(nil), db.builders...)
}

// Close waits for pending model hooks and closes the connection.
func (db *DB) Close() error {
	db.models.Wait()
	return db.connector.Close()
}
