package view

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kubusdb/kubus/pkg/constants"
	kubuslog "github.com/kubusdb/kubus/pkg/logger"
	"github.com/kubusdb/kubus/pkg/store"
)

// SyncError names the design document that could not be reconciled.
type SyncError struct {
	DesignID string
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: unable to create %s: %v", constants.ErrSync, e.DesignID, e.Err)
}

func (e *SyncError) Unwrap() []error {
	return []error{constants.ErrSync, e.Err}
}

// Synchronizer replaces server design documents with local ones.
// Runs are not coordinated with each other; run it once at startup.
type Synchronizer struct {
	store       store.Store
	logger      zerolog.Logger
	concurrency int
}

func NewSynchronizer(s store.Store, logger zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		store:       s,
		logger:      kubuslog.Component(logger, "sync"),
		concurrency: constants.DefaultSyncConcurrency,
	}
}

// WithConcurrency bounds how many documents are reconciled at once.
func (s *Synchronizer) WithConcurrency(n int) *Synchronizer {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// SyncBuilders reconciles the design documents of builders.
func (s *Synchronizer) SyncBuilders(ctx context.Context, builders ...*Builder) error {
	docs := make([]DesignDocument, 0, len(builders))
	for _, b := range builders {
		docs = append(docs, b.DesignDocument())
	}
	return s.Sync(ctx, docs...)
}

// Sync reconciles every document: an existing copy is destroyed, then the
// local one is inserted. A failing document leaves the others alone and the
// first failure is returned.
func (s *Synchronizer) Sync(ctx context.Context, docs ...DesignDocument) error {
	var (
		g     errgroup.Group
		mu    sync.Mutex
		first error
	)
	g.SetLimit(s.concurrency)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			if err := s.reconcile(ctx, doc); err != nil {
				s.logger.Error().Err(err).Str("id", doc.ID).Msg("design document not synchronized")
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return first
}

func (s *Synchronizer) reconcile(ctx context.Context, doc DesignDocument) error {
	var existing struct {
		Rev string `json:"_rev"`
	}

	err := s.store.Get(ctx, doc.ID, &existing)
	switch {
	case err == nil:
		if _, err := s.store.Destroy(ctx, doc.ID, existing.Rev); err != nil {
			return &SyncError{DesignID: doc.ID, Err: err}
		}
		s.logger.Debug().Str("id", doc.ID).Str("rev", existing.Rev).Msg("destroyed stale design document")
	case errors.Is(err, constants.ErrNotFound):
	default:
		return &SyncError{DesignID: doc.ID, Err: err}
	}

	res, err := s.store.Insert(ctx, doc)
	if err != nil {
		return &SyncError{DesignID: doc.ID, Err: err}
	}
	s.logger.Info().Str("id", doc.ID).Str("rev", res.Rev).Msg("design document synchronized")
	return nil
}
