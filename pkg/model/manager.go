// Package model implements active-record style documents on top of a
// store.Store: validated saves, deletes, clones, attachments and typed reads,
// with lifecycle hooks dispatched after each successful write.
package model

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/tiendc/go-deepcopy"

	"github.com/kubusdb/kubus/pkg/constants"
	kubuslog "github.com/kubusdb/kubus/pkg/logger"
	"github.com/kubusdb/kubus/pkg/store"
	"github.com/kubusdb/kubus/pkg/validation"
)

// Manager performs model operations against a store.
type Manager struct {
	store     store.Store
	validator *validation.Validator
	logger    zerolog.Logger

	hooks sync.WaitGroup
}

// NewManager binds models to s. A nil validator uses validation.New().
func NewManager(s store.Store, v *validation.Validator, logger zerolog.Logger) *Manager {
	if v == nil {
		v = validation.New()
	}
	return &Manager{
		store:     s,
		validator: v,
		logger:    kubuslog.Component(logger, "model"),
	}
}

func (mgr *Manager) Store() store.Store {
	return mgr.store
}

// Wait blocks until every dispatched hook has returned.
func (mgr *Manager) Wait() {
	mgr.hooks.Wait()
}

// Save validates m and writes it. A missing id is generated first. On success
// the new revision is copied into m and the create or update hooks are
// dispatched.
func (mgr *Manager) Save(ctx context.Context, m Model) (*store.Result, error) {
	d := m.document()
	if err := guard(d); err != nil {
		return nil, err
	}

	before, err := snapshot(m)
	if err != nil {
		return nil, err
	}

	if d.ID == "" {
		d.ID = uuid.Must(uuid.NewV4()).String()
	}
	if d.Type == "" {
		d.Type = TypeOf(m)
	}

	outcome, err := mgr.validator.Validate(ctx, m, d.Rules())
	if err != nil {
		return nil, err
	}
	if !outcome.Valid() {
		return nil, outcome.Err()
	}

	created := !before.document().Persisted()
	res, err := mgr.store.Insert(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", d.ID, err)
	}

	d.Rev = res.Rev
	if err := transition(ctx, d, eventSave); err != nil {
		return nil, err
	}

	after, err := snapshot(m)
	if err != nil {
		mgr.logger.Warn().Err(err).Str("id", d.ID).Msg("skipping hooks, snapshot failed")
		return res, nil
	}

	mgr.dispatch(ctx, d.ID, func(hctx context.Context) {
		if created {
			if h, ok := after.(CreateHook); ok {
				mgr.run(d.ID, "OnCreate", func() error { return h.OnCreate(hctx, before, after) })
			}
		} else if h, ok := after.(UpdateHook); ok {
			mgr.run(d.ID, "OnUpdate", func() error { return h.OnUpdate(hctx, before, after) })
		}
		if h, ok := after.(CreateOrUpdateHook); ok {
			mgr.run(d.ID, "OnCreateOrUpdate", func() error { return h.OnCreateOrUpdate(hctx, before, after) })
		}
	})

	return res, nil
}

// Delete removes m from the store and dispatches its delete hook.
func (mgr *Manager) Delete(ctx context.Context, m Model) (*store.Result, error) {
	d := m.document()
	if err := guard(d); err != nil {
		return nil, err
	}
	if d.ID == "" || d.Rev == "" {
		return nil, constants.ErrNotPersisted
	}

	res, err := mgr.store.Destroy(ctx, d.ID, d.Rev)
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", d.ID, err)
	}

	d.Rev = res.Rev
	if err := transition(ctx, d, eventDelete); err != nil {
		return nil, err
	}

	final, err := snapshot(m)
	if err != nil {
		mgr.logger.Warn().Err(err).Str("id", d.ID).Msg("skipping hooks, snapshot failed")
		return res, nil
	}
	if h, ok := final.(DeleteHook); ok {
		mgr.dispatch(ctx, d.ID, func(hctx context.Context) {
			mgr.run(d.ID, "OnDelete", func() error { return h.OnDelete(hctx, final) })
		})
	}

	return res, nil
}

// Clone returns a new, unsaved instance of the same concrete type carrying
// a deep copy of m's fields and rules.
func (mgr *Manager) Clone(m Model) (Model, error) {
	return Clone(m)
}

// Clone is the typed form of Manager.Clone.
func Clone[T Model](m T) (T, error) {
	cp, err := snapshot(m)
	if err != nil {
		var zero T
		return zero, err
	}
	d := cp.document()
	d.ID = ""
	d.Rev = ""
	d.state = StateNew
	return cp.(T), nil
}

// Attach stores data as an attachment of m and advances m's revision.
func (mgr *Manager) Attach(ctx context.Context, m Model, fileName, contentType string, data []byte) (*store.Result, error) {
	d := m.document()
	if err := guard(d); err != nil {
		return nil, err
	}
	if d.ID == "" || d.Rev == "" {
		return nil, constants.ErrNotPersisted
	}
	if fileName == "" {
		return nil, fmt.Errorf("%w: empty attachment name", constants.ErrInvalidArgument)
	}

	res, err := mgr.store.AttachmentInsert(ctx, d.ID, fileName, data, contentType, d.Rev)
	if err != nil {
		return nil, fmt.Errorf("attach %s/%s: %w", d.ID, fileName, err)
	}
	d.Rev = res.Rev
	return res, nil
}

// GetAttachment returns the raw bytes of an attachment of m.
func (mgr *Manager) GetAttachment(ctx context.Context, m Model, fileName string) ([]byte, error) {
	d := m.document()
	if d.ID == "" {
		return nil, constants.ErrNotPersisted
	}

	data, err := mgr.store.AttachmentGet(ctx, d.ID, fileName)
	if err != nil {
		return nil, fmt.Errorf("attachment %s/%s: %w", d.ID, fileName, err)
	}
	return data, nil
}

// RemoveAttachment deletes an attachment of m and advances m's revision.
func (mgr *Manager) RemoveAttachment(ctx context.Context, m Model, fileName string) (*store.Result, error) {
	d := m.document()
	if err := guard(d); err != nil {
		return nil, err
	}
	if d.ID == "" || d.Rev == "" {
		return nil, constants.ErrNotPersisted
	}

	res, err := mgr.store.AttachmentDestroy(ctx, d.ID, fileName, d.Rev)
	if err != nil {
		return nil, fmt.Errorf("remove attachment %s/%s: %w", d.ID, fileName, err)
	}
	d.Rev = res.Rev
	return res, nil
}

// Get reads the document id into a new *T. It fails with a
// *TypeMismatchError when the stored type differs from T's.
//
//	cat, err := model.Get[Cat](ctx, mgr, id)
func Get[T any, PT interface {
	*T
	Model
}](ctx context.Context, mgr *Manager, id string) (PT, error) {
	m := PT(new(T))
	want := TypeOf(m)

	if err := mgr.store.Get(ctx, id, m); err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}

	d := m.document()
	if d.Type != want {
		return nil, &TypeMismatchError{ID: id, Want: want, Got: d.Type}
	}
	d.state = StatePersisted
	return m, nil
}

// dispatch runs fn once the caller has its result. Hooks outlive the caller's
// context cancellation.
func (mgr *Manager) dispatch(ctx context.Context, id string, fn func(ctx context.Context)) {
	hctx := context.WithoutCancel(ctx)
	mgr.hooks.Add(1)
	go func() {
		defer mgr.hooks.Done()
		start := time.Now()
		fn(hctx)
		mgr.logger.Debug().Str("id", id).Dur("took", time.Since(start)).Msg("hooks done")
	}()
}

func (mgr *Manager) run(id, hook string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error().Str("id", id).Str("hook", hook).Interface("panic", r).Msg("hook panicked")
		}
	}()
	if err := fn(); err != nil {
		mgr.logger.Warn().Err(err).Str("id", id).Str("hook", hook).Msg("hook failed")
	}
}

// snapshot deep-copies m into a new value of the same concrete type.
func snapshot(m Model) (Model, error) {
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, fmt.Errorf("%w: model must be a non-nil pointer, got %T", constants.ErrInvalidArgument, m)
	}

	cp := reflect.New(rv.Type().Elem())
	if err := deepcopy.Copy(cp.Interface(), m); err != nil {
		return nil, fmt.Errorf("copy %T: %w", m, err)
	}

	out := cp.Interface().(Model)
	src, dst := m.document(), out.document()
	dst.ID, dst.Rev, dst.Type = src.ID, src.Rev, src.Type
	dst.rules = nil
	if src.rules != nil {
		dst.rules = src.rules.Clone()
	}
	dst.state = src.State()
	return out, nil
}
