package model

import "context"

// Hooks run after the operation has returned to the caller, in a goroutine
// owned by the Manager. Their errors are logged and never reach the caller.
// Hooks are invoked on a snapshot of the model, not on the caller's instance.

// CreateHook runs after the first successful save of a document.
type CreateHook interface {
	OnCreate(ctx context.Context, before, after Model) error
}

// UpdateHook runs after a successful save of an already persisted document.
type UpdateHook interface {
	OnUpdate(ctx context.Context, before, after Model) error
}

// CreateOrUpdateHook runs after every successful save, following OnCreate or
// OnUpdate.
type CreateOrUpdateHook interface {
	OnCreateOrUpdate(ctx context.Context, before, after Model) error
}

// DeleteHook runs after a successful delete.
type DeleteHook interface {
	OnDelete(ctx context.Context, final Model) error
}
