package constants

import "errors"

// Errors
var (
	ErrConfiguration   = errors.New("invalid configuration")
	ErrNotConfigured   = errors.New("store is not configured")
	ErrInvalidArgument = errors.New("invalid argument")

	ErrValidation   = errors.New("validation failed")
	ErrNotPersisted = errors.New("document hasn't been saved yet")
	ErrDeleted      = errors.New("document has been deleted")
	ErrTypeMismatch = errors.New("document type does not match model")

	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("document update conflict")
	ErrStore     = errors.New("store request failed")
	ErrNoBaseURL = errors.New("base url not set")

	ErrNotRegistered = errors.New("not registered in design document")
	ErrSync          = errors.New("design document synchronization failed")
)
