package model

import (
	"fmt"

	"github.com/kubusdb/kubus/pkg/constants"
)

// TypeMismatchError is returned by Get when the stored document belongs to
// another model.
type TypeMismatchError struct {
	ID   string
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: %s is %q, not %q", constants.ErrTypeMismatch, e.ID, e.Got, e.Want)
}

func (e *TypeMismatchError) Unwrap() error {
	return constants.ErrTypeMismatch
}
