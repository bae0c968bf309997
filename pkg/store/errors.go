package store

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/buger/jsonparser"
	kivik "github.com/go-kivik/kivik/v4"

	"github.com/kubusdb/kubus/pkg/constants"
)

// StatusError is a failure reported by the store, carrying its HTTP status.
type StatusError struct {
	Op          string
	StatusCode  int
	Description string
	Err         error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Description)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Is reports whether the status maps onto one of the store sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case constants.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case constants.ErrConflict:
		return e.StatusCode == http.StatusConflict
	case constants.ErrStore:
		return e.StatusCode != http.StatusNotFound && e.StatusCode != http.StatusConflict
	}
	return false
}

// StatusCode extracts the HTTP status of err, or 0 when err carries none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// fromDriver converts a kivik error into a *StatusError.
func fromDriver(op string, err error) error {
	if err == nil {
		return nil
	}

	var se *StatusError
	if errors.As(err, &se) {
		return err
	}

	return &StatusError{
		Op:          op,
		StatusCode:  kivik.HTTPStatus(err),
		Description: err.Error(),
		Err:         err,
	}
}

// fromResponse builds a *StatusError from a CouchDB error body such as
// {"error":"not_found","reason":"missing"}.
func fromResponse(op string, status int, body []byte) error {
	desc, err := jsonparser.GetString(body, "reason")
	if err != nil || desc == "" {
		desc, err = jsonparser.GetString(body, "error")
	}
	if err != nil || desc == "" {
		desc = http.StatusText(status)
	}

	return &StatusError{Op: op, StatusCode: status, Description: desc}
}
