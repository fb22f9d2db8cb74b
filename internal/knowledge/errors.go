// Package knowledge persists task results and category/key facts with a
// primary backend and a silent in-process fallback
package knowledge

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entry does not exist in a backend.
// It is a logic outcome, not a backend failure, and never triggers the
// write-path fallback on its own.
var ErrNotFound = errors.New("knowledge entry not found")

// BackendError marks a failure of the storage backend itself (connection,
// I/O, SQL). The fallback decorator degrades to local storage only for this
// error class; logic errors pass through untouched.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsBackendError reports whether err is backend-class
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
