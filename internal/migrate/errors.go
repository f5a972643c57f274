package migrate

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Provider adapters wrap their failures with these so the
// engine can decide on retry, skip, or abort without knowing the provider.
var (
	// ErrAuthentication means credentials are missing, expired, or rejected.
	ErrAuthentication = errors.New("migrate: authentication failed")
	// ErrNotFound means the addressed source or destination item is gone.
	ErrNotFound = errors.New("migrate: not found")
	// ErrSourceNotFound marks a not-found that came from downloading the
	// source file. Only this one turns a transfer into a skip.
	ErrSourceNotFound = errors.New("migrate: source file no longer exists")
	// ErrTransient covers throttling, server errors, and network failures.
	ErrTransient = errors.New("migrate: transient failure")
	// ErrDestinationStructure means the destination root could not be
	// resolved or built, for example a missing shared drive.
	ErrDestinationStructure = errors.New("migrate: destination structure error")
	// ErrAborted means the run stopped early.
	ErrAborted = errors.New("migrate: run aborted")
)

// PermissionApplyError records a grant that could not be applied. It is
// logged and counted, never fatal.
type PermissionApplyError struct {
	Path  string
	Email string
	Role  DestinationRole
	Err   error
}

func (e *PermissionApplyError) Error() string {
	return fmt.Sprintf("applying %s permission for %s on %s: %v", e.Role, e.Email, e.Path, e.Err)
}

func (e *PermissionApplyError) Unwrap() error {
	return e.Err
}

// retryable reports whether a transfer attempt that failed with err should
// be tried again. A destination not-found is retried: each attempt starts a
// new upload session.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrSourceNotFound), errors.Is(err, ErrAuthentication), errors.Is(err, ErrAborted):
		return false
	default:
		return true
	}
}
