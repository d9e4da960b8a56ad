package services

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when another run holds the sync lock
var ErrSyncInProgress = errors.New("a catalog sync is already in progress")

// ConfigError means the integration is disabled or missing credentials. It
// aborts a run before any remote call is made.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "catalog sync not configured: " + e.Reason
}

// ValidationError reports a rejected request parameter
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// RemoteError wraps a failure of the remote API that aborts a whole call,
// such as the catalog listing at the start of an import.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
