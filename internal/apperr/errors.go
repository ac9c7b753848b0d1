// Package apperr holds errors shared by the service surfaces.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrBusy is returned when a pass is already running.
	ErrBusy = errors.New("reconciliation pass already running")
	// ErrDisabled is returned when the pass journal is not configured.
	ErrDisabled = errors.New("journal disabled")
)
