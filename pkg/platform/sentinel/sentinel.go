// Package sentinel holds infrastructure errors that stores return, usually
// wrapped with fmt.Errorf("...: %w"), and services translate into domain
// errors.
package sentinel

import "errors"

// ErrNotFound means the record or session does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidState means the record exists but its stored shape does not allow
// the operation.
var ErrInvalidState = errors.New("invalid state")

// ErrUnavailable means the component was closed or its backing file cannot
// be used.
var ErrUnavailable = errors.New("unavailable")
