package store

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotPending is returned when a request has already been approved or rejected.
	ErrNotPending = errors.New("request already processed")
)
