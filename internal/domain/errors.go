package domain

import "errors"

var (
	// ErrReadSource marks a failure to fetch readings; it aborts a detection pass.
	ErrReadSource = errors.New("reading source unavailable")

	// ErrPersistence marks a failed alert lookup or create for a single key.
	ErrPersistence = errors.New("alert store failure")

	// ErrDuplicateActive is returned by a store when an active alert already
	// holds the (parameter, lat, lon) key.
	ErrDuplicateActive = errors.New("active alert already exists")

	// ErrAlertNotFound is returned when resolving an unknown or inactive alert.
	ErrAlertNotFound = errors.New("alert not found")
)
