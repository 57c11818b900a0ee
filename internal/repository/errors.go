package repository

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLeaseHeld is returned when a sync lease is already claimed for the
	// data source and has not expired.
	ErrLeaseHeld = errors.New("sync lease already held")

	// ErrLeaseLost is returned on renewal when the lease has expired or been
	// released since it was granted.
	ErrLeaseLost = errors.New("sync lease lapsed")
)
