package repository

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRunInProgress is returned when another ingestion run holds the run lock.
	ErrRunInProgress = errors.New("ingestion run already in progress")

	// ErrProviderEmpty is returned by providers whose upstream answered with no usable rows.
	ErrProviderEmpty = errors.New("provider returned no bars")
)
