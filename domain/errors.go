package domain

import "errors"

var (
	// ErrNotFound is returned by store lookups that match no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert hits a unique constraint.
	ErrDuplicate = errors.New("duplicate")
)
