package activitypub

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected means the request or activity failed signature checks.
	// Callers answer with a generic status and never echo why.
	ErrRejected = errors.New("activity rejected")
	// ErrForbidden means the actor may not mutate the target object.
	ErrForbidden = errors.New("actor not allowed to modify target")
	// ErrMalformed means the body is not a usable activity.
	ErrMalformed = errors.New("malformed activity")
)

// ResolutionError reports a referenced object that could not be found locally or fetched.
type ResolutionError struct {
	Id     Id
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not resolve %s: %s: %v", e.Id, e.Reason, e.Err)
	}
	return fmt.Sprintf("could not resolve %s: %s", e.Id, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// PersistenceError wraps a store failure while applying an activity.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func unresolved(id Id, reason string, err error) error {
	return &ResolutionError{Id: id, Reason: reason, Err: err}
}

func persistence(op string, err error) error {
	var re *ResolutionError
	if errors.As(err, &re) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrMalformed) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
