package types

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every NotFoundError through errors.Is.
var ErrNotFound = errors.New("not found")

// ErrEmptyResult is returned when a view produced no interpolated rows.
var ErrEmptyResult = errors.New("error getting data view data: empty result")

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// RemoteStoreError is a request the backing store rejected.
type RemoteStoreError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e RemoteStoreError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: remote store returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: remote store returned %d: %s", e.Op, e.StatusCode, e.Message)
}

type PreconditionError struct {
	Op     string
	Reason string
}

func (e PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition violated: %s", e.Op, e.Reason)
}

// DeleteFailedError means a data view was still readable after deletion.
type DeleteFailedError struct {
	ViewID string
}

func (e DeleteFailedError) Error() string {
	return fmt.Sprintf("Delete failed: data view %s still exists", e.ViewID)
}
