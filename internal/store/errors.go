package store

import "errors"

var (
	// ErrIDConflict is returned when a caller-supplied gallery id is already
	// taken by a row with a different path. The store never renumbers.
	ErrIDConflict = errors.New("gallery id already assigned to a different path")

	// ErrDuplicatePath is returned when inserting a path that already exists.
	ErrDuplicatePath = errors.New("gallery path already exists")

	// ErrSystemTab is returned when renaming or deleting a system tab.
	ErrSystemTab = errors.New("system tabs are immutable")

	// ErrTabNotFound is returned when a tab id does not exist.
	ErrTabNotFound = errors.New("tab not found")
)
