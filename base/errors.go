package base

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no item has the requested key.
	ErrNotFound = errors.New("base: item not found")

	// ErrConflict is returned by Insert when the key is already taken.
	ErrConflict = errors.New("base: item already exists")

	// ErrNoItems is returned by Put when it is called without items.
	ErrNoItems = errors.New("base: no items to put")

	// ErrTooManyItems is returned by Put when more than MaxPutItems items
	// are given.
	ErrTooManyItems = fmt.Errorf("base: cannot put more than %d items at a time", MaxPutItems)
)

type keyError struct {
	sentinel error
	key      string
	err      error
}

func (e *keyError) Error() string {
	return fmt.Sprintf("%s: %s", e.sentinel, e.key)
}

func (e *keyError) Unwrap() []error {
	return []error{e.sentinel, e.err}
}
