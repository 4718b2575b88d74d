package drive

import (
	"errors"
	"fmt"
)

var (
	// ErrUploaderState is returned when an uploader operation is invoked in
	// a state that does not permit it, for example a second Upload call.
	ErrUploaderState = errors.New("drive: invalid uploader state")

	// ErrNoFileNames is returned by Delete when no names are given.
	ErrNoFileNames = errors.New("drive: the file name to be deleted is not specified")

	// ErrTooManyFileNames is returned by Delete when more than
	// MaxDeleteNames names are given.
	ErrTooManyFileNames = fmt.Errorf("drive: cannot delete more than %d files at a time", MaxDeleteNames)

	// ErrNotFound is returned when the requested file does not exist.
	ErrNotFound = errors.New("drive: file not found")
)

// AbortError is returned by Upload when the upload failed and the
// following abort failed as well. The remote upload session may still be
// open.
type AbortError struct {
	UploadID string
	Err      error
	AbortErr error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%s; abort upload %s: %s", e.Err, e.UploadID, e.AbortErr)
}

// Unwrap exposes both the upload failure and the abort failure.
func (e *AbortError) Unwrap() []error {
	return []error{e.Err, e.AbortErr}
}

type stateError struct {
	op    string
	state state
}

func (e *stateError) Error() string {
	return fmt.Sprintf("%s: uploader is %s", e.op, e.state)
}

func (e *stateError) Unwrap() error {
	return ErrUploaderState
}

type notFoundError struct {
	name string
	err  error
}

func (e *notFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotFound, e.name)
}

func (e *notFoundError) Unwrap() []error {
	return []error{ErrNotFound, e.err}
}
