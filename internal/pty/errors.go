package pty

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawnFailed marks failures to create the pty or start the child.
	ErrSpawnFailed = errors.New("pty: spawn failed")
	// ErrIO marks read and write failures on the pty master.
	ErrIO = errors.New("pty: i/o error")
	// ErrResizeFailed marks a failed window size change.
	ErrResizeFailed = errors.New("pty: resize failed")
	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("pty: handle is closed")
	// ErrReaderTaken is returned by ProcessOutput once TakeReader was called.
	ErrReaderTaken = errors.New("pty: reader has been taken")
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("pty: session not found")
)

// Error carries the operation and the failure class of a pty error.
// errors.Is matches both Kind and the wrapped cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

func spawnError(op string, err error) error {
	return &Error{Op: op, Kind: ErrSpawnFailed, Err: err}
}

func ioError(op string, err error) error {
	return &Error{Op: op, Kind: ErrIO, Err: err}
}

func resizeError(err error) error {
	return &Error{Op: "setsize", Kind: ErrResizeFailed, Err: err}
}
