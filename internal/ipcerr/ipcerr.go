// Package ipcerr holds the error taxonomy shared by the IPC packages.
//
// NotFound, Full and Empty are recoverable: callers report them and carry on.
// Fatal means a segment or semaphore operation failed mid-protocol; the
// semaphore counts cannot be unwound safely, so the process must terminate.
package ipcerr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrFull     = errors.New("full")
	ErrEmpty    = errors.New("dialog has no participants")
	ErrFatal    = errors.New("fatal ipc failure")
)

// IsFatal reports whether err must terminate the process.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
