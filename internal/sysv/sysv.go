// Package sysv wraps the System V shared memory and semaphore calls.
//
// Errors are the raw unix.Errno values so callers can tell EINTR, EAGAIN and
// EEXIST apart from real failures.
package sysv

import "errors"

// ErrUnsupported is returned by every call on platforms without a wrapper.
var ErrUnsupported = errors.New("sysv ipc not supported on this platform")

// Sembuf mirrors struct sembuf.
type Sembuf struct {
	Num uint16
	Op  int16
	Flg int16
}
