//go:build !linux || !(amd64 || arm64)

package sysv

import (
	"errors"
	"time"
)

const Supported = false

const (
	IPCCreat = 0
	IPCExcl  = 0
)

func Transient(err error) bool { return false }
func TimedOut(err error) bool { return false }
func Exists(err error) bool { return false }
func Missing(err error) bool { return false }
func Refused(err error) bool { return errors.Is(err, ErrUnsupported) }

func ShmGet(key, size, flag int) (int, error) { return -1, ErrUnsupported }
func ShmAttach(id int) ([]byte, error) { return nil, ErrUnsupported }
func ShmDetach(mem []byte) error { return ErrUnsupported }
func ShmRemove(id int) error { return ErrUnsupported }
func ShmAttachments(id int) (int, error) { return 0, ErrUnsupported }
func SemGet(key, nsems, flag int) (int, error) { return -1, ErrUnsupported }
func SemSetAll(id int, vals []uint16) error { return ErrUnsupported }
func SemGetVal(id, num int) (int, error) { return 0, ErrUnsupported }
func SemGetNcnt(id, num int) (int, error) { return 0, ErrUnsupported }
func SemRemove(id int) error { return ErrUnsupported }
func SemOp(id int, ops []Sembuf, _ time.Duration) error { return ErrUnsupported }
func MapAnonymous(size int) ([]byte, error) { return nil, ErrUnsupported }
func Unmap(mem []byte) error { return ErrUnsupported }
