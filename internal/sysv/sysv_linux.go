//go:build linux && (amd64 || arm64)

package sysv

import (
	"errors"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// semctl commands, from <linux/sem.h>
const (
	cmdGetNcnt = 14
	cmdGetVal  = 12
	cmdSetAll  = 17
)

// Supported reports whether this build talks to the kernel.
const Supported = true

// Creation flags re-exported for callers that do not import unix.
const (
	IPCCreat = unix.IPC_CREAT
	IPCExcl  = unix.IPC_EXCL
)

// Transient reports whether a semaphore call should simply be retried.
func Transient(err error) bool {
	return errors.Is(err, unix.EINTR)
}

// TimedOut reports whether a timed semaphore wait elapsed.
func TimedOut(err error) bool {
	return errors.Is(err, unix.EAGAIN)
}

// Exists reports whether a create-exclusive call found an existing object.
func Exists(err error) bool {
	return errors.Is(err, unix.EEXIST)
}

// Missing reports whether the object for a key or id does not exist.
func Missing(err error) bool {
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EIDRM)
}

// Refused reports whether the kernel or sandbox denies SysV IPC outright.
func Refused(err error) bool {
	return errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES)
}

// ShmGet returns the id of the segment for key, creating it when flag carries
// unix.IPC_CREAT.
func ShmGet(key, size, flag int) (int, error) {
	return unix.SysvShmGet(key, size, flag)
}

// ShmAttach maps the segment into this process.
func ShmAttach(id int) ([]byte, error) {
	return unix.SysvShmAttach(id, 0, 0)
}

// ShmDetach unmaps a segment returned by ShmAttach.
func ShmDetach(mem []byte) error {
	return unix.SysvShmDetach(mem)
}

// ShmRemove marks the segment for destruction.
func ShmRemove(id int) error {
	_, err := unix.SysvShmCtl(id, unix.IPC_RMID, nil)
	return err
}

// ShmAttachments returns shm_nattch for the segment.
func ShmAttachments(id int) (int, error) {
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(id, unix.IPC_STAT, &desc); err != nil {
		return 0, err
	}
	return int(desc.Nattch), nil
}

// SemGet returns the id of the semaphore set for key.
func SemGet(key, nsems, flag int) (int, error) {
	r1, _, errno := unix.Syscall(unix.SYS_SEMGET, uintptr(key), uintptr(nsems), uintptr(flag))
	if errno != 0 {
		return -1, errno
	}
	return int(r1), nil
}

// SemOp applies ops atomically. A timeout of zero blocks without bound;
// otherwise unix.EAGAIN is returned when it elapses.
func SemOp(id int, ops []Sembuf, timeout time.Duration) error {
	if len(ops) == 0 {
		return nil
	}
	var errno unix.Errno
	if timeout <= 0 {
		_, _, errno = unix.Syscall(unix.SYS_SEMOP,
			uintptr(id),
			uintptr(unsafe.Pointer(&ops[0])),
			uintptr(len(ops)))
	} else {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		_, _, errno = unix.Syscall6(unix.SYS_SEMTIMEDOP,
			uintptr(id),
			uintptr(unsafe.Pointer(&ops[0])),
			uintptr(len(ops)),
			uintptr(unsafe.Pointer(&ts)),
			0, 0)
	}
	if errno != 0 {
		return errno
	}
	return nil
}

// SemSetAll sets every member of the set in one step.
func SemSetAll(id int, vals []uint16) error {
	if len(vals) == 0 {
		return nil
	}
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL,
		uintptr(id), 0, cmdSetAll,
		uintptr(unsafe.Pointer(&vals[0])),
		0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// SemGetVal returns the current value of member num.
func SemGetVal(id, num int) (int, error) {
	r1, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), uintptr(num), cmdGetVal, 0, 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}

// SemGetNcnt returns how many processes wait for member num to increase.
func SemGetNcnt(id, num int) (int, error) {
	r1, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), uintptr(num), cmdGetNcnt, 0, 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}

// SemRemove destroys the set, waking all waiters with EIDRM.
func SemRemove(id int) error {
	_, _, errno := unix.Syscall6(unix.SYS_SEMCTL, uintptr(id), 0, unix.IPC_RMID, 0, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// MapAnonymous returns size bytes of MAP_SHARED|MAP_ANON memory.
func MapAnonymous(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
}

// Unmap releases memory returned by MapAnonymous.
func Unmap(mem []byte) error {
	return unix.Munmap(mem)
}
