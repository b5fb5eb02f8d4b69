package semset

import (
	"context"
	"fmt"
	"os"

	"github.com/codefionn/shmchat/internal/consts"
	"github.com/codefionn/shmchat/internal/ipcerr"
	"github.com/codefionn/shmchat/internal/logger"
	"github.com/codefionn/shmchat/internal/sysv"
)

// SysV is the kernel semaphore set shared by all chat processes.
type SysV struct {
	key     int
	id      int
	created bool
}

// Open returns the set for key. The process that creates it sets the initial
// values in one SETALL; later openers leave the live counts alone.
func Open(key int, perm os.FileMode) (*SysV, error) {
	mode := int(perm.Perm())
	id, err := sysv.SemGet(key, Count, sysv.IPCCreat|sysv.IPCExcl|mode)
	if err == nil {
		vals := initial
		if err := sysv.SemSetAll(id, vals[:]); err != nil {
			return nil, fmt.Errorf("%w: semctl SETALL id %d: %w", ipcerr.ErrFatal, id, err)
		}
		logger.Info("created semaphore set key=%#x id=%d", key, id)
		return &SysV{key: key, id: id, created: true}, nil
	}
	if !sysv.Exists(err) {
		return nil, fmt.Errorf("%w: semget key %#x: %w", ipcerr.ErrFatal, key, err)
	}

	id, err = sysv.SemGet(key, Count, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: semget key %#x: %w", ipcerr.ErrFatal, key, err)
	}
	logger.Debug("opened semaphore set key=%#x id=%d", key, id)
	return &SysV{key: key, id: id}, nil
}

// Created reports whether this Open created and initialized the set.
func (s *SysV) Created() bool {
	return s.created
}

// ID returns the kernel set id.
func (s *SysV) ID() int {
	return s.id
}

// Acquire takes one unit of idx, blocking until one is available. The wait is
// sliced so a cancelled ctx is noticed; in that case no unit is taken.
// Signal interruptions are retried.
func (s *SysV) Acquire(ctx context.Context, idx Index) error {
	if err := checkIndex(idx); err != nil {
		return err
	}
	ops := []sysv.Sembuf{{Num: uint16(idx), Op: -1}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := sysv.SemOp(s.id, ops, consts.SemWaitSlice)
		switch {
		case err == nil:
			return nil
		case sysv.Transient(err), sysv.TimedOut(err):
			continue
		default:
			return fmt.Errorf("%w: semop P(%s): %w", ipcerr.ErrFatal, idx, err)
		}
	}
}

// Release adds n units to idx.
func (s *SysV) Release(idx Index, n int) error {
	if err := checkIndex(idx); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	ops := []sysv.Sembuf{{Num: uint16(idx), Op: int16(n)}}
	for {
		err := sysv.SemOp(s.id, ops, 0)
		if err == nil {
			return nil
		}
		if sysv.Transient(err) {
			continue
		}
		return fmt.Errorf("%w: semop V(%s, %d): %w", ipcerr.ErrFatal, idx, n, err)
	}
}

// Value returns the current count of idx.
func (s *SysV) Value(idx Index) (int, error) {
	if err := checkIndex(idx); err != nil {
		return 0, err
	}
	v, err := sysv.SemGetVal(s.id, int(idx))
	if err != nil {
		return 0, fmt.Errorf("semctl GETVAL(%s): %w", idx, err)
	}
	return v, nil
}

// Waiting returns how many processes are blocked acquiring idx.
func (s *SysV) Waiting(idx Index) (int, error) {
	if err := checkIndex(idx); err != nil {
		return 0, err
	}
	v, err := sysv.SemGetNcnt(s.id, int(idx))
	if err != nil {
		return 0, fmt.Errorf("semctl GETNCNT(%s): %w", idx, err)
	}
	return v, nil
}

// Destroy removes the set. Blocked waiters in other processes fail.
func (s *SysV) Destroy() error {
	if err := sysv.SemRemove(s.id); err != nil && !sysv.Missing(err) {
		return fmt.Errorf("%w: semctl IPC_RMID id %d: %w", ipcerr.ErrFatal, s.id, err)
	}
	return nil
}

// Remove destroys the set for key without opening it for use. A missing set
// is not an error.
func Remove(key int) error {
	id, err := sysv.SemGet(key, 0, 0)
	if err != nil {
		if sysv.Missing(err) {
			return nil
		}
		return fmt.Errorf("%w: semget key %#x: %w", ipcerr.ErrFatal, key, err)
	}
	if err := sysv.SemRemove(id); err != nil && !sysv.Missing(err) {
		return fmt.Errorf("%w: semctl IPC_RMID id %d: %w", ipcerr.ErrFatal, id, err)
	}
	return nil
}
