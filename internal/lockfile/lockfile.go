// Package lockfile provides an advisory, non-blocking file lock used to keep
// administrative operations from running concurrently.
//
// The lock lives on the open file, not on the path, so it disappears with the
// holding process even if that process crashes. The file itself is left in
// place on release; unlinking a lock file that another process may have just
// opened would let two holders coexist.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrLocked = errors.New("lock is held by another process")

	errWouldBlock = errors.New("would block")
)

// Lockfile represents a file-based lock
type Lockfile struct {
	path   string
	file   *os.File
	pid    int
	locked bool
}

// New creates a new lockfile instance
func New(path string) *Lockfile {
	return &Lockfile{
		path: path,
	}
}

// TryAcquire takes the lock or fails at once with ErrLocked.
func (l *Lockfile) TryAcquire() error {
	if l.locked {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lockfile: %w", err)
	}

	if err := tryLock(file); err != nil {
		file.Close()
		if errors.Is(err, errWouldBlock) {
			if pid, ok := l.Holder(); ok {
				return fmt.Errorf("%w: pid %d", ErrLocked, pid)
			}
			return ErrLocked
		}
		return fmt.Errorf("failed to lock %s: %w", l.path, err)
	}

	l.file = file
	l.pid = os.Getpid()
	l.locked = true

	if err := l.writeHolder(); err != nil {
		l.Release()
		return fmt.Errorf("failed to write lockfile: %w", err)
	}

	return nil
}

// writeHolder records pid and time for diagnostics; the lock does not depend
// on the contents.
func (l *Lockfile) writeHolder() error {
	if err := l.file.Truncate(0); err != nil {
		return err
	}
	content := fmt.Sprintf("%d\n%s\n", l.pid, time.Now().Format(time.RFC3339))
	if _, err := l.file.WriteAt([]byte(content), 0); err != nil {
		return err
	}
	return l.file.Sync()
}

// Holder reads the PID recorded by the current holder.
func (l *Lockfile) Holder() (int, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, false
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}

	var errs []error
	if err := l.file.Truncate(0); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear lockfile: %w", err))
	}
	if err := unlock(l.file); err != nil {
		errs = append(errs, fmt.Errorf("failed to unlock: %w", err))
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, err)
	}

	l.file = nil
	l.locked = false
	return errors.Join(errs...)
}

// PID returns the PID that acquired the lock
func (l *Lockfile) PID() int {
	return l.pid
}

// Locked returns true if the lock is held
func (l *Lockfile) Locked() bool {
	return l.locked
}

// Path returns the lockfile path
func (l *Lockfile) Path() string {
	return l.path
}
