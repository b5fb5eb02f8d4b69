package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLockfile_AcquireRelease(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "nested", "test.lock")
	lock := New(lockPath)

	if err := lock.TryAcquire(); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if !lock.Locked() {
		t.Error("Lock should be locked")
	}
	if lock.PID() != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), lock.PID())
	}
	if pid, ok := lock.Holder(); !ok || pid != os.Getpid() {
		t.Errorf("Holder() = %d, %v", pid, ok)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}
	if lock.Locked() {
		t.Error("Lock should not be locked after release")
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("lock file should stay in place: %v", err)
	}

	if err := lock.TryAcquire(); err != nil {
		t.Fatalf("Failed to acquire lock after release: %v", err)
	}
	lock.Release()
}

func TestLockfile_AlreadyLocked(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")

	lock1 := New(lockPath)
	if err := lock1.TryAcquire(); err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2 := New(lockPath)
	err := lock2.TryAcquire()
	if err == nil {
		lock2.Release()
		t.Fatal("Expected error when acquiring already held lock")
	}
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("Expected ErrLocked, got: %v", err)
	}
	if !strings.Contains(err.Error(), fmt.Sprintf("pid %d", os.Getpid())) {
		t.Errorf("error should name the holder: %v", err)
	}

	lock1.Release()
	if err := lock2.TryAcquire(); err != nil {
		t.Fatalf("lock should be free after the holder released it: %v", err)
	}
	lock2.Release()
}

func TestLockfile_LeftoverFileIsNotALock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "test.lock")

	// contents of a crashed holder
	content := fmt.Sprintf("%d\n%s\n", 99999, time.Now().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create leftover lockfile: %v", err)
	}

	lock := New(lockPath)
	if err := lock.TryAcquire(); err != nil {
		t.Fatalf("Failed to acquire over a leftover file: %v", err)
	}
	defer lock.Release()

	if pid, ok := lock.Holder(); !ok || pid != os.Getpid() {
		t.Errorf("holder should be rewritten, got %d", pid)
	}
}

func TestLockfile_ReleaseNotLocked(t *testing.T) {
	lock := New(filepath.Join(t.TempDir(), "test.lock"))

	if err := lock.Release(); err != nil {
		t.Errorf("Expected no error when releasing unlocked lock, got: %v", err)
	}
	if _, ok := lock.Holder(); ok {
		t.Error("no holder expected for a missing file")
	}
}
