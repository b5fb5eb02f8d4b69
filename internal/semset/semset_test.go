package semset

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/codefionn/shmchat/internal/consts"
	"github.com/codefionn/shmchat/internal/sysv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// set is the surface shared by Local and SysV.
type set interface {
	Acquire(ctx context.Context, idx Index) error
	Release(idx Index, n int) error
	Value(idx Index) (int, error)
	Waiting(idx Index) (int, error)
	Destroy() error
}

func openSysV(t *testing.T) *SysV {
	t.Helper()
	if !sysv.Supported {
		t.Skip("SysV IPC not supported on this platform")
	}
	key := int(0x5e000000 | (time.Now().UnixNano() & 0xffffff))
	s, err := Open(key, consts.DefaultPerm)
	if err != nil {
		if sysv.Refused(err) {
			t.Skipf("SysV semaphores refused: %v", err)
		}
		require.NoError(t, err)
	}
	t.Cleanup(func() { _ = s.Destroy() })
	return s
}

func forEachSet(t *testing.T, fn func(t *testing.T, s set)) {
	t.Run("local", func(t *testing.T) { fn(t, NewLocal()) })
	t.Run("sysv", func(t *testing.T) { fn(t, openSysV(t)) })
}

func TestInitialValues(t *testing.T) {
	forEachSet(t, func(t *testing.T, s set) {
		for idx, want := range map[Index]int{Spaces: consts.QCapacity, Mutex: 1, Items: 0} {
			got, err := s.Value(idx)
			require.NoError(t, err)
			assert.Equal(t, want, got, idx.String())
		}
	})
}

func TestAcquireRelease(t *testing.T) {
	forEachSet(t, func(t *testing.T, s set) {
		ctx := context.Background()
		require.NoError(t, s.Acquire(ctx, Mutex))

		v, err := s.Value(Mutex)
		require.NoError(t, err)
		assert.Equal(t, 0, v)

		require.NoError(t, s.Release(Mutex, 1))
		require.NoError(t, s.Release(Items, 3))

		v, err = s.Value(Items)
		require.NoError(t, err)
		assert.Equal(t, 3, v)
	})
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	forEachSet(t, func(t *testing.T, s set) {
		done := make(chan error, 1)
		go func() {
			done <- s.Acquire(context.Background(), Items)
		}()

		select {
		case err := <-done:
			t.Fatalf("acquire on empty counter returned early: %v", err)
		case <-time.After(50 * time.Millisecond):
		}

		require.NoError(t, s.Release(Items, 1))

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("acquire did not wake after release")
		}
	})
}

func TestAcquireCancelled(t *testing.T) {
	forEachSet(t, func(t *testing.T, s set) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		err := s.Acquire(ctx, Items)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		// a cancelled wait must not leave a unit behind or take one
		require.NoError(t, s.Release(Items, 1))
		v, err := s.Value(Items)
		require.NoError(t, err)
		assert.Equal(t, 1, v)
	})
}

func TestBadIndex(t *testing.T) {
	l := NewLocal()
	assert.Error(t, l.Release(Index(7), 1))
	_, err := l.Value(Index(-1))
	assert.Error(t, err)
}

func TestOpenExistingKeepsCounts(t *testing.T) {
	first := openSysV(t)
	require.NoError(t, first.Release(Items, 5))

	second, err := Open(first.key, consts.DefaultPerm)
	require.NoError(t, err)
	assert.False(t, second.Created())
	assert.Equal(t, first.ID(), second.ID())

	v, err := second.Value(Items)
	require.NoError(t, err)
	assert.Equal(t, 5, v, "reopening must not reset live counts")
}

func TestIndexString(t *testing.T) {
	assert.Equal(t, "spaces", Spaces.String())
	assert.Equal(t, "mutex", Mutex.String())
	assert.Equal(t, "items", Items.String())
	assert.Equal(t, fmt.Sprintf("sem(%d)", 9), Index(9).String())
}
