package region

import (
	"testing"
	"time"

	"github.com/codefionn/shmchat/internal/consts"
	"github.com/codefionn/shmchat/internal/sysv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attach(t *testing.T, key int) *Region {
	t.Helper()
	r, err := Attach(key, consts.DefaultPerm)
	if err != nil && sysv.Refused(err) {
		t.Skipf("SysV shared memory unavailable: %v", err)
	}
	require.NoError(t, err)
	return r
}

func TestAttachInitializesOnce(t *testing.T) {
	key := 0x5d000000 | int(time.Now().UnixNano()&0xffffff)

	first := attach(t, key)
	t.Cleanup(func() {
		_ = first.Destroy()
		_ = first.Detach()
	})
	require.True(t, first.Fresh())
	require.True(t, first.State().IsInitialized())

	first.State().Dialogs[0].Used = 1
	first.State().Dialogs[0].ID = 77

	second := attach(t, key)
	t.Cleanup(func() { _ = second.Detach() })
	assert.False(t, second.Fresh())
	assert.Equal(t, int32(77), second.State().Dialogs[0].ID, "second attach must not reset the image")
	assert.Equal(t, first.ID(), second.ID())

	n, err := first.Attachments()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, second.Detach())
	require.NoError(t, second.Detach())
	n, err = Attachments(key)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRemoveMissing(t *testing.T) {
	if !sysv.Supported {
		t.Skip("SysV shared memory unavailable on this platform")
	}
	key := 0x5c000000 | int(time.Now().UnixNano()&0xffffff)
	err := Remove(key)
	if err != nil && sysv.Refused(err) {
		t.Skipf("SysV shared memory unavailable: %v", err)
	}
	assert.NoError(t, err)

	n, err := Attachments(key)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAnonymous(t *testing.T) {
	r, err := Anonymous()
	if err != nil && sysv.Refused(err) {
		t.Skipf("anonymous mapping unavailable: %v", err)
	}
	require.NoError(t, err)
	defer r.Detach()

	assert.True(t, r.Fresh())
	assert.Equal(t, -1, r.ID())
	assert.True(t, r.State().IsInitialized())
	assert.Equal(t, int32(0), r.State().Count)

	n, err := r.Attachments()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, r.Destroy())
}
