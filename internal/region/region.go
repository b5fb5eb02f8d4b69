// Package region attaches the shared chat segment and performs the one-time
// initialization of its contents.
package region

import (
	"fmt"
	"os"

	"github.com/codefionn/shmchat/internal/ipcerr"
	"github.com/codefionn/shmchat/internal/logger"
	"github.com/codefionn/shmchat/internal/shmstate"
	"github.com/codefionn/shmchat/internal/sysv"
)

// Region is one process's mapping of the shared segment.
type Region struct {
	key   int
	id    int
	mem   []byte
	state *shmstate.State
	fresh bool
	anon  bool
}

// Attach obtains the segment for key, creating it if absent, and maps it.
// If the mapped image has never been initialized it is zeroed and marked.
//
// Two processes attaching a brand new segment at the same instant may both
// initialize it; nothing guards that window.
func Attach(key int, perm os.FileMode) (*Region, error) {
	id, err := sysv.ShmGet(key, shmstate.Size, sysv.IPCCreat|int(perm.Perm()))
	if err != nil {
		return nil, fmt.Errorf("%w: shmget key %#x: %w", ipcerr.ErrFatal, key, err)
	}

	mem, err := sysv.ShmAttach(id)
	if err != nil {
		return nil, fmt.Errorf("%w: shmat id %d: %w", ipcerr.ErrFatal, id, err)
	}

	r := &Region{key: key, id: id, mem: mem}
	if err := r.overlay(); err != nil {
		_ = sysv.ShmDetach(mem)
		return nil, err
	}

	logger.Debug("attached segment key=%#x id=%d size=%d fresh=%v", key, id, len(mem), r.fresh)
	return r, nil
}

// Anonymous maps a private shared-anonymous region with the same layout. It is
// visible to this process and to children forked after the call.
func Anonymous() (*Region, error) {
	mem, err := sysv.MapAnonymous(shmstate.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap anonymous: %w", ipcerr.ErrFatal, err)
	}
	r := &Region{id: -1, mem: mem, anon: true}
	if err := r.overlay(); err != nil {
		_ = sysv.Unmap(mem)
		return nil, err
	}
	return r, nil
}

func (r *Region) overlay() error {
	st := shmstate.Overlay(r.mem)
	if st == nil {
		return fmt.Errorf("%w: segment is %d bytes, need %d", ipcerr.ErrFatal, len(r.mem), shmstate.Size)
	}
	if !st.IsInitialized() {
		logger.Info("first-time initialization of shared memory")
		st.Reset()
		r.fresh = true
	}
	r.state = st
	return nil
}

// State returns the mapped image. It is invalid after Detach.
func (r *Region) State() *shmstate.State {
	return r.state
}

// Fresh reports whether this attach initialized the image.
func (r *Region) Fresh() bool {
	return r.fresh
}

// ID returns the kernel segment id, or -1 for anonymous regions.
func (r *Region) ID() int {
	return r.id
}

// Key returns the key the region was attached with.
func (r *Region) Key() int {
	return r.key
}

// Attachments returns how many processes currently map the segment.
func (r *Region) Attachments() (int, error) {
	if r.anon {
		return 1, nil
	}
	n, err := sysv.ShmAttachments(r.id)
	if err != nil {
		return 0, fmt.Errorf("shmctl IPC_STAT id %d: %w", r.id, err)
	}
	return n, nil
}

// Detach unmaps the segment for this process only. It is safe to call twice.
func (r *Region) Detach() error {
	if r.mem == nil {
		return nil
	}
	mem := r.mem
	r.mem = nil
	r.state = nil

	var err error
	if r.anon {
		err = sysv.Unmap(mem)
	} else {
		err = sysv.ShmDetach(mem)
	}
	if err != nil {
		return fmt.Errorf("detach segment: %w", err)
	}
	return nil
}

// Destroy removes the segment. Processes that still map it keep their
// mapping until they detach; no new Attach will find it.
func (r *Region) Destroy() error {
	if r.anon {
		return nil
	}
	if err := sysv.ShmRemove(r.id); err != nil && !sysv.Missing(err) {
		return fmt.Errorf("%w: shmctl IPC_RMID id %d: %w", ipcerr.ErrFatal, r.id, err)
	}
	return nil
}

// Remove destroys the segment for key without attaching it. A missing
// segment is not an error.
func Remove(key int) error {
	id, err := sysv.ShmGet(key, 0, 0)
	if err != nil {
		if sysv.Missing(err) {
			return nil
		}
		return fmt.Errorf("%w: shmget key %#x: %w", ipcerr.ErrFatal, key, err)
	}
	if err := sysv.ShmRemove(id); err != nil && !sysv.Missing(err) {
		return fmt.Errorf("%w: shmctl IPC_RMID id %d: %w", ipcerr.ErrFatal, id, err)
	}
	return nil
}

// Attachments returns shm_nattch for the segment behind key, or 0 when no
// such segment exists.
func Attachments(key int) (int, error) {
	id, err := sysv.ShmGet(key, 0, 0)
	if err != nil {
		if sysv.Missing(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("shmget key %#x: %w", key, err)
	}
	return sysv.ShmAttachments(id)
}
