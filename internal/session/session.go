// Package session ties one process's view of the chat together: the mapped
// region, the semaphore set, the dialog directory and the message ring.
//
// A Session replaces process-global handles with an explicit value that is
// opened once and closed once. Directory operations run under the shared
// mutex; Send and Recv follow the ring's own locking discipline.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/codefionn/shmchat/internal/consts"
	"github.com/codefionn/shmchat/internal/dialog"
	"github.com/codefionn/shmchat/internal/logger"
	"github.com/codefionn/shmchat/internal/region"
	"github.com/codefionn/shmchat/internal/ring"
	"github.com/codefionn/shmchat/internal/semset"
	"github.com/codefionn/shmchat/internal/shmstate"
)

// Semaphores is the set a session runs on. Both *semset.SysV and
// *semset.Local satisfy it.
type Semaphores interface {
	ring.Semaphores
	Value(idx semset.Index) (int, error)
	Waiting(idx semset.Index) (int, error)
	Destroy() error
}

// Options select the IPC objects and tune the receiver.
type Options struct {
	ShmKey       int
	SemKey       int
	Perm         os.FileMode
	PollInterval time.Duration
}

// DefaultOptions returns the well-known keys.
func DefaultOptions() Options {
	return Options{
		ShmKey:       consts.DefaultShmKey,
		SemKey:       consts.DefaultSemKey,
		Perm:         consts.DefaultPerm,
		PollInterval: consts.DefaultRecvPollInterval,
	}
}

// Session is an open handle on the shared chat state.
type Session struct {
	opts   Options
	region *region.Region
	sems   Semaphores
	dir    *dialog.Directory
	ring   *ring.Ring
	pid    int32
	log    *logger.Logger

	mu     sync.Mutex
	closed bool
}

// Open attaches the shared segment and the semaphore set named by opts,
// creating and initializing whichever does not exist yet.
func Open(opts Options) (*Session, error) {
	if opts.Perm == 0 {
		opts.Perm = consts.DefaultPerm
	}

	reg, err := region.Attach(opts.ShmKey, opts.Perm)
	if err != nil {
		return nil, err
	}
	sems, err := semset.Open(opts.SemKey, opts.Perm)
	if err != nil {
		_ = reg.Detach()
		return nil, err
	}

	s := newSession(opts, reg, sems)
	if sems.Created() && !reg.Fresh() && reg.State().Count > 0 {
		s.log.Warn("semaphore set was recreated while %d messages are queued; counters no longer match the ring", reg.State().Count)
	}
	s.log.Info("opened shm=%#x sem=%#x fresh_region=%v fresh_sems=%v", opts.ShmKey, opts.SemKey, reg.Fresh(), sems.Created())
	return s, nil
}

// OpenLocal builds a session over an anonymous region and in-process
// semaphores. Only goroutines of this process can take part.
func OpenLocal(opts Options) (*Session, error) {
	reg, err := region.Anonymous()
	if err != nil {
		return nil, err
	}
	return newSession(opts, reg, semset.NewLocal()), nil
}

func newSession(opts Options, reg *region.Region, sems Semaphores) *Session {
	st := reg.State()
	dir := dialog.New(st)
	pid := int32(os.Getpid())
	return &Session{
		opts:   opts,
		region: reg,
		sems:   sems,
		dir:    dir,
		ring:   ring.New(st, dir, sems, ring.WithPollInterval(opts.PollInterval)),
		pid:    pid,
		log:    logger.Global().WithPrefix(fmt.Sprintf("session:%d", pid)),
	}
}

// PID is the identity this process uses in dialogs.
func (s *Session) PID() int32 {
	return s.pid
}

// Options returns the options the session was opened with.
func (s *Session) Options() Options {
	return s.opts
}

// withLock runs fn while holding the shared mutex.
func (s *Session) withLock(fn func() error) error {
	if err := s.sems.Acquire(context.Background(), semset.Mutex); err != nil {
		return err
	}
	ferr := fn()
	if err := s.sems.Release(semset.Mutex, 1); err != nil {
		return err
	}
	return ferr
}

// CreateDialog makes dialog id exist and returns its directory row.
func (s *Session) CreateDialog(id int32) (int, error) {
	var row int
	err := s.withLock(func() error {
		var err error
		row, err = s.dir.Create(id)
		return err
	})
	if err != nil {
		return -1, err
	}
	s.log.Debug("dialog %d at row %d", id, row)
	return row, nil
}

// Join adds pid to dialog id and returns its slot.
func (s *Session) Join(id, pid int32) (int, error) {
	var slot int
	err := s.withLock(func() error {
		var err error
		slot, err = s.dir.Join(id, pid)
		return err
	})
	if err != nil {
		return -1, err
	}
	s.log.Debug("pid %d joined dialog %d at slot %d", pid, id, slot)
	return slot, nil
}

// Leave removes pid from dialog id.
func (s *Session) Leave(id, pid int32) error {
	err := s.withLock(func() error {
		return s.dir.Leave(id, pid)
	})
	if err != nil {
		return err
	}
	s.log.Debug("pid %d left dialog %d", pid, id)
	return nil
}

// SlotOf returns the slot pid occupies in dialog id.
func (s *Session) SlotOf(id, pid int32) (int, error) {
	var slot int
	err := s.withLock(func() error {
		var err error
		slot, err = s.dir.SlotOf(id, pid)
		return err
	})
	return slot, err
}

// Participants lists the members of dialog id.
func (s *Session) Participants(id int32) ([]shmstate.ParticipantView, error) {
	var out []shmstate.ParticipantView
	err := s.withLock(func() error {
		var err error
		out, err = s.dir.Participants(id)
		return err
	})
	return out, err
}

// Send queues text for every current participant of dialog id. It blocks
// while the ring is full.
func (s *Session) Send(ctx context.Context, id, sender int32, text string) error {
	return s.ring.Enqueue(ctx, id, sender, text)
}

// Recv blocks until dialog id has a message pid has not consumed yet.
func (s *Session) Recv(ctx context.Context, id, pid int32) (string, error) {
	return s.ring.RecvBlock(ctx, id, pid)
}

// Unread counts messages of dialog id still owed to pid.
func (s *Session) Unread(id, pid int32) (int, error) {
	var n int
	err := s.withLock(func() error {
		var err error
		n, err = s.ring.Unread(id, pid)
		return err
	})
	return n, err
}

// Snapshot copies the shared state under the mutex.
func (s *Session) Snapshot() (shmstate.Snapshot, error) {
	var snap shmstate.Snapshot
	err := s.withLock(func() error {
		snap = s.region.State().Snapshot()
		return nil
	})
	return snap, err
}

// Stats returns this process's ring counters.
func (s *Session) Stats() ring.Stats {
	return s.ring.Stats()
}

// Close detaches this process from the segment. Dialog memberships stay in
// place. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Debug("detaching")
	return s.region.Detach()
}

// Destroy removes the segment and the semaphore set, then detaches. Every
// other process using them fails on its next semaphore operation.
func (s *Session) Destroy() error {
	var errs []error
	if err := s.region.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := s.sems.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := s.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		s.log.Info("destroyed shm=%#x sem=%#x", s.opts.ShmKey, s.opts.SemKey)
	}
	return errors.Join(errs...)
}

// Remove destroys the IPC objects behind shmKey and semKey without attaching
// them. Objects that do not exist are skipped.
func Remove(shmKey, semKey int) error {
	return errors.Join(region.Remove(shmKey), semset.Remove(semKey))
}

// Attachments reports how many processes map the segment behind shmKey.
func Attachments(shmKey int) (int, error) {
	return region.Attachments(shmKey)
}
