// Package ring implements the shared message ring and the multi-reader
// delivery protocol on top of the dialog directory.
//
// Every participant of a dialog consumes each message exactly once. A message
// is reclaimed only from the head of the ring, and only once all of its
// readers are done, so one message nobody reads holds back everything queued
// after it. Once the ring is full that also blocks every sender.
package ring

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/codefionn/shmchat/internal/consts"
	"github.com/codefionn/shmchat/internal/dialog"
	"github.com/codefionn/shmchat/internal/ipcerr"
	"github.com/codefionn/shmchat/internal/logger"
	"github.com/codefionn/shmchat/internal/semset"
	"github.com/codefionn/shmchat/internal/shmstate"
)

// Semaphores is the counting-semaphore set the protocol runs on.
type Semaphores interface {
	Acquire(ctx context.Context, idx semset.Index) error
	Release(idx semset.Index, n int) error
}

// Stats counts what this process did on the ring.
type Stats struct {
	Sent       uint64 `json:"sent" msgpack:"sent"`
	Delivered  uint64 `json:"delivered" msgpack:"delivered"`
	FalseWakes uint64 `json:"false_wakes" msgpack:"false_wakes"`
	Freed      uint64 `json:"freed" msgpack:"freed"`
}

// Ring drives the message ring of a shared State.
type Ring struct {
	st   *shmstate.State
	dir  *dialog.Directory
	sems Semaphores
	poll time.Duration

	sent       atomic.Uint64
	delivered  atomic.Uint64
	falseWakes atomic.Uint64
	freed      atomic.Uint64
}

// Option configures a Ring.
type Option func(*Ring)

// WithPollInterval sets how long a receiver backs off after a false wake.
func WithPollInterval(d time.Duration) Option {
	return func(r *Ring) {
		if d > 0 {
			r.poll = d
		}
	}
}

// New returns a Ring over st guarded by sems.
func New(st *shmstate.State, dir *dialog.Directory, sems Semaphores, opts ...Option) *Ring {
	r := &Ring{
		st:   st,
		dir:  dir,
		sems: sems,
		poll: consts.DefaultRecvPollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PollInterval returns the false-wake backoff.
func (r *Ring) PollInterval() time.Duration {
	return r.poll
}

// Stats returns this process's counters.
func (r *Ring) Stats() Stats {
	return Stats{
		Sent:       r.sent.Load(),
		Delivered:  r.delivered.Load(),
		FalseWakes: r.falseWakes.Load(),
		Freed:      r.freed.Load(),
	}
}

// lock takes the mutex. Critical sections are short and never wait on
// anything else, so the acquisition is not cancellable.
func (r *Ring) lock() error {
	return r.sems.Acquire(context.Background(), semset.Mutex)
}

func (r *Ring) unlock() error {
	return r.sems.Release(semset.Mutex, 1)
}

// Enqueue appends text to dialog id on behalf of sender. It blocks while the
// ring is full. The message is owed to every participant present right now;
// one delivery token per participant is announced on the global items
// counter.
func (r *Ring) Enqueue(ctx context.Context, id int32, sender int32, text string) error {
	if err := r.sems.Acquire(ctx, semset.Spaces); err != nil {
		return err
	}
	if err := r.lock(); err != nil {
		return err
	}

	eligible, readers, err := r.dir.Members(id)
	if err == nil && readers <= 0 {
		err = fmt.Errorf("send to dialog %d: %w", id, ipcerr.ErrEmpty)
	}
	if err != nil {
		if uerr := r.unlock(); uerr != nil {
			return uerr
		}
		if uerr := r.sems.Release(semset.Spaces, 1); uerr != nil {
			return uerr
		}
		return err
	}

	pos := int(r.st.Tail)
	m := &r.st.Ring[pos]
	// holding a spaces unit guarantees a free tail slot
	if r.st.Count >= consts.QCapacity || m.Used != 0 {
		_ = r.unlock()
		return fmt.Errorf("%w: ring tail %d occupied with count %d", ipcerr.ErrFatal, pos, r.st.Count)
	}

	*m = shmstate.Message{
		Used:                1,
		DialogID:            id,
		Sender:              sender,
		ParticipantSnapshot: int32(readers),
		ReadersLeft:         int32(readers),
		EligibleMask:        eligible,
	}
	m.SetText(text)
	r.st.Tail = int32((pos + 1) % consts.QCapacity)
	r.st.Count++

	if err := r.unlock(); err != nil {
		return err
	}
	if err := r.sems.Release(semset.Items, readers); err != nil {
		return err
	}

	r.sent.Add(1)
	logger.Debug("enqueued dialog=%d sender=%d pos=%d readers=%d", id, sender, pos, readers)
	return nil
}

// RecvBlock returns the oldest message of dialog id that pid has not consumed
// yet, blocking until there is one. It fails at once with ErrNotFound if pid
// is not a participant; otherwise it only returns early when ctx ends.
//
// Delivery tokens are global, so a wake may belong to another dialog or to a
// message this caller already read. Such a wake hands its token back and
// retries after the poll interval.
func (r *Ring) RecvBlock(ctx context.Context, id int32, pid int32) (string, error) {
	if err := r.lock(); err != nil {
		return "", err
	}
	slot, err := r.dir.SlotOf(id, pid)
	if uerr := r.unlock(); uerr != nil {
		return "", uerr
	}
	if err != nil {
		return "", err
	}
	bit := uint32(1) << uint(slot)

	for {
		if err := r.sems.Acquire(ctx, semset.Items); err != nil {
			return "", err
		}
		if err := r.lock(); err != nil {
			return "", err
		}

		if pos := r.findUnread(id, bit); pos >= 0 {
			m := &r.st.Ring[pos]
			m.ReadMask |= bit
			m.ReadersLeft--
			text := m.GetText()
			freed := r.collect()

			if err := r.unlock(); err != nil {
				return "", err
			}
			if freed > 0 {
				if err := r.sems.Release(semset.Spaces, freed); err != nil {
					return "", err
				}
				r.freed.Add(uint64(freed))
			}
			r.delivered.Add(1)
			logger.Debug("delivered dialog=%d pid=%d slot=%d pos=%d freed=%d", id, pid, slot, pos, freed)
			return text, nil
		}

		if err := r.unlock(); err != nil {
			return "", err
		}
		if err := r.sems.Release(semset.Items, 1); err != nil {
			return "", err
		}
		r.falseWakes.Add(1)

		t := time.NewTimer(r.poll)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		}
	}
}

// findUnread scans the Count occupied positions from the head, never raw
// index bounds, so wraparound is handled.
func (r *Ring) findUnread(id int32, bit uint32) int {
	for i := 0; i < int(r.st.Count); i++ {
		pos := r.st.Pos(i)
		if owed(&r.st.Ring[pos], id, bit) {
			return pos
		}
	}
	return -1
}

// owed reports whether the reader owning bit still has to consume m. Slots
// that did not exist when m was sent never gain a bit in its read mask.
func owed(m *shmstate.Message, id int32, bit uint32) bool {
	return m.Used != 0 && m.DialogID == id && m.EligibleMask&bit != 0 && m.ReadMask&bit == 0
}

// collect frees the fully read prefix of the ring and returns its length.
func (r *Ring) collect() int {
	freed := 0
	for r.st.Count > 0 {
		m := &r.st.Ring[r.st.Head]
		if m.Used == 0 || m.ReadersLeft != 0 {
			break
		}
		m.Used = 0
		r.st.Head = int32((int(r.st.Head) + 1) % consts.QCapacity)
		r.st.Count--
		freed++
	}
	return freed
}

// Unread counts messages of dialog id still owed to pid. The caller must
// hold the mutex.
func (r *Ring) Unread(id int32, pid int32) (int, error) {
	slot, err := r.dir.SlotOf(id, pid)
	if err != nil {
		return 0, err
	}
	bit := uint32(1) << uint(slot)
	n := 0
	for i := 0; i < int(r.st.Count); i++ {
		if owed(&r.st.Ring[r.st.Pos(i)], id, bit) {
			n++
		}
	}
	return n, nil
}
