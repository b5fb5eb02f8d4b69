package session

import (
	"github.com/codefionn/shmchat/internal/ring"
	"github.com/codefionn/shmchat/internal/semset"
	"github.com/codefionn/shmchat/internal/shmstate"
)

// SemaphoreStatus is one member of the semaphore set.
type SemaphoreStatus struct {
	Name    string `json:"name" msgpack:"name"`
	Value   int    `json:"value" msgpack:"value"`
	Waiting int    `json:"waiting" msgpack:"waiting"`
}

// Status is everything the status surfaces show.
type Status struct {
	PID         int32             `json:"pid" msgpack:"pid"`
	ShmKey      int               `json:"shm_key" msgpack:"shm_key"`
	SemKey      int               `json:"sem_key" msgpack:"sem_key"`
	Attachments int               `json:"attachments" msgpack:"attachments"`
	Semaphores  []SemaphoreStatus `json:"semaphores" msgpack:"semaphores"`
	Ring        ring.Stats        `json:"ring_stats" msgpack:"ring_stats"`
	State       shmstate.Snapshot `json:"state" msgpack:"state"`
}

// Semaphores reads the current value and waiter count of each member. The
// numbers are a racy sample and may be stale by the time they are printed.
func (s *Session) Semaphores() ([]SemaphoreStatus, error) {
	out := make([]SemaphoreStatus, 0, semset.Count)
	for idx := semset.Index(0); idx < semset.Count; idx++ {
		v, err := s.sems.Value(idx)
		if err != nil {
			return nil, err
		}
		w, err := s.sems.Waiting(idx)
		if err != nil {
			return nil, err
		}
		out = append(out, SemaphoreStatus{Name: idx.String(), Value: v, Waiting: w})
	}
	return out, nil
}

// Status samples the semaphores outside the mutex, then snapshots the state
// under it.
func (s *Session) Status() (Status, error) {
	sems, err := s.Semaphores()
	if err != nil {
		return Status{}, err
	}
	attached, err := s.region.Attachments()
	if err != nil {
		return Status{}, err
	}
	snap, err := s.Snapshot()
	if err != nil {
		return Status{}, err
	}
	return Status{
		PID:         s.pid,
		ShmKey:      s.opts.ShmKey,
		SemKey:      s.opts.SemKey,
		Attachments: attached,
		Semaphores:  sems,
		Ring:        s.ring.Stats(),
		State:       snap,
	}, nil
}
