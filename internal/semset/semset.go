// Package semset manages the three counting semaphores of the chat protocol.
//
//	Spaces (0)  free ring slots, starts at QCapacity
//	Mutex  (1)  binary lock over directory and ring, starts at 1
//	Items  (2)  pending deliveries across all dialogs, starts at 0
package semset

import (
	"fmt"

	"github.com/codefionn/shmchat/internal/consts"
)

// Index names one member of the set.
type Index int

const (
	Spaces Index = iota
	Mutex
	Items

	// Count is the number of members in the set
	Count = 3
)

// String returns the protocol name of the member
func (i Index) String() string {
	switch i {
	case Spaces:
		return "spaces"
	case Mutex:
		return "mutex"
	case Items:
		return "items"
	default:
		return fmt.Sprintf("sem(%d)", int(i))
	}
}

// initial holds the starting value of each member, indexed by Index.
var initial = [Count]uint16{
	Spaces: consts.QCapacity,
	Mutex:  1,
	Items:  0,
}

func checkIndex(idx Index) error {
	if idx < 0 || int(idx) >= Count {
		return fmt.Errorf("semaphore index %d out of range", int(idx))
	}
	return nil
}
