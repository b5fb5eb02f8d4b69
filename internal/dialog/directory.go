// Package dialog implements the dialog directory: a fixed table of dialogs,
// each with a fixed list of participant slots.
//
// None of the methods lock. Callers hold the protocol mutex around every call.
package dialog

import (
	"fmt"

	"github.com/codefionn/shmchat/internal/ipcerr"
	"github.com/codefionn/shmchat/internal/shmstate"
)

// Directory operates on the dialog table of a shared State.
type Directory struct {
	st *shmstate.State
}

// New returns a directory over st.
func New(st *shmstate.State) *Directory {
	return &Directory{st: st}
}

// Find returns the row holding dialog id.
func (d *Directory) Find(id int32) (int, error) {
	for row := range d.st.Dialogs {
		if d.st.Dialogs[row].Used != 0 && d.st.Dialogs[row].ID == id {
			return row, nil
		}
	}
	return -1, fmt.Errorf("dialog %d: %w", id, ipcerr.ErrNotFound)
}

// Create returns the row of dialog id, claiming the first unused row if the
// dialog does not exist yet.
func (d *Directory) Create(id int32) (int, error) {
	if row, err := d.Find(id); err == nil {
		return row, nil
	}
	for row := range d.st.Dialogs {
		dl := &d.st.Dialogs[row]
		if dl.Used == 0 {
			dl.Reset()
			dl.Used = 1
			dl.ID = id
			return row, nil
		}
	}
	return -1, fmt.Errorf("create dialog %d: no free row: %w", id, ipcerr.ErrFull)
}

// Join adds pid to dialog id and returns its slot. The slot is also the bit
// the participant owns in every message's read mask. Joining twice returns the
// same slot without touching the count.
func (d *Directory) Join(id int32, pid int32) (int, error) {
	row, err := d.Find(id)
	if err != nil {
		return -1, err
	}
	dl := &d.st.Dialogs[row]

	if slot := slotOf(dl, pid); slot >= 0 {
		return slot, nil
	}
	for slot := range dl.Participants {
		p := &dl.Participants[slot]
		if p.Occupied == 0 {
			p.Occupied = 1
			p.PID = pid
			dl.ParticipantCount++
			return slot, nil
		}
	}
	return -1, fmt.Errorf("join dialog %d: no free slot: %w", id, ipcerr.ErrFull)
}

// SlotOf returns the slot pid occupies in dialog id.
func (d *Directory) SlotOf(id int32, pid int32) (int, error) {
	row, err := d.Find(id)
	if err != nil {
		return -1, err
	}
	if slot := slotOf(&d.st.Dialogs[row], pid); slot >= 0 {
		return slot, nil
	}
	return -1, fmt.Errorf("pid %d in dialog %d: %w", pid, id, ipcerr.ErrNotFound)
}

// Leave removes pid from dialog id. The last participant to leave resets the
// row, so the id can be created afresh.
func (d *Directory) Leave(id int32, pid int32) error {
	row, err := d.Find(id)
	if err != nil {
		return err
	}
	dl := &d.st.Dialogs[row]
	slot := slotOf(dl, pid)
	if slot < 0 {
		return fmt.Errorf("pid %d in dialog %d: %w", pid, id, ipcerr.ErrNotFound)
	}

	dl.Participants[slot] = shmstate.Participant{}
	dl.ParticipantCount--
	if dl.ParticipantCount <= 0 {
		dl.Reset()
	}
	return nil
}

// ParticipantCount returns how many participants dialog id has.
func (d *Directory) ParticipantCount(id int32) (int, error) {
	row, err := d.Find(id)
	if err != nil {
		return 0, err
	}
	return int(d.st.Dialogs[row].ParticipantCount), nil
}

// Members returns the occupied slots of dialog id as a bit mask, together
// with the participant count.
func (d *Directory) Members(id int32) (uint32, int, error) {
	row, err := d.Find(id)
	if err != nil {
		return 0, 0, err
	}
	dl := &d.st.Dialogs[row]
	var mask uint32
	for slot := range dl.Participants {
		if dl.Participants[slot].Occupied != 0 {
			mask |= 1 << uint(slot)
		}
	}
	return mask, int(dl.ParticipantCount), nil
}

// Participants lists the occupied slots of dialog id in slot order.
func (d *Directory) Participants(id int32) ([]shmstate.ParticipantView, error) {
	row, err := d.Find(id)
	if err != nil {
		return nil, err
	}
	dl := &d.st.Dialogs[row]
	var out []shmstate.ParticipantView
	for slot := range dl.Participants {
		if dl.Participants[slot].Occupied != 0 {
			out = append(out, shmstate.ParticipantView{Slot: slot, PID: dl.Participants[slot].PID})
		}
	}
	return out, nil
}

func slotOf(dl *shmstate.Dialog, pid int32) int {
	for slot := range dl.Participants {
		p := &dl.Participants[slot]
		if p.Occupied != 0 && p.PID == pid {
			return slot
		}
	}
	return -1
}
