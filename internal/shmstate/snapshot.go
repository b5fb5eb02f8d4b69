package shmstate

import "math/bits"

// ParticipantView is an occupied participant slot.
type ParticipantView struct {
	Slot int   `json:"slot" msgpack:"slot"`
	PID  int32 `json:"pid" msgpack:"pid"`
}

// DialogView is a used directory row.
type DialogView struct {
	Row          int               `json:"row" msgpack:"row"`
	ID           int32             `json:"id" msgpack:"id"`
	Count        int32             `json:"participant_count" msgpack:"participant_count"`
	Participants []ParticipantView `json:"participants" msgpack:"participants"`
}

// MessageView is an occupied ring position.
type MessageView struct {
	Pos         int    `json:"pos" msgpack:"pos"`
	DialogID    int32  `json:"dialog_id" msgpack:"dialog_id"`
	Sender      int32  `json:"sender" msgpack:"sender"`
	Snapshot    int32  `json:"participant_snapshot" msgpack:"participant_snapshot"`
	ReadersLeft int32  `json:"readers_left" msgpack:"readers_left"`
	ReadMask    uint32 `json:"read_mask" msgpack:"read_mask"`
	Eligible    uint32 `json:"eligible_mask" msgpack:"eligible_mask"`
	Text        string `json:"text" msgpack:"text"`
}

// Snapshot is a detached copy of a State, safe to keep after the mutex is
// released.
type Snapshot struct {
	Head     int32         `json:"head" msgpack:"head"`
	Tail     int32         `json:"tail" msgpack:"tail"`
	Count    int32         `json:"count" msgpack:"count"`
	Dialogs  []DialogView  `json:"dialogs" msgpack:"dialogs"`
	Messages []MessageView `json:"messages" msgpack:"messages"`
}

// Snapshot copies the state. The caller must hold the mutex.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Head:  s.Head,
		Tail:  s.Tail,
		Count: s.Count,
	}
	for row := range s.Dialogs {
		d := &s.Dialogs[row]
		if d.Used == 0 {
			continue
		}
		dv := DialogView{Row: row, ID: d.ID, Count: d.ParticipantCount}
		for slot := range d.Participants {
			if d.Participants[slot].Occupied != 0 {
				dv.Participants = append(dv.Participants, ParticipantView{Slot: slot, PID: d.Participants[slot].PID})
			}
		}
		snap.Dialogs = append(snap.Dialogs, dv)
	}
	for i := 0; i < int(s.Count); i++ {
		pos := s.Pos(i)
		m := &s.Ring[pos]
		snap.Messages = append(snap.Messages, MessageView{
			Pos:         pos,
			DialogID:    m.DialogID,
			Sender:      m.Sender,
			Snapshot:    m.ParticipantSnapshot,
			ReadersLeft: m.ReadersLeft,
			ReadMask:    m.ReadMask,
			Eligible:    m.EligibleMask,
			Text:        m.GetText(),
		})
	}
	return snap
}

// Pending is the number of deliveries still owed for this message.
func (m MessageView) Pending() int {
	return int(m.Snapshot) - bits.OnesCount32(m.ReadMask)
}
