// Package shmstate defines the memory image shared by every chat process.
//
// All types are fixed-size and pointer-free so a State can be overlaid on a
// mapped segment. Rows and slots are addressed by index, never by address.
package shmstate

import (
	"unsafe"

	"github.com/codefionn/shmchat/internal/consts"
)

// Participant is one slot of a dialog. Occupied is an explicit tag, so every
// PID value (0 included) is a legal identity.
type Participant struct {
	Occupied uint32
	PID      int32
}

// Dialog is one directory row.
type Dialog struct {
	Used             uint32
	ID               int32
	ParticipantCount int32
	Participants     [consts.MaxParticipants]Participant
}

// Message is one ring slot.
type Message struct {
	Used                uint32
	DialogID            int32
	Sender              int32
	ParticipantSnapshot int32 // participant count at send time
	ReadersLeft         int32
	ReadMask            uint32 // bit i set once slot i consumed the message
	EligibleMask        uint32 // slots occupied at send time
	Len                 uint32
	Text                [consts.MaxText]byte
}

// State is the whole shared image. The occupied ring region is
// [Head, Head+Count) modulo QCapacity.
type State struct {
	Initialized uint32
	Head        int32
	Tail        int32
	Count       int32
	Dialogs     [consts.MaxDialogs]Dialog
	Ring        [consts.QCapacity]Message
}

// Size is the number of bytes a segment needs to hold a State.
const Size = int(unsafe.Sizeof(State{}))

const initMagic = 1

// Overlay interprets mem as a State. mem must be at least Size bytes and stay
// mapped for as long as the returned pointer is used.
func Overlay(mem []byte) *State {
	if len(mem) < Size {
		return nil
	}
	return (*State)(unsafe.Pointer(&mem[0]))
}

// IsInitialized reports whether some process already ran Reset on this image.
func (s *State) IsInitialized() bool {
	return s.Initialized == initMagic
}

// Reset zeroes the whole image and sets the guard.
func (s *State) Reset() {
	*s = State{}
	s.Initialized = initMagic
}

// Reset clears a dialog row back to unused.
func (d *Dialog) Reset() {
	*d = Dialog{}
}

// SetText copies text into the payload, truncated to MaxText-1 bytes on a
// UTF-8 boundary and always terminated.
func (m *Message) SetText(text string) {
	n := ClampText(text)
	copy(m.Text[:], text[:n])
	for i := n; i < len(m.Text); i++ {
		m.Text[i] = 0
	}
	m.Len = uint32(n)
}

// GetText returns a copy of the payload.
func (m *Message) GetText() string {
	n := int(m.Len)
	if n >= len(m.Text) {
		n = len(m.Text) - 1
	}
	return string(m.Text[:n])
}

// ClampText returns how many leading bytes of text fit into a payload.
func ClampText(text string) int {
	n := len(text)
	if n <= consts.MaxText-1 {
		return n
	}
	n = consts.MaxText - 1
	// back off to the start of a rune
	for n > 0 && text[n]&0xC0 == 0x80 {
		n--
	}
	return n
}

// Pos maps the i-th occupied ring entry (0 = head) to a ring index.
func (s *State) Pos(i int) int {
	return (int(s.Head) + i) % consts.QCapacity
}
