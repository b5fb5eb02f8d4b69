package shmstate

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/codefionn/shmchat/internal/consts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlayAndReset(t *testing.T) {
	mem := make([]byte, Size)
	s := Overlay(mem)
	require.NotNil(t, s)
	assert.False(t, s.IsInitialized())

	s.Ring[3].Used = 1
	s.Count = 5
	s.Reset()

	assert.True(t, s.IsInitialized())
	assert.Equal(t, int32(0), s.Count)
	assert.Zero(t, s.Ring[3].Used)
}

func TestOverlayTooSmall(t *testing.T) {
	assert.Nil(t, Overlay(make([]byte, Size-1)))
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"short", "hi", 2},
		{"exact bound", strings.Repeat("a", consts.MaxText-1), consts.MaxText - 1},
		{"over bound", strings.Repeat("a", consts.MaxText+40), consts.MaxText - 1},
		// 'é' is two bytes; 127 of them is 254 bytes, the 128th would end at 256
		{"rune boundary", strings.Repeat("é", 128), 254},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			m.SetText(tt.in)
			got := m.GetText()
			assert.Len(t, got, tt.want)
			assert.True(t, utf8.ValidString(got))
			assert.Zero(t, m.Text[consts.MaxText-1], "payload must stay terminated")
		})
	}
}

func TestSetTextClearsPreviousPayload(t *testing.T) {
	var m Message
	m.SetText("a much longer first message")
	m.SetText("short")
	assert.Equal(t, "short", m.GetText())
	assert.Zero(t, m.Text[len("short")])
}

func TestSnapshotWalksFromHead(t *testing.T) {
	var s State
	s.Reset()
	s.Head = consts.QCapacity - 1
	s.Count = 2
	s.Tail = 1

	s.Ring[consts.QCapacity-1] = Message{Used: 1, DialogID: 7, ParticipantSnapshot: 2, ReadersLeft: 1, ReadMask: 1}
	s.Ring[consts.QCapacity-1].SetText("first")
	s.Ring[0] = Message{Used: 1, DialogID: 7, ParticipantSnapshot: 2, ReadersLeft: 2}
	s.Ring[0].SetText("second")

	s.Dialogs[4] = Dialog{Used: 1, ID: 7, ParticipantCount: 1}
	s.Dialogs[4].Participants[2] = Participant{Occupied: 1, PID: 0}

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "first", snap.Messages[0].Text)
	assert.Equal(t, consts.QCapacity-1, snap.Messages[0].Pos)
	assert.Equal(t, 1, snap.Messages[0].Pending())
	assert.Equal(t, "second", snap.Messages[1].Text)
	assert.Equal(t, 0, snap.Messages[1].Pos)

	require.Len(t, snap.Dialogs, 1)
	assert.Equal(t, 4, snap.Dialogs[0].Row)
	assert.Equal(t, []ParticipantView{{Slot: 2, PID: 0}}, snap.Dialogs[0].Participants)
}
