package consts

import "time"

// Shared table capacities. Changing any of these changes the segment layout,
// and an already-initialized segment built with other values is not detected.
const (
	// MaxDialogs is the number of dialog rows in the directory
	MaxDialogs = 16
	// MaxParticipants is the number of participant slots per dialog.
	// A slot index doubles as a bit in a 32-bit read mask, so it must stay <= 32.
	MaxParticipants = 16
	// QCapacity is the number of message slots in the ring
	QCapacity = 128
	// MaxText is the payload bound of a message including the terminator
	MaxText = 256
)

// Well-known IPC keys
const (
	// DefaultShmKey identifies the shared memory segment
	DefaultShmKey = 0x12345
	// DefaultSemKey identifies the semaphore set
	DefaultSemKey = 0x54321
	// DefaultPerm is the permission mask for both IPC objects
	DefaultPerm = 0600
)

// Timing
const (
	// DefaultRecvPollInterval is how long a receiver sleeps after a false wake
	DefaultRecvPollInterval = 10 * time.Millisecond
	// SemWaitSlice bounds a single blocking semaphore wait so cancellation is noticed
	SemWaitSlice = 100 * time.Millisecond
)

// TerminateText is the payload of the terminate command. Only the display side
// gives it meaning.
const TerminateText = "TERMINATE"
