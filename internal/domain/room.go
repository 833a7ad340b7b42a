package domain

import (
	"strings"

	"github.com/google/uuid"
)

const (
	MaxRoomIDLen = 64

	// manual room topics carry a prefix so a telemetry-derived id can
	// never collide with a user-created call code
	ManualRoomPrefix = "call-"
)

type RoomID string

// RoomKind distinguishes telemetry-driven rooms from user-created calls.
// The two lifecycles are isolated: tearing down one kind must never
// touch the other.
type RoomKind int

const (
	RoomAuto RoomKind = iota
	RoomManual
)

func (k RoomKind) String() string {
	switch k {
	case RoomAuto:
		return "auto"
	case RoomManual:
		return "manual"
	default:
		return "unknown"
	}
}

type Room struct {
	ID   RoomID
	Kind RoomKind
}

// NewCallCode returns a short shareable code for a manual call.
func NewCallCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:8]
}

// ManualRoom builds the room for a user-entered call code.
func ManualRoom(code string) Room {
	return Room{ID: RoomID(ManualRoomPrefix + code), Kind: RoomManual}
}

// AutoRoom builds the room for a telemetry-derived id.
func AutoRoom(id RoomID) Room {
	return Room{ID: id, Kind: RoomAuto}
}
