package app

import (
	"sort"
	"strings"

	"github.com/partyline/voice/internal/domain"
)

// DeriveRoomID computes the automatic room identity for a telemetry
// snapshot. An explicit party or lobby identifier wins; otherwise the
// stable member ids are sorted and joined so every participant
// computes the same id without a central allocator. Always bounded to
// domain.MaxRoomIDLen.
func DeriveRoomID(snap domain.TelemetrySnapshot) domain.RoomID {
	if id := snap.Lobby.PartyID; id != "" {
		return bounded("party-" + id)
	}
	if id := snap.Lobby.LobbyID; id != "" {
		return bounded("lobby-" + id)
	}

	ids := make([]string, 0, len(snap.Members))
	for _, m := range snap.Members {
		if m.StableID != "" {
			ids = append(ids, m.StableID)
		}
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return bounded("peers-" + strings.Join(ids, "."))
}

func bounded(id string) domain.RoomID {
	if len(id) > domain.MaxRoomIDLen {
		id = id[:domain.MaxRoomIDLen]
	}
	return domain.RoomID(id)
}
