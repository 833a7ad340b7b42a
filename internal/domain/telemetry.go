package domain

// PeerDescriptor is one member reported by the host-game telemetry
// source. StableID must be the same on every participant's machine for
// room derivation to converge.
type PeerDescriptor struct {
	StableID string `json:"stable_id"`
	Name     string `json:"name"`
}

// LobbyInfo carries the explicit grouping identifiers the game exposes,
// when it exposes any.
type LobbyInfo struct {
	PartyID string `json:"party_id,omitempty"`
	LobbyID string `json:"lobby_id,omitempty"`
}

// TelemetrySnapshot is one periodic report of game state. The voice
// engine only cares about the phase, the member list, and the lobby
// identifiers; everything else the game reports stays in Session as an
// opaque blob.
type TelemetrySnapshot struct {
	Phase   string           `json:"phase"`
	Members []PeerDescriptor `json:"members"`
	Lobby   LobbyInfo        `json:"lobby"`
	Session map[string]any   `json:"session,omitempty"`
}
