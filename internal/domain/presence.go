package domain

// Presence meta keys the engine itself reads and writes. The backend
// treats meta as an opaque map; anything else riding along is ignored.
const (
	MetaName     = "name"
	MetaSpeaking = "speaking"
	MetaMuted    = "muted"
)

// PresenceEntry is one member of a room's live roster. The roster is
// owned by the signaling backend; the engine only observes it through
// presence sync callbacks.
type PresenceEntry struct {
	ID         PeerID         `json:"id"`
	Meta       map[string]any `json:"meta"`
	JoinedAtMs uint64         `json:"joined_at_ms"`
}

// Speaking reports the presence-broadcast speaking flag for this entry.
func (e PresenceEntry) Speaking() bool {
	v, ok := e.Meta[MetaSpeaking].(bool)
	return ok && v
}

// Muted reports the presence-broadcast mute flag for this entry.
func (e PresenceEntry) Muted() bool {
	v, ok := e.Meta[MetaMuted].(bool)
	return ok && v
}

// Name returns the display name carried in meta, if any.
func (e PresenceEntry) Name() string {
	v, _ := e.Meta[MetaName].(string)
	return v
}
