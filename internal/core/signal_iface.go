package core

import "github.com/partyline/voice/internal/domain"

// SignalChannel is the typed pub/sub + presence wrapper around one
// room topic. Delivery is fire-and-forget, at-most-once: callers must
// not assume a Send reached anyone. Network failures are never retried
// here; retry policy belongs to the session layer.
type SignalChannel interface {
	// Subscribe begins delivering messages broadcast on the topic.
	// Self-originated messages are filtered before onMessage runs.
	Subscribe(onMessage func(SignalMessage)) error

	// Send publishes one message on the topic.
	Send(SignalMessage) error

	// Presence registers the local peer in the room's member set with
	// initialMeta and invokes onSync with the full roster whenever the
	// member set changes on any peer, including the local one.
	Presence(onSync func([]domain.PresenceEntry), initialMeta map[string]any) error

	// UpdatePresence merges new keys into the tracked metadata without
	// removing unrelated keys.
	UpdatePresence(partial map[string]any) error

	// Close unregisters presence and tears down the subscription.
	// Repeated calls are idempotent no-ops.
	Close() error
}

// SignalDialer opens a channel for a room topic. Injected so the
// coordinator and tests never dial real sockets themselves.
type SignalDialer func(room domain.RoomID, self domain.PeerID) (SignalChannel, error)
