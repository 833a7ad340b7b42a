package core

import (
	"sync"

	"github.com/partyline/voice/internal/domain"
)

// EventKind tags entries on the outward event stream.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventSpeakingChanged
	EventStatsUpdated
	EventRoomChanged
	EventSessionError
)

// Event is one typed entry on the outward surface consumed by the UI
// layer. Only the fields relevant to Kind are populated.
type Event struct {
	Kind     EventKind
	Room     domain.RoomID
	Peer     domain.PeerID
	State    ConnectionState
	Speaking bool
	Stats    *ConnectionStats
	Err      error
}

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber that stops draining loses events rather than stalling the
// session goroutines.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a receive channel and a cancel func. Cancel is
// idempotent and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, 64)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to all current subscribers, dropping on full
// buffers.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
