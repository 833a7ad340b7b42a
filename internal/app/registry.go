package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/partyline/voice/internal/app/session"
	"github.com/partyline/voice/internal/core"
	"github.com/partyline/voice/internal/domain"
)

// Registry tracks the live session per room and enforces the
// one-session-per-room invariant: a new session may only be bound once
// the previous one has finished its final cleanup.
type Registry struct {
	mu       sync.Mutex
	sessions map[domain.RoomID]*session.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.RoomID]*session.Session)}
}

// Bind registers sess as the room's session. Returns ErrSessionActive
// while a prior session for the room is not yet closed.
func (r *Registry) Bind(room domain.RoomID, sess *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[room]; ok && old.State() != core.StateClosed {
		return core.ErrSessionActive
	}
	r.sessions[room] = sess
	log.Info().Str("module", "app.registry").Str("room", string(room)).Msg("bound session")
	return nil
}

// Release drops the binding if sess still owns it.
func (r *Registry) Release(room domain.RoomID, sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[room]; ok && cur == sess {
		delete(r.sessions, room)
		log.Info().Str("module", "app.registry").Str("room", string(room)).Msg("released session")
	}
}

// Get returns the room's session, if any.
func (r *Registry) Get(room domain.RoomID) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[room]
	return s, ok
}
