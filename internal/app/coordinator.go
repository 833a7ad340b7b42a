package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/partyline/voice/internal/app/session"
	"github.com/partyline/voice/internal/core"
	"github.com/partyline/voice/internal/domain"
)

// SessionFactory builds a session bound to an open channel. Injected
// so tests can substitute fakes for the media stack.
type SessionFactory func(room domain.Room, ch core.SignalChannel) *session.Session

// Coordinator is the only component aware of why a room should exist.
// It derives room identity from telemetry, gates join/leave, keeps the
// per-room volume map and speaking flags, and enforces that at most
// one live session exists per room. Automatic and manual calls have
// isolated lifecycles.
type Coordinator struct {
	self       domain.PeerID
	name       string
	dial       core.SignalDialer
	newSession SessionFactory
	policy     JoinPolicy
	registry   *Registry
	bus        *core.Bus

	mu     sync.Mutex
	auto   *call
	manual *call
	closed bool
}

type call struct {
	room       domain.Room
	channel    core.SignalChannel
	sess       *session.Session
	forceAlone bool

	peers    []domain.PresenceEntry
	speaking map[domain.PeerID]bool
	volumes  map[domain.PeerID]float64
	canJoin  bool
	joining  bool
	joined   bool
}

func NewCoordinator(self domain.PeerID, name string, dial core.SignalDialer, newSession SessionFactory, policy JoinPolicy, bus *core.Bus) *Coordinator {
	return &Coordinator{
		self:       self,
		name:       name,
		dial:       dial,
		newSession: newSession,
		policy:     policy,
		registry:   NewRegistry(),
		bus:        bus,
	}
}

// OnTelemetry is the push callback fed by the host-game telemetry
// source. It rotates the automatic room to match the snapshot and
// never touches a manual call.
func (c *Coordinator) OnTelemetry(snap domain.TelemetrySnapshot) {
	c.mu.Lock()
	closed := c.closed
	cur := c.auto
	c.mu.Unlock()
	if closed {
		return
	}

	target := domain.RoomID("")
	if decision := c.policy.Evaluate(snap); decision == JoinAllowed {
		target = DeriveRoomID(snap)
	} else {
		log.Debug().Str("module", "app.coordinator").Str("phase", snap.Phase).Str("decision", decision.String()).Msg("auto room blocked")
	}

	if cur != nil && cur.room.ID != target {
		c.teardown(domain.RoomAuto)
		cur = nil
	}
	if target != "" && cur == nil {
		if err := c.open(domain.AutoRoom(target), false); err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(target)).Msg("open auto room")
		}
	}
}

// CreateCall starts a manual call and returns its shareable code.
func (c *Coordinator) CreateCall() (string, error) {
	code := domain.NewCallCode()
	if err := c.JoinCallCode(code); err != nil {
		return "", err
	}
	return code, nil
}

// JoinCallCode joins the manual call behind a shared code, replacing
// any prior manual call. Manual calls join immediately: the user asked
// for the room, alone or not.
func (c *Coordinator) JoinCallCode(code string) error {
	c.teardown(domain.RoomManual)
	return c.open(domain.ManualRoom(code), true)
}

// LeaveCall tears down the manual call only.
func (c *Coordinator) LeaveCall() {
	c.teardown(domain.RoomManual)
}

// Mute toggles the microphone across all active calls.
func (c *Coordinator) Mute(muted bool) {
	c.mu.Lock()
	var sessions []*session.Session
	if c.auto != nil {
		sessions = append(sessions, c.auto.sess)
	}
	if c.manual != nil {
		sessions = append(sessions, c.manual.sess)
	}
	c.mu.Unlock()
	for _, s := range sessions {
		s.Mute(muted)
	}
}

// SetVolume sets the playback gain for a peer in a room, clamped to
// [0,1]. Gains live and die with the room.
func (c *Coordinator) SetVolume(room domain.RoomID, peer domain.PeerID, gain float64) {
	if gain < 0 {
		gain = 0
	}
	if gain > 1 {
		gain = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl := c.callByIDLocked(room); cl != nil {
		cl.volumes[peer] = gain
	}
}

// Volume reports the playback gain for a peer, defaulting to 1.
func (c *Coordinator) Volume(room domain.RoomID, peer domain.PeerID) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl := c.callByIDLocked(room); cl != nil {
		if g, ok := cl.volumes[peer]; ok {
			return g
		}
	}
	return 1.0
}

// Close tears down both call lifecycles. Terminal.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.teardown(domain.RoomAuto)
	c.teardown(domain.RoomManual)
}

func (c *Coordinator) open(room domain.Room, forceAlone bool) error {
	ch, err := c.dial(room.ID, c.self)
	if err != nil {
		return fmt.Errorf("open signal channel: %w", err)
	}
	sess := c.newSession(room, ch)
	if err := c.registry.Bind(room.ID, sess); err != nil {
		_ = ch.Close()
		return err
	}

	cl := &call{
		room:       room,
		channel:    ch,
		sess:       sess,
		forceAlone: forceAlone,
		speaking:   make(map[domain.PeerID]bool),
		volumes:    make(map[domain.PeerID]float64),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sess.Cleanup(true)
		c.registry.Release(room.ID, sess)
		return core.ErrSessionClosed
	}
	switch room.Kind {
	case domain.RoomAuto:
		c.auto = cl
	case domain.RoomManual:
		c.manual = cl
	}
	c.mu.Unlock()

	meta := map[string]any{
		domain.MetaName:     c.name,
		domain.MetaSpeaking: false,
		domain.MetaMuted:    false,
	}
	if err := ch.Presence(func(entries []domain.PresenceEntry) {
		c.onPresence(room, entries)
	}, meta); err != nil {
		c.teardown(room.Kind)
		return fmt.Errorf("track presence: %w", err)
	}

	log.Info().Str("module", "app.coordinator").Str("room", string(room.ID)).Str("kind", room.Kind.String()).Msg("room opened")
	c.bus.Publish(core.Event{Kind: core.EventRoomChanged, Room: room.ID})

	if forceAlone {
		c.maybeJoin(cl)
	}
	return nil
}

// onPresence is the roster sync callback for one room. It reorders
// peers with self first, recomputes the join gate, and mirrors remote
// speaking flags out of presence meta.
func (c *Coordinator) onPresence(room domain.Room, entries []domain.PresenceEntry) {
	type speakingChange struct {
		peer     domain.PeerID
		speaking bool
	}

	c.mu.Lock()
	cl := c.callForLocked(room.Kind)
	if cl == nil || cl.room.ID != room.ID {
		c.mu.Unlock()
		return
	}
	cl.peers = orderPeers(entries, c.self)
	wasJoinable := cl.canJoin
	cl.canJoin = len(entries) >= 2

	var changes []speakingChange
	present := make(map[domain.PeerID]bool, len(entries))
	for _, e := range entries {
		present[e.ID] = true
		if e.ID == c.self {
			continue
		}
		if now := e.Speaking(); cl.speaking[e.ID] != now {
			cl.speaking[e.ID] = now
			changes = append(changes, speakingChange{peer: e.ID, speaking: now})
		}
	}
	for id := range cl.speaking {
		if !present[id] {
			delete(cl.speaking, id)
		}
	}

	flipped := wasJoinable != cl.canJoin
	canJoin := cl.canJoin
	joined := cl.joined
	force := cl.forceAlone
	c.mu.Unlock()

	for _, ch := range changes {
		c.bus.Publish(core.Event{
			Kind:     core.EventSpeakingChanged,
			Room:     room.ID,
			Peer:     ch.peer,
			Speaking: ch.speaking,
		})
	}
	if flipped {
		log.Info().Str("module", "app.coordinator").Str("room", string(room.ID)).Bool("can_join", canJoin).Msg("join gate")
		c.bus.Publish(core.Event{Kind: core.EventRoomChanged, Room: room.ID})
	}

	if canJoin && !joined {
		c.maybeJoin(cl)
	}
	if !canJoin && joined && !force && room.Kind == domain.RoomAuto {
		// the roster collapsed under us; drop the auto room
		go c.teardown(domain.RoomAuto)
	}
}

// maybeJoin starts media for a call once the join gate allows it. The
// local participant never initiates capture while alone in a room
// unless the call was forced.
func (c *Coordinator) maybeJoin(cl *call) {
	c.mu.Lock()
	if c.closed || cl.joining || cl.joined {
		c.mu.Unlock()
		return
	}
	if !cl.canJoin && !cl.forceAlone {
		room := cl.room
		c.mu.Unlock()
		log.Debug().Err(core.ErrAloneInRoom).Str("module", "app.coordinator").Str("room", string(room.ID)).Msg("join deferred")
		return
	}
	cl.joining = true
	sess := cl.sess
	room := cl.room
	c.mu.Unlock()

	go func() {
		err := sess.Join(context.Background())
		c.mu.Lock()
		cl.joining = false
		if err == nil {
			cl.joined = true
		}
		c.mu.Unlock()
		if err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(room.ID)).Msg("join failed")
			c.bus.Publish(core.Event{Kind: core.EventSessionError, Room: room.ID, Peer: c.self, Err: err})
		}
	}()
}

// teardown removes one call lifecycle. Tearing down the automatic
// room never touches a manual call and vice versa.
func (c *Coordinator) teardown(kind domain.RoomKind) {
	c.mu.Lock()
	var cl *call
	switch kind {
	case domain.RoomAuto:
		cl, c.auto = c.auto, nil
	case domain.RoomManual:
		cl, c.manual = c.manual, nil
	}
	c.mu.Unlock()
	if cl == nil {
		return
	}

	cl.sess.Cleanup(true)
	c.registry.Release(cl.room.ID, cl.sess)
	log.Info().Str("module", "app.coordinator").Str("room", string(cl.room.ID)).Str("kind", kind.String()).Msg("room torn down")
	c.bus.Publish(core.Event{Kind: core.EventRoomChanged, Room: cl.room.ID})
}

func (c *Coordinator) callForLocked(kind domain.RoomKind) *call {
	if kind == domain.RoomManual {
		return c.manual
	}
	return c.auto
}

func (c *Coordinator) callByIDLocked(room domain.RoomID) *call {
	if c.auto != nil && c.auto.room.ID == room {
		return c.auto
	}
	if c.manual != nil && c.manual.room.ID == room {
		return c.manual
	}
	return nil
}

func orderPeers(entries []domain.PresenceEntry, self domain.PeerID) []domain.PresenceEntry {
	out := make([]domain.PresenceEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID == self {
			out = append(out, e)
		}
	}
	for _, e := range entries {
		if e.ID != self {
			out = append(out, e)
		}
	}
	return out
}
