package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/partyline/voice/internal/adapters/media"
	"github.com/partyline/voice/internal/core"
	"github.com/partyline/voice/internal/domain"
)

// MediaFactory builds a fresh peer connection per join attempt.
type MediaFactory func() (core.MediaConnection, error)

// CaptureFactory builds a fresh capture source per join attempt, since
// cleanup releases the device.
type CaptureFactory func() core.CaptureSource

// Config tunes one session.
type Config struct {
	StatsInterval     time.Duration
	SpeakingThreshold float64
	Reconnect         ReconnectConfig
}

func (c Config) withDefaults() Config {
	if c.StatsInterval <= 0 {
		c.StatsInterval = 2 * time.Second
	}
	return c
}

// Session owns exactly one peer connection and the local media
// pipeline for one room. All failure paths end in connected,
// reconnecting, or closed.
type Session struct {
	room domain.Room
	self domain.PeerID
	cfg  Config

	channel    core.SignalChannel
	newMedia   MediaFactory
	newCapture CaptureFactory
	bus        *core.Bus

	recon    *Reconnector
	detector *media.SpeakingDetector

	mu         sync.Mutex
	state      core.ConnectionState
	media      core.MediaConnection
	capture    core.CaptureSource
	sender     *webrtc.RTPSender
	gen        uint64
	muted      bool
	subscribed bool
	lastStats  core.ConnectionStats
	statsStop  context.CancelFunc
}

func New(room domain.Room, self domain.PeerID, channel core.SignalChannel, newMedia MediaFactory, newCapture CaptureFactory, bus *core.Bus, cfg Config) *Session {
	s := &Session{
		room:       room,
		self:       self,
		cfg:        cfg.withDefaults(),
		channel:    channel,
		newMedia:   newMedia,
		newCapture: newCapture,
		bus:        bus,
		state:      core.StateIdle,
	}
	s.recon = NewReconnector(s.cfg.Reconnect, s.reattempt, nil, s.onExhausted)
	s.detector = media.NewSpeakingDetector(s.cfg.SpeakingThreshold, s.onSpeakingChange)
	return s
}

func (s *Session) Room() domain.Room   { return s.room }
func (s *Session) Self() domain.PeerID { return s.self }

func (s *Session) State() core.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the most recent sampled connection stats.
func (s *Session) Stats() core.ConnectionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStats
}

// Speaking reports the local voice-activity state.
func (s *Session) Speaking() bool { return s.detector.Speaking() }

func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// Join subscribes signaling, acquires the microphone, builds the peer
// connection, and sends a broadcast offer. The caller enforces
// join-gating; by the time Join runs the room is approved.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.state == core.StateClosed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	if s.media != nil {
		s.mu.Unlock()
		return core.ErrSessionActive
	}
	gen := s.gen
	if !s.subscribed {
		if err := s.channel.Subscribe(s.handleSignal); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("subscribe signaling: %w", err)
		}
		s.subscribed = true
		s.setStateLocked(core.StateSignalingSubscribed)
	}
	s.mu.Unlock()

	mc, err := s.newMedia()
	if err != nil {
		return fmt.Errorf("%w: create peer connection: %v", core.ErrNegotiation, err)
	}

	mc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if !s.genValid(gen) {
			return
		}
		if err := s.channel.Send(core.NewCandidate(s.self, ci)); err != nil {
			log.Warn().Err(err).Str("module", "session").Str("room", string(s.room.ID)).Msg("send candidate")
		}
	})
	mc.OnStateChange(func(st webrtc.PeerConnectionState) {
		switch st {
		case webrtc.PeerConnectionStateConnected:
			s.onTransportConnected(gen)
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			s.onTransportFailure(gen)
		}
	})

	mic := s.newCapture()
	mic.OnLevel(s.detector.Ingest)
	if err := mic.Open(ctx); err != nil {
		mc.Close()
		return err
	}

	s.mu.Lock()
	if s.gen != gen || s.state == core.StateClosed {
		s.mu.Unlock()
		mc.Close()
		_ = mic.Close()
		return core.ErrSessionClosed
	}
	s.media = mc
	s.capture = mic
	s.mu.Unlock()

	if err := mc.Start(ctx); err != nil {
		s.dropMedia(gen)
		return fmt.Errorf("%w: start transport: %v", core.ErrNegotiation, err)
	}

	if track := mic.Track(); track != nil {
		sender, err := mc.AddLocalTrack(track)
		if err != nil {
			s.dropMedia(gen)
			return fmt.Errorf("%w: add audio track: %v", core.ErrNegotiation, err)
		}
		s.mu.Lock()
		s.sender = sender
		muted := s.muted
		s.mu.Unlock()
		if muted {
			_ = sender.ReplaceTrack(nil)
		}
	}

	offer, err := mc.CreateAndSetOffer(ctx)
	if err != nil {
		s.dropMedia(gen)
		return fmt.Errorf("%w: create offer: %v", core.ErrNegotiation, err)
	}
	if err := s.channel.Send(core.NewOffer(s.self, offer.SDP)); err != nil {
		s.dropMedia(gen)
		return fmt.Errorf("%w: send offer: %v", core.ErrNegotiation, err)
	}

	s.mu.Lock()
	if s.gen == gen && s.state != core.StateClosed {
		s.setStateLocked(core.StateOffering)
	}
	s.mu.Unlock()

	s.startStats(gen)

	log.Info().Str("module", "session").Str("room", string(s.room.ID)).Str("peer", string(s.self)).Msg("joined")
	return nil
}

// handleSignal is the state-machine transition function for inbound
// signaling messages.
func (s *Session) handleSignal(msg core.SignalMessage) {
	if !msg.AddressedTo(s.self) {
		return
	}
	switch msg.Kind {
	case core.SignalOffer:
		s.handleOffer(msg)
	case core.SignalAnswer:
		s.handleAnswer(msg)
	case core.SignalCandidate:
		s.handleCandidate(msg)
	}
}

// handleOffer answers a remote broadcast offer. This assumes a single
// remote offerer per room; mesh rooms with concurrent offerers would
// need per-pair role negotiation and are out of scope.
func (s *Session) handleOffer(msg core.SignalMessage) {
	s.mu.Lock()
	mc := s.media
	gen := s.gen
	if mc == nil || s.state == core.StateClosed {
		s.mu.Unlock()
		log.Debug().Str("module", "session").Str("from", string(msg.From)).Msg("offer dropped, no live connection")
		return
	}
	s.setStateLocked(core.StateAnswering)
	s.mu.Unlock()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP}
	answer, err := mc.ApplyOfferAndCreateAnswer(context.Background(), offer)
	if err != nil {
		log.Error().Err(err).Str("module", "session").Str("from", string(msg.From)).Msg("answer offer")
		return
	}
	if !s.genValid(gen) {
		return
	}
	if err := s.channel.Send(core.NewAnswer(s.self, msg.From, answer.SDP)); err != nil {
		log.Error().Err(err).Str("module", "session").Str("to", string(msg.From)).Msg("send answer")
	}
}

// handleAnswer applies the remote answer to our outstanding offer. A
// stale answer arriving after cleanup is detected by the generation
// check and discarded.
func (s *Session) handleAnswer(msg core.SignalMessage) {
	s.mu.Lock()
	mc := s.media
	if mc == nil || s.state == core.StateClosed {
		s.mu.Unlock()
		log.Debug().Str("module", "session").Str("from", string(msg.From)).Msg("stale answer discarded")
		return
	}
	err := mc.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP})
	s.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("module", "session").Str("from", string(msg.From)).Msg("apply answer")
	}
}

// handleCandidate applies a remote candidate best-effort. A dropped
// candidate does not abort the session; ICE gathers more.
func (s *Session) handleCandidate(msg core.SignalMessage) {
	s.mu.Lock()
	mc := s.media
	s.mu.Unlock()
	if mc == nil {
		return
	}
	if err := mc.AddICECandidate(msg.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "session").Str("from", string(msg.From)).Msg("add ice candidate")
	}
}

// Mute toggles the outbound audio track without renegotiating or
// stopping capture.
func (s *Session) Mute(muted bool) {
	s.mu.Lock()
	if s.muted == muted {
		s.mu.Unlock()
		return
	}
	s.muted = muted
	sender := s.sender
	var track webrtc.TrackLocal
	if !muted && s.capture != nil {
		track = s.capture.Track()
	}
	s.mu.Unlock()

	if sender != nil {
		if muted {
			_ = sender.ReplaceTrack(nil)
		} else if track != nil {
			_ = sender.ReplaceTrack(track)
		}
	}
	if err := s.channel.UpdatePresence(map[string]any{domain.MetaMuted: muted}); err != nil {
		log.Debug().Err(err).Str("module", "session").Msg("presence mute update")
	}
	log.Info().Str("module", "session").Str("room", string(s.room.ID)).Bool("muted", muted).Msg("mute toggled")
}

// Cleanup stops local media, closes the peer connection, and detaches
// the analysis tap. With closeSignaling it also closes the channel and
// the session becomes terminal; without it the signaling subscription
// survives for reconnection. Idempotent.
func (s *Session) Cleanup(closeSignaling bool) {
	s.mu.Lock()
	if s.state == core.StateClosed {
		s.mu.Unlock()
		return
	}
	s.gen++
	mc := s.media
	mic := s.capture
	stop := s.statsStop
	s.media = nil
	s.capture = nil
	s.sender = nil
	s.statsStop = nil
	if closeSignaling {
		s.setStateLocked(core.StateClosed)
	} else if s.state != core.StateReconnecting {
		s.setStateLocked(core.StateIdle)
	}
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if mic != nil {
		_ = mic.Close()
	}
	if mc != nil {
		mc.Close()
	}
	if closeSignaling {
		s.recon.Destroy()
		if err := s.channel.Close(); err != nil {
			log.Debug().Err(err).Str("module", "session").Msg("channel close")
		}
	}
	log.Info().Str("module", "session").Str("room", string(s.room.ID)).Bool("final", closeSignaling).Msg("cleanup")
}

// dropMedia undoes a partial join without touching signaling.
func (s *Session) dropMedia(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	mc := s.media
	mic := s.capture
	s.media = nil
	s.capture = nil
	s.sender = nil
	s.mu.Unlock()
	if mic != nil {
		_ = mic.Close()
	}
	if mc != nil {
		mc.Close()
	}
}

func (s *Session) genValid(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.state != core.StateClosed
}

func (s *Session) onTransportConnected(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state == core.StateClosed {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(core.StateConnected)
	s.mu.Unlock()
	s.recon.Reset()
}

func (s *Session) onTransportFailure(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.state == core.StateClosed || s.state == core.StateReconnecting {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(core.StateDisconnected)
	s.mu.Unlock()

	log.Warn().Str("module", "session").Str("room", string(s.room.ID)).Msg("transport failure")
	s.recon.Schedule()
}

// reattempt is the retry callback: tear down media but keep signaling,
// then join again under a fresh generation.
func (s *Session) reattempt() error {
	s.mu.Lock()
	if s.state == core.StateClosed {
		s.mu.Unlock()
		return core.ErrSessionClosed
	}
	s.setStateLocked(core.StateReconnecting)
	s.mu.Unlock()

	s.Cleanup(false)

	s.mu.Lock()
	if s.state != core.StateClosed {
		s.setStateLocked(core.StateReconnecting)
	}
	s.mu.Unlock()

	return s.Join(context.Background())
}

// onExhausted surfaces the terminal retry failure and releases
// everything.
func (s *Session) onExhausted() {
	s.mu.Lock()
	if s.state == core.StateClosed {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(core.StateFailed)
	s.mu.Unlock()

	s.bus.Publish(core.Event{
		Kind: core.EventSessionError,
		Room: s.room.ID,
		Peer: s.self,
		Err:  core.ErrReconnectionExhausted,
	})
	s.Cleanup(true)
}

func (s *Session) onSpeakingChange(speaking bool) {
	s.bus.Publish(core.Event{
		Kind:     core.EventSpeakingChanged,
		Room:     s.room.ID,
		Peer:     s.self,
		Speaking: speaking,
	})
	if err := s.channel.UpdatePresence(map[string]any{domain.MetaSpeaking: speaking}); err != nil {
		log.Debug().Err(err).Str("module", "session").Msg("presence speaking update")
	}
}

func (s *Session) startStats(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.gen != gen || s.statsStop != nil {
		s.mu.Unlock()
		cancel()
		return
	}
	s.statsStop = cancel
	interval := s.cfg.StatsInterval
	s.mu.Unlock()

	go s.statsLoop(ctx, gen, interval)
}

// statsLoop samples transport metrics on a fixed interval and
// publishes the scored result.
func (s *Session) statsLoop(ctx context.Context, gen uint64, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			mc := s.media
			ok := s.gen == gen && mc != nil
			s.mu.Unlock()
			if !ok {
				return
			}

			m, err := mc.Stats(ctx)
			if err != nil {
				continue
			}
			stats := core.NewConnectionStats(m)

			s.mu.Lock()
			if s.gen == gen {
				s.lastStats = stats
			}
			s.mu.Unlock()

			s.bus.Publish(core.Event{
				Kind:  core.EventStatsUpdated,
				Room:  s.room.ID,
				Peer:  s.self,
				Stats: &stats,
			})
		}
	}
}

// setStateLocked transitions the FSM and publishes the change. Caller
// holds s.mu.
func (s *Session) setStateLocked(st core.ConnectionState) {
	if s.state == st {
		return
	}
	log.Debug().Str("module", "session").Str("room", string(s.room.ID)).Str("from", s.state.String()).Str("to", st.String()).Msg("state")
	s.state = st
	s.bus.Publish(core.Event{
		Kind:  core.EventStateChanged,
		Room:  s.room.ID,
		Peer:  s.self,
		State: st,
	})
}
