package signal

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/partyline/voice/internal/core"
	"github.com/partyline/voice/internal/domain"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// Channel is one websocket subscription to a room topic. It implements
// core.SignalChannel. Send is fire-and-forget: a write error reports
// the failure to the caller and nothing is retried here.
type Channel struct {
	topic string
	self  domain.PeerID
	conn  *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	onMessage func(core.SignalMessage)
	onSync    func([]domain.PresenceEntry)
	meta      map[string]any
	closed    bool
}

// NewDialer returns a SignalDialer connecting to the given backend
// base URL (ws:// or wss://), one socket per room topic.
func NewDialer(baseURL string) core.SignalDialer {
	return func(room domain.RoomID, self domain.PeerID) (core.SignalChannel, error) {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("bad signal url: %w", err)
		}
		u.Path = u.Path + "/rooms/" + url.PathEscape(string(room))
		q := u.Query()
		q.Set("peer", string(self))
		u.RawQuery = q.Encode()

		dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, _, err := dialer.Dial(u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("dial signal backend: %w", err)
		}
		return NewChannel(conn, room, self), nil
	}
}

// NewChannel wraps an established websocket as a room topic channel
// and starts its read pump.
func NewChannel(conn *websocket.Conn, room domain.RoomID, self domain.PeerID) *Channel {
	c := &Channel{
		topic: string(room),
		self:  self,
		conn:  conn,
	}
	go c.readPump()
	log.Info().Str("module", "signal").Str("topic", c.topic).Str("peer", string(self)).Msg("channel open")
	return c
}

func (c *Channel) Subscribe(onMessage func(core.SignalMessage)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrChannelClosed
	}
	c.onMessage = onMessage
	return nil
}

func (c *Channel) Send(msg core.SignalMessage) error {
	payload, err := json.Marshal(encodeSignal(msg))
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	return c.write(envelope{
		Topic:   c.topic,
		Event:   eventSignal,
		From:    string(c.self),
		Payload: payload,
	})
}

func (c *Channel) Presence(onSync func([]domain.PresenceEntry), initialMeta map[string]any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrChannelClosed
	}
	c.onSync = onSync
	c.meta = mergeMeta(map[string]any{}, initialMeta)
	meta := c.meta
	c.mu.Unlock()

	payload, err := json.Marshal(trackPayload{Meta: meta})
	if err != nil {
		return fmt.Errorf("marshal presence meta: %w", err)
	}
	return c.write(envelope{
		Topic:   c.topic,
		Event:   eventTrack,
		From:    string(c.self),
		Payload: payload,
	})
}

func (c *Channel) UpdatePresence(partial map[string]any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrChannelClosed
	}
	c.meta = mergeMeta(c.meta, partial)
	c.mu.Unlock()

	payload, err := json.Marshal(trackPayload{Meta: partial})
	if err != nil {
		return fmt.Errorf("marshal presence update: %w", err)
	}
	return c.write(envelope{
		Topic:   c.topic,
		Event:   eventUpdate,
		From:    string(c.self),
		Payload: payload,
	})
}

// Close unregisters presence and tears down the subscription.
// Repeated calls are no-ops.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.onMessage = nil
	c.onSync = nil
	c.mu.Unlock()

	err := c.conn.Close()
	log.Info().Str("module", "signal").Str("topic", c.topic).Msg("channel closed")
	return err
}

func (c *Channel) write(env envelope) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrChannelClosed
	}
	c.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("channel send: %w", err)
	}
	return nil
}

func (c *Channel) readPump() {
	defer func() {
		log.Info().Str("module", "signal").Str("topic", c.topic).Msg("readPump closing")
		_ = c.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				log.Error().Err(err).Str("module", "signal").Str("topic", c.topic).Msg("readPump read error")
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("topic", c.topic).Msg("bad json")
		return
	}

	switch env.Event {
	case eventSignal:
		msg, err := decodeSignal(env.Payload)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Str("topic", c.topic).Msg("drop signal")
			return
		}
		if msg.From == c.self {
			// echo of our own broadcast
			return
		}
		c.mu.Lock()
		fn := c.onMessage
		c.mu.Unlock()
		if fn != nil {
			fn(msg)
		}
	case eventPresenceState:
		entries, err := decodePresence(env.Payload)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Str("topic", c.topic).Msg("drop presence")
			return
		}
		c.mu.Lock()
		fn := c.onSync
		c.mu.Unlock()
		if fn != nil {
			fn(entries)
		}
	default:
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown event")
	}
}
