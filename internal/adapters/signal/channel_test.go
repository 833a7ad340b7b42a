package signal

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/partyline/voice/internal/core"
	"github.com/partyline/voice/internal/domain"
)

type wsHarness struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []*http.Request
	conns    []*websocket.Conn
	inbound  []envelope
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	h := &wsHarness{}
	upgrader := websocket.Upgrader{}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		h.mu.Lock()
		h.requests = append(h.requests, r)
		h.conns = append(h.conns, conn)
		h.mu.Unlock()

		go func() {
			for {
				var env envelope
				if err := conn.ReadJSON(&env); err != nil {
					return
				}
				h.mu.Lock()
				h.inbound = append(h.inbound, env)
				h.mu.Unlock()
			}
		}()
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *wsHarness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http")
}

func (h *wsHarness) lastConn(t *testing.T) *websocket.Conn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		n := len(h.conns)
		h.mu.Unlock()
		if n > 0 {
			h.mu.Lock()
			c := h.conns[n-1]
			h.mu.Unlock()
			return c
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no websocket connection arrived")
	return nil
}

func (h *wsHarness) received(t *testing.T, event string) envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		for _, env := range h.inbound {
			if env.Event == event {
				h.mu.Unlock()
				return env
			}
		}
		h.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no %q envelope received by server", event)
	return envelope{}
}

func (h *wsHarness) push(t *testing.T, env envelope) {
	t.Helper()
	if err := h.lastConn(t).WriteJSON(env); err != nil {
		t.Fatalf("server push: %v", err)
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestDialerAddressesRoomTopic(t *testing.T) {
	h := newWSHarness(t)
	dial := NewDialer(h.wsURL())

	ch, err := dial("party-42", "me")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	h.lastConn(t)
	h.mu.Lock()
	req := h.requests[0]
	h.mu.Unlock()

	if req.URL.Path != "/rooms/party-42" {
		t.Errorf("path = %q, want /rooms/party-42", req.URL.Path)
	}
	if got := req.URL.Query().Get("peer"); got != "me" {
		t.Errorf("peer query = %q, want me", got)
	}
}

func TestChannelSendAndReceive(t *testing.T) {
	h := newWSHarness(t)
	dial := NewDialer(h.wsURL())
	ch, err := dial("party-42", "me")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	var mu sync.Mutex
	var got []core.SignalMessage
	if err := ch.Subscribe(func(msg core.SignalMessage) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := ch.Send(core.NewOffer("me", "v=0 local")); err != nil {
		t.Fatalf("send: %v", err)
	}
	env := h.received(t, eventSignal)
	if env.Topic != "party-42" || env.From != "me" {
		t.Errorf("envelope = %+v", env)
	}

	h.push(t, envelope{
		Topic:   "party-42",
		Event:   eventSignal,
		From:    "them",
		Payload: mustJSON(t, encodeSignal(core.NewAnswer("them", "me", "v=0 remote"))),
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("remote signal never delivered")
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	msg := got[0]
	mu.Unlock()
	if msg.Kind != core.SignalAnswer || msg.From != "them" || msg.SDP != "v=0 remote" {
		t.Errorf("delivered = %+v", msg)
	}
}

func TestChannelFiltersOwnEcho(t *testing.T) {
	h := newWSHarness(t)
	dial := NewDialer(h.wsURL())
	ch, err := dial("party-42", "me")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	var mu sync.Mutex
	delivered := 0
	if err := ch.Subscribe(func(core.SignalMessage) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	h.push(t, envelope{
		Topic:   "party-42",
		Event:   eventSignal,
		From:    "me",
		Payload: mustJSON(t, encodeSignal(core.NewOffer("me", "v=0 echo"))),
	})
	h.push(t, envelope{
		Topic:   "party-42",
		Event:   eventSignal,
		From:    "them",
		Payload: mustJSON(t, encodeSignal(core.NewOffer("them", "v=0 real"))),
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := delivered
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("real message never delivered")
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if delivered != 1 {
		t.Errorf("delivered %d messages, want 1 (echo must be dropped)", delivered)
	}
}

func TestChannelPresenceFlow(t *testing.T) {
	h := newWSHarness(t)
	dial := NewDialer(h.wsURL())
	ch, err := dial("party-42", "me")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ch.Close()

	var mu sync.Mutex
	var rosters [][]domain.PresenceEntry
	err = ch.Presence(func(entries []domain.PresenceEntry) {
		mu.Lock()
		rosters = append(rosters, entries)
		mu.Unlock()
	}, map[string]any{domain.MetaName: "Tester", domain.MetaSpeaking: false})
	if err != nil {
		t.Fatalf("presence: %v", err)
	}

	track := h.received(t, eventTrack)
	var tp trackPayload
	if err := json.Unmarshal(track.Payload, &tp); err != nil {
		t.Fatalf("track payload: %v", err)
	}
	if tp.Meta[domain.MetaName] != "Tester" {
		t.Errorf("track meta = %+v", tp.Meta)
	}

	h.push(t, envelope{
		Topic: "party-42",
		Event: eventPresenceState,
		Payload: mustJSON(t, map[string]presenceMeta{
			"me":   {Meta: map[string]any{domain.MetaName: "Tester"}, JoinedAtMs: 100},
			"them": {Meta: map[string]any{domain.MetaName: "Other", domain.MetaSpeaking: true}, JoinedAtMs: 200},
		}),
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(rosters)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("roster never synced")
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	roster := rosters[0]
	mu.Unlock()
	if len(roster) != 2 || roster[0].ID != "me" || roster[1].ID != "them" {
		t.Fatalf("roster = %+v", roster)
	}
	if !roster[1].Speaking() {
		t.Error("remote speaking flag lost")
	}

	if err := ch.UpdatePresence(map[string]any{domain.MetaSpeaking: true}); err != nil {
		t.Fatalf("update presence: %v", err)
	}
	update := h.received(t, eventUpdate)
	var up trackPayload
	if err := json.Unmarshal(update.Payload, &up); err != nil {
		t.Fatalf("update payload: %v", err)
	}
	if up.Meta[domain.MetaSpeaking] != true {
		t.Errorf("update meta = %+v", up.Meta)
	}
}

func TestChannelCloseIsIdempotentAndTerminal(t *testing.T) {
	h := newWSHarness(t)
	dial := NewDialer(h.wsURL())
	ch, err := dial("party-42", "me")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := ch.Send(core.NewOffer("me", "v=0")); !errors.Is(err, core.ErrChannelClosed) {
		t.Errorf("send after close = %v, want ErrChannelClosed", err)
	}
	if err := ch.Subscribe(func(core.SignalMessage) {}); !errors.Is(err, core.ErrChannelClosed) {
		t.Errorf("subscribe after close = %v, want ErrChannelClosed", err)
	}
}
