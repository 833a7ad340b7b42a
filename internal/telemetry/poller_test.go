package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/partyline/voice/internal/domain"
)

func TestPollerDeliversSnapshots(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"phase": "match",
			"members": [{"stable_id": "a", "name": "A"}, {"stable_id": "b", "name": "B"}],
			"lobby": {"party_id": "p1"}
		}`))
	}))
	defer server.Close()

	var mu sync.Mutex
	var got []domain.TelemetrySnapshot
	p := NewPoller(server.URL, 5*time.Millisecond, func(snap domain.TelemetrySnapshot) {
		mu.Lock()
		got = append(got, snap)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no snapshot delivered")
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	snap := got[0]
	mu.Unlock()
	if snap.Phase != "match" || snap.Lobby.PartyID != "p1" || len(snap.Members) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestPollerSkipsFailures(t *testing.T) {
	var mu sync.Mutex
	fail := true
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		failing := fail
		mu.Unlock()
		if failing {
			http.Error(w, "game not running", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"phase": "lobby", "members": [], "lobby": {}}`))
	}))
	defer server.Close()

	delivered := make(chan domain.TelemetrySnapshot, 1)
	p := NewPoller(server.URL, 5*time.Millisecond, func(snap domain.TelemetrySnapshot) {
		select {
		case delivered <- snap:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := hits
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("endpoint never polled twice")
		}
		time.Sleep(time.Millisecond)
	}
	select {
	case snap := <-delivered:
		t.Fatalf("failing endpoint delivered a snapshot: %+v", snap)
	default:
	}

	mu.Lock()
	fail = false
	mu.Unlock()
	select {
	case snap := <-delivered:
		if snap.Phase != "lobby" {
			t.Errorf("snapshot = %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recovery snapshot never delivered")
	}
}

func TestPollerStopsOnContextCancel(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		_, _ = w.Write([]byte(`{"phase": "x", "members": [], "lobby": {}}`))
	}))
	defer server.Close()

	p := NewPoller(server.URL, 5*time.Millisecond, func(domain.TelemetrySnapshot) {})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancel")
	}

	mu.Lock()
	after := hits
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	final := hits
	mu.Unlock()
	if final != after {
		t.Errorf("poller kept polling after stop: %d -> %d", after, final)
	}
}
