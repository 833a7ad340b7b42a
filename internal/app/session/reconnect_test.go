package session

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func fastReconnect() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		MaxAttempts:  3,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func TestReconnectorStopsAtAttemptBound(t *testing.T) {
	var attempts atomic.Int32
	var exhausted atomic.Bool

	r := NewReconnector(fastReconnect(), func() error {
		attempts.Add(1)
		return errors.New("still down")
	}, nil, func() { exhausted.Store(true) })
	defer r.Destroy()

	r.Schedule()
	waitFor(t, exhausted.Load, "exhaustion callback never fired")

	// no fourth attempt after exhaustion
	time.Sleep(20 * time.Millisecond)
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want exactly 3", got)
	}
	if r.Pending() {
		t.Error("timer still armed after exhaustion")
	}
}

func TestReconnectorResetsOnSuccess(t *testing.T) {
	var connected atomic.Bool
	fail := atomic.Bool{}
	fail.Store(true)

	r := NewReconnector(fastReconnect(), func() error {
		if fail.Load() {
			return errors.New("still down")
		}
		return nil
	}, func() { connected.Store(true) }, nil)
	defer r.Destroy()

	r.Schedule()
	waitFor(t, func() bool { return r.Attempts() >= 1 }, "first attempt never ran")
	fail.Store(false)
	waitFor(t, connected.Load, "connected callback never fired")

	if got := r.Attempts(); got != 0 {
		t.Errorf("attempts = %d after success, want 0", got)
	}
}

func TestReconnectorScheduleReplacesPendingTimer(t *testing.T) {
	var attempts atomic.Int32
	cfg := ReconnectConfig{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		MaxAttempts:  5,
	}
	r := NewReconnector(cfg, func() error {
		attempts.Add(1)
		return nil
	}, nil, nil)
	defer r.Destroy()

	r.Schedule()
	r.Schedule()
	r.Schedule()
	waitFor(t, func() bool { return attempts.Load() >= 1 }, "attempt never ran")

	time.Sleep(100 * time.Millisecond)
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (re-schedules must coalesce)", got)
	}
}

func TestReconnectorCancelKeepsCounter(t *testing.T) {
	var attempts atomic.Int32
	r := NewReconnector(ReconnectConfig{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		MaxAttempts:  5,
	}, func() error {
		attempts.Add(1)
		return errors.New("still down")
	}, nil, nil)
	defer r.Destroy()

	r.mu.Lock()
	r.attempts = 2
	r.mu.Unlock()

	r.Schedule()
	r.Cancel()
	time.Sleep(120 * time.Millisecond)

	if got := attempts.Load(); got != 0 {
		t.Errorf("attempts ran after cancel: %d", got)
	}
	if got := r.Attempts(); got != 2 {
		t.Errorf("attempt counter = %d after cancel, want 2", got)
	}
	if r.Pending() {
		t.Error("timer still armed after cancel")
	}
}

func TestReconnectorDestroyIsTerminal(t *testing.T) {
	var attempts atomic.Int32
	r := NewReconnector(fastReconnect(), func() error {
		attempts.Add(1)
		return nil
	}, nil, nil)

	r.Destroy()
	r.Schedule()
	time.Sleep(20 * time.Millisecond)
	if got := attempts.Load(); got != 0 {
		t.Errorf("attempts = %d after destroy, want 0", got)
	}
}

func TestReconnectDelayGrowsAndCaps(t *testing.T) {
	r := NewReconnector(ReconnectConfig{
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		MaxAttempts:  10,
	}, func() error { return nil }, nil, nil)
	defer r.Destroy()

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
		{8, 5 * time.Second},
	}
	for _, tt := range tests {
		r.mu.Lock()
		r.attempts = tt.attempts
		got := r.delayLocked()
		r.mu.Unlock()
		if got != tt.want {
			t.Errorf("delay after %d attempts = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}
