package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ReconnectConfig bounds the retry policy of one session.
type ReconnectConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

func (c ReconnectConfig) withDefaults() ReconnectConfig {
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	return c
}

// Reconnector schedules bounded exponential-backoff retries. It is
// owned by exactly one session; Destroy makes it inert so a timer can
// never fire into a discarded session.
type Reconnector struct {
	cfg ReconnectConfig

	reconnect   func() error
	onConnected func()
	onExhausted func()

	mu        sync.Mutex
	attempts  int
	timer     *time.Timer
	destroyed bool
}

func NewReconnector(cfg ReconnectConfig, reconnect func() error, onConnected, onExhausted func()) *Reconnector {
	return &Reconnector{
		cfg:         cfg.withDefaults(),
		reconnect:   reconnect,
		onConnected: onConnected,
		onExhausted: onExhausted,
	}
}

// Schedule arms the retry timer at min(initial*2^(attempt-1), max).
// Calling it again before the timer fires replaces the pending timer,
// so retries never overlap.
func (r *Reconnector) Schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	delay := r.delayLocked()
	log.Info().Str("module", "session.reconnect").Int("attempt", r.attempts+1).Dur("delay", delay).Msg("retry scheduled")
	r.timer = time.AfterFunc(delay, r.fire)
}

func (r *Reconnector) delayLocked() time.Duration {
	delay := r.cfg.InitialDelay
	for i := 0; i < r.attempts; i++ {
		delay *= 2
		if delay >= r.cfg.MaxDelay {
			return r.cfg.MaxDelay
		}
	}
	if delay > r.cfg.MaxDelay {
		delay = r.cfg.MaxDelay
	}
	return delay
}

func (r *Reconnector) fire() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.attempts++
	attempt := r.attempts
	r.mu.Unlock()

	err := r.reconnect()
	if err == nil {
		r.mu.Lock()
		r.attempts = 0
		r.mu.Unlock()
		log.Info().Str("module", "session.reconnect").Int("attempt", attempt).Msg("reconnected")
		if r.onConnected != nil {
			r.onConnected()
		}
		return
	}

	log.Warn().Err(err).Str("module", "session.reconnect").Int("attempt", attempt).Msg("reconnect attempt failed")

	r.mu.Lock()
	exhausted := r.attempts >= r.cfg.MaxAttempts
	r.mu.Unlock()

	if exhausted {
		log.Error().Str("module", "session.reconnect").Int("attempts", attempt).Msg("reconnection exhausted")
		if r.onExhausted != nil {
			r.onExhausted()
		}
		return
	}
	r.Schedule()
}

// Cancel clears a pending timer without touching the attempt counter.
func (r *Reconnector) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Reset zeroes the attempt counter after an organic (non-retry)
// connection success.
func (r *Reconnector) Reset() {
	r.mu.Lock()
	r.attempts = 0
	r.mu.Unlock()
}

// Destroy is one-way: it clears any pending timer and prevents all
// further scheduling.
func (r *Reconnector) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Attempts reports the consecutive failed attempt count.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Pending reports whether a retry timer is currently armed.
func (r *Reconnector) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}
