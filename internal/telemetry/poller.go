package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/partyline/voice/internal/domain"
)

// Sink receives each decoded snapshot. Wired to the coordinator's
// OnTelemetry in production.
type Sink func(snap domain.TelemetrySnapshot)

// Poller turns a pull-based game telemetry endpoint into the push
// stream the rest of the engine expects.
type Poller struct {
	url      string
	interval time.Duration
	client   *http.Client
	sink     Sink
}

func NewPoller(url string, interval time.Duration, sink Sink) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: interval},
		sink:     sink,
	}
}

// Run polls until ctx is cancelled. Fetch failures are logged and
// skipped; the game may simply not be running yet.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Info().Str("module", "telemetry").Str("url", p.url).Dur("interval", p.interval).Msg("poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "telemetry").Msg("poller stopped")
			return
		case <-ticker.C:
			snap, err := p.fetch(ctx)
			if err != nil {
				log.Debug().Err(err).Str("module", "telemetry").Msg("fetch failed")
				continue
			}
			p.sink(snap)
		}
	}
}

func (p *Poller) fetch(ctx context.Context) (domain.TelemetrySnapshot, error) {
	var snap domain.TelemetrySnapshot

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return snap, fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return snap, fmt.Errorf("poll telemetry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("poll telemetry: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return snap, fmt.Errorf("decode telemetry: %w", err)
	}
	return snap, nil
}
