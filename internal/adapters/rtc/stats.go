package rtc

import (
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/partyline/voice/internal/core"
)

// rawMetrics carries the byte counters alongside the sample so the
// bitrate can be derived from deltas between consecutive ticks.
type rawMetrics struct {
	core.TransportMetrics
	bytesSent     uint64
	bytesReceived uint64
}

func (m rawMetrics) totalBytes() uint64 { return m.bytesSent + m.bytesReceived }

// extractMetrics folds a pion stats report into one audio sample.
// Round-trip and fraction-lost come from the remote inbound stream,
// jitter from the local inbound stream; pion reports both in seconds.
func extractMetrics(report webrtc.StatsReport) rawMetrics {
	var m rawMetrics
	for _, s := range report {
		switch st := s.(type) {
		case webrtc.RemoteInboundRTPStreamStats:
			m.LatencyMs = st.RoundTripTime * 1000
			m.PacketLossPct = st.FractionLost * 100
		case webrtc.InboundRTPStreamStats:
			m.JitterMs = st.Jitter * 1000
			m.bytesReceived += st.BytesReceived
		case webrtc.OutboundRTPStreamStats:
			m.bytesSent += st.BytesSent
		}
	}
	return m
}

// bitrateSampler turns cumulative byte counters into a rate between
// consecutive samples. The first sample has no baseline and reports 0.
type bitrateSampler struct {
	lastBytes uint64
	lastAt    time.Time
}

func (b *bitrateSampler) sample(totalBytes uint64) float64 {
	now := time.Now()
	defer func() {
		b.lastBytes = totalBytes
		b.lastAt = now
	}()

	if b.lastAt.IsZero() || totalBytes < b.lastBytes {
		return 0
	}
	elapsed := now.Sub(b.lastAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(totalBytes-b.lastBytes) * 8 / elapsed
}
