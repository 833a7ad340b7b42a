package core

import "fmt"

// Tier is the coarse connection-quality classification surfaced to the
// UI layer.
type Tier int

const (
	TierDisconnected Tier = iota
	TierPoor
	TierFair
	TierGood
	TierExcellent
)

func (t Tier) String() string {
	switch t {
	case TierDisconnected:
		return "disconnected"
	case TierPoor:
		return "poor"
	case TierFair:
		return "fair"
	case TierGood:
		return "good"
	case TierExcellent:
		return "excellent"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// TransportMetrics is one raw sample pulled from the transport layer.
type TransportMetrics struct {
	LatencyMs     float64
	JitterMs      float64
	PacketLossPct float64
	BitrateBps    float64
}

// ConnectionStats is the derived per-tick view: the raw sample plus its
// quality tier. Never stored authoritatively, recomputed each tick.
type ConnectionStats struct {
	LatencyMs     float64 `json:"latency_ms"`
	JitterMs      float64 `json:"jitter_ms"`
	PacketLossPct float64 `json:"packet_loss_pct"`
	BitrateBps    float64 `json:"bitrate_bps"`
	Quality       Tier    `json:"quality"`
}

// NewConnectionStats scores a sample and pairs it with its tier.
func NewConnectionStats(m TransportMetrics) ConnectionStats {
	return ConnectionStats{
		LatencyMs:     m.LatencyMs,
		JitterMs:      m.JitterMs,
		PacketLossPct: m.PacketLossPct,
		BitrateBps:    m.BitrateBps,
		Quality:       EvaluateQuality(m),
	}
}

// EvaluateQuality maps one metrics sample to a tier by accumulating a
// penalty score per metric. All-zero latency/jitter/loss means no
// sample exists yet and maps to disconnected rather than excellent.
func EvaluateQuality(m TransportMetrics) Tier {
	if m.LatencyMs == 0 && m.JitterMs == 0 && m.PacketLossPct == 0 {
		return TierDisconnected
	}

	score := 0
	switch {
	case m.LatencyMs > 250:
		score += 3
	case m.LatencyMs > 150:
		score += 2
	case m.LatencyMs > 80:
		score++
	}
	switch {
	case m.JitterMs > 50:
		score += 3
	case m.JitterMs > 30:
		score += 2
	case m.JitterMs > 15:
		score++
	}
	switch {
	case m.PacketLossPct > 5:
		score += 4
	case m.PacketLossPct > 2:
		score += 3
	case m.PacketLossPct > 1:
		score += 2
	case m.PacketLossPct > 0.5:
		score++
	}

	switch {
	case score == 0:
		return TierExcellent
	case score <= 2:
		return TierGood
	case score <= 5:
		return TierFair
	default:
		return TierPoor
	}
}
