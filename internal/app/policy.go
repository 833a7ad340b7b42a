package app

import (
	"slices"

	"github.com/partyline/voice/internal/domain"
)

type JoinDecision int

const (
	JoinAllowed JoinDecision = iota
	JoinBlockedPhase
	JoinBlockedMembers
)

func (d JoinDecision) String() string {
	switch d {
	case JoinAllowed:
		return "allowed"
	case JoinBlockedPhase:
		return "blocked_phase"
	case JoinBlockedMembers:
		return "blocked_members"
	default:
		return "unknown"
	}
}

// JoinPolicy decides whether a telemetry snapshot warrants an
// automatic room.
type JoinPolicy interface {
	Evaluate(snap domain.TelemetrySnapshot) JoinDecision
}

// PhasePolicy allows automatic rooms only during listed game phases
// and never for solo sessions.
type PhasePolicy struct {
	Phases     []string
	MinMembers int
}

func (p PhasePolicy) Evaluate(snap domain.TelemetrySnapshot) JoinDecision {
	if len(p.Phases) > 0 && !slices.Contains(p.Phases, snap.Phase) {
		return JoinBlockedPhase
	}
	min := p.MinMembers
	if min < 2 {
		min = 2
	}
	if len(snap.Members) < min {
		return JoinBlockedMembers
	}
	return JoinAllowed
}
