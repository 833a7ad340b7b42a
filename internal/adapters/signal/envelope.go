package signal

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/partyline/voice/internal/core"
	"github.com/partyline/voice/internal/domain"
)

// Envelope events on the room topic. The backend broadcasts "signal"
// payloads verbatim to all other subscribers and pushes the full
// "presence_state" after every roster change.
const (
	eventSignal        = "signal"
	eventPresenceState = "presence_state"
	eventTrack         = "track"
	eventUpdate        = "update"
)

type envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type signalPayload struct {
	Type          string  `json:"type"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type presenceMeta struct {
	Meta       map[string]any `json:"meta"`
	JoinedAtMs uint64         `json:"joined_at_ms"`
}

type trackPayload struct {
	Meta map[string]any `json:"meta"`
}

func encodeSignal(msg core.SignalMessage) signalPayload {
	p := signalPayload{
		Type: msg.Kind.String(),
		From: string(msg.From),
		To:   string(msg.To),
	}
	switch msg.Kind {
	case core.SignalOffer, core.SignalAnswer:
		p.SDP = msg.SDP
	case core.SignalCandidate:
		p.Candidate = msg.Candidate.Candidate
		p.SDPMid = msg.Candidate.SDPMid
		p.SDPMLineIndex = msg.Candidate.SDPMLineIndex
	}
	return p
}

func decodeSignal(data []byte) (core.SignalMessage, error) {
	var p signalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return core.SignalMessage{}, fmt.Errorf("bad signal payload: %w", err)
	}

	msg := core.SignalMessage{
		From: domain.PeerID(p.From),
		To:   domain.PeerID(p.To),
	}
	switch p.Type {
	case "offer":
		msg.Kind = core.SignalOffer
		msg.SDP = p.SDP
	case "answer":
		msg.Kind = core.SignalAnswer
		msg.SDP = p.SDP
	case "candidate":
		msg.Kind = core.SignalCandidate
		msg.Candidate = webrtc.ICECandidateInit{
			Candidate:     p.Candidate,
			SDPMid:        p.SDPMid,
			SDPMLineIndex: p.SDPMLineIndex,
		}
	default:
		return core.SignalMessage{}, fmt.Errorf("unknown signal type %q", p.Type)
	}
	return msg, nil
}
