package core

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/partyline/voice/internal/domain"
)

// SignalKind tags the three message types of the negotiation protocol.
type SignalKind int

const (
	SignalOffer SignalKind = iota
	SignalAnswer
	SignalCandidate
)

func (k SignalKind) String() string {
	switch k {
	case SignalOffer:
		return "offer"
	case SignalAnswer:
		return "answer"
	case SignalCandidate:
		return "candidate"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// SignalMessage is the tagged union carried over a room topic. SDP is
// set for offers and answers, Candidate for candidates; the dispatch
// site switches exhaustively on Kind and never inspects raw payloads.
type SignalMessage struct {
	Kind      SignalKind
	From      domain.PeerID
	To        domain.PeerID // a peer id or domain.Broadcast
	SDP       string
	Candidate webrtc.ICECandidateInit
}

// AddressedTo reports whether the message should be handled by self.
// Self-originated messages are ignored regardless of address, which
// suppresses the echo of our own broadcast offers.
func (m SignalMessage) AddressedTo(self domain.PeerID) bool {
	if m.From == self {
		return false
	}
	return m.To == domain.Broadcast || m.To == self
}

// NewOffer builds a broadcast offer from self.
func NewOffer(from domain.PeerID, sdp string) SignalMessage {
	return SignalMessage{Kind: SignalOffer, From: from, To: domain.Broadcast, SDP: sdp}
}

// NewAnswer builds an answer addressed to the offerer.
func NewAnswer(from, to domain.PeerID, sdp string) SignalMessage {
	return SignalMessage{Kind: SignalAnswer, From: from, To: to, SDP: sdp}
}

// NewCandidate builds a broadcast candidate from self.
func NewCandidate(from domain.PeerID, ci webrtc.ICECandidateInit) SignalMessage {
	return SignalMessage{Kind: SignalCandidate, From: from, To: domain.Broadcast, Candidate: ci}
}
