// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxPeerIDLen   = 36
	MaxPeerNameLen = 36
)

var (
	ErrPeerNameTooLong = errors.New("peer name too long")
	ErrPeerNameEmpty   = errors.New("peer name empty")
)

type PeerID string

// Broadcast is the wildcard address for signaling messages meant
// for every peer on the room topic.
const Broadcast PeerID = "*"

type Peer struct {
	ID   PeerID `json:"id"`
	Name string `json:"name"`
}

// NewPeer is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewPeer(name string) (*Peer, error) {
	if len(name) == 0 {
		return nil, ErrPeerNameEmpty
	}
	if len(name) > MaxPeerNameLen {
		return nil, ErrPeerNameTooLong
	}
	id := PeerID(uuid.NewString())
	return &Peer{ID: id, Name: name}, nil
}

func (p *Peer) SetName(name string) error {
	if len(name) == 0 {
		return ErrPeerNameEmpty
	}
	if len(name) > MaxPeerNameLen {
		return ErrPeerNameTooLong
	}
	p.Name = name
	return nil
}
