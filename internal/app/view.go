package app

import (
	"github.com/partyline/voice/internal/core"
	"github.com/partyline/voice/internal/domain"
)

// PeerView is the read-only projection of one participant for the
// diagnostics API.
type PeerView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Self     bool    `json:"self"`
	Speaking bool    `json:"speaking"`
	Muted    bool    `json:"muted"`
	Volume   float64 `json:"volume"`
}

// CallView is the read-only projection of one active call.
type CallView struct {
	Room    string               `json:"room"`
	Kind    string               `json:"kind"`
	State   string               `json:"state"`
	CanJoin bool                 `json:"can_join"`
	Peers   []PeerView           `json:"peers"`
	Stats   core.ConnectionStats `json:"stats"`
}

// View is a point-in-time snapshot of both call lifecycles.
type View struct {
	Auto   *CallView `json:"auto,omitempty"`
	Manual *CallView `json:"manual,omitempty"`
}

// Snapshot projects the coordinator's state for inspection. Safe to
// call concurrently with call lifecycle changes.
func (c *Coordinator) Snapshot() View {
	c.mu.Lock()
	auto := c.auto
	manual := c.manual
	c.mu.Unlock()

	var v View
	if auto != nil {
		cv := c.callView(auto)
		v.Auto = &cv
	}
	if manual != nil {
		cv := c.callView(manual)
		v.Manual = &cv
	}
	return v
}

func (c *Coordinator) callView(cl *call) CallView {
	c.mu.Lock()
	peers := make([]domain.PresenceEntry, len(cl.peers))
	copy(peers, cl.peers)
	speaking := make(map[domain.PeerID]bool, len(cl.speaking))
	for id, on := range cl.speaking {
		speaking[id] = on
	}
	volumes := make(map[domain.PeerID]float64, len(cl.volumes))
	for id, g := range cl.volumes {
		volumes[id] = g
	}
	room := cl.room
	canJoin := cl.canJoin
	sess := cl.sess
	c.mu.Unlock()

	cv := CallView{
		Room:    string(room.ID),
		Kind:    room.Kind.String(),
		State:   sess.State().String(),
		CanJoin: canJoin,
		Stats:   sess.Stats(),
		Peers:   make([]PeerView, 0, len(peers)),
	}
	for _, e := range peers {
		pv := PeerView{
			ID:     string(e.ID),
			Name:   e.Name(),
			Self:   e.ID == c.self,
			Volume: 1.0,
		}
		if g, ok := volumes[e.ID]; ok {
			pv.Volume = g
		}
		if pv.Self {
			pv.Speaking = sess.Speaking()
			pv.Muted = sess.Muted()
		} else {
			pv.Speaking = speaking[e.ID]
			pv.Muted = e.Muted()
		}
		cv.Peers = append(cv.Peers, pv)
	}
	return cv
}
