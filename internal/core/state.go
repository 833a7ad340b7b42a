package core

// ConnectionState is the explicit lifecycle of one voice session.
//
//	Idle → SignalingSubscribed → Offering/Answering → Connected
//	     → {Disconnected, Failed} → Reconnecting → Connected | Closed
//
// Closed is terminal; all resources are released.
type ConnectionState int32

const (
	StateIdle ConnectionState = iota
	StateSignalingSubscribed
	StateOffering
	StateAnswering
	StateConnected
	StateDisconnected
	StateFailed
	StateReconnecting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSignalingSubscribed:
		return "signaling_subscribed"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s ConnectionState) Terminal() bool { return s == StateClosed }

// Live reports whether media may currently be flowing.
func (s ConnectionState) Live() bool { return s == StateConnected }
