package core

import "errors"

var (
	// ErrMediaAcquisition means the local capture device could not be
	// opened (missing, busy, or permission denied). Never retried
	// automatically; the caller decides.
	ErrMediaAcquisition = errors.New("media acquisition failed")

	// ErrNegotiation means the offer/answer exchange could not
	// complete for the current attempt.
	ErrNegotiation = errors.New("negotiation failed")

	// ErrChannelClosed is returned by signaling operations after the
	// channel has been closed.
	ErrChannelClosed = errors.New("signal channel closed")

	// ErrReconnectionExhausted is terminal: the retry cap was reached
	// and no further automatic recovery happens.
	ErrReconnectionExhausted = errors.New("reconnection attempts exhausted")

	// ErrSessionClosed guards entry points of a session that already
	// ran its final cleanup.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionActive rejects starting a session for a room whose
	// previous session has not finished cleanup.
	ErrSessionActive = errors.New("session already active for room")

	// ErrAloneInRoom rejects joining a room with fewer than two
	// members unless the caller forces it.
	ErrAloneInRoom = errors.New("refusing to join room alone")
)
