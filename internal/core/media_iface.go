package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaConnection abstracts one peer connection. Owned by exactly one
// session at a time; the session must Close() it before another one
// may exist for the same room+peer pair.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close stops all underlying transport resources. Idempotent.
	Close()
	IsClosed() bool
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// CreateAndSetOffer produces the local offer and installs it as the
	// local description.
	CreateAndSetOffer(ctx context.Context) (webrtc.SessionDescription, error)
	// ApplyOfferAndCreateAnswer installs a remote offer and produces
	// the local answer.
	ApplyOfferAndCreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// ApplyAnswer installs the remote answer on an outstanding offer.
	ApplyAnswer(webrtc.SessionDescription) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnStateChange sets a callback for transport connection state reports.
	OnStateChange(func(webrtc.PeerConnectionState))
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver))
	// AddLocalTrack attaches a local track to the underlying PeerConnection.
	AddLocalTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	// Stats pulls one raw transport metrics sample.
	Stats(ctx context.Context) (TransportMetrics, error)
}

// CaptureSource abstracts the local audio pipeline: device acquisition,
// the track fed into the peer connection, and the analysis tap that
// reports signal levels for voice-activity detection.
type CaptureSource interface {
	// Open acquires the device. Fails with ErrMediaAcquisition when the
	// device is missing, busy, or permission is denied.
	Open(ctx context.Context) error
	// Track returns the local audio track; valid after Open.
	Track() webrtc.TrackLocal
	// OnLevel sets the callback receiving normalized RMS levels in
	// [0,1] at the capture chunk cadence. Set before Open.
	OnLevel(func(level float64))
	// Close stops capture and releases the device. Idempotent.
	Close() error
}
