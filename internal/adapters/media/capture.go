package media

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone" // registers the microphone adapter
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/mediadevices/pkg/wave"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/partyline/voice/internal/core"
)

// CaptureConfig pins the input device and its format. A zero DeviceID
// lets the driver pick the default microphone.
type CaptureConfig struct {
	DeviceID   string
	SampleRate int
	Latency    time.Duration
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}
	if c.Latency == 0 {
		c.Latency = 20 * time.Millisecond
	}
	return c
}

// Capturer owns the microphone stream and the analysis tap feeding
// voice-activity detection. It implements core.CaptureSource.
type Capturer struct {
	cfg CaptureConfig

	mu      sync.Mutex
	stream  mediadevices.MediaStream
	track   mediadevices.Track
	onLevel func(float64)
	opened  bool
	closed  bool
}

func NewCapturer(cfg CaptureConfig) *Capturer {
	return &Capturer{cfg: cfg.withDefaults()}
}

// OnLevel sets the analysis callback. Must be called before Open.
func (c *Capturer) OnLevel(fn func(level float64)) {
	c.mu.Lock()
	c.onLevel = fn
	c.mu.Unlock()
}

// Open acquires the microphone and starts the level reader.
func (c *Capturer) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrSessionClosed
	}
	if c.opened {
		return nil
	}

	opusParams, err := opus.NewParams()
	if err != nil {
		return fmt.Errorf("%w: opus params: %v", core.ErrMediaAcquisition, err)
	}
	opusParams.Latency = opus.Latency20ms

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithAudioEncoders(&opusParams),
	)

	cfg := c.cfg
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(mt *mediadevices.MediaTrackConstraints) {
			if cfg.DeviceID != "" {
				mt.DeviceID = prop.String(cfg.DeviceID)
			}
			mt.SampleRate = prop.Int(cfg.SampleRate)
			mt.ChannelCount = prop.Int(1)
			mt.Latency = prop.Duration(cfg.Latency)
		},
		Codec: selector,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrMediaAcquisition, err)
	}

	tracks := stream.GetAudioTracks()
	if len(tracks) == 0 {
		for _, t := range stream.GetTracks() {
			_ = t.Close()
		}
		return fmt.Errorf("%w: stream has no audio track", core.ErrMediaAcquisition)
	}

	c.stream = stream
	c.track = tracks[0]
	c.opened = true

	if audioTrack, ok := c.track.(*mediadevices.AudioTrack); ok && c.onLevel != nil {
		go c.readLevels(audioTrack, c.onLevel)
	}

	log.Info().Str("module", "media").Str("device", cfg.DeviceID).Int("sample_rate", cfg.SampleRate).Msg("capture opened")
	return nil
}

// Track returns the local audio track for the peer connection.
func (c *Capturer) Track() webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.track
}

// Close stops capture and releases the device. Idempotent.
func (c *Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.opened = false
	if c.stream != nil {
		for _, t := range c.stream.GetTracks() {
			if err := t.Close(); err != nil {
				log.Error().Err(err).Str("module", "media").Msg("track close")
			}
		}
		c.stream = nil
	}
	c.track = nil
	log.Info().Str("module", "media").Msg("capture closed")
	return nil
}

// readLevels drains PCM chunks from the analysis tap and reports one
// RMS level per chunk. Exits when the track is closed and its reader
// errors out.
func (c *Capturer) readLevels(track *mediadevices.AudioTrack, onLevel func(float64)) {
	reader := track.NewReader(false)
	for {
		chunk, release, err := reader.Read()
		if err != nil {
			log.Debug().Err(err).Str("module", "media").Msg("level reader done")
			return
		}
		level := ChunkRMS(chunk)
		release()
		onLevel(level)
	}
}

// ChunkRMS computes the normalized root-mean-square level of one PCM
// chunk in [0,1]. Unsupported sample formats report silence.
func ChunkRMS(chunk wave.Audio) float64 {
	switch w := chunk.(type) {
	case *wave.Int16Interleaved:
		if len(w.Data) == 0 {
			return 0
		}
		var sum float64
		for _, s := range w.Data {
			f := float64(s) / 32768
			sum += f * f
		}
		return math.Sqrt(sum / float64(len(w.Data)))
	case *wave.Float32Interleaved:
		if len(w.Data) == 0 {
			return 0
		}
		var sum float64
		for _, s := range w.Data {
			f := float64(s)
			sum += f * f
		}
		return math.Sqrt(sum / float64(len(w.Data)))
	default:
		return 0
	}
}
