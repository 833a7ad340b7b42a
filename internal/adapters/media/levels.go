package media

import "sync"

// DefaultSpeakingThreshold is the RMS level above which the local
// signal counts as speech. Tuned for a normalized [0,1] scale.
const DefaultSpeakingThreshold = 0.04

// SpeakingDetector turns a stream of RMS levels into a boolean
// speaking state. Debounce comes from the capture chunk cadence
// itself; there is no explicit timer.
type SpeakingDetector struct {
	mu        sync.Mutex
	threshold float64
	speaking  bool
	level     float64
	onChange  func(speaking bool)
}

func NewSpeakingDetector(threshold float64, onChange func(bool)) *SpeakingDetector {
	if threshold <= 0 {
		threshold = DefaultSpeakingThreshold
	}
	return &SpeakingDetector{threshold: threshold, onChange: onChange}
}

// Ingest feeds one level sample. onChange fires only on toggles.
func (d *SpeakingDetector) Ingest(level float64) {
	d.mu.Lock()
	d.level = level
	speaking := level >= d.threshold
	toggled := speaking != d.speaking
	d.speaking = speaking
	fn := d.onChange
	d.mu.Unlock()

	if toggled && fn != nil {
		fn(speaking)
	}
}

// Speaking reports the current state.
func (d *SpeakingDetector) Speaking() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.speaking
}

// Level reports the most recent RMS sample.
func (d *SpeakingDetector) Level() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}
