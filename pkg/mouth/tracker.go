// Package mouth converts speech audio amplitude into a smoothed mouth-opening
// percentage and a viseme category, similar to VR/game character lip sync.
package mouth

import (
	"math"
	"sync"
)

// Config holds the tunable parameters of the envelope tracker.
type Config struct {
	// SampleRate is the PCM sample rate of incoming chunks (Hz).
	SampleRate int

	// SmoothingWindow is how many chunk amplitudes are averaged.
	SmoothingWindow int

	// MinThreshold is the normalized amplitude below which the mouth
	// targets fully closed.
	MinThreshold float64

	// MaxThreshold is the normalized amplitude mapped to fully open.
	MaxThreshold float64

	// CloseSpeed is the fraction of the gap closed per chunk when the
	// target is below the current opening. Closing runs faster than
	// opening so the mouth shuts crisply between syllables.
	CloseSpeed float64

	// OpenSpeed is the fraction of the gap covered per chunk when opening.
	OpenSpeed float64
}

// DefaultConfig returns the parameters tuned on the physical head:
// a short window for fast response, a low floor so the mouth closes
// between syllables, and a compressed ceiling for more dynamic range.
func DefaultConfig() Config {
	return Config{
		SampleRate:      24000,
		SmoothingWindow: 3,
		MinThreshold:    0.015,
		MaxThreshold:    0.25,
		CloseSpeed:      0.7,
		OpenSpeed:       0.4,
	}
}

// openingCurve is the exponent applied to the normalized amplitude.
// Sub-linear, so quiet speech still moves the mouth visibly.
const openingCurve = 0.8

// speakingFloor is the opening percentage above which we consider the
// head to be speaking.
const speakingFloor = 3.0

// silenceChunks is how many consecutive below-threshold chunks force the
// opening to zero, overriding the easing (prevents residual droop in pauses).
const silenceChunks = 2

// Tracker smooths instantaneous chunk amplitude into a perceptually stable
// mouth opening. One instance per speech session; Reset between sessions.
type Tracker struct {
	cfg Config

	mu       sync.Mutex
	window   []float64 // ring of the last SmoothingWindow amplitudes
	windowAt int
	windowN  int

	current  float64
	target   float64
	silence  int
	speaking bool
}

// New creates a tracker with the given configuration.
func New(cfg Config) *Tracker {
	if cfg.SmoothingWindow < 1 {
		cfg.SmoothingWindow = 1
	}
	return &Tracker{
		cfg:    cfg,
		window: make([]float64, cfg.SmoothingWindow),
	}
}

// Process consumes one PCM16 mono chunk and returns the new mouth opening
// in [0,100].
func (t *Tracker) Process(samples []int16) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.process(samples)
}

// ProcessBytes consumes a raw little-endian PCM16 buffer.
func (t *Tracker) ProcessBytes(data []byte) float64 {
	return t.Process(DecodePCM16(data))
}

func (t *Tracker) process(samples []int16) float64 {
	smoothed := t.pushAmplitude(rmsNormalized(samples))

	if smoothed < t.cfg.MinThreshold {
		t.target = 0
		t.silence++
		t.speaking = false
	} else {
		// Normalize into the configured band and apply the power curve.
		normalized := (smoothed - t.cfg.MinThreshold) / (t.cfg.MaxThreshold - t.cfg.MinThreshold)
		normalized = clamp(normalized, 0, 1)
		t.target = math.Pow(normalized, openingCurve) * 100

		t.silence = 0
		t.speaking = t.target > speakingFloor
	}

	// Asymmetric easing: closing covers CloseSpeed of the gap per chunk,
	// opening covers OpenSpeed. Never overshoots the target.
	if t.target < t.current {
		step := (t.current - t.target) * t.cfg.CloseSpeed
		t.current = math.Max(t.target, t.current-step)
	} else {
		step := (t.target - t.current) * t.cfg.OpenSpeed
		t.current = math.Min(t.target, t.current+step)
	}

	if t.silence > silenceChunks {
		t.current = 0
	}

	return t.current
}

// pushAmplitude adds one amplitude to the sliding window and returns the
// window mean.
func (t *Tracker) pushAmplitude(a float64) float64 {
	t.window[t.windowAt] = a
	t.windowAt = (t.windowAt + 1) % len(t.window)
	if t.windowN < len(t.window) {
		t.windowN++
	}

	var sum float64
	for i := 0; i < t.windowN; i++ {
		sum += t.window[i]
	}
	return sum / float64(t.windowN)
}

// Opening returns the current smoothed opening percentage.
func (t *Tracker) Opening() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Speaking reports whether the last chunk put the mouth above the
// speaking floor.
func (t *Tracker) Speaking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.speaking
}

// Reset clears all state. Call when a speech session ends so stale easing
// does not carry into the next utterance.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.window {
		t.window[i] = 0
	}
	t.windowAt = 0
	t.windowN = 0
	t.current = 0
	t.target = 0
	t.silence = 0
	t.speaking = false
}

// rmsNormalized computes root-mean-square amplitude of a PCM16 chunk,
// normalized by the maximum 16-bit magnitude into [0,1].
func rmsNormalized(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum/float64(len(samples))) / 32768.0
}

// DecodePCM16 converts a little-endian PCM16 byte buffer into samples.
// A trailing odd byte is ignored.
func DecodePCM16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
