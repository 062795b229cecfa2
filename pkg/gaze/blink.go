package gaze

import (
	"math/rand"
	"sync"
	"time"
)

// Blink timing defaults. With a 30 Hz tracking loop, a 4% per-tick draw once
// the interval gate opens adds a mean of ~0.8s on top of the 5s interval, so
// the steady-state mean inter-blink interval is about 5.8s.
const (
	DefaultBlinkInterval    = 5 * time.Second
	DefaultBlinkProbability = 0.04

	// BlinkDwell is how long the eyelids hold closed before reopening.
	BlinkDwell = 150 * time.Millisecond
)

// SchedulerConfig holds the blink timing parameters.
type SchedulerConfig struct {
	// Interval is the minimum time between blinks.
	Interval time.Duration

	// Probability is the per-tick trigger chance once Interval has elapsed.
	Probability float64

	// Rand supplies the trigger draw. Nil uses the global source.
	Rand *rand.Rand
}

// DefaultSchedulerConfig returns the physical-rig blink timing.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:    DefaultBlinkInterval,
		Probability: DefaultBlinkProbability,
	}
}

// Scheduler decides when the eyelids should blink. It has two states, open
// and blinking; the transition back to open is driven by the caller finishing
// the dwell (see Tick's contract). Safe for use from a single tracking loop
// plus Force calls from other goroutines.
type Scheduler struct {
	cfg SchedulerConfig

	mu        sync.Mutex
	lastBlink time.Time
	forced    bool
	blinking  bool
}

// NewScheduler creates a blink scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultBlinkInterval
	}
	if cfg.Probability <= 0 {
		cfg.Probability = DefaultBlinkProbability
	}
	return &Scheduler{cfg: cfg, lastBlink: time.Now()}
}

// Force requests a blink on the next tick regardless of interval and
// probability gates.
func (s *Scheduler) Force() {
	s.mu.Lock()
	s.forced = true
	s.mu.Unlock()
}

// Tick evaluates the state machine at the given instant and returns true
// when a blink should start. The caller performs the closed-dwell-open
// sequence and then calls Done to mark the blink finished.
func (s *Scheduler) Tick(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blinking {
		return false
	}

	if s.forced {
		s.forced = false
		s.blinking = true
		return true
	}

	if now.Sub(s.lastBlink) <= s.cfg.Interval {
		return false
	}
	if s.draw() >= s.cfg.Probability {
		return false
	}

	s.blinking = true
	return true
}

// Done records the end of a blink and re-arms the interval gate.
func (s *Scheduler) Done(now time.Time) {
	s.mu.Lock()
	s.blinking = false
	s.lastBlink = now
	s.mu.Unlock()
}

// Blinking reports whether a blink is in progress.
func (s *Scheduler) Blinking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blinking
}

func (s *Scheduler) draw() float64 {
	if s.cfg.Rand != nil {
		return s.cfg.Rand.Float64()
	}
	return rand.Float64()
}
