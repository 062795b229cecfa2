package servo

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/elazer/go-sunny/internal/log"
	"github.com/elazer/go-sunny/pkg/rig"
)

// JawChannel is the bus channel of the jaw servo. The jaw sits outside the
// rig's own channel numbering, wired after the last eye channel.
const JawChannel = 8

// JawAxis is the position-table name of the jaw.
const JawAxis = "jaw"

// DefaultMinChange is the jaw deadband in degrees: angle changes at or below
// it are suppressed so noise-sized corrections don't buzz the motor.
const DefaultMinChange = 2.0

// Position is one row of the actuator position table.
type Position struct {
	Angle     float64   `json:"angle"`
	WrittenAt time.Time `json:"written_at"`
}

// Observer receives accepted writes, best-effort. It must not block: the
// arbiter calls it inline on the writing loop's goroutine.
type Observer func(axis string, angle float64)

// Config holds the arbiter's tunable parameters.
type Config struct {
	// MinChange is the jaw deadband in degrees.
	MinChange float64

	// JawOpenAngle and JawCloseAngle calibrate the jaw travel: opening
	// 0% maps to JawCloseAngle, 100% to JawOpenAngle.
	JawOpenAngle  float64
	JawCloseAngle float64
}

// DefaultArbiterConfig returns the jaw calibration defaults.
func DefaultArbiterConfig() Config {
	return Config{
		MinChange:     DefaultMinChange,
		JawOpenAngle:  100,
		JawCloseAngle: 0,
	}
}

// Arbiter owns the shared actuator position table. All loop writes flow
// through Request/RequestJawOpening; the table is the only shared mutable
// resource between the control loops and is linearized per call under one
// lock. Channels are otherwise independent; there is no cross-channel
// ordering.
type Arbiter struct {
	bus Bus
	r   rig.Rig

	mu        sync.Mutex
	cfg       Config
	positions map[string]Position
	jawPct    float64 // estimated jaw opening, never read back from hardware

	// simulated flips once on a disconnection-shaped failure; afterwards
	// every write is table-only until restart.
	simulated atomic.Bool

	observer Observer
	now      func() time.Time
}

// NewArbiter creates the arbiter with every rig channel at its default angle
// and the jaw closed. If the bus reports no hardware at startup the arbiter
// begins in simulation mode, reported once.
func NewArbiter(bus Bus, r rig.Rig, cfg Config) *Arbiter {
	a := &Arbiter{
		bus:       bus,
		r:         r,
		cfg:       cfg,
		positions: make(map[string]Position, len(r.Axes)+1),
		now:       time.Now,
	}

	if bus == nil || !bus.Available() {
		a.simulated.Store(true)
		log.Warn("servo hardware not detected, running in simulation mode")
	}

	start := a.now()
	for name, ax := range r.Axes {
		a.positions[name] = Position{Angle: ax.Default, WrittenAt: start}
	}
	a.positions[JawAxis] = Position{Angle: cfg.JawCloseAngle, WrittenAt: start}

	return a
}

// SetObserver registers the visualization mirror for accepted writes.
func (a *Arbiter) SetObserver(obs Observer) {
	a.mu.Lock()
	a.observer = obs
	a.mu.Unlock()
}

// SetConfig updates the jaw calibration and deadband at runtime.
func (a *Arbiter) SetConfig(cfg Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

// Simulated reports whether writes are table-only.
func (a *Arbiter) Simulated() bool {
	return a.simulated.Load()
}

// Request commands a named rig axis to an angle. The angle is clamped to the
// axis range before anything else. Gaze and eyelid channels are not
// deadbanded: precision tracking matters more than buzz there.
func (a *Arbiter) Request(axis string, angle float64) WriteResult {
	ax, ok := a.r.Axis(axis)
	if !ok {
		return WriteResult{Status: WriteInvalidChannel}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.write(axis, ax.Channel, ax.Clamp(angle))
}

// RequestJawOpening commands the jaw by opening percentage [0,100]. The
// percentage maps linearly between the calibrated close and open angles.
// Changes at or below MinChange degrees since the last accepted jaw write
// are suppressed (deadband), returning WriteOK without touching hardware.
func (a *Arbiter) RequestJawOpening(percent float64) WriteResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	percent = clamp(percent, 0, 100)
	target := a.jawAngleFor(percent)
	current := a.jawAngleFor(a.jawPct)

	if abs(target-current) <= a.cfg.MinChange {
		return WriteResult{Status: WriteOK}
	}

	res := a.write(JawAxis, JawChannel, clamp(target, 0, 180))
	if res.OK() {
		a.jawPct = percent
	}
	return res
}

// ForceJaw commands the jaw to an opening percentage bypassing the deadband.
// Used by the speech-end ramp and the stop sequence, where every step is an
// intentional, complete state change.
func (a *Arbiter) ForceJaw(percent float64) WriteResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	percent = clamp(percent, 0, 100)
	res := a.write(JawAxis, JawChannel, clamp(a.jawAngleFor(percent), 0, 180))
	if res.OK() {
		a.jawPct = percent
	}
	return res
}

// RequestRaw commands a bare channel number clamped to the full servo range.
// Calibration commands (test/sweep) use it to address channels directly.
func (a *Arbiter) RequestRaw(channel int, angle float64) WriteResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	axis := a.axisForChannel(channel)
	if axis == "" {
		return WriteResult{Status: WriteInvalidChannel}
	}
	return a.write(axis, channel, clamp(angle, 0, 180))
}

// JawOpening returns the estimated jaw opening percentage. This is a
// write-side estimate, not a servo read-back.
func (a *Arbiter) JawOpening() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.jawPct
}

// Snapshot returns a copy of the position table for observability.
func (a *Arbiter) Snapshot() map[string]Position {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]Position, len(a.positions))
	for k, v := range a.positions {
		out[k] = v
	}
	return out
}

// Rig returns the rig the arbiter drives.
func (a *Arbiter) Rig() rig.Rig {
	return a.r
}

// write performs the bus write and table update. Callers hold a.mu.
func (a *Arbiter) write(axis string, channel int, angle float64) WriteResult {
	if !a.simulated.Load() {
		res := a.bus.Write(channel, angle)
		switch {
		case res.Status == WriteHardwareUnavailable || IsDisconnect(res.Err):
			// Degrade for the rest of the process; the table keeps
			// tracking so the visualizer stays alive.
			a.simulated.Store(true)
			log.Warn("servo bus disconnected, switching to simulation mode", "err", res.Err)
		case !res.OK():
			return res
		}
	}

	a.positions[axis] = Position{Angle: angle, WrittenAt: a.now()}

	if a.observer != nil {
		a.observer(axis, angle)
	}
	return WriteResult{Status: WriteOK}
}

func (a *Arbiter) jawAngleFor(percent float64) float64 {
	return a.cfg.JawCloseAngle + (a.cfg.JawOpenAngle-a.cfg.JawCloseAngle)*(percent/100.0)
}

func (a *Arbiter) axisForChannel(channel int) string {
	if channel == JawChannel {
		return JawAxis
	}
	for name, ax := range a.r.Axes {
		if ax.Channel == channel {
			return name
		}
	}
	return ""
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

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
