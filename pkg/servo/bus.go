// Package servo arbitrates all actuator writes. The Arbiter owns the
// authoritative in-memory position table shared by the control loops, clamps
// and deadband-filters angles, and forwards accepted writes to a Bus, the
// hardware driver boundary. When the hardware vanishes, the arbiter degrades
// to a table-only simulation instead of crashing.
package servo

import (
	"strings"
)

// WriteStatus classifies the outcome of a bus write so callers can branch
// on kind instead of string-matching error text.
type WriteStatus int

const (
	// WriteOK means the command reached the bus (or the simulation table).
	WriteOK WriteStatus = iota

	// WriteHardwareUnavailable means the device is absent or disconnected.
	WriteHardwareUnavailable

	// WriteInvalidChannel means the channel is not part of the rig.
	WriteInvalidChannel
)

// String returns a human-readable status name.
func (s WriteStatus) String() string {
	switch s {
	case WriteOK:
		return "ok"
	case WriteHardwareUnavailable:
		return "hardware unavailable"
	case WriteInvalidChannel:
		return "invalid channel"
	default:
		return "unknown"
	}
}

// WriteResult is the typed outcome of a write request.
type WriteResult struct {
	Status WriteStatus
	Err    error
}

// OK reports whether the write was accepted.
func (r WriteResult) OK() bool {
	return r.Status == WriteOK
}

// Bus is the servo hardware driver boundary: it accepts a channel number and
// an angle in degrees and performs the electrical write. Implementations are
// external to this core; SimBus stands in when no hardware is present.
type Bus interface {
	// Write commands one channel to an angle. Fire-and-forget: it must
	// not block beyond the bus transaction itself.
	Write(channel int, angle float64) WriteResult

	// Available reports whether the bus believes hardware is attached.
	Available() bool

	// Close releases the bus.
	Close() error
}

// IsDisconnect reports whether an error message looks like a runtime device
// disconnection (USB adapter unplugged mid-session). Such failures flip the
// arbiter into simulation mode for the rest of the process.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such device") ||
		strings.Contains(msg, "disconnected") ||
		strings.Contains(msg, "device not configured")
}
