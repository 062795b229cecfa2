// Package rig describes the physical actuator layouts the controller can
// drive. A rig is pure data: named axes mapped to servo channels with angle
// ranges, center positions, and (for eyelids) closed positions. All control
// logic is rig-agnostic and reads this data.
package rig

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownRig is returned by ByName when the requested rig does not exist.
// Callers still receive a usable default rig alongside it.
var ErrUnknownRig = errors.New("rig: unknown rig name")

// Axis describes a single servo axis within a rig.
type Axis struct {
	// Channel is the servo bus channel this axis is wired to.
	Channel int

	// Min and Max bound the legal angle range in degrees.
	Min, Max float64

	// Default is the centered/resting angle.
	Default float64

	// Closed is the eyelid-closed angle. Nil for non-eyelid axes.
	Closed *float64
}

// IsEyelid reports whether the axis participates in blinking.
func (a Axis) IsEyelid() bool {
	return a.Closed != nil
}

// Clamp restricts an angle to the axis range.
func (a Axis) Clamp(angle float64) float64 {
	if angle < a.Min {
		return a.Min
	}
	if angle > a.Max {
		return a.Max
	}
	return angle
}

// Midpoint returns the geometric center of the axis range.
func (a Axis) Midpoint() float64 {
	return (a.Min + a.Max) / 2
}

// Rig is a named actuator layout. Immutable once constructed; the control
// loops share one instance per session.
type Rig struct {
	// Key is the catalog selection name (e.g. "inmoov"). It is what gets
	// persisted and passed back to ByName.
	Key string

	// Name is the human-readable layout name (e.g. "InMoov Head").
	Name string

	// Axes maps axis names to their servo configuration.
	Axes map[string]Axis

	// RightEyeTrimX and RightEyeTrimY are degrees added to the right-eye
	// gaze axes before clamping, compensating mechanical misalignment
	// between the two eye assemblies.
	RightEyeTrimX float64
	RightEyeTrimY float64
}

// Axis looks up an axis by name.
func (r Rig) Axis(name string) (Axis, bool) {
	a, ok := r.Axes[name]
	return a, ok
}

// Channels returns the channel numbers used by the rig, sorted ascending.
func (r Rig) Channels() []int {
	chans := make([]int, 0, len(r.Axes))
	for _, a := range r.Axes {
		chans = append(chans, a.Channel)
	}
	sort.Ints(chans)
	return chans
}

// AxisNames returns the axis names in a stable order.
func (r Rig) AxisNames() []string {
	names := make([]string, 0, len(r.Axes))
	for name := range r.Axes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EyelidAxes returns the names of all axes that have a closed position.
func (r Rig) EyelidAxes() []string {
	var names []string
	for _, name := range r.AxisNames() {
		if r.Axes[name].IsEyelid() {
			names = append(names, name)
		}
	}
	return names
}

// XAxes returns the names of the horizontal gaze axes.
func (r Rig) XAxes() []string {
	return r.gazeAxes("_x")
}

// YAxes returns the names of the vertical gaze axes.
func (r Rig) YAxes() []string {
	return r.gazeAxes("_y")
}

func (r Rig) gazeAxes(suffix string) []string {
	var names []string
	for _, name := range r.AxisNames() {
		if strings.HasSuffix(name, suffix) && !r.Axes[name].IsEyelid() {
			names = append(names, name)
		}
	}
	return names
}

// Validate checks the rig invariants: every channel is unique and default
// and closed angles lie within their axis range.
func (r Rig) Validate() error {
	seen := make(map[int]string, len(r.Axes))
	for _, name := range r.AxisNames() {
		a := r.Axes[name]
		if other, dup := seen[a.Channel]; dup {
			return fmt.Errorf("rig %q: channel %d shared by %q and %q", r.Name, a.Channel, other, name)
		}
		seen[a.Channel] = name

		if a.Min > a.Max {
			return fmt.Errorf("rig %q: axis %q has inverted range [%g,%g]", r.Name, name, a.Min, a.Max)
		}
		if a.Default < a.Min || a.Default > a.Max {
			return fmt.Errorf("rig %q: axis %q default %g outside [%g,%g]", r.Name, name, a.Default, a.Min, a.Max)
		}
		if a.Closed != nil && (*a.Closed < a.Min || *a.Closed > a.Max) {
			return fmt.Errorf("rig %q: axis %q closed angle %g outside [%g,%g]", r.Name, name, *a.Closed, a.Min, a.Max)
		}
	}
	return nil
}
