// Package gaze maps detected face positions onto eye servo angles and
// schedules blinks. Mapping is stateless geometry; blinking is a small
// time- and probability-driven state machine.
package gaze

import (
	"strings"

	"github.com/elazer/go-sunny/pkg/rig"
)

// mapValue linearly interpolates value from [inMin,inMax] into [outMin,outMax].
func mapValue(value, inMin, inMax, outMin, outMax float64) float64 {
	return (value-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

// Map converts a face-center pixel coordinate into target angles for every
// gaze axis of the rig. All axes are computed before any is written: callers
// must apply the whole batch or none of it, so the two eyes never diverge
// across a tick.
//
// X axes map [0,frameW] onto [Max,Min], inverted, because the camera frames
// the user mirrored: a face moving right should swing the gaze left. Left and
// shared Y axes map top-of-frame to Min (look up); the right eye's Y axis is
// mounted mirrored and maps the other way. Right-eye axes receive the rig's
// trim offset before clamping.
func Map(faceX, faceY, frameW, frameH int, r rig.Rig) map[string]float64 {
	if frameW <= 0 || frameH <= 0 {
		return nil
	}

	angles := make(map[string]float64)

	for _, name := range r.XAxes() {
		a := r.Axes[name]
		angle := mapValue(float64(faceX), 0, float64(frameW), a.Max, a.Min)
		if isRightEye(name) {
			angle += r.RightEyeTrimX
		}
		angles[name] = a.Clamp(angle)
	}

	for _, name := range r.YAxes() {
		a := r.Axes[name]
		var angle float64
		if isRightEye(name) {
			angle = mapValue(float64(faceY), 0, float64(frameH), a.Max, a.Min)
			angle += r.RightEyeTrimY
		} else {
			angle = mapValue(float64(faceY), 0, float64(frameH), a.Min, a.Max)
		}
		angles[name] = a.Clamp(angle)
	}

	return angles
}

func isRightEye(axis string) bool {
	return strings.HasPrefix(axis, "right_")
}
