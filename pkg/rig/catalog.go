package rig

import "strings"

// The catalog is a closed set of known head variants. No behavior varies by
// rig beyond this data, so variants are plain constructors rather than types.

// DefaultName is the rig used when no selection (or an unknown one) is made.
const DefaultName = "inmoov"

func closed(angle float64) *float64 {
	return &angle
}

// InMoov returns the 8-channel InMoov head layout: per-eye X/Y plus upper
// and lower lids on each side.
func InMoov() Rig {
	return Rig{
		Key:  "inmoov",
		Name: "InMoov Head",
		Axes: map[string]Axis{
			"left_eye_x":      {Channel: 0, Min: 57, Max: 145, Default: 90},
			"left_eye_y":      {Channel: 1, Min: 52, Max: 112, Default: 90},
			"left_upper_lid":  {Channel: 2, Min: 70, Max: 180, Default: 70, Closed: closed(180)},
			"left_lower_lid":  {Channel: 3, Min: 10, Max: 100, Default: 100, Closed: closed(10)},
			"right_eye_x":     {Channel: 4, Min: 57, Max: 145, Default: 90},
			"right_eye_y":     {Channel: 5, Min: 52, Max: 112, Default: 90},
			"right_upper_lid": {Channel: 6, Min: 10, Max: 120, Default: 120, Closed: closed(10)},
			"right_lower_lid": {Channel: 7, Min: 90, Max: 180, Default: 90, Closed: closed(180)},
		},
		RightEyeTrimX: 0,
		RightEyeTrimY: 10,
	}
}

// Original returns the 6-channel layout from the first head build: both eyes
// share X and Y axes, with four independent eyelids.
func Original() Rig {
	return Rig{
		Key:  "original",
		Name: "Original (Shared Axes)",
		Axes: map[string]Axis{
			"eyes_x":          {Channel: 0, Min: 57, Max: 145, Default: 100},
			"eyes_y":          {Channel: 1, Min: 52, Max: 112, Default: 80},
			"left_upper_lid":  {Channel: 2, Min: 70, Max: 180, Default: 70, Closed: closed(180)},
			"right_upper_lid": {Channel: 3, Min: 10, Max: 120, Default: 120, Closed: closed(10)},
			"left_lower_lid":  {Channel: 4, Min: 10, Max: 100, Default: 100, Closed: closed(10)},
			"right_lower_lid": {Channel: 5, Min: 90, Max: 180, Default: 90, Closed: closed(180)},
		},
	}
}

// Simple returns a 2-channel X/Y gimbal with no eyelids.
func Simple() Rig {
	return Rig{
		Key:  "simple",
		Name: "Simple (X/Y Only)",
		Axes: map[string]Axis{
			"eyes_x": {Channel: 0, Min: 0, Max: 180, Default: 90},
			"eyes_y": {Channel: 1, Min: 0, Max: 180, Default: 90},
		},
	}
}

// catalog maps selection names to constructors.
var catalog = map[string]func() Rig{
	"inmoov":   InMoov,
	"original": Original,
	"simple":   Simple,
}

// Names lists the valid rig selection names.
func Names() []string {
	return []string{"inmoov", "original", "simple"}
}

// ByName returns the rig for a selection name. Unknown names fall back to
// the default rig and return ErrUnknownRig so the caller can warn.
func ByName(name string) (Rig, error) {
	if ctor, ok := catalog[strings.ToLower(name)]; ok {
		return ctor(), nil
	}
	return InMoov(), ErrUnknownRig
}
