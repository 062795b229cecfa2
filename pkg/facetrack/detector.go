// Package facetrack acquires camera frames, detects faces, and reports the
// face nearest the frame center together with loss tracking when no face is
// visible.
package facetrack

import (
	"image"
	"math"
)

// Detection is one detected face in pixel coordinates.
type Detection struct {
	Rect       image.Rectangle
	Confidence float64
}

// Center returns the center point of the detection.
func (d Detection) Center() image.Point {
	return image.Pt(d.Rect.Min.X+d.Rect.Dx()/2, d.Rect.Min.Y+d.Rect.Dy()/2)
}

// Detector finds faces in a JPEG-encoded frame.
type Detector interface {
	Detect(jpeg []byte) ([]Detection, error)

	// Close releases detector resources.
	Close() error
}

// SelectNearest picks the detection whose center is closest (Euclidean,
// pixel space) to the frame's geometric center. Ties keep the earlier
// detection, so detector return order breaks them. Returns nil for an
// empty slice.
func SelectNearest(dets []Detection, frameW, frameH int) *Detection {
	if len(dets) == 0 {
		return nil
	}

	cx := float64(frameW) / 2
	cy := float64(frameH) / 2

	best := 0
	bestDist := math.Inf(1)
	for i, d := range dets {
		c := d.Center()
		dist := math.Hypot(float64(c.X)-cx, float64(c.Y)-cy)
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	return &dets[best]
}
