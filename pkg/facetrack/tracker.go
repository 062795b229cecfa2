package facetrack

import (
	"image"
	"time"
)

// DefaultLossThreshold is the loss duration after which callers typically
// recenter the gaze instead of holding the last position. Informational:
// enforcement is caller policy.
const DefaultLossThreshold = 2 * time.Second

// Result is the outcome of one tracking call.
type Result struct {
	// Found reports whether a face was detected this call.
	Found bool

	// Center, FrameW, FrameH, and Rect are valid when Found.
	Center image.Point
	FrameW int
	FrameH int
	Rect   image.Rectangle

	// LastCenter and TimeLost are valid when not Found and a face has
	// been seen before.
	LastCenter image.Point
	TimeLost   time.Duration

	// Frame is the JPEG-encoded frame, populated when the tracker is
	// configured to keep frames for the camera preview.
	Frame []byte
}

// Tracker runs one detect-and-select pass per Track call and remembers the
// last known face across calls.
type Tracker struct {
	src Source
	det Detector

	// KeepFrames controls whether Track returns the JPEG frame for
	// preview broadcasting.
	KeepFrames bool

	// now is swappable for tests.
	now func() time.Time

	lastCenter image.Point
	haveSeen   bool
	lostSince  time.Time
}

// NewTracker creates a tracker over a frame source and a detector.
func NewTracker(src Source, det Detector) *Tracker {
	return &Tracker{src: src, det: det, now: time.Now}
}

// SetClock overrides the time source used for loss accounting.
func (t *Tracker) SetClock(clock func() time.Time) {
	t.now = clock
}

// Track acquires one frame, detects faces, and selects the one nearest the
// frame center. On no detection it reports the last known center and the
// cumulative time since the face was lost.
func (t *Tracker) Track() (Result, error) {
	jpeg, w, h, err := t.src.Read()
	if err != nil {
		return Result{}, err
	}

	var res Result
	if t.KeepFrames {
		res.Frame = jpeg
	}

	dets, err := t.det.Detect(jpeg)
	if err != nil {
		return res, err
	}

	now := t.now()
	if face := SelectNearest(dets, w, h); face != nil {
		t.lastCenter = face.Center()
		t.haveSeen = true
		t.lostSince = time.Time{}

		res.Found = true
		res.Center = t.lastCenter
		res.FrameW = w
		res.FrameH = h
		res.Rect = face.Rect
		return res, nil
	}

	if t.lostSince.IsZero() {
		t.lostSince = now
	}

	res.Found = false
	res.FrameW = w
	res.FrameH = h
	if t.haveSeen {
		res.LastCenter = t.lastCenter
	}
	res.TimeLost = now.Sub(t.lostSince)
	return res, nil
}

// Close releases the detector and the camera.
func (t *Tracker) Close() error {
	derr := t.det.Close()
	serr := t.src.Close()
	if derr != nil {
		return derr
	}
	return serr
}
