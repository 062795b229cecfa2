package facetrack

import (
	"errors"
	"image"
	"testing"
	"time"
)

type fakeSource struct {
	w, h   int
	err    error
	closed bool
}

func (f *fakeSource) Read() ([]byte, int, int, error) {
	if f.err != nil {
		return nil, 0, 0, f.err
	}
	return []byte("jpeg"), f.w, f.h, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type fakeDetector struct {
	// dets is consumed one slice per Detect call; the last entry repeats.
	dets   [][]Detection
	call   int
	closed bool
}

func (f *fakeDetector) Detect(_ []byte) ([]Detection, error) {
	i := f.call
	if i >= len(f.dets) {
		i = len(f.dets) - 1
	}
	f.call++
	if i < 0 {
		return nil, nil
	}
	return f.dets[i], nil
}

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

func det(cx, cy, size int) Detection {
	half := size / 2
	return Detection{Rect: image.Rect(cx-half, cy-half, cx+half, cy+half), Confidence: 0.9}
}

func TestSelectNearest_PicksClosestToCenter(t *testing.T) {
	// 640x480 frame center is (320,240). One face 10px away, one 50px.
	near := det(330, 240, 40)
	far := det(320, 290, 40)

	got := SelectNearest([]Detection{far, near}, 640, 480)
	if got == nil || got.Center() != near.Center() {
		t.Fatalf("selected %+v, want the 10px face", got)
	}
}

func TestSelectNearest_TieKeepsFirst(t *testing.T) {
	a := det(310, 240, 40) // both 10px from center
	b := det(330, 240, 40)

	got := SelectNearest([]Detection{a, b}, 640, 480)
	if got == nil || got.Center() != a.Center() {
		t.Fatalf("ties must keep the first-listed detection, got %+v", got)
	}
}

func TestSelectNearest_Empty(t *testing.T) {
	if got := SelectNearest(nil, 640, 480); got != nil {
		t.Errorf("expected nil for no detections, got %+v", got)
	}
}

func TestTracker_FoundResult(t *testing.T) {
	src := &fakeSource{w: 640, h: 480}
	d := &fakeDetector{dets: [][]Detection{{det(100, 120, 60)}}}
	tr := NewTracker(src, d)

	res, err := tr.Track()
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if !res.Found {
		t.Fatal("expected face found")
	}
	if res.Center != image.Pt(100, 120) {
		t.Errorf("center = %v, want (100,120)", res.Center)
	}
	if res.FrameW != 640 || res.FrameH != 480 {
		t.Errorf("frame size = %dx%d", res.FrameW, res.FrameH)
	}
}

func TestTracker_LossAccumulates(t *testing.T) {
	src := &fakeSource{w: 640, h: 480}
	d := &fakeDetector{dets: [][]Detection{
		{det(100, 120, 60)}, // found
		nil,                 // lost from here on
	}}
	tr := NewTracker(src, d)

	clock := time.Unix(1000, 0)
	tr.now = func() time.Time { return clock }

	if res, _ := tr.Track(); !res.Found {
		t.Fatal("first call should find the face")
	}

	clock = clock.Add(100 * time.Millisecond)
	res, _ := tr.Track()
	if res.Found {
		t.Fatal("second call should report lost")
	}
	if res.LastCenter != image.Pt(100, 120) {
		t.Errorf("last center = %v, want (100,120)", res.LastCenter)
	}
	if res.TimeLost != 0 {
		t.Errorf("loss clock starts at the first lost call, got %v", res.TimeLost)
	}

	clock = clock.Add(2 * time.Second)
	res, _ = tr.Track()
	if res.TimeLost != 2*time.Second {
		t.Errorf("time lost = %v, want 2s", res.TimeLost)
	}
}

func TestTracker_LossClearedOnRefind(t *testing.T) {
	src := &fakeSource{w: 640, h: 480}
	d := &fakeDetector{dets: [][]Detection{
		{det(100, 120, 60)},
		nil,
		{det(200, 220, 60)},
		nil,
	}}
	tr := NewTracker(src, d)

	clock := time.Unix(1000, 0)
	tr.now = func() time.Time { return clock }

	tr.Track() // found
	clock = clock.Add(time.Second)
	tr.Track() // lost, clock starts
	clock = clock.Add(time.Second)
	tr.Track() // re-found, clears loss state
	clock = clock.Add(time.Second)

	res, _ := tr.Track() // lost again
	if res.TimeLost != 0 {
		t.Errorf("loss clock must restart after a re-find, got %v", res.TimeLost)
	}
	if res.LastCenter != image.Pt(200, 220) {
		t.Errorf("last center = %v, want the re-found position", res.LastCenter)
	}
}

func TestTracker_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("no frame")}
	tr := NewTracker(src, &fakeDetector{})

	if _, err := tr.Track(); err == nil {
		t.Error("expected error from source")
	}
}

func TestTracker_KeepFrames(t *testing.T) {
	src := &fakeSource{w: 640, h: 480}
	tr := NewTracker(src, &fakeDetector{})

	res, _ := tr.Track()
	if res.Frame != nil {
		t.Error("frames should not be kept by default")
	}

	tr.KeepFrames = true
	res, _ = tr.Track()
	if string(res.Frame) != "jpeg" {
		t.Errorf("frame = %q, want the source JPEG", res.Frame)
	}
}

func TestTracker_CloseReleasesBoth(t *testing.T) {
	src := &fakeSource{}
	d := &fakeDetector{}
	tr := NewTracker(src, d)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !src.closed || !d.closed {
		t.Errorf("close flags: source=%v detector=%v", src.closed, d.closed)
	}
}
