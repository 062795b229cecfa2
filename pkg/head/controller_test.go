package head

import (
	"context"
	"encoding/binary"
	"image"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/elazer/go-sunny/pkg/facetrack"
	"github.com/elazer/go-sunny/pkg/protocol"
	"github.com/elazer/go-sunny/pkg/servo"
	"github.com/elazer/go-sunny/pkg/settings"
	"github.com/elazer/go-sunny/pkg/speechio"
)

// recorder captures broadcast events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []*protocol.Message
	frames [][]byte
}

func (r *recorder) BroadcastEvent(msg *protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, msg)
}

func (r *recorder) SendCameraFrame(jpeg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, jpeg)
}

func (r *recorder) eventsOfType(t protocol.MessageType) []*protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*protocol.Message
	for _, msg := range r.events {
		if msg.Type == t {
			out = append(out, msg)
		}
	}
	return out
}

// fakeSource returns the same frame forever.
type fakeSource struct {
	closed bool
}

func (s *fakeSource) Read() ([]byte, int, int, error) {
	return []byte{0xff, 0xd8, 0xff}, 640, 480, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

// fakeDetector plays back scripted detections, repeating the last entry.
type fakeDetector struct {
	script [][]facetrack.Detection
	calls  int
}

func (d *fakeDetector) Detect(jpeg []byte) ([]facetrack.Detection, error) {
	i := d.calls
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	d.calls++
	if i < 0 {
		return nil, nil
	}
	return d.script[i], nil
}

func (d *fakeDetector) Close() error { return nil }

func faceAt(cx, cy int) []facetrack.Detection {
	return []facetrack.Detection{{
		Rect:       image.Rect(cx-40, cy-40, cx+40, cy+40),
		Confidence: 0.9,
	}}
}

// loudChunk builds PCM16 bytes with a normalized RMS well above MaxThreshold.
func loudChunk(n int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(16000)))
	}
	return out
}

func newTestController(t *testing.T, det *fakeDetector) (*Controller, *recorder, *servo.SimBus) {
	t.Helper()

	store, err := settings.Load(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("settings.Load: %v", err)
	}

	bus := servo.NewSimBus()
	rec := &recorder{}

	opts := Options{
		Broadcaster: rec,
		OpenSource: func(index int) (facetrack.Source, error) {
			return &fakeSource{}, nil
		},
	}
	if det != nil {
		opts.NewDetector = func() (facetrack.Detector, error) { return det, nil }
	}

	c, err := New(store, bus, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.sleep = func(time.Duration) {}
	return c, rec, bus
}

func TestProcessChunk_OpensJawAndBroadcastsViseme(t *testing.T) {
	c, rec, _ := newTestController(t, nil)

	for i := 0; i < 5; i++ {
		c.processChunk(loudChunk(512))
	}

	if got := c.arbiterRef().JawOpening(); got <= 0 {
		t.Errorf("jaw opening = %v after loud chunks, want > 0", got)
	}
	if !c.Status().Speaking {
		t.Error("not speaking after loud chunks")
	}

	visemes := rec.eventsOfType(protocol.TypeViseme)
	if len(visemes) != 5 {
		t.Fatalf("viseme events = %d, want 5", len(visemes))
	}
	var update protocol.VisemeUpdate
	if err := visemes[len(visemes)-1].ParseData(&update); err != nil {
		t.Fatalf("ParseData: %v", err)
	}
	if update.Viseme == "" || update.Viseme == "CLOSED" {
		t.Errorf("viseme = %q after loud chunks", update.Viseme)
	}
}

func TestProcessChunk_SilenceWritesNothing(t *testing.T) {
	c, rec, bus := newTestController(t, nil)

	seeded := bus.Writes()
	c.processChunk(make([]byte, 1024*2))

	if got := c.arbiterRef().JawOpening(); got != 0 {
		t.Errorf("jaw opening = %v after silence, want 0", got)
	}
	if got := bus.Writes(); got != seeded {
		t.Errorf("bus writes = %d after silence, want %d (deadband suppressed)", got, seeded)
	}

	visemes := rec.eventsOfType(protocol.TypeViseme)
	if len(visemes) != 1 {
		t.Fatalf("viseme events = %d, want 1", len(visemes))
	}
	var update protocol.VisemeUpdate
	if err := visemes[0].ParseData(&update); err != nil {
		t.Fatalf("ParseData: %v", err)
	}
	if update.Viseme != "CLOSED" {
		t.Errorf("viseme = %q for silence, want CLOSED", update.Viseme)
	}
}

func TestWatchdog_SilenceRampsJawClosed(t *testing.T) {
	c, _, _ := newTestController(t, nil)

	base := time.Now()
	now := base
	c.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		c.processChunk(loudChunk(512))
	}
	if !c.Status().Speaking {
		t.Fatal("not speaking before watchdog")
	}

	var ramp []float64
	c.arbiterRef().SetObserver(func(axis string, angle float64) {
		if axis == servo.JawAxis {
			ramp = append(ramp, angle)
		}
	})

	// Within the timeout nothing happens.
	now = base.Add(200 * time.Millisecond)
	c.watchdogTick(now)
	if !c.Status().Speaking {
		t.Fatal("watchdog fired before silence timeout")
	}

	now = base.Add(time.Second)
	c.watchdogTick(now)

	if c.Status().Speaking {
		t.Error("still speaking after silence timeout")
	}
	if got := c.arbiterRef().JawOpening(); got != 0 {
		t.Errorf("jaw opening = %v after ramp, want 0", got)
	}
	if len(ramp) == 0 {
		t.Fatal("no jaw writes during ramp")
	}
	for i := 1; i < len(ramp); i++ {
		if ramp[i] > ramp[i-1] {
			t.Errorf("ramp not monotonic: step %d went %v -> %v", i, ramp[i-1], ramp[i])
		}
	}
}

func TestFaceTick_WritesGazeAndPreview(t *testing.T) {
	det := &fakeDetector{script: [][]facetrack.Detection{faceAt(100, 100)}}
	c, rec, _ := newTestController(t, det)

	if err := c.StartTracking(); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	if err := c.faceTick(time.Now()); err != nil {
		t.Fatalf("faceTick: %v", err)
	}

	events := rec.eventsOfType(protocol.TypeEyePosition)
	if len(events) != 1 {
		t.Fatalf("eye position events = %d, want 1", len(events))
	}
	var update protocol.EyePositionUpdate
	if err := events[0].ParseData(&update); err != nil {
		t.Fatalf("ParseData: %v", err)
	}
	if _, ok := update.Angles["left_eye_x"]; !ok {
		t.Error("batch missing left_eye_x")
	}

	// Face left of center, X axes are inverted, so angle is above default.
	r := c.arbiterRef().Rig()
	axis, _ := r.Axis("left_eye_x")
	snapshot := c.Positions()
	if got := snapshot["left_eye_x"].Angle; got <= axis.Default {
		t.Errorf("left_eye_x = %v for face left of center, want > default %v", got, axis.Default)
	}

	rec.mu.Lock()
	frames := len(rec.frames)
	rec.mu.Unlock()
	if frames != 1 {
		t.Errorf("preview frames = %d, want 1", frames)
	}
}

func TestFaceTick_BlinkCloseAndReopen(t *testing.T) {
	det := &fakeDetector{script: [][]facetrack.Detection{faceAt(320, 240)}}
	c, rec, _ := newTestController(t, det)

	if err := c.StartTracking(); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}

	base := time.Now()
	c.blink.Force()
	if err := c.faceTick(base); err != nil {
		t.Fatalf("faceTick: %v", err)
	}

	r := c.arbiterRef().Rig()
	lidAxis, _ := r.Axis("left_upper_lid")
	snapshot := c.Positions()
	if got := snapshot["left_upper_lid"].Angle; got != *lidAxis.Closed {
		t.Errorf("left_upper_lid = %v during blink, want closed %v", got, *lidAxis.Closed)
	}
	if len(rec.eventsOfType(protocol.TypeBlink)) != 1 {
		t.Errorf("blink events = %d, want 1", len(rec.eventsOfType(protocol.TypeBlink)))
	}

	// Before the dwell elapses the lids stay closed.
	if err := c.faceTick(base.Add(50 * time.Millisecond)); err != nil {
		t.Fatalf("faceTick: %v", err)
	}
	if got := c.Positions()["left_upper_lid"].Angle; got != *lidAxis.Closed {
		t.Errorf("left_upper_lid reopened before dwell: %v", got)
	}

	if err := c.faceTick(base.Add(200 * time.Millisecond)); err != nil {
		t.Fatalf("faceTick: %v", err)
	}
	if got := c.Positions()["left_upper_lid"].Angle; got != lidAxis.Default {
		t.Errorf("left_upper_lid = %v after dwell, want default %v", got, lidAxis.Default)
	}
}

func TestFaceTick_RecentersAfterLoss(t *testing.T) {
	det := &fakeDetector{script: [][]facetrack.Detection{
		faceAt(100, 100),
		nil,
	}}
	c, _, _ := newTestController(t, det)

	if err := c.StartTracking(); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}

	base := time.Now()
	now := base
	c.faces.SetClock(func() time.Time { return now })

	if err := c.faceTick(now); err != nil {
		t.Fatalf("faceTick: %v", err)
	}
	r := c.arbiterRef().Rig()
	axis, _ := r.Axis("left_eye_x")
	if got := c.Positions()["left_eye_x"].Angle; got == axis.Default {
		t.Fatal("gaze did not move off default while face present")
	}

	// Lost, but under the loss threshold: hold position.
	now = base.Add(time.Second)
	if err := c.faceTick(now); err != nil {
		t.Fatalf("faceTick: %v", err)
	}
	if got := c.Positions()["left_eye_x"].Angle; got == axis.Default {
		t.Error("recentered before loss threshold")
	}

	now = base.Add(4 * time.Second)
	if err := c.faceTick(now); err != nil {
		t.Fatalf("faceTick: %v", err)
	}
	if got := c.Positions()["left_eye_x"].Angle; got != axis.Default {
		t.Errorf("left_eye_x = %v after loss threshold, want default %v", got, axis.Default)
	}
}

func TestSafetyTick_ClosesIdleJaw(t *testing.T) {
	c, _, _ := newTestController(t, nil)

	c.arbiterRef().ForceJaw(50)
	if got := c.arbiterRef().JawOpening(); got != 50 {
		t.Fatalf("jaw opening = %v, want 50", got)
	}

	if err := c.faceTick(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("faceTick: %v", err)
	}
	if got := c.arbiterRef().JawOpening(); got != 0 {
		t.Errorf("jaw opening = %v after safety check, want 0", got)
	}
}

func TestStartStopSession(t *testing.T) {
	c, _, _ := newTestController(t, nil)
	mock := speechio.NewMock()
	c.speech = mock
	c.bindSpeech(mock)

	if err := c.StartSession(context.Background()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if !c.Status().SessionActive {
		t.Error("session not active after start")
	}
	if !mock.Started() {
		t.Error("speech client not started")
	}

	mock.EmitAudio(loudChunk(512))
	select {
	case <-c.chunks:
	default:
		t.Error("audio chunk not queued")
	}

	if err := c.StopSession(); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if c.Status().SessionActive {
		t.Error("session still active after stop")
	}
	if mock.StopCalls != 1 {
		t.Errorf("speech stop calls = %d, want 1", mock.StopCalls)
	}
	if got := c.arbiterRef().JawOpening(); got != 0 {
		t.Errorf("jaw opening = %v after stop, want 0", got)
	}
}

func TestStartSession_NoClient(t *testing.T) {
	c, _, _ := newTestController(t, nil)
	if err := c.StartSession(context.Background()); err != ErrNoSpeechClient {
		t.Errorf("StartSession error = %v, want ErrNoSpeechClient", err)
	}
}

func TestMute_DropsChunks(t *testing.T) {
	c, _, _ := newTestController(t, nil)
	mock := speechio.NewMock()
	c.speech = mock
	c.bindSpeech(mock)

	ctrl := protocol.Control{Action: protocol.ActionMute, Value: []byte("true")}
	if err := c.handleCommand(context.Background(), ctrl); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}

	mock.EmitAudio(loudChunk(512))
	select {
	case <-c.chunks:
		t.Error("chunk queued while muted")
	default:
	}
}

func TestHandleCommand_SettingsPersist(t *testing.T) {
	c, _, _ := newTestController(t, nil)
	ctx := context.Background()

	cases := []struct {
		action string
		value  string
		key    string
	}{
		{protocol.ActionSetVoice, `"joanna"`, "voice_id"},
		{protocol.ActionSetSpeechSpeed, "21", "speech_speed"},
		{protocol.ActionSetJawOpen, "90", "jaw_open_angle"},
		{protocol.ActionSetJawMinChange, "5", "jaw_servo_min_change"},
	}
	for _, tc := range cases {
		ctrl := protocol.Control{Action: tc.action, Value: []byte(tc.value)}
		if err := c.handleCommand(ctx, ctrl); err != nil {
			t.Fatalf("handleCommand(%s): %v", tc.action, err)
		}
		if _, ok := c.store.Get(tc.key); !ok {
			t.Errorf("%s not persisted", tc.key)
		}
	}

	if got := c.store.String("voice_id", ""); got != "joanna" {
		t.Errorf("voice_id = %q", got)
	}
	if got := c.store.Float("jaw_open_angle", 0); got != 90 {
		t.Errorf("jaw_open_angle = %v", got)
	}
}

func TestHandleCommand_ToggleTracking(t *testing.T) {
	det := &fakeDetector{script: [][]facetrack.Detection{nil}}
	c, _, _ := newTestController(t, det)
	ctx := context.Background()

	on := protocol.Control{Action: protocol.ActionToggleTracking, Value: []byte("true")}
	if err := c.handleCommand(ctx, on); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !c.Status().TrackingActive {
		t.Error("tracking not active after toggle on")
	}

	off := protocol.Control{Action: protocol.ActionToggleTracking, Value: []byte("false")}
	if err := c.handleCommand(ctx, off); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if c.Status().TrackingActive {
		t.Error("tracking still active after toggle off")
	}
}

func TestHandleCommand_SwitchRig(t *testing.T) {
	c, _, _ := newTestController(t, nil)
	ctx := context.Background()

	ctrl := protocol.Control{Action: protocol.ActionSetServoConfig, Value: []byte(`"simple"`)}
	if err := c.handleCommand(ctx, ctrl); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	if got := c.Status().Rig; got != "simple" {
		t.Errorf("rig = %q, want simple", got)
	}
	if got := c.store.String("servo_config", ""); got != "simple" {
		t.Errorf("servo_config setting = %q, want simple", got)
	}
}

func TestMirrorWrites_BroadcastsPositions(t *testing.T) {
	c, rec, _ := newTestController(t, nil)

	c.arbiterRef().Request("left_eye_x", 120)

	updates := rec.eventsOfType(protocol.TypePositions)
	if len(updates) == 0 {
		t.Fatal("no position broadcast for accepted write")
	}
	var update protocol.PositionUpdate
	if err := updates[len(updates)-1].ParseData(&update); err != nil {
		t.Fatalf("ParseData: %v", err)
	}
	if got := update.Angles["left_eye_x"]; got != 120 {
		t.Errorf("mirrored left_eye_x = %v, want 120", got)
	}

	// Switching rigs rebuilds the arbiter; the mirror has to follow it.
	ctrl := protocol.Control{Action: protocol.ActionSetServoConfig, Value: []byte(`"simple"`)}
	if err := c.handleCommand(context.Background(), ctrl); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}
	before := len(rec.eventsOfType(protocol.TypePositions))
	c.arbiterRef().Request("eyes_x", 70)

	after := rec.eventsOfType(protocol.TypePositions)
	if len(after) <= before {
		t.Fatal("no position broadcast after rig switch")
	}
	if err := after[len(after)-1].ParseData(&update); err != nil {
		t.Fatalf("ParseData: %v", err)
	}
	if got := update.Angles["eyes_x"]; got != 70 {
		t.Errorf("mirrored eyes_x = %v after rig switch, want 70", got)
	}
}

func TestHandleCommand_TestJawHoldsOpen(t *testing.T) {
	c, _, _ := newTestController(t, nil)

	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }

	ctrl := protocol.Control{Action: protocol.ActionTestJaw}
	if err := c.handleCommand(context.Background(), ctrl); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}

	if len(slept) != 1 || slept[0] != 800*time.Millisecond {
		t.Errorf("test pulse dwell = %v, want one 800ms hold", slept)
	}
	if got := c.arbiterRef().JawOpening(); got != 0 {
		t.Errorf("jaw opening = %v after test pulse, want 0", got)
	}
}

func TestHandleCommand_Unknown(t *testing.T) {
	c, _, _ := newTestController(t, nil)
	ctrl := protocol.Control{Action: "frobnicate"}
	if err := c.handleCommand(context.Background(), ctrl); err == nil {
		t.Error("unknown action did not error")
	}
}

func TestHandleCommand_SweepEyeServo(t *testing.T) {
	c, rec, _ := newTestController(t, nil)

	ctrl := protocol.Control{
		Action:      protocol.ActionSweepEyeServo,
		Channel:     0,
		MinAngle:    60,
		MaxAngle:    140,
		CenterAngle: 90,
	}
	if err := c.handleCommand(context.Background(), ctrl); err != nil {
		t.Fatalf("handleCommand: %v", err)
	}

	if got := c.Positions()["left_eye_x"].Angle; got != 90 {
		t.Errorf("left_eye_x = %v after sweep, want center 90", got)
	}
	if len(rec.eventsOfType(protocol.TypePositions)) == 0 {
		t.Error("no position update broadcast after sweep")
	}
}
