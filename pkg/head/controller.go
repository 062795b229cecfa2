// Package head wires the mouth tracker, gaze mapper, blink scheduler, face
// tracker, and actuator arbiter into the control loops that run the
// animatronic head. The controller owns four loops: jaw (audio driven), face
// (~30 Hz), watchdog (~10 Hz), and command drain (~20 Hz). The jaw is written
// only by the jaw loop or the watchdog, gated by the speaking flag the
// watchdog itself clears; gaze and eyelid axes are written only by the face
// loop and calibration commands.
package head

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/elazer/go-sunny/internal/log"
	"github.com/elazer/go-sunny/pkg/facetrack"
	"github.com/elazer/go-sunny/pkg/gaze"
	"github.com/elazer/go-sunny/pkg/mouth"
	"github.com/elazer/go-sunny/pkg/protocol"
	"github.com/elazer/go-sunny/pkg/rig"
	"github.com/elazer/go-sunny/pkg/servo"
	"github.com/elazer/go-sunny/pkg/settings"
	"github.com/elazer/go-sunny/pkg/speechio"
)

// ErrNoSpeechClient indicates a session was started without a speech client.
var ErrNoSpeechClient = errors.New("head: no speech client configured")

// Broadcaster receives head events and camera frames for the dashboard.
// web.Server satisfies it; tests use a recording fake.
type Broadcaster interface {
	BroadcastEvent(msg *protocol.Message)
	SendCameraFrame(jpeg []byte)
}

// nopBroadcaster drops everything.
type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastEvent(*protocol.Message) {}
func (nopBroadcaster) SendCameraFrame([]byte)           {}

// Config holds the loop cadences and timeouts.
type Config struct {
	FaceInterval     time.Duration
	WatchdogInterval time.Duration
	CommandInterval  time.Duration

	// SilenceTimeout is how long the watchdog waits without an audio chunk
	// before declaring the speech turn over.
	SilenceTimeout time.Duration

	// SafetyInterval is how often the face loop verifies the jaw is closed
	// while nothing is speaking.
	SafetyInterval time.Duration

	// RampSteps and RampStep shape the watchdog's close ramp.
	RampSteps int
	RampStep  time.Duration

	// ChunkBuffer sizes the audio chunk queue between the speech client
	// callback and the jaw loop.
	ChunkBuffer int
}

// DefaultControllerConfig returns the standard loop timing.
func DefaultControllerConfig() Config {
	return Config{
		FaceInterval:     33 * time.Millisecond,
		WatchdogInterval: 100 * time.Millisecond,
		CommandInterval:  50 * time.Millisecond,
		SilenceTimeout:   500 * time.Millisecond,
		SafetyInterval:   time.Second,
		RampSteps:        10,
		RampStep:         20 * time.Millisecond,
		ChunkBuffer:      32,
	}
}

// Options configures a Controller beyond its settings store and servo bus.
type Options struct {
	// Speech is the speech session client. Optional; sessions fail to
	// start without one.
	Speech speechio.Client

	// Broadcaster receives events and preview frames. Optional.
	Broadcaster Broadcaster

	// Commands is the inbound control queue, usually web.Server.Commands().
	Commands <-chan protocol.Control

	// OpenSource opens the camera for a given index. Defaults to the
	// gocv-backed camera.
	OpenSource func(index int) (facetrack.Source, error)

	// NewDetector builds the face detector. Defaults to YuNet.
	NewDetector func() (facetrack.Detector, error)

	Config Config
}

// Status is a point-in-time snapshot of the controller.
type Status struct {
	SessionActive  bool
	TrackingActive bool
	Speaking       bool
	Simulated      bool
	Rig            string
	JawOpening     float64
	LastUserText   string
	LastSpokenText string
}

// Controller runs the head.
type Controller struct {
	cfg   Config
	store *settings.Store
	bus   servo.Bus

	speech      speechio.Client
	broadcaster Broadcaster
	commands    <-chan protocol.Control

	openSource  func(index int) (facetrack.Source, error)
	newDetector func() (facetrack.Detector, error)

	chunks chan []byte

	// swappable for tests
	now   func() time.Time
	sleep func(d time.Duration)

	mu      sync.Mutex
	arbiter *servo.Arbiter
	tracker *mouth.EnhancedTracker
	blink   *gaze.Scheduler
	faces   *facetrack.Tracker

	sessionActive bool
	sessionCancel context.CancelFunc
	speaking      bool
	muted         bool
	lastChunk     time.Time

	blinkStarted time.Time
	recentered   bool

	lastSafety time.Time

	lastUserText   string
	lastSpokenText string
}

// New builds a controller from the settings store and servo bus. The rig,
// jaw calibration, and deadband come from the store.
func New(store *settings.Store, bus servo.Bus, opts Options) (*Controller, error) {
	cfg := opts.Config
	if cfg.FaceInterval == 0 {
		cfg = DefaultControllerConfig()
	}

	rigName := store.String("servo_config", rig.DefaultName)
	r, err := rig.ByName(rigName)
	if err != nil {
		log.Warn("unknown rig in settings, using default", "rig", rigName)
	}

	arb := servo.NewArbiter(bus, r, arbiterConfig(store))

	broadcaster := opts.Broadcaster
	if broadcaster == nil {
		broadcaster = nopBroadcaster{}
	}

	openSource := opts.OpenSource
	if openSource == nil {
		openSource = func(index int) (facetrack.Source, error) {
			return facetrack.OpenCamera(index)
		}
	}
	newDetector := opts.NewDetector
	if newDetector == nil {
		newDetector = func() (facetrack.Detector, error) {
			return facetrack.NewYuNet(facetrack.DefaultYuNetConfig())
		}
	}

	c := &Controller{
		cfg:         cfg,
		store:       store,
		bus:         bus,
		speech:      opts.Speech,
		broadcaster: broadcaster,
		commands:    opts.Commands,
		openSource:  openSource,
		newDetector: newDetector,
		chunks:      make(chan []byte, cfg.ChunkBuffer),
		now:         time.Now,
		sleep:       time.Sleep,
		arbiter:     arb,
		tracker:     mouth.NewEnhanced(mouth.DefaultConfig()),
		blink:       gaze.NewScheduler(gaze.DefaultSchedulerConfig()),
	}

	c.mirrorWrites(arb)

	if opts.Speech != nil {
		c.bindSpeech(opts.Speech)
	}

	return c, nil
}

// mirrorWrites broadcasts every accepted servo write so the dashboard's
// visualization follows the hardware. Hub broadcasts never block, so the
// observer is safe to run under the arbiter's lock.
func (c *Controller) mirrorWrites(arb *servo.Arbiter) {
	arb.SetObserver(func(axis string, angle float64) {
		msg, err := protocol.NewMessage(protocol.TypePositions, protocol.PositionUpdate{
			Angles: map[string]float64{axis: angle},
		})
		if err != nil {
			return
		}
		c.broadcaster.BroadcastEvent(msg)
	})
}

func arbiterConfig(store *settings.Store) servo.Config {
	cfg := servo.DefaultArbiterConfig()
	cfg.JawOpenAngle = store.Float("jaw_open_angle", cfg.JawOpenAngle)
	cfg.JawCloseAngle = store.Float("jaw_close_angle", cfg.JawCloseAngle)
	cfg.MinChange = store.Float("jaw_servo_min_change", cfg.MinChange)
	return cfg
}

// bindSpeech points the speech client's callbacks at the controller.
func (c *Controller) bindSpeech(client speechio.Client) {
	client.OnAudioChunk(func(pcm []byte) {
		c.mu.Lock()
		muted := c.muted
		c.mu.Unlock()
		if muted {
			return
		}
		select {
		case c.chunks <- pcm:
		default:
			log.Debug("audio chunk queue full, dropping chunk")
		}
	})
	client.OnUserText(func(text string) {
		c.mu.Lock()
		c.lastUserText = text
		c.mu.Unlock()
	})
	client.OnAssistantText(func(text string) {
		c.mu.Lock()
		c.lastSpokenText = text
		c.mu.Unlock()
	})
}

// Run starts the control loops and blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); c.jawLoop(ctx) }()
	go func() { defer wg.Done(); c.faceLoop(ctx) }()
	go func() { defer wg.Done(); c.watchdogLoop(ctx) }()
	go func() { defer wg.Done(); c.commandLoop(ctx) }()
	wg.Wait()
}

// Status returns a snapshot for the dashboard.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		SessionActive:  c.sessionActive,
		TrackingActive: c.faces != nil,
		Speaking:       c.speaking,
		Simulated:      c.arbiter.Simulated(),
		Rig:            c.arbiter.Rig().Key,
		JawOpening:     c.arbiter.JawOpening(),
		LastUserText:   c.lastUserText,
		LastSpokenText: c.lastSpokenText,
	}
}

// Positions returns the arbiter's last-written table.
func (c *Controller) Positions() map[string]servo.Position {
	c.mu.Lock()
	arb := c.arbiter
	c.mu.Unlock()
	return arb.Snapshot()
}

// StartSession starts the speech session.
func (c *Controller) StartSession(ctx context.Context) error {
	c.mu.Lock()
	if c.speech == nil {
		c.mu.Unlock()
		return ErrNoSpeechClient
	}
	if c.sessionActive {
		c.mu.Unlock()
		return nil
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	c.sessionCancel = cancel
	client := c.speech
	c.mu.Unlock()

	if err := client.Start(sessionCtx); err != nil {
		cancel()
		return err
	}

	c.mu.Lock()
	c.sessionActive = true
	c.lastChunk = c.now()
	c.mu.Unlock()

	log.Info("speech session active")
	return nil
}

// StopSession ends the speech session and force-closes the jaw. Cancellation
// of the session context is expected and not an error.
func (c *Controller) StopSession() error {
	c.mu.Lock()
	if !c.sessionActive {
		c.mu.Unlock()
		return nil
	}
	c.sessionActive = false
	c.speaking = false
	cancel := c.sessionCancel
	c.sessionCancel = nil
	client := c.speech
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		if err := client.Stop(); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("speech stop error", "error", err)
		}
	}

	c.tracker.Reset()

	// Repeated close writes ride out any chunk still in flight.
	for i := 0; i < 10; i++ {
		c.arbiter.ForceJaw(0)
		c.sleep(50 * time.Millisecond)
	}

	log.Info("speech session stopped")
	return nil
}

// StartTracking opens the camera and detector and begins face tracking.
func (c *Controller) StartTracking() error {
	c.mu.Lock()
	if c.faces != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	index := c.store.Int("camera_index", 0)
	src, err := c.openSource(index)
	if err != nil {
		return err
	}
	det, err := c.newDetector()
	if err != nil {
		src.Close()
		return err
	}

	tracker := facetrack.NewTracker(src, det)
	tracker.KeepFrames = true

	c.mu.Lock()
	c.faces = tracker
	c.recentered = false
	c.mu.Unlock()

	c.broadcastTrackingStatus(true)
	log.Info("face tracking started", "camera", index)
	return nil
}

// StopTracking releases the camera and recenters the eye and eyelid axes.
func (c *Controller) StopTracking() error {
	c.mu.Lock()
	tracker := c.faces
	c.faces = nil
	c.mu.Unlock()

	if tracker == nil {
		return nil
	}

	err := tracker.Close()
	c.centerAll()
	c.broadcastTrackingStatus(false)
	log.Info("face tracking stopped")
	return err
}

// Close stops everything in shutdown order: session, tracking, bus.
func (c *Controller) Close() error {
	if err := c.StopSession(); err != nil {
		log.Warn("session stop on close", "error", err)
	}
	if err := c.StopTracking(); err != nil {
		log.Warn("tracking stop on close", "error", err)
	}
	if c.bus != nil {
		return c.bus.Close()
	}
	return nil
}

// centerAll returns every axis to its rig default.
func (c *Controller) centerAll() {
	c.mu.Lock()
	arb := c.arbiter
	c.mu.Unlock()

	r := arb.Rig()
	for _, name := range r.AxisNames() {
		if name == servo.JawAxis {
			continue
		}
		axis, _ := r.Axis(name)
		arb.Request(name, axis.Default)
	}
}

func (c *Controller) broadcastTrackingStatus(enabled bool) {
	msg, err := protocol.NewMessage(protocol.TypeTrackingStatus, protocol.TrackingStatus{Enabled: enabled})
	if err != nil {
		return
	}
	c.broadcaster.BroadcastEvent(msg)
}

func (c *Controller) broadcastPositions() {
	snapshot := c.Positions()
	angles := make(map[string]float64, len(snapshot))
	for axis, pos := range snapshot {
		angles[axis] = pos.Angle
	}
	msg, err := protocol.NewMessage(protocol.TypePositions, protocol.PositionUpdate{Angles: angles})
	if err != nil {
		return
	}
	c.broadcaster.BroadcastEvent(msg)
}
