package head

import (
	"context"
	"time"

	"github.com/elazer/go-sunny/internal/log"
	"github.com/elazer/go-sunny/pkg/facetrack"
	"github.com/elazer/go-sunny/pkg/gaze"
	"github.com/elazer/go-sunny/pkg/mouth"
	"github.com/elazer/go-sunny/pkg/protocol"
	"github.com/elazer/go-sunny/pkg/servo"
)

// jawLoop turns audio chunks into jaw motion. It is the only writer of the
// jaw while the speaking flag is set.
func (c *Controller) jawLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pcm := <-c.chunks:
			c.processChunk(pcm)
		}
	}
}

// processChunk runs one envelope step and writes the jaw.
func (c *Controller) processChunk(pcm []byte) {
	opening, viseme := c.tracker.ProcessBytes(pcm)

	c.mu.Lock()
	c.lastChunk = c.now()
	c.speaking = c.tracker.Speaking()
	spoken := c.lastSpokenText
	arb := c.arbiter
	c.mu.Unlock()

	arb.RequestJawOpening(opening)

	msg, err := protocol.NewMessage(protocol.TypeViseme, protocol.VisemeUpdate{
		Viseme: string(viseme),
		Text:   spoken,
	})
	if err == nil {
		c.broadcaster.BroadcastEvent(msg)
	}
}

// faceLoop runs tracking, gaze writes, blinks, the camera preview, and the
// periodic jaw-closed safety check.
func (c *Controller) faceLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.FaceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.faceTick(c.now()); err != nil {
				log.Warn("face tick failed", "error", err)
				c.sleep(c.cfg.FaceInterval)
			}
		}
	}
}

// faceTick is one iteration of the face loop. Blink dwell is tracked by
// timestamp so a tick never sleeps.
func (c *Controller) faceTick(now time.Time) error {
	c.mu.Lock()
	tracker := c.faces
	arb := c.arbiter
	c.mu.Unlock()

	if tracker != nil {
		result, err := tracker.Track()
		if err != nil {
			return err
		}

		if result.Frame != nil {
			c.broadcaster.SendCameraFrame(result.Frame)
		}

		if result.Found {
			c.writeGaze(arb, result)
			c.mu.Lock()
			c.recentered = false
			c.mu.Unlock()
		} else if result.TimeLost > facetrack.DefaultLossThreshold {
			c.recenterGaze(arb)
		}

		c.blinkTick(arb, now)
	}

	c.safetyTick(arb, now)
	return nil
}

// writeGaze maps the face center to axis angles and writes the whole batch.
func (c *Controller) writeGaze(arb *servo.Arbiter, result facetrack.Result) {
	angles := gaze.Map(result.Center.X, result.Center.Y, result.FrameW, result.FrameH, arb.Rig())
	if angles == nil {
		return
	}
	for axis, angle := range angles {
		arb.Request(axis, angle)
	}

	msg, err := protocol.NewMessage(protocol.TypeEyePosition, protocol.EyePositionUpdate{Angles: angles})
	if err == nil {
		c.broadcaster.BroadcastEvent(msg)
	}
}

// recenterGaze returns the gaze axes to their defaults once per loss.
func (c *Controller) recenterGaze(arb *servo.Arbiter) {
	c.mu.Lock()
	if c.recentered {
		c.mu.Unlock()
		return
	}
	c.recentered = true
	c.mu.Unlock()

	r := arb.Rig()
	for _, name := range append(r.XAxes(), r.YAxes()...) {
		axis, _ := r.Axis(name)
		arb.Request(name, axis.Default)
	}
	log.Debug("face lost, gaze recentered")
}

// blinkTick advances the blink state machine.
func (c *Controller) blinkTick(arb *servo.Arbiter, now time.Time) {
	if c.blink.Blinking() {
		c.mu.Lock()
		started := c.blinkStarted
		c.mu.Unlock()
		if now.Sub(started) >= gaze.BlinkDwell {
			c.blink.Done(now)
			c.setEyelids(arb, false)
		}
		return
	}

	if c.blink.Tick(now) {
		c.mu.Lock()
		c.blinkStarted = now
		c.mu.Unlock()
		c.setEyelids(arb, true)

		msg, err := protocol.NewMessage(protocol.TypeBlink, nil)
		if err == nil {
			c.broadcaster.BroadcastEvent(msg)
		}
	}
}

// setEyelids drives every eyelid axis to its blink angle or back to default.
func (c *Controller) setEyelids(arb *servo.Arbiter, closed bool) {
	r := arb.Rig()
	for _, name := range r.EyelidAxes() {
		axis, _ := r.Axis(name)
		angle := axis.Default
		if closed && axis.Closed != nil {
			angle = *axis.Closed
		}
		arb.Request(name, angle)
	}
}

// safetyTick closes the jaw if it was left open while nothing is speaking.
func (c *Controller) safetyTick(arb *servo.Arbiter, now time.Time) {
	c.mu.Lock()
	due := now.Sub(c.lastSafety) >= c.cfg.SafetyInterval
	if due {
		c.lastSafety = now
	}
	speaking := c.speaking
	c.mu.Unlock()

	if !due || speaking {
		return
	}
	if arb.JawOpening() > 0 {
		arb.ForceJaw(0)
		log.Debug("safety jaw close")
	}
}

// watchdogLoop detects the end of a speech turn by chunk silence and ramps
// the jaw closed.
func (c *Controller) watchdogLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.watchdogTick(c.now())
		}
	}
}

// watchdogTick checks for chunk silence. On timeout it resets the tracker
// and ramps the jaw closed; afterwards it issues deadbanded hold-close
// writes while the session idles.
func (c *Controller) watchdogTick(now time.Time) {
	c.mu.Lock()
	arb := c.arbiter
	if !c.speaking {
		idle := c.sessionActive
		c.mu.Unlock()
		if idle {
			arb.RequestJawOpening(0)
		}
		return
	}
	if now.Sub(c.lastChunk) <= c.cfg.SilenceTimeout {
		c.mu.Unlock()
		return
	}
	c.speaking = false
	c.mu.Unlock()

	log.Debug("speech silence timeout, closing jaw")
	c.tracker.Reset()
	c.rampJawClosed(arb)

	msg, err := protocol.NewMessage(protocol.TypeViseme, protocol.VisemeUpdate{
		Viseme: string(mouth.VisemeClosed),
	})
	if err == nil {
		c.broadcaster.BroadcastEvent(msg)
	}
}

// rampJawClosed steps the jaw from its current opening to fully closed.
func (c *Controller) rampJawClosed(arb *servo.Arbiter) {
	start := arb.JawOpening()
	steps := c.cfg.RampSteps
	for i := 1; i <= steps; i++ {
		pct := start * (1 - float64(i)/float64(steps))
		arb.ForceJaw(pct)
		c.sleep(c.cfg.RampStep)
	}
}

// commandLoop drains the web control queue at a fixed cadence.
func (c *Controller) commandLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CommandInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.drainCommands(ctx)
		}
	}
}

// drainCommands applies every pending command.
func (c *Controller) drainCommands(ctx context.Context) {
	for {
		select {
		case ctrl := <-c.commands:
			if err := c.handleCommand(ctx, ctrl); err != nil {
				log.Warn("command failed", "action", ctrl.Action, "error", err)
			}
		default:
			return
		}
	}
}
