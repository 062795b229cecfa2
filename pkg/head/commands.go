package head

import (
	"context"
	"fmt"
	"time"

	"github.com/elazer/go-sunny/internal/log"
	"github.com/elazer/go-sunny/pkg/protocol"
	"github.com/elazer/go-sunny/pkg/rig"
	"github.com/elazer/go-sunny/pkg/servo"
)

// handleCommand applies one control command. Settings changes persist
// immediately; calibration moves go straight to the arbiter.
func (c *Controller) handleCommand(ctx context.Context, ctrl protocol.Control) error {
	switch ctrl.Action {
	case protocol.ActionStart:
		return c.StartSession(ctx)

	case protocol.ActionStop:
		return c.StopSession()

	case protocol.ActionMute:
		muted, err := ctrl.Bool()
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.muted = muted
		c.mu.Unlock()
		log.Info("microphone mute", "muted", muted)
		return nil

	case protocol.ActionSetVoice:
		voice, err := ctrl.String()
		if err != nil {
			return err
		}
		return c.store.Set("voice_id", voice)

	case protocol.ActionSetMicrophone:
		index, err := ctrl.Int()
		if err != nil {
			return err
		}
		return c.store.Set("microphone_index", float64(index))

	case protocol.ActionSetSpeaker:
		index, err := ctrl.Int()
		if err != nil {
			return err
		}
		return c.store.Set("speaker_index", float64(index))

	case protocol.ActionSetSpeechSpeed:
		speed, err := ctrl.Float()
		if err != nil {
			return err
		}
		return c.store.Set("speech_speed", speed)

	case protocol.ActionSetJawStop:
		return c.setJawSetting(ctrl, "jaw_stop_angle")

	case protocol.ActionSetJawOpen:
		return c.setJawSetting(ctrl, "jaw_open_angle")

	case protocol.ActionSetJawClose:
		return c.setJawSetting(ctrl, "jaw_close_angle")

	case protocol.ActionSetJawPulse:
		return c.setJawSetting(ctrl, "jaw_pulse_duration")

	case protocol.ActionSetJawMinChange:
		return c.setJawSetting(ctrl, "jaw_servo_min_change")

	case protocol.ActionTestJaw:
		return c.testJaw()

	case protocol.ActionTestEyeServo:
		res := c.arbiterRef().RequestRaw(ctrl.Channel, ctrl.Angle)
		if !res.OK() {
			return fmt.Errorf("head: test servo channel %d: %s", ctrl.Channel, res.Status)
		}
		c.broadcastPositions()
		return nil

	case protocol.ActionSweepEyeServo:
		return c.sweepEyeServo(ctrl)

	case protocol.ActionCenterAllEyes:
		c.centerAll()
		c.broadcastPositions()
		return nil

	case protocol.ActionSaveEyeConfig:
		return c.store.SetEyeServo(ctrl.Channel, ctrl.MinAngle, ctrl.CenterAngle, ctrl.MaxAngle)

	case protocol.ActionLoadEyeConfig:
		_, center, _ := c.store.EyeServo(ctrl.Channel)
		res := c.arbiterRef().RequestRaw(ctrl.Channel, center)
		if !res.OK() {
			return fmt.Errorf("head: load eye config channel %d: %s", ctrl.Channel, res.Status)
		}
		return nil

	case protocol.ActionSetServoConfig:
		name, err := ctrl.String()
		if err != nil {
			return err
		}
		return c.switchRig(name)

	case protocol.ActionSetCameraIndex:
		index, err := ctrl.Int()
		if err != nil {
			return err
		}
		return c.switchCamera(index)

	case protocol.ActionToggleTracking:
		enabled, err := ctrl.Bool()
		if err != nil {
			return err
		}
		if err := c.store.Set("face_tracking_enabled", enabled); err != nil {
			return err
		}
		if enabled {
			return c.StartTracking()
		}
		return c.StopTracking()

	default:
		return fmt.Errorf("head: unknown action %q", ctrl.Action)
	}
}

// setJawSetting persists a jaw parameter and refreshes the arbiter config.
func (c *Controller) setJawSetting(ctrl protocol.Control, key string) error {
	value, err := ctrl.Float()
	if err != nil {
		return err
	}
	if err := c.store.Set(key, value); err != nil {
		return err
	}
	c.arbiterRef().SetConfig(arbiterConfig(c.store))
	return nil
}

// testJawDwell is how long the test pulse holds the jaw open. Long enough
// to see the motion on hardware; jaw_pulse_duration stays a calibration
// setting for continuous-rotation servos and does not apply here.
const testJawDwell = 800 * time.Millisecond

// testJaw pulses the jaw fully open and back closed.
func (c *Controller) testJaw() error {
	arb := c.arbiterRef()
	arb.ForceJaw(100)
	c.sleep(testJawDwell)
	arb.ForceJaw(0)
	return nil
}

// sweepEyeServo walks a channel from its min to max and back to center.
func (c *Controller) sweepEyeServo(ctrl protocol.Control) error {
	lo, hi := ctrl.MinAngle, ctrl.MaxAngle
	if hi <= lo {
		return fmt.Errorf("head: sweep range [%v,%v] invalid", lo, hi)
	}
	center := ctrl.CenterAngle
	if center == 0 {
		center = (lo + hi) / 2
	}

	arb := c.arbiterRef()
	const step = 5.0
	for angle := lo; angle <= hi; angle += step {
		arb.RequestRaw(ctrl.Channel, angle)
		c.sleep(15 * time.Millisecond)
	}
	for angle := hi; angle >= lo; angle -= step {
		arb.RequestRaw(ctrl.Channel, angle)
		c.sleep(15 * time.Millisecond)
	}
	arb.RequestRaw(ctrl.Channel, center)
	c.broadcastPositions()
	return nil
}

// switchRig rebuilds the arbiter around a new rig. Tracking is restarted so
// the face loop maps onto the new axes.
func (c *Controller) switchRig(name string) error {
	r, err := rig.ByName(name)
	if err != nil {
		return err
	}
	if err := c.store.Set("servo_config", r.Key); err != nil {
		return err
	}

	wasTracking := c.Status().TrackingActive
	if wasTracking {
		if err := c.StopTracking(); err != nil {
			log.Warn("tracking stop for rig switch", "error", err)
		}
	}

	arb := servo.NewArbiter(c.bus, r, arbiterConfig(c.store))
	c.mirrorWrites(arb)
	c.mu.Lock()
	c.arbiter = arb
	c.mu.Unlock()

	if wasTracking {
		if err := c.StartTracking(); err != nil {
			return err
		}
	}

	log.Info("rig switched", "rig", r.Key, "layout", r.Name)
	c.broadcastPositions()
	return nil
}

// switchCamera persists the camera index and reopens tracking if running.
func (c *Controller) switchCamera(index int) error {
	if err := c.store.Set("camera_index", float64(index)); err != nil {
		return err
	}

	if !c.Status().TrackingActive {
		return nil
	}
	if err := c.StopTracking(); err != nil {
		log.Warn("tracking stop for camera switch", "error", err)
	}
	return c.StartTracking()
}

func (c *Controller) arbiterRef() *servo.Arbiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arbiter
}
