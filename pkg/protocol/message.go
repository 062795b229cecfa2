// Package protocol defines the websocket message types exchanged with the
// browser visualizer: outbound animation events and the inbound generic
// control message.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of websocket message.
type MessageType string

const (
	// Controller → visualizer events
	TypeViseme         MessageType = "viseme_update"       // mouth shape + spoken text
	TypeEyePosition    MessageType = "eye_position_update" // per-axis angles
	TypeBlink          MessageType = "blink_eyes"          // transient blink trigger
	TypeTrackingStatus MessageType = "face_tracking_status"
	TypePositions      MessageType = "position_update" // full actuator table

	// Visualizer → controller
	TypeControl MessageType = "control"
)

// Message is the envelope for all websocket messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage wraps a payload in an envelope with the current timestamp.
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("protocol: marshal %s payload: %w", msgType, err)
		}
	}
	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
	}, nil
}

// ParseData unmarshals the payload into v.
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded envelope.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage decodes an envelope from raw bytes.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("protocol: parse message: %w", err)
	}
	return &msg, nil
}

// VisemeUpdate carries the current mouth shape and the text being spoken.
type VisemeUpdate struct {
	Viseme string `json:"viseme"`
	Text   string `json:"text,omitempty"`
}

// EyePositionUpdate carries one batch of axis angles from a tracking tick.
type EyePositionUpdate struct {
	Angles map[string]float64 `json:"angles"`
}

// TrackingStatus reports whether face tracking is running.
type TrackingStatus struct {
	Enabled bool `json:"enabled"`
}

// PositionUpdate carries the full actuator position table.
type PositionUpdate struct {
	Angles map[string]float64 `json:"angles"`
}

// Control is the single generic inbound command. Action selects the
// operation; Value carries its argument. Calibration actions additionally
// use the channel and angle fields.
type Control struct {
	Action string          `json:"action"`
	Value  json.RawMessage `json:"value,omitempty"`

	Channel     int     `json:"channel,omitempty"`
	Angle       float64 `json:"angle,omitempty"`
	MinAngle    float64 `json:"min_angle,omitempty"`
	MaxAngle    float64 `json:"max_angle,omitempty"`
	CenterAngle float64 `json:"center_angle,omitempty"`
}

// Control action names accepted by the command queue.
const (
	ActionStart           = "start"
	ActionStop            = "stop"
	ActionMute            = "mute"
	ActionSetVoice        = "set_voice"
	ActionSetMicrophone   = "set_microphone"
	ActionSetSpeaker      = "set_speaker"
	ActionSetSpeechSpeed  = "set_speech_speed"
	ActionSetJawStop      = "set_jaw_stop_angle"
	ActionSetJawOpen      = "set_jaw_open_angle"
	ActionSetJawClose     = "set_jaw_close_angle"
	ActionSetJawPulse     = "set_jaw_pulse_duration"
	ActionSetJawMinChange = "set_jaw_min_change"
	ActionTestJaw         = "test_jaw"
	ActionTestEyeServo    = "test_eye_servo"
	ActionSweepEyeServo   = "sweep_eye_servo"
	ActionCenterAllEyes   = "center_all_eyes"
	ActionSaveEyeConfig   = "save_eye_config"
	ActionLoadEyeConfig   = "load_eye_config"
	ActionSetServoConfig  = "set_servo_config"
	ActionSetCameraIndex  = "set_camera_index"
	ActionToggleTracking  = "toggle_face_tracking"
)

// Bool decodes the control value as a boolean.
func (c Control) Bool() (bool, error) {
	var v bool
	err := json.Unmarshal(c.Value, &v)
	return v, err
}

// Float decodes the control value as a number.
func (c Control) Float() (float64, error) {
	var v float64
	err := json.Unmarshal(c.Value, &v)
	return v, err
}

// String decodes the control value as a string.
func (c Control) String() (string, error) {
	var v string
	err := json.Unmarshal(c.Value, &v)
	return v, err
}

// Int decodes the control value as an integer.
func (c Control) Int() (int, error) {
	f, err := c.Float()
	return int(f), err
}
