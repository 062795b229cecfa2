package protocol

import (
	"encoding/json"
	"testing"
)

func TestMessage_Roundtrip(t *testing.T) {
	msg, err := NewMessage(TypeViseme, VisemeUpdate{Viseme: "WIDE", Text: "hello"})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	data, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	parsed, err := ParseMessage(data)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if parsed.Type != TypeViseme {
		t.Errorf("type = %v", parsed.Type)
	}

	var v VisemeUpdate
	if err := parsed.ParseData(&v); err != nil {
		t.Fatalf("ParseData: %v", err)
	}
	if v.Viseme != "WIDE" || v.Text != "hello" {
		t.Errorf("payload = %+v", v)
	}
}

func TestControl_ValueDecoding(t *testing.T) {
	raw := []byte(`{"type":"control","data":{"action":"set_jaw_open_angle","value":95}}`)
	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}

	var c Control
	if err := msg.ParseData(&c); err != nil {
		t.Fatalf("ParseData: %v", err)
	}
	if c.Action != ActionSetJawOpen {
		t.Errorf("action = %q", c.Action)
	}
	v, err := c.Float()
	if err != nil || v != 95 {
		t.Errorf("value = %v, err = %v", v, err)
	}
}

func TestControl_CalibrationFields(t *testing.T) {
	payload := []byte(`{"action":"sweep_eye_servo","channel":4,"min_angle":30,"max_angle":150,"center_angle":90}`)
	var c Control
	if err := json.Unmarshal(payload, &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.Channel != 4 || c.MinAngle != 30 || c.MaxAngle != 150 || c.CenterAngle != 90 {
		t.Errorf("calibration fields = %+v", c)
	}
}

func TestControl_BoolValue(t *testing.T) {
	var c Control
	json.Unmarshal([]byte(`{"action":"toggle_face_tracking","value":true}`), &c)
	v, err := c.Bool()
	if err != nil || !v {
		t.Errorf("bool value = %v, err = %v", v, err)
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	if _, err := ParseMessage([]byte("{bad")); err == nil {
		t.Error("expected parse error")
	}
}
