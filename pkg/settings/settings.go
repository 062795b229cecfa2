// Package settings persists the controller's tunable state as a flat
// key-value JSON document. File contents are merged over built-in defaults
// at load and the whole document is rewritten whenever any key changes.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Defaults returns the built-in settings. Keys the file does not carry keep
// these values.
func Defaults() map[string]any {
	return map[string]any{
		"voice_id":              "matthew",
		"microphone_index":      nil,
		"speaker_index":         nil,
		"speech_speed":          float64(17),
		"jaw_stop_angle":        float64(0),
		"jaw_open_angle":        float64(100),
		"jaw_close_angle":       float64(0),
		"jaw_pulse_duration":    0.08,
		"jaw_servo_min_change":  float64(2),
		"face_tracking_enabled": true,
		"servo_config":          "inmoov",
		"camera_index":          float64(0),
	}
}

// Store is the mutex-guarded settings document bound to a file path.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]any
}

// Load reads the settings file and merges it over the defaults. A missing
// file is not an error: the store starts from defaults and creates the file
// on the first change.
func Load(path string) (*Store, error) {
	s := &Store{
		path:   path,
		values: Defaults(),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}

	var loaded map[string]any
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	for k, v := range loaded {
		s.values[k] = v
	}
	return s, nil
}

// Get returns the raw value for a key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value and rewrites the whole document to disk.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	s.values[key] = value
	err := s.save()
	s.mu.Unlock()
	return err
}

// SetEyeServo persists min/center/max calibration for one channel under the
// nested "eye_servos" key.
func (s *Store) SetEyeServo(channel int, min, center, max float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, _ := s.values["eye_servos"].(map[string]any)
	if all == nil {
		all = make(map[string]any)
	}
	all[fmt.Sprint(channel)] = map[string]any{
		"min_angle":    min,
		"center_angle": center,
		"max_angle":    max,
	}
	s.values["eye_servos"] = all
	return s.save()
}

// EyeServo returns the calibration for one channel, falling back to the full
// 0-180 range centered at 90.
func (s *Store) EyeServo(channel int) (min, center, max float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	min, center, max = 0, 90, 180
	all, _ := s.values["eye_servos"].(map[string]any)
	cfg, _ := all[fmt.Sprint(channel)].(map[string]any)
	if cfg == nil {
		return min, center, max
	}
	if v, ok := cfg["min_angle"].(float64); ok {
		min = v
	}
	if v, ok := cfg["center_angle"].(float64); ok {
		center = v
	}
	if v, ok := cfg["max_angle"].(float64); ok {
		max = v
	}
	return min, center, max
}

// Float returns a numeric setting, or def when absent or the wrong type.
func (s *Store) Float(key string, def float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key].(float64); ok {
		return v
	}
	return def
}

// Int returns an integer setting. JSON numbers load as float64, so both
// representations are accepted.
func (s *Store) Int(key string, def int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch v := s.values[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// Bool returns a boolean setting, or def when absent.
func (s *Store) Bool(key string, def bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key].(bool); ok {
		return v
	}
	return def
}

// String returns a string setting, or def when absent.
func (s *Store) String(key string, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key].(string); ok {
		return v
	}
	return def
}

// All returns a copy of the current document.
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// save writes the full document. Callers hold s.mu.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("settings: create directory: %w", err)
	}

	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", s.path, err)
	}
	return nil
}
