package rig

import (
	"errors"
	"testing"
)

func TestCatalog_Validates(t *testing.T) {
	for _, name := range Names() {
		r, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if err := r.Validate(); err != nil {
			t.Errorf("rig %q failed validation: %v", name, err)
		}
	}
}

func TestCatalog_KeyRoundTrips(t *testing.T) {
	for _, name := range Names() {
		r, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		if r.Key != name {
			t.Errorf("rig %q has key %q, want the selection name", name, r.Key)
		}
		// A persisted key must select the same rig after a restart.
		back, err := ByName(r.Key)
		if err != nil {
			t.Errorf("ByName(%q) after round-trip: %v", r.Key, err)
		}
		if back.Name != r.Name {
			t.Errorf("ByName(%q) = %q, want %q", r.Key, back.Name, r.Name)
		}
	}
}

func TestByName_UnknownFallsBack(t *testing.T) {
	r, err := ByName("hexapod")
	if !errors.Is(err, ErrUnknownRig) {
		t.Errorf("expected ErrUnknownRig, got %v", err)
	}
	if r.Name != InMoov().Name {
		t.Errorf("expected fallback to InMoov, got %q", r.Name)
	}
}

func TestByName_CaseInsensitive(t *testing.T) {
	r, err := ByName("InMoov")
	if err != nil {
		t.Fatalf("ByName: %v", err)
	}
	if r.Name != "InMoov Head" {
		t.Errorf("expected InMoov Head, got %q", r.Name)
	}
}

func TestInMoov_ChannelLayout(t *testing.T) {
	r := InMoov()

	if got := len(r.Axes); got != 8 {
		t.Fatalf("expected 8 axes, got %d", got)
	}

	chans := r.Channels()
	for i, ch := range chans {
		if ch != i {
			t.Errorf("expected channels 0-7 contiguous, got %v", chans)
			break
		}
	}

	// Eyelid set and closed positions
	lids := r.EyelidAxes()
	if len(lids) != 4 {
		t.Fatalf("expected 4 eyelid axes, got %v", lids)
	}
	if c := *r.Axes["left_upper_lid"].Closed; c != 180 {
		t.Errorf("left_upper_lid closed = %v, want 180", c)
	}
	if c := *r.Axes["right_upper_lid"].Closed; c != 10 {
		t.Errorf("right_upper_lid closed = %v, want 10", c)
	}
}

func TestOriginal_SharedAxes(t *testing.T) {
	r := Original()

	if got := len(r.Axes); got != 6 {
		t.Fatalf("expected 6 axes, got %d", got)
	}
	if got := r.XAxes(); len(got) != 1 || got[0] != "eyes_x" {
		t.Errorf("XAxes = %v, want [eyes_x]", got)
	}
	if got := r.YAxes(); len(got) != 1 || got[0] != "eyes_y" {
		t.Errorf("YAxes = %v, want [eyes_y]", got)
	}
	if r.Axes["eyes_x"].Default != 100 || r.Axes["eyes_y"].Default != 80 {
		t.Errorf("unexpected shared-axis defaults: x=%v y=%v",
			r.Axes["eyes_x"].Default, r.Axes["eyes_y"].Default)
	}
}

func TestSimple_NoEyelids(t *testing.T) {
	r := Simple()
	if len(r.EyelidAxes()) != 0 {
		t.Errorf("simple rig should have no eyelids, got %v", r.EyelidAxes())
	}
	if len(r.Axes) != 2 {
		t.Errorf("expected 2 axes, got %d", len(r.Axes))
	}
}

func TestValidate_DuplicateChannel(t *testing.T) {
	r := Rig{
		Name: "broken",
		Axes: map[string]Axis{
			"a": {Channel: 0, Min: 0, Max: 180, Default: 90},
			"b": {Channel: 0, Min: 0, Max: 180, Default: 90},
		},
	}
	if err := r.Validate(); err == nil {
		t.Error("expected duplicate channel to fail validation")
	}
}

func TestValidate_DefaultOutOfRange(t *testing.T) {
	r := Rig{
		Name: "broken",
		Axes: map[string]Axis{
			"a": {Channel: 0, Min: 50, Max: 100, Default: 10},
		},
	}
	if err := r.Validate(); err == nil {
		t.Error("expected out-of-range default to fail validation")
	}
}

func TestAxis_Clamp(t *testing.T) {
	a := Axis{Min: 57, Max: 145, Default: 90}

	cases := []struct {
		in, want float64
	}{
		{0, 57},
		{57, 57},
		{90, 90},
		{145, 145},
		{200, 145},
	}
	for _, tc := range cases {
		if got := a.Clamp(tc.in); got != tc.want {
			t.Errorf("Clamp(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
