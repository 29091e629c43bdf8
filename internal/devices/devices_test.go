package devices_test

import (
	"testing"

	"github.com/smartfactory/agent-service/internal/devices"
)

func TestRegistry_Normalize(t *testing.T) {
	r := devices.NewRegistry()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"canonical id passes through", "conveyor_01", "conveyor_01"},
		{"english spaced", "Conveyor 1", "conveyor_01"},
		{"korean compact", "컨베이어1", "conveyor_01"},
		{"korean ordinal", "피더 2번", "feeder_02"},
		{"korean reversed ordinal", "1번 컨베이어", "conveyor_01"},
		{"bare family name", "feeder", "feeder_01"},
		{"robot arm phrase", "robot arm", "robot_01"},
		{"whitespace trimmed", "  feeder 1  ", "feeder_01"},
		{"unknown passes through lowered", "Mixer 9", "mixer 9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r := devices.NewRegistry()

	d, ok := r.Lookup("conveyor_02")
	if !ok {
		t.Fatal("conveyor_02 should be recognized")
	}
	if d.Supported {
		t.Error("conveyor_02 should be recognized but unsupported")
	}

	if _, ok := r.Lookup("mixer_01"); ok {
		t.Error("mixer_01 should not be recognized")
	}

	d, ok = r.Lookup("feeder_02")
	if !ok || !d.Supported {
		t.Errorf("feeder_02 = %+v, %v; want supported device", d, ok)
	}
}

func TestNormalizeCommand(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"on", "on", true},
		{"ON", "on", true},
		{"start", "on", true},
		{"켜줘", "on", true},
		{"가동", "on", true},
		{"off", "off", true},
		{"stop", "off", true},
		{"정지", "off", true},
		{"faster", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := devices.NormalizeCommand(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("NormalizeCommand(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestKindOf(t *testing.T) {
	if k, ok := devices.KindOf("conveyor_07"); !ok || k != devices.KindConveyor {
		t.Errorf("KindOf(conveyor_07) = (%v, %v)", k, ok)
	}
	if _, ok := devices.KindOf("press_01"); ok {
		t.Error("press_01 should have no kind")
	}
}
