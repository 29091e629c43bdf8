// Package devices holds the canonical device registry and the lookup rules
// that map free-text device and command phrases onto canonical identifiers.
//
// The rules are deliberately explicit, ordered tables rather than inline
// string checks so their coverage is enumerable and testable.
package devices

import "strings"

// Kind classifies a device by its role on the factory floor.
type Kind string

const (
	KindConveyor Kind = "conveyor"
	KindFeeder   Kind = "feeder"
	KindRobot    Kind = "robot"
)

// Device is one canonical unit in the deployment.
type Device struct {
	ID          string
	Kind        Kind
	DisplayName string
	// Supported is false for units the registry knows by name but which
	// are not installed in this deployment (e.g. a second conveyor line).
	Supported bool
}

// Registry resolves aliases and answers questions about known devices.
type Registry struct {
	devices map[string]Device
	aliases []aliasRule
}

// aliasRule maps an input predicate onto a canonical device id. Rules are
// checked in order; the first match wins.
type aliasRule struct {
	match func(s string) bool
	id    string
}

func equals(variants ...string) func(string) bool {
	return func(s string) bool {
		for _, v := range variants {
			if s == v {
				return true
			}
		}
		return false
	}
}

// NewRegistry builds the registry for the reference deployment: one
// conveyor line, two feeders, one robot arm. conveyor_02 is recognized so
// user queries about it get a definite answer, but it is not installed.
func NewRegistry() *Registry {
	devs := []Device{
		{ID: "conveyor_01", Kind: KindConveyor, DisplayName: "Conveyor 1", Supported: true},
		{ID: "conveyor_02", Kind: KindConveyor, DisplayName: "Conveyor 2", Supported: false},
		{ID: "feeder_01", Kind: KindFeeder, DisplayName: "Feeder 1", Supported: true},
		{ID: "feeder_02", Kind: KindFeeder, DisplayName: "Feeder 2", Supported: true},
		{ID: "robot_01", Kind: KindRobot, DisplayName: "Robot Arm 1", Supported: true},
	}

	r := &Registry{devices: make(map[string]Device, len(devs))}
	for _, d := range devs {
		r.devices[d.ID] = d
	}

	r.aliases = []aliasRule{
		{equals("conveyor_01", "conveyor 1", "conveyor1", "컨베이어1", "컨베이어 1번", "1번 컨베이어", "컨베이어 1"), "conveyor_01"},
		{equals("conveyor_02", "conveyor 2", "conveyor2", "컨베이어2", "컨베이어 2번", "2번 컨베이어", "컨베이어 2"), "conveyor_02"},
		{equals("feeder_01", "feeder 1", "feeder1", "피더1", "피더 1번", "1번 피더", "피더 1"), "feeder_01"},
		{equals("feeder_02", "feeder 2", "feeder2", "피더2", "피더 2번", "2번 피더", "피더 2"), "feeder_02"},
		{equals("robot_01", "robot 1", "robot1", "robot arm", "로봇1", "로봇 1번", "로봇팔", "로봇 1"), "robot_01"},
		// Bare family names resolve to the first unit of the family.
		{equals("conveyor", "컨베이어"), "conveyor_01"},
		{equals("feeder", "피더"), "feeder_01"},
		{equals("robot", "로봇"), "robot_01"},
	}
	return r
}

// Normalize maps a raw device phrase to its canonical id. Unrecognized
// input is passed through trimmed and lowercased, so callers can still
// report what the user actually asked for.
func (r *Registry) Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, rule := range r.aliases {
		if rule.match(s) {
			return rule.id
		}
	}
	return s
}

// Lookup returns the device for a canonical id.
func (r *Registry) Lookup(id string) (Device, bool) {
	d, ok := r.devices[id]
	return d, ok
}

// All returns every known device, supported or not.
func (r *Registry) All() []Device {
	out := make([]Device, 0, len(r.devices))
	for _, id := range []string{"conveyor_01", "conveyor_02", "feeder_01", "feeder_02", "robot_01"} {
		if d, ok := r.devices[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// KindOf buckets an arbitrary device id by its prefix. Used by the result
// formatter to group statistics per device family.
func KindOf(deviceID string) (Kind, bool) {
	switch {
	case strings.HasPrefix(deviceID, "conveyor"):
		return KindConveyor, true
	case strings.HasPrefix(deviceID, "feeder"):
		return KindFeeder, true
	case strings.HasPrefix(deviceID, "robot"):
		return KindRobot, true
	}
	return "", false
}

// commandRule normalizes command phrasings to the canonical on/off verbs.
type commandRule struct {
	match func(s string) bool
	verb  string
}

var commandRules = []commandRule{
	{equals("on", "start", "run", "켜", "켜줘", "켜기", "가동", "작동", "시작"), "on"},
	{equals("off", "stop", "halt", "꺼", "꺼줘", "끄기", "정지", "중지", "멈춰"), "off"},
}

// NormalizeCommand maps a command phrase to "on" or "off". The second
// return is false when the phrase is not a recognized command.
func NormalizeCommand(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, rule := range commandRules {
		if rule.match(s) {
			return rule.verb, true
		}
	}
	return "", false
}
