package prompt

import (
	"strings"

	"github.com/smartfactory/agent-service/internal/interpret"
)

// specialCase is a deterministic shortcut that answers a known phrasing
// directly, bypassing the completion model. Cases are checked in order
// before any prompt is built; the template path runs only when none match.
type specialCase struct {
	match  func(q string) bool
	decide func(q string) interpret.Decision
}

func anyOf(phrases ...string) func(string) bool {
	return func(q string) bool {
		for _, p := range phrases {
			if q == p {
				return true
			}
		}
		return false
	}
}

const capabilitiesMessage = `I can help with the factory floor:
- query device logs and error history (db_find, db_aggregate)
- control devices over MQTT, e.g. "turn on feeder 1"
- report conveyor failure rates and device statistics
Ask in Korean or English.`

var specialCases = []specialCase{
	{
		match: anyOf(
			"what can you do?", "what can you do", "help",
			"뭘 할 수 있어?", "뭘 할 수 있어", "무엇을 할 수 있나요?", "도움말",
		),
		decide: func(string) interpret.Decision {
			return interpret.Decision{UserMessage: capabilitiesMessage}
		},
	},
	{
		match:  anyOf("turn on feeder 1", "피더 1번 켜줘", "피더1 켜줘"),
		decide: deviceControl("feeder_01", "on"),
	},
	{
		match:  anyOf("turn off feeder 1", "피더 1번 꺼줘", "피더1 꺼줘"),
		decide: deviceControl("feeder_01", "off"),
	},
	{
		match:  anyOf("turn on feeder 2", "피더 2번 켜줘", "피더2 켜줘"),
		decide: deviceControl("feeder_02", "on"),
	},
	{
		match:  anyOf("turn off feeder 2", "피더 2번 꺼줘", "피더2 꺼줘"),
		decide: deviceControl("feeder_02", "off"),
	},
	{
		match:  anyOf("turn on the conveyor", "turn on conveyor 1", "컨베이어 켜줘", "컨베이어 가동"),
		decide: deviceControl("conveyor_01", "on"),
	},
	{
		match:  anyOf("turn off the conveyor", "turn off conveyor 1", "컨베이어 꺼줘", "컨베이어 정지"),
		decide: deviceControl("conveyor_01", "off"),
	},
	{
		match: anyOf("conveyor failure rate", "컨베이어 불량률", "컨베이어 불량률 알려줘"),
		decide: func(string) interpret.Decision {
			return interpret.Decision{
				RequiresToolExecution: true,
				SelectedTool:          "conveyor_failure_stats",
				ToolParameters:        map[string]interface{}{"device": "conveyor_01"},
				UserMessage:           "Checking the conveyor failure rate.",
			}
		},
	},
}

func deviceControl(deviceID, command string) func(string) interpret.Decision {
	return func(string) interpret.Decision {
		return interpret.Decision{
			RequiresToolExecution: true,
			SelectedTool:          "mqtt_device_control",
			ToolParameters:        map[string]interface{}{"device": deviceID, "command": command},
			UserMessage:           "On it.",
		}
	}
}

// MatchSpecialCase returns the canned decision for a known phrasing. The
// second return is false when the utterance must go through the model.
func MatchSpecialCase(userQuery string) (interpret.Decision, bool) {
	q := strings.ToLower(strings.TrimSpace(userQuery))
	for _, sc := range specialCases {
		if sc.match(q) {
			return sc.decide(q), true
		}
	}
	return interpret.Decision{}, false
}
