// Package prompt assembles the single instruction block sent to the
// completion model, and the deterministic special-case table checked in
// front of it.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/smartfactory/agent-service/internal/catalog"
)

// Turn is one prior conversation entry re-serialized into the prompt.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// maxExamplesPerTool caps how many example invocations each tool
// contributes to the prompt.
const maxExamplesPerTool = 3

// Build produces the unified discovery-and-execution prompt: the model is
// asked, in one call, to pick a tool (or none), synthesize parameters, and
// write the user-facing message, answering with a single JSON object.
func Build(userQuery string, tools []catalog.Tool, now time.Time, history []Turn) string {
	var b strings.Builder

	b.WriteString("You are the assistant for a smart-factory monitoring dashboard.\n")
	b.WriteString("Decide whether the user's request needs one of the tools below, and answer ONLY with a JSON object:\n")
	b.WriteString(`{"requiresToolExecution": bool, "selectedTool": "<name or null>", "toolParameters": {...}, "userMessage": "<text shown to the user>"}` + "\n\n")

	b.WriteString("## Available tools\n")
	for _, t := range tools {
		b.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Description))
		for i, ex := range t.Examples {
			if i >= maxExamplesPerTool {
				break
			}
			b.WriteString(fmt.Sprintf("  e.g. %q\n", ex))
		}
	}

	writeFamilyInstructions(&b, tools)

	b.WriteString("\n## Date context\n")
	b.WriteString(fmt.Sprintf("Today is %s (%s). Resolve relative phrases like \"today\", \"yesterday\", \"this month\" (오늘, 어제, 이번 달) into absolute date ranges before filling parameters.\n",
		now.Format("2006-01-02"), now.Weekday()))

	b.WriteString("\n## Device names\n")
	b.WriteString("Map device mentions onto canonical ids:\n")
	for _, row := range deviceAliasRows {
		b.WriteString("- " + row + "\n")
	}
	b.WriteString("Map command words onto on/off: 켜/켜줘/가동/start/run → on; 꺼/꺼줘/정지/중지/stop → off.\n")

	if len(history) > 0 {
		b.WriteString("\n## Recent conversation\n")
		for _, turn := range history {
			b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
		}
	}

	b.WriteString("\n## User request\n")
	b.WriteString(userQuery + "\n")

	return b.String()
}

// deviceAliasRows is the synonym table embedded in the prompt. It mirrors
// the devices package rules; the model sees it so its parameters arrive
// already canonical when possible.
var deviceAliasRows = []string{
	`"컨베이어1", "컨베이어 1번", "conveyor 1" → conveyor_01`,
	`"컨베이어2", "컨베이어 2번", "conveyor 2" → conveyor_02`,
	`"피더1", "피더 1번", "feeder 1" → feeder_01`,
	`"피더2", "피더 2번", "feeder 2" → feeder_02`,
	`"로봇1", "로봇팔", "robot arm" → robot_01`,
}

// writeFamilyInstructions appends conditional instruction blocks for the
// tool-name families actually present in the catalog.
func writeFamilyInstructions(b *strings.Builder, tools []catalog.Tool) {
	has := func(name string) bool {
		for _, t := range tools {
			if t.Name == name {
				return true
			}
		}
		return false
	}
	hasDB := false
	for _, t := range tools {
		if strings.HasPrefix(t.Name, "db_") {
			hasDB = true
			break
		}
	}

	b.WriteString("\n## Tool rules\n")
	if hasDB {
		b.WriteString("- For db_* tools, pass time filters as millisecond epochs and device filters as canonical device ids.\n")
	}
	if has("mqtt_device_control") {
		b.WriteString("- For mqtt_device_control, parameters are {\"device\": <canonical id>, \"command\": \"on\"|\"off\"}.\n")
	}
	if has("device_control") {
		b.WriteString("- device_control is the HTTP fallback; prefer mqtt_device_control when both exist.\n")
	}
	if has("conveyor_failure_stats") {
		b.WriteString("- conveyor_failure_stats takes {\"device\": <conveyor id>} and reads locally cached telemetry.\n")
	}
	if has("device_statistics") {
		b.WriteString("- device_statistics takes {\"device\": <canonical id>} and reads locally cached telemetry.\n")
	}
	b.WriteString("- When no tool applies, set requiresToolExecution=false and selectedTool=null and just answer.\n")
}
