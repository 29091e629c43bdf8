// Package interpret parses the completion model's reply into a structured
// tool decision.
package interpret

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse indicates the model reply could not be parsed as the
// expected JSON document. Callers must not guess intent from broken JSON.
var ErrMalformedResponse = errors.New("malformed model response")

// Decision is the structured outcome of one model reply.
type Decision struct {
	RequiresToolExecution bool
	SelectedTool          string
	ToolParameters        map[string]interface{}
	// UserMessage is shown verbatim to the user.
	UserMessage string
}

type rawDecision struct {
	RequiresToolExecution bool                   `json:"requiresToolExecution"`
	SelectedTool          *string                `json:"selectedTool"`
	ToolParameters        map[string]interface{} `json:"toolParameters"`
	UserMessage           string                 `json:"userMessage"`
}

// Parse extracts the decision from raw model output. Code-fenced replies
// have only the fenced interior parsed; surrounding prose is ignored.
func Parse(raw string) (Decision, error) {
	body := ExtractJSON(raw)

	// A bare literal like `null` or a quoted string unmarshals cleanly
	// into the zero struct; only an object counts as a decision.
	if !strings.HasPrefix(body, "{") {
		return Decision{}, fmt.Errorf("%w: not a JSON object", ErrMalformedResponse)
	}

	var rd rawDecision
	if err := json.Unmarshal([]byte(body), &rd); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	d := Decision{
		RequiresToolExecution: rd.RequiresToolExecution,
		ToolParameters:        rd.ToolParameters,
		UserMessage:           strings.TrimSpace(rd.UserMessage),
	}
	if d.ToolParameters == nil {
		d.ToolParameters = map[string]interface{}{}
	}
	if rd.SelectedTool != nil {
		tool := strings.TrimSpace(*rd.SelectedTool)
		// Some models emit the literal string "null" for no tool.
		if tool != "" && !strings.EqualFold(tool, "null") {
			d.SelectedTool = tool
		}
	}
	if d.SelectedTool == "" {
		d.RequiresToolExecution = false
	}
	// Never hand the user an empty string; fall back to the whole reply.
	if d.UserMessage == "" {
		d.UserMessage = strings.TrimSpace(raw)
	}
	return d, nil
}

// ExtractJSON returns the interior of the first ```json or ``` fenced block
// when one exists, otherwise the trimmed input.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	// Skip an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || strings.EqualFold(tag, "json") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
