package interpret_test

import (
	"errors"
	"testing"

	"github.com/smartfactory/agent-service/internal/interpret"
)

func TestParse_FencedJSON(t *testing.T) {
	raw := "Here is my decision:\n```json\n{\"requiresToolExecution\":true,\"selectedTool\":\"db_find\",\"toolParameters\":{\"device\":\"conveyor_01\"},\"userMessage\":\"조회하겠습니다.\"}\n```\nLet me know if you need more."

	d, err := interpret.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !d.RequiresToolExecution {
		t.Error("RequiresToolExecution = false, want true")
	}
	if d.SelectedTool != "db_find" {
		t.Errorf("SelectedTool = %q, want db_find", d.SelectedTool)
	}
	if d.ToolParameters["device"] != "conveyor_01" {
		t.Errorf("ToolParameters = %v", d.ToolParameters)
	}
	if d.UserMessage != "조회하겠습니다." {
		t.Errorf("UserMessage = %q", d.UserMessage)
	}
}

func TestParse_BareJSON(t *testing.T) {
	d, err := interpret.Parse(`{"requiresToolExecution":false,"selectedTool":null,"userMessage":"안녕하세요!"}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if d.RequiresToolExecution || d.SelectedTool != "" {
		t.Errorf("decision = %+v, want no tool", d)
	}
	if d.ToolParameters == nil {
		t.Error("ToolParameters should default to an empty map")
	}
}

func TestParse_LiteralNullTool(t *testing.T) {
	d, err := interpret.Parse(`{"requiresToolExecution":true,"selectedTool":"null","userMessage":"hi"}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if d.SelectedTool != "" {
		t.Errorf("SelectedTool = %q, want empty for literal null", d.SelectedTool)
	}
	if d.RequiresToolExecution {
		t.Error("no tool selected must clear RequiresToolExecution")
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := interpret.Parse("the conveyor is running fine {not json")
	if !errors.Is(err, interpret.ErrMalformedResponse) {
		t.Fatalf("Parse() error = %v, want ErrMalformedResponse", err)
	}
}

func TestParse_NonObjectJSON(t *testing.T) {
	// These are valid JSON, so Unmarshal alone would accept them and
	// hand back a zero decision.
	for _, raw := range []string{"null", `"the line is idle"`, "```json\nnull\n```"} {
		if _, err := interpret.Parse(raw); !errors.Is(err, interpret.ErrMalformedResponse) {
			t.Errorf("Parse(%q) error = %v, want ErrMalformedResponse", raw, err)
		}
	}
}

func TestParse_EmptyUserMessageFallsBackToRaw(t *testing.T) {
	raw := `{"requiresToolExecution":false,"userMessage":""}`
	d, err := interpret.Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if d.UserMessage != raw {
		t.Errorf("UserMessage = %q, want full raw text", d.UserMessage)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `  {"a":1}  `, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"anonymous fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence with prose around", "sure!\n```json\n{}\n```\nthanks", "{}"},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := interpret.ExtractJSON(tt.in); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
