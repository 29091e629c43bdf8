package prompt_test

import (
	"strings"
	"testing"
	"time"

	"github.com/smartfactory/agent-service/internal/catalog"
	"github.com/smartfactory/agent-service/internal/prompt"
)

func sampleTools() []catalog.Tool {
	return []catalog.Tool{
		{Name: "db_find", Description: "Query logs", Examples: []string{"a", "b", "c", "d"}},
		{Name: "mqtt_device_control", Description: "Control a device"},
		{Name: "conveyor_failure_stats", Description: "Failure rate"},
	}
}

func TestBuild_ListsEveryToolName(t *testing.T) {
	tools := sampleTools()
	out := prompt.Build("show logs", tools, time.Now(), nil)

	for _, tool := range tools {
		if !strings.Contains(out, tool.Name) {
			t.Errorf("prompt missing tool %s", tool.Name)
		}
	}
}

func TestBuild_CapsExamplesAtThree(t *testing.T) {
	out := prompt.Build("x", sampleTools(), time.Now(), nil)
	if got := strings.Count(out, "e.g. "); got != 3 {
		t.Errorf("example lines = %d, want 3", got)
	}
	if strings.Contains(out, `"d"`) {
		t.Error("fourth example should be dropped")
	}
}

func TestBuild_DateContext(t *testing.T) {
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	out := prompt.Build("show today's logs", sampleTools(), now, nil)
	if !strings.Contains(out, "2026-08-29") {
		t.Error("prompt missing current date")
	}
}

func TestBuild_ConditionalFamilies(t *testing.T) {
	out := prompt.Build("x", sampleTools(), time.Now(), nil)
	if !strings.Contains(out, "For db_* tools") {
		t.Error("db family block missing")
	}
	if !strings.Contains(out, "mqtt_device_control, parameters") {
		t.Error("mqtt control block missing")
	}
	if strings.Contains(out, "device_statistics takes") {
		t.Error("device_statistics block should only appear when the tool exists")
	}

	out = prompt.Build("x", nil, time.Now(), nil)
	if strings.Contains(out, "For db_* tools") {
		t.Error("db family block should be absent with no db tools")
	}
}

func TestBuild_HistoryIncluded(t *testing.T) {
	hist := []prompt.Turn{
		{Role: "user", Content: "컨베이어 상태 어때?"},
		{Role: "assistant", Content: "정상 가동 중입니다."},
	}
	out := prompt.Build("그럼 속도는?", sampleTools(), time.Now(), hist)
	if !strings.Contains(out, "컨베이어 상태 어때?") || !strings.Contains(out, "정상 가동 중입니다.") {
		t.Error("history turns missing from prompt")
	}
}

func TestMatchSpecialCase(t *testing.T) {
	tests := []struct {
		in       string
		wantHit  bool
		wantTool string
	}{
		{"What can you do?", true, ""},
		{"도움말", true, ""},
		{"turn on feeder 1", true, "mqtt_device_control"},
		{"피더 2번 켜줘", true, "mqtt_device_control"},
		{"컨베이어 정지", true, "mqtt_device_control"},
		{"컨베이어 불량률", true, "conveyor_failure_stats"},
		{"show me yesterday's logs", false, ""},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, ok := prompt.MatchSpecialCase(tt.in)
			if ok != tt.wantHit {
				t.Fatalf("MatchSpecialCase(%q) hit = %v, want %v", tt.in, ok, tt.wantHit)
			}
			if ok && d.SelectedTool != tt.wantTool {
				t.Errorf("SelectedTool = %q, want %q", d.SelectedTool, tt.wantTool)
			}
		})
	}
}

func TestMatchSpecialCase_ControlParams(t *testing.T) {
	d, ok := prompt.MatchSpecialCase("피더 2번 켜줘")
	if !ok {
		t.Fatal("expected special-case hit")
	}
	if d.ToolParameters["device"] != "feeder_02" || d.ToolParameters["command"] != "on" {
		t.Errorf("params = %v", d.ToolParameters)
	}
	if !d.RequiresToolExecution {
		t.Error("control special case must require execution")
	}
}
