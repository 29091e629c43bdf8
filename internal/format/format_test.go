package format_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/smartfactory/agent-service/internal/format"
)

func logLine(at time.Time, device, code string) string {
	return fmt.Sprintf(`time: %d | device: "%s" | code: "%s"`, at.UnixMilli(), device, code)
}

func TestFormatLogListing_GroupsByDate(t *testing.T) {
	d1 := time.Date(2026, 8, 27, 9, 0, 0, 0, time.Local)
	d2 := time.Date(2026, 8, 28, 14, 30, 0, 0, time.Local)
	d2b := time.Date(2026, 8, 28, 16, 45, 0, 0, time.Local)
	d3 := time.Date(2026, 8, 29, 8, 15, 0, 0, time.Local)

	raw := strings.Join([]string{
		logLine(d1, "conveyor_01", "SPD"),
		logLine(d2, "feeder_01", "STR"),
		logLine(d2b, "feeder_01", "JAM"),
		logLine(d3, "robot_01", "SPD"),
	}, "\n")

	out := format.FormatLogListing(raw)

	if got := strings.Count(out, "### "); got != 3 {
		t.Fatalf("date headers = %d, want 3\n%s", got, out)
	}

	// Newest date first.
	i27 := strings.Index(out, "### 2026-08-27")
	i28 := strings.Index(out, "### 2026-08-28")
	i29 := strings.Index(out, "### 2026-08-29")
	if !(i29 < i28 && i28 < i27) {
		t.Errorf("dates not newest-first: 29@%d 28@%d 27@%d\n%s", i29, i28, i27, out)
	}

	// Newest time first within a date: 16:45 JAM before 14:30 STR.
	iJam := strings.Index(out, "16:45:00")
	iStr := strings.Index(out, "14:30:00")
	if !(i28 < iJam && iJam < iStr) {
		t.Errorf("entries within 08-28 not newest-first\n%s", out)
	}

	// SPD appears twice, JAM once: summary names SPD.
	if !strings.Contains(out, "Most frequent error code: **SPD**") {
		t.Errorf("missing most-frequent summary\n%s", out)
	}
}

func TestFormatLogListing_SkipsUnknownCodes(t *testing.T) {
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.Local)
	raw := logLine(at, "conveyor_01", "XYZ") + "\n" + logLine(at, "conveyor_01", "STP")

	out := format.FormatLogListing(raw)
	if strings.Contains(out, "XYZ") {
		t.Errorf("unknown code should be skipped\n%s", out)
	}
	if !strings.Contains(out, "STP") {
		t.Errorf("known code should be kept\n%s", out)
	}
	if strings.Contains(out, "Most frequent error code") {
		t.Errorf("no error rows, no summary\n%s", out)
	}
}

func TestFormatLogListing_Empty(t *testing.T) {
	if got := format.FormatLogListing("nothing here"); got != "No log entries found." {
		t.Errorf("FormatLogListing() = %q", got)
	}
}

func TestFormatAggregate_DeviceBuckets(t *testing.T) {
	raw := `[{"_id":"conveyor_01","total_errors":3,"error_details":[{"code":"SPD","count":2},{"code":"TMP","count":1}]}]`

	out := format.FormatAggregate(raw)

	if !strings.Contains(out, "컨베이어") {
		t.Errorf("conveyor section missing\n%s", out)
	}
	if !strings.Contains(out, "conveyor_01: 3 errors total") {
		t.Errorf("total missing\n%s", out)
	}
	iSPD := strings.Index(out, "SPD: 2")
	iTMP := strings.Index(out, "TMP: 1")
	if iSPD < 0 || iTMP < 0 || iSPD > iTMP {
		t.Errorf("codes not sorted by count descending\n%s", out)
	}
}

func TestFormatAggregate_GlobalRollupPercentages(t *testing.T) {
	raw := `[
		{"_id":"conveyor_01","total_errors":3,"error_details":[{"code":"SPD","count":3}]},
		{"_id":"feeder_02","total_errors":1,"error_details":[{"code":"SPD","count":1}]}
	]`

	out := format.FormatAggregate(raw)
	if !strings.Contains(out, "SPD: 4 (100.0%)") {
		t.Errorf("rollup missing or wrong\n%s", out)
	}
}

func TestFormatAggregate_FallbackOnParseFailure(t *testing.T) {
	raw := "total errors: 7 across 2 devices"
	out := format.FormatAggregate(raw)
	if !strings.Contains(out, raw) {
		t.Errorf("opaque body must be preserved, got\n%s", out)
	}
}

func TestFormatGeneric(t *testing.T) {
	raw := "오늘 조회 결과 12건\n\"device\": \"conveyor_01\"\nplain line"
	out := format.FormatGeneric(raw)

	if !strings.Contains(out, "**12 건**") {
		t.Errorf("count not bolded\n%s", out)
	}
	if !strings.Contains(out, "- \"device\": \"conveyor_01\"") {
		t.Errorf("quoted key line not bulleted\n%s", out)
	}
	if !strings.Contains(out, "plain line") {
		t.Errorf("plain line mangled\n%s", out)
	}
}

func TestFormat_Dispatch(t *testing.T) {
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.Local)
	logRaw := logLine(at, "conveyor_01", "SPD")

	if out := format.Format("db_find", logRaw); !strings.Contains(out, "### ") {
		t.Errorf("db_find with log rows should get log formatting\n%s", out)
	}
	if out := format.Format("db_aggregate", `[{"_id":"robot_01","total_errors":1,"error_details":[{"code":"JAM","count":1}]}]`); !strings.Contains(out, "로봇") {
		t.Errorf("db_aggregate should get aggregate formatting\n%s", out)
	}
	if out := format.Format("device_control", "done"); out != "done" {
		t.Errorf("generic passthrough = %q", out)
	}
	// Statistics tools render their own text before reaching Format, so a
	// stats name arriving here is plain passthrough.
	if out := format.Format("conveyor_failure_stats", "ok"); out != "ok" {
		t.Errorf("stats passthrough = %q", out)
	}
}
