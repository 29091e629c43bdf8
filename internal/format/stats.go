package format

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/smartfactory/agent-service/internal/devices"
)

type aggregateRow struct {
	DeviceID     string `json:"_id"`
	TotalErrors  int    `json:"total_errors"`
	ErrorDetails []struct {
		Code  string `json:"code"`
		Count int    `json:"count"`
	} `json:"error_details"`
}

var kindHeadings = map[devices.Kind]string{
	devices.KindConveyor: "Conveyors (컨베이어)",
	devices.KindFeeder:   "Feeders (피더)",
	devices.KindRobot:    "Robots (로봇)",
}

var kindOrder = []devices.Kind{devices.KindConveyor, devices.KindFeeder, devices.KindRobot}

// FormatAggregate renders error-aggregation results. The payload is a JSON
// array of per-device rollups; anything that fails to parse is emitted as
// an opaque report body instead of being dropped.
func FormatAggregate(raw string) string {
	var rows []aggregateRow
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &rows); err != nil {
		return "**Aggregation report**\n\n" + strings.TrimSpace(raw)
	}
	if len(rows) == 0 {
		return "No aggregated errors in the requested range."
	}

	buckets := make(map[devices.Kind][]aggregateRow)
	var other []aggregateRow
	for _, row := range rows {
		if kind, ok := devices.KindOf(row.DeviceID); ok {
			buckets[kind] = append(buckets[kind], row)
		} else {
			other = append(other, row)
		}
	}

	var b strings.Builder
	b.WriteString("**Error statistics by device**\n")
	writeBucket := func(heading string, bucket []aggregateRow) {
		if len(bucket) == 0 {
			return
		}
		sort.Slice(bucket, func(i, j int) bool {
			if bucket[i].TotalErrors != bucket[j].TotalErrors {
				return bucket[i].TotalErrors > bucket[j].TotalErrors
			}
			return bucket[i].DeviceID < bucket[j].DeviceID
		})
		b.WriteString(fmt.Sprintf("\n### %s\n", heading))
		for _, row := range bucket {
			b.WriteString(fmt.Sprintf("- %s: %d errors total\n", row.DeviceID, row.TotalErrors))
			details := append([]struct {
				Code  string `json:"code"`
				Count int    `json:"count"`
			}(nil), row.ErrorDetails...)
			sort.Slice(details, func(i, j int) bool {
				if details[i].Count != details[j].Count {
					return details[i].Count > details[j].Count
				}
				return details[i].Code < details[j].Code
			})
			for _, d := range details {
				b.WriteString(fmt.Sprintf("  - %s: %d\n", d.Code, d.Count))
			}
		}
	}
	for _, kind := range kindOrder {
		writeBucket(kindHeadings[kind], buckets[kind])
	}
	writeBucket("Other devices", other)

	// Global rollup across every device, sorted by count descending.
	global := make(map[string]int)
	total := 0
	for _, row := range rows {
		for _, d := range row.ErrorDetails {
			global[d.Code] += d.Count
			total += d.Count
		}
	}
	if total > 0 {
		type codeCount struct {
			code  string
			count int
		}
		rollup := make([]codeCount, 0, len(global))
		for code, n := range global {
			rollup = append(rollup, codeCount{code, n})
		}
		sort.Slice(rollup, func(i, j int) bool {
			if rollup[i].count != rollup[j].count {
				return rollup[i].count > rollup[j].count
			}
			return rollup[i].code < rollup[j].code
		})
		b.WriteString("\n### All codes\n")
		for _, cc := range rollup {
			b.WriteString(fmt.Sprintf("- %s: %d (%.1f%%)\n", cc.code, cc.count, float64(cc.count)/float64(total)*100))
		}
	}

	return b.String()
}
