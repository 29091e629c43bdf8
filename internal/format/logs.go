package format

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// logLinePattern matches the log listing rows served by the db tools:
//
//	time: 1756300000000 | device: "conveyor_01" | code: "SPD"
var logLinePattern = regexp.MustCompile(`time:\s*(\d+)\s*\|\s*device:\s*"([^"]+)"\s*\|\s*code:\s*"([^"]+)"`)

type logCode struct {
	Description string
	IsError     bool
}

// logCodes maps event codes to their meaning. Rows with codes outside this
// table are skipped, not defaulted.
var logCodes = map[string]logCode{
	"SPD": {"speed deviation", true},
	"TMP": {"over-temperature", true},
	"JAM": {"material jam", true},
	"PWR": {"power fluctuation", true},
	"SEN": {"sensor fault", true},
	"STR": {"started", false},
	"STP": {"stopped", false},
}

type logEntry struct {
	at     time.Time
	device string
	code   string
}

// FormatLogListing groups log rows by calendar date, newest date first and
// newest entry first within a date, and appends a most-frequent-error
// summary when any error-classified rows are present.
func FormatLogListing(raw string) string {
	var entries []logEntry
	for _, line := range strings.Split(raw, "\n") {
		m := logLinePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		code := m[3]
		if _, known := logCodes[code]; !known {
			continue
		}
		entries = append(entries, logEntry{
			at:     time.UnixMilli(ms),
			device: m[2],
			code:   code,
		})
	}

	if len(entries) == 0 {
		return "No log entries found."
	}

	byDate := make(map[string][]logEntry)
	for _, e := range entries {
		d := e.at.Format("2006-01-02")
		byDate[d] = append(byDate[d], e)
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	errorCounts := make(map[string]int)
	var b strings.Builder
	b.WriteString(fmt.Sprintf("**Log entries (%d)**\n", len(entries)))
	for _, d := range dates {
		day := byDate[d]
		sort.Slice(day, func(i, j int) bool { return day[i].at.After(day[j].at) })

		b.WriteString(fmt.Sprintf("\n### %s\n", d))
		for _, e := range day {
			info := logCodes[e.code]
			icon := "✅"
			if info.IsError {
				icon = "⚠️"
				errorCounts[e.code]++
			}
			b.WriteString(fmt.Sprintf("%s %s — %s [%s] (%s)\n",
				icon, e.at.Format("15:04:05"), e.device, e.code, info.Description))
		}
	}

	if len(errorCounts) > 0 {
		top, count := topErrorCode(errorCounts)
		b.WriteString(fmt.Sprintf("\nMost frequent error code: **%s** (%s, %d times)\n",
			top, logCodes[top].Description, count))
	}

	return b.String()
}

// topErrorCode picks the highest count; ties break on the lexicographically
// smaller code so output is stable.
func topErrorCode(counts map[string]int) (string, int) {
	best, bestN := "", -1
	for code, n := range counts {
		if n > bestN || (n == bestN && code < best) {
			best, bestN = code, n
		}
	}
	return best, bestN
}
