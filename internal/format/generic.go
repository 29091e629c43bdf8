package format

import (
	"regexp"
	"strings"
)

// countNounPattern matches a bare integer followed by a count noun, e.g.
// "12건", "3 개", "7 entries".
// No trailing \b: Go's word boundary is ASCII-only and never matches after
// a hangul noun.
var countNounPattern = regexp.MustCompile(`\b(\d+)\s*(건|개|items?|entries|rows?)`)

// quotedKeyPattern matches lines shaped like `"key": value`.
var quotedKeyPattern = regexp.MustCompile(`^\s*"[^"]+"\s*:`)

// FormatGeneric applies light Markdown touch-ups to an arbitrary text
// result: counts get bolded, quoted key/value lines become bullets, other
// lines pass through untouched.
func FormatGeneric(raw string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for i, line := range lines {
		line = countNounPattern.ReplaceAllString(line, "**$1 $2**")
		if quotedKeyPattern.MatchString(line) {
			line = "- " + strings.TrimSpace(line)
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}
