// Package format renders raw tool results into Markdown-ish reports for
// the chat surface. Formatting is pure; nothing here touches the network.
package format

import "strings"

// Format renders rawResult according to the tool family that produced it.
// Content sniffing backs up the tool-name dispatch so a log-shaped payload
// coming from a generic db tool still gets the log treatment.
func Format(toolName, rawResult string) string {
	switch {
	case toolName == "db_aggregate":
		return FormatAggregate(rawResult)
	case strings.HasPrefix(toolName, "db_") || looksLikeLogListing(rawResult):
		if looksLikeLogListing(rawResult) {
			return FormatLogListing(rawResult)
		}
		return FormatGeneric(rawResult)
	default:
		return FormatGeneric(rawResult)
	}
}

func looksLikeLogListing(raw string) bool {
	for _, line := range strings.Split(raw, "\n") {
		if logLinePattern.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}
