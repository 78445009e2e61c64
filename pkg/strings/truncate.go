package strings

import (
	"strings"
)

// DefaultErrorMaxLen is the width error messages are cut to in build tables.
const DefaultErrorMaxLen = 60

// MinTruncateLen is the smallest maxLen SingleLine honours. Anything lower
// leaves no room for one character plus "...".
const MinTruncateLen = 4

// SingleLine collapses all whitespace runs in s, newlines included, into
// single spaces and cuts the result to at most maxLen runes, ending it with
// "..." when something was removed.
//
// Error messages from the cluster often span several lines; tables and
// Kubernetes Event messages need them on one.
func SingleLine(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
