package reconciler

import "regexp"

var sensitivePatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\b(bearer|token)\s+[A-Za-z0-9\-_.=+/]+`), "$1 [REDACTED]"},
	{regexp.MustCompile(`(?i)\b(password|passwd|secret|apikey|api_key|token)=\S+`), "$1=[REDACTED]"},
	{regexp.MustCompile(`(?i)(https?://)[^\s/:@]+:[^\s/@]+@`), "$1[REDACTED]@"},
	{regexp.MustCompile(`[A-Za-z0-9+/_]{48,}={0,2}`), "[REDACTED]"},
}

// SanitizeErrorMessage strips credentials and token-like strings from an
// error message before it is stored on a build and exposed through the API.
func SanitizeErrorMessage(msg string) string {
	for _, p := range sensitivePatterns {
		msg = p.re.ReplaceAllString(msg, p.replacement)
	}
	return msg
}
