package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// SanitizeContent strips markup and control characters from peer-supplied
// text and caps its length. Everything off the wire passes through here
// before it reaches storage or the display.
func SanitizeContent(s string, maxLen int) string {
	s = policy.Sanitize(s)
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)

	runes := []rune(s)
	if maxLen > 0 && len(runes) > maxLen {
		s = string(runes[:maxLen])
	}
	return s
}

// SanitizeName cleans a device or pet name. Names are single-line.
func SanitizeName(s string, maxLen int) string {
	s = SanitizeContent(s, maxLen)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.TrimSpace(s)
}
