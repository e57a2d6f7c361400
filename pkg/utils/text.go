package utils

import "strings"

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
// Used for message previews in log output.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// ShortName lowercases a display name and replaces spaces, for use in
// generated identifiers.
func ShortName(name string, max int) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	runes := []rune(name)
	if len(runes) > max {
		return string(runes[:max])
	}
	return name
}
