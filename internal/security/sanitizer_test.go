package security

import "testing"

func TestSanitizeContent(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"plain text", "hello there", 100, "hello there"},
		{"strips tags", "<script>alert(1)</script>hi", 100, "hi"},
		{"strips markup", "<b>bold</b> words", 100, "bold words"},
		{"removes nul bytes", "a\x00b", 100, "ab"},
		{"trims whitespace", "  padded  ", 100, "padded"},
		{"caps length", "abcdefghij", 5, "abcde"},
		{"zero cap means unlimited", "abcdefghij", 0, "abcdefghij"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeContent(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SanitizeContent(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	if got := SanitizeName("pet\nname", 50); got != "pet name" {
		t.Errorf("SanitizeName() = %q, want %q", got, "pet name")
	}
	if got := SanitizeName("<i>Rex</i>", 50); got != "Rex" {
		t.Errorf("SanitizeName() = %q, want Rex", got)
	}
}
