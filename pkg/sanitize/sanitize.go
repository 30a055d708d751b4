package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxDisplayNameLength bounds display names in runes
const MaxDisplayNameLength = 64

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// DisplayName cleans a user-supplied display name before it is broadcast to
// peers or embedded in a media token. It may return "".
func DisplayName(input string) string {
	input = StripHTML(input)
	input = StripControlCharacters(input)
	input = strings.TrimSpace(input)

	runes := []rune(input)
	if len(runes) > MaxDisplayNameLength {
		input = strings.TrimSpace(string(runes[:MaxDisplayNameLength]))
	}
	return input
}

// StripHTML removes HTML tags
func StripHTML(input string) string {
	return htmlTagRegex.ReplaceAllString(input, "")
}

// StripControlCharacters removes control characters from string
func StripControlCharacters(input string) string {
	var result strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
