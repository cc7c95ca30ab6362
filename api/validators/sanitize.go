package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims, collapses internal whitespace runs to one space and
// caps the result at maxRunes characters. Cutting on runes keeps accented
// names such as "Martínez" intact.
func SanitizeString(input string, maxRunes int) string {
	cleaned := strings.Join(strings.Fields(input), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	runes := []rune(cleaned)
	return strings.TrimSpace(string(runes[:maxRunes]))
}
