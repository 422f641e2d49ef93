package assemble

import (
	"regexp"
	"strings"
)

const maxFilenameRunes = 200

var illegalFilename = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// Sanitize makes s safe as a filename segment: illegal characters become
// underscores, leading and trailing dots go, whitespace runs collapse to
// one space, and the result is capped at 200 runes. An empty result is
// replaced by "conversation".
func Sanitize(s string) string {
	s = illegalFilename.ReplaceAllString(s, "_")
	s = strings.Trim(s, ".")
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxFilenameRunes {
		s = strings.TrimSpace(string(r[:maxFilenameRunes]))
	}
	if s == "" {
		return "conversation"
	}
	return s
}
