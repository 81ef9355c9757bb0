package identity

import (
	"strings"
	"unicode"
)

// normalizeTitle reduces a show title to a comparison key: lower case,
// punctuation removed, whitespace collapsed. "The Wire (2002)" and
// "the wire" normalize to the same key.
func normalizeTitle(title string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// TVDBIDFromGUID pulls a numeric TVDB id out of a Plex agent GUID such as
// "com.plexapp.agents.thetvdb://121361/1/1?lang=en". Returns "" when the
// GUID carries no TVDB id.
func TVDBIDFromGUID(guid string) string {
	if !strings.Contains(guid, "thetvdb") {
		return ""
	}
	for _, part := range strings.FieldsFunc(guid, func(r rune) bool {
		return r == '/' || r == '?'
	}) {
		if part != "" && isDigits(part) {
			return part
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
