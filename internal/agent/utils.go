package agent

import "unicode/utf8"

func trimToRunes(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	return string([]rune(raw)[:limit])
}

// excerpt truncates raw to limit runes and marks the cut with "...".
func excerpt(raw string, limit int) string {
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	return trimToRunes(raw, limit) + "..."
}
