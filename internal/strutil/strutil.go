package strutil

import "unicode/utf8"

// TruncateUTF8 returns the longest prefix of s that fits in maxBytes
// without splitting a multi-byte UTF-8 character.
func TruncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// Ellipsize truncates s to maxBytes and appends "..." when anything
// was cut.
func Ellipsize(s string, maxBytes int) string {
	t := TruncateUTF8(s, maxBytes)
	if len(t) < len(s) {
		return t + "..."
	}
	return t
}
