// Package textutil holds string helpers shared by the delivery diagnostics.
package textutil

import (
	"strings"
	"unicode/utf8"
)

// TruncatedMarker is appended to strings cut by Truncate.
const TruncatedMarker = "... (truncated)"

// Truncate returns s as valid UTF-8, cut to at most limit bytes on a rune
// boundary and marked when anything was dropped. Invalid byte sequences are
// replaced with U+FFFD before measuring.
func Truncate(s string, limit int) string {
	s = strings.ToValidUTF8(s, string(utf8.RuneError))
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + TruncatedMarker
}
