package logutil

import "strings"

// maxLogField bounds a single user-controlled value in a log line.
const maxLogField = 256

// SanitizeForLog flattens a user- or backend-provided value for a single log
// line: line breaks and tabs become spaces, other control characters are
// dropped and the result is cut to maxLogField runes.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	n := 0
	for _, r := range s {
		if n == maxLogField {
			b.WriteString("...")
			break
		}
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 32 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
		n++
	}
	return b.String()
}
