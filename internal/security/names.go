// Package security sanitises operator-supplied identifiers before they are
// embedded in file names or MQTT topics.
package security

import "strings"

// maxNameLen bounds sanitised names.
const maxNameLen = 128

// SanitizeName keeps ASCII letters, digits, dot, underscore and dash,
// replacing each run of other characters with one underscore. Leading and
// trailing dots and underscores are trimmed. The result is never empty and
// never contains MQTT wildcards or path separators.
func SanitizeName(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
