package decode

import "strings"

// Normalize lowercases s and keeps [a-z0-9]; every run of other characters
// (including '_') becomes a single '_', and leading and trailing '_' are
// dropped. This is the row decoder's column/field name normalisation rule.
// Normalize is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := b.String()
	return strings.TrimRight(out, "_")
}
