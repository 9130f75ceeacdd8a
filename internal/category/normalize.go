// Package category maps logical category keys to platform containers using a
// fixed chain of string-matching heuristics over normalized names.
package category

import (
	"strings"
	"unicode"
)

// Normalize lowercases a container or category name and strips the decorative
// glyphs communities put in channel names: pictographs, bullets, currency
// marks, zero-width joiners and variation selectors. Whitespace is collapsed.
// Normalize is idempotent.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '‍': // zero-width joiner
		case r >= '︀' && r <= '️': // variation selectors
		case r == '⃣': // combining enclosing keycap
		case isBullet(r):
		case unicode.IsSymbol(r): // So pictographs, Sc currency, Sk, Sm
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isBullet(r rune) bool {
	switch r {
	case '•', '·', '◦', '▪', '▫', '‣', '∙':
		return true
	}
	return false
}

// Words splits a normalized name into match-relevant words (length > 2).
func Words(normalized string) []string {
	var out []string
	for _, w := range strings.Fields(normalized) {
		if len(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}
