// ABOUTME: Meaningful-content check for draft autosave gating.
// ABOUTME: Strips leading markdown scaffolding before counting runes.

package journal

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// structuralRunes are markdown scaffolding characters that a fresh note
// accumulates before any real prose: headings, list bullets, quotes,
// fences, emphasis markers.
const structuralRunes = "#*->+`_~"

// Meaningful reports whether text carries enough content to justify a
// persisted write. The leading run of structural characters, whitespace,
// and ordered-list markers ("1.", "12.") is stripped; the residue must
// hold at least min runes.
func Meaningful(text string, min int) bool {
	return utf8.RuneCountInString(stripLeadingStructure(text)) >= min
}

// stripLeadingStructure removes the leading run of markdown scaffolding.
func stripLeadingStructure(text string) string {
	rest := text
	for len(rest) > 0 {
		r, size := utf8.DecodeRuneInString(rest)
		if unicode.IsSpace(r) || strings.ContainsRune(structuralRunes, r) {
			rest = rest[size:]
			continue
		}
		if unicode.IsDigit(r) {
			// Ordered-list marker: digits followed by a dot.
			if marker, ok := listMarker(rest); ok {
				rest = rest[marker:]
				continue
			}
		}
		break
	}
	return rest
}

// listMarker returns the byte length of a leading "N." run, if present.
func listMarker(s string) (int, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && s[i] == '.' {
		return i + 1, true
	}
	return 0, false
}
