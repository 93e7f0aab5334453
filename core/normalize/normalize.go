// Package normalize derives the canonical lookup key for an abbreviation's
// raw content. Keys are what the learned dictionaries, the ambiguous-key
// set, and the providers are indexed on, so Key must be total and
// deterministic: the same input yields the same key on every run and on
// every worker.
//
// The dollar sign is the canonical abbreviation marker: combining strokes,
// macrons, and tildes over a letter all collapse to "<letter>$", and a key
// that still carries a "$" is recognizably unresolved.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Marker is the canonical abbreviation marker used in normalized keys.
const Marker = "$"

// combining marks that signal an abbreviation stroke over the base letter.
const (
	combiningMacron = '\u0304'
	combiningTilde  = '\u0303'
)

// punctuation stripped from the edges of a key; the marker itself and
// medial punctuation are kept. The semicolon is special: after a letter
// it is the -us/-ue suspension sigil ("omnib;", "atq;") and belongs to
// the key, so it is only stripped from the left edge or when nothing
// letter-like precedes it.
const edgePunct = ",:!?(){}"

// Key derives the canonical lookup key from raw abbreviation content.
// It never fails; unknown input passes through trimmed.
func Key(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, edgePunct+";")
	s = trimRightKeepSigil(s)
	if s == "" {
		return ""
	}

	// Decompose so precomposed letters (ā, õ, ...) expose their
	// combining marks.
	s = norm.NFD.String(s)

	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		switch {
		case r == combiningMacron || r == combiningTilde:
			if prevLetter {
				b.WriteString(Marker)
			}
			prevLetter = false
		case unicode.Is(unicode.Mn, r):
			// Other combining marks carry no abbreviation meaning;
			// recompose them onto the preceding letter.
			b.WriteRune(r)
		default:
			b.WriteRune(r)
			prevLetter = unicode.IsLetter(r)
		}
	}
	s = norm.NFC.String(b.String())

	// Period abbreviations: "Ill.mo" -> "Ill$mo".
	s = foldPeriodSuffix(s)

	return s
}

// trimRightKeepSigil strips edge punctuation from the right, keeping a
// trailing semicolon that directly follows a letter.
func trimRightKeepSigil(s string) string {
	for {
		s = strings.TrimRight(s, edgePunct)
		if !strings.HasSuffix(s, ";") {
			return s
		}
		head := strings.TrimSuffix(s, ";")
		r, _ := utf8.DecodeLastRuneInString(head)
		if unicode.IsLetter(r) {
			return s
		}
		s = head
	}
}

// foldPeriodSuffix rewrites a trailing ".xx" (two lowercase letters) into
// the marker form "$xx".
func foldPeriodSuffix(s string) string {
	i := strings.LastIndexByte(s, '.')
	if i < 1 || i != len(s)-3 {
		return s
	}
	a, b := rune(s[i+1]), rune(s[i+2])
	if a >= 'a' && a <= 'z' && b >= 'a' && b <= 'z' {
		return s[:i] + Marker + s[i+1:]
	}
	return s
}

// Fold returns the case-folded form of a key, used for the lexicon's
// case-insensitive fallback lookup.
func Fold(key string) string {
	return strings.ToLower(key)
}

// MarkerCount reports how many abbreviation markers a key carries.
func MarkerCount(key string) int {
	return strings.Count(key, Marker)
}
