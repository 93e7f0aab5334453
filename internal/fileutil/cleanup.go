package fileutil

import (
	"sort"
	"strings"
)

// Change records one applied character substitution.
type Change struct {
	Old   string
	New   string // empty for deletions
	Count int
}

// Replacer applies the configured pre-parse character cleanup: stray
// codepoints the OCR pipeline leaves behind are deleted or mapped before
// the document reaches the parser.
type Replacer struct {
	pairs []replacement
}

type replacement struct {
	old string
	new string
}

// NewReplacer builds a replacer from the configured delete list and
// replacement table. Deletions apply first, then replacements in sorted
// key order, so the change log is stable across runs.
func NewReplacer(deletions []string, replacements map[string]string) *Replacer {
	r := &Replacer{}
	for _, d := range deletions {
		if d != "" {
			r.pairs = append(r.pairs, replacement{old: d})
		}
	}
	keys := make([]string, 0, len(replacements))
	for old := range replacements {
		if old != "" {
			keys = append(keys, old)
		}
	}
	sort.Strings(keys)
	for _, old := range keys {
		r.pairs = append(r.pairs, replacement{old: old, new: replacements[old]})
	}
	return r
}

// Apply rewrites data and returns the change log. A document needing no
// cleanup is returned unchanged with a nil log.
func (r *Replacer) Apply(data []byte) ([]byte, []Change) {
	if len(r.pairs) == 0 {
		return data, nil
	}
	text := string(data)
	var changes []Change
	for _, p := range r.pairs {
		count := strings.Count(text, p.old)
		if count == 0 {
			continue
		}
		text = strings.ReplaceAll(text, p.old, p.new)
		changes = append(changes, Change{Old: p.old, New: p.new, Count: count})
	}
	if changes == nil {
		return data, nil
	}
	return []byte(text), changes
}
