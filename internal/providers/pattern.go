package providers

import (
	"context"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FocuswithJustin/Amanuensis/core/normalize"
	"github.com/FocuswithJustin/Amanuensis/core/suggest"
)

// MaxNearestDistance bounds the Levenshtein search for a known key.
const MaxNearestDistance = 3

// Pattern proposes expansions from template rules over the abbreviation
// marker, plus the resolution of the nearest known lexicon key.
type Pattern struct {
	lexicon *Lexicon
	keys    []string
}

// NewPattern builds the pattern provider over the lexicon's key space.
func NewPattern(lexicon *Lexicon) *Pattern {
	keys := lexicon.Keys()
	sort.Strings(keys)
	return &Pattern{lexicon: lexicon, keys: keys}
}

// Name identifies the provider in logs.
func (p *Pattern) Name() string { return "pattern" }

// Suggest applies the template rules and the nearest-key search. The
// candidate list is deterministic for a given key.
func (p *Pattern) Suggest(_ context.Context, key string, _ suggest.Window) ([]suggest.Suggestion, error) {
	var texts []string
	texts = append(texts, templateExpansions(key)...)
	texts = append(texts, p.nearestKnown(key)...)

	seen := make(map[string]bool, len(texts))
	var out []suggest.Suggestion
	for _, t := range texts {
		if t == "" || t == key || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, suggest.Suggestion{
			Source:     suggest.SourcePatternMatch,
			Text:       t,
			Confidence: suggest.ConfidencePattern,
		})
	}
	return out, nil
}

// templateExpansions applies the conventional marker substitutions: an
// in-word marker is usually a suspended nasal, and the scribal suffix
// sigils carry fixed readings.
func templateExpansions(key string) []string {
	var texts []string
	if i := strings.Index(key, normalize.Marker); i > 0 && i < len(key)-1 {
		prefix, suffix := key[:i], key[i+len(normalize.Marker):]
		texts = append(texts, prefix+"n"+suffix, prefix+"m"+suffix)
	}
	switch {
	case strings.HasSuffix(key, "õ"):
		base := strings.TrimSuffix(key, "õ")
		texts = append(texts, base+"on", base+"om")
	case strings.HasSuffix(key, "b;"):
		texts = append(texts, strings.TrimSuffix(key, "b;")+"bus")
	case strings.HasSuffix(key, "q;"):
		texts = append(texts, strings.TrimSuffix(key, "q;")+"que")
	}
	return texts
}

// nearestKnown returns the resolutions of the closest lexicon key within
// the distance bound. Ties keep the lexically first key.
func (p *Pattern) nearestKnown(key string) []string {
	bestDist := MaxNearestDistance + 1
	bestKey := ""
	for _, k := range p.keys {
		if k == key {
			continue
		}
		d := fuzzy.LevenshteinDistance(key, k)
		if d < bestDist {
			bestDist = d
			bestKey = k
		}
	}
	if bestKey == "" {
		return nil
	}
	texts, _ := p.lexicon.Lookup(bestKey)
	return texts
}
