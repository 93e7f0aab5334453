// Package providers contains the stock suggestion providers behind the
// aggregator's Provider interface: a static lexicon, a pattern matcher,
// and an optional language-model client.
package providers

import (
	"context"
	"encoding/json"
	"os"

	"github.com/FocuswithJustin/Amanuensis/core/errors"
	"github.com/FocuswithJustin/Amanuensis/core/normalize"
	"github.com/FocuswithJustin/Amanuensis/core/suggest"
)

// builtinLexicon is the early-modern English abbreviation table. Keys are
// normalized forms; multiple expansions mean the form is genuinely
// polyvalent and ranking is left to the merge.
var builtinLexicon = map[string][]string{
	"co$":    {"con"},
	"y$":     {"yt"},
	"w$":     {"with"},
	"q$":     {"que"},
	"m$":     {"men"},
	"p$":     {"per", "par"},
	"the$":   {"them", "then"},
	"wch":    {"which"},
	"wth":    {"with"},
	"ye":     {"the"},
	"yt":     {"that"},
	"sr":     {"sir"},
	"mr":     {"master"},
	"lre":    {"lettre"},
	"ma$tie": {"maiestie"},
	"lo$p":   {"lordship"},
}

// Lexicon serves expansions from the builtin table, optionally merged
// with a JSON dictionary file of the same shape.
type Lexicon struct {
	entries map[string][]string
	folded  map[string][]string
}

// NewLexicon builds the lexicon. path may name a JSON file mapping keys
// to an expansion or a list of expansions; its entries extend and
// override the builtin table. An empty path loads the builtin table only.
func NewLexicon(path string) (*Lexicon, error) {
	entries := make(map[string][]string, len(builtinLexicon))
	for k, v := range builtinLexicon {
		entries[k] = v
	}
	if path != "" {
		extra, err := loadLexiconFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range extra {
			entries[k] = v
		}
	}
	folded := make(map[string][]string, len(entries))
	for k, v := range entries {
		folded[normalize.Fold(k)] = v
	}
	return &Lexicon{entries: entries, folded: folded}, nil
}

func loadLexiconFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading lexicon %s", path)
	}
	// Accept both {"key": "one"} and {"key": ["one", "two"]}.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewValidation("lexicon", "not a JSON object: "+path)
	}
	entries := make(map[string][]string, len(raw))
	for k, v := range raw {
		var one string
		if err := json.Unmarshal(v, &one); err == nil {
			entries[k] = []string{one}
			continue
		}
		var many []string
		if err := json.Unmarshal(v, &many); err != nil {
			return nil, errors.NewValidation("lexicon", "entry for "+k+" is neither string nor list")
		}
		entries[k] = many
	}
	return entries, nil
}

// Name identifies the provider in logs.
func (l *Lexicon) Name() string { return "lexicon" }

// Suggest looks the key up exactly, then case-folded.
func (l *Lexicon) Suggest(_ context.Context, key string, _ suggest.Window) ([]suggest.Suggestion, error) {
	texts, ok := l.entries[key]
	if !ok {
		texts, ok = l.folded[normalize.Fold(key)]
	}
	if !ok {
		return nil, nil
	}
	out := make([]suggest.Suggestion, 0, len(texts))
	for _, t := range texts {
		out = append(out, suggest.Suggestion{
			Source:     suggest.SourceLexicon,
			Text:       t,
			Confidence: suggest.ConfidenceLexicon,
		})
	}
	return out, nil
}

// Keys returns the lexicon's normalized keys, for the pattern provider's
// nearest-key search.
func (l *Lexicon) Keys() []string {
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	return keys
}

// Lookup returns the expansions for a key, exact then case-folded.
func (l *Lexicon) Lookup(key string) ([]string, bool) {
	if texts, ok := l.entries[key]; ok {
		return texts, true
	}
	texts, ok := l.folded[normalize.Fold(key)]
	return texts, ok
}
