// Package suggest defines the suggestion model and the multi-source
// aggregator that merges learned-dictionary hits with provider candidates
// into one ranked list per abbreviation.
package suggest

import (
	"context"
	"sort"
	"time"

	"github.com/FocuswithJustin/Amanuensis/internal/logging"
)

// Source identifies where a suggestion came from. Declaration order is
// priority order: earlier sources win ties.
type Source int

const (
	// SourceLearnedUser is a human-confirmed dictionary entry.
	SourceLearnedUser Source = iota
	// SourceLearnedMachine is an auto-applied dictionary entry.
	SourceLearnedMachine
	// SourceLexicon is a static lexicon lookup.
	SourceLexicon
	// SourcePatternMatch is a fuzzy or template pattern match.
	SourcePatternMatch
	// SourceLanguageModel is a language-model query.
	SourceLanguageModel
)

// String returns the provenance label for a source.
func (s Source) String() string {
	switch s {
	case SourceLearnedUser:
		return "learned-user"
	case SourceLearnedMachine:
		return "learned-machine"
	case SourceLexicon:
		return "lexicon"
	case SourcePatternMatch:
		return "pattern"
	case SourceLanguageModel:
		return "langmodel"
	default:
		return "unknown"
	}
}

// Default confidences per source, from the tuning the lexicon data was
// collected under.
const (
	ConfidenceLearnedUser    = 1.0
	ConfidenceLearnedMachine = 0.95
	ConfidenceLexicon        = 0.9
	ConfidenceLanguageModel  = 0.8
	ConfidencePattern        = 0.7
)

// Suggestion is one candidate expansion. Immutable once created; the
// aggregator only filters and reorders lists of these.
type Suggestion struct {
	Source     Source
	Text       string
	Confidence float64
}

// Window is the bounded token context around an abbreviation, for
// providers that use it.
type Window struct {
	Before []string
	After  []string
}

// Provider proposes expansions for a normalized key. Implementations live
// outside the core; a failed call degrades the suggestion list and never
// fails the record.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string
	// Suggest proposes expansions for the key. Errors should match
	// errors.ErrProviderUnavailable when the backing source is degraded.
	Suggest(ctx context.Context, key string, win Window) ([]Suggestion, error)
}

// Learned is the aggregator's read view of the learned-dictionary store.
type Learned interface {
	// LookupUser returns a human-confirmed resolution for the key.
	LookupUser(ctx context.Context, key string) (string, bool, error)
	// LookupMachine returns a machine-confirmed resolution for the key.
	LookupMachine(ctx context.Context, key string) (string, bool, error)
}

// Aggregator queries the learned dictionaries and the providers in fixed
// priority order and merges the results.
type Aggregator struct {
	learned   Learned
	providers []Provider
	timeout   time.Duration
}

// DefaultProviderTimeout bounds a single provider call.
const DefaultProviderTimeout = 10 * time.Second

// NewAggregator creates an aggregator over the given store view and
// providers. Providers are queried in the order given.
func NewAggregator(learned Learned, providers []Provider, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &Aggregator{learned: learned, providers: providers, timeout: timeout}
}

// Suggest returns the ranked suggestion list for a normalized key.
//
// A user-confirmed dictionary entry short-circuits every other source: the
// human already decided, so one maximal-confidence suggestion is returned.
// A machine-confirmed entry is included as a high-confidence candidate but
// the other sources are still consulted.
func (a *Aggregator) Suggest(ctx context.Context, key string, win Window) []Suggestion {
	if key == "" {
		return nil
	}

	if a.learned != nil {
		if text, ok, err := a.learned.LookupUser(ctx, key); err != nil {
			logging.DictionaryError("lookup-user", key, err)
		} else if ok {
			return []Suggestion{{Source: SourceLearnedUser, Text: text, Confidence: ConfidenceLearnedUser}}
		}
	}

	var all []Suggestion
	if a.learned != nil {
		if text, ok, err := a.learned.LookupMachine(ctx, key); err != nil {
			logging.DictionaryError("lookup-machine", key, err)
		} else if ok {
			all = append(all, Suggestion{Source: SourceLearnedMachine, Text: text, Confidence: ConfidenceLearnedMachine})
		}
	}

	for _, p := range a.providers {
		pctx, cancel := context.WithTimeout(ctx, a.timeout)
		got, err := p.Suggest(pctx, key, win)
		cancel()
		if err != nil {
			// Degraded source, not a failed record.
			logging.ProviderError(p.Name(), key, err)
			continue
		}
		all = append(all, got...)
	}

	return Merge(all)
}

// Merge collapses duplicate texts (keeping the highest confidence, then the
// highest-priority source) and sorts by confidence descending with source
// priority and text as tie-breaks, so the ranking is deterministic.
func Merge(suggestions []Suggestion) []Suggestion {
	if len(suggestions) == 0 {
		return nil
	}
	best := make(map[string]Suggestion, len(suggestions))
	order := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		if s.Text == "" {
			continue
		}
		prev, seen := best[s.Text]
		if !seen {
			best[s.Text] = s
			order = append(order, s.Text)
			continue
		}
		if s.Confidence > prev.Confidence ||
			(s.Confidence == prev.Confidence && s.Source < prev.Source) {
			best[s.Text] = s
		}
	}
	merged := make([]Suggestion, 0, len(order))
	for _, text := range order {
		merged = append(merged, best[text])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Text < b.Text
	})
	return merged
}
