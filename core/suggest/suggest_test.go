package suggest

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeLearned serves canned dictionary entries.
type fakeLearned struct {
	user    map[string]string
	machine map[string]string
	err     error
}

func (f *fakeLearned) LookupUser(_ context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	text, ok := f.user[key]
	return text, ok, nil
}

func (f *fakeLearned) LookupMachine(_ context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	text, ok := f.machine[key]
	return text, ok, nil
}

// fakeProvider returns fixed suggestions or a fixed error, and counts calls.
type fakeProvider struct {
	name  string
	out   []Suggestion
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Suggest(context.Context, string, Window) ([]Suggestion, error) {
	f.calls++
	return f.out, f.err
}

// TestSuggestUserShortCircuit verifies a user-confirmed entry suppresses
// every other source and returns exactly one maximal suggestion.
func TestSuggestUserShortCircuit(t *testing.T) {
	learned := &fakeLearned{
		user:    map[string]string{"y$": "yt"},
		machine: map[string]string{"y$": "ye"},
	}
	provider := &fakeProvider{name: "lexicon", out: []Suggestion{
		{Source: SourceLexicon, Text: "the", Confidence: ConfidenceLexicon},
	}}
	agg := NewAggregator(learned, []Provider{provider}, time.Second)

	got := agg.Suggest(context.Background(), "y$", Window{})
	if len(got) != 1 {
		t.Fatalf("expected 1 suggestion, got %d: %v", len(got), got)
	}
	if got[0].Source != SourceLearnedUser || got[0].Text != "yt" || got[0].Confidence != ConfidenceLearnedUser {
		t.Errorf("suggestion = %+v", got[0])
	}
	if provider.calls != 0 {
		t.Errorf("provider consulted %d times despite user hit", provider.calls)
	}
}

// TestSuggestMachineEntryRanksFirst verifies a machine-confirmed entry is
// merged ahead of lower-confidence provider candidates without
// suppressing them.
func TestSuggestMachineEntryRanksFirst(t *testing.T) {
	learned := &fakeLearned{machine: map[string]string{"co$": "con"}}
	provider := &fakeProvider{name: "pattern", out: []Suggestion{
		{Source: SourcePatternMatch, Text: "com", Confidence: ConfidencePattern},
	}}
	agg := NewAggregator(learned, []Provider{provider}, time.Second)

	got := agg.Suggest(context.Background(), "co$", Window{})
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %d: %v", len(got), got)
	}
	if got[0].Source != SourceLearnedMachine || got[0].Text != "con" {
		t.Errorf("first = %+v, want learned-machine con", got[0])
	}
	if got[1].Source != SourcePatternMatch || got[1].Text != "com" {
		t.Errorf("second = %+v, want pattern com", got[1])
	}
}

// TestSuggestProviderFailureDegrades verifies a failing provider is
// skipped and the remaining sources still contribute.
func TestSuggestProviderFailureDegrades(t *testing.T) {
	broken := &fakeProvider{name: "langmodel", err: errors.New("connection refused")}
	working := &fakeProvider{name: "lexicon", out: []Suggestion{
		{Source: SourceLexicon, Text: "which", Confidence: ConfidenceLexicon},
	}}
	agg := NewAggregator(nil, []Provider{broken, working}, time.Second)

	got := agg.Suggest(context.Background(), "wch", Window{})
	if len(got) != 1 || got[0].Text != "which" {
		t.Fatalf("suggestions = %v, want single lexicon hit", got)
	}
}

// TestSuggestEmptyKey verifies the aggregator refuses an empty key
// without consulting anything.
func TestSuggestEmptyKey(t *testing.T) {
	provider := &fakeProvider{name: "lexicon"}
	agg := NewAggregator(nil, []Provider{provider}, time.Second)
	if got := agg.Suggest(context.Background(), "", Window{}); got != nil {
		t.Errorf("suggestions = %v, want nil", got)
	}
	if provider.calls != 0 {
		t.Errorf("provider consulted for empty key")
	}
}

// TestMergeDeterministic verifies the merge invariants: duplicates keep
// the strongest claim and the output order is total.
func TestMergeDeterministic(t *testing.T) {
	in := []Suggestion{
		{Source: SourceLanguageModel, Text: "per", Confidence: ConfidenceLanguageModel},
		{Source: SourceLexicon, Text: "per", Confidence: ConfidenceLexicon},
		{Source: SourceLexicon, Text: "par", Confidence: ConfidenceLexicon},
		{Source: SourcePatternMatch, Text: "pre", Confidence: ConfidencePattern},
		{Source: SourcePatternMatch, Text: "", Confidence: ConfidencePattern},
	}
	got := Merge(in)
	want := []Suggestion{
		{Source: SourceLexicon, Text: "par", Confidence: ConfidenceLexicon},
		{Source: SourceLexicon, Text: "per", Confidence: ConfidenceLexicon},
		{Source: SourcePatternMatch, Text: "pre", Confidence: ConfidencePattern},
	}
	if len(got) != len(want) {
		t.Fatalf("merged %d suggestions, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("merged[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	// Same multiset, different arrival order, same ranking.
	shuffled := []Suggestion{in[3], in[1], in[4], in[2], in[0]}
	again := Merge(shuffled)
	for i := range got {
		if again[i] != got[i] {
			t.Errorf("order-dependent merge at %d: %+v vs %+v", i, again[i], got[i])
		}
	}
}

// TestMergeSamePriorityTieBreak verifies equal-confidence duplicates keep
// the higher-priority source.
func TestMergeSamePriorityTieBreak(t *testing.T) {
	got := Merge([]Suggestion{
		{Source: SourcePatternMatch, Text: "que", Confidence: 0.9},
		{Source: SourceLexicon, Text: "que", Confidence: 0.9},
	})
	if len(got) != 1 || got[0].Source != SourceLexicon {
		t.Errorf("merged = %v, want single lexicon entry", got)
	}
}
