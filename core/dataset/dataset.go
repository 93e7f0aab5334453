// Package dataset exports training data from a TEI corpus: one context
// entry per located abbreviation construct, ground-truth pairs harvested
// from documents that already carry expansions, a deterministic
// train/validation/test split, and a chat-transcript rendering for
// language-model fine-tuning.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/FocuswithJustin/Amanuensis/core/index"
	"github.com/FocuswithJustin/Amanuensis/core/normalize"
	"github.com/FocuswithJustin/Amanuensis/core/tei"
	"github.com/FocuswithJustin/Amanuensis/internal/fileutil"
	"github.com/FocuswithJustin/Amanuensis/internal/logging"
)

// Entry is one dataset row. Unresolved constructs carry the split
// context fields; harvested pair groups carry the combined Context and a
// ground-truth Expansion.
type Entry struct {
	Abbreviation  string `json:"abbreviation"`
	Expansion     string `json:"expansion,omitempty"`
	ID            string `json:"id"`
	ContextBefore string `json:"context_before,omitempty"`
	ContextAfter  string `json:"context_after,omitempty"`
	Context       string `json:"context,omitempty"`
	Source        Source `json:"source"`
}

// Source records where an entry came from.
type Source struct {
	File    string `json:"file"`
	Locator string `json:"locator"`
}

const (
	// DefaultMinContext is the minimum context length, in bytes, on at
	// least one side of the abbreviation for an entry to be usable.
	DefaultMinContext = 20
	// DefaultTrainRatio and DefaultValidationRatio cut the shuffled
	// entries; the remainder is the test set.
	DefaultTrainRatio      = 0.8
	DefaultValidationRatio = 0.1
	// splitSeed fixes the shuffle so repeated exports agree.
	splitSeed = 42
)

// Builder harvests and splits dataset entries.
type Builder struct {
	Locator *tei.Locator
	// Lookup resolves a normalized key to a known expansion, typically
	// backed by the learned store. May be nil.
	Lookup func(key string) (string, bool)

	MinContext      int
	TrainRatio      float64
	ValidationRatio float64

	// Skipped and Duplicates count entries dropped during harvesting
	// and validation, for the end-of-run report.
	Skipped    int
	Duplicates int
}

// NewBuilder returns a builder with the stock thresholds and ratios.
func NewBuilder(locator *tei.Locator) *Builder {
	return &Builder{
		Locator:         locator,
		MinContext:      DefaultMinContext,
		TrainRatio:      DefaultTrainRatio,
		ValidationRatio: DefaultValidationRatio,
	}
}

// Harvest extracts entries from one document: a context entry for every
// located construct, plus ground-truth pairs from <choice> groups that
// already pair an <abbr> with an <expan>. Entries with too little
// context on both sides are dropped.
func (b *Builder) Harvest(file string, data []byte) ([]Entry, error) {
	ix, err := index.Parse(data)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, rec := range b.Locator.Locate(ix) {
		e := Entry{
			Abbreviation:  rec.Raw,
			ID:            rec.ID,
			ContextBefore: strings.Join(rec.Context.Before, " "),
			ContextAfter:  strings.Join(rec.Context.After, " "),
			Source:        Source{File: file, Locator: string(rec.Locator)},
		}
		if e.ID == "" {
			e.ID = file + "#" + string(rec.Locator)
		}
		if b.Lookup != nil {
			if text, ok := b.Lookup(rec.Key); ok {
				e.Expansion = text
			}
		}
		if len(e.ContextBefore) < b.MinContext && len(e.ContextAfter) < b.MinContext {
			logging.Debug("dataset_entry_skipped", "file", file, "abbreviation", rec.Raw)
			b.Skipped++
			continue
		}
		entries = append(entries, e)
	}

	// Resolved pair groups are exactly what the locator skips for
	// idempotence, and they are the only rows with attested expansions.
	choices, err := ix.Query("//choice")
	if err != nil {
		return nil, err
	}
	for _, choice := range choices {
		abbr, expan := pairChildren(choice)
		if abbr == "" || expan == "" {
			continue
		}
		e := Entry{
			Abbreviation: abbr,
			Expansion:    expan,
			Context:      paragraphText(choice),
			Source:       Source{File: file, Locator: string(ix.LocatorFor(choice))},
		}
		e.ID = file + "#" + e.Source.Locator
		if len(e.Context) < b.MinContext {
			b.Skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// pairChildren returns the texts of a choice's abbr and expan children.
func pairChildren(choice *xmlquery.Node) (abbr, expan string) {
	for _, child := range index.ElementChildren(choice) {
		switch child.Data {
		case "abbr":
			abbr = strings.TrimSpace(index.InnerText(child))
		case "expan":
			expan = strings.TrimSpace(index.InnerText(child))
		}
	}
	return abbr, expan
}

// paragraphText returns the whitespace-normalized text of the nearest
// block ancestor, the pair group's own content included.
func paragraphText(n *xmlquery.Node) string {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.Type == xmlquery.ElementNode && (cur.Data == "p" || cur.Data == "l" || cur.Data == "ab") {
			return strings.Join(strings.Fields(index.InnerText(cur)), " ")
		}
	}
	if n.Parent != nil {
		return strings.Join(strings.Fields(index.InnerText(n.Parent)), " ")
	}
	return ""
}

// Validate drops entries without an abbreviation and duplicate IDs,
// keeping the first occurrence of each.
func (b *Builder) Validate(entries []Entry) []Entry {
	seen := make(map[string]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if e.Abbreviation == "" {
			b.Skipped++
			continue
		}
		if seen[e.ID] {
			b.Duplicates++
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}

// Split shuffles the entries with a fixed seed and cuts them by the
// configured ratios. Repeated exports of the same corpus produce the
// same split.
func (b *Builder) Split(entries []Entry) (train, validation, test []Entry) {
	shuffled := append([]Entry(nil), entries...)
	r := rand.New(rand.NewSource(splitSeed))
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := len(shuffled)
	nTrain := int(float64(n) * b.TrainRatio)
	nValidation := int(float64(n) * b.ValidationRatio)
	if nTrain+nValidation > n {
		nValidation = n - nTrain
	}
	return shuffled[:nTrain], shuffled[nTrain : nTrain+nValidation], shuffled[nTrain+nValidation:]
}

// Message is one turn of a chat transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatExample is one fine-tuning example in chat format.
type ChatExample struct {
	Messages []Message `json:"messages"`
}

// instruction is the user-turn template for chat examples.
const instruction = "Expand the abbreviation: %s in context: %s"

// FormatChat renders entries as chat transcripts. The assistant turn
// carries the entry's expansion when one is known and a nasal
// substitution of the marker otherwise.
func FormatChat(entries []Entry, system string) []ChatExample {
	out := make([]ChatExample, 0, len(entries))
	for _, e := range entries {
		context := e.Context
		if context == "" {
			context = strings.TrimSpace(e.ContextBefore + " " + e.Abbreviation + " " + e.ContextAfter)
		}
		answer := e.Expansion
		if answer == "" {
			answer = strings.ReplaceAll(e.Abbreviation, normalize.Marker, "n")
		}

		var msgs []Message
		if system != "" {
			msgs = append(msgs, Message{Role: "system", Content: system})
		}
		msgs = append(msgs,
			Message{Role: "user", Content: fmt.Sprintf(instruction, e.Abbreviation, context)},
			Message{Role: "assistant", Content: answer},
		)
		out = append(out, ChatExample{Messages: msgs})
	}
	return out
}

// WriteJSONL writes one JSON object per line, atomically.
func WriteJSONL[T any](path string, items []T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return fileutil.WriteAtomic(path, buf.Bytes())
}

// WriteJSON writes the items as one indented JSON array, atomically.
func WriteJSON[T any](path string, items []T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, buf.Bytes())
}
