// Package tei locates abbreviation constructs in TEI documents and commits
// chosen expansions back into the tree without disturbing anything else.
//
// Three constructs are recognized:
//
//	<abbr>      plain abbreviation
//	<g>         combining-mark glyph reference (char:cmbAbbrStroke, char:abque)
//	<am>        abbreviation marker, usually inside <abbr>, paired with an
//	            <expan> slot once resolved
//
// Expansions are non-destructive: the original markup is kept and paired
// with an <expan> inside a <choice>, so a processed document is a strict
// superset of its input.
package tei

import (
	"github.com/FocuswithJustin/Amanuensis/core/index"
	"github.com/FocuswithJustin/Amanuensis/core/suggest"
)

// Namespace is the TEI namespace URI.
const Namespace = "http://www.tei-c.org/ns/1.0"

// Glyph references recognized as abbreviation markers.
const (
	// RefCombiningStroke marks a combining stroke over the preceding letter.
	RefCombiningStroke = "char:cmbAbbrStroke"
	// RefAbque marks the Latin -que sigil.
	RefAbque = "char:abque"
)

// ConstructKind classifies an abbreviation-bearing construct.
type ConstructKind int

const (
	// PlainAbbreviation is an <abbr> element.
	PlainAbbreviation ConstructKind = iota
	// CombiningGlyph is a <g> glyph reference.
	CombiningGlyph
	// AbbreviationExpansionPair is an <am> marker within an
	// abbreviation/expansion pair group.
	AbbreviationExpansionPair
)

// String returns the construct kind label.
func (k ConstructKind) String() string {
	switch k {
	case PlainAbbreviation:
		return "abbr"
	case CombiningGlyph:
		return "glyph"
	case AbbreviationExpansionPair:
		return "pair"
	default:
		return "unknown"
	}
}

// Status is the terminal-state machine for one abbreviation record:
// New -> AutoApplied | PendingReview | Unresolved, and
// PendingReview -> UserApplied | Unresolved.
type Status int

const (
	// StatusNew is the initial state.
	StatusNew Status = iota
	// StatusAutoApplied means a resolution was committed without review.
	StatusAutoApplied
	// StatusPendingReview means the record awaits a human decision.
	StatusPendingReview
	// StatusUnresolved means no resolution could be chosen.
	StatusUnresolved
	// StatusUserApplied means a reviewer chose the resolution.
	StatusUserApplied
)

// String returns the status label.
func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusAutoApplied:
		return "auto-applied"
	case StatusPendingReview:
		return "pending-review"
	case StatusUnresolved:
		return "unresolved"
	case StatusUserApplied:
		return "user-applied"
	default:
		return "unknown"
	}
}

// Resolved reports whether the record carries a committed resolution,
// machine or human.
func (s Status) Resolved() bool {
	return s == StatusAutoApplied || s == StatusUserApplied
}

// Abbreviation describes one located abbreviation construct. Created by
// the locator; the aggregator fills Suggestions, the gate and applicator
// set Status and Resolution. Records address their node by locator, not
// by live reference, so they can be queued, logged, and replayed.
type Abbreviation struct {
	Locator index.Locator
	Kind    ConstructKind
	ID      string // xml:id of the source element, if present
	Raw     string // raw content, with glyph references mapped to literals
	Key     string // normalized lookup key
	Context suggest.Window

	Suggestions []suggest.Suggestion
	Status      Status
	Resolution  string // chosen expansion once Status is resolved
}
