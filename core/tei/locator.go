package tei

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/FocuswithJustin/Amanuensis/core/index"
	"github.com/FocuswithJustin/Amanuensis/core/normalize"
	"github.com/FocuswithJustin/Amanuensis/core/suggest"
)

// Locator finds abbreviation constructs in a structural index.
type Locator struct {
	// ContextSize bounds the token window captured either side of a
	// construct for context-aware providers.
	ContextSize int
}

// DefaultContextSize is the default token window radius.
const DefaultContextSize = 20

// NewLocator creates a locator with the given context window radius.
func NewLocator(contextSize int) *Locator {
	if contextSize <= 0 {
		contextSize = DefaultContextSize
	}
	return &Locator{ContextSize: contextSize}
}

// Locate walks the document in reading order and returns one record per
// unresolved abbreviation construct. Constructs that already carry an
// expansion are skipped, which makes a second pass over processed output a
// no-op. A document without abbreviation markup yields an empty slice.
func (l *Locator) Locate(ix *index.Index) []*Abbreviation {
	var records []*Abbreviation
	l.walk(ix, ix.Doc(), &records)
	return records
}

func (l *Locator) walk(ix *index.Index, n *xmlquery.Node, records *[]*Abbreviation) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		switch child.Data {
		case "expan":
			// Expansion placeholders are never re-mined for abbreviations.
			continue
		case "abbr":
			if !alreadyExpanded(child) {
				*records = append(*records, l.record(ix, child, PlainAbbreviation, abbrRaw(child)))
			}
			// Descend: an <am> inside the <abbr> is its own construct.
			l.walk(ix, child, records)
			continue
		case "g":
			ref := attr(child, "ref")
			// A glyph inside <am> or <abbr> is already covered by the
			// enclosing construct's record.
			if (ref == RefCombiningStroke || ref == RefAbque) &&
				!hasAncestor(child, "am") && !hasAncestor(child, "abbr") &&
				!alreadyExpanded(child) {
				*records = append(*records, l.record(ix, child, CombiningGlyph, glyphRaw(child)))
			}
			continue
		case "am":
			if !alreadyExpanded(child) {
				*records = append(*records, l.record(ix, child, AbbreviationExpansionPair, markerRaw(child)))
			}
			continue
		}
		l.walk(ix, child, records)
	}
}

func (l *Locator) record(ix *index.Index, n *xmlquery.Node, kind ConstructKind, raw string) *Abbreviation {
	return &Abbreviation{
		Locator: ix.LocatorFor(n),
		Kind:    kind,
		ID:      elementID(n),
		Raw:     raw,
		Key:     normalize.Key(raw),
		Context: contextWindow(n, l.ContextSize),
		Status:  StatusNew,
	}
}

// alreadyExpanded reports whether a construct has an expansion already:
// a <choice> parent with an <expan> sibling, an <am> whose <abbr> parent
// sits in such a <choice>, or a directly following <expan> sibling.
func alreadyExpanded(n *xmlquery.Node) bool {
	parent := n.Parent
	if parent != nil && parent.Data == "choice" && hasExpanChild(parent, n) {
		return true
	}
	if n.Data == "am" && parent != nil && parent.Data == "abbr" {
		if choice := parent.Parent; choice != nil && choice.Data == "choice" && hasExpanChild(choice, parent) {
			return true
		}
	}
	if next := index.NextElement(n); next != nil && next.Data == "expan" {
		return true
	}
	return false
}

func hasExpanChild(parent, except *xmlquery.Node) bool {
	for child := parent.FirstChild; child != nil; child = child.NextSibling {
		if child != except && child.Type == xmlquery.ElementNode && child.Data == "expan" {
			return true
		}
	}
	return false
}

func hasAncestor(n *xmlquery.Node, name string) bool {
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.Type == xmlquery.ElementNode && cur.Data == name {
			return true
		}
	}
	return false
}

// abbrRaw extracts the abbreviation content of an <abbr> element,
// mapping nested glyph references to their literals.
func abbrRaw(n *xmlquery.Node) string {
	var b strings.Builder
	collectRaw(n, &b)
	return b.String()
}

func collectRaw(n *xmlquery.Node, b *strings.Builder) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch {
		case child.Type == xmlquery.TextNode || child.Type == xmlquery.CharDataNode:
			b.WriteString(child.Data)
		case child.Type == xmlquery.ElementNode && child.Data == "g":
			b.WriteString(glyphRaw(child))
		case child.Type == xmlquery.ElementNode && child.Data == "expan":
			// expansion placeholder, not abbreviation content
		case child.Type == xmlquery.ElementNode:
			collectRaw(child, b)
		}
	}
}

// glyphRaw maps a <g> glyph reference to its abbreviation literal.
// A combining stroke applies to the letter immediately before the glyph;
// when that letter cannot be found the conventional m$ is used.
func glyphRaw(n *xmlquery.Node) string {
	switch attr(n, "ref") {
	case RefCombiningStroke:
		if base := precedingLetter(n); base != 0 {
			return string(base) + normalize.Marker
		}
		return "m" + normalize.Marker
	case RefAbque:
		return "q" + normalize.Marker
	default:
		return index.InnerText(n)
	}
}

// markerRaw extracts the literal for an <am> marker: its first glyph
// child's literal, else its text content.
func markerRaw(n *xmlquery.Node) string {
	if g := firstGlyph(n); g != nil {
		return glyphRaw(g)
	}
	return index.InnerText(n)
}

func firstGlyph(n *xmlquery.Node) *xmlquery.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		if child.Data == "g" {
			return child
		}
		if g := firstGlyph(child); g != nil {
			return g
		}
	}
	return nil
}

// precedingLetter returns the last letter of the text immediately before
// the node, or 0 if none.
func precedingLetter(n *xmlquery.Node) rune {
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type != xmlquery.TextNode && sib.Type != xmlquery.CharDataNode {
			if sib.Type == xmlquery.ElementNode {
				break
			}
			continue
		}
		text := strings.TrimRight(sib.Data, " \t\r\n")
		if text == "" {
			continue
		}
		runes := []rune(text)
		return runes[len(runes)-1]
	}
	return 0
}

// contextWindow captures up to size tokens either side of the construct,
// taken from its parent's text.
func contextWindow(n *xmlquery.Node, size int) suggest.Window {
	parent := n.Parent
	if parent == nil {
		return suggest.Window{}
	}
	var before, after []string
	seen := false
	for child := parent.FirstChild; child != nil; child = child.NextSibling {
		if child == n {
			seen = true
			continue
		}
		if child.Type != xmlquery.TextNode && child.Type != xmlquery.ElementNode {
			continue
		}
		tokens := strings.Fields(textOf(child))
		if seen {
			after = append(after, tokens...)
		} else {
			before = append(before, tokens...)
		}
	}
	if len(before) > size {
		before = before[len(before)-size:]
	}
	if len(after) > size {
		after = after[:size]
	}
	return suggest.Window{Before: before, After: after}
}

func textOf(n *xmlquery.Node) string {
	if n.Type == xmlquery.TextNode || n.Type == xmlquery.CharDataNode {
		return n.Data
	}
	return index.InnerText(n)
}

func attr(n *xmlquery.Node, name string) string {
	for _, a := range n.Attr {
		if a.Name.Local == name && a.Name.Space == "" {
			return a.Value
		}
	}
	return ""
}

// elementID returns the element's xml:id or plain id attribute.
func elementID(n *xmlquery.Node) string {
	for _, a := range n.Attr {
		if a.Name.Local == "id" {
			return a.Value
		}
	}
	return ""
}
