package tei

import (
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/google/uuid"

	"github.com/FocuswithJustin/Amanuensis/core/errors"
	"github.com/FocuswithJustin/Amanuensis/core/index"
)

// Applicator commits chosen resolutions into the structural index.
type Applicator struct {
	// UseChoice wraps plain abbreviations in <choice> pairs; when false a
	// bare <expan> is inserted after the abbreviation instead.
	UseChoice bool
	// AddXMLIDs stamps created <expan> elements with generated xml:id
	// values and a corresp link back to the source element.
	AddXMLIDs bool
}

// NewApplicator creates an applicator with the standard TEI output shape.
func NewApplicator(useChoice, addXMLIDs bool) *Applicator {
	return &Applicator{UseChoice: useChoice, AddXMLIDs: addXMLIDs}
}

// Apply commits the record's resolution into the tree. The node is
// re-located by address first; a miss fails with an error matching
// errors.ErrStructuralConflict and leaves the tree untouched.
func (a *Applicator) Apply(ix *index.Index, rec *Abbreviation) error {
	if rec.Resolution == "" {
		return errors.NewValidation("resolution", "empty resolution text")
	}
	n, err := ix.Locate(rec.Locator)
	if err != nil {
		return err
	}
	switch rec.Kind {
	case PlainAbbreviation:
		if n.Data != "abbr" {
			return errors.NewConflict(string(rec.Locator), fmt.Sprintf("expected <abbr>, found <%s>", n.Data))
		}
		return a.applyToAbbr(n, rec)
	case CombiningGlyph:
		if n.Data != "g" {
			return errors.NewConflict(string(rec.Locator), fmt.Sprintf("expected <g>, found <%s>", n.Data))
		}
		return a.applyToGlyph(n, rec)
	case AbbreviationExpansionPair:
		if n.Data != "am" {
			return errors.NewConflict(string(rec.Locator), fmt.Sprintf("expected <am>, found <%s>", n.Data))
		}
		return a.applyToMarker(n, rec)
	default:
		return errors.NewValidation("kind", "unknown construct kind")
	}
}

// applyToAbbr pairs an <abbr> with its expansion. Inside an existing
// <choice> the <expan> sibling is filled or updated; otherwise the
// abbreviation is wrapped into a new <choice> in place.
func (a *Applicator) applyToAbbr(abbr *xmlquery.Node, rec *Abbreviation) error {
	parent := abbr.Parent
	if parent == nil {
		return errors.NewConflict(string(rec.Locator), "abbr has no parent")
	}

	if parent.Data == "choice" {
		if expan := findExpan(parent); expan != nil {
			setText(expan, rec.Resolution)
			return nil
		}
		index.AppendChild(parent, a.newExpan(rec))
		return nil
	}

	if !a.UseChoice {
		index.InsertAfter(parent, a.newExpan(rec), abbr)
		return nil
	}

	choice := index.NewElement("choice", abbr.NamespaceURI)
	index.InsertBefore(parent, choice, abbr)
	index.Detach(abbr)
	index.AppendChild(choice, abbr)
	index.AppendChild(choice, a.newExpan(rec))
	return nil
}

// applyToGlyph expands a glyph reference. The -que sigil gets the full
// TEI pair group; a combining stroke gets a simple <expan> after the
// glyph, keeping the stroke itself in place.
func (a *Applicator) applyToGlyph(g *xmlquery.Node, rec *Abbreviation) error {
	parent := g.Parent
	if parent == nil {
		return errors.NewConflict(string(rec.Locator), "glyph has no parent")
	}

	if attr(g, "ref") == RefAbque && parent.Data != "am" {
		// <choice><abbr><am><g/></am></abbr><expan><am><g/></am><ex>text</ex></expan></choice>
		choice := index.NewElement("choice", g.NamespaceURI)
		index.InsertBefore(parent, choice, g)
		index.Detach(g)

		abbr := index.NewElement("abbr", g.NamespaceURI)
		am := index.NewElement("am", g.NamespaceURI)
		index.AppendChild(am, g)
		index.AppendChild(abbr, am)
		index.AppendChild(choice, abbr)
		index.AppendChild(choice, a.pairExpan(am, rec))
		return nil
	}

	index.InsertAfter(parent, a.newExpan(rec), g)
	return nil
}

// applyToMarker fills the expansion slot of an <am> pair group. An <am>
// inside <abbr> extends or creates the surrounding <choice>; a free
// marker gets a simple <expan> sibling.
func (a *Applicator) applyToMarker(am *xmlquery.Node, rec *Abbreviation) error {
	parent := am.Parent
	if parent == nil {
		return errors.NewConflict(string(rec.Locator), "marker has no parent")
	}

	if parent.Data != "abbr" {
		index.InsertAfter(parent, a.newExpan(rec), am)
		return nil
	}

	abbr := parent
	grand := abbr.Parent
	if grand == nil {
		return errors.NewConflict(string(rec.Locator), "abbr has no parent")
	}

	if grand.Data == "choice" {
		if expan := findExpan(grand); expan != nil {
			fillPairExpan(expan, am, rec.Resolution)
			return nil
		}
		index.AppendChild(grand, a.pairExpan(am, rec))
		return nil
	}

	choice := index.NewElement("choice", abbr.NamespaceURI)
	index.InsertBefore(grand, choice, abbr)
	index.Detach(abbr)
	index.AppendChild(choice, abbr)
	index.AppendChild(choice, a.pairExpan(am, rec))
	return nil
}

// newExpan creates <expan>text</expan>, optionally stamped with a
// generated xml:id and a corresp link to the source element.
func (a *Applicator) newExpan(rec *Abbreviation) *xmlquery.Node {
	expan := index.NewElement("expan", Namespace)
	index.AppendChild(expan, index.NewText(rec.Resolution))
	a.stamp(expan, rec)
	return expan
}

// pairExpan creates <expan><am copy/><ex>text</ex></expan> for marker
// pair groups, preserving the original marker content in the expansion.
func (a *Applicator) pairExpan(am *xmlquery.Node, rec *Abbreviation) *xmlquery.Node {
	expan := index.NewElement("expan", Namespace)
	index.AppendChild(expan, index.Clone(am))
	ex := index.NewElement("ex", Namespace)
	index.AppendChild(ex, index.NewText(rec.Resolution))
	index.AppendChild(expan, ex)
	a.stamp(expan, rec)
	return expan
}

// fillPairExpan rewrites an existing expansion slot with the marker copy
// and the new text.
func fillPairExpan(expan, am *xmlquery.Node, text string) {
	for expan.FirstChild != nil {
		index.Detach(expan.FirstChild)
	}
	index.AppendChild(expan, index.Clone(am))
	ex := index.NewElement("ex", Namespace)
	index.AppendChild(ex, index.NewText(text))
	index.AppendChild(expan, ex)
}

func (a *Applicator) stamp(expan *xmlquery.Node, rec *Abbreviation) {
	if !a.AddXMLIDs {
		return
	}
	index.SetAttr(expan, "xml:id", "expan_"+uuid.NewString()[:8])
	if rec.ID != "" {
		index.SetAttr(expan, "corresp", "#"+rec.ID)
	}
}

func findExpan(parent *xmlquery.Node) *xmlquery.Node {
	for child := parent.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == "expan" {
			return child
		}
	}
	return nil
}

// setText replaces an element's children with a single text node.
func setText(n *xmlquery.Node, text string) {
	for n.FirstChild != nil {
		index.Detach(n.FirstChild)
	}
	index.AppendChild(n, index.NewText(text))
}
