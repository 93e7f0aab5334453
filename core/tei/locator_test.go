package tei

import (
	"testing"

	"github.com/FocuswithJustin/Amanuensis/core/index"
)

func mustParse(t *testing.T, xml string) *index.Index {
	t.Helper()
	ix, err := index.Parse([]byte(xml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return ix
}

// TestLocatePlainAbbr verifies plain <abbr> records in document order.
func TestLocatePlainAbbr(t *testing.T) {
	ix := mustParse(t, `<TEI xmlns="http://www.tei-c.org/ns/1.0"><text><body><p>the <abbr>wch</abbr> man said to <abbr>sr</abbr> John</p></body></text></TEI>`)
	recs := NewLocator(0).Locate(ix)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Raw != "wch" || recs[1].Raw != "sr" {
		t.Errorf("raw contents = %q, %q", recs[0].Raw, recs[1].Raw)
	}
	for _, r := range recs {
		if r.Kind != PlainAbbreviation {
			t.Errorf("kind = %v, want PlainAbbreviation", r.Kind)
		}
		if r.Status != StatusNew {
			t.Errorf("status = %v, want StatusNew", r.Status)
		}
	}
	if recs[0].Key != "wch" {
		t.Errorf("key = %q, want wch", recs[0].Key)
	}
}

// TestLocateGlyphs verifies glyph-reference records and literal mapping.
func TestLocateGlyphs(t *testing.T) {
	tests := []struct {
		name    string
		xml     string
		wantRaw string
	}{
		{
			"combining stroke after letter",
			`<TEI xmlns="http://www.tei-c.org/ns/1.0"><p>co<g ref="char:cmbAbbrStroke"/>cerning</p></TEI>`,
			"o$",
		},
		{
			"combining stroke without base",
			`<TEI xmlns="http://www.tei-c.org/ns/1.0"><p><g ref="char:cmbAbbrStroke"/></p></TEI>`,
			"m$",
		},
		{
			"abque sigil",
			`<TEI xmlns="http://www.tei-c.org/ns/1.0"><p>ats<g ref="char:abque"/></p></TEI>`,
			"q$",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := NewLocator(0).Locate(mustParse(t, tt.xml))
			if len(recs) != 1 {
				t.Fatalf("expected 1 record, got %d", len(recs))
			}
			if recs[0].Kind != CombiningGlyph {
				t.Errorf("kind = %v, want CombiningGlyph", recs[0].Kind)
			}
			if recs[0].Raw != tt.wantRaw {
				t.Errorf("raw = %q, want %q", recs[0].Raw, tt.wantRaw)
			}
		})
	}
}

// TestLocateMarker verifies <am> pair records use the marker literal.
func TestLocateMarker(t *testing.T) {
	ix := mustParse(t, `<TEI xmlns="http://www.tei-c.org/ns/1.0"><p><abbr>ats<am><g ref="char:abque"/></am></abbr></p></TEI>`)
	recs := NewLocator(0).Locate(ix)
	// One record for the abbr, one for the marker; the bare glyph inside
	// the marker is not double-counted.
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Kind != PlainAbbreviation || recs[0].Raw != "atsq$" {
		t.Errorf("record 0 = %v %q", recs[0].Kind, recs[0].Raw)
	}
	if recs[1].Kind != AbbreviationExpansionPair || recs[1].Raw != "q$" {
		t.Errorf("record 1 = %v %q", recs[1].Kind, recs[1].Raw)
	}
}

// TestLocateSkipsExpanded verifies the idempotence rule: constructs with
// an expansion are not re-emitted.
func TestLocateSkipsExpanded(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{
			"abbr in choice with expan",
			`<TEI><p><choice><abbr>wch</abbr><expan>which</expan></choice></p></TEI>`,
		},
		{
			"am under abbr in resolved choice",
			`<TEI><p><choice><abbr>ats<am><g ref="char:abque"/></am></abbr><expan>atque</expan></choice></p></TEI>`,
		},
		{
			"following expan sibling",
			`<TEI><p><abbr>wch</abbr><expan>which</expan></p></TEI>`,
		},
		{
			"glyph inside expan",
			`<TEI><p><expan><am><g ref="char:abque"/></am><ex>que</ex></expan></p></TEI>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := NewLocator(0).Locate(mustParse(t, tt.xml))
			if len(recs) != 0 {
				t.Errorf("expected no records, got %d (first: %v %q)", len(recs), recs[0].Kind, recs[0].Raw)
			}
		})
	}
}

// TestLocateEmptyDocument verifies a document without abbreviation markup
// yields an empty sequence, not an error.
func TestLocateEmptyDocument(t *testing.T) {
	recs := NewLocator(0).Locate(mustParse(t, `<TEI><text><body><p>plain prose only</p></body></text></TEI>`))
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

// TestContextWindow verifies the bounded token window around a construct.
func TestContextWindow(t *testing.T) {
	ix := mustParse(t, `<TEI><p>one two three <abbr>wch</abbr> four five six</p></TEI>`)
	recs := NewLocator(2).Locate(ix)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	win := recs[0].Context
	if len(win.Before) != 2 || win.Before[0] != "two" || win.Before[1] != "three" {
		t.Errorf("before = %v", win.Before)
	}
	if len(win.After) != 2 || win.After[0] != "four" || win.After[1] != "five" {
		t.Errorf("after = %v", win.After)
	}
}

// TestLocateCapturesID verifies the source element id is carried.
func TestLocateCapturesID(t *testing.T) {
	ix := mustParse(t, `<TEI><p><abbr xml:id="a1">wch</abbr></p></TEI>`)
	recs := NewLocator(0).Locate(ix)
	if len(recs) != 1 || recs[0].ID != "a1" {
		t.Fatalf("records = %+v", recs)
	}
}
