package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FocuswithJustin/Amanuensis/core/dictionary"
	"github.com/FocuswithJustin/Amanuensis/core/gate"
	"github.com/FocuswithJustin/Amanuensis/core/suggest"
	"github.com/FocuswithJustin/Amanuensis/core/tei"
	"github.com/FocuswithJustin/Amanuensis/internal/providers"
)

// testEngine builds a quiet-mode engine with the builtin lexicon and a
// fresh store, the shape of an unattended corpus run.
func testEngine(t *testing.T, concurrency int) *Engine {
	t.Helper()
	store, err := dictionary.Open(filepath.Join(t.TempDir(), "learned.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	lex, err := providers.NewLexicon("")
	if err != nil {
		t.Fatalf("NewLexicon failed: %v", err)
	}
	agg := suggest.NewAggregator(store, []suggest.Provider{lex, providers.NewPattern(lex)}, time.Second)
	g := gate.New(gate.NewPolicy([]string{"the$"}, 0), store, nil, true)

	return &Engine{
		Locator:     tei.NewLocator(0),
		Aggregator:  agg,
		Gate:        g,
		Applicator:  tei.NewApplicator(true, false),
		Store:       store,
		Concurrency: concurrency,
	}
}

// interactiveEngine is testEngine with a live review channel.
func interactiveEngine(t *testing.T, concurrency int, reviews chan *gate.Request) *Engine {
	t.Helper()
	e := testEngine(t, concurrency)
	e.Gate = gate.New(gate.NewPolicy([]string{"the$"}, 0), e.Store.(*dictionary.Store), reviews, false)
	return e
}

func writeCorpus(t *testing.T, docs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range docs {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

const resolvable = `<TEI><text><body><p>the <abbr>wch</abbr> man told <abbr>sr</abbr> John</p></body></text></TEI>`

// TestRunResolvesCorpus verifies the end-to-end pipeline over a small
// corpus: lexicon hits auto-apply, outputs land atomically.
func TestRunResolvesCorpus(t *testing.T) {
	in := writeCorpus(t, map[string]string{"a.xml": resolvable})
	out := t.TempDir()
	e := testEngine(t, 1)

	summary, err := e.Run(context.Background(), in, out, t.TempDir())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Documents != 1 || summary.Completed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Applied != 2 || summary.Unresolved != 0 {
		t.Errorf("counts = applied %d unresolved %d", summary.Applied, summary.Unresolved)
	}
	if summary.RunID == "" {
		t.Error("missing run id")
	}

	data, err := os.ReadFile(filepath.Join(out, "a.xml"))
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	got := string(data)
	want := `<TEI><text><body><p>the <choice><abbr>wch</abbr><expan>which</expan></choice> man told <choice><abbr>sr</abbr><expan>sir</expan></choice> John</p></body></text></TEI>`
	if got != want {
		t.Errorf("got:  %s\nwant: %s", got, want)
	}
}

// TestRunQuarantinesMalformed verifies an unparsable document is moved
// aside with a content hash and the rest of the corpus still completes.
func TestRunQuarantinesMalformed(t *testing.T) {
	in := writeCorpus(t, map[string]string{
		"bad.xml":  `<<< this is not xml`,
		"good.xml": resolvable,
	})
	out := t.TempDir()
	qdir := t.TempDir()
	e := testEngine(t, 2)

	summary, err := e.Run(context.Background(), in, out, qdir)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Completed != 1 || len(summary.Quarantined) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	q := summary.Quarantined[0]
	if filepath.Base(q.Path) != "bad.xml" || q.Hash == "" || q.Reason == "" {
		t.Errorf("quarantine record = %+v", q)
	}
	if _, err := os.Stat(filepath.Join(qdir, "bad.xml")); err != nil {
		t.Errorf("quarantined file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(in, "bad.xml")); !os.IsNotExist(err) {
		t.Error("malformed input still in corpus dir")
	}
	if _, err := os.Stat(filepath.Join(out, "good.xml")); err != nil {
		t.Errorf("good output missing: %v", err)
	}
}

// TestRunDeterministicAcrossPoolSizes verifies output bytes do not depend
// on worker count.
func TestRunDeterministicAcrossPoolSizes(t *testing.T) {
	docs := map[string]string{
		"a.xml": resolvable,
		"b.xml": `<TEI><p><abbr>ye</abbr> kinge and <abbr>yt</abbr> lande</p></TEI>`,
		"c.xml": `<TEI><p>plain prose only</p></TEI>`,
	}

	outputs := make([]map[string]string, 0, 2)
	for _, workers := range []int{1, 4} {
		in := writeCorpus(t, docs)
		out := t.TempDir()
		e := testEngine(t, workers)
		if _, err := e.Run(context.Background(), in, out, t.TempDir()); err != nil {
			t.Fatalf("Run with %d workers failed: %v", workers, err)
		}
		got := make(map[string]string)
		for name := range docs {
			data, err := os.ReadFile(filepath.Join(out, name))
			if err != nil {
				t.Fatalf("output %s missing: %v", name, err)
			}
			got[name] = string(data)
		}
		outputs = append(outputs, got)
	}
	for name := range docs {
		if outputs[0][name] != outputs[1][name] {
			t.Errorf("%s differs across pool sizes:\n1: %s\n4: %s", name, outputs[0][name], outputs[1][name])
		}
	}
}

// TestRunInteractiveReviewOrder verifies the review stream is ordered by
// document, then by position within the document, independent of the
// worker count. One acceptance also proves a reviewer-chosen expansion
// lands in the output as a user-applied resolution.
func TestRunInteractiveReviewOrder(t *testing.T) {
	docs := map[string]string{
		"a.xml": `<TEI><p>I <abbr>cōceyue</abbr> that <abbr>quātum</abbr> well</p></TEI>`,
		"b.xml": `<TEI><p>the <abbr>omnib;</abbr> rule</p></TEI>`,
		"c.xml": `<TEI><p>so <abbr>nūquam</abbr> more</p></TEI>`,
	}
	wantOrder := []string{
		"a.xml co$ceyue",
		"a.xml qua$tum",
		"b.xml omnib;",
		"c.xml nu$quam",
	}

	for _, workers := range []int{2, 4} {
		in := writeCorpus(t, docs)
		out := t.TempDir()
		reviews := make(chan *gate.Request)
		e := interactiveEngine(t, workers, reviews)

		var order []string
		done := make(chan struct{})
		go func() {
			defer close(done)
			for req := range reviews {
				order = append(order, filepath.Base(req.DocPath)+" "+req.Record.Key)
				d := gate.Decision{Action: gate.ReviewSkip}
				if req.Record.Key == "omnib;" {
					d = gate.Decision{Action: gate.ReviewAccept, Text: "omnibus"}
				}
				req.Reply <- d
			}
		}()

		summary, err := e.Run(context.Background(), in, out, t.TempDir())
		close(reviews)
		<-done
		if err != nil {
			t.Fatalf("Run with %d workers failed: %v", workers, err)
		}

		if len(order) != len(wantOrder) {
			t.Fatalf("%d workers: saw %d requests %v, want %d", workers, len(order), order, len(wantOrder))
		}
		for i := range wantOrder {
			if order[i] != wantOrder[i] {
				t.Errorf("%d workers: request %d = %q, want %q", workers, i, order[i], wantOrder[i])
			}
		}

		if summary.Applied != 1 || summary.Escalated != 4 || summary.Unresolved != 3 {
			t.Errorf("%d workers: summary = %+v", workers, summary)
		}
		data, err := os.ReadFile(filepath.Join(out, "b.xml"))
		if err != nil {
			t.Fatalf("b.xml missing: %v", err)
		}
		want := `<choice><abbr>omnib;</abbr><expan>omnibus</expan></choice>`
		if !strings.Contains(string(data), want) {
			t.Errorf("%d workers: accepted expansion missing:\ngot:  %s\nwant substring: %s", workers, data, want)
		}
	}
}

// TestRunQuietRecordsUnresolved verifies escalations in quiet mode become
// unresolved records and land in the store.
func TestRunQuietRecordsUnresolved(t *testing.T) {
	// the$ is ambiguous by policy, so the lexicon hit still escalates.
	in := writeCorpus(t, map[string]string{
		"a.xml": `<TEI><p>gaue it to <abbr>the$</abbr> straight</p></TEI>`,
	})
	e := testEngine(t, 1)

	summary, err := e.Run(context.Background(), in, t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Applied != 0 || summary.Unresolved != 1 {
		t.Errorf("summary = %+v", summary)
	}

	store := e.Store.(*dictionary.Store)
	entries, err := store.ListUnresolved(context.Background())
	if err != nil {
		t.Fatalf("ListUnresolved failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "the$" {
		t.Errorf("unresolved entries = %+v", entries)
	}
}

// TestProcessDocumentIdempotent verifies a second pass over processed
// output changes nothing.
func TestProcessDocumentIdempotent(t *testing.T) {
	in := writeCorpus(t, map[string]string{"a.xml": resolvable})
	out1 := t.TempDir()
	e := testEngine(t, 1)

	first, err := e.ProcessDocument(context.Background(), filepath.Join(in, "a.xml"), filepath.Join(out1, "a.xml"))
	if err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	out2 := t.TempDir()
	second, err := e.ProcessDocument(context.Background(), filepath.Join(out1, "a.xml"), filepath.Join(out2, "a.xml"))
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if second.Applied != 0 || second.Unresolved != 0 {
		t.Errorf("second pass = %+v", second)
	}
	if first.Hash != second.Hash {
		a, _ := os.ReadFile(filepath.Join(out1, "a.xml"))
		b, _ := os.ReadFile(filepath.Join(out2, "a.xml"))
		t.Errorf("hash changed on second pass:\n1: %s\n2: %s", a, b)
	}
}
