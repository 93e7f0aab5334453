package dictionary

import (
	"context"
	"path/filepath"
	"testing"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "learned.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestLookupMiss verifies an unknown key is a miss, not an error.
func TestLookupMiss(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if _, ok, err := s.LookupUser(ctx, "nope"); err != nil || ok {
		t.Errorf("LookupUser = %v, %v", ok, err)
	}
	if _, ok, err := s.LookupMachine(ctx, "nope"); err != nil || ok {
		t.Errorf("LookupMachine = %v, %v", ok, err)
	}
}

// TestNamespaceIsolation verifies the two solution namespaces do not
// bleed into each other.
func TestNamespaceIsolation(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.RecordUser(ctx, "y$", "yt"); err != nil {
		t.Fatalf("RecordUser failed: %v", err)
	}
	if err := s.RecordMachine(ctx, "co$", "con"); err != nil {
		t.Fatalf("RecordMachine failed: %v", err)
	}

	if text, ok, _ := s.LookupUser(ctx, "y$"); !ok || text != "yt" {
		t.Errorf("LookupUser(y$) = %q, %v", text, ok)
	}
	if _, ok, _ := s.LookupMachine(ctx, "y$"); ok {
		t.Error("user entry visible in machine namespace")
	}
	if text, ok, _ := s.LookupMachine(ctx, "co$"); !ok || text != "con" {
		t.Errorf("LookupMachine(co$) = %q, %v", text, ok)
	}
}

// TestUpsertBumpsUsage verifies a repeated decision replaces the text and
// increments the usage count.
func TestUpsertBumpsUsage(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for _, text := range []string{"the", "thee"} {
		if err := s.RecordUser(ctx, "the$", text); err != nil {
			t.Fatalf("RecordUser failed: %v", err)
		}
	}
	entries, err := s.ListUser(ctx)
	if err != nil {
		t.Fatalf("ListUser failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Expansion != "thee" || entries[0].UsageCount != 2 {
		t.Errorf("entry = %+v, want thee with usage 2", entries[0])
	}
}

// TestUnresolvedCounts verifies repeated unresolved sightings of the same
// key accumulate on one row.
func TestUnresolvedCounts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.RecordUnresolved(ctx, "xyz$", "in his xyz$ hande"); err != nil {
		t.Fatalf("RecordUnresolved failed: %v", err)
	}
	if err := s.RecordUnresolved(ctx, "xyz$", "the xyz$ answered"); err != nil {
		t.Fatalf("RecordUnresolved failed: %v", err)
	}

	entries, err := s.ListUnresolved(ctx)
	if err != nil {
		t.Fatalf("ListUnresolved failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Key != "xyz$" || entries[0].UsageCount != 2 {
		t.Errorf("entry = %+v, want xyz$ with usage 2", entries[0])
	}
	if entries[0].Expansion != "the xyz$ answered" {
		t.Errorf("context = %q, want latest snippet", entries[0].Expansion)
	}
}

// TestConflicts verifies disagreeing namespaces surface and agreeing ones
// do not.
func TestConflicts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	s.RecordUser(ctx, "y$", "yt")
	s.RecordMachine(ctx, "y$", "ye")
	s.RecordUser(ctx, "co$", "con")
	s.RecordMachine(ctx, "co$", "con")

	conflicts, err := s.Conflicts(ctx)
	if err != nil {
		t.Fatalf("Conflicts failed: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	c := conflicts[0]
	if c.Key != "y$" || c.User != "yt" || c.Machine != "ye" {
		t.Errorf("conflict = %+v", c)
	}
}

// TestImportUser verifies bulk merge into the user namespace, skipping
// blank pairs.
func TestImportUser(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	n, err := s.ImportUser(ctx, map[string]string{
		"w$":  "with",
		"q$":  "que",
		"":    "bad",
		"bad": "",
	})
	if err != nil {
		t.Fatalf("ImportUser failed: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d entries, want 2", n)
	}
	if text, ok, _ := s.LookupUser(ctx, "w$"); !ok || text != "with" {
		t.Errorf("LookupUser(w$) = %q, %v", text, ok)
	}
}

// TestDifficultPassages verifies flagged passages persist across reopen.
func TestDifficultPassages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "learned.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.RecordDifficult(ctx, "doc.xml", "/TEI[1]/p[1]/g[1]", "ats q$", "q$"); err != nil {
		t.Fatalf("RecordDifficult failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	var count int
	if err := s2.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM difficult_passages`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("difficult_passages rows = %d, want 1", count)
	}
}
