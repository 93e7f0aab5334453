// Package dictionary is the learned-dictionary store backing the
// suggestion pipeline and the escalation gate.
//
// Two build modes select the SQLite driver:
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): mattn/go-sqlite3
//
// Resolutions live in two namespaces: user entries are human-confirmed
// and always beat machine entries with the same key. Unresolved keys and
// reviewer-flagged difficult passages are logged alongside for later
// curation.
package dictionary

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/FocuswithJustin/Amanuensis/core/errors"
)

// DriverType identifies the compiled-in SQLite implementation, "purego"
// or "cgo".
func DriverType() string {
	return driverType
}

const schema = `
CREATE TABLE IF NOT EXISTS machine_solutions (
	key         TEXT PRIMARY KEY,
	expansion   TEXT NOT NULL,
	usage_count INTEGER NOT NULL DEFAULT 1,
	first_seen  TEXT NOT NULL,
	last_seen   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_solutions (
	key         TEXT PRIMARY KEY,
	expansion   TEXT NOT NULL,
	usage_count INTEGER NOT NULL DEFAULT 1,
	first_seen  TEXT NOT NULL,
	last_seen   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS unresolved (
	key         TEXT PRIMARY KEY,
	context     TEXT NOT NULL DEFAULT '',
	usage_count INTEGER NOT NULL DEFAULT 1,
	first_seen  TEXT NOT NULL,
	last_seen   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS difficult_passages (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_path TEXT NOT NULL,
	locator  TEXT NOT NULL,
	passage  TEXT NOT NULL,
	key      TEXT NOT NULL,
	noted_at TEXT NOT NULL
);
`

// Store is a SQLite-backed learned dictionary. Reads are concurrent;
// writes are serialized through a single-writer mutex, which keeps the
// WAL happy under the batch orchestrator's worker pool.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the store at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.NewPersistence("open", "", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, errors.NewPersistence("pragma", "", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.NewPersistence("migrate", "", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	if err := s.Flush(context.Background()); err != nil {
		s.db.Close()
		return err
	}
	if err := s.db.Close(); err != nil {
		return errors.NewPersistence("close", "", err)
	}
	return nil
}

// Flush checkpoints the WAL so the on-disk file reflects every write so
// far. Called on batch completion and on cancellation.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE);`); err != nil {
		return errors.NewPersistence("flush", "", err)
	}
	return nil
}

// LookupUser returns the human-confirmed resolution for a key.
func (s *Store) LookupUser(ctx context.Context, key string) (string, bool, error) {
	return s.lookup(ctx, "user_solutions", key)
}

// LookupMachine returns the machine-confirmed resolution for a key.
func (s *Store) LookupMachine(ctx context.Context, key string) (string, bool, error) {
	return s.lookup(ctx, "machine_solutions", key)
}

func (s *Store) lookup(ctx context.Context, table, key string) (string, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT expansion FROM `+table+` WHERE key = ?`, key).Scan(&text)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewPersistence("lookup", table, err)
	}
	return text, true, nil
}

// RecordMachine upserts a machine-namespace resolution, bumping the usage
// count when the key is already known.
func (s *Store) RecordMachine(ctx context.Context, key, text string) error {
	return s.upsertSolution(ctx, "machine_solutions", key, text)
}

// RecordUser upserts a user-namespace resolution. A repeated decision
// replaces the stored expansion: the latest human call wins.
func (s *Store) RecordUser(ctx context.Context, key, text string) error {
	return s.upsertSolution(ctx, "user_solutions", key, text)
}

func (s *Store) upsertSolution(ctx context.Context, table, key, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := timestamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (key, expansion, usage_count, first_seen, last_seen)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			expansion   = excluded.expansion,
			usage_count = usage_count + 1,
			last_seen   = excluded.last_seen`,
		key, text, now, now)
	if err != nil {
		return errors.NewPersistence("upsert", table, err)
	}
	return nil
}

// RecordUnresolved counts a key that produced no resolution, keeping the
// most recent context snippet.
func (s *Store) RecordUnresolved(ctx context.Context, key, passage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := timestamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unresolved (key, context, usage_count, first_seen, last_seen)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			context     = excluded.context,
			usage_count = usage_count + 1,
			last_seen   = excluded.last_seen`,
		key, passage, now, now)
	if err != nil {
		return errors.NewPersistence("upsert", "unresolved", err)
	}
	return nil
}

// RecordDifficult appends a reviewer-flagged passage.
func (s *Store) RecordDifficult(ctx context.Context, docPath, locator, passage, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO difficult_passages (doc_path, locator, passage, key, noted_at)
		VALUES (?, ?, ?, ?, ?)`,
		docPath, locator, passage, key, timestamp())
	if err != nil {
		return errors.NewPersistence("insert", "difficult_passages", err)
	}
	return nil
}

// Entry is one stored resolution or unresolved key.
type Entry struct {
	Key        string
	Expansion  string
	UsageCount int
	FirstSeen  string
	LastSeen   string
}

// ListUser returns all user-namespace entries ordered by key.
func (s *Store) ListUser(ctx context.Context) ([]Entry, error) {
	return s.list(ctx, "user_solutions")
}

// ListMachine returns all machine-namespace entries ordered by key.
func (s *Store) ListMachine(ctx context.Context) ([]Entry, error) {
	return s.list(ctx, "machine_solutions")
}

func (s *Store) list(ctx context.Context, table string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, expansion, usage_count, first_seen, last_seen
		FROM `+table+` ORDER BY key`)
	if err != nil {
		return nil, errors.NewPersistence("list", table, err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Expansion, &e.UsageCount, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, errors.NewPersistence("scan", table, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistence("list", table, err)
	}
	return entries, nil
}

// ListUnresolved returns unresolved keys ordered by usage count
// descending, the curation-priority order.
func (s *Store) ListUnresolved(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, context, usage_count, first_seen, last_seen
		FROM unresolved ORDER BY usage_count DESC, key`)
	if err != nil {
		return nil, errors.NewPersistence("list", "unresolved", err)
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Expansion, &e.UsageCount, &e.FirstSeen, &e.LastSeen); err != nil {
			return nil, errors.NewPersistence("scan", "unresolved", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistence("list", "unresolved", err)
	}
	return entries, nil
}

// Conflict is a key whose user and machine namespaces disagree. The user
// entry is authoritative; conflicts exist for curation, not resolution.
type Conflict struct {
	Key     string
	User    string
	Machine string
}

// Conflicts returns keys present in both namespaces with different
// expansions, ordered by key.
func (s *Store) Conflicts(ctx context.Context) ([]Conflict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.key, u.expansion, m.expansion
		FROM user_solutions u
		JOIN machine_solutions m ON m.key = u.key
		WHERE u.expansion != m.expansion
		ORDER BY u.key`)
	if err != nil {
		return nil, errors.NewPersistence("conflicts", "", err)
	}
	defer rows.Close()
	var conflicts []Conflict
	for rows.Next() {
		var c Conflict
		if err := rows.Scan(&c.Key, &c.User, &c.Machine); err != nil {
			return nil, errors.NewPersistence("scan", "", err)
		}
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistence("conflicts", "", err)
	}
	return conflicts, nil
}

// ImportUser merges entries into the user namespace, replacing existing
// expansions for the same keys.
func (s *Store) ImportUser(ctx context.Context, entries map[string]string) (int, error) {
	count := 0
	for key, text := range entries {
		if key == "" || text == "" {
			continue
		}
		if err := s.RecordUser(ctx, key, text); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
