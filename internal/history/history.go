// Package history records added and removed catalog entries in a SQLite
// database so the change log of a channel or title can be queried later.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/snapetech/xtream-m3u/internal/catalog"
)

// Change types stored in history.change_type.
const (
	Added   = "added"
	Deleted = "deleted"
)

const schema = `
CREATE TABLE IF NOT EXISTS types (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS categories (
	id       INTEGER PRIMARY KEY,
	types_id INTEGER NOT NULL REFERENCES types(id),
	name     TEXT NOT NULL,
	added    INTEGER,
	UNIQUE (types_id, name)
);
CREATE TABLE IF NOT EXISTS channels (
	id            INTEGER PRIMARY KEY,
	categories_id INTEGER NOT NULL REFERENCES categories(id),
	name          TEXT NOT NULL,
	added         INTEGER,
	deleted       INTEGER,
	UNIQUE (categories_id, name)
);
CREATE TABLE IF NOT EXISTS runs (
	id       TEXT PRIMARY KEY,
	started  INTEGER NOT NULL,
	finished INTEGER,
	entries  INTEGER,
	added    INTEGER,
	removed  INTEGER
);
CREATE TABLE IF NOT EXISTS history (
	id          INTEGER PRIMARY KEY,
	channels_id INTEGER NOT NULL REFERENCES channels(id),
	run_id      TEXT REFERENCES runs(id),
	changed     INTEGER NOT NULL,
	change_type TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS history_channel ON history (channels_id, id);
CREATE INDEX IF NOT EXISTS channels_name ON channels (name);
`

// Change is one row of the change log.
type Change struct {
	RunID    string
	Class    catalog.Class
	Category string
	Name     string
	Type     string // Added or Deleted
	At       time.Time
}

// RunSummary is what FinishRun stores for a run.
type RunSummary struct {
	Entries int
	Added   int
	Removed int
}

// Store is a handle on the history database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One connection: SQLite serializes writers anyway and :memory: databases
	// are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate %s: %w", path, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// BeginRun registers a new run and returns its id.
func (s *Store) BeginRun(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO runs (id, started) VALUES (?, ?)`, id, s.now().Unix()); err != nil {
		return "", fmt.Errorf("history: begin run: %w", err)
	}
	return id, nil
}

// FinishRun stores the totals of runID.
func (s *Store) FinishRun(ctx context.Context, runID string, sum RunSummary) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished = ?, entries = ?, added = ?, removed = ? WHERE id = ?`,
		s.now().Unix(), sum.Entries, sum.Added, sum.Removed, runID)
	if err != nil {
		return fmt.Errorf("history: finish run: %w", err)
	}
	return nil
}

// Record logs the added and removed names of one group. A name is only logged
// as added when its last change is not already Added, and as deleted only when
// its last change is Added, so replaying a diff is harmless.
func (s *Store) Record(ctx context.Context, runID string, class catalog.Class, category string, added, removed []string) error {
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	ts := s.now().Unix()
	typeID, err := findOrCreate(ctx, tx,
		`INSERT INTO types (name) VALUES (?) ON CONFLICT (name) DO NOTHING`,
		`SELECT id FROM types WHERE name = ?`, []any{string(class)})
	if err != nil {
		return fmt.Errorf("history: type %s: %w", class, err)
	}
	catID, err := findOrCreate(ctx, tx,
		`INSERT INTO categories (types_id, name, added) VALUES (?, ?, ?) ON CONFLICT (types_id, name) DO NOTHING`,
		`SELECT id FROM categories WHERE types_id = ? AND name = ?`, []any{typeID, category}, ts)
	if err != nil {
		return fmt.Errorf("history: category %s: %w", category, err)
	}
	for _, name := range added {
		chID, err := findOrCreate(ctx, tx,
			`INSERT INTO channels (categories_id, name, added) VALUES (?, ?, ?) ON CONFLICT (categories_id, name) DO NOTHING`,
			`SELECT id FROM channels WHERE categories_id = ? AND name = ?`, []any{catID, name}, ts)
		if err != nil {
			return fmt.Errorf("history: channel %q: %w", name, err)
		}
		last, err := lastChangeType(ctx, tx, chID)
		if err != nil {
			return err
		}
		if last == Added {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE channels SET deleted = NULL WHERE id = ?`, chID); err != nil {
			return fmt.Errorf("history: channel %q: %w", name, err)
		}
		if err := addChange(ctx, tx, chID, runID, ts, Added); err != nil {
			return err
		}
	}
	for _, name := range removed {
		var chID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM channels WHERE categories_id = ? AND name = ?`, catID, name).Scan(&chID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("history: channel %q: %w", name, err)
		}
		last, err := lastChangeType(ctx, tx, chID)
		if err != nil {
			return err
		}
		if last != Added {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE channels SET deleted = ? WHERE id = ?`, ts, chID); err != nil {
			return fmt.Errorf("history: channel %q: %w", name, err)
		}
		if err := addChange(ctx, tx, chID, runID, ts, Deleted); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// LastChange returns the most recent change of any entry called name.
func (s *Store) LastChange(ctx context.Context, name string) (Change, bool, error) {
	changes, err := s.query(ctx, `WHERE ch.name = ? ORDER BY h.id DESC LIMIT 1`, name)
	if err != nil || len(changes) == 0 {
		return Change{}, false, err
	}
	return changes[0], true, nil
}

// History returns every change of entries called name, oldest first.
func (s *Store) History(ctx context.Context, name string) ([]Change, error) {
	return s.query(ctx, `WHERE ch.name = ? ORDER BY h.id`, name)
}

// RunChanges returns the changes logged by runID, oldest first.
func (s *Store) RunChanges(ctx context.Context, runID string) ([]Change, error) {
	return s.query(ctx, `WHERE h.run_id = ? ORDER BY h.id`, runID)
}

// Categories lists known category names of class, or of every class when
// class is empty, sorted by name.
func (s *Store) Categories(ctx context.Context, class catalog.Class) ([]string, error) {
	q := `SELECT DISTINCT c.name FROM categories c JOIN types t ON t.id = c.types_id`
	var args []any
	if class != "" {
		q += ` WHERE t.name = ?`
		args = append(args, string(class))
	}
	q += ` ORDER BY c.name`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: categories: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("history: categories: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Store) query(ctx context.Context, where string, args ...any) ([]Change, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT COALESCE(h.run_id, ''), t.name, c.name, ch.name, h.change_type, h.changed
FROM history h
JOIN channels ch ON ch.id = h.channels_id
JOIN categories c ON c.id = ch.categories_id
JOIN types t ON t.id = c.types_id
`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()
	var out []Change
	for rows.Next() {
		var (
			c     Change
			class string
			at    int64
		)
		if err := rows.Scan(&c.RunID, &class, &c.Category, &c.Name, &c.Type, &at); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		c.Class = catalog.Class(class)
		c.At = time.Unix(at, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

// findOrCreate runs insert with key followed by extra, then sel with key.
func findOrCreate(ctx context.Context, tx *sql.Tx, insert, sel string, key []any, extra ...any) (int64, error) {
	if _, err := tx.ExecContext(ctx, insert, append(append([]any{}, key...), extra...)...); err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRowContext(ctx, sel, key...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func lastChangeType(ctx context.Context, tx *sql.Tx, chID int64) (string, error) {
	var t string
	err := tx.QueryRowContext(ctx, `SELECT change_type FROM history WHERE channels_id = ? ORDER BY id DESC LIMIT 1`, chID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("history: last change: %w", err)
	}
	return t, nil
}

func addChange(ctx context.Context, tx *sql.Tx, chID int64, runID string, ts int64, kind string) error {
	var run any
	if runID != "" {
		run = runID
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO history (channels_id, run_id, changed, change_type) VALUES (?, ?, ?, ?)`,
		chID, run, ts, kind)
	if err != nil {
		return fmt.Errorf("history: add %s: %w", kind, err)
	}
	return nil
}
