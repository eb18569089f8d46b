// Package store manages the SQLite database holding the library snapshot,
// grouping memberships, and site tag mappings.
//
// Only this package may open or query the database. All other packages
// receive a [*Store] and call its methods. Every logical operation runs in
// a single transaction, so a crash can never leave membership rows half
// updated relative to their parent grouping.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/collagesync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS library_items (
    id       TEXT PRIMARY KEY,
    added_at TEXT NOT NULL DEFAULT '',
    path     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS list_groupings (
    local_id       TEXT    PRIMARY KEY,
    remote_list_id INTEGER NOT NULL,
    name           TEXT    NOT NULL,
    site           TEXT    NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_list_remote ON list_groupings (remote_list_id, site);

CREATE TABLE IF NOT EXISTS bookmark_groupings (
    local_id TEXT PRIMARY KEY,
    site     TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS grouping_members (
    local_id TEXT    NOT NULL,
    group_id INTEGER NOT NULL,
    PRIMARY KEY (local_id, group_id)
);

CREATE TABLE IF NOT EXISTS tag_mappings (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id  TEXT    NOT NULL,
    group_id INTEGER NOT NULL,
    site     TEXT    NOT NULL,
    UNIQUE (item_id, group_id, site)
);

CREATE TABLE IF NOT EXISTS tags (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS mapping_tags (
    mapping_id INTEGER NOT NULL,
    tag_id     INTEGER NOT NULL,
    PRIMARY KEY (mapping_id, tag_id)
);
`

// Store is the SQLite-backed repository.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultDBPath returns the default path for the database:
// ~/.local/share/collagesync/collagesync.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "collagesync", "collagesync.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema,
// and configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem location of the database file.
func (s *Store) Path() string {
	return s.path
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// --- library snapshot --------------------------------------------------------

// MergeLibraryItems appends new items to the library snapshot. Already
// known IDs are left untouched; items are never mutated outside a reset.
func (s *Store) MergeLibraryItems(ctx context.Context, items []model.LibraryItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		const q = `INSERT OR IGNORE INTO library_items (id, added_at, path) VALUES (?, ?, ?)`
		for _, item := range items {
			if _, err := tx.ExecContext(ctx, q, item.ID, formatTime(item.AddedAt), item.Path); err != nil {
				return fmt.Errorf("inserting library item %q: %w", item.ID, err)
			}
		}
		return nil
	})
}

// LibraryItems returns the full library snapshot.
func (s *Store) LibraryItems(ctx context.Context) ([]model.LibraryItem, error) {
	const q = `SELECT id, added_at, path FROM library_items`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying library items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.LibraryItem
	for rows.Next() {
		var item model.LibraryItem
		var added string
		if err := rows.Scan(&item.ID, &added, &item.Path); err != nil {
			return nil, fmt.Errorf("scanning library item row: %w", err)
		}
		item.AddedAt, _ = parseTime(added)
		items = append(items, item)
	}
	return items, rows.Err()
}

// LatestAddedAt returns the newest AddedAt in the snapshot, or the zero
// time when the snapshot is empty. Snapshot refreshes fetch only items
// added after this point.
func (s *Store) LatestAddedAt(ctx context.Context) (time.Time, error) {
	var added sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(added_at) FROM library_items`).Scan(&added)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying latest added_at: %w", err)
	}
	if !added.Valid || added.String == "" {
		return time.Time{}, nil
	}
	return parseTime(added.String)
}

// LibraryItemCount reports the number of items in the snapshot.
func (s *Store) LibraryItemCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM library_items`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting library items: %w", err)
	}
	return count, nil
}

// --- resets ------------------------------------------------------------------

// ResetLibrary deletes the library snapshot.
func (s *Store) ResetLibrary(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM library_items`); err != nil {
		return fmt.Errorf("resetting library items: %w", err)
	}
	return nil
}

// ResetListGroupings deletes all list groupings. Member rows are removed
// only where the local ID is not also used by a bookmark grouping.
func (s *Store) ResetListGroupings(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM list_groupings`); err != nil {
			return fmt.Errorf("deleting list groupings: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM grouping_members
			WHERE local_id NOT IN (SELECT local_id FROM bookmark_groupings)`)
		if err != nil {
			return fmt.Errorf("deleting list grouping members: %w", err)
		}
		return nil
	})
}

// ResetBookmarkGroupings deletes all bookmark groupings. Member rows are
// removed only where the local ID is not also used by a list grouping.
func (s *Store) ResetBookmarkGroupings(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM bookmark_groupings`); err != nil {
			return fmt.Errorf("deleting bookmark groupings: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM grouping_members
			WHERE local_id NOT IN (SELECT local_id FROM list_groupings)`)
		if err != nil {
			return fmt.Errorf("deleting bookmark grouping members: %w", err)
		}
		return nil
	})
}

// ResetTagMappings deletes all tag mappings, tags, and their join rows.
// When site is non-empty only that site's mappings are removed; tags left
// without any mapping are pruned either way.
func (s *Store) ResetTagMappings(ctx context.Context, site string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if site == "" {
			for _, q := range []string{
				`DELETE FROM mapping_tags`,
				`DELETE FROM tag_mappings`,
				`DELETE FROM tags`,
			} {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					return fmt.Errorf("resetting tag mappings: %w", err)
				}
			}
			return nil
		}

		_, err := tx.ExecContext(ctx, `
			DELETE FROM mapping_tags
			WHERE mapping_id IN (SELECT id FROM tag_mappings WHERE site = ?)`, site)
		if err != nil {
			return fmt.Errorf("resetting mapping tags for site %q: %w", site, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tag_mappings WHERE site = ?`, site); err != nil {
			return fmt.Errorf("resetting tag mappings for site %q: %w", site, err)
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM tags WHERE id NOT IN (SELECT tag_id FROM mapping_tags)`)
		if err != nil {
			return fmt.Errorf("pruning unused tags: %w", err)
		}
		return nil
	})
}

// --- helpers -----------------------------------------------------------------

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
