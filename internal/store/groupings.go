package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/njoerd114/collagesync/internal/model"
)

// UpsertGrouping inserts or replaces a grouping and its full membership
// set in one transaction. Old member rows are deleted and reinserted, so a
// partial overwrite is impossible.
func (s *Store) UpsertGrouping(ctx context.Context, g model.Grouping) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		switch g.Kind {
		case model.KindBookmark:
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO bookmark_groupings (local_id, site)
				VALUES (?, ?)`, g.LocalID, g.Site)
			if err != nil {
				return fmt.Errorf("upserting bookmark grouping %q: %w", g.LocalID, err)
			}
		default:
			_, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO list_groupings (local_id, remote_list_id, name, site)
				VALUES (?, ?, ?, ?)`, g.LocalID, g.RemoteListID, g.Name, g.Site)
			if err != nil {
				return fmt.Errorf("upserting list grouping %q: %w", g.LocalID, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM grouping_members WHERE local_id = ?`, g.LocalID); err != nil {
			return fmt.Errorf("clearing members of grouping %q: %w", g.LocalID, err)
		}
		const insert = `INSERT INTO grouping_members (local_id, group_id) VALUES (?, ?)`
		for _, gid := range g.MemberGroupIDs {
			if _, err := tx.ExecContext(ctx, insert, g.LocalID, gid); err != nil {
				return fmt.Errorf("inserting member %d of grouping %q: %w", gid, g.LocalID, err)
			}
		}
		return nil
	})
}

// ListGroupingByRemoteID returns the list grouping tied to the given
// collage ID on a site, or (nil, nil) when none is stored.
func (s *Store) ListGroupingByRemoteID(ctx context.Context, remoteListID int, site string) (*model.Grouping, error) {
	const q = `
		SELECT local_id, remote_list_id, name, site
		FROM list_groupings WHERE remote_list_id = ? AND site = ?`
	return s.scanListGrouping(ctx, s.db.QueryRowContext(ctx, q, remoteListID, site))
}

// ListGrouping returns the list grouping with the given local ID,
// or (nil, nil) when none is stored.
func (s *Store) ListGrouping(ctx context.Context, localID string) (*model.Grouping, error) {
	const q = `
		SELECT local_id, remote_list_id, name, site
		FROM list_groupings WHERE local_id = ?`
	return s.scanListGrouping(ctx, s.db.QueryRowContext(ctx, q, localID))
}

// AllListGroupings returns every stored list grouping with its members.
func (s *Store) AllListGroupings(ctx context.Context) ([]model.Grouping, error) {
	const q = `SELECT local_id, remote_list_id, name, site FROM list_groupings`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying list groupings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groupings []model.Grouping
	for rows.Next() {
		var g model.Grouping
		g.Kind = model.KindList
		if err := rows.Scan(&g.LocalID, &g.RemoteListID, &g.Name, &g.Site); err != nil {
			return nil, fmt.Errorf("scanning list grouping row: %w", err)
		}
		groupings = append(groupings, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range groupings {
		if groupings[i].MemberGroupIDs, err = s.memberGroupIDs(ctx, groupings[i].LocalID); err != nil {
			return nil, err
		}
	}
	return groupings, nil
}

// BookmarkGrouping returns the bookmark grouping for a site, or (nil, nil)
// when none is stored. Its name is derived, not read from the database.
func (s *Store) BookmarkGrouping(ctx context.Context, site string) (*model.Grouping, error) {
	const q = `SELECT local_id, site FROM bookmark_groupings WHERE site = ?`
	row := s.db.QueryRowContext(ctx, q, site)

	var g model.Grouping
	g.Kind = model.KindBookmark
	err := row.Scan(&g.LocalID, &g.Site)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning bookmark grouping row: %w", err)
	}
	g.Name = model.BookmarksName(g.Site)
	if g.MemberGroupIDs, err = s.memberGroupIDs(ctx, g.LocalID); err != nil {
		return nil, err
	}
	return &g, nil
}

// AllBookmarkGroupings returns every stored bookmark grouping with its members.
func (s *Store) AllBookmarkGroupings(ctx context.Context) ([]model.Grouping, error) {
	const q = `SELECT local_id, site FROM bookmark_groupings`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying bookmark groupings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groupings []model.Grouping
	for rows.Next() {
		var g model.Grouping
		g.Kind = model.KindBookmark
		if err := rows.Scan(&g.LocalID, &g.Site); err != nil {
			return nil, fmt.Errorf("scanning bookmark grouping row: %w", err)
		}
		g.Name = model.BookmarksName(g.Site)
		groupings = append(groupings, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range groupings {
		if groupings[i].MemberGroupIDs, err = s.memberGroupIDs(ctx, groupings[i].LocalID); err != nil {
			return nil, err
		}
	}
	return groupings, nil
}

// DeleteListGrouping removes a list grouping and its member rows.
func (s *Store) DeleteListGrouping(ctx context.Context, localID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM list_groupings WHERE local_id = ?`, localID); err != nil {
			return fmt.Errorf("deleting list grouping %q: %w", localID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM grouping_members WHERE local_id = ?`, localID); err != nil {
			return fmt.Errorf("deleting members of grouping %q: %w", localID, err)
		}
		return nil
	})
}

// DeleteBookmarkGrouping removes a bookmark grouping and its member rows.
func (s *Store) DeleteBookmarkGrouping(ctx context.Context, localID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM bookmark_groupings WHERE local_id = ?`, localID); err != nil {
			return fmt.Errorf("deleting bookmark grouping %q: %w", localID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM grouping_members WHERE local_id = ?`, localID); err != nil {
			return fmt.Errorf("deleting members of grouping %q: %w", localID, err)
		}
		return nil
	})
}

// --- helpers -----------------------------------------------------------------

func (s *Store) scanListGrouping(ctx context.Context, row *sql.Row) (*model.Grouping, error) {
	var g model.Grouping
	g.Kind = model.KindList
	err := row.Scan(&g.LocalID, &g.RemoteListID, &g.Name, &g.Site)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning list grouping row: %w", err)
	}
	if g.MemberGroupIDs, err = s.memberGroupIDs(ctx, g.LocalID); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) memberGroupIDs(ctx context.Context, localID string) ([]int, error) {
	const q = `SELECT group_id FROM grouping_members WHERE local_id = ? ORDER BY group_id`
	rows, err := s.db.QueryContext(ctx, q, localID)
	if err != nil {
		return nil, fmt.Errorf("querying members of grouping %q: %w", localID, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
