package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/njoerd114/collagesync/internal/model"
)

// InsertTagMapping records that a library item corresponds to a remote
// group on a site, together with the group's tags. Re-inserting the same
// (item, group, site) replaces the tag set.
func (s *Store) InsertTagMapping(ctx context.Context, m model.TagMapping) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO tag_mappings (item_id, group_id, site)
			VALUES (?, ?, ?)`, m.ItemID, m.GroupID, m.Site)
		if err != nil {
			return fmt.Errorf("inserting tag mapping for item %q: %w", m.ItemID, err)
		}

		var mappingID int64
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM tag_mappings
			WHERE item_id = ? AND group_id = ? AND site = ?`,
			m.ItemID, m.GroupID, m.Site).Scan(&mappingID)
		if err != nil {
			return fmt.Errorf("looking up tag mapping for item %q: %w", m.ItemID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM mapping_tags WHERE mapping_id = ?`, mappingID); err != nil {
			return fmt.Errorf("clearing tags of mapping %d: %w", mappingID, err)
		}

		for _, tag := range m.Tags {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO tags (name) VALUES (?)`, tag); err != nil {
				return fmt.Errorf("inserting tag %q: %w", tag, err)
			}
			var tagID int64
			if err := tx.QueryRowContext(ctx,
				`SELECT id FROM tags WHERE name = ?`, tag).Scan(&tagID); err != nil {
				return fmt.Errorf("looking up tag %q: %w", tag, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO mapping_tags (mapping_id, tag_id) VALUES (?, ?)`,
				mappingID, tagID); err != nil {
				return fmt.Errorf("linking tag %q to mapping %d: %w", tag, mappingID, err)
			}
		}
		return nil
	})
}

// UnresolvedLibraryItems returns snapshot items that have no tag mapping
// for the given site, newest first, so incremental scans prioritise new
// acquisitions.
func (s *Store) UnresolvedLibraryItems(ctx context.Context, site string) ([]model.LibraryItem, error) {
	const q = `
		SELECT li.id, li.added_at, li.path
		FROM library_items li
		LEFT JOIN tag_mappings tm ON li.id = tm.item_id AND tm.site = ?
		WHERE tm.item_id IS NULL
		ORDER BY li.added_at DESC`
	rows, err := s.db.QueryContext(ctx, q, site)
	if err != nil {
		return nil, fmt.Errorf("querying unresolved items for site %q: %w", site, err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.LibraryItem
	for rows.Next() {
		var item model.LibraryItem
		var added string
		if err := rows.Scan(&item.ID, &added, &item.Path); err != nil {
			return nil, fmt.Errorf("scanning unresolved item row: %w", err)
		}
		item.AddedAt, _ = parseTime(added)
		items = append(items, item)
	}
	return items, rows.Err()
}

// ItemIDsByTags returns library item IDs whose mappings for the given site
// carry all requested tags (set intersection, not union).
func (s *Store) ItemIDsByTags(ctx context.Context, tags []string, site string) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(tags)-1) + "?"
	q := fmt.Sprintf(`
		SELECT tm.item_id
		FROM tag_mappings tm
		JOIN mapping_tags mt ON tm.id = mt.mapping_id
		JOIN tags t ON mt.tag_id = t.id
		WHERE t.name IN (%s) AND tm.site = ?
		GROUP BY tm.item_id
		HAVING COUNT(DISTINCT t.name) = ?`, placeholders)

	args := make([]any, 0, len(tags)+2)
	for _, tag := range tags {
		args = append(args, tag)
	}
	args = append(args, site, len(tags))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items by tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning item id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GroupIDsForItems translates library item IDs into the remote group IDs
// mapped for a site. Items without a mapping are simply absent from the
// result; callers that need to report them should diff the inputs.
func (s *Store) GroupIDsForItems(ctx context.Context, itemIDs []string, site string) (map[string]int, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(itemIDs)-1) + "?"
	q := fmt.Sprintf(`
		SELECT item_id, group_id
		FROM tag_mappings
		WHERE item_id IN (%s) AND site = ?`, placeholders)

	args := make([]any, 0, len(itemIDs)+1)
	for _, id := range itemIDs {
		args = append(args, id)
	}
	args = append(args, site)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying group ids for items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byItem := make(map[string]int)
	for rows.Next() {
		var itemID string
		var groupID int
		if err := rows.Scan(&itemID, &groupID); err != nil {
			return nil, fmt.Errorf("scanning group id row: %w", err)
		}
		byItem[itemID] = groupID
	}
	return byItem, rows.Err()
}

// TagStats summarises the tag mapping index.
type TagStats struct {
	MappedItems  int
	DistinctTags int
	Mappings     int
}

// Stats returns counts over the tag mapping index.
func (s *Store) Stats(ctx context.Context) (TagStats, error) {
	const q = `
		SELECT COUNT(DISTINCT tm.item_id),
		       COUNT(DISTINCT t.name),
		       COUNT(DISTINCT tm.id)
		FROM tag_mappings tm
		LEFT JOIN mapping_tags mt ON tm.id = mt.mapping_id
		LEFT JOIN tags t ON mt.tag_id = t.id`
	var st TagStats
	err := s.db.QueryRowContext(ctx, q).Scan(&st.MappedItems, &st.DistinctTags, &st.Mappings)
	if err != nil {
		return TagStats{}, fmt.Errorf("querying tag stats: %w", err)
	}
	return st, nil
}
