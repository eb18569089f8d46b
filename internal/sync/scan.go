package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/njoerd114/collagesync/internal/model"
)

// leadingTrackNumber strips decorations like "01. " or "12 " that some
// library layouts prepend to folder names before searching the site.
var leadingTrackNumber = regexp.MustCompile(`^\d+\.?\s*`)

// ScanStats summarizes one tag scan run.
type ScanStats struct {
	Scanned   int
	Mapped    int
	Ambiguous int
	NotFound  int
	Failed    int
}

// Scanner builds tag mappings by searching the site for each unmapped
// library item's folder name.
type Scanner struct {
	remote RemoteSource
	store  Store
	prompt Prompter
	log    *slog.Logger
}

// NewScanner creates a Scanner for one site.
func NewScanner(remote RemoteSource, store Store, prompt Prompter, logger *slog.Logger) *Scanner {
	return &Scanner{remote: remote, store: store, prompt: prompt, log: logger}
}

// ScanTags searches the site for every library item that has no tag
// mapping yet and records the match. Ambiguous results are put to the
// Prompter; a run can be stopped and resumed since each mapping is
// written as it is found.
func (s *Scanner) ScanTags(ctx context.Context) (ScanStats, error) {
	site := s.remote.Site()
	items, err := s.store.UnresolvedLibraryItems(ctx, site)
	if err != nil {
		return ScanStats{}, fmt.Errorf("loading unmapped library items: %w", err)
	}

	var stats ScanStats
	for _, item := range items {
		stats.Scanned++

		token := folderToken(item.Path)
		if token == "" {
			s.log.Warn("library item has no usable folder name", "item_id", item.ID, "path", item.Path)
			stats.NotFound++
			continue
		}

		matches, err := s.remote.SearchFileToken(ctx, token)
		if err != nil {
			s.log.Error("site search failed", "token", token, "error", err)
			stats.Failed++
			continue
		}
		if len(matches) == 0 {
			if stripped := leadingTrackNumber.ReplaceAllString(token, ""); stripped != token && stripped != "" {
				matches, err = s.remote.SearchFileToken(ctx, stripped)
				if err != nil {
					s.log.Error("site search failed", "token", stripped, "error", err)
					stats.Failed++
					continue
				}
			}
		}

		var pick *model.TagMapping
		switch len(matches) {
		case 0:
			s.log.Info("no site match for folder", "token", token)
			stats.NotFound++
			continue
		case 1:
			pick = &model.TagMapping{
				ItemID:  item.ID,
				GroupID: matches[0].GroupID,
				Site:    site,
				Tags:    matches[0].Tags,
			}
		default:
			labels := make([]string, len(matches))
			for i, m := range matches {
				labels[i] = fmt.Sprintf("%s - %s (%d)", strings.Join(m.Artists, ", "), m.Name, m.Year)
			}
			indices := s.prompt.SelectMatches(token, labels)
			if len(indices) == 0 {
				stats.Ambiguous++
				continue
			}
			// One item maps to one group; further picks are ignored.
			idx := indices[0]
			if idx < 0 || idx >= len(matches) {
				stats.Ambiguous++
				continue
			}
			pick = &model.TagMapping{
				ItemID:  item.ID,
				GroupID: matches[idx].GroupID,
				Site:    site,
				Tags:    matches[idx].Tags,
			}
		}

		if err := s.store.InsertTagMapping(ctx, *pick); err != nil {
			s.log.Error("recording tag mapping failed", "item_id", item.ID, "error", err)
			stats.Failed++
			continue
		}
		stats.Mapped++
		s.prompt.Echo(fmt.Sprintf("Mapped %q to group %d.", token, pick.GroupID))
	}

	s.log.Info("tag scan complete",
		"scanned", stats.Scanned,
		"mapped", stats.Mapped,
		"ambiguous", stats.Ambiguous,
		"not_found", stats.NotFound,
		"failed", stats.Failed,
	)
	return stats, nil
}

// folderToken extracts the searchable folder name from an item path.
func folderToken(p string) string {
	cleaned := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	token := path.Base(cleaned)
	if token == "." || token == "/" {
		return ""
	}
	return token
}

// TagConverter builds collections from tag queries. Unlike the sync
// pass it never talks to the site: it works entirely from the mappings
// a previous scan recorded.
type TagConverter struct {
	library Library
	store   Store
	log     *slog.Logger
}

// NewTagConverter creates a TagConverter.
func NewTagConverter(library Library, store Store, logger *slog.Logger) *TagConverter {
	return &TagConverter{library: library, store: store, log: logger}
}

// ConvertTags creates or extends the named collection with every library
// item whose mapping carries all the given tags on the given site.
func (c *TagConverter) ConvertTags(ctx context.Context, tags []string, site, name string) (Result, error) {
	result := Result{Name: name, Site: site}
	if len(tags) == 0 {
		return result, fmt.Errorf("at least one tag is required")
	}

	itemIDs, err := c.store.ItemIDsByTags(ctx, tags, site)
	if err != nil {
		return result, fmt.Errorf("querying items by tags: %w", err)
	}
	if len(itemIDs) == 0 {
		result.Status = StatusNoMatch
		return result, nil
	}

	// Validate against the server so stale snapshot entries do not end
	// up in the collection.
	items, err := c.library.ItemsByIDs(ctx, itemIDs)
	if err != nil {
		return result, fmt.Errorf("validating %d items: %w", len(itemIDs), err)
	}
	if len(items) == 0 {
		result.Status = StatusNoMatch
		return result, nil
	}
	valid := make([]string, 0, len(items))
	for _, item := range items {
		valid = append(valid, item.ID)
	}

	localID, err := c.library.FindCollectionByName(ctx, name)
	if err != nil {
		return result, fmt.Errorf("looking up collection %q: %w", name, err)
	}
	if localID == "" {
		if _, err := c.library.CreateCollection(ctx, name, valid); err != nil {
			return result, fmt.Errorf("creating collection %q: %w", name, err)
		}
		result.Status = StatusCreated
	} else {
		if err := c.library.AddToCollection(ctx, localID, valid); err != nil {
			return result, fmt.Errorf("adding items to collection %q: %w", name, err)
		}
		result.Status = StatusUpdated
	}
	result.ItemsAdded = len(valid)

	c.log.Info("tag conversion complete",
		"name", name, "tags", strings.Join(tags, ","), "items", len(valid))
	return result, nil
}
