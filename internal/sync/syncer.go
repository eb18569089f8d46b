package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/njoerd114/collagesync/internal/model"
)

// Status is the terminal state of one sync pass over one grouping.
type Status int

const (
	// StatusCreated means a new collection was created.
	StatusCreated Status = iota
	// StatusUpdated means new items were added to an existing collection.
	StatusUpdated
	// StatusUpToDate means the remote list had no members beyond the cache.
	StatusUpToDate
	// StatusNoMatch means new remote members existed but none resolved to
	// a library item. Nothing was mutated; the members are retried next run.
	StatusNoMatch
	// StatusSkipped means the user declined to update an existing collection.
	StatusSkipped
	// StatusFailed means a remote or library call failed. When the failure
	// happened after the collection mutation the Result says so explicitly.
	StatusFailed
)

// String returns the human-readable label for the status.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusUpdated:
		return "updated"
	case StatusUpToDate:
		return "up to date"
	case StatusNoMatch:
		return "no match"
	case StatusSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Result reports the outcome of one sync pass over one grouping.
type Result struct {
	Name       string
	Site       string
	Status     Status
	ItemsAdded int
	Err        error
}

// Syncer reconciles remote lists against local collections. It is
// stateless between calls — all persistent state lives in the [Store].
type Syncer struct {
	remote  RemoteSource
	library Library
	store   Store
	matcher *Matcher
	prompt  Prompter
	log     *slog.Logger
}

// NewSyncer creates a Syncer wired to one site's remote client, the
// library, and the store.
func NewSyncer(remote RemoteSource, library Library, store Store, matcher *Matcher, prompt Prompter, logger *slog.Logger) *Syncer {
	return &Syncer{remote: remote, library: library, store: store, matcher: matcher, prompt: prompt, log: logger}
}

// RefreshLibrary pulls albums added since the newest snapshot entry and
// merges them into the store. Returns the number of new items.
func (s *Syncer) RefreshLibrary(ctx context.Context) (int, error) {
	latest, err := s.store.LatestAddedAt(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading latest snapshot time: %w", err)
	}
	items, err := s.library.ItemsAddedAfter(ctx, latest)
	if err != nil {
		return 0, fmt.Errorf("fetching new library items: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}
	if err := s.store.MergeLibraryItems(ctx, items); err != nil {
		return 0, fmt.Errorf("merging %d library items: %w", len(items), err)
	}
	s.log.Info("library snapshot refreshed", "new_items", len(items))
	return len(items), nil
}

// SyncCollage reconciles one collage against its local collection.
// With force false an existing collection is only updated after the
// Prompter confirms.
func (s *Syncer) SyncCollage(ctx context.Context, collageID int, force bool) Result {
	list, err := s.remote.Collage(ctx, collageID)
	if err != nil {
		return Result{Site: s.remote.Site(), Status: StatusFailed,
			Err: fmt.Errorf("fetching collage %d: %w", collageID, err)}
	}

	cached, err := s.store.ListGroupingByRemoteID(ctx, collageID, s.remote.Site())
	if err != nil {
		return Result{Name: list.Name, Site: s.remote.Site(), Status: StatusFailed, Err: err}
	}

	grouping := model.Grouping{
		RemoteListID: collageID,
		Name:         list.Name,
		Site:         s.remote.Site(),
		Kind:         model.KindList,
	}
	if cached != nil {
		grouping.MemberGroupIDs = cached.MemberGroupIDs
	}
	return s.reconcile(ctx, grouping, list.GroupIDs, force)
}

// SyncBookmarks reconciles the site's bookmark feed against its derived
// collection.
func (s *Syncer) SyncBookmarks(ctx context.Context, force bool) Result {
	site := s.remote.Site()
	list, err := s.remote.Bookmarks(ctx)
	if err != nil {
		return Result{Name: model.BookmarksName(site), Site: site, Status: StatusFailed,
			Err: fmt.Errorf("fetching bookmarks: %w", err)}
	}

	cached, err := s.store.BookmarkGrouping(ctx, site)
	if err != nil {
		return Result{Name: list.Name, Site: site, Status: StatusFailed, Err: err}
	}

	grouping := model.Grouping{
		Name: list.Name,
		Site: site,
		Kind: model.KindBookmark,
	}
	if cached != nil {
		grouping.MemberGroupIDs = cached.MemberGroupIDs
	}
	return s.reconcile(ctx, grouping, list.GroupIDs, force)
}

// reconcile runs steps 2–7 of the sync pass: diff remote membership
// against the cache, resolve new members, apply the collection mutation,
// then commit the enlarged membership set. The collection mutation
// deliberately precedes the cache commit; when the commit fails the run
// is reported failed but is safe to repeat, because re-adding collection
// members is a no-op on the library side.
func (s *Syncer) reconcile(ctx context.Context, grouping model.Grouping, remoteIDs []int, force bool) Result {
	result := Result{Name: grouping.Name, Site: grouping.Site}

	localID, err := s.library.FindCollectionByName(ctx, grouping.Name)
	if err != nil {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("looking up collection %q: %w", grouping.Name, err)
		return result
	}

	cached := make(map[int]struct{}, len(grouping.MemberGroupIDs))
	if localID != "" {
		// Only trust the cache while the collection it describes exists;
		// a collection deleted in Plex starts over from scratch.
		for _, id := range grouping.MemberGroupIDs {
			cached[id] = struct{}{}
		}
	}

	if localID != "" && !force {
		if !s.prompt.Confirm(fmt.Sprintf("Collection %q already exists. Update it with new items?", grouping.Name)) {
			s.prompt.Echo(fmt.Sprintf("Skipping %q.", grouping.Name))
			result.Status = StatusSkipped
			return result
		}
	}

	var newIDs []int
	for _, id := range remoteIDs {
		if _, ok := cached[id]; !ok {
			newIDs = append(newIDs, id)
		}
	}
	if len(newIDs) == 0 {
		result.Status = StatusUpToDate
		return result
	}
	sort.Ints(newIDs)

	snapshot, err := s.store.LibraryItems(ctx)
	if err != nil {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("loading library snapshot: %w", err)
		return result
	}

	matchedItems := make(map[string]struct{})
	processed := make([]int, 0, len(newIDs))
	for _, gid := range newIDs {
		group, err := s.remote.TorrentGroup(ctx, gid)
		if err != nil {
			s.log.Error("fetching torrent group failed, will retry next run", "group_id", gid, "error", err)
			continue
		}

		groupMatched := false
		for _, token := range group.FileTokens {
			for _, itemID := range s.matcher.Resolve(token, snapshot) {
				matchedItems[itemID] = struct{}{}
				groupMatched = true
			}
		}
		if groupMatched {
			processed = append(processed, gid)
			s.log.Info("matched torrent group", "group_id", gid, "name", group.Name)
		} else {
			s.log.Info("no library match for torrent group", "group_id", gid, "name", group.Name)
		}
	}

	if len(matchedItems) == 0 {
		result.Status = StatusNoMatch
		return result
	}

	itemIDs := make([]string, 0, len(matchedItems))
	for id := range matchedItems {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)

	if localID == "" {
		localID, err = s.library.CreateCollection(ctx, grouping.Name, itemIDs)
		if err != nil {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("creating collection %q: %w", grouping.Name, err)
			return result
		}
		result.Status = StatusCreated
	} else {
		if err := s.library.AddToCollection(ctx, localID, itemIDs); err != nil {
			result.Status = StatusFailed
			result.Err = fmt.Errorf("adding items to collection %q: %w", grouping.Name, err)
			return result
		}
		result.Status = StatusUpdated
	}
	result.ItemsAdded = len(itemIDs)

	grouping.LocalID = localID
	members := make([]int, 0, len(cached)+len(processed))
	for id := range cached {
		members = append(members, id)
	}
	members = append(members, processed...)
	sort.Ints(members)
	grouping.MemberGroupIDs = members

	if err := s.store.UpsertGrouping(ctx, grouping); err != nil {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("collection %q mutated but membership not recorded — safe to re-run: %w",
			grouping.Name, err)
		return result
	}

	s.log.Info("sync pass complete",
		"name", grouping.Name,
		"status", result.Status.String(),
		"items_added", result.ItemsAdded,
		"groups_processed", len(processed),
	)
	return result
}

// SyncAll reconciles every stored grouping of one site, forcing updates
// and continuing past individual failures. It returns one Result per
// grouping in processing order.
func (s *Syncer) SyncAll(ctx context.Context) ([]Result, error) {
	site := s.remote.Site()

	lists, err := s.store.AllListGroupings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading list groupings: %w", err)
	}
	bookmarks, err := s.store.AllBookmarkGroupings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading bookmark groupings: %w", err)
	}

	var results []Result
	for _, g := range lists {
		if g.Site != site {
			continue
		}
		results = append(results, s.SyncCollage(ctx, g.RemoteListID, true))
	}
	for _, g := range bookmarks {
		if g.Site != site {
			continue
		}
		results = append(results, s.SyncBookmarks(ctx, true))
	}
	return results, nil
}
