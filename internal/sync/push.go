package sync

import (
	"context"
	"fmt"
	"sort"

	"github.com/njoerd114/collagesync/internal/model"
)

// PushResult reports the outcome of pushing one collection upstream.
type PushResult struct {
	Name string
	Site string

	// SkipReason is non-empty when the push was not attempted, for
	// example because the collage belongs to another user.
	SkipReason string

	// Unmapped holds the rating keys of collection members with no tag
	// mapping, which therefore cannot be translated to group IDs.
	Unmapped []string

	Added      int
	Rejected   int
	Duplicated int

	Err error
}

// PushUpstream adds the local collection's members to the remote collage
// they came from. Only list groupings can be pushed, and only collages
// the authenticated user owns; bookmark feeds have no writable remote
// counterpart.
func (s *Syncer) PushUpstream(ctx context.Context, grouping model.Grouping) PushResult {
	result := PushResult{Name: grouping.Name, Site: grouping.Site}

	if grouping.Kind != model.KindList {
		result.SkipReason = "bookmark feeds cannot be pushed upstream"
		return result
	}

	user, err := s.remote.UserInfo(ctx)
	if err != nil {
		result.Err = fmt.Errorf("resolving authenticated user: %w", err)
		return result
	}
	owned, err := s.remote.UserCollages(ctx, user.ID)
	if err != nil {
		result.Err = fmt.Errorf("listing collages of user %s: %w", user.Username, err)
		return result
	}
	isOwner := false
	for _, c := range owned {
		if c.ID == grouping.RemoteListID {
			isOwner = true
			break
		}
	}
	if !isOwner {
		result.SkipReason = fmt.Sprintf("collage %d is not owned by user %s", grouping.RemoteListID, user.Username)
		return result
	}

	itemIDs, err := s.library.CollectionItems(ctx, grouping.LocalID)
	if err != nil {
		result.Err = fmt.Errorf("listing members of collection %q: %w", grouping.Name, err)
		return result
	}
	if len(itemIDs) == 0 {
		result.SkipReason = "collection is empty"
		return result
	}

	groupByItem, err := s.store.GroupIDsForItems(ctx, itemIDs, grouping.Site)
	if err != nil {
		result.Err = fmt.Errorf("translating collection members: %w", err)
		return result
	}
	localGroups := make(map[int]struct{}, len(groupByItem))
	for _, id := range itemIDs {
		gid, ok := groupByItem[id]
		if !ok {
			result.Unmapped = append(result.Unmapped, id)
			continue
		}
		localGroups[gid] = struct{}{}
	}
	if len(result.Unmapped) > 0 {
		s.log.Warn("collection members without tag mapping are not pushed",
			"name", grouping.Name, "unmapped", len(result.Unmapped))
	}
	if len(localGroups) == 0 {
		result.SkipReason = "no collection member has a tag mapping; run tags scan first"
		return result
	}

	remote, err := s.remote.Collage(ctx, grouping.RemoteListID)
	if err != nil {
		result.Err = fmt.Errorf("fetching collage %d: %w", grouping.RemoteListID, err)
		return result
	}
	for _, gid := range remote.GroupIDs {
		delete(localGroups, gid)
	}
	if len(localGroups) == 0 {
		result.SkipReason = "remote collage already has every mapped group"
		return result
	}

	toAdd := make([]int, 0, len(localGroups))
	for gid := range localGroups {
		toAdd = append(toAdd, gid)
	}
	sort.Ints(toAdd)

	added, err := s.remote.AddToCollage(ctx, grouping.RemoteListID, toAdd)
	if err != nil {
		result.Err = fmt.Errorf("adding %d groups to collage %d: %w", len(toAdd), grouping.RemoteListID, err)
		return result
	}
	result.Added = len(added.Added)
	result.Rejected = len(added.Rejected)
	result.Duplicated = len(added.Duplicated)

	s.log.Info("pushed collection upstream",
		"name", grouping.Name,
		"collage_id", grouping.RemoteListID,
		"added", result.Added,
		"rejected", result.Rejected,
		"duplicated", result.Duplicated,
	)
	return result
}

// PushAll pushes every stored list grouping of the site, continuing
// past individual failures.
func (s *Syncer) PushAll(ctx context.Context) ([]PushResult, error) {
	lists, err := s.store.AllListGroupings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading list groupings: %w", err)
	}
	var results []PushResult
	for _, g := range lists {
		if g.Site != s.remote.Site() {
			continue
		}
		results = append(results, s.PushUpstream(ctx, g))
	}
	return results, nil
}
