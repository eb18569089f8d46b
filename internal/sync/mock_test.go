package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/njoerd114/collagesync/internal/gazelle"
	"github.com/njoerd114/collagesync/internal/model"
)

// --- Mock remote site --------------------------------------------------------

type mockRemote struct {
	site      string
	collages  map[int]model.RemoteList
	bookmarks model.RemoteList
	groups    map[int]model.RemoteGroup
	searches  map[string][]gazelle.SearchMatch
	user      gazelle.UserInfo
	owned     []model.RemoteList

	// failures by operation name, e.g. "collage" or "torrentgroup:101".
	fail map[string]error

	addCalls []addCall
}

type addCall struct {
	collageID int
	groupIDs  []int
}

func newMockRemote(site string) *mockRemote {
	return &mockRemote{
		site:     site,
		collages: make(map[int]model.RemoteList),
		groups:   make(map[int]model.RemoteGroup),
		searches: make(map[string][]gazelle.SearchMatch),
		fail:     make(map[string]error),
	}
}

func (m *mockRemote) Site() string { return m.site }

func (m *mockRemote) Collage(_ context.Context, id int) (model.RemoteList, error) {
	if err := m.fail["collage"]; err != nil {
		return model.RemoteList{}, err
	}
	list, ok := m.collages[id]
	if !ok {
		return model.RemoteList{}, fmt.Errorf("collage %d not found", id)
	}
	return list, nil
}

func (m *mockRemote) Bookmarks(_ context.Context) (model.RemoteList, error) {
	if err := m.fail["bookmarks"]; err != nil {
		return model.RemoteList{}, err
	}
	return m.bookmarks, nil
}

func (m *mockRemote) TorrentGroup(_ context.Context, id int) (model.RemoteGroup, error) {
	if err := m.fail[fmt.Sprintf("torrentgroup:%d", id)]; err != nil {
		return model.RemoteGroup{}, err
	}
	group, ok := m.groups[id]
	if !ok {
		return model.RemoteGroup{}, fmt.Errorf("torrent group %d not found", id)
	}
	return group, nil
}

func (m *mockRemote) UserInfo(_ context.Context) (gazelle.UserInfo, error) {
	if err := m.fail["index"]; err != nil {
		return gazelle.UserInfo{}, err
	}
	return m.user, nil
}

func (m *mockRemote) UserCollages(_ context.Context, _ int) ([]model.RemoteList, error) {
	if err := m.fail["collages"]; err != nil {
		return nil, err
	}
	return m.owned, nil
}

func (m *mockRemote) AddToCollage(_ context.Context, collageID int, groupIDs []int) (gazelle.AddResult, error) {
	if err := m.fail["addtocollage"]; err != nil {
		return gazelle.AddResult{}, err
	}
	m.addCalls = append(m.addCalls, addCall{collageID: collageID, groupIDs: groupIDs})

	list := m.collages[collageID]
	existing := make(map[int]struct{}, len(list.GroupIDs))
	for _, id := range list.GroupIDs {
		existing[id] = struct{}{}
	}
	var result gazelle.AddResult
	for _, id := range groupIDs {
		if _, dup := existing[id]; dup {
			result.Duplicated = append(result.Duplicated, id)
			continue
		}
		result.Added = append(result.Added, id)
		list.GroupIDs = append(list.GroupIDs, id)
	}
	m.collages[collageID] = list
	return result, nil
}

func (m *mockRemote) SearchFileToken(_ context.Context, token string) ([]gazelle.SearchMatch, error) {
	if err := m.fail["browse"]; err != nil {
		return nil, err
	}
	return m.searches[token], nil
}

// --- Mock Plex library -------------------------------------------------------

type mockCollection struct {
	id    string
	name  string
	items map[string]struct{}
}

type mockLibrary struct {
	albums      []model.LibraryItem
	collections map[string]*mockCollection // rating key → collection
	nextID      int

	fail map[string]error
}

func newMockLibrary(albums ...model.LibraryItem) *mockLibrary {
	return &mockLibrary{
		albums:      albums,
		collections: make(map[string]*mockCollection),
		fail:        make(map[string]error),
	}
}

func (m *mockLibrary) ItemsAddedAfter(_ context.Context, ts time.Time) ([]model.LibraryItem, error) {
	if err := m.fail["items"]; err != nil {
		return nil, err
	}
	var result []model.LibraryItem
	for _, item := range m.albums {
		if ts.IsZero() || item.AddedAt.After(ts) {
			result = append(result, item)
		}
	}
	return result, nil
}

func (m *mockLibrary) ItemsByIDs(_ context.Context, ids []string) ([]model.LibraryItem, error) {
	if err := m.fail["itemsByIDs"]; err != nil {
		return nil, err
	}
	byID := make(map[string]model.LibraryItem, len(m.albums))
	for _, item := range m.albums {
		byID[item.ID] = item
	}
	var result []model.LibraryItem
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			result = append(result, item)
		}
	}
	return result, nil
}

func (m *mockLibrary) FindCollectionByName(_ context.Context, name string) (string, error) {
	if err := m.fail["find"]; err != nil {
		return "", err
	}
	for _, c := range m.collections {
		if c.name == name {
			return c.id, nil
		}
	}
	return "", nil
}

func (m *mockLibrary) CreateCollection(_ context.Context, name string, itemIDs []string) (string, error) {
	if err := m.fail["create"]; err != nil {
		return "", err
	}
	m.nextID++
	id := fmt.Sprintf("coll-%d", m.nextID)
	c := &mockCollection{id: id, name: name, items: make(map[string]struct{})}
	for _, itemID := range itemIDs {
		c.items[itemID] = struct{}{}
	}
	m.collections[id] = c
	return id, nil
}

func (m *mockLibrary) AddToCollection(_ context.Context, localID string, itemIDs []string) error {
	if err := m.fail["add"]; err != nil {
		return err
	}
	c, ok := m.collections[localID]
	if !ok {
		return fmt.Errorf("collection %q not found", localID)
	}
	for _, itemID := range itemIDs {
		c.items[itemID] = struct{}{}
	}
	return nil
}

func (m *mockLibrary) CollectionItems(_ context.Context, localID string) ([]string, error) {
	if err := m.fail["children"]; err != nil {
		return nil, err
	}
	c, ok := m.collections[localID]
	if !ok {
		return nil, fmt.Errorf("collection %q not found", localID)
	}
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockLibrary) collectionByName(name string) *mockCollection {
	for _, c := range m.collections {
		if c.name == name {
			return c
		}
	}
	return nil
}

// --- Mock store --------------------------------------------------------------

type groupingKey struct {
	kind model.GroupingKind
	site string
	id   int // remote list ID, unused for bookmarks
}

type mockStore struct {
	items     map[string]model.LibraryItem
	groupings map[groupingKey]model.Grouping
	mappings  map[string]model.TagMapping // item ID → mapping

	fail map[string]error
}

func newMockStore() *mockStore {
	return &mockStore{
		items:     make(map[string]model.LibraryItem),
		groupings: make(map[groupingKey]model.Grouping),
		mappings:  make(map[string]model.TagMapping),
		fail:      make(map[string]error),
	}
}

func (m *mockStore) MergeLibraryItems(_ context.Context, items []model.LibraryItem) error {
	if err := m.fail["merge"]; err != nil {
		return err
	}
	for _, item := range items {
		if _, ok := m.items[item.ID]; !ok {
			m.items[item.ID] = item
		}
	}
	return nil
}

func (m *mockStore) LatestAddedAt(_ context.Context) (time.Time, error) {
	var latest time.Time
	for _, item := range m.items {
		if item.AddedAt.After(latest) {
			latest = item.AddedAt
		}
	}
	return latest, nil
}

func (m *mockStore) LibraryItems(_ context.Context) ([]model.LibraryItem, error) {
	if err := m.fail["libraryItems"]; err != nil {
		return nil, err
	}
	items := make([]model.LibraryItem, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *mockStore) UpsertGrouping(_ context.Context, g model.Grouping) error {
	if err := m.fail["upsert"]; err != nil {
		return err
	}
	key := groupingKey{kind: g.Kind, site: g.Site}
	if g.Kind == model.KindList {
		key.id = g.RemoteListID
	}
	m.groupings[key] = g
	return nil
}

func (m *mockStore) ListGroupingByRemoteID(_ context.Context, remoteListID int, site string) (*model.Grouping, error) {
	g, ok := m.groupings[groupingKey{kind: model.KindList, site: site, id: remoteListID}]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (m *mockStore) BookmarkGrouping(_ context.Context, site string) (*model.Grouping, error) {
	g, ok := m.groupings[groupingKey{kind: model.KindBookmark, site: site}]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (m *mockStore) AllListGroupings(_ context.Context) ([]model.Grouping, error) {
	var result []model.Grouping
	for key, g := range m.groupings {
		if key.kind == model.KindList {
			result = append(result, g)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RemoteListID < result[j].RemoteListID })
	return result, nil
}

func (m *mockStore) AllBookmarkGroupings(_ context.Context) ([]model.Grouping, error) {
	var result []model.Grouping
	for key, g := range m.groupings {
		if key.kind == model.KindBookmark {
			result = append(result, g)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Site < result[j].Site })
	return result, nil
}

func (m *mockStore) InsertTagMapping(_ context.Context, tm model.TagMapping) error {
	if err := m.fail["insertMapping"]; err != nil {
		return err
	}
	if _, ok := m.mappings[tm.ItemID]; !ok {
		m.mappings[tm.ItemID] = tm
	}
	return nil
}

func (m *mockStore) UnresolvedLibraryItems(_ context.Context, site string) ([]model.LibraryItem, error) {
	var result []model.LibraryItem
	for id, item := range m.items {
		if tm, ok := m.mappings[id]; ok && tm.Site == site {
			continue
		}
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockStore) ItemIDsByTags(_ context.Context, tags []string, site string) ([]string, error) {
	var result []string
	for id, tm := range m.mappings {
		if tm.Site != site {
			continue
		}
		have := make(map[string]struct{}, len(tm.Tags))
		for _, t := range tm.Tags {
			have[t] = struct{}{}
		}
		all := true
		for _, t := range tags {
			if _, ok := have[t]; !ok {
				all = false
				break
			}
		}
		if all {
			result = append(result, id)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (m *mockStore) GroupIDsForItems(_ context.Context, itemIDs []string, site string) (map[string]int, error) {
	result := make(map[string]int)
	for _, id := range itemIDs {
		if tm, ok := m.mappings[id]; ok && tm.Site == site {
			result[id] = tm.GroupID
		}
	}
	return result, nil
}

// --- Scripted prompter -------------------------------------------------------

// scriptedPrompter answers Confirm from a queue and SelectMatches with a
// fixed pick list. It records every prompt it saw.
type scriptedPrompter struct {
	confirms []bool
	picks    []int

	confirmPrompts []string
	selectTokens   []string
	echoes         []string
}

func (p *scriptedPrompter) Confirm(prompt string) bool {
	p.confirmPrompts = append(p.confirmPrompts, prompt)
	if len(p.confirms) == 0 {
		return false
	}
	answer := p.confirms[0]
	p.confirms = p.confirms[1:]
	return answer
}

func (p *scriptedPrompter) Echo(msg string) {
	p.echoes = append(p.echoes, msg)
}

func (p *scriptedPrompter) SelectMatches(token string, _ []string) []int {
	p.selectTokens = append(p.selectTokens, token)
	return p.picks
}
