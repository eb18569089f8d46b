package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/njoerd114/collagesync/internal/gazelle"
	"github.com/njoerd114/collagesync/internal/model"
)

func TestScanTags_SingleMatchRecorded(t *testing.T) {
	remote := newMockRemote("red")
	remote.searches["Artist - Album (2020)"] = []gazelle.SearchMatch{
		{GroupID: 100, Name: "Album", Artists: []string{"Artist"}, Year: 2020, Tags: []string{"rock", "indie"}},
	}

	store := newMockStore()
	store.items["1"] = album("1", "Artist - Album (2020)", time.Now().UTC())

	scanner := NewScanner(remote, store, &scriptedPrompter{}, testLogger)
	stats, err := scanner.ScanTags(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Mapped != 1 || stats.Scanned != 1 {
		t.Fatalf("stats = %+v, want 1 scanned / 1 mapped", stats)
	}

	tm, ok := store.mappings["1"]
	if !ok {
		t.Fatal("mapping was not recorded")
	}
	if tm.GroupID != 100 || tm.Site != "red" {
		t.Errorf("mapping = %+v, want group 100 on red", tm)
	}
	if len(tm.Tags) != 2 {
		t.Errorf("mapping tags = %v, want both tags", tm.Tags)
	}
}

func TestScanTags_AlreadyMappedItemsSkipped(t *testing.T) {
	remote := newMockRemote("red")
	store := newMockStore()
	store.items["1"] = album("1", "Mapped Folder", time.Now().UTC())
	store.mappings["1"] = model.TagMapping{ItemID: "1", GroupID: 100, Site: "red"}

	scanner := NewScanner(remote, store, &scriptedPrompter{}, testLogger)
	stats, err := scanner.ScanTags(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Scanned != 0 {
		t.Errorf("Scanned = %d, want 0", stats.Scanned)
	}
}

func TestScanTags_TrackNumberPrefixFallback(t *testing.T) {
	remote := newMockRemote("red")
	// Only the stripped form of the folder name matches on the site.
	remote.searches["Artist - Album"] = []gazelle.SearchMatch{
		{GroupID: 200, Name: "Album", Tags: []string{"jazz"}},
	}

	store := newMockStore()
	store.items["1"] = album("1", "01. Artist - Album", time.Now().UTC())

	scanner := NewScanner(remote, store, &scriptedPrompter{}, testLogger)
	stats, err := scanner.ScanTags(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Mapped != 1 {
		t.Fatalf("stats = %+v, want 1 mapped via stripped token", stats)
	}
	if store.mappings["1"].GroupID != 200 {
		t.Errorf("mapping group = %d, want 200", store.mappings["1"].GroupID)
	}
}

func TestScanTags_AmbiguousMatchPutToPrompter(t *testing.T) {
	remote := newMockRemote("red")
	remote.searches["Common Name"] = []gazelle.SearchMatch{
		{GroupID: 100, Name: "First", Tags: []string{"rock"}},
		{GroupID: 101, Name: "Second", Tags: []string{"pop"}},
	}

	store := newMockStore()
	store.items["1"] = album("1", "Common Name", time.Now().UTC())

	prompt := &scriptedPrompter{picks: []int{1}}
	scanner := NewScanner(remote, store, prompt, testLogger)
	stats, err := scanner.ScanTags(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Mapped != 1 {
		t.Fatalf("stats = %+v, want 1 mapped", stats)
	}
	if store.mappings["1"].GroupID != 101 {
		t.Errorf("mapping group = %d, want the picked 101", store.mappings["1"].GroupID)
	}
}

func TestScanTags_AmbiguousDeclinedLeftUnmapped(t *testing.T) {
	remote := newMockRemote("red")
	remote.searches["Common Name"] = []gazelle.SearchMatch{
		{GroupID: 100, Name: "First"},
		{GroupID: 101, Name: "Second"},
	}

	store := newMockStore()
	store.items["1"] = album("1", "Common Name", time.Now().UTC())

	scanner := NewScanner(remote, store, &scriptedPrompter{}, testLogger)
	stats, err := scanner.ScanTags(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Ambiguous != 1 || stats.Mapped != 0 {
		t.Fatalf("stats = %+v, want 1 ambiguous / 0 mapped", stats)
	}
	if _, ok := store.mappings["1"]; ok {
		t.Error("declined item was mapped anyway")
	}
}

func TestScanTags_SearchFailureCountedAndContinues(t *testing.T) {
	remote := newMockRemote("red")
	remote.fail["browse"] = errors.New("tracker down")

	store := newMockStore()
	store.items["1"] = album("1", "Folder A", time.Now().UTC())
	store.items["2"] = album("2", "Folder B", time.Now().UTC())

	scanner := NewScanner(remote, store, &scriptedPrompter{}, testLogger)
	stats, err := scanner.ScanTags(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Failed != 2 || stats.Scanned != 2 {
		t.Fatalf("stats = %+v, want 2 scanned / 2 failed", stats)
	}
}

// ---------------------------------------------------------------------------
// TagConverter
// ---------------------------------------------------------------------------

func TestConvertTags_CreatesCollectionFromIntersection(t *testing.T) {
	now := time.Now().UTC()
	library := newMockLibrary(
		album("1", "A", now),
		album("2", "B", now),
		album("3", "C", now),
	)

	store := newMockStore()
	store.mappings["1"] = model.TagMapping{ItemID: "1", GroupID: 100, Site: "red", Tags: []string{"rock", "live"}}
	store.mappings["2"] = model.TagMapping{ItemID: "2", GroupID: 101, Site: "red", Tags: []string{"rock"}}
	store.mappings["3"] = model.TagMapping{ItemID: "3", GroupID: 102, Site: "red", Tags: []string{"rock", "live"}}

	c := NewTagConverter(library, store, testLogger)
	result, err := c.ConvertTags(context.Background(), []string{"rock", "live"}, "red", "Live Rock")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusCreated {
		t.Fatalf("Status = %v, want created", result.Status)
	}
	if result.ItemsAdded != 2 {
		t.Errorf("ItemsAdded = %d, want 2 (only items with both tags)", result.ItemsAdded)
	}

	coll := library.collectionByName("Live Rock")
	if coll == nil {
		t.Fatal("collection missing")
	}
	if _, ok := coll.items["2"]; ok {
		t.Error("item without all tags ended up in the collection")
	}
}

func TestConvertTags_StaleSnapshotEntriesDropped(t *testing.T) {
	now := time.Now().UTC()
	// Item 2 is mapped locally but no longer exists on the server.
	library := newMockLibrary(album("1", "A", now))

	store := newMockStore()
	store.mappings["1"] = model.TagMapping{ItemID: "1", GroupID: 100, Site: "red", Tags: []string{"rock"}}
	store.mappings["2"] = model.TagMapping{ItemID: "2", GroupID: 101, Site: "red", Tags: []string{"rock"}}

	c := NewTagConverter(library, store, testLogger)
	result, err := c.ConvertTags(context.Background(), []string{"rock"}, "red", "Rock")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ItemsAdded != 1 {
		t.Errorf("ItemsAdded = %d, want 1 (stale entry dropped)", result.ItemsAdded)
	}
}

func TestConvertTags_NoMatches(t *testing.T) {
	library := newMockLibrary()
	store := newMockStore()

	c := NewTagConverter(library, store, testLogger)
	result, err := c.ConvertTags(context.Background(), []string{"vaporwave"}, "red", "Empty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusNoMatch {
		t.Fatalf("Status = %v, want no match", result.Status)
	}
	if len(library.collections) != 0 {
		t.Error("a collection was created with no members")
	}
}

func TestConvertTags_NoTagsRejected(t *testing.T) {
	c := NewTagConverter(newMockLibrary(), newMockStore(), testLogger)
	if _, err := c.ConvertTags(context.Background(), nil, "red", "X"); err == nil {
		t.Fatal("expected an error for an empty tag list")
	}
}
