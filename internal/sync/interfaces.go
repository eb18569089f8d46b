// Package sync implements the reconciliation engine that keeps local
// Plex collections in step with remote collages and bookmark feeds.
//
// The package contains the main components:
//
//   - [Matcher] resolves a remote group's file tokens against the local
//     library snapshot.
//   - [Syncer] performs the per-list diff-and-apply pass and the
//     upstream push.
//   - [Scanner] builds the tag mapping index by searching the site for
//     library items' folder names.
//   - [Engine] wraps a Syncer with telemetry instrumentation.
package sync

import (
	"context"
	"time"

	"github.com/njoerd114/collagesync/internal/gazelle"
	"github.com/njoerd114/collagesync/internal/model"
)

// RemoteSource provides read/write access to one Gazelle site.
// Implemented by [gazelle.Client].
type RemoteSource interface {
	Site() string
	Collage(ctx context.Context, id int) (model.RemoteList, error)
	Bookmarks(ctx context.Context) (model.RemoteList, error)
	TorrentGroup(ctx context.Context, id int) (model.RemoteGroup, error)
	UserInfo(ctx context.Context) (gazelle.UserInfo, error)
	UserCollages(ctx context.Context, userID int) ([]model.RemoteList, error)
	AddToCollage(ctx context.Context, collageID int, groupIDs []int) (gazelle.AddResult, error)
	SearchFileToken(ctx context.Context, token string) ([]gazelle.SearchMatch, error)
}

// Library provides access to the Plex music section.
// Implemented by [plex.Client].
type Library interface {
	ItemsAddedAfter(ctx context.Context, ts time.Time) ([]model.LibraryItem, error)
	ItemsByIDs(ctx context.Context, ids []string) ([]model.LibraryItem, error)
	FindCollectionByName(ctx context.Context, name string) (string, error)
	CreateCollection(ctx context.Context, name string, itemIDs []string) (string, error)
	AddToCollection(ctx context.Context, localID string, itemIDs []string) error
	CollectionItems(ctx context.Context, localID string) ([]string, error)
}

// Store provides access to the local database.
// Implemented by [store.Store].
type Store interface {
	MergeLibraryItems(ctx context.Context, items []model.LibraryItem) error
	LatestAddedAt(ctx context.Context) (time.Time, error)
	LibraryItems(ctx context.Context) ([]model.LibraryItem, error)

	UpsertGrouping(ctx context.Context, g model.Grouping) error
	ListGroupingByRemoteID(ctx context.Context, remoteListID int, site string) (*model.Grouping, error)
	BookmarkGrouping(ctx context.Context, site string) (*model.Grouping, error)
	AllListGroupings(ctx context.Context) ([]model.Grouping, error)
	AllBookmarkGroupings(ctx context.Context) ([]model.Grouping, error)

	InsertTagMapping(ctx context.Context, m model.TagMapping) error
	UnresolvedLibraryItems(ctx context.Context, site string) ([]model.LibraryItem, error)
	ItemIDsByTags(ctx context.Context, tags []string, site string) ([]string, error)
	GroupIDsForItems(ctx context.Context, itemIDs []string, site string) (map[string]int, error)
}

// Prompter carries the interaction points the engine needs. The CLI
// wires these to real prompts; batch and web callers wire them to fixed
// policies so non-interactive runs never block on input.
type Prompter interface {
	// Confirm asks a yes/no question and reports the answer.
	Confirm(prompt string) bool

	// Echo surfaces a progress message to the user.
	Echo(msg string)

	// SelectMatches presents ambiguous candidates for a token and
	// returns the indices to keep. An empty result keeps none.
	SelectMatches(token string, candidates []string) []int
}
