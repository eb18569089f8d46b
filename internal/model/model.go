// Package model defines shared types used across the sync engine, the
// tracker client, and the Plex adapter.
package model

import (
	"strings"
	"time"
)

// LibraryItem is one album known to the Plex library, identified by its
// rating key. Items are append-only: the snapshot in the store grows as
// new albums are added and is only cleared by an explicit reset.
type LibraryItem struct {
	// ID is the Plex rating key. Opaque to everything but the Plex adapter.
	ID string

	// AddedAt is when Plex first saw the album. Snapshot refreshes fetch
	// only items added after the newest AddedAt already stored.
	AddedAt time.Time

	// Path is the album folder on disk, taken from the first track's
	// media part. Used by the matcher for token resolution.
	Path string
}

// RemoteGroup is a torrent group fetched from a Gazelle site. Groups are
// transient: only their IDs are persisted, as grouping membership.
type RemoteGroup struct {
	ID      int
	Name    string
	Artists []string

	// FileTokens are the torrent folder names of the group's torrents.
	// Each token is matched against library item path segments.
	FileTokens []string
}

// RemoteList is the membership of a collage (or bookmark feed) as
// reported by the site: a display name plus the IDs of its groups.
type RemoteList struct {
	// ID is the collage ID. Zero for bookmark feeds.
	ID       int
	Name     string
	GroupIDs []int
}

// GroupingKind distinguishes the two persisted grouping flavours.
type GroupingKind int

const (
	// KindList is a grouping tied 1:1 to a remote collage.
	KindList GroupingKind = iota
	// KindBookmark is a grouping tied to a user's bookmark feed on one site.
	KindBookmark
)

// String returns the human-readable label for the grouping kind.
func (k GroupingKind) String() string {
	if k == KindBookmark {
		return "bookmark"
	}
	return "collage"
}

// Grouping is a local Plex collection tracked in the store, together with
// the set of remote group IDs already applied to it.
type Grouping struct {
	// LocalID is the Plex rating key of the collection.
	LocalID string

	// RemoteListID is the collage ID on the site. Zero for bookmark groupings.
	RemoteListID int

	// Name is the collection title. For bookmark groupings it is derived,
	// not stored; see BookmarksName.
	Name string

	Site string
	Kind GroupingKind

	// MemberGroupIDs holds exactly the remote group IDs that resolved to at
	// least one library item and were applied to the collection. Groups
	// that resolved to nothing are left out so the next sync retries them.
	MemberGroupIDs []int
}

// TagMapping links a library item to its authoritative remote group and
// the site's descriptive tags, independent of any grouping.
type TagMapping struct {
	ItemID  string
	GroupID int
	Site    string
	Tags    []string
}

// BookmarksName derives the collection name for a site's bookmark feed.
func BookmarksName(site string) string {
	return strings.ToUpper(site) + " Bookmarks"
}
