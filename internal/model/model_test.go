package model

import "testing"

func TestBookmarksName(t *testing.T) {
	if got := BookmarksName("red"); got != "RED Bookmarks" {
		t.Errorf("BookmarksName(red) = %q", got)
	}
	if got := BookmarksName("ops"); got != "OPS Bookmarks" {
		t.Errorf("BookmarksName(ops) = %q", got)
	}
}

func TestGroupingKindString(t *testing.T) {
	if KindList.String() != "collage" || KindBookmark.String() != "bookmark" {
		t.Errorf("kind labels = %q/%q", KindList, KindBookmark)
	}
}
