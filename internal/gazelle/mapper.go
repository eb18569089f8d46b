package gazelle

import (
	"encoding/json"
	"html"

	"github.com/njoerd114/collagesync/internal/model"
)

// The site HTML-escapes display strings in JSON responses, so every
// name and artist passes through html.UnescapeString on the way in.

func mapCollage(raw json.RawMessage, id int) (model.RemoteList, error) {
	var wire struct {
		ID            int    `json:"id"`
		Name          string `json:"name"`
		TorrentGroups []struct {
			ID int `json:"id"`
		} `json:"torrentgroups"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return model.RemoteList{}, &ServiceError{Action: "collage", Detail: "unexpected response shape: " + err.Error()}
	}
	if wire.ID == 0 {
		wire.ID = id
	}
	list := model.RemoteList{
		ID:   wire.ID,
		Name: html.UnescapeString(wire.Name),
	}
	for _, tg := range wire.TorrentGroups {
		list.GroupIDs = append(list.GroupIDs, tg.ID)
	}
	return list, nil
}

func mapBookmarks(raw json.RawMessage, site string) (model.RemoteList, error) {
	var wire struct {
		Bookmarks []struct {
			ID int `json:"id"`
		} `json:"bookmarks"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return model.RemoteList{}, &ServiceError{Action: "bookmarks", Detail: "unexpected response shape: " + err.Error()}
	}
	list := model.RemoteList{Name: model.BookmarksName(site)}
	for _, b := range wire.Bookmarks {
		list.GroupIDs = append(list.GroupIDs, b.ID)
	}
	return list, nil
}

func mapTorrentGroup(raw json.RawMessage) (model.RemoteGroup, error) {
	var wire struct {
		Group struct {
			ID        int    `json:"id"`
			Name      string `json:"name"`
			MusicInfo struct {
				Artists []struct {
					Name string `json:"name"`
				} `json:"artists"`
			} `json:"musicInfo"`
		} `json:"group"`
		Torrents []struct {
			FilePath string `json:"filePath"`
		} `json:"torrents"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return model.RemoteGroup{}, &ServiceError{Action: "torrentgroup", Detail: "unexpected response shape: " + err.Error()}
	}

	group := model.RemoteGroup{
		ID:   wire.Group.ID,
		Name: html.UnescapeString(wire.Group.Name),
	}
	for _, a := range wire.Group.MusicInfo.Artists {
		group.Artists = append(group.Artists, html.UnescapeString(a.Name))
	}

	// Each torrent's filePath is its folder name. Editions of the same
	// release often share one, so dedupe.
	seen := make(map[string]struct{}, len(wire.Torrents))
	for _, t := range wire.Torrents {
		token := html.UnescapeString(t.FilePath)
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		group.FileTokens = append(group.FileTokens, token)
	}
	return group, nil
}

func mapUserCollages(raw json.RawMessage) ([]model.RemoteList, error) {
	var wire struct {
		Collages []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"collages"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &ServiceError{Action: "collages", Detail: "unexpected response shape: " + err.Error()}
	}
	lists := make([]model.RemoteList, 0, len(wire.Collages))
	for _, c := range wire.Collages {
		lists = append(lists, model.RemoteList{ID: c.ID, Name: html.UnescapeString(c.Name)})
	}
	return lists, nil
}

func mapSearchResults(raw json.RawMessage) ([]SearchMatch, error) {
	var wire struct {
		Results []struct {
			GroupID   int             `json:"groupId"`
			GroupName string          `json:"groupName"`
			Artist    json.RawMessage `json:"artist"`
			GroupYear int             `json:"groupYear"`
			Tags      []string        `json:"tags"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &ServiceError{Action: "browse", Detail: "unexpected response shape: " + err.Error()}
	}

	matches := make([]SearchMatch, 0, len(wire.Results))
	for _, r := range wire.Results {
		m := SearchMatch{
			GroupID: r.GroupID,
			Name:    html.UnescapeString(r.GroupName),
			Year:    r.GroupYear,
			Tags:    r.Tags,
		}
		m.Artists = parseArtistField(r.Artist)
		matches = append(matches, m)
	}
	return matches, nil
}

// parseArtistField tolerates both the single-string and list forms the
// browse endpoint uses for the artist field.
func parseArtistField(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{html.UnescapeString(one)}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		for i := range many {
			many[i] = html.UnescapeString(many[i])
		}
		return many
	}
	return nil
}
