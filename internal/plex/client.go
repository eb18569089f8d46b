// Package plex adapts the Plex HTTP API to the operations the sync
// engine needs: snapshotting the music section and creating or extending
// collections.
package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/njoerd114/collagesync/internal/model"
)

const (
	defaultTimeout = 30 * time.Second
	clientID       = "collagesync"

	// Plex metadata type for albums.
	typeAlbum = 9
)

// Client talks to one Plex server and one music section.
// Create one with [NewClient], then call [Client.Connect] before use.
type Client struct {
	baseURL string
	token   string
	section string

	sectionID         string
	machineIdentifier string

	hc     *http.Client
	logger *slog.Logger
}

// NewClient creates a Plex API client for the given server and section name.
func NewClient(baseURL, token, section string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		section: section,
		hc:      &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

// Connect resolves the server identity and the configured library
// section. Must be called once before any other method.
func (c *Client) Connect(ctx context.Context) error {
	body, err := c.get(ctx, "/identity", nil)
	if err != nil {
		return fmt.Errorf("fetching server identity: %w", err)
	}
	var identity struct {
		MediaContainer struct {
			MachineIdentifier string `json:"machineIdentifier"`
		} `json:"MediaContainer"`
	}
	if err := json.Unmarshal(body, &identity); err != nil {
		return fmt.Errorf("parsing server identity: %w", err)
	}
	c.machineIdentifier = identity.MediaContainer.MachineIdentifier

	body, err = c.get(ctx, "/library/sections", nil)
	if err != nil {
		return fmt.Errorf("listing library sections: %w", err)
	}
	var sections struct {
		MediaContainer struct {
			Directory []struct {
				Key   string `json:"key"`
				Title string `json:"title"`
				Type  string `json:"type"`
			} `json:"Directory"`
		} `json:"MediaContainer"`
	}
	if err := json.Unmarshal(body, &sections); err != nil {
		return fmt.Errorf("parsing library sections: %w", err)
	}
	for _, dir := range sections.MediaContainer.Directory {
		if dir.Title == c.section {
			c.sectionID = dir.Key
			return nil
		}
	}
	return fmt.Errorf("library section %q not found on server", c.section)
}

// get performs an authenticated GET and returns the body.
func (c *Client) get(ctx context.Context, p string, query url.Values) ([]byte, error) {
	return c.request(ctx, http.MethodGet, p, query)
}

// request performs an authenticated HTTP request.
func (c *Client) request(ctx context.Context, method, p string, query url.Values) ([]byte, error) {
	reqURL := c.baseURL + p
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("X-Plex-Client-Identifier", clientID)

	c.logger.Debug("plex request", "method", method, "path", p)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plex request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading plex response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("plex returned 401 Unauthorized — check plex.token")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("plex returned unexpected status %d for %s", resp.StatusCode, p)
	}
	return body, nil
}

// metadataContainer is the shape shared by album and collection listings.
type metadataContainer struct {
	MediaContainer struct {
		Metadata []metadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

type metadata struct {
	RatingKey string `json:"ratingKey"`
	Title     string `json:"title"`
	AddedAt   int64  `json:"addedAt"`
	Media     []struct {
		Part []struct {
			File string `json:"file"`
		} `json:"Part"`
	} `json:"Media"`
}

// ItemsAddedAfter returns the albums added to the section strictly after
// ts, each with its folder path taken from the first track's media part.
func (c *Client) ItemsAddedAfter(ctx context.Context, ts time.Time) ([]model.LibraryItem, error) {
	query := url.Values{}
	query.Set("type", strconv.Itoa(typeAlbum))
	if !ts.IsZero() {
		query.Set("addedAt>>", strconv.FormatInt(ts.Unix(), 10))
	}

	body, err := c.get(ctx, "/library/sections/"+c.sectionID+"/all", query)
	if err != nil {
		return nil, fmt.Errorf("listing albums: %w", err)
	}
	var container metadataContainer
	if err := json.Unmarshal(body, &container); err != nil {
		return nil, fmt.Errorf("parsing album listing: %w", err)
	}

	var items []model.LibraryItem
	for _, md := range container.MediaContainer.Metadata {
		folder, err := c.albumFolder(ctx, md.RatingKey)
		if err != nil {
			c.logger.Warn("skipping album without resolvable folder",
				"rating_key", md.RatingKey, "title", md.Title, "error", err)
			continue
		}
		items = append(items, model.LibraryItem{
			ID:      md.RatingKey,
			AddedAt: time.Unix(md.AddedAt, 0).UTC(),
			Path:    folder,
		})
	}
	return items, nil
}

// albumFolder resolves an album's folder from its first track's file path.
func (c *Client) albumFolder(ctx context.Context, ratingKey string) (string, error) {
	body, err := c.get(ctx, "/library/metadata/"+ratingKey+"/children", nil)
	if err != nil {
		return "", err
	}
	var container metadataContainer
	if err := json.Unmarshal(body, &container); err != nil {
		return "", fmt.Errorf("parsing album tracks: %w", err)
	}
	for _, track := range container.MediaContainer.Metadata {
		for _, media := range track.Media {
			for _, part := range media.Part {
				if part.File != "" {
					return path.Dir(part.File), nil
				}
			}
		}
	}
	return "", fmt.Errorf("album %s has no track file paths", ratingKey)
}

// ItemsByIDs fetches albums by rating key. Unknown keys are skipped, so
// the result may be shorter than the input.
func (c *Client) ItemsByIDs(ctx context.Context, ids []string) ([]model.LibraryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	body, err := c.get(ctx, "/library/metadata/"+strings.Join(ids, ","), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching albums by id: %w", err)
	}
	var container metadataContainer
	if err := json.Unmarshal(body, &container); err != nil {
		return nil, fmt.Errorf("parsing albums by id: %w", err)
	}
	items := make([]model.LibraryItem, 0, len(container.MediaContainer.Metadata))
	for _, md := range container.MediaContainer.Metadata {
		items = append(items, model.LibraryItem{
			ID:      md.RatingKey,
			AddedAt: time.Unix(md.AddedAt, 0).UTC(),
		})
	}
	return items, nil
}

// FindCollectionByName returns the rating key of the collection with the
// exact title, or "" when the section has no such collection.
func (c *Client) FindCollectionByName(ctx context.Context, name string) (string, error) {
	body, err := c.get(ctx, "/library/sections/"+c.sectionID+"/collections", nil)
	if err != nil {
		return "", fmt.Errorf("listing collections: %w", err)
	}
	var container metadataContainer
	if err := json.Unmarshal(body, &container); err != nil {
		return "", fmt.Errorf("parsing collection listing: %w", err)
	}
	for _, md := range container.MediaContainer.Metadata {
		if md.Title == name {
			return md.RatingKey, nil
		}
	}
	return "", nil
}

// CreateCollection creates a collection containing the given albums and
// returns its rating key.
func (c *Client) CreateCollection(ctx context.Context, name string, itemIDs []string) (string, error) {
	query := url.Values{}
	query.Set("type", strconv.Itoa(typeAlbum))
	query.Set("title", name)
	query.Set("smart", "0")
	query.Set("sectionId", c.sectionID)
	query.Set("uri", c.metadataURI(itemIDs))

	body, err := c.request(ctx, http.MethodPost, "/library/collections", query)
	if err != nil {
		return "", fmt.Errorf("creating collection %q: %w", name, err)
	}
	var container metadataContainer
	if err := json.Unmarshal(body, &container); err != nil {
		return "", fmt.Errorf("parsing create-collection response: %w", err)
	}
	if len(container.MediaContainer.Metadata) == 0 {
		return "", fmt.Errorf("creating collection %q: server returned no metadata", name)
	}
	return container.MediaContainer.Metadata[0].RatingKey, nil
}

// AddToCollection adds albums to an existing collection. Albums already
// in the collection are a no-op on the server side.
func (c *Client) AddToCollection(ctx context.Context, localID string, itemIDs []string) error {
	query := url.Values{}
	query.Set("uri", c.metadataURI(itemIDs))
	_, err := c.request(ctx, http.MethodPut, "/library/collections/"+localID+"/items", query)
	if err != nil {
		return fmt.Errorf("adding %d albums to collection %s: %w", len(itemIDs), localID, err)
	}
	return nil
}

// CollectionItems returns the rating keys of a collection's members.
func (c *Client) CollectionItems(ctx context.Context, localID string) ([]string, error) {
	body, err := c.get(ctx, "/library/collections/"+localID+"/children", nil)
	if err != nil {
		return nil, fmt.Errorf("listing members of collection %s: %w", localID, err)
	}
	var container metadataContainer
	if err := json.Unmarshal(body, &container); err != nil {
		return nil, fmt.Errorf("parsing collection members: %w", err)
	}
	ids := make([]string, 0, len(container.MediaContainer.Metadata))
	for _, md := range container.MediaContainer.Metadata {
		ids = append(ids, md.RatingKey)
	}
	return ids, nil
}

// metadataURI builds the server-scoped metadata URI Plex expects when
// adding items to collections.
func (c *Client) metadataURI(itemIDs []string) string {
	return fmt.Sprintf("server://%s/com.plexapp.plugins.library/library/metadata/%s",
		c.machineIdentifier, strings.Join(itemIDs, ","))
}
