// Package gazelle is the client for Gazelle-based tracker sites (RED,
// OPS). Every call goes through a per-site sliding-window rate limiter
// and a fixed-delay retry for transient transport failures; definitive
// site responses surface immediately as [*ServiceError].
package gazelle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/njoerd114/collagesync/internal/model"
)

const httpTimeout = 10 * time.Second

// Client talks to one Gazelle site. Create one with [NewClient].
type Client struct {
	site    string
	baseURL string
	apiKey  string
	hc      *http.Client
	limiter *Limiter
	logger  *slog.Logger

	// attempts and retryDelay are fixed in production; tests shrink them.
	attempts   int
	retryDelay time.Duration
}

// NewClient creates a Client for a site. The limiter is shared by all
// callers targeting that site.
func NewClient(site, baseURL, apiKey string, limiter *Limiter, logger *slog.Logger) *Client {
	return &Client{
		site:       site,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		hc:         &http.Client{Timeout: httpTimeout},
		limiter:    limiter,
		logger:     logger,
		attempts:   defaultMaxAttempts,
		retryDelay: defaultRetryDelay,
	}
}

// Site returns the site key this client is configured for.
func (c *Client) Site() string {
	return c.site
}

// envelope is the outer JSON shape of every Gazelle ajax response.
type envelope struct {
	Status   string          `json:"status"`
	Error    string          `json:"error"`
	Response json.RawMessage `json:"response"`
}

// call performs one rate-limited, retried GET against the ajax endpoint
// and returns the raw response payload.
func (c *Client) call(ctx context.Context, action string, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, action, params, nil)
}

// post performs a rate-limited, retried POST with a form body.
func (c *Client) post(ctx context.Context, action string, params url.Values, form url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, action, params, form)
}

func (c *Client) do(ctx context.Context, method, action string, params, form url.Values) (json.RawMessage, error) {
	endpoint := c.baseURL + "/ajax.php?action=" + url.QueryEscape(action)
	if len(params) > 0 {
		endpoint += "&" + params.Encode()
	}

	var payload json.RawMessage
	err := retry(ctx, c.attempts, c.retryDelay, func() error {
		// Each attempt consumes a rate-limit slot.
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return fmt.Errorf("building request for %s: %w", action, err)
		}
		req.Header.Set("Authorization", c.apiKey)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		c.logger.Debug("gazelle call", "site", c.site, "action", action)

		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &ServiceError{Action: action, Status: resp.StatusCode, Detail: snippet(raw)}
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return &ServiceError{Action: action, Status: resp.StatusCode, Detail: "malformed JSON body: " + err.Error()}
		}
		if env.Status != "success" {
			detail := env.Error
			if detail == "" {
				detail = "status " + env.Status
			}
			return &ServiceError{Action: action, Status: resp.StatusCode, Detail: detail}
		}

		payload = env.Response
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// snippet truncates a response body for error messages.
func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}

// --- typed operations --------------------------------------------------------

// Collage fetches a collage's name and group membership.
func (c *Client) Collage(ctx context.Context, id int) (model.RemoteList, error) {
	params := url.Values{}
	params.Set("id", strconv.Itoa(id))
	params.Set("showonlygroups", "true")
	raw, err := c.call(ctx, "collage", params)
	if err != nil {
		return model.RemoteList{}, fmt.Errorf("fetching collage %d: %w", id, err)
	}
	return mapCollage(raw, id)
}

// Bookmarks fetches the authenticated user's bookmarked groups.
func (c *Client) Bookmarks(ctx context.Context) (model.RemoteList, error) {
	raw, err := c.call(ctx, "bookmarks", nil)
	if err != nil {
		return model.RemoteList{}, fmt.Errorf("fetching bookmarks: %w", err)
	}
	return mapBookmarks(raw, c.site)
}

// TorrentGroup fetches one group's name, artists, and file tokens.
func (c *Client) TorrentGroup(ctx context.Context, id int) (model.RemoteGroup, error) {
	params := url.Values{}
	params.Set("id", strconv.Itoa(id))
	raw, err := c.call(ctx, "torrentgroup", params)
	if err != nil {
		return model.RemoteGroup{}, fmt.Errorf("fetching torrent group %d: %w", id, err)
	}
	return mapTorrentGroup(raw)
}

// UserInfo identifies the authenticated user.
func (c *Client) UserInfo(ctx context.Context) (UserInfo, error) {
	raw, err := c.call(ctx, "index", nil)
	if err != nil {
		return UserInfo{}, fmt.Errorf("fetching user info: %w", err)
	}
	var wire struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return UserInfo{}, &ServiceError{Action: "index", Detail: "unexpected response shape: " + err.Error()}
	}
	return UserInfo{ID: wire.ID, Username: wire.Username}, nil
}

// UserCollages lists the collages a user manages. Used to verify
// ownership before an upstream push.
func (c *Client) UserCollages(ctx context.Context, userID int) ([]model.RemoteList, error) {
	params := url.Values{}
	params.Set("userid", strconv.Itoa(userID))
	raw, err := c.call(ctx, "collages", params)
	if err != nil {
		return nil, fmt.Errorf("fetching collages of user %d: %w", userID, err)
	}
	return mapUserCollages(raw)
}

// AddToCollage adds groups to a collage the user owns. The site reports
// per-group outcomes; duplicates are not an error.
func (c *Client) AddToCollage(ctx context.Context, collageID int, groupIDs []int) (AddResult, error) {
	ids := make([]string, len(groupIDs))
	for i, id := range groupIDs {
		ids[i] = strconv.Itoa(id)
	}
	form := url.Values{}
	form.Set("collageid", strconv.Itoa(collageID))
	form.Set("groupids", strings.Join(ids, ","))

	raw, err := c.post(ctx, "addtocollage", nil, form)
	if err != nil {
		return AddResult{}, fmt.Errorf("adding %d groups to collage %d: %w", len(groupIDs), collageID, err)
	}
	var wire struct {
		Added      []int `json:"groupsadded"`
		Rejected   []int `json:"groupsrejected"`
		Duplicated []int `json:"groupsduplicated"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return AddResult{}, &ServiceError{Action: "addtocollage", Detail: "unexpected response shape: " + err.Error()}
	}
	return AddResult{Added: wire.Added, Rejected: wire.Rejected, Duplicated: wire.Duplicated}, nil
}

// SearchFileToken searches the site for torrents whose file list contains
// the given token. Used by the tag scanner to map library items to groups.
func (c *Client) SearchFileToken(ctx context.Context, token string) ([]SearchMatch, error) {
	params := url.Values{}
	params.Set("filelist", token)
	raw, err := c.call(ctx, "browse", params)
	if err != nil {
		return nil, fmt.Errorf("searching file token %q: %w", token, err)
	}
	return mapSearchResults(raw)
}

// UserInfo identifies the authenticated user on a site.
type UserInfo struct {
	ID       int
	Username string
}

// AddResult is the per-group outcome of an AddToCollage call.
type AddResult struct {
	Added      []int
	Rejected   []int
	Duplicated []int
}

// SearchMatch is one hit from a file-token search.
type SearchMatch struct {
	GroupID int
	Name    string
	Artists []string
	Year    int
	Tags    []string
}
