package gazelle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var testLogger = slog.Default()

// newTestClient points a Client at a test server with a wide-open
// limiter and no retry delay.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("red", srv.URL, "test-key", NewLimiter(1000, time.Second), testLogger)
	c.retryDelay = 0
	return c
}

func TestClient_CollageSuccess(t *testing.T) {
	var gotAuth, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"status":"success","response":{"id":55,"name":"Best of 2020 &amp; 2021","torrentgroups":[{"id":100},{"id":101}]}}`)
	})

	list, err := c.Collage(context.Background(), 55)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "test-key" {
		t.Errorf("Authorization = %q, want the API key", gotAuth)
	}
	if gotQuery != "action=collage&id=55&showonlygroups=true" {
		t.Errorf("query = %q", gotQuery)
	}
	if list.Name != "Best of 2020 & 2021" {
		t.Errorf("Name = %q, want HTML-unescaped name", list.Name)
	}
	if len(list.GroupIDs) != 2 {
		t.Errorf("GroupIDs = %v, want two", list.GroupIDs)
	}
}

func TestClient_TransientFailureRetriedThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			// Drop the connection to force a transport error.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("server does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatal(err)
			}
			_ = conn.Close()
			return
		}
		fmt.Fprint(w, `{"status":"success","response":{"bookmarks":[{"id":7}]}}`)
	}))
	t.Cleanup(srv.Close)

	c := NewClient("red", srv.URL, "k", NewLimiter(1000, time.Second), testLogger)
	c.retryDelay = 0

	list, err := c.Bookmarks(context.Background())
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if calls != 3 {
		t.Errorf("server saw %d calls, want 3", calls)
	}
	if len(list.GroupIDs) != 1 || list.GroupIDs[0] != 7 {
		t.Errorf("GroupIDs = %v, want [7]", list.GroupIDs)
	}
}

func TestClient_AllAttemptsExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		hj := w.(http.Hijacker)
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Fatal(err)
		}
		_ = conn.Close()
	}))
	t.Cleanup(srv.Close)

	c := NewClient("red", srv.URL, "k", NewLimiter(1000, time.Second), testLogger)
	c.retryDelay = 0

	_, err := c.Bookmarks(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, ErrTransient) {
		t.Errorf("err = %v, want ErrTransient", err)
	}
	if calls != defaultMaxAttempts {
		t.Errorf("server saw %d calls, want exactly %d", calls, defaultMaxAttempts)
	}
}

func TestClient_HTTPErrorNotRetried(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := c.Collage(context.Background(), 1)
	if err == nil {
		t.Fatal("expected an error")
	}
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("err = %v, want *ServiceError", err)
	}
	if svcErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", svcErr.Status)
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want 1 (no retry on definitive responses)", calls)
	}
}

func TestClient_EnvelopeFailureNotRetried(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"status":"failure","error":"bad id parameter"}`)
	})

	_, err := c.TorrentGroup(context.Background(), 0)
	if err == nil {
		t.Fatal("expected an error")
	}
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("err = %v, want *ServiceError", err)
	}
	if svcErr.Detail != "bad id parameter" {
		t.Errorf("Detail = %q", svcErr.Detail)
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want 1", calls)
	}
}

func TestClient_MalformedJSONIsServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>maintenance</html>`)
	})

	_, err := c.Bookmarks(context.Background())
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("err = %v, want *ServiceError for a non-JSON body", err)
	}
}

func TestClient_TorrentGroupDedupesFileTokens(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","response":{
			"group":{"id":9,"name":"Album","musicInfo":{"artists":[{"name":"Artist"}]}},
			"torrents":[
				{"filePath":"Artist - Album (2020) [FLAC]"},
				{"filePath":"Artist - Album (2020) [FLAC]"},
				{"filePath":"Artist - Album (2020) [MP3]"},
				{"filePath":""}
			]}}`)
	})

	group, err := c.TorrentGroup(context.Background(), 9)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(group.FileTokens) != 2 {
		t.Errorf("FileTokens = %v, want two distinct non-empty tokens", group.FileTokens)
	}
	if len(group.Artists) != 1 || group.Artists[0] != "Artist" {
		t.Errorf("Artists = %v", group.Artists)
	}
}

func TestClient_AddToCollagePostsForm(t *testing.T) {
	var gotMethod, gotForm string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotForm = r.PostForm.Encode()
		fmt.Fprint(w, `{"status":"success","response":{"groupsadded":[101],"groupsduplicated":[100]}}`)
	})

	result, err := c.AddToCollage(context.Background(), 7, []int{100, 101})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotForm != "collageid=7&groupids=100%2C101" {
		t.Errorf("form = %q", gotForm)
	}
	if len(result.Added) != 1 || len(result.Duplicated) != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestClient_SearchFileTokenArtistForms(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"success","response":{"results":[
			{"groupId":1,"groupName":"One","artist":"Solo","groupYear":2020,"tags":["rock"]},
			{"groupId":2,"groupName":"Two","artist":["A","B"],"groupYear":2021,"tags":["jazz"]}
		]}}`)
	})

	matches, err := c.SearchFileToken(context.Background(), "One")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if len(matches[0].Artists) != 1 || matches[0].Artists[0] != "Solo" {
		t.Errorf("match 0 artists = %v", matches[0].Artists)
	}
	if len(matches[1].Artists) != 2 {
		t.Errorf("match 1 artists = %v", matches[1].Artists)
	}
}
