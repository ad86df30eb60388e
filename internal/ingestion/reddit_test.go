package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/helvinmg/crowdpulse/internal/config"
)

func redditTestConfig(apiURL, authURL string) *config.Config {
	return &config.Config{
		Sources: config.SourcesConfig{
			RedditURL:      apiURL,
			RedditAuthURL:  authURL,
			RedditClientID: "test-client",
			RedditSecret:   "test-secret",
			FetchTimeout:   5 * time.Second,
		},
	}
}

func newRedditServers(t *testing.T, tokenCalls *int64, listingAuth *string) (*httptest.Server, *httptest.Server) {
	t.Helper()

	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "test-client" || pass != "test-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-123",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(auth.Close)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*listingAuth = r.Header.Get("Authorization")
		if !strings.HasPrefix(r.URL.Path, "/r/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"data":{"children":[
			{"data":{"id":"abc1","title":"RELIANCE breakout incoming","selftext":"","author":"u1","created_utc":%d}},
			{"data":{"id":"abc2","title":"old news","selftext":"","author":"u2","created_utc":%d}}
		]}}`, time.Now().UTC().Add(-time.Hour).Unix(), time.Now().UTC().Add(-72*time.Hour).Unix())
	}))
	t.Cleanup(api.Close)

	return api, auth
}

func TestRedditFetchAuthenticatesAndFilters(t *testing.T) {
	var tokenCalls int64
	var listingAuth string
	api, auth := newRedditServers(t, &tokenCalls, &listingAuth)

	client := NewRedditClient(redditTestConfig(api.URL, auth.URL), []string{"IndianStockMarket"})
	now := time.Now().UTC()
	window := Window{Since: now.Add(-24 * time.Hour), Until: now}

	posts, err := client.Fetch(context.Background(), window)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if listingAuth != "Bearer tok-123" {
		t.Errorf("listing request carried %q, want the bearer token", listingAuth)
	}
	if len(posts) != 1 {
		t.Fatalf("expected only the in-window post, got %d", len(posts))
	}
	if posts[0].SourceID != "abc1" || posts[0].Source != "reddit" {
		t.Errorf("unexpected post: %+v", posts[0])
	}
}

func TestRedditTokenIsCachedAcrossFetches(t *testing.T) {
	var tokenCalls int64
	var listingAuth string
	api, auth := newRedditServers(t, &tokenCalls, &listingAuth)

	client := NewRedditClient(redditTestConfig(api.URL, auth.URL), []string{"IndianStockMarket"})
	now := time.Now().UTC()
	window := Window{Since: now.Add(-24 * time.Hour), Until: now}

	for i := 0; i < 3; i++ {
		if _, err := client.Fetch(context.Background(), window); err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
	}
	if got := atomic.LoadInt64(&tokenCalls); got != 1 {
		t.Errorf("token should be exchanged once and cached, got %d exchanges", got)
	}
}

func TestRedditFetchRequiresCredentials(t *testing.T) {
	cfg := redditTestConfig("http://example.invalid", "http://example.invalid")
	cfg.Sources.RedditClientID = ""

	client := NewRedditClient(cfg, []string{"IndianStockMarket"})
	if _, err := client.Fetch(context.Background(), Window{Since: time.Now().Add(-time.Hour), Until: time.Now()}); err == nil {
		t.Fatal("expected an error without credentials")
	}
}
