/**
 * @description
 * Client for the Reddit API.
 * Pulls new posts from the Indian-markets subreddits. The oauth.reddit.com
 * listing endpoints reject anonymous requests, so the client first trades
 * its app credentials for a bearer token (client_credentials grant) and
 * caches it until shortly before expiry.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - internal/config
 */

package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/helvinmg/crowdpulse/internal/config"
	"github.com/helvinmg/crowdpulse/internal/models"
	"github.com/helvinmg/crowdpulse/internal/symbols"
)

const redditUserAgent = "crowdpulse/0.1"

// tokenExpirySlack renews the token a minute early so a fetch never
// starts with a token about to lapse mid-listing.
const tokenExpirySlack = time.Minute

// RedditClient fetches new submissions from tracked subreddits.
type RedditClient struct {
	baseURL    string
	authURL    string
	clientID   string
	secret     string
	subreddits []string
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID         string  `json:"id"`
				Title      string  `json:"title"`
				Selftext   string  `json:"selftext"`
				Author     string  `json:"author"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func NewRedditClient(cfg *config.Config, subreddits []string) *RedditClient {
	return &RedditClient{
		baseURL:    strings.TrimRight(cfg.Sources.RedditURL, "/"),
		authURL:    cfg.Sources.RedditAuthURL,
		clientID:   cfg.Sources.RedditClientID,
		secret:     cfg.Sources.RedditSecret,
		subreddits: subreddits,
		httpClient: &http.Client{
			Timeout: cfg.Sources.FetchTimeout,
		},
	}
}

func (c *RedditClient) Name() string { return "reddit" }

// ensureToken returns a valid bearer token, fetching a fresh one via the
// client_credentials grant when the cached one is missing or stale.
func (c *RedditClient) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySlack)) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", redditUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reddit token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("reddit token endpoint returned status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var token redditTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode reddit token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("reddit token response carried no access token")
	}

	c.token = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return c.token, nil
}

// Fetch pulls the newest submissions from each subreddit, keeping only
// those created inside the window.
func (c *RedditClient) Fetch(ctx context.Context, window Window) ([]models.SocialPost, error) {
	if c.clientID == "" || c.secret == "" {
		return nil, fmt.Errorf("reddit api credentials are not configured")
	}

	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{
		"User-Agent":    redditUserAgent,
		"Authorization": "Bearer " + token,
	}

	var posts []models.SocialPost
	for _, sub := range c.subreddits {
		var result redditListing
		endpoint := fmt.Sprintf("%s/r/%s/new.json?limit=100", c.baseURL, sub)
		if err := getJSON(ctx, c.httpClient, endpoint, headers, &result); err != nil {
			return posts, fmt.Errorf("reddit fetch failed for r/%s: %w", sub, err)
		}

		for _, child := range result.Data.Children {
			d := child.Data
			text := strings.TrimSpace(strings.TrimSpace(d.Title) + " " + strings.TrimSpace(d.Selftext))
			if text == "" || d.ID == "" {
				continue
			}
			createdAt := time.Unix(int64(d.CreatedUTC), 0).UTC()
			if createdAt.Before(window.Since) || createdAt.After(window.Until) {
				continue
			}
			posts = append(posts, models.SocialPost{
				Source:   c.Name(),
				RawText:  text,
				Author:   d.Author,
				SourceID: d.ID,
				PostedAt: createdAt,
				Symbol:   symbols.PrimarySymbol(text),
			})
		}
	}
	return posts, nil
}
