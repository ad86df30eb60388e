/**
 * @description
 * Client for the Twitter/X recent-search API.
 * Searches for tweets mentioning the tracked universe.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - internal/config
 */

package ingestion

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helvinmg/crowdpulse/internal/config"
	"github.com/helvinmg/crowdpulse/internal/models"
	"github.com/helvinmg/crowdpulse/internal/symbols"
)

// TwitterClient fetches tweets via the v2 recent-search endpoint.
type TwitterClient struct {
	baseURL     string
	bearerToken string
	queries     []string
	httpClient  *http.Client
}

type twitterTweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type twitterResponse struct {
	Data []twitterTweet `json:"data"`
}

func NewTwitterClient(cfg *config.Config, queries []string) *TwitterClient {
	return &TwitterClient{
		baseURL:     strings.TrimRight(cfg.Sources.TwitterURL, "/"),
		bearerToken: cfg.Sources.TwitterBearerToken,
		queries:     queries,
		httpClient: &http.Client{
			Timeout: cfg.Sources.FetchTimeout,
		},
	}
}

func (c *TwitterClient) Name() string { return "twitter" }

// Fetch runs each configured search query over the window.
func (c *TwitterClient) Fetch(ctx context.Context, window Window) ([]models.SocialPost, error) {
	if c.bearerToken == "" {
		return nil, fmt.Errorf("twitter bearer token is not configured")
	}

	headers := map[string]string{"Authorization": "Bearer " + c.bearerToken}
	var posts []models.SocialPost

	for _, query := range c.queries {
		q := url.Values{}
		q.Set("query", query)
		q.Set("start_time", window.Since.UTC().Format(time.RFC3339))
		q.Set("end_time", window.Until.UTC().Format(time.RFC3339))
		q.Set("max_results", "100")
		q.Set("tweet.fields", "created_at,author_id")

		var result twitterResponse
		endpoint := fmt.Sprintf("%s/tweets/search/recent?%s", c.baseURL, q.Encode())
		if err := getJSON(ctx, c.httpClient, endpoint, headers, &result); err != nil {
			return posts, fmt.Errorf("twitter fetch failed for query %q: %w", query, err)
		}

		for _, tw := range result.Data {
			text := strings.TrimSpace(tw.Text)
			if text == "" || tw.ID == "" {
				continue
			}
			posts = append(posts, models.SocialPost{
				Source:   c.Name(),
				RawText:  text,
				Author:   tw.AuthorID,
				SourceID: tw.ID,
				PostedAt: tw.CreatedAt,
				Symbol:   symbols.PrimarySymbol(text),
			})
		}
	}
	return posts, nil
}
