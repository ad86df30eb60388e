/**
 * @description
 * Client for the YouTube Data API.
 * Pulls recent comments from the finance videos tracked for the universe.
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

// YouTubeClient fetches comment threads for tracked videos.
type YouTubeClient struct {
	baseURL    string
	apiKey     string
	videoIDs   []string
	httpClient *http.Client
}

type youtubeCommentThread struct {
	ID      string `json:"id"`
	Snippet struct {
		TopLevelComment struct {
			Snippet struct {
				TextOriginal    string    `json:"textOriginal"`
				AuthorDisplayID string    `json:"authorDisplayName"`
				PublishedAt     time.Time `json:"publishedAt"`
			} `json:"snippet"`
		} `json:"topLevelComment"`
	} `json:"snippet"`
}

type youtubeResponse struct {
	Items []youtubeCommentThread `json:"items"`
}

func NewYouTubeClient(cfg *config.Config, videoIDs []string) *YouTubeClient {
	return &YouTubeClient{
		baseURL:  strings.TrimRight(cfg.Sources.YouTubeURL, "/"),
		apiKey:   cfg.Sources.YouTubeAPIKey,
		videoIDs: videoIDs,
		httpClient: &http.Client{
			Timeout: cfg.Sources.FetchTimeout,
		},
	}
}

func (c *YouTubeClient) Name() string { return "youtube" }

// Fetch pulls top-level comments for each tracked video, keeping only those
// published inside the window.
func (c *YouTubeClient) Fetch(ctx context.Context, window Window) ([]models.SocialPost, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("youtube api key is not configured")
	}

	var posts []models.SocialPost
	for _, videoID := range c.videoIDs {
		q := url.Values{}
		q.Set("part", "snippet")
		q.Set("videoId", videoID)
		q.Set("order", "time")
		q.Set("maxResults", "100")
		q.Set("key", c.apiKey)

		var result youtubeResponse
		endpoint := fmt.Sprintf("%s/commentThreads?%s", c.baseURL, q.Encode())
		if err := getJSON(ctx, c.httpClient, endpoint, nil, &result); err != nil {
			return posts, fmt.Errorf("youtube fetch failed for video %s: %w", videoID, err)
		}

		for _, item := range result.Items {
			s := item.Snippet.TopLevelComment.Snippet
			text := strings.TrimSpace(s.TextOriginal)
			if text == "" || item.ID == "" {
				continue
			}
			if s.PublishedAt.Before(window.Since) || s.PublishedAt.After(window.Until) {
				continue
			}
			posts = append(posts, models.SocialPost{
				Source:   c.Name(),
				RawText:  text,
				Author:   s.AuthorDisplayID,
				SourceID: item.ID,
				PostedAt: s.PublishedAt,
				Symbol:   symbols.PrimarySymbol(text),
			})
		}
	}
	return posts, nil
}
