/**
 * @description
 * Client for the Telegram gateway service.
 * Pulls recent channel messages from the market-discussion channels the
 * gateway is subscribed to.
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

// TelegramClient fetches channel messages from the Telegram gateway.
type TelegramClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type telegramMessage struct {
	MessageID string    `json:"message_id"`
	Channel   string    `json:"channel"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	PostedAt  time.Time `json:"posted_at"`
}

type telegramResponse struct {
	Messages []telegramMessage `json:"messages"`
}

func NewTelegramClient(cfg *config.Config) *TelegramClient {
	return &TelegramClient{
		baseURL: strings.TrimRight(cfg.Sources.TelegramGatewayURL, "/"),
		apiKey:  cfg.Sources.TelegramAPIKey,
		httpClient: &http.Client{
			Timeout: cfg.Sources.FetchTimeout,
		},
	}
}

func (c *TelegramClient) Name() string { return "telegram" }

// Fetch pulls messages posted inside the window from all subscribed channels.
func (c *TelegramClient) Fetch(ctx context.Context, window Window) ([]models.SocialPost, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("telegram gateway url is not configured")
	}

	q := url.Values{}
	q.Set("since", window.Since.UTC().Format(time.RFC3339))
	q.Set("until", window.Until.UTC().Format(time.RFC3339))

	var result telegramResponse
	endpoint := fmt.Sprintf("%s/v1/messages?%s", c.baseURL, q.Encode())
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := getJSON(ctx, c.httpClient, endpoint, headers, &result); err != nil {
		return nil, fmt.Errorf("telegram fetch failed: %w", err)
	}

	posts := make([]models.SocialPost, 0, len(result.Messages))
	for _, m := range result.Messages {
		text := strings.TrimSpace(m.Text)
		if text == "" || m.MessageID == "" {
			continue
		}
		posts = append(posts, models.SocialPost{
			Source:   c.Name(),
			RawText:  text,
			Author:   m.Author,
			SourceID: fmt.Sprintf("%s:%s", m.Channel, m.MessageID),
			PostedAt: m.PostedAt,
			Symbol:   symbols.PrimarySymbol(text),
		})
	}
	return posts, nil
}
