/**
 * @description
 * Source adapter contract for the ingestion pipeline.
 * Each external platform is an opaque producer of raw social posts; the
 * orchestrator treats them uniformly and gates every fetch through the
 * quota ledger.
 *
 * @dependencies
 * - internal/models
 */

package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/helvinmg/crowdpulse/internal/logger"
	"github.com/helvinmg/crowdpulse/internal/models"
)

// Window is the requested ingestion time range.
type Window struct {
	Since time.Time
	Until time.Time
}

// Source is the uniform capability every discussion platform exposes.
type Source interface {
	// Name identifies the platform and doubles as the quota service name.
	Name() string
	// Fetch returns the raw posts published inside the window. Returned
	// posts must carry Source and SourceID so duplicate ingestion of the
	// same item is a no-op downstream.
	Fetch(ctx context.Context, window Window) ([]models.SocialPost, error)
}

// getJSON performs a GET and decodes the JSON body into out.
// Shared by the thin platform clients below.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		logger.Error("Source API error: %d - %s", resp.StatusCode, truncate(string(body), 300))
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "...(truncated)"
}
