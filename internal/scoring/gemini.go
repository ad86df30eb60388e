/**
 * @description
 * Gemini-backed sentiment scorer.
 * Sends a batch of cleaned social texts to the Gemini generateContent API
 * in JSON mode and parses one (label, probability) pair per text. Built
 * for Hinglish-heavy market chatter where lexicon matching falls short.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - internal/config
 *
 * @notes
 * - Retries on 429/5xx and timeouts with linear backoff.
 * - A malformed entry in the model's answer degrades to neutral/0 for
 *   that text only; the rest of the batch is kept.
 */

package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/helvinmg/crowdpulse/internal/config"
	"github.com/helvinmg/crowdpulse/internal/logger"
)

const (
	geminiRequestTimeout = 60 * time.Second
	maxScoreTries        = 3
	retryBaseDelay       = 400 * time.Millisecond
)

var (
	errGeminiResponseRead   = errors.New("gemini response read failed")
	errGeminiResponseDecode = errors.New("gemini response decode failed")
	errGeminiRetryable      = errors.New("gemini api retryable error")
)

const systemPrompt = `You label short social-media posts about Indian equities.
For EACH input text return exactly one JSON object with:
  "label": "positive" | "negative" | "neutral"
  "score": number, the probability of that label, 0.0 to 1.0
Return ONLY a single JSON array of these objects, one per input, same order.
No markdown, no prose, no code fences.`

// GeminiScorer classifies batches of texts via the Gemini API.
type GeminiScorer struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"system_instruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  geminiGenConfig  `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func NewGeminiScorer(cfg *config.Config) *GeminiScorer {
	return &GeminiScorer{
		apiKey:  cfg.Scoring.GeminiAPIKey,
		baseURL: strings.TrimRight(cfg.Scoring.GeminiBaseURL, "/"),
		model:   cfg.Scoring.GeminiModel,
		httpClient: &http.Client{
			Timeout: geminiRequestTimeout,
		},
	}
}

// Model returns the model identifier persisted on every sentiment record.
func (s *GeminiScorer) Model() string {
	return "gemini:" + s.model
}

// Score classifies the batch, returning one result per input text in order.
func (s *GeminiScorer) Score(ctx context.Context, texts []string) ([]Result, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	var prompt strings.Builder
	prompt.WriteString(fmt.Sprintf("Label these %d posts:\n", len(texts)))
	for i, text := range texts {
		prompt.WriteString(fmt.Sprintf("[%d] %s\n", i+1, strings.ReplaceAll(text, "\n", " ")))
	}

	payload := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt.String()}}},
		},
		GenerationConfig: geminiGenConfig{
			Temperature:      0.1,
			ResponseMimeType: "application/json",
		},
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxScoreTries; attempt++ {
		raw, err := s.scoreOnce(ctx, bodyBytes)
		if err == nil {
			return s.parseResults(raw, len(texts))
		}
		lastErr = err
		if attempt >= maxScoreTries || !isRetryableGeminiError(err) {
			return nil, err
		}
		logger.Info("Retrying Gemini request after error (attempt %d/%d): %v", attempt, maxScoreTries, err)
		time.Sleep(retryBaseDelay * time.Duration(attempt))
	}

	return nil, lastErr
}

func (s *GeminiScorer) scoreOnce(ctx context.Context, bodyBytes []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/%s:generateContent", s.baseURL, s.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return "", fmt.Errorf("%w: %v", errGeminiResponseRead, readErr)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error("Gemini API error: %d - %s", resp.StatusCode, truncateForLog(string(respBody), 500))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return "", fmt.Errorf("%w: status %d", errGeminiRetryable, resp.StatusCode)
		}
		return "", fmt.Errorf("gemini api returned status %d", resp.StatusCode)
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("%w: %v", errGeminiResponseDecode, err)
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates returned from gemini")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}

func (s *GeminiScorer) parseResults(raw string, want int) ([]Result, error) {
	cleaned := cleanJSONFence(raw)

	var parsed []Result
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		logger.Error("Failed to parse Gemini batch result: %v | raw: %s", err, truncateForLog(raw, 500))
		return nil, fmt.Errorf("failed to parse scoring result: %w", err)
	}

	// Pad or trim so callers always get one result per input text.
	results := make([]Result, want)
	for i := range results {
		if i < len(parsed) {
			results[i] = Result{
				Label: normalizeLabel(strings.ToLower(strings.TrimSpace(parsed[i].Label))),
				Score: clampProbability(parsed[i].Score),
			}
		} else {
			results[i] = Result{Label: "neutral", Score: 0}
		}
	}
	return results, nil
}

func isRetryableGeminiError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errGeminiResponseRead) || errors.Is(err, errGeminiResponseDecode) || errors.Is(err, errGeminiRetryable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func cleanJSONFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "...(truncated)"
}
