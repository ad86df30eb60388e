/**
 * @description
 * Scoring adapter contract: text in, (label, probability) out.
 * The classification model itself is an external collaborator; the
 * pipeline only depends on this capability.
 *
 * @dependencies
 * - internal/models
 */

package scoring

import (
	"context"
)

// Result is one text's classification.
type Result struct {
	Label string  `json:"label"` // positive, negative, neutral
	Score float64 `json:"score"` // classification probability 0-1
}

// Scorer classifies a batch of texts. Implementations must return one
// result per input text, in order; a text that cannot be scored is
// reported as neutral with probability 0 rather than failing the batch.
type Scorer interface {
	Score(ctx context.Context, texts []string) ([]Result, error)
	Model() string
}

// clampProbability normalizes model output onto [0,1]; values that look
// like percentages are scaled down.
func clampProbability(p float64) float64 {
	if p > 1 && p <= 100 {
		p = p / 100
	}
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// normalizeLabel folds model output onto the three canonical labels.
func normalizeLabel(label string) string {
	switch label {
	case "positive", "bullish":
		return "positive"
	case "negative", "bearish":
		return "negative"
	default:
		return "neutral"
	}
}
