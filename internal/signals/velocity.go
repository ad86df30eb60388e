/**
 * @description
 * Sentiment velocity: how fast the mood around a symbol is changing.
 * Compares the mean signed sentiment of the current window against the
 * immediately preceding window of equal length, normalized onto 0-100.
 *
 * @dependencies
 * - internal/models
 *
 * @notes
 * - Velocity is computed per window (5m, 1h, 24h by default) and the
 *   maximum across windows wins, so a sharp short burst is not diluted
 *   by a calm longer view.
 * - 50 is reserved for "not enough data to tell": it is returned only
 *   when every window is below the minimum record count, never as the
 *   result of an actual comparison.
 */

package signals

import (
	"math"
	"time"

	"github.com/helvinmg/crowdpulse/internal/models"
)

// Mean signed sentiment spans [-1, +1], so the largest possible swing
// between two windows is 2.0.
const maxSentimentSwing = 2.0

// VelocityResult carries the winning velocity and the window it came from.
type VelocityResult struct {
	Score         float64 // 0-100
	WindowMinutes int
}

// ComputeVelocity derives the sentiment velocity for a symbol from its
// scored records. Records outside the longest window are ignored by the
// caller's query; records outside a given window are ignored here.
func ComputeVelocity(records []models.SentimentRecord, now time.Time, windows []time.Duration, minRecords int) VelocityResult {
	best := VelocityResult{Score: -1}
	eligible := false

	for _, w := range windows {
		cur, prev := splitWindow(records, now, w)
		if len(cur)+len(prev) < minRecords {
			continue
		}
		eligible = true

		swing := math.Abs(meanSigned(cur) - meanSigned(prev))
		score := swing / maxSentimentSwing * 100
		if score > 100 {
			score = 100
		}
		if score > best.Score {
			best = VelocityResult{Score: score, WindowMinutes: int(w.Minutes())}
		}
	}

	if !eligible {
		// Thin data across every window: report the ambiguous midpoint.
		longest := time.Duration(0)
		for _, w := range windows {
			if w > longest {
				longest = w
			}
		}
		return VelocityResult{Score: 50, WindowMinutes: int(longest.Minutes())}
	}
	return best
}

// splitWindow partitions records into the current window [now-w, now] and
// the previous window [now-2w, now-w).
func splitWindow(records []models.SentimentRecord, now time.Time, w time.Duration) (cur, prev []models.SentimentRecord) {
	curStart := now.Add(-w)
	prevStart := now.Add(-2 * w)
	for _, r := range records {
		switch {
		case r.PostedAt.After(now):
			continue
		case !r.PostedAt.Before(curStart):
			cur = append(cur, r)
		case !r.PostedAt.Before(prevStart):
			prev = append(prev, r)
		}
	}
	return cur, prev
}

// meanSigned averages the signed sentiment of a window. An empty window
// contributes a neutral mean of zero.
func meanSigned(records []models.SentimentRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range records {
		sum += r.SignedScore()
	}
	return sum / float64(len(records))
}
