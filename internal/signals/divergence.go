/**
 * @description
 * Divergence scoring: discussion intensity vs delivery-backed conviction,
 * both expressed as z-scores against each symbol's own rolling history.
 * A crowd talking far more than usual while real delivery volume stays
 * flat reads as hype; the inverse reads as panic.
 *
 * @dependencies
 * - gonum.org/v1/gonum/stat: rolling mean / standard deviation
 */

package signals

import (
	"gonum.org/v1/gonum/stat"

	"github.com/helvinmg/crowdpulse/internal/models"
)

// Zscore standardizes value against its own history. With fewer than two
// history points, or a flat history, there is no dispersion to measure
// and the z-score is zero rather than undefined.
func Zscore(value float64, history []float64) float64 {
	if len(history) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(history, nil)
	if std == 0 {
		return 0
	}
	return (value - mean) / std
}

// Divergence is the gap between how unusual the discussion is and how
// unusual the delivery conviction is, in z-score units.
func Divergence(discussionZ, deliveryZ float64) float64 {
	return discussionZ - deliveryZ
}

// Classify maps a divergence score onto a direction label. The threshold
// is symmetric: scores within (-threshold, +threshold) are neutral.
func Classify(score, threshold float64) string {
	switch {
	case score >= threshold:
		return models.DirectionHype
	case score <= -threshold:
		return models.DirectionPanic
	default:
		return models.DirectionNeutral
	}
}
