/**
 * @description
 * Confidence scoring for divergence signals: a weighted blend of model
 * certainty, data sufficiency, and signal consistency, each clamped to
 * [0,1] before blending so no single noisy input can push confidence
 * outside the displayable range.
 *
 * @dependencies
 * - gonum.org/v1/gonum/stat: variance of the divergence history
 */

package signals

import (
	"gonum.org/v1/gonum/stat"

	"github.com/helvinmg/crowdpulse/internal/config"
)

// Confidence blends the three quality inputs using the configured weights.
// Weights are normalized by their sum, so they need not add to exactly 1.
func Confidence(certainty, sufficiency, consistency float64, cfg config.SignalsConfig) float64 {
	certainty = clamp01(certainty)
	sufficiency = clamp01(sufficiency)
	consistency = clamp01(consistency)

	sum := cfg.WeightModelCertainty + cfg.WeightDataSufficiency + cfg.WeightConsistency
	if sum <= 0 {
		return 0
	}
	blended := (cfg.WeightModelCertainty*certainty +
		cfg.WeightDataSufficiency*sufficiency +
		cfg.WeightConsistency*consistency) / sum
	return clamp01(blended)
}

// DataSufficiency compares the observed discussion volume against the
// target floor: 100 records at a target of 100 is full sufficiency,
// anything above saturates at 1.
func DataSufficiency(volume, target int) float64 {
	if target <= 0 {
		return 0
	}
	return clamp01(float64(volume) / float64(target))
}

// SignalConsistency rewards a stable divergence history: low variance in
// the recent scores means the signal has been telling one story rather
// than flipping. With fewer than two history points there is nothing to
// judge and the neutral midpoint is returned.
func SignalConsistency(history []float64, normalizer float64) float64 {
	if len(history) < 2 {
		return 0.5
	}
	if normalizer <= 0 {
		return 0
	}
	variance := stat.Variance(history, nil)
	return clamp01(1 - variance/normalizer)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
