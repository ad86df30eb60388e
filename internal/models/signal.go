/**
 * @description
 * Divergence signal database model — the primary output of the signal engine.
 * Maps to the 'divergence_signals' table: one row per (symbol, time bucket,
 * data mode), upserted on conflict and never duplicated.
 *
 * @dependencies
 * - gorm.io/gorm
 *
 * @notes
 * - Later recomputation of the same bucket supersedes the row via upsert;
 *   other buckets are never touched (append-only history per symbol).
 */

package models

import (
	"time"
)

// Divergence direction labels
const (
	DirectionHype    = "hype"
	DirectionPanic   = "panic"
	DirectionNeutral = "neutral"
)

// DivergenceSignal represents the behavioral-risk signal for a symbol in one time bucket
type DivergenceSignal struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol     string    `gorm:"size:30;not null;index;uniqueIndex:idx_signals_symbol_bucket" json:"symbol"`
	BucketTime time.Time `gorm:"not null;index;uniqueIndex:idx_signals_symbol_bucket" json:"bucket_time"`

	// Sentiment metrics
	SentimentScoreAvg     float64 `json:"sentiment_score_avg"`
	DiscussionVolume      int     `json:"discussion_volume"`
	SentimentVelocity     float64 `json:"sentiment_velocity"` // 0-100
	VelocityWindowMinutes int     `json:"velocity_window_minutes"`

	// Divergence
	DivergenceScore     float64 `json:"divergence_score"`               // z-score units
	DivergenceDirection string  `gorm:"size:10" json:"divergence_direction"` // hype, panic, neutral

	// Confidence
	ConfidenceScore   float64 `json:"confidence_score"` // 0-1
	ModelCertainty    float64 `json:"model_certainty"`
	DataSufficiency   float64 `json:"data_sufficiency"`
	SignalConsistency float64 `json:"signal_consistency"`

	ComputedAt time.Time `gorm:"autoCreateTime" json:"computed_at"`
	DataSource string    `gorm:"size:10;not null;default:'test';index;uniqueIndex:idx_signals_symbol_bucket" json:"data_source"`
}

func (DivergenceSignal) TableName() string {
	return "divergence_signals"
}
