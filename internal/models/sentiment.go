/**
 * @description
 * Sentiment record database model.
 * Maps to the 'sentiment_records' table — one immutable row per scored post.
 *
 * @dependencies
 * - gorm.io/gorm
 *
 * @notes
 * - Rows are never mutated after creation. Re-scoring a post inserts a new
 *   row under a new model_version rather than rewriting history.
 */

package models

import (
	"time"
)

// Sentiment labels produced by the scoring adapter
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// SentimentRecord represents the classification of a single social post
type SentimentRecord struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID       uint64    `gorm:"not null;index" json:"post_id"`
	Symbol       string    `gorm:"size:30;index" json:"symbol"`
	Label        string    `gorm:"size:10;not null" json:"label"` // positive, negative, neutral
	Score        float64   `gorm:"not null" json:"score"`         // model confidence 0-1
	ModelVersion string    `gorm:"size:50" json:"model_version"`
	PostedAt     time.Time `gorm:"index" json:"posted_at"` // denormalized from the post; discussion time, not scoring time
	ScoredAt     time.Time `gorm:"index" json:"scored_at"`
	DataSource   string    `gorm:"size:10;not null;default:'test';index" json:"data_source"` // test or live

	// Relations
	Post *SocialPost `gorm:"foreignKey:PostID" json:"post,omitempty"`
}

func (SentimentRecord) TableName() string {
	return "sentiment_records"
}

// SignedScore maps the label onto the -1..+1 sentiment axis, weighted by
// the classification probability.
func (r SentimentRecord) SignedScore() float64 {
	switch r.Label {
	case LabelPositive:
		return r.Score
	case LabelNegative:
		return -r.Score
	default:
		return 0
	}
}
