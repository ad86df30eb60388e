/**
 * @description
 * Social post database model.
 * Maps to the 'social_posts' table in PostgreSQL — one row per ingested
 * piece of text from any discussion source.
 *
 * @dependencies
 * - gorm.io/gorm
 *
 * @notes
 * - (source, source_id) is the natural dedup key: re-ingesting the same
 *   item is a no-op (OnConflict DoNothing in the store).
 * - DataSource carries the test/live partition flag on every row.
 */

package models

import (
	"time"
)

// SocialPost represents a raw text record produced by a discussion source
type SocialPost struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Source      string    `gorm:"size:20;not null;index;uniqueIndex:idx_posts_source_native" json:"source"`
	Symbol      string    `gorm:"size:30;index" json:"symbol"`
	RawText     string    `gorm:"type:text;not null" json:"raw_text"`
	CleanedText string    `gorm:"type:text" json:"cleaned_text"`
	Author      string    `gorm:"size:255" json:"author"`
	SourceID    string    `gorm:"column:source_id;size:255;not null;uniqueIndex:idx_posts_source_native" json:"source_id"`
	PostedAt    time.Time `gorm:"index" json:"posted_at"`
	IngestedAt  time.Time `gorm:"autoCreateTime" json:"ingested_at"`
	DataSource  string    `gorm:"size:10;not null;default:'test';index" json:"data_source"` // test or live
}

func (SocialPost) TableName() string {
	return "social_posts"
}
