/**
 * @description
 * Persistence layer for posts, sentiment records, market points, and
 * divergence signals. All writes go through here so the dedup and
 * upsert semantics live in one place:
 *   - posts: insert-or-ignore on (source, source_id)
 *   - market points: upsert on (symbol, date, data_source)
 *   - signals: upsert on (symbol, bucket_time, data_source)
 * Sentiment records are append-only and never updated.
 *
 * @dependencies
 * - gorm.io/gorm + clause: conflict handling
 * - github.com/jackc/pgconn: Postgres error codes for deadlock retry
 *
 * @notes
 * - Every query takes the data mode explicitly; there is no ambient
 *   default, so test rows and live rows cannot leak into each other.
 * - Serialization/deadlock failures (40001/40P01) are retried with a
 *   jittered backoff, matching how concurrent upserts behave under load.
 */

package store

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/helvinmg/crowdpulse/internal/models"
)

const maxWriteRetries = 5

// Store wraps the database handle with the application's access patterns.
type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// withDeadlockRetry retries a write on Postgres deadlock (40P01) or
// serialization failure (40001); any other error is returned as-is.
func withDeadlockRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxWriteRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if pgErr, ok := err.(*pgconn.PgError); ok && (pgErr.Code == "40P01" || pgErr.Code == "40001") {
			backoff := time.Duration(attempt*100+rand.Intn(100)) * time.Millisecond
			time.Sleep(backoff)
			continue
		}
		return err
	}
	return err
}

// SavePosts inserts posts, silently skipping any whose (source, source_id)
// already exists. Returns the number of genuinely new rows, so re-running
// ingestion over an overlapping window reports zero new work.
func (s *Store) SavePosts(ctx context.Context, posts []models.SocialPost) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}
	var inserted int64
	err := withDeadlockRetry(func() error {
		result := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source"}, {Name: "source_id"}},
			DoNothing: true,
		}).CreateInBatches(posts, 100)
		inserted = result.RowsAffected
		return result.Error
	})
	return int(inserted), err
}

// UnscoredPosts returns posts in the given mode that have no sentiment
// record yet, oldest first.
func (s *Store) UnscoredPosts(ctx context.Context, mode string, limit int) ([]models.SocialPost, error) {
	var posts []models.SocialPost
	err := s.DB.WithContext(ctx).
		Where("data_source = ? AND id NOT IN (SELECT post_id FROM sentiment_records)", mode).
		Order("posted_at asc").
		Limit(limit).
		Find(&posts).Error
	return posts, err
}

// SaveSentiments appends scored records. Records are immutable; re-scoring
// a post under a new model version inserts new rows.
func (s *Store) SaveSentiments(ctx context.Context, records []models.SentimentRecord) error {
	if len(records) == 0 {
		return nil
	}
	return withDeadlockRetry(func() error {
		return s.DB.WithContext(ctx).CreateInBatches(records, 100).Error
	})
}

// UpsertMarketPoints writes daily bars, overwriting any existing row for
// the same (symbol, date, mode). Re-fetching a day is always safe.
func (s *Store) UpsertMarketPoints(ctx context.Context, points []models.MarketPoint) error {
	if len(points) == 0 {
		return nil
	}
	return withDeadlockRetry(func() error {
		return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}, {Name: "date"}, {Name: "data_source"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"open",
				"high",
				"low",
				"close",
				"volume",
				"delivery_volume",
				"delivery_pct",
				"fetched_at",
			}),
		}).CreateInBatches(points, 100).Error
	})
}

// UpsertSignal writes one bucket's signal, superseding a prior computation
// of the same (symbol, bucket, mode) without touching other buckets.
func (s *Store) UpsertSignal(ctx context.Context, signal *models.DivergenceSignal) error {
	return withDeadlockRetry(func() error {
		return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}, {Name: "bucket_time"}, {Name: "data_source"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"sentiment_score_avg",
				"discussion_volume",
				"sentiment_velocity",
				"velocity_window_minutes",
				"divergence_score",
				"divergence_direction",
				"confidence_score",
				"model_certainty",
				"data_sufficiency",
				"signal_consistency",
				"computed_at",
			}),
		}).Create(signal).Error
	})
}

// SentimentsSince returns a symbol's scored records whose underlying
// posts were made from 'since' onward, oldest first. Discussion time is
// the post's timestamp, not when scoring happened to run.
func (s *Store) SentimentsSince(ctx context.Context, symbol string, since time.Time, mode string) ([]models.SentimentRecord, error) {
	var records []models.SentimentRecord
	err := s.DB.WithContext(ctx).
		Where("symbol = ? AND posted_at >= ? AND data_source = ?", symbol, since, mode).
		Order("posted_at asc").
		Find(&records).Error
	return records, err
}

// MarketSince returns a symbol's daily bars from 'since' onward, oldest first.
func (s *Store) MarketSince(ctx context.Context, symbol string, since time.Time, mode string) ([]models.MarketPoint, error) {
	var points []models.MarketPoint
	err := s.DB.WithContext(ctx).
		Where("symbol = ? AND date >= ? AND data_source = ?", symbol, since, mode).
		Order("date asc").
		Find(&points).Error
	return points, err
}

// RecentDivergenceScores returns the most recent divergence scores for a
// symbol, newest first, up to 'limit'.
func (s *Store) RecentDivergenceScores(ctx context.Context, symbol string, limit int, mode string) ([]float64, error) {
	var scores []float64
	err := s.DB.WithContext(ctx).
		Model(&models.DivergenceSignal{}).
		Where("symbol = ? AND data_source = ?", symbol, mode).
		Order("bucket_time desc").
		Limit(limit).
		Pluck("divergence_score", &scores).Error
	return scores, err
}

// LatestSignal returns the newest signal for a symbol, or
// gorm.ErrRecordNotFound when the symbol has none.
func (s *Store) LatestSignal(ctx context.Context, symbol, mode string) (*models.DivergenceSignal, error) {
	var signal models.DivergenceSignal
	err := s.DB.WithContext(ctx).
		Where("symbol = ? AND data_source = ?", symbol, mode).
		Order("bucket_time desc").
		First(&signal).Error
	if err != nil {
		return nil, err
	}
	return &signal, nil
}

// SignalRange returns a symbol's signals within [from, to], oldest first.
func (s *Store) SignalRange(ctx context.Context, symbol string, from, to time.Time, mode string) ([]models.DivergenceSignal, error) {
	var signals []models.DivergenceSignal
	err := s.DB.WithContext(ctx).
		Where("symbol = ? AND bucket_time >= ? AND bucket_time <= ? AND data_source = ?", symbol, from, to, mode).
		Order("bucket_time asc").
		Find(&signals).Error
	return signals, err
}

// Overview returns the latest signal per symbol, ordered by divergence
// magnitude so the most stretched names surface first.
func (s *Store) Overview(ctx context.Context, mode string) ([]models.DivergenceSignal, error) {
	var signals []models.DivergenceSignal
	err := s.DB.WithContext(ctx).
		Where("data_source = ? AND (symbol, bucket_time) IN (?)", mode,
			s.DB.Model(&models.DivergenceSignal{}).
				Select("symbol, MAX(bucket_time)").
				Where("data_source = ?", mode).
				Group("symbol")).
		Order("abs(divergence_score) desc").
		Find(&signals).Error
	return signals, err
}

// SentimentSummary aggregates a symbol's sentiment since a point in time.
type SentimentSummary struct {
	Symbol         string  `json:"symbol"`
	Total          int64   `json:"total"`
	Positive       int64   `json:"positive"`
	Negative       int64   `json:"negative"`
	Neutral        int64   `json:"neutral"`
	AvgSignedScore float64 `json:"avg_signed_score"`
}

func (s *Store) SummarizeSentiment(ctx context.Context, symbol string, since time.Time, mode string) (*SentimentSummary, error) {
	summary := SentimentSummary{Symbol: symbol}
	err := s.DB.WithContext(ctx).
		Model(&models.SentimentRecord{}).
		Select(`COUNT(*) AS total,
			SUM(CASE WHEN label = 'positive' THEN 1 ELSE 0 END) AS positive,
			SUM(CASE WHEN label = 'negative' THEN 1 ELSE 0 END) AS negative,
			SUM(CASE WHEN label = 'neutral' THEN 1 ELSE 0 END) AS neutral,
			COALESCE(AVG(CASE WHEN label = 'positive' THEN score WHEN label = 'negative' THEN -score ELSE 0 END), 0) AS avg_signed_score`).
		Where("symbol = ? AND posted_at >= ? AND data_source = ?", symbol, since, mode).
		Scan(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// Counts reports table sizes for one data mode, for the status endpoint.
type Counts struct {
	Posts      int64 `json:"posts"`
	Sentiments int64 `json:"sentiments"`
	Signals    int64 `json:"signals"`
}

func (s *Store) CountRows(ctx context.Context, mode string) (*Counts, error) {
	var counts Counts
	db := s.DB.WithContext(ctx)
	if err := db.Model(&models.SocialPost{}).Where("data_source = ?", mode).Count(&counts.Posts).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.SentimentRecord{}).Where("data_source = ?", mode).Count(&counts.Sentiments).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.DivergenceSignal{}).Where("data_source = ?", mode).Count(&counts.Signals).Error; err != nil {
		return nil, err
	}
	return &counts, nil
}
