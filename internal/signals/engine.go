/**
 * @description
 * Signal engine: assembles sentiment, discussion-volume, and market
 * delivery series for a symbol, computes velocity, divergence, and
 * confidence, and upserts the resulting signal for the current time
 * bucket. One row per (symbol, bucket, mode) — recomputing a bucket
 * supersedes it, other buckets are untouched.
 *
 * @dependencies
 * - internal/config: engine tunables
 * - internal/models: signal row shape
 * - internal/logger: per-symbol failure logging
 */

package signals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/helvinmg/crowdpulse/internal/config"
	"github.com/helvinmg/crowdpulse/internal/logger"
	"github.com/helvinmg/crowdpulse/internal/models"
)

// Store is the persistence surface the engine needs. Satisfied by
// store.Store; narrowed here so tests can feed the engine fixed series.
type Store interface {
	SentimentsSince(ctx context.Context, symbol string, since time.Time, mode string) ([]models.SentimentRecord, error)
	MarketSince(ctx context.Context, symbol string, since time.Time, mode string) ([]models.MarketPoint, error)
	RecentDivergenceScores(ctx context.Context, symbol string, limit int, mode string) ([]float64, error)
	UpsertSignal(ctx context.Context, signal *models.DivergenceSignal) error
}

// Engine computes divergence signals for tracked symbols.
type Engine struct {
	store Store
	cfg   config.SignalsConfig
	now   func() time.Time
}

func NewEngine(store Store, cfg config.SignalsConfig) *Engine {
	return &Engine{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// ComputeSymbol builds and persists the signal for one symbol's current
// time bucket.
func (e *Engine) ComputeSymbol(ctx context.Context, symbol, mode string) (*models.DivergenceSignal, error) {
	now := e.now().UTC()
	bucket := now.Truncate(e.cfg.BucketSize)
	lookbackSince := bucket.Add(-time.Duration(e.cfg.DivergenceLookback) * e.cfg.BucketSize)

	// Velocity needs two windows of the longest span; fetch whichever
	// horizon reaches further back.
	since := lookbackSince
	if vs := now.Add(-2 * longestWindow(e.cfg.VelocityWindows)); vs.Before(since) {
		since = vs
	}

	sentiments, err := e.store.SentimentsSince(ctx, symbol, since, mode)
	if err != nil {
		return nil, fmt.Errorf("loading sentiments for %s: %w", symbol, err)
	}

	curRecords, volumeHistory := e.bucketize(sentiments, bucket, lookbackSince)

	discussionZ := Zscore(float64(len(curRecords)), volumeHistory)

	marketSince := bucket.AddDate(0, 0, -e.cfg.DivergenceLookback)
	points, err := e.store.MarketSince(ctx, symbol, marketSince, mode)
	if err != nil {
		return nil, fmt.Errorf("loading market points for %s: %w", symbol, err)
	}
	deliveryZ := deliveryZscore(points)

	divergence := Divergence(discussionZ, deliveryZ)
	direction := Classify(divergence, e.cfg.DivergenceThreshold)

	velocity := ComputeVelocity(sentiments, now, e.cfg.VelocityWindows, e.cfg.VelocityMinRecords)

	history, err := e.store.RecentDivergenceScores(ctx, symbol, e.cfg.ConsistencyLookback, mode)
	if err != nil {
		return nil, fmt.Errorf("loading divergence history for %s: %w", symbol, err)
	}

	certainty := meanProbability(curRecords)
	sufficiency := DataSufficiency(len(curRecords), e.cfg.TargetRecordCount)
	consistency := SignalConsistency(history, e.cfg.ConsistencyNormalizer)

	signal := &models.DivergenceSignal{
		Symbol:                symbol,
		BucketTime:            bucket,
		SentimentScoreAvg:     meanSigned(curRecords),
		DiscussionVolume:      len(curRecords),
		SentimentVelocity:     velocity.Score,
		VelocityWindowMinutes: velocity.WindowMinutes,
		DivergenceScore:       divergence,
		DivergenceDirection:   direction,
		ConfidenceScore:       Confidence(certainty, sufficiency, consistency, e.cfg),
		ModelCertainty:        clamp01(certainty),
		DataSufficiency:       sufficiency,
		SignalConsistency:     consistency,
		ComputedAt:            now,
		DataSource:            mode,
	}

	if err := e.store.UpsertSignal(ctx, signal); err != nil {
		return nil, fmt.Errorf("saving signal for %s: %w", symbol, err)
	}
	return signal, nil
}

// ComputeAll runs ComputeSymbol across symbols with bounded parallelism.
// A symbol that fails is logged and skipped; the batch only errors when
// every symbol failed.
func (e *Engine) ComputeAll(ctx context.Context, symbols []string, mode string) ([]*models.DivergenceSignal, error) {
	parallelism := e.cfg.SymbolParallelism
	if parallelism < 1 {
		parallelism = 1
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		signals []*models.DivergenceSignal
		failed  int
	)
	sem := make(chan struct{}, parallelism)

	for _, symbol := range symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			signal, err := e.ComputeSymbol(ctx, symbol, mode)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("Signal computation failed for %s: %v", symbol, err)
				failed++
				return
			}
			signals = append(signals, signal)
		}(symbol)
	}
	wg.Wait()

	if failed > 0 && failed == len(symbols) {
		return nil, fmt.Errorf("signal computation failed for all %d symbols", failed)
	}
	return signals, nil
}

// bucketize splits records into the current bucket's records and a full
// per-bucket volume series for the lookback span. Buckets with no
// discussion count as genuine zero observations.
func (e *Engine) bucketize(records []models.SentimentRecord, bucket, lookbackSince time.Time) ([]models.SentimentRecord, []float64) {
	buckets := e.cfg.DivergenceLookback
	if buckets < 1 {
		buckets = 1
	}
	history := make([]float64, buckets)

	var current []models.SentimentRecord
	for _, r := range records {
		t := r.PostedAt.UTC()
		if !t.Before(bucket) {
			current = append(current, r)
			continue
		}
		if t.Before(lookbackSince) {
			continue
		}
		idx := int(t.Sub(lookbackSince) / e.cfg.BucketSize)
		if idx >= 0 && idx < buckets {
			history[idx]++
		}
	}
	return current, history
}

// deliveryZscore standardizes the latest daily delivery volume against
// the preceding points. Market data arrives oldest-first. Raw volume,
// not the delivery ratio: a churn surge with a stable ratio still means
// more shares actually changing hands.
func deliveryZscore(points []models.MarketPoint) float64 {
	if len(points) < 3 {
		return 0
	}
	history := make([]float64, 0, len(points)-1)
	for _, p := range points[:len(points)-1] {
		history = append(history, float64(p.DeliveryVolume))
	}
	return Zscore(float64(points[len(points)-1].DeliveryVolume), history)
}

// meanProbability averages the classifier probability of a bucket's
// records; an empty bucket has no certainty at all.
func meanProbability(records []models.SentimentRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range records {
		sum += r.Score
	}
	return sum / float64(len(records))
}

func longestWindow(windows []time.Duration) time.Duration {
	longest := time.Duration(0)
	for _, w := range windows {
		if w > longest {
			longest = w
		}
	}
	return longest
}
