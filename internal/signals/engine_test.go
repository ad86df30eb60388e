package signals

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/helvinmg/crowdpulse/internal/config"
	"github.com/helvinmg/crowdpulse/internal/models"
)

type fakeStore struct {
	mu         sync.Mutex
	sentiments []models.SentimentRecord
	market     []models.MarketPoint
	history    []float64
	saved      []*models.DivergenceSignal
	failLoad   bool
}

func (f *fakeStore) SentimentsSince(_ context.Context, _ string, since time.Time, _ string) ([]models.SentimentRecord, error) {
	if f.failLoad {
		return nil, errors.New("database unavailable")
	}
	var out []models.SentimentRecord
	for _, r := range f.sentiments {
		if !r.PostedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) MarketSince(_ context.Context, _ string, _ time.Time, _ string) ([]models.MarketPoint, error) {
	return f.market, nil
}

func (f *fakeStore) RecentDivergenceScores(_ context.Context, _ string, _ int, _ string) ([]float64, error) {
	return f.history, nil
}

func (f *fakeStore) UpsertSignal(_ context.Context, signal *models.DivergenceSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, signal)
	return nil
}

func engineConfig() config.SignalsConfig {
	cfg := testSignalsConfig()
	cfg.VelocityWindows = testWindows
	cfg.VelocityMinRecords = 5
	cfg.BucketSize = time.Hour
	cfg.DivergenceLookback = 24
	cfg.ConsistencyLookback = 12
	cfg.SymbolParallelism = 4
	return cfg
}

func fixedEngine(store Store, now time.Time) *Engine {
	e := NewEngine(store, engineConfig())
	e.now = func() time.Time { return now }
	return e
}

func TestComputeSymbolEmptyBucketLowConfidence(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 30, 0, 0, time.UTC)
	store := &fakeStore{}
	engine := fixedEngine(store, now)

	signal, err := engine.ComputeSymbol(context.Background(), "RELIANCE", config.ModeTest)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}

	if signal.ConfidenceScore > 0.3 {
		t.Errorf("empty bucket must yield confidence <= 0.3, got %.4f", signal.ConfidenceScore)
	}
	if signal.DivergenceDirection != models.DirectionNeutral {
		t.Errorf("no data should classify neutral, got %s", signal.DivergenceDirection)
	}
	if signal.SentimentVelocity != 50 {
		t.Errorf("no data should report velocity 50, got %.2f", signal.SentimentVelocity)
	}
	if signal.DataSource != config.ModeTest {
		t.Errorf("mode not carried onto the row: %s", signal.DataSource)
	}
	if len(store.saved) != 1 {
		t.Fatalf("signal was not persisted")
	}
}

func TestComputeSymbolHypeOnDiscussionSpike(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 30, 0, 0, time.UTC)
	bucket := now.Truncate(time.Hour)

	store := &fakeStore{history: []float64{0.1, 0.2, 0.1, 0.15}}

	// Quiet history: one post in each of twelve past buckets.
	for i := 1; i <= 12; i++ {
		store.sentiments = append(store.sentiments, models.SentimentRecord{
			Label:    models.LabelNeutral,
			Score:    0.6,
			PostedAt: bucket.Add(-time.Duration(i)*time.Hour + 10*time.Minute),
			ScoredAt: bucket.Add(-time.Duration(i)*time.Hour + 10*time.Minute),
		})
	}
	// Loud current bucket: thirty euphoric posts.
	for i := 0; i < 30; i++ {
		store.sentiments = append(store.sentiments, models.SentimentRecord{
			Label:    models.LabelPositive,
			Score:    0.9,
			PostedAt: bucket.Add(time.Duration(i) * time.Minute),
			ScoredAt: bucket.Add(time.Duration(i) * time.Minute),
		})
	}
	// Delivery conviction flat the whole time.
	for i := 0; i < 10; i++ {
		store.market = append(store.market, models.MarketPoint{
			Volume:         2_000_000,
			DeliveryVolume: 1_040_000,
			DeliveryPct:    52,
			Date:           bucket.AddDate(0, 0, i-10),
		})
	}

	engine := fixedEngine(store, now)
	signal, err := engine.ComputeSymbol(context.Background(), "TCS", config.ModeTest)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}

	if signal.DivergenceDirection != models.DirectionHype {
		t.Fatalf("discussion spike on flat delivery should read hype, got %s (score %.2f)", signal.DivergenceDirection, signal.DivergenceScore)
	}
	if signal.DiscussionVolume != 30 {
		t.Errorf("expected discussion volume 30, got %d", signal.DiscussionVolume)
	}
	if signal.SentimentScoreAvg <= 0 {
		t.Errorf("euphoric bucket should average positive, got %.4f", signal.SentimentScoreAvg)
	}
	if signal.BucketTime != bucket {
		t.Errorf("signal bucketed at %v, want %v", signal.BucketTime, bucket)
	}
}

func TestDeliveryZscoreTracksVolumeNotRatio(t *testing.T) {
	// Ten quiet days, then a churn surge on the latest day with the
	// delivery ratio unchanged. The delivery side must register it.
	var points []models.MarketPoint
	for i := 0; i < 10; i++ {
		points = append(points, models.MarketPoint{
			Volume:         1_000_000 + int64(i%3)*50_000,
			DeliveryVolume: 500_000 + int64(i%3)*25_000,
			DeliveryPct:    50,
		})
	}
	points = append(points, models.MarketPoint{
		Volume:         5_000_000,
		DeliveryVolume: 2_500_000,
		DeliveryPct:    50,
	})

	if z := deliveryZscore(points); z <= 1.5 {
		t.Errorf("a delivery-volume surge on a stable ratio must move the delivery z-score, got %.4f", z)
	}
}

func TestDeliveryZscoreNeedsHistory(t *testing.T) {
	points := []models.MarketPoint{
		{DeliveryVolume: 500_000},
		{DeliveryVolume: 900_000},
	}
	if z := deliveryZscore(points); z != 0 {
		t.Errorf("fewer than three points must yield z 0, got %.4f", z)
	}
}

func TestComputeAllSkipsFailingSymbols(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 30, 0, 0, time.UTC)
	store := &fakeStore{}
	engine := fixedEngine(store, now)

	signals, err := engine.ComputeAll(context.Background(), []string{"RELIANCE", "TCS", "INFY"}, config.ModeTest)
	if err != nil {
		t.Fatalf("compute all failed: %v", err)
	}
	if len(signals) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(signals))
	}
}

func TestComputeAllErrorsWhenEverySymbolFails(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 30, 0, 0, time.UTC)
	store := &fakeStore{failLoad: true}
	engine := fixedEngine(store, now)

	if _, err := engine.ComputeAll(context.Background(), []string{"RELIANCE", "TCS"}, config.ModeTest); err == nil {
		t.Fatal("expected an error when every symbol fails")
	}
}
