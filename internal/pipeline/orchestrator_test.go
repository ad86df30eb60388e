package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/helvinmg/crowdpulse/internal/config"
	"github.com/helvinmg/crowdpulse/internal/ingestion"
	"github.com/helvinmg/crowdpulse/internal/models"
	"github.com/helvinmg/crowdpulse/internal/quota"
	"github.com/helvinmg/crowdpulse/internal/scoring"
	"github.com/helvinmg/crowdpulse/internal/signals"
	"github.com/helvinmg/crowdpulse/internal/store"
)

type fakeSource struct {
	name   string
	posts  []models.SocialPost
	err    error
	window ingestion.Window
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, window ingestion.Window) ([]models.SocialPost, error) {
	f.window = window
	if f.err != nil {
		return nil, f.err
	}
	return f.posts, nil
}

// hangingSource blocks until its step context is cancelled, simulating an
// upstream that never answers.
type hangingSource struct {
	name string
}

func (h *hangingSource) Name() string { return h.name }

func (h *hangingSource) Fetch(ctx context.Context, _ ingestion.Window) ([]models.SocialPost, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fakeMarket struct {
	err error
}

func (f *fakeMarket) Name() string { return "market" }

func (f *fakeMarket) FetchSymbol(_ context.Context, symbol string, days int) ([]models.MarketPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.MarketPoint{{
		Symbol: symbol, Date: time.Now().UTC().Truncate(24 * time.Hour),
		Close: 100, DeliveryPct: 0.5,
	}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Scoring: config.ScoringConfig{BatchSize: 20},
		Quota: config.QuotaConfig{DailyLimits: map[string]int{
			"telegram": 10, "youtube": 10, "twitter": 10, "reddit": 10, "market": 100, "gemini": 10,
		}},
		Signals: config.SignalsConfig{
			VelocityWindows:       []time.Duration{5 * time.Minute, time.Hour, 24 * time.Hour},
			VelocityMinRecords:    5,
			BucketSize:            time.Hour,
			DivergenceLookback:    24,
			DivergenceThreshold:   1.5,
			ConsistencyLookback:   12,
			ConsistencyNormalizer: 4.0,
			TargetRecordCount:     100,
			WeightModelCertainty:  0.4,
			WeightDataSufficiency: 0.3,
			WeightConsistency:     0.3,
			SymbolParallelism:     1,
		},
	}
}

func testDB(t *testing.T) *store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&models.SocialPost{},
		&models.SentimentRecord{},
		&models.MarketPoint{},
		&models.DivergenceSignal{},
		&models.APIUsageLog{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return store.New(db)
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestOrchestrator(t *testing.T, st *store.Store, rdb *redis.Client, social []ingestion.Source, market MarketFetcher, scorer scoring.Scorer) *Orchestrator {
	t.Helper()
	cfg := testConfig()
	ledger := quota.NewLedger(rdb, nil, cfg.Quota.DailyLimits)
	engine := signals.NewEngine(st, cfg.Signals)
	return NewOrchestrator(cfg, st, ledger, rdb, scorer, social, market, engine)
}

func defaultSources() []ingestion.Source {
	return []ingestion.Source{
		&fakeSource{name: "telegram"},
		&fakeSource{name: "youtube"},
		&fakeSource{name: "twitter"},
		&fakeSource{name: "reddit"},
	}
}

func waitForRun(t *testing.T, o *Orchestrator) *RunStatus {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		status := o.Status()
		if status != nil && status.FinishedAt != nil {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return nil
}

func TestTestModeRunCompletesEndToEnd(t *testing.T) {
	st := testDB(t)
	o := newTestOrchestrator(t, st, testRedis(t), defaultSources(), &fakeMarket{}, scoring.NewLexiconScorer())

	started, err := o.Start(config.ModeTest, ingestion.Window{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if started.RunID == "" || started.Status != RunStatusRunning {
		t.Fatalf("unexpected initial status: %+v", started)
	}

	final := waitForRun(t, o)
	if final.Status != RunStatusDone {
		t.Fatalf("expected done, got %s (%+v)", final.Status, final.Steps)
	}
	if len(final.Steps) != 7 {
		t.Fatalf("expected 7 steps, got %d", len(final.Steps))
	}
	for _, step := range final.Steps {
		if step.Status != StepStatusDone {
			t.Errorf("step %s finished %s: %s", step.Name, step.Status, step.Detail)
		}
	}

	counts, err := st.CountRows(context.Background(), config.ModeTest)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if counts.Posts == 0 || counts.Sentiments == 0 || counts.Signals == 0 {
		t.Fatalf("expected data in every table, got %+v", counts)
	}
	if counts.Sentiments != counts.Posts {
		t.Errorf("every post should be scored exactly once: %+v", counts)
	}
}

func TestTestModeRunIsIdempotent(t *testing.T) {
	st := testDB(t)
	o := newTestOrchestrator(t, st, testRedis(t), defaultSources(), &fakeMarket{}, scoring.NewLexiconScorer())

	if _, err := o.Start(config.ModeTest, ingestion.Window{}); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	waitForRun(t, o)
	first, _ := st.CountRows(context.Background(), config.ModeTest)

	if _, err := o.Start(config.ModeTest, ingestion.Window{}); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	waitForRun(t, o)
	second, _ := st.CountRows(context.Background(), config.ModeTest)

	if first.Posts != second.Posts {
		t.Errorf("re-running the seeded pipeline must not duplicate posts: %d vs %d", first.Posts, second.Posts)
	}
}

func TestConcurrentStartRejected(t *testing.T) {
	st := testDB(t)
	o := newTestOrchestrator(t, st, testRedis(t), defaultSources(), &fakeMarket{}, scoring.NewLexiconScorer())

	if _, err := o.Start(config.ModeTest, ingestion.Window{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := o.Start(config.ModeTest, ingestion.Window{}); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	// After the run finishes a new one is allowed again.
	waitForRun(t, o)
	if _, err := o.Start(config.ModeTest, ingestion.Window{}); err != nil {
		t.Fatalf("start after completion failed: %v", err)
	}
	waitForRun(t, o)
}

func TestPartialFailureStillFinishesDone(t *testing.T) {
	st := testDB(t)
	sources := []ingestion.Source{
		&fakeSource{name: "telegram", err: errors.New("gateway down")},
		&fakeSource{name: "youtube"},
		&fakeSource{name: "twitter", err: errors.New("rate limited upstream")},
		&fakeSource{name: "reddit"},
	}
	o := newTestOrchestrator(t, st, testRedis(t), sources, &fakeMarket{}, scoring.NewLexiconScorer())

	if _, err := o.Start(config.ModeLive, ingestion.Window{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	final := waitForRun(t, o)

	if final.Status != RunStatusDone {
		t.Fatalf("partial failure must still finish done, got %s", final.Status)
	}

	byName := map[string]StepResult{}
	for _, s := range final.Steps {
		byName[s.Name] = s
	}
	if byName["telegram"].Status != StepStatusFailed {
		t.Errorf("telegram should have failed, got %s", byName["telegram"].Status)
	}
	if byName["youtube"].Status != StepStatusDone {
		t.Errorf("youtube should have succeeded, got %s", byName["youtube"].Status)
	}
}

func TestStepTimeoutFailsStepButRunFinishesDone(t *testing.T) {
	st := testDB(t)
	sources := []ingestion.Source{
		&hangingSource{name: "telegram"},
		&fakeSource{name: "youtube"},
		&fakeSource{name: "twitter"},
		&fakeSource{name: "reddit"},
	}
	o := newTestOrchestrator(t, st, testRedis(t), sources, &fakeMarket{}, scoring.NewLexiconScorer())
	o.stepTimeout = 100 * time.Millisecond

	if _, err := o.Start(config.ModeLive, ingestion.Window{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	final := waitForRun(t, o)

	if final.Status != RunStatusDone {
		t.Fatalf("a single timed-out step must not fail the run, got %s", final.Status)
	}

	byName := map[string]StepResult{}
	for _, s := range final.Steps {
		byName[s.Name] = s
	}
	if byName["telegram"].Status != StepStatusFailed {
		t.Errorf("telegram should have timed out as failed, got %s", byName["telegram"].Status)
	}
	if byName["market"].Status != StepStatusDone {
		t.Errorf("market should have succeeded, got %s", byName["market"].Status)
	}
}

func TestQuotaExhaustedStepSkipped(t *testing.T) {
	st := testDB(t)
	rdb := testRedis(t)

	cfg := testConfig()
	cfg.Quota.DailyLimits["telegram"] = 1
	ledger := quota.NewLedger(rdb, nil, cfg.Quota.DailyLimits)
	// Burn today's entire telegram budget before the run starts.
	if allowed, err := ledger.Reserve(context.Background(), "telegram"); err != nil || !allowed {
		t.Fatalf("priming reservation failed: allowed=%v err=%v", allowed, err)
	}
	engine := signals.NewEngine(st, cfg.Signals)
	o := NewOrchestrator(cfg, st, ledger, rdb, scoring.NewLexiconScorer(), defaultSources(), &fakeMarket{}, engine)

	if _, err := o.Start(config.ModeLive, ingestion.Window{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	final := waitForRun(t, o)

	if final.Status != RunStatusDone {
		t.Fatalf("a skipped step must not fail the run, got %s", final.Status)
	}
	for _, s := range final.Steps {
		if s.Name == "telegram" && s.Status != StepStatusSkipped {
			t.Errorf("telegram should be skipped on exhausted quota, got %s", s.Status)
		}
	}
}

func TestAllStepsFailedReportsError(t *testing.T) {
	st := testDB(t)

	// Close the database out from under the run so every step fails.
	sqlDB, err := st.DB.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	_ = sqlDB.Close()

	sources := []ingestion.Source{
		&fakeSource{name: "telegram", err: errors.New("gateway down")},
		&fakeSource{name: "youtube", err: errors.New("gateway down")},
		&fakeSource{name: "twitter", err: errors.New("gateway down")},
		&fakeSource{name: "reddit", err: errors.New("gateway down")},
	}
	o := newTestOrchestrator(t, st, testRedis(t), sources, &fakeMarket{err: errors.New("feed down")}, scoring.NewLexiconScorer())

	if _, err := o.Start(config.ModeLive, ingestion.Window{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	final := waitForRun(t, o)

	if final.Status != RunStatusError {
		t.Fatalf("all steps failing must report error, got %s", final.Status)
	}
}

func TestProgressEventsMonotonicWithTerminalDone(t *testing.T) {
	st := testDB(t)
	rdb := testRedis(t)
	o := newTestOrchestrator(t, st, rdb, defaultSources(), &fakeMarket{}, scoring.NewLexiconScorer())

	pubsub := rdb.Subscribe(context.Background(), ProgressChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	ch := pubsub.Channel()

	if _, err := o.Start(config.ModeTest, ingestion.Window{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	lastPercent := -1
	doneEvents := 0
	timeout := time.After(30 * time.Second)
	for doneEvents == 0 {
		select {
		case msg := <-ch:
			var event ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				t.Fatalf("bad event payload: %v", err)
			}
			if event.Percent < lastPercent {
				t.Fatalf("progress went backwards: %d after %d", event.Percent, lastPercent)
			}
			lastPercent = event.Percent
			if event.Done {
				doneEvents++
				if event.Percent != 100 {
					t.Errorf("terminal event must report 100%%, got %d", event.Percent)
				}
				if len(event.Steps) != 7 {
					t.Errorf("terminal event should summarize all steps, got %d", len(event.Steps))
				}
			}
		case <-timeout:
			t.Fatal("never received the terminal done event")
		}
	}
}

func TestNonTerminalEventsStayBelowHundred(t *testing.T) {
	st := testDB(t)
	rdb := testRedis(t)
	o := newTestOrchestrator(t, st, rdb, defaultSources(), &fakeMarket{}, scoring.NewLexiconScorer())

	pubsub := rdb.Subscribe(context.Background(), ProgressChannel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	ch := pubsub.Channel()

	if _, err := o.Start(config.ModeTest, ingestion.Window{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	timeout := time.After(30 * time.Second)
	for {
		select {
		case msg := <-ch:
			var event ProgressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				t.Fatalf("bad event payload: %v", err)
			}
			if event.Done {
				if event.Percent != 100 {
					t.Errorf("terminal event must report 100%%, got %d", event.Percent)
				}
				return
			}
			if event.Percent >= 100 {
				t.Errorf("non-terminal event reports percent=%d (step=%q message=%q)", event.Percent, event.Step, event.Message)
			}
		case <-timeout:
			t.Fatal("never received the terminal done event")
		}
	}
}

func TestRunUsesRequestedWindow(t *testing.T) {
	st := testDB(t)
	telegram := &fakeSource{name: "telegram"}
	sources := []ingestion.Source{
		telegram,
		&fakeSource{name: "youtube"},
		&fakeSource{name: "twitter"},
		&fakeSource{name: "reddit"},
	}
	o := newTestOrchestrator(t, st, testRedis(t), sources, &fakeMarket{}, scoring.NewLexiconScorer())

	window := ingestion.Window{
		Since: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2026, 8, 4, 0, 0, 0, 0, time.UTC),
	}
	started, err := o.Start(config.ModeLive, window)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !started.WindowStart.Equal(window.Since) || !started.WindowEnd.Equal(window.Until) {
		t.Errorf("run status window is %v..%v, want %v..%v", started.WindowStart, started.WindowEnd, window.Since, window.Until)
	}
	waitForRun(t, o)

	if !telegram.window.Since.Equal(window.Since) || !telegram.window.Until.Equal(window.Until) {
		t.Errorf("source fetched %v..%v, want the requested window %v..%v", telegram.window.Since, telegram.window.Until, window.Since, window.Until)
	}
}

func TestStartDefaultsWindowToLastDay(t *testing.T) {
	st := testDB(t)
	o := newTestOrchestrator(t, st, testRedis(t), defaultSources(), &fakeMarket{}, scoring.NewLexiconScorer())

	started, err := o.Start(config.ModeTest, ingestion.Window{})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if got := started.WindowEnd.Sub(started.WindowStart); got != 24*time.Hour {
		t.Errorf("zero window should default to 24h, got %v", got)
	}
	waitForRun(t, o)
}

func TestStartRejectsInvertedWindow(t *testing.T) {
	st := testDB(t)
	o := newTestOrchestrator(t, st, testRedis(t), defaultSources(), &fakeMarket{}, scoring.NewLexiconScorer())

	now := time.Now().UTC()
	_, err := o.Start(config.ModeTest, ingestion.Window{Since: now, Until: now.Add(-time.Hour)})
	if !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestRunLockBlocksSecondOrchestrator(t *testing.T) {
	rdb := testRedis(t)

	sources := []ingestion.Source{
		&hangingSource{name: "telegram"},
		&fakeSource{name: "youtube"},
		&fakeSource{name: "twitter"},
		&fakeSource{name: "reddit"},
	}
	first := newTestOrchestrator(t, testDB(t), rdb, sources, &fakeMarket{}, scoring.NewLexiconScorer())
	first.stepTimeout = 2 * time.Second
	second := newTestOrchestrator(t, testDB(t), rdb, defaultSources(), &fakeMarket{}, scoring.NewLexiconScorer())

	if _, err := first.Start(config.ModeLive, ingestion.Window{}); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	// A different process (here: a different Orchestrator over the same
	// Redis) must be rejected while the first run is in flight.
	if _, err := second.Start(config.ModeTest, ingestion.Window{}); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress across instances, got %v", err)
	}

	waitForRun(t, first)
	if _, err := second.Start(config.ModeTest, ingestion.Window{}); err != nil {
		t.Fatalf("start after the other instance finished failed: %v", err)
	}
	waitForRun(t, second)
}

func TestLiveIngestNormalizesRawText(t *testing.T) {
	st := testDB(t)
	telegram := &fakeSource{
		name: "telegram",
		posts: []models.SocialPost{{
			Source:   "telegram",
			SourceID: "t1",
			RawText:  "$RELIANCE breakout soon https://example.com/chart #nifty",
			Symbol:   "RELIANCE",
			PostedAt: time.Now().UTC().Add(-time.Hour),
		}},
	}
	sources := []ingestion.Source{
		telegram,
		&fakeSource{name: "youtube"},
		&fakeSource{name: "twitter"},
		&fakeSource{name: "reddit"},
	}
	o := newTestOrchestrator(t, st, testRedis(t), sources, &fakeMarket{}, scoring.NewLexiconScorer())

	if _, err := o.Start(config.ModeLive, ingestion.Window{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitForRun(t, o)

	var saved []models.SocialPost
	if err := st.DB.Where("source = ?", "telegram").Find(&saved).Error; err != nil {
		t.Fatalf("loading posts failed: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected 1 stored post, got %d", len(saved))
	}
	cleaned := saved[0].CleanedText
	if cleaned == "" {
		t.Fatal("live ingestion left CleanedText empty")
	}
	if strings.Contains(cleaned, "$") || strings.Contains(cleaned, "https://") || strings.Contains(cleaned, "#") {
		t.Errorf("cleaned text still carries raw markup: %q", cleaned)
	}
}

type failingScorer struct{}

func (failingScorer) Score(context.Context, []string) ([]scoring.Result, error) {
	return nil, errors.New("model unavailable")
}

func (failingScorer) Model() string { return "gemini-test" }

func TestModelFailureFallsBackToLexicon(t *testing.T) {
	st := testDB(t)
	telegram := &fakeSource{
		name: "telegram",
		posts: []models.SocialPost{{
			Source:   "telegram",
			SourceID: "t1",
			RawText:  "RELIANCE rocket breakout, multibagger vibes",
			Symbol:   "RELIANCE",
			PostedAt: time.Now().UTC().Add(-time.Hour),
		}},
	}
	sources := []ingestion.Source{
		telegram,
		&fakeSource{name: "youtube"},
		&fakeSource{name: "twitter"},
		&fakeSource{name: "reddit"},
	}
	o := newTestOrchestrator(t, st, testRedis(t), sources, &fakeMarket{}, failingScorer{})

	if _, err := o.Start(config.ModeLive, ingestion.Window{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	final := waitForRun(t, o)

	for _, s := range final.Steps {
		if s.Name == "scoring" && s.Status != StepStatusDone {
			t.Fatalf("scoring should fall back to the lexicon, got %s: %s", s.Status, s.Detail)
		}
	}

	var records []models.SentimentRecord
	if err := st.DB.Find(&records).Error; err != nil {
		t.Fatalf("loading sentiments failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected the backlog to be scored, got %d records", len(records))
	}
	if records[0].ModelVersion != scoring.NewLexiconScorer().Model() {
		t.Errorf("fallback records must carry the lexicon model version, got %q", records[0].ModelVersion)
	}
}

func TestSeedMarketUsesPercentDeliveryUnits(t *testing.T) {
	points := seedMarket(config.ModeTest, time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC), 5)
	if len(points) == 0 {
		t.Fatal("no seeded market points")
	}
	for _, p := range points {
		if p.DeliveryPct < 35 || p.DeliveryPct > 65 {
			t.Fatalf("seeded DeliveryPct %.2f for %s is not in percent units", p.DeliveryPct, p.Symbol)
		}
		implied := float64(p.DeliveryVolume) / float64(p.Volume) * 100
		if math.Abs(implied-p.DeliveryPct) > 1 {
			t.Fatalf("DeliveryVolume implies %.2f%%, row says %.2f%%", implied, p.DeliveryPct)
		}
	}
}
