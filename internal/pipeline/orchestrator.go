/**
 * @description
 * Pipeline orchestrator: runs the fixed ingest → score → signal sequence
 * as one pipeline run, publishing progress events over Redis pub/sub.
 * Exactly one run may be in flight system-wide; concurrent starts are
 * rejected rather than queued.
 *
 * @dependencies
 * - internal/store, internal/quota, internal/ingestion, internal/scoring, internal/signals
 * - github.com/redis/go-redis/v9: progress event publishing
 *
 * @notes
 * - A step blocked by quota is skipped, not failed; a step error does not
 *   stop the run. The run only reports "error" when every step failed.
 * - Progress percent is monotonic and the terminal done event is always
 *   emitted, whatever the outcome.
 * - In test mode the ingest steps write deterministic seeded data and no
 *   external call (or quota) is consumed.
 */

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/helvinmg/crowdpulse/internal/config"
	"github.com/helvinmg/crowdpulse/internal/ingestion"
	"github.com/helvinmg/crowdpulse/internal/logger"
	"github.com/helvinmg/crowdpulse/internal/models"
	"github.com/helvinmg/crowdpulse/internal/quota"
	"github.com/helvinmg/crowdpulse/internal/scoring"
	"github.com/helvinmg/crowdpulse/internal/signals"
	"github.com/helvinmg/crowdpulse/internal/store"
	"github.com/helvinmg/crowdpulse/internal/symbols"
)

// ErrRunInProgress is returned when a start is attempted while another
// run is still in flight.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// ErrInvalidWindow is returned when the requested ingestion window is
// empty or inverted.
var ErrInvalidWindow = errors.New("window start must precede window end")

const (
	defaultStepTimeout  = 5 * time.Minute
	defaultIngestWindow = 24 * time.Hour
	marketHistoryDays   = 10
	maxScoringBatches   = 50

	// runLockKey serializes runs across processes: the API server and the
	// worker each hold their own Orchestrator, but only one of them may
	// have a run in flight at a time.
	runLockKey = "pipeline:run:lock"
	runLockTTL = 45 * time.Minute
)

// MarketFetcher narrows the market client so tests can stub it.
type MarketFetcher interface {
	Name() string
	FetchSymbol(ctx context.Context, symbol string, days int) ([]models.MarketPoint, error)
}

// Orchestrator owns the run lifecycle and the step implementations.
type Orchestrator struct {
	cfg     *config.Config
	store   *store.Store
	ledger  *quota.Ledger
	redis   *redis.Client
	scorer  scoring.Scorer
	lexicon scoring.Scorer
	social  []ingestion.Source
	market  MarketFetcher
	engine  *signals.Engine

	mu      sync.Mutex
	running bool
	status  *RunStatus

	stepTimeout time.Duration
	now         func() time.Time
}

func NewOrchestrator(
	cfg *config.Config,
	st *store.Store,
	ledger *quota.Ledger,
	rdb *redis.Client,
	scorer scoring.Scorer,
	social []ingestion.Source,
	market MarketFetcher,
	engine *signals.Engine,
) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		store:   st,
		ledger:  ledger,
		redis:   rdb,
		scorer:  scorer,
		lexicon: scoring.NewLexiconScorer(),
		social:  social,
		market:  market,
		engine:  engine,

		stepTimeout: defaultStepTimeout,
		now:         time.Now,
	}
}

// Start launches a pipeline run over the requested window in the
// background and returns its initial status. A zero window defaults to
// the last 24 hours. Returns ErrRunInProgress if a run is already in
// flight anywhere in the system.
func (o *Orchestrator) Start(mode string, window ingestion.Window) (*RunStatus, error) {
	now := o.now().UTC()
	if window.Until.IsZero() {
		window.Until = now
	}
	if window.Since.IsZero() {
		window.Since = window.Until.Add(-defaultIngestWindow)
	}
	if !window.Since.Before(window.Until) {
		return nil, ErrInvalidWindow
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil, ErrRunInProgress
	}

	runID := newRunID()
	if !o.acquireRunLock(runID) {
		return nil, ErrRunInProgress
	}

	status := &RunStatus{
		RunID:       runID,
		Mode:        mode,
		Status:      RunStatusRunning,
		WindowStart: window.Since,
		WindowEnd:   window.Until,
		StartedAt:   now,
	}
	o.running = true
	o.status = status

	go o.run(runID, mode, window)

	return o.snapshotLocked(), nil
}

// acquireRunLock claims the cross-process run lock. Without Redis the
// in-memory flag is the only guard; a Redis hiccup degrades to the same.
func (o *Orchestrator) acquireRunLock(runID string) bool {
	if o.redis == nil {
		return true
	}
	acquired, err := o.redis.SetNX(context.Background(), runLockKey, runID, runLockTTL).Result()
	if err != nil {
		logger.Error("Run lock check failed, falling back to local guard: %v", err)
		return true
	}
	return acquired
}

// releaseRunLock drops the cross-process lock, but only if this run
// still owns it (the TTL may have handed it to someone else).
func (o *Orchestrator) releaseRunLock(runID string) {
	if o.redis == nil {
		return
	}
	ctx := context.Background()
	if val, err := o.redis.Get(ctx, runLockKey).Result(); err == nil && val == runID {
		o.redis.Del(ctx, runLockKey)
	}
}

// Status returns a copy of the most recent run's state, or nil if no run
// has happened yet.
func (o *Orchestrator) Status() *RunStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() *RunStatus {
	if o.status == nil {
		return nil
	}
	snapshot := *o.status
	snapshot.Steps = append([]StepResult(nil), o.status.Steps...)
	return &snapshot
}

type stepFunc func(ctx context.Context, mode string, window ingestion.Window) StepResult

func (o *Orchestrator) run(runID, mode string, window ingestion.Window) {
	ctx := context.Background()

	type namedStep struct {
		name string
		fn   stepFunc
	}

	steps := make([]namedStep, 0, len(o.social)+3)
	for _, src := range o.social {
		src := src
		steps = append(steps, namedStep{src.Name(), func(ctx context.Context, mode string, window ingestion.Window) StepResult {
			return o.ingestSocial(ctx, src, mode, window)
		}})
	}
	steps = append(steps,
		namedStep{"market", o.ingestMarket},
		namedStep{"scoring", o.scorePosts},
		namedStep{"signals", o.computeSignals},
	)

	o.publish(ProgressEvent{
		RunID:     runID,
		Status:    RunStatusRunning,
		Percent:   0,
		Message:   fmt.Sprintf("Pipeline run started in %s mode", mode),
		Timestamp: o.now().UTC(),
	})

	failed := 0
	for i, step := range steps {
		o.publish(ProgressEvent{
			RunID:     runID,
			Status:    RunStatusRunning,
			Step:      step.name,
			Percent:   i * 100 / len(steps),
			Message:   fmt.Sprintf("Running step %s", step.name),
			Timestamp: o.now().UTC(),
		})

		stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
		started := o.now()
		result := step.fn(stepCtx, mode, window)
		cancel()

		result.Name = step.name
		result.DurationMs = o.now().Sub(started).Milliseconds()
		if result.Status == StepStatusFailed {
			failed++
		}

		o.mu.Lock()
		o.status.Steps = append(o.status.Steps, result)
		o.mu.Unlock()

		// 100 is reserved for the terminal event.
		percent := (i + 1) * 100 / len(steps)
		if percent > 99 {
			percent = 99
		}
		o.publish(ProgressEvent{
			RunID:     runID,
			Status:    RunStatusRunning,
			Step:      step.name,
			Percent:   percent,
			Message:   fmt.Sprintf("Step %s %s (%d records)", step.name, result.Status, result.Records),
			Timestamp: o.now().UTC(),
		})
	}

	finalStatus := RunStatusDone
	if failed == len(steps) {
		finalStatus = RunStatusError
	}

	o.releaseRunLock(runID)

	finishedAt := o.now().UTC()
	o.mu.Lock()
	o.status.Status = finalStatus
	o.status.FinishedAt = &finishedAt
	o.running = false
	terminal := o.snapshotLocked()
	o.mu.Unlock()

	o.publish(ProgressEvent{
		RunID:     runID,
		Status:    finalStatus,
		Percent:   100,
		Message:   fmt.Sprintf("Pipeline run %s", finalStatus),
		Steps:     terminal.Steps,
		Done:      true,
		Timestamp: finishedAt,
	})
}

// publish sends a progress event over Redis pub/sub. Publishing is best
// effort; a Redis hiccup never fails the run itself.
func (o *Orchestrator) publish(event ProgressEvent) {
	if o.redis == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal progress event: %v", err)
		return
	}
	if err := o.redis.Publish(context.Background(), ProgressChannel, payload).Err(); err != nil {
		logger.Error("Failed to publish progress event: %v", err)
	}
}

// ingestSocial runs one social source's ingest step over the requested
// window. In test mode the fetch is replaced with seeded data and quota
// is untouched.
func (o *Orchestrator) ingestSocial(ctx context.Context, src ingestion.Source, mode string, window ingestion.Window) StepResult {
	if mode == config.ModeTest {
		inserted, err := o.store.SavePosts(ctx, seedPosts(src.Name(), mode, window.Until))
		if err != nil {
			return StepResult{Status: StepStatusFailed, Detail: err.Error()}
		}
		return StepResult{Status: StepStatusDone, Records: inserted, Detail: "seeded"}
	}

	allowed, err := o.ledger.Reserve(ctx, src.Name())
	if err != nil {
		return StepResult{Status: StepStatusFailed, Detail: fmt.Sprintf("quota check failed: %v", err)}
	}
	if !allowed {
		return StepResult{Status: StepStatusSkipped, Detail: "daily quota exhausted"}
	}

	started := o.now()
	posts, err := src.Fetch(ctx, window)
	latency := o.now().Sub(started)
	if err != nil {
		o.ledger.RecordOutcome(ctx, src.Name(), "fetch", models.UsageStatusError, latency, 0, err.Error())
		return StepResult{Status: StepStatusFailed, Detail: err.Error()}
	}

	for i := range posts {
		posts[i].DataSource = mode
		if posts[i].CleanedText == "" {
			posts[i].CleanedText = symbols.Clean(posts[i].RawText)
		}
	}
	inserted, err := o.store.SavePosts(ctx, posts)
	if err != nil {
		return StepResult{Status: StepStatusFailed, Detail: err.Error()}
	}

	o.ledger.RecordOutcome(ctx, src.Name(), "fetch", models.UsageStatusSuccess, latency, inserted, "")
	return StepResult{Status: StepStatusDone, Records: inserted}
}

// ingestMarket fetches daily bars per tracked symbol, stopping early if
// the market quota runs out mid-universe.
func (o *Orchestrator) ingestMarket(ctx context.Context, mode string, window ingestion.Window) StepResult {
	if mode == config.ModeTest {
		points := seedMarket(mode, window.Until, marketHistoryDays)
		if err := o.store.UpsertMarketPoints(ctx, points); err != nil {
			return StepResult{Status: StepStatusFailed, Detail: err.Error()}
		}
		return StepResult{Status: StepStatusDone, Records: len(points), Detail: "seeded"}
	}

	fetched := 0
	errored := 0
	lastErr := ""
	blockedAt := ""
	for _, symbol := range symbols.Nifty50 {
		allowed, err := o.ledger.Reserve(ctx, o.market.Name())
		if err != nil {
			return StepResult{Status: StepStatusFailed, Records: fetched, Detail: fmt.Sprintf("quota check failed: %v", err)}
		}
		if !allowed {
			blockedAt = symbol
			break
		}

		started := o.now()
		points, err := o.market.FetchSymbol(ctx, symbol, marketHistoryDays)
		latency := o.now().Sub(started)
		if err != nil {
			o.ledger.RecordOutcome(ctx, o.market.Name(), "history", models.UsageStatusError, latency, 0, err.Error())
			logger.Error("Market fetch failed for %s: %v", symbol, err)
			errored++
			lastErr = err.Error()
			continue
		}

		for i := range points {
			points[i].DataSource = mode
		}
		if err := o.store.UpsertMarketPoints(ctx, points); err != nil {
			return StepResult{Status: StepStatusFailed, Records: fetched, Detail: err.Error()}
		}
		fetched += len(points)
		o.ledger.RecordOutcome(ctx, o.market.Name(), "history", models.UsageStatusSuccess, latency, len(points), "")
	}

	if fetched == 0 && blockedAt != "" {
		return StepResult{Status: StepStatusSkipped, Detail: "daily quota exhausted"}
	}
	if fetched == 0 && errored > 0 {
		return StepResult{Status: StepStatusFailed, Detail: lastErr}
	}
	result := StepResult{Status: StepStatusDone, Records: fetched}
	if blockedAt != "" {
		result.Detail = fmt.Sprintf("quota exhausted at %s, partial coverage", blockedAt)
	}
	return result
}

// scorePosts drains the unscored backlog in batches. Test mode always
// scores with the deterministic lexicon; the model quota only applies to
// the external scorer. A failing external batch falls back to the
// lexicon so a model outage degrades scoring quality, not coverage.
func (o *Orchestrator) scorePosts(ctx context.Context, mode string, _ ingestion.Window) StepResult {
	scorer := o.scorer
	if mode == config.ModeTest {
		scorer = o.lexicon
	}
	usesModelQuota := strings.HasPrefix(scorer.Model(), "gemini")
	batchSize := o.cfg.Scoring.BatchSize
	if batchSize < 1 {
		batchSize = 20
	}

	scored := 0
	for batch := 0; batch < maxScoringBatches; batch++ {
		posts, err := o.store.UnscoredPosts(ctx, mode, batchSize)
		if err != nil {
			return StepResult{Status: StepStatusFailed, Records: scored, Detail: err.Error()}
		}
		if len(posts) == 0 {
			break
		}

		if usesModelQuota {
			allowed, err := o.ledger.Reserve(ctx, "gemini")
			if err != nil {
				return StepResult{Status: StepStatusFailed, Records: scored, Detail: fmt.Sprintf("quota check failed: %v", err)}
			}
			if !allowed {
				if scored == 0 {
					return StepResult{Status: StepStatusSkipped, Detail: "daily quota exhausted"}
				}
				return StepResult{Status: StepStatusDone, Records: scored, Detail: "quota exhausted, partial backlog"}
			}
		}

		texts := make([]string, len(posts))
		for i, p := range posts {
			texts[i] = p.CleanedText
			if texts[i] == "" {
				texts[i] = p.RawText
			}
		}

		batchScorer := scorer
		results, err := batchScorer.Score(ctx, texts)
		if err != nil {
			if usesModelQuota {
				o.ledger.RecordOutcome(ctx, "gemini", "generateContent", models.UsageStatusError, 0, 0, err.Error())
			}
			if batchScorer == o.lexicon {
				return StepResult{Status: StepStatusFailed, Records: scored, Detail: err.Error()}
			}
			logger.Error("Scorer %s failed, scoring this batch with the lexicon: %v", batchScorer.Model(), err)
			batchScorer = o.lexicon
			results, err = batchScorer.Score(ctx, texts)
			if err != nil {
				return StepResult{Status: StepStatusFailed, Records: scored, Detail: err.Error()}
			}
		}

		scoredAt := o.now().UTC()
		records := make([]models.SentimentRecord, len(posts))
		for i, p := range posts {
			records[i] = models.SentimentRecord{
				PostID:       p.ID,
				Symbol:       p.Symbol,
				Label:        results[i].Label,
				Score:        results[i].Score,
				ModelVersion: batchScorer.Model(),
				PostedAt:     p.PostedAt,
				ScoredAt:     scoredAt,
				DataSource:   mode,
			}
		}
		if err := o.store.SaveSentiments(ctx, records); err != nil {
			return StepResult{Status: StepStatusFailed, Records: scored, Detail: err.Error()}
		}
		scored += len(records)
		if usesModelQuota {
			o.ledger.RecordOutcome(ctx, "gemini", "generateContent", models.UsageStatusSuccess, 0, len(records), "")
		}
	}

	return StepResult{Status: StepStatusDone, Records: scored}
}

// computeSignals recomputes the current bucket's signal for the tracked
// universe.
func (o *Orchestrator) computeSignals(ctx context.Context, mode string, _ ingestion.Window) StepResult {
	computed, err := o.engine.ComputeAll(ctx, symbols.Nifty50, mode)
	if err != nil {
		return StepResult{Status: StepStatusFailed, Records: len(computed), Detail: err.Error()}
	}
	return StepResult{Status: StepStatusDone, Records: len(computed)}
}
