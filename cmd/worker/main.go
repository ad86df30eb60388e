/**
 * @description
 * Worker Service Entry Point.
 * Runs the ingest → score → signal pipeline on a schedule so signals stay
 * fresh without anyone pressing the button.
 *
 * @dependencies
 * - internal/config
 * - internal/db
 * - internal/pipeline
 *
 * @notes
 * - If a scheduled tick fires while a run is still in flight, the tick is
 *   skipped; runs never queue up.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helvinmg/crowdpulse/internal/config"
	"github.com/helvinmg/crowdpulse/internal/db"
	"github.com/helvinmg/crowdpulse/internal/ingestion"
	"github.com/helvinmg/crowdpulse/internal/logger"
	"github.com/helvinmg/crowdpulse/internal/pipeline"
	"github.com/helvinmg/crowdpulse/internal/quota"
	"github.com/helvinmg/crowdpulse/internal/scoring"
	"github.com/helvinmg/crowdpulse/internal/signals"
	"github.com/helvinmg/crowdpulse/internal/store"
)

// Shortest source cadence. The quota ledger caps per-source spend, so
// running the full pipeline this often cannot overshoot daily budgets.
const runInterval = 15 * time.Minute

func main() {
	logger.Info("🔥 Starting Crowd Pulse Worker...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	// 2. Connect DBs
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Postgres connection failed: %v", err)
	}
	if err := db.Migrate(pgDB); err != nil {
		logger.Fatal("Migration failed: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Redis connection failed: %v", err)
	}

	// 3. Initialize Services
	st := store.New(pgDB)
	ledger := quota.NewLedger(redisClient, pgDB, cfg.Quota.DailyLimits)
	engine := signals.NewEngine(st, cfg.Signals)

	var scorer scoring.Scorer
	if cfg.Scoring.GeminiAPIKey != "" {
		scorer = scoring.NewGeminiScorer(cfg)
	} else {
		scorer = scoring.NewLexiconScorer()
	}

	social := []ingestion.Source{
		ingestion.NewTelegramClient(cfg),
		ingestion.NewYouTubeClient(cfg, cfg.Sources.YouTubeVideoIDs),
		ingestion.NewTwitterClient(cfg, cfg.Sources.TwitterQueries),
		ingestion.NewRedditClient(cfg, cfg.Sources.RedditSubreddits),
	}
	market := ingestion.NewMarketClient(cfg)

	orchestrator := pipeline.NewOrchestrator(cfg, st, ledger, redisClient, scorer, social, market, engine)

	// 4. Context with Cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Scheduled Runs
	go func() {
		ticker := time.NewTicker(runInterval)
		defer ticker.Stop()

		// Initial run on startup
		triggerRun(orchestrator, cfg.Server.Mode)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				triggerRun(orchestrator, cfg.Server.Mode)
			}
		}
	}()

	// 6. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()

	time.Sleep(1 * time.Second) // Give the in-flight run's publishes time to flush
	logger.Info("Worker exited.")
}

// triggerRun starts a pipeline run, skipping the tick if one is already
// in flight.
func triggerRun(orchestrator *pipeline.Orchestrator, mode string) {
	status, err := orchestrator.Start(mode, ingestion.Window{})
	if err != nil {
		if err == pipeline.ErrRunInProgress {
			logger.Info("Previous pipeline run still in flight, skipping this tick")
			return
		}
		logger.Error("Failed to start pipeline run: %v", err)
		return
	}
	logger.Info("🔄 Pipeline run %s started (%s mode)", status.RunID, mode)
}
