/**
 * @description
 * One-shot pipeline runner for operators and cron jobs.
 * Runs a single pipeline pass end to end and prints the step summary,
 * or reports quota usage / table counts without running anything.
 *
 * @dependencies
 * - internal/config, internal/db, internal/pipeline, internal/quota
 *
 * @notes
 * - Usage:
 *     pipeline -task run -mode test
 *     pipeline -task usage
 *     pipeline -task counts -mode live
 */

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

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

func main() {
	task := flag.String("task", "run", "task to perform: run, usage, counts")
	mode := flag.String("mode", "", "data mode: test or live (defaults to DATA_MODE)")
	hours := flag.Int("hours", 24, "ingestion window in hours, ending now")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}
	if *mode == "" {
		*mode = cfg.Server.Mode
	}
	if *mode != config.ModeTest && *mode != config.ModeLive {
		logger.Fatal("Invalid mode %q", *mode)
	}

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

	st := store.New(pgDB)
	ledger := quota.NewLedger(redisClient, pgDB, cfg.Quota.DailyLimits)

	switch *task {
	case "run":
		runOnce(cfg, st, ledger, redisClient, *mode, *hours)
	case "usage":
		summary, err := ledger.GetSummary(context.Background())
		if err != nil {
			logger.Fatal("Failed to read usage: %v", err)
		}
		printJSON(summary)
	case "counts":
		counts, err := st.CountRows(context.Background(), *mode)
		if err != nil {
			logger.Fatal("Failed to count rows: %v", err)
		}
		printJSON(counts)
	default:
		logger.Error("Unknown task %q", *task)
		flag.Usage()
		os.Exit(2)
	}
}

func runOnce(cfg *config.Config, st *store.Store, ledger *quota.Ledger, rdb *redis.Client, mode string, hours int) {
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

	orchestrator := pipeline.NewOrchestrator(cfg, st, ledger, rdb, scorer, social, market, engine)

	until := time.Now().UTC()
	window := ingestion.Window{Since: until.Add(-time.Duration(hours) * time.Hour), Until: until}
	status, err := orchestrator.Start(mode, window)
	if err != nil {
		logger.Fatal("Failed to start pipeline run: %v", err)
	}
	logger.Info("Pipeline run %s started (%s mode)", status.RunID, mode)

	for {
		time.Sleep(500 * time.Millisecond)
		status = orchestrator.Status()
		if status != nil && status.FinishedAt != nil {
			break
		}
	}

	printJSON(status)
	if status.Status == pipeline.RunStatusError {
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode output: %v", err)
	}
	fmt.Println(string(data))
}
