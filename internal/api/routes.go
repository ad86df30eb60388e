/**
 * @description
 * API Route definitions.
 * Sets up the router groups and assigns handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - internal/api/handlers
 * - internal/pipeline
 * - internal/ingestion
 */

package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/helvinmg/crowdpulse/internal/api/handlers"
	"github.com/helvinmg/crowdpulse/internal/config"
	"github.com/helvinmg/crowdpulse/internal/ingestion"
	"github.com/helvinmg/crowdpulse/internal/pipeline"
	"github.com/helvinmg/crowdpulse/internal/quota"
	"github.com/helvinmg/crowdpulse/internal/scoring"
	"github.com/helvinmg/crowdpulse/internal/signals"
	"github.com/helvinmg/crowdpulse/internal/store"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, db *gorm.DB, rdb *redis.Client, cfg *config.Config) {
	// 1. Initialize Services
	st := store.New(db)
	ledger := quota.NewLedger(rdb, db, cfg.Quota.DailyLimits)
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
	hub := pipeline.NewProgressHub(rdb)

	// 2. Initialize Handlers
	pipelineHandler := handlers.NewPipelineHandler(orchestrator, hub, cfg.Server.Mode)
	divergenceHandler := handlers.NewDivergenceHandler(st, rdb, cfg.Server.Mode)
	sentimentHandler := handlers.NewSentimentHandler(st, cfg.Server.Mode)
	marketHandler := handlers.NewMarketHandler(st, cfg.Server.Mode)
	usageHandler := handlers.NewUsageHandler(ledger)

	// 3. Define Routes
	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "mode": cfg.Server.Mode})
	})

	// Pipeline
	pipe := v1.Group("/pipeline")
	pipe.Post("/run", pipelineHandler.RunPipeline)
	pipe.Get("/status", pipelineHandler.GetStatus)

	// Divergence signals
	divergence := v1.Group("/divergence")
	divergence.Get("/overview", divergenceHandler.GetOverview)
	divergence.Get("/latest/:symbol", divergenceHandler.GetLatest)
	divergence.Get("/timeseries/:symbol", divergenceHandler.GetTimeseries)

	// Sentiment
	v1.Get("/sentiment/summary/:symbol", sentimentHandler.GetSummary)

	// Market data
	v1.Get("/market/:symbol", marketHandler.GetHistory)

	// Quota usage
	v1.Get("/usage", usageHandler.GetUsage)
}
