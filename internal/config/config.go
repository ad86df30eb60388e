/**
 * @description
 * Configuration loader for the Crowd Pulse backend.
 * Responsible for reading environment variables, setting defaults, and performing strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 * - standard "fmt": For error reporting
 *
 * @notes
 * - Fails fast if critical variables (Database URL) are missing.
 * - Quota limits, divergence thresholds, and confidence weights are all
 *   configurable here rather than hard-coded, since the numeric defaults
 *   need empirical tuning per symbol liquidity.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mode partitions persisted data: test rows and live rows never mix in a query.
const (
	ModeTest = "test"
	ModeLive = "live"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Redis   RedisConfig
	Sources SourcesConfig
	Scoring ScoringConfig
	Quota   QuotaConfig
	Signals SignalsConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
	Env  string // "development" or "production"
	Mode string // "test" or "live" — default data mode for the process
}

// DBConfig holds PostgreSQL settings
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// SourcesConfig holds endpoints and keys for the external discussion and market sources
type SourcesConfig struct {
	TelegramGatewayURL string
	TelegramAPIKey     string
	YouTubeURL         string
	YouTubeAPIKey      string
	TwitterURL         string
	TwitterBearerToken string
	RedditURL          string
	RedditAuthURL      string
	RedditClientID     string
	RedditSecret       string
	MarketDataURL      string
	FetchTimeout       time.Duration

	YouTubeVideoIDs  []string
	TwitterQueries   []string
	RedditSubreddits []string
}

// ScoringConfig holds the sentiment scorer settings
type ScoringConfig struct {
	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string
	BatchSize     int
}

// QuotaConfig holds per-service daily call limits
type QuotaConfig struct {
	DailyLimits map[string]int
}

// SignalsConfig holds the tunables of the signal engine
type SignalsConfig struct {
	VelocityWindows       []time.Duration
	VelocityMinRecords    int
	BucketSize            time.Duration
	DivergenceLookback    int     // rolling z-score lookback, in buckets
	DivergenceThreshold   float64 // ±threshold for hype/panic classification
	ConsistencyLookback   int     // buckets of divergence history for consistency
	ConsistencyNormalizer float64 // variance normalizer for consistency
	TargetRecordCount     int     // expected discussion volume floor per bucket
	WeightModelCertainty  float64
	WeightDataSufficiency float64
	WeightConsistency     float64
	SymbolParallelism     int
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (prod might inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
			Mode: getEnv("DATA_MODE", ModeTest),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Sources: SourcesConfig{
			TelegramGatewayURL: getEnv("TELEGRAM_GATEWAY_URL", ""),
			TelegramAPIKey:     sanitizeCredential(getEnv("TELEGRAM_API_KEY", "")),
			YouTubeURL:         getEnv("YOUTUBE_API_URL", "https://www.googleapis.com/youtube/v3"),
			YouTubeAPIKey:      sanitizeCredential(getEnv("YOUTUBE_API_KEY", "")),
			TwitterURL:         getEnv("TWITTER_API_URL", "https://api.twitter.com/2"),
			TwitterBearerToken: sanitizeCredential(getEnv("TWITTER_BEARER_TOKEN", "")),
			RedditURL:          getEnv("REDDIT_API_URL", "https://oauth.reddit.com"),
			RedditAuthURL:      getEnv("REDDIT_AUTH_URL", "https://www.reddit.com/api/v1/access_token"),
			RedditClientID:     sanitizeCredential(getEnv("REDDIT_CLIENT_ID", "")),
			RedditSecret:       sanitizeCredential(getEnv("REDDIT_CLIENT_SECRET", "")),
			MarketDataURL:      getEnv("MARKET_DATA_URL", ""),
			FetchTimeout:       getEnvAsDuration("SOURCE_FETCH_TIMEOUT", 30*time.Second),

			YouTubeVideoIDs: getEnvAsSlice("YOUTUBE_VIDEO_IDS", nil),
			TwitterQueries: getEnvAsSlice("TWITTER_QUERIES", []string{
				"(nifty OR sensex) lang:en -is:retweet",
			}),
			RedditSubreddits: getEnvAsSlice("REDDIT_SUBREDDITS", []string{
				"IndianStockMarket",
				"IndianStreetBets",
				"DalalStreetTalks",
			}),
		},
		Scoring: ScoringConfig{
			GeminiAPIKey:  sanitizeCredential(getEnv("GEMINI_API_KEY", "")),
			GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/models"),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			BatchSize:     getEnvAsInt("SCORING_BATCH_SIZE", 20),
		},
		Quota: QuotaConfig{
			DailyLimits: map[string]int{
				"telegram": getEnvAsInt("QUOTA_TELEGRAM_DAILY", 200),
				"youtube":  getEnvAsInt("QUOTA_YOUTUBE_DAILY", 500),
				"twitter":  getEnvAsInt("QUOTA_TWITTER_DAILY", 50),
				"reddit":   getEnvAsInt("QUOTA_REDDIT_DAILY", 100),
				"market":   getEnvAsInt("QUOTA_MARKET_DAILY", 500),
				"gemini":   getEnvAsInt("QUOTA_GEMINI_DAILY", 1500),
			},
		},
		Signals: SignalsConfig{
			VelocityWindows: []time.Duration{
				getEnvAsDuration("VELOCITY_WINDOW_SHORT", 5*time.Minute),
				getEnvAsDuration("VELOCITY_WINDOW_MEDIUM", time.Hour),
				getEnvAsDuration("VELOCITY_WINDOW_LONG", 24*time.Hour),
			},
			VelocityMinRecords:    getEnvAsInt("VELOCITY_MIN_RECORDS", 5),
			BucketSize:            getEnvAsDuration("SIGNAL_BUCKET_SIZE", time.Hour),
			DivergenceLookback:    getEnvAsInt("DIVERGENCE_LOOKBACK_BUCKETS", 24),
			DivergenceThreshold:   getEnvAsFloat("DIVERGENCE_THRESHOLD", 1.5),
			ConsistencyLookback:   getEnvAsInt("CONSISTENCY_LOOKBACK_BUCKETS", 12),
			ConsistencyNormalizer: getEnvAsFloat("CONSISTENCY_VARIANCE_NORMALIZER", 4.0),
			TargetRecordCount:     getEnvAsInt("TARGET_RECORD_COUNT", 100),
			WeightModelCertainty:  getEnvAsFloat("CONFIDENCE_WEIGHT_MODEL", 0.4),
			WeightDataSufficiency: getEnvAsFloat("CONFIDENCE_WEIGHT_DATA", 0.3),
			WeightConsistency:     getEnvAsFloat("CONFIDENCE_WEIGHT_CONSISTENCY", 0.3),
			SymbolParallelism:     getEnvAsInt("SYMBOL_PARALLELISM", 8),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Server.Mode != ModeTest && cfg.Server.Mode != ModeLive {
		return fmt.Errorf("DATA_MODE must be %q or %q, got %q", ModeTest, ModeLive, cfg.Server.Mode)
	}
	if cfg.Server.Mode == ModeLive && cfg.Scoring.GeminiAPIKey == "" {
		fmt.Println("Warning: GEMINI_API_KEY is missing. Live scoring will fall back to the lexicon scorer.")
	}
	sum := cfg.Signals.WeightModelCertainty + cfg.Signals.WeightDataSufficiency + cfg.Signals.WeightConsistency
	if sum <= 0 {
		return fmt.Errorf("confidence weights must sum to a positive value, got %.3f", sum)
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func sanitizeCredential(value string) string {
	trimmed := strings.TrimSpace(value)
	return strings.Trim(trimmed, "\"")
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

// Helper to get env var as a comma-separated list
func getEnvAsSlice(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
