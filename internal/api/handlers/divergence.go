/**
 * @description
 * Divergence signal API handlers: latest signal per symbol, per-symbol
 * timeseries, and the cross-universe overview. The overview is cached in
 * Redis briefly since every dashboard load hits it.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - github.com/redis/go-redis/v9
 * - internal/store, internal/symbols
 */

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/helvinmg/crowdpulse/internal/logger"
	"github.com/helvinmg/crowdpulse/internal/models"
	"github.com/helvinmg/crowdpulse/internal/store"
	"github.com/helvinmg/crowdpulse/internal/symbols"
)

const (
	overviewCacheKeyPrefix = "cache:overview:"
	overviewCacheTTL       = 60 * time.Second
)

type DivergenceHandler struct {
	Store       *store.Store
	Redis       *redis.Client
	DefaultMode string
}

func NewDivergenceHandler(st *store.Store, rdb *redis.Client, defaultMode string) *DivergenceHandler {
	return &DivergenceHandler{Store: st, Redis: rdb, DefaultMode: defaultMode}
}

// requireSymbol upper-cases and validates the :symbol path parameter.
func requireSymbol(c *fiber.Ctx) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Params("symbol")))
	if !symbols.IsTracked(symbol) {
		return "", fmt.Errorf("symbol %q is not tracked", symbol)
	}
	return symbol, nil
}

// GetLatest returns the newest signal for one symbol.
// GET /api/v1/divergence/latest/:symbol
func (h *DivergenceHandler) GetLatest(c *fiber.Ctx) error {
	symbol, err := requireSymbol(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	mode, err := resolveMode(c, h.DefaultMode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	signal, err := h.Store.LatestSignal(c.Context(), symbol, mode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "no signal computed for this symbol yet",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch signal",
		})
	}
	return c.JSON(signal)
}

// GetTimeseries returns a symbol's signals over a lookback window.
// GET /api/v1/divergence/timeseries/:symbol?hours=24
func (h *DivergenceHandler) GetTimeseries(c *fiber.Ctx) error {
	symbol, err := requireSymbol(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	mode, err := resolveMode(c, h.DefaultMode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	hours := c.QueryInt("hours", 24)
	if hours < 1 || hours > 24*30 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "hours must be between 1 and 720",
		})
	}

	to := time.Now().UTC()
	from := to.Add(-time.Duration(hours) * time.Hour)
	signals, err := h.Store.SignalRange(c.Context(), symbol, from, to, mode)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch signals",
		})
	}
	return c.JSON(fiber.Map{
		"symbol":  symbol,
		"from":    from,
		"to":      to,
		"signals": signals,
	})
}

// GetOverview returns the latest signal for every symbol that has one,
// most stretched first. Cache -> DB.
// GET /api/v1/divergence/overview
func (h *DivergenceHandler) GetOverview(c *fiber.Ctx) error {
	mode, err := resolveMode(c, h.DefaultMode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctx := c.Context()
	cacheKey := overviewCacheKeyPrefix + mode

	if h.Redis != nil {
		if cached, err := h.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			c.Set("Content-Type", "application/json")
			return c.Send(cached)
		}
	}

	overview, err := h.Store.Overview(ctx, mode)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch overview",
		})
	}
	if overview == nil {
		overview = []models.DivergenceSignal{}
	}

	if h.Redis != nil {
		if data, err := json.Marshal(overview); err == nil {
			if err := h.Redis.Set(context.Background(), cacheKey, data, overviewCacheTTL).Err(); err != nil {
				logger.Error("Failed to cache overview: %v", err)
			}
		}
	}
	return c.JSON(overview)
}
