/**
 * @description
 * Market data API handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - internal/store
 */

package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/helvinmg/crowdpulse/internal/store"
)

type MarketHandler struct {
	Store       *store.Store
	DefaultMode string
}

func NewMarketHandler(st *store.Store, defaultMode string) *MarketHandler {
	return &MarketHandler{Store: st, DefaultMode: defaultMode}
}

// GetHistory returns a symbol's recent daily bars with delivery ratios.
// GET /api/v1/market/:symbol?days=10
func (h *MarketHandler) GetHistory(c *fiber.Ctx) error {
	symbol, err := requireSymbol(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	mode, err := resolveMode(c, h.DefaultMode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	days := c.QueryInt("days", 10)
	if days < 1 || days > 365 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "days must be between 1 and 365",
		})
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	points, err := h.Store.MarketSince(c.Context(), symbol, since, mode)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch market data",
		})
	}
	return c.JSON(fiber.Map{
		"symbol": symbol,
		"points": points,
	})
}
