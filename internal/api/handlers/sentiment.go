/**
 * @description
 * Sentiment API handlers.
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

type SentimentHandler struct {
	Store       *store.Store
	DefaultMode string
}

func NewSentimentHandler(st *store.Store, defaultMode string) *SentimentHandler {
	return &SentimentHandler{Store: st, DefaultMode: defaultMode}
}

// GetSummary aggregates a symbol's recent sentiment.
// GET /api/v1/sentiment/summary/:symbol?hours=24
func (h *SentimentHandler) GetSummary(c *fiber.Ctx) error {
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

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	summary, err := h.Store.SummarizeSentiment(c.Context(), symbol, since, mode)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to summarize sentiment",
		})
	}
	return c.JSON(summary)
}
