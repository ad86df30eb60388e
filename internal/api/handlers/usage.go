/**
 * @description
 * Quota usage API handler: today's per-service budget consumption.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - internal/quota
 */

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helvinmg/crowdpulse/internal/quota"
)

type UsageHandler struct {
	Ledger *quota.Ledger
}

func NewUsageHandler(ledger *quota.Ledger) *UsageHandler {
	return &UsageHandler{Ledger: ledger}
}

// GetUsage returns today's quota summary for every configured service.
// GET /api/v1/usage
func (h *UsageHandler) GetUsage(c *fiber.Ctx) error {
	summary, err := h.Ledger.GetSummary(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to read quota usage",
		})
	}
	return c.JSON(summary)
}
