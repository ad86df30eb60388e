/**
 * @description
 * Pipeline API handlers.
 * Starting a run streams its progress back over SSE until the terminal
 * done event; the status endpoint serves the last run's state.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - internal/pipeline
 */

package handlers

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/helvinmg/crowdpulse/internal/config"
	"github.com/helvinmg/crowdpulse/internal/ingestion"
	"github.com/helvinmg/crowdpulse/internal/pipeline"
)

// maxRunWindowHours caps a single run's ingestion window at 30 days.
const maxRunWindowHours = 720

type PipelineHandler struct {
	Orchestrator *pipeline.Orchestrator
	Hub          *pipeline.ProgressHub
	DefaultMode  string
}

func NewPipelineHandler(orchestrator *pipeline.Orchestrator, hub *pipeline.ProgressHub, defaultMode string) *PipelineHandler {
	return &PipelineHandler{
		Orchestrator: orchestrator,
		Hub:          hub,
		DefaultMode:  defaultMode,
	}
}

// resolveMode picks the data mode for a request: explicit query parameter
// first, the process default otherwise.
func resolveMode(c *fiber.Ctx, defaultMode string) (string, error) {
	mode := c.Query("mode", defaultMode)
	if mode != config.ModeTest && mode != config.ModeLive {
		return "", fmt.Errorf("mode must be %q or %q", config.ModeTest, config.ModeLive)
	}
	return mode, nil
}

// resolveWindow builds the ingestion window for a run request: `hours`
// back from now by default, overridden by explicit RFC 3339 `start` and
// `end` bounds.
func resolveWindow(c *fiber.Ctx) (ingestion.Window, error) {
	hours := c.QueryInt("hours", 24)
	if hours < 1 || hours > maxRunWindowHours {
		return ingestion.Window{}, fmt.Errorf("hours must be between 1 and %d", maxRunWindowHours)
	}

	now := time.Now().UTC()
	window := ingestion.Window{Since: now.Add(-time.Duration(hours) * time.Hour), Until: now}

	if raw := c.Query("start"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ingestion.Window{}, fmt.Errorf("start must be RFC 3339: %v", err)
		}
		window.Since = start.UTC()
	}
	if raw := c.Query("end"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ingestion.Window{}, fmt.Errorf("end must be RFC 3339: %v", err)
		}
		window.Until = end.UTC()
	}
	if !window.Since.Before(window.Until) {
		return ingestion.Window{}, fmt.Errorf("window start must precede window end")
	}
	return window, nil
}

// RunPipeline starts a run over the requested window and streams its
// progress as SSE events.
// POST /api/v1/pipeline/run?hours&start&end&mode
func (h *PipelineHandler) RunPipeline(c *fiber.Ctx) error {
	mode, err := resolveMode(c, h.DefaultMode)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	window, err := resolveWindow(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Subscribe before starting so the first events are not missed.
	ch, unsubscribe := h.Hub.Subscribe()

	status, err := h.Orchestrator.Start(mode, window)
	if err != nil {
		unsubscribe()
		if errors.Is(err, pipeline.ErrRunInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "a pipeline run is already in progress",
			})
		}
		if errors.Is(err, pipeline.ErrInvalidWindow) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to start pipeline run",
		})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	requestCtx := c.Context()
	runID := []byte(status.RunID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		requestDone := requestCtx.Done()

		for {
			select {
			case <-requestDone:
				return
			case payload, ok := <-ch:
				if !ok {
					return
				}
				// The hub carries every run's events; only relay this run's.
				if !bytes.Contains(payload, runID) {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				if err := w.Flush(); err != nil {
					return
				}
				if bytes.Contains(payload, []byte(`"done":true`)) {
					return
				}
			}
		}
	})

	return nil
}

// GetStatus returns the current or most recent run's state.
// GET /api/v1/pipeline/status
func (h *PipelineHandler) GetStatus(c *fiber.Ctx) error {
	status := h.Orchestrator.Status()
	if status == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no pipeline run yet",
		})
	}
	return c.JSON(status)
}
