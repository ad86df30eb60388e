/**
 * @description
 * Pipeline run bookkeeping: run and step statuses, and the progress
 * events streamed to clients while a run is in flight.
 *
 * @dependencies
 * - github.com/google/uuid: run identifiers
 */

package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// Run statuses
const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusError   = "error"
)

// Step statuses
const (
	StepStatusRunning = "running"
	StepStatusDone    = "done"
	StepStatusSkipped = "skipped"
	StepStatusFailed  = "failed"
)

// StepResult records the outcome of one pipeline step.
type StepResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Records    int    `json:"records"`
	Detail     string `json:"detail,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// RunStatus is the full state of a pipeline run, kept in memory for the
// status endpoint and summarized into the terminal progress event.
type RunStatus struct {
	RunID       string       `json:"run_id"`
	Mode        string       `json:"mode"`
	Status      string       `json:"status"`
	WindowStart time.Time    `json:"window_start"`
	WindowEnd   time.Time    `json:"window_end"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	Steps       []StepResult `json:"steps"`
}

// ProgressEvent is one frame of the progress stream. Percent never
// decreases within a run, and exactly one event per run has Done set.
type ProgressEvent struct {
	RunID     string       `json:"run_id"`
	Status    string       `json:"status"`
	Step      string       `json:"step,omitempty"`
	Percent   int          `json:"percent"`
	Message   string       `json:"message"`
	Steps     []StepResult `json:"steps,omitempty"`
	Done      bool         `json:"done"`
	Timestamp time.Time    `json:"timestamp"`
}

func newRunID() string {
	return uuid.New().String()
}
