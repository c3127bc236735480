package domain

import "time"

// AuditRun records one trigger of a batch job.
type AuditRun struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Source     string         `json:"source"`
	OK         bool           `json:"ok"`
	DurationMs int64          `json:"durationMs"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Audit actions.
const (
	AuditActionOutcomesEvaluate = "outcomes.evaluate"
)
