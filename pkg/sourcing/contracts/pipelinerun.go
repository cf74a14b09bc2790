package contracts

import "time"

// PipelineRun is the per-run telemetry record persisted by the
// orchestrator after each full pipeline pass.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type PipelineRun struct {
	RunID           string         `json:"run_id"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at"`
	DurationMS      int64          `json:"duration_ms"`
	CollectorCounts map[string]int `json:"collector_counts"`
	SignalCount     int            `json:"signal_count"`
	DecisionCounts  map[string]int `json:"decision_counts"`
	PushOutcomes    map[string]int `json:"push_outcomes"`
	Errors          []string       `json:"errors,omitempty"`
	HealthReport    map[string]any `json:"health_report,omitempty"`
}

// HealthReport summarizes signal freshness and source reliability for
// operator dashboards and the `health` CLI subcommand. Supplements
// spec.md's verification-gate inputs with the standalone signal-health
// monitor the original system's utils/signal_health.py sketches.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type HealthReport struct {
	GeneratedAt      time.Time      `json:"generated_at"`
	SignalsBySource  map[string]int `json:"signals_by_source"`
	OldestPendingAge time.Duration  `json:"oldest_pending_age"`
	SuppressionSize  int            `json:"suppression_size"`
	OutboxBacklog    int            `json:"outbox_backlog"`
	Warnings         []string       `json:"warnings,omitempty"`
}
