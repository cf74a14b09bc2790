package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

// SaveRun persists a completed pipeline run for the `stats` and
// `health` CLI subcommands to read back.
func (s *Store) SaveRun(ctx context.Context, run contracts.PipelineRun) error {
	collectorJSON, err := json.Marshal(run.CollectorCounts)
	if err != nil {
		return fmt.Errorf("store: marshal collector_counts: %w", err)
	}
	decisionJSON, err := json.Marshal(run.DecisionCounts)
	if err != nil {
		return fmt.Errorf("store: marshal decision_counts: %w", err)
	}
	pushJSON, err := json.Marshal(run.PushOutcomes)
	if err != nil {
		return fmt.Errorf("store: marshal push_outcomes: %w", err)
	}
	errorsJSON, err := json.Marshal(run.Errors)
	if err != nil {
		return fmt.Errorf("store: marshal errors: %w", err)
	}
	healthJSON, err := json.Marshal(run.HealthReport)
	if err != nil {
		return fmt.Errorf("store: marshal health_report: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO pipeline_runs (run_id, started_at, completed_at, duration_ms, collector_counts, signal_count, decision_counts, push_outcomes, errors, health_report)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)
		%s
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
		s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9), s.placeholder(10),
		upsertClause("run_id", "completed_at = excluded.completed_at, duration_ms = excluded.duration_ms, collector_counts = excluded.collector_counts, signal_count = excluded.signal_count, decision_counts = excluded.decision_counts, push_outcomes = excluded.push_outcomes, errors = excluded.errors, health_report = excluded.health_report"),
	)
	_, err = s.DB.ExecContext(ctx, query,
		run.RunID, run.StartedAt, run.CompletedAt, run.DurationMS, collectorJSON, run.SignalCount,
		decisionJSON, pushJSON, errorsJSON, healthJSON)
	if err != nil {
		return fmt.Errorf("store: save pipeline run %s: %w", run.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit pipeline runs, most recent first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]contracts.PipelineRun, error) {
	query := fmt.Sprintf(`
		SELECT run_id, started_at, completed_at, duration_ms, collector_counts, signal_count, decision_counts, push_outcomes, errors, health_report
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT %s
	`, s.placeholder(1))
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query recent runs: %w", err)
	}
	defer rows.Close()

	var out []contracts.PipelineRun
	for rows.Next() {
		var (
			run           contracts.PipelineRun
			collectorJSON []byte
			decisionJSON  []byte
			pushJSON      []byte
			errorsJSON    []byte
			healthJSON    []byte
		)
		if err := rows.Scan(&run.RunID, &run.StartedAt, &run.CompletedAt, &run.DurationMS, &collectorJSON,
			&run.SignalCount, &decisionJSON, &pushJSON, &errorsJSON, &healthJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(collectorJSON, &run.CollectorCounts); err != nil {
			return nil, fmt.Errorf("store: corrupt collector_counts for run %s: %w", run.RunID, err)
		}
		if err := json.Unmarshal(decisionJSON, &run.DecisionCounts); err != nil {
			return nil, fmt.Errorf("store: corrupt decision_counts for run %s: %w", run.RunID, err)
		}
		if err := json.Unmarshal(pushJSON, &run.PushOutcomes); err != nil {
			return nil, fmt.Errorf("store: corrupt push_outcomes for run %s: %w", run.RunID, err)
		}
		if len(errorsJSON) > 0 {
			if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
				return nil, fmt.Errorf("store: corrupt errors for run %s: %w", run.RunID, err)
			}
		}
		if len(healthJSON) > 0 {
			if err := json.Unmarshal(healthJSON, &run.HealthReport); err != nil {
				return nil, fmt.Errorf("store: corrupt health_report for run %s: %w", run.RunID, err)
			}
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// BuildHealthReport assembles a contracts.HealthReport from the
// store's current state, the data behind the CLI's `health`
// subcommand.
func (s *Store) BuildHealthReport(ctx context.Context, now time.Time) (contracts.HealthReport, error) {
	report := contracts.HealthReport{GeneratedAt: now, SignalsBySource: make(map[string]int)}

	rows, err := s.DB.QueryContext(ctx, `SELECT source_api, COUNT(*) FROM signals GROUP BY source_api`)
	if err != nil {
		return report, fmt.Errorf("store: health report signals_by_source: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return report, err
		}
		report.SignalsBySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return report, err
	}

	var oldestPending sql.NullTime
	err = s.DB.QueryRowContext(ctx, `SELECT MIN(detected_at) FROM signals WHERE status = 'pending'`).Scan(&oldestPending)
	if err == nil && oldestPending.Valid {
		report.OldestPendingAge = now.Sub(oldestPending.Time)
	}

	suppressionCount, err := s.SuppressionCount(ctx)
	if err != nil {
		return report, err
	}
	report.SuppressionSize = suppressionCount

	backlog, err := s.OutboxBacklog(ctx)
	if err != nil {
		return report, err
	}
	report.OutboxBacklog = backlog

	if report.OutboxBacklog > 500 {
		report.Warnings = append(report.Warnings, "outbox backlog exceeds 500 pending records")
	}
	if report.OldestPendingAge > 48*time.Hour {
		report.Warnings = append(report.Warnings, "oldest pending signal is more than 48h old")
	}

	return report, nil
}
