// Package outboxworker drains the CRM outbox on its own schedule,
// independent of the orchestrator's one-shot enqueue step: it pops due
// records, pushes them through the CRM connector, and reschedules
// failures with exponential backoff.
package outboxworker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"github.com/sourcingengine/core/pkg/sourcing/crmclient"
	"github.com/sourcingengine/core/pkg/sourcing/retry"
)

// Store is the subset of *store.Store the worker needs.
type Store interface {
	GetPendingOutbox(ctx context.Context, now time.Time) ([]contracts.OutboxRecord, error)
	MarkOutboxSent(ctx context.Context, id string, now time.Time) error
	MarkOutboxRetry(ctx context.Context, id string, status contracts.OutboxStatus, lastErr string, nextAttemptAt, now time.Time) error
}

// Worker drains due outbox records in batches.
type Worker struct {
	store     Store
	crm       crmclient.Connector
	policy    retry.Policy
	batchSize int
	log       *slog.Logger
}

// New builds a Worker. batchSize defaults to 50 when zero or negative.
func New(st Store, crm crmclient.Connector, batchSize int, log *slog.Logger) *Worker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{store: st, crm: crm, policy: retry.DefaultPolicy(), batchSize: batchSize, log: log.With("component", "outbox_worker")}
}

// Report summarizes one drain pass.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Report struct {
	Attempted int
	Sent      int
	Retried   int
	GivenUp   int
}

// DrainOnce pops up to batchSize due records and attempts to push each
// through the CRM connector, rescheduling failures with backoff and
// marking a record failed once its attempts reach the retry policy's
// MaxRetries. GetPendingOutbox still returns failed records, so a failed
// record is attempted again on the next drain.
func (w *Worker) DrainOnce(ctx context.Context) (Report, error) {
	now := time.Now()
	records, err := w.store.GetPendingOutbox(ctx, now)
	if err != nil {
		return Report{}, fmt.Errorf("outboxworker: list pending: %w", err)
	}

	var report Report
	for i, rec := range records {
		if i >= w.batchSize {
			break
		}
		report.Attempted++
		w.pushOne(ctx, rec, now, &report)
	}
	return report, nil
}

func (w *Worker) pushOne(ctx context.Context, rec contracts.OutboxRecord, now time.Time, report *Report) {
	prospect := crmclient.Prospect{
		CanonicalKey: rec.CanonicalKey,
		Status:       stringField(rec.Payload, "status"),
		Confidence:   floatField(rec.Payload, "confidence"),
		CompanyName:  stringField(rec.Payload, "company_name"),
	}
	if sources, ok := rec.Payload["sources"].([]string); ok {
		prospect.Sources = sources
	}

	_, err := w.crm.UpsertProspect(ctx, prospect)
	if err == nil {
		if markErr := w.store.MarkOutboxSent(ctx, rec.ID, now); markErr != nil {
			w.log.ErrorContext(ctx, "mark outbox sent failed", "id", rec.ID, "error", markErr)
			return
		}
		report.Sent++
		return
	}

	w.log.WarnContext(ctx, "crm push failed", "id", rec.ID, "attempts", rec.Attempts, "error", err)

	if rec.Attempts+1 >= w.policy.MaxRetries {
		if markErr := w.store.MarkOutboxRetry(ctx, rec.ID, contracts.OutboxFailed, err.Error(), now, now); markErr != nil {
			w.log.ErrorContext(ctx, "mark outbox failed failed", "id", rec.ID, "error", markErr)
		}
		report.GivenUp++
		return
	}

	next := now.Add(w.policy.WaitFor(rec.Attempts))
	if markErr := w.store.MarkOutboxRetry(ctx, rec.ID, contracts.OutboxPending, err.Error(), next, now); markErr != nil {
		w.log.ErrorContext(ctx, "mark outbox retry failed", "id", rec.ID, "error", markErr)
		return
	}
	report.Retried++
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func floatField(m map[string]any, key string) float64 {
	v, _ := m[key].(float64)
	return v
}
