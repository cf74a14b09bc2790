// Package suppressionsync periodically enumerates the external CRM's
// tracked records and refreshes the local suppression cache, so the
// collector runtime's third dedup gate stays accurate without a live
// CRM round trip per signal.
package suppressionsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
	"github.com/sourcingengine/core/pkg/sourcing/crmclient"
	"github.com/sourcingengine/core/pkg/sourcing/store"
)

// Store is the subset of *store.Store the sync job needs.
type Store interface {
	UpsertSuppression(ctx context.Context, entry contracts.SuppressionEntry) error
	PurgeExpiredSuppressions(ctx context.Context, now time.Time) (int64, error)
}

// Job syncs the suppression cache from the CRM on demand.
type Job struct {
	store Store
	crm   crmclient.Connector
	ttl   time.Duration
	log   *slog.Logger
}

// New builds a Job with ttl (store.DefaultSuppressionTTL if zero).
func New(st Store, crm crmclient.Connector, ttl time.Duration, log *slog.Logger) *Job {
	if ttl <= 0 {
		ttl = store.DefaultSuppressionTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Job{store: st, crm: crm, ttl: ttl, log: log.With("component", "suppression_sync")}
}

// Report summarizes one sync pass.
type Report struct {
	Synced int
	Purged int64
}

// RunOnce pulls every CRM record tracked since `since`, upserts each as
// a suppression entry with a fresh TTL, and purges entries that have
// since expired.
func (j *Job) RunOnce(ctx context.Context, since time.Time) (Report, error) {
	entries, err := j.crm.ListTracked(ctx, since)
	if err != nil {
		return Report{}, fmt.Errorf("suppressionsync: list tracked: %w", err)
	}

	now := time.Now()
	var report Report
	for _, entry := range entries {
		suppression := contracts.SuppressionEntry{
			CanonicalKey: entry.CanonicalKey,
			CRMPageID:    entry.PageID,
			CRMStatus:    entry.Status,
			CompanyName:  entry.CompanyName,
			SyncedAt:     now,
			ExpiresAt:    now.Add(j.ttl),
		}
		if err := j.store.UpsertSuppression(ctx, suppression); err != nil {
			j.log.ErrorContext(ctx, "upsert suppression failed", "canonical_key", entry.CanonicalKey, "error", err)
			continue
		}
		report.Synced++
	}

	purged, err := j.store.PurgeExpiredSuppressions(ctx, now)
	if err != nil {
		return report, fmt.Errorf("suppressionsync: purge expired: %w", err)
	}
	report.Purged = purged
	return report, nil
}
