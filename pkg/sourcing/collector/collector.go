// Package collector runs source adapters on a schedule, deduplicating
// each emitted signal through three gates before it ever reaches the
// gating pipeline: an in-run seen set, a store-level duplicate check,
// and the suppression cache.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

// RunStatus is the outcome of one collector run.
type RunStatus string

const (
	StatusDryRun         RunStatus = "dry_run"
	StatusSuccess        RunStatus = "success"
	StatusPartialSuccess RunStatus = "partial_success"
	StatusError          RunStatus = "error"
)

// Adapter fetches raw signals from one upstream source. Implementations
// live one per integration (GitHub, SEC EDGAR, job boards, ...), each
// translating its source's native shape into contracts.Signal.
type Adapter interface {
	Name() string
	APIName() string
	Collect(ctx context.Context) ([]contracts.Signal, error)
}

// SignalStore is the subset of the persistence layer a collector run
// needs, kept narrow so adapters and tests don't depend on the full
// store package.
type SignalStore interface {
	SaveSignal(ctx context.Context, sig contracts.Signal) error
	IsDuplicate(ctx context.Context, canonicalKey string) (bool, error)
	CheckSuppression(ctx context.Context, canonicalKey string) (*contracts.SuppressionEntry, error)
}

// Result reports one collector run's outcome, mirroring the original
// collector framework's CollectorResult.
//
//nolint:govet // fieldalignment: struct layout kept readable over packed
type Result struct {
	Collector         string
	Status            RunStatus
	SignalsFound      int
	SignalsNew        int
	SignalsSuppressed int
	DryRun            bool
	ErrorMessage      string
}

// Runner drives one Adapter through collect → dedup → persist.
type Runner struct {
	adapter Adapter
	store   SignalStore
	log     *slog.Logger
}

// New builds a Runner for adapter, persisting through store.
func New(adapter Adapter, store SignalStore, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{adapter: adapter, store: store, log: log.With("collector", adapter.Name())}
}

// Run executes one collection pass. In dry-run mode (or with no store
// configured) signals are checked against the dedup gates but never
// written.
func (r *Runner) Run(ctx context.Context, dryRun bool) Result {
	r.log.InfoContext(ctx, "starting collector run", "dry_run", dryRun)

	signals, err := r.adapter.Collect(ctx)
	if err != nil {
		r.log.ErrorContext(ctx, "collector failed", "error", err)
		return Result{Collector: r.adapter.Name(), Status: StatusError, DryRun: dryRun, ErrorMessage: err.Error()}
	}

	result := Result{Collector: r.adapter.Name(), SignalsFound: len(signals), DryRun: dryRun}
	errs := contracts.NewErrorList(5)
	seen := make(map[string]bool, len(signals))

	for _, sig := range signals {
		canonicalKey := sig.CanonicalKey
		if canonicalKey == "" {
			canonicalKey = sig.ID
		}

		if seen[canonicalKey] {
			result.SignalsSuppressed++
			continue
		}

		suppressed, err := r.checkDuplicateAndSuppression(ctx, canonicalKey)
		if err != nil {
			errs.Add(fmt.Errorf("signal %s: %w", sig.ID, err))
			continue
		}
		seen[canonicalKey] = true
		if suppressed {
			result.SignalsSuppressed++
			continue
		}

		if r.store == nil || dryRun {
			result.SignalsNew++
			continue
		}

		sig.CanonicalKey = canonicalKey
		if sig.CreatedAt.IsZero() {
			sig.CreatedAt = time.Now()
		}
		if err := r.store.SaveSignal(ctx, sig); err != nil {
			errs.Add(fmt.Errorf("save signal %s: %w", sig.ID, err))
			continue
		}
		result.SignalsNew++
	}

	switch {
	case dryRun:
		result.Status = StatusDryRun
	case errs.Len() > 0:
		result.Status = StatusPartialSuccess
	default:
		result.Status = StatusSuccess
	}
	if errs.Len() > 0 {
		msg := errs.Messages()
		joined := ""
		for i, m := range msg {
			if i > 0 {
				joined += "; "
			}
			joined += m
		}
		result.ErrorMessage = joined
	}

	r.log.InfoContext(ctx, "collector run complete",
		"found", result.SignalsFound, "new", result.SignalsNew, "suppressed", result.SignalsSuppressed, "errors", errs.Len())
	return result
}

// checkDuplicateAndSuppression runs the second and third dedup gates:
// has this canonical key already been stored, and is it currently
// suppressed because the CRM already tracks it.
func (r *Runner) checkDuplicateAndSuppression(ctx context.Context, canonicalKey string) (bool, error) {
	if r.store == nil {
		return false, nil
	}
	isDup, err := r.store.IsDuplicate(ctx, canonicalKey)
	if err != nil {
		return false, fmt.Errorf("duplicate check: %w", err)
	}
	if isDup {
		return true, nil
	}
	entry, err := r.store.CheckSuppression(ctx, canonicalKey)
	if err != nil {
		return false, fmt.Errorf("suppression check: %w", err)
	}
	return entry != nil, nil
}
