package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/archive"
	"github.com/sourcingengine/core/pkg/sourcing/collector"
	"github.com/sourcingengine/core/pkg/sourcing/collector/adapters"
	"github.com/sourcingengine/core/pkg/sourcing/config"
	"github.com/sourcingengine/core/pkg/sourcing/crmclient"
	"github.com/sourcingengine/core/pkg/sourcing/gating"
	"github.com/sourcingengine/core/pkg/sourcing/gating/classifier"
	"github.com/sourcingengine/core/pkg/sourcing/gating/trigger"
	"github.com/sourcingengine/core/pkg/sourcing/llm"
	"github.com/sourcingengine/core/pkg/sourcing/orchestrator"
	"github.com/sourcingengine/core/pkg/sourcing/outboxworker"
	"github.com/sourcingengine/core/pkg/sourcing/ratelimit"
	"github.com/sourcingengine/core/pkg/sourcing/resolver"
	"github.com/sourcingengine/core/pkg/sourcing/scoring"
	"github.com/sourcingengine/core/pkg/sourcing/store"
	"github.com/sourcingengine/core/pkg/sourcing/suppressionsync"
	"github.com/sourcingengine/core/pkg/sourcing/telemetry"
	"github.com/sourcingengine/core/pkg/sourcing/verification"

	"github.com/redis/go-redis/v9"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing, mirroring the teacher's CLI's
// args/stdout/stderr dispatcher shape.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 0
	}

	switch args[1] {
	case "full":
		return runFull(args[2:], stdout, stderr)
	case "collect":
		return runCollect(args[2:], stdout, stderr)
	case "process":
		return runProcess(args[2:], stdout, stderr)
	case "sync":
		return runSync(args[2:], stdout, stderr)
	case "stats":
		return runStats(args[2:], stdout, stderr)
	case "health":
		return runHealth(args[2:], stdout, stderr)
	case "migrate":
		return runMigrate(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "sourcingengine — deal-sourcing discovery engine")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  sourcingengine <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  full       run collectors, gating, resolution, and verification end to end")
	fmt.Fprintln(w, "  collect    run configured collectors only")
	fmt.Fprintln(w, "  process    run gating + verification over already-collected signals")
	fmt.Fprintln(w, "  sync       drain the CRM outbox and refresh the suppression cache")
	fmt.Fprintln(w, "  stats      print pipeline run history")
	fmt.Fprintln(w, "  health     print a signal freshness and backlog report")
	fmt.Fprintln(w, "  migrate    apply pending schema migrations")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "FLAGS (full/collect/process):")
	fmt.Fprintln(w, "  --gating        enable the two-stage gating pipeline (default true)")
	fmt.Fprintln(w, "  --resolve       enable entity-resolution regrouping (default true)")
	fmt.Fprintln(w, "  --founder       enable founder-track-record boost (default true)")
	fmt.Fprintln(w, "  --velocity      enable signal-velocity boost (default true)")
	fmt.Fprintln(w, "  --asset-store   build the S3 archive client; payloads are not archived (default false)")
	fmt.Fprintln(w, "  --dry-run       never persist signals or CRM pushes")
	fmt.Fprintln(w, "  --strict        require multi-source corroboration for auto_push")
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if err := (&level).UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openStore(cfg *config.Config) (*store.Store, error) {
	driver := "sqlite"
	dialect := store.DialectSQLite
	if cfg.DatabaseDialect == "postgres" {
		driver = "postgres"
		dialect = store.DialectPostgres
	}
	db, err := sql.Open(driver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store.Open(db, dialect), nil
}

// engineFlags bundles the stage-enable flags shared by full/collect/process.
type engineFlags struct {
	gating     bool
	resolve    bool
	founder    bool
	velocity   bool
	assetStore bool
	dryRun     bool
	strict     bool
}

func parseEngineFlags(fs *flag.FlagSet, args []string) (*engineFlags, error) {
	f := &engineFlags{}
	fs.BoolVar(&f.gating, "gating", true, "enable two-stage gating")
	fs.BoolVar(&f.resolve, "resolve", true, "enable entity resolution")
	fs.BoolVar(&f.founder, "founder", true, "enable founder boost")
	fs.BoolVar(&f.velocity, "velocity", true, "enable velocity boost")
	fs.BoolVar(&f.assetStore, "asset-store", false, "build the S3 archive client")
	fs.BoolVar(&f.dryRun, "dry-run", false, "do not persist")
	fs.BoolVar(&f.strict, "strict", false, "require multi-source corroboration")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// buildOrchestrator wires every package's concrete implementation
// together behind orchestrator.New, honoring the engineFlags overrides.
// includeCollectors is false for process-only runs, which operate
// purely on already-collected pending signals.
func buildOrchestrator(cfg *config.Config, f *engineFlags, includeCollectors bool, log *slog.Logger) (*orchestrator.Orchestrator, *store.Store, func(), error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		ratelimit.UseDistributed(nil, client)
		cleanups = append(cleanups, func() { _ = client.Close() })
	}

	var processor *gating.Processor
	if f.gating {
		backend := llm.NewHTTPClient(cfg.LLMServiceURL, cfg.LLMAPIKey, "", log)
		cls := classifier.New(backend, classifier.DefaultConfig())
		gate := trigger.New(trigger.DefaultConfig())
		processor = gating.New(gate, cls, gating.Config{DryRun: f.dryRun})
	}

	var res *resolver.Resolver
	if f.resolve {
		res = resolver.New(resolver.DefaultConfig())
	}

	scoringCfg, err := scoring.LoadOverlay(scoring.DefaultConfig(), cfg.ScoringOverlay)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("load scoring overlay: %w", err)
	}
	scoringCfg.StrictMode = cfg.StrictMode || f.strict
	gate := verification.New(scoringCfg)

	var crm crmclient.Connector
	if cfg.CRMBaseURL != "" {
		crm = crmclient.New(cfg.CRMBaseURL, []byte(cfg.CRMJWTSecret), log)
	}

	if f.assetStore && cfg.S3Bucket != "" {
		ctx := context.Background()
		arc, err := archive.New(ctx, archive.Config{Bucket: cfg.S3Bucket, Region: cfg.S3Region})
		if err != nil {
			log.Warn("asset archival disabled: failed to init S3 client", "error", err)
		} else {
			_ = arc // no adapter or job archives payloads through this client
		}
	}

	var collectors []*collector.Runner
	if includeCollectors {
		collectors = append(collectors,
			collector.New(adapters.NewGitHub(nil, 0, log), st, log),
			collector.New(adapters.NewHackerNews(0, 0, log), st, log),
		)
		if key := os.Getenv("PRODUCT_HUNT_API_KEY"); key != "" {
			collectors = append(collectors, collector.New(adapters.NewProductHunt(key, 0, 0, log), st, log))
		}
	}

	orchCfg := orchestrator.Config{
		EnableGating: f.gating, EnableResolver: f.resolve, EnableFounder: f.founder,
		EnableVelocity: f.velocity, StrictMode: cfg.StrictMode || f.strict, DryRun: f.dryRun,
	}
	orch := orchestrator.New(st, collectors, processor, res, gate, crm, orchCfg, log)
	return orch, st, cleanup, nil
}

func runFull(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("full", flag.ContinueOnError)
	f, err := parseEngineFlags(fs, args)
	if err != nil {
		return 2
	}

	cfg := config.Load()
	log := newLogger(cfg)

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.OTLPEndpoint = cfg.OtelEndpoint
	telemetryCfg.Enabled = cfg.OtelEndpoint != ""
	provider, err := telemetry.New(context.Background(), telemetryCfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "telemetry init failed: %v\n", err)
		return 1
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	orch, st, cleanup, err := buildOrchestrator(cfg, f, true, log)
	if err != nil {
		fmt.Fprintf(stderr, "init failed: %v\n", err)
		return 1
	}
	defer cleanup()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(stderr, "migration failed: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := orch.RunFullPipeline(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "pipeline run failed: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(run)
	return 0
}

func runCollect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	f, err := parseEngineFlags(fs, args)
	if err != nil {
		return 2
	}
	f.gating, f.resolve, f.founder, f.velocity = false, false, false, false

	cfg := config.Load()
	log := newLogger(cfg)
	orch, st, cleanup, err := buildOrchestrator(cfg, f, true, log)
	if err != nil {
		fmt.Fprintf(stderr, "init failed: %v\n", err)
		return 1
	}
	defer cleanup()
	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(stderr, "migration failed: %v\n", err)
		return 1
	}

	run, err := orch.RunFullPipeline(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "collect failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "collected %d signals across %d collectors\n", run.SignalCount, len(run.CollectorCounts))
	return 0
}

func runProcess(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	f, err := parseEngineFlags(fs, args)
	if err != nil {
		return 2
	}

	cfg := config.Load()
	log := newLogger(cfg)
	orch, st, cleanup, err := buildOrchestrator(cfg, f, false, log)
	if err != nil {
		fmt.Fprintf(stderr, "init failed: %v\n", err)
		return 1
	}
	defer cleanup()

	run, err := orch.RunFullPipeline(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "process failed: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(run.DecisionCounts)
	return 0
}

func runSync(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	log := newLogger(cfg)

	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "open store failed: %v\n", err)
		return 1
	}

	if cfg.CRMBaseURL == "" {
		fmt.Fprintln(stderr, "sync requires CRM_BASE_URL to be configured")
		return 2
	}
	crm := crmclient.New(cfg.CRMBaseURL, []byte(cfg.CRMJWTSecret), log)

	ctx := context.Background()
	drainReport, err := outboxworker.New(st, crm, 0, log).DrainOnce(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "outbox drain failed: %v\n", err)
		return 1
	}
	syncReport, err := suppressionsync.New(st, crm, 0, log).RunOnce(ctx, time.Now().Add(-store.DefaultSuppressionTTL))
	if err != nil {
		fmt.Fprintf(stderr, "suppression sync failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "drained %d outbox records (%d retried, %d given up), synced %d suppression entries (%d purged)\n",
		drainReport.Sent, drainReport.Retried, drainReport.GivenUp, syncReport.Synced, syncReport.Purged)
	return 0
}

func runStats(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "open store failed: %v\n", err)
		return 1
	}
	runs, err := st.RecentRuns(context.Background(), 20)
	if err != nil {
		fmt.Fprintf(stderr, "list runs failed: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(runs)
	return 0
}

func runHealth(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "open store failed: %v\n", err)
		return 1
	}
	report, err := st.BuildHealthReport(context.Background(), time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "health report failed: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	return 0
}

func runMigrate(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	st, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "open store failed: %v\n", err)
		return 1
	}
	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(stderr, "migration failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "schema up to date")
	return 0
}
