package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"devicelink/internal/config"
	"devicelink/internal/errs"
	"devicelink/internal/export"
	"devicelink/internal/logging"
	"devicelink/internal/metrics"
	"devicelink/internal/store"
)

// Stage names, as logged and recorded in the chunk ledger.
const (
	stagePrepare    = "prepare"
	stageIndex      = "index"
	stageNormalize  = "normalize"
	stageMap        = "map"
	stageResolve    = "resolve"
	stageCompliance = "compliance"
	stageFallback   = "fallback"
	stageExport     = "export"
	stageReport     = "report"
)

// Output tables.
const (
	StagingTable  = "resolved_staging"
	ResolvedTable = "resolved"
)

// Runner executes pipeline runs for one configuration.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
	sink   export.Sink
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSink overrides the export destination derived from the config.
func WithSink(sink export.Sink) Option {
	return func(r *Runner) { r.sink = sink }
}

// New returns a runner. A nil logger discards output.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOptions controls a single run.
type RunOptions struct {
	// Fresh discards stored output and ledger state before running.
	Fresh bool
	// FreshOnChange discards stored output only when it was produced from
	// other inputs or settings. An unchanged workspace still resumes.
	FreshOnChange bool
}

// run is the state of one Run call.
type run struct {
	*Runner
	id      string
	logger  *slog.Logger
	store   *store.Store
	metrics *metrics.Recorder
	summary *Summary
}

// Run executes every stage. Rerunning after a failure resumes from the last
// committed chunk as long as the inputs and settings are unchanged.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	cfg := r.cfg
	if err := cfg.ValidateInputs(); err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, stagePrepare, "inputs", "", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, errs.Wrap(errs.ErrIO, stagePrepare, "workspace", "", err)
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !ok {
		return nil, errs.Wrap(errs.ErrTransient, stagePrepare, "acquire workspace lock",
			"another devicelink run is using "+cfg.Paths.WorkspaceDir, nil)
	}
	defer func() { _ = lock.Unlock() }()

	runID := uuid.NewString()
	ctx = errs.WithRunID(ctx, runID)
	logger := r.logger
	if runLog, logErr := logging.OpenRunLog(cfg.Paths.LogDir, runID, cfg.Logging.Level); logErr != nil {
		logging.WarnWithContext(logger, "run log unavailable", "run_log_unavailable",
			logging.Error(logErr),
			logging.String(logging.FieldImpact, "this run is only logged to the main log"),
		)
	} else {
		logger = runLog.Attach(logger)
		defer runLog.Close()
	}
	logger = logging.WithContext(ctx, logger)
	logging.PruneRunLogs(logger, cfg.Paths.LogDir, cfg.Paths.LogRetentionDays, runID)

	st, err := store.Open(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, stagePrepare, "open store", cfg.StorePath(), err)
	}
	defer st.Close()

	abandoned, err := st.AbandonRunning(ctx)
	if err != nil {
		return nil, err
	}
	if abandoned > 0 {
		logging.WarnWithContext(logger, "previous run was interrupted", "run_interrupted",
			logging.Int64("runs", abandoned),
			logging.String(logging.FieldImpact, "committed chunks are kept and skipped"),
		)
	}

	fingerprint, err := Fingerprint(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := st.BeginRun(ctx, runID, fingerprint); err != nil {
		return nil, err
	}

	started := time.Now()
	rn := &run{
		Runner:  r,
		id:      runID,
		logger:  logger,
		store:   st,
		metrics: metrics.NewRecorder(),
		summary: &Summary{RunID: runID, Fingerprint: fingerprint},
	}
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("events", cfg.Inputs.Events.Path),
		logging.String("registry", cfg.Inputs.Registry.Path),
		logging.String("store", st.Path()),
		logging.Bool("fresh", opts.Fresh),
	)

	runErr := rn.execute(ctx, opts)
	rn.summary.Duration = time.Since(started)

	finishCtx := context.WithoutCancel(ctx)
	if err := st.FinishRun(finishCtx, runID, rn.summary.EventRows, rn.summary.ResolvedRows, runErr); err != nil {
		logger.Warn("failed to record run outcome", logging.Error(err))
	}
	rn.metrics.RunFinished(rn.summary.Duration, runErr, time.Now())
	if path := cfg.Metrics.TextfilePath; path != "" {
		if err := rn.metrics.WriteTextfile(path); err != nil {
			logging.WarnWithContext(logger, "metrics textfile not written", "metrics_write_failed",
				logging.Error(err),
				logging.String("path", path),
			)
		}
	}

	if runErr != nil {
		logging.ErrorWithContext(logger, "run failed", "run_failure",
			logging.Error(runErr),
			logging.String("error_kind", errs.Kind(runErr)),
			logging.String(logging.FieldErrorHint, errs.Details(runErr)),
		)
		return rn.summary, runErr
	}
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int64("event_rows", rn.summary.EventRows),
		logging.Int64("resolved_rows", rn.summary.ResolvedRows),
		logging.Duration("duration", rn.summary.Duration),
	)
	return rn.summary, nil
}

func (r *run) execute(ctx context.Context, opts RunOptions) error {
	var in *Inputs
	err := r.stage(ctx, stagePrepare, func(ctx context.Context, logger *slog.Logger) (int64, error) {
		var err error
		if in, err = OpenInputs(ctx, r.cfg); err != nil {
			return 0, err
		}
		return 0, r.checkFingerprint(ctx, logger, opts)
	})
	if in != nil {
		defer in.Close()
	}
	if err != nil {
		return err
	}

	art, err := r.buildArtifacts(ctx, in)
	if err != nil {
		return err
	}
	if err := r.stage(ctx, stageResolve, func(ctx context.Context, logger *slog.Logger) (int64, error) {
		return r.resolve(ctx, logger, in, art)
	}); err != nil {
		return err
	}
	if err := r.stage(ctx, stageFallback, func(ctx context.Context, logger *slog.Logger) (int64, error) {
		return r.fallback(ctx, logger, in)
	}); err != nil {
		return err
	}
	if err := r.stage(ctx, stageExport, r.export); err != nil {
		return err
	}
	return r.stage(ctx, stageReport, r.report)
}

func (r *run) checkFingerprint(ctx context.Context, logger *slog.Logger, opts RunOptions) error {
	stored, err := r.store.Fingerprint(ctx)
	if err != nil {
		return err
	}
	changed := stored != "" && stored != r.summary.Fingerprint
	switch {
	case opts.Fresh, changed && opts.FreshOnChange:
		if err := r.store.Reset(ctx); err != nil {
			return errs.Wrap(errs.ErrIO, stagePrepare, "reset store", "", err)
		}
		logger.Info("stored output discarded",
			logging.String(logging.FieldEventType, "store_reset"),
			logging.Bool("inputs_changed", changed),
		)
	case changed:
		return errs.Wrap(errs.ErrConfiguration, stagePrepare, "check fingerprint",
			"inputs or settings changed since the stored output was produced; rerun with --fresh", nil)
	case stored != "":
		r.summary.Resumed = true
	}
	return r.store.SetFingerprint(ctx, r.summary.Fingerprint)
}

// stage runs fn with stage-scoped context and logger, logs its outcome and
// records its row count.
func (r *run) stage(ctx context.Context, name string, fn func(context.Context, *slog.Logger) (int64, error)) error {
	ctx = errs.WithStage(ctx, name)
	logger := logging.WithContext(ctx, r.logger)
	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
	started := time.Now()

	rows, err := fn(ctx, logger)
	elapsed := time.Since(started)
	if err != nil {
		logger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("error_kind", errs.Kind(err)),
			logging.String(logging.FieldErrorHint, errs.Details(err)),
			logging.Error(err),
		)
		return err
	}
	r.summary.Stages = append(r.summary.Stages, StageResult{Name: name, Rows: rows, Duration: elapsed})
	if r.metrics != nil {
		r.metrics.StageRows(name, rows)
	}
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int64("rows", rows),
		logging.Duration("duration", elapsed),
	)
	return nil
}
