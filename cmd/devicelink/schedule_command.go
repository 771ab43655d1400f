package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"devicelink/internal/errs"
	"devicelink/internal/logging"
	"devicelink/internal/pipeline"
	"devicelink/internal/preflight"
)

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	var (
		spec          string
		freshOnChange bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a cron schedule until interrupted",
		Long: "Start a run at every tick of schedule.cron (or --cron). A tick that arrives while a run\n" +
			"is still going is skipped. Each tick resumes the stored output; when the inputs changed\n" +
			"since the last run it starts over, unless schedule.fresh_on_change is false.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if s := strings.TrimSpace(spec); s != "" {
				cfg.Schedule.Cron = s
			}
			if cmd.Flags().Changed("fresh-on-change") {
				cfg.Schedule.FreshOnChange = freshOnChange
			}
			if cfg.Schedule.Cron == "" {
				return errs.Wrap(errs.ErrConfiguration, "", "schedule", "schedule.cron is empty (or pass --cron)", nil)
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			logger = logging.NewComponentLogger(logger, "scheduler")
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			if failed := preflight.Failed(runPreflight(cmd.Context(), cfg)); len(failed) > 0 {
				for _, r := range failed {
					logging.ErrorWithContext(logger, "preflight check failed", "preflight_failure",
						logging.String("check", r.Name),
						logging.String(logging.FieldErrorHint, r.Detail),
					)
				}
				return errs.Wrap(errs.ErrConfiguration, "", "schedule",
					fmt.Sprintf("%s: %s", failed[0].Name, failed[0].Detail), nil)
			}
			runCtx := cmd.Context()
			job := newScheduledJob(runCtx, pipeline.New(cfg, logger), logger,
				pipeline.RunOptions{FreshOnChange: cfg.Schedule.FreshOnChange})

			scheduler := cron.New()
			if _, err := scheduler.AddFunc(cfg.Schedule.Cron, job); err != nil {
				return errs.Wrap(errs.ErrConfiguration, "", "schedule", fmt.Sprintf("invalid cron %q", cfg.Schedule.Cron), err)
			}
			scheduler.Start()
			logger.Info("scheduler started",
				logging.String(logging.FieldEventType, "schedule_start"),
				logging.String("cron", cfg.Schedule.Cron),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled runs with %q; press Ctrl+C to stop\n", cfg.Schedule.Cron)

			<-runCtx.Done()
			<-scheduler.Stop().Done()
			logger.Info("scheduler stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "Cron expression (overrides schedule.cron)")
	cmd.Flags().BoolVar(&freshOnChange, "fresh-on-change", true, "Discard stored output when inputs changed (overrides schedule.fresh_on_change)")
	return cmd
}

// pipelineRunner is the part of pipeline.Runner a scheduled job needs.
type pipelineRunner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Summary, error)
}

// newScheduledJob returns the cron callback. A tick that fires while the
// previous run is still going is skipped.
func newScheduledJob(ctx context.Context, runner pipelineRunner, logger *slog.Logger, opts pipeline.RunOptions) func() {
	var mu sync.Mutex
	return func() {
		if !mu.TryLock() {
			logging.WarnWithContext(logger, "scheduled run skipped", "schedule_skipped",
				logging.String(logging.FieldImpact, "previous run still in progress"),
			)
			return
		}
		defer mu.Unlock()
		summary, err := runner.Run(ctx, opts)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logging.ErrorWithContext(logger, "scheduled run failed", "schedule_run_failure",
					logging.Error(err),
					logging.String("error_kind", errs.Kind(err)),
				)
			}
			return
		}
		logger.Info("scheduled run finished",
			logging.String(logging.FieldRunID, summary.RunID),
			logging.Bool("resumed", summary.Resumed),
			logging.Int64("resolved_rows", summary.ResolvedRows),
		)
	}
}
