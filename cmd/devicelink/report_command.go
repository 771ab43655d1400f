package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"devicelink/internal/errs"
	"devicelink/internal/pipeline"
	"devicelink/internal/store"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var runID string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the match distribution and compliance of a stored run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			c := cmd.Context()
			var run *store.Run
			if runID != "" {
				run, err = st.GetRun(c, runID)
			} else {
				run, err = st.LatestRun(c)
			}
			if err != nil {
				return err
			}
			if run == nil {
				return errs.Wrap(errs.ErrNotFound, "", "report", "no recorded runs; start one with `devicelink run`", nil)
			}
			dist, err := st.MatchStats(c, run.ID)
			if err != nil {
				return err
			}
			compliance, err := st.LoadCompliance(c)
			if err != nil {
				return err
			}
			history, err := st.ListRuns(c, limit)
			if err != nil {
				return err
			}
			summary := &pipeline.Summary{
				RunID:        run.ID,
				Fingerprint:  run.Fingerprint,
				EventRows:    run.EventRows,
				ResolvedRows: run.ResolvedRows,
				Distribution: dist,
				Compliance:   compliance,
				Duration:     run.Duration(),
			}

			if asJSON {
				return writeJSON(cmd, struct {
					Run     *store.Run        `json:"run"`
					Summary *pipeline.Summary `json:"summary"`
					History []store.Run       `json:"history"`
				}{run, summary, history})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderSectionHeader("Run "+run.ID, colorize))
			fmt.Fprintln(out, renderField("Status", renderStatus(string(run.Status), colorize)))
			fmt.Fprintln(out, renderField("Started", run.StartedAt.Local().Format(time.DateTime)))
			if d := run.Duration(); d > 0 {
				fmt.Fprintln(out, renderField("Duration", d.Round(time.Millisecond).String()))
			}
			fmt.Fprintln(out, renderField("Event rows", formatCount(run.EventRows)))
			fmt.Fprintln(out, renderField("Resolved rows", formatCount(run.ResolvedRows)))
			if run.ErrorMessage != "" {
				fmt.Fprintln(out, renderField("Error", run.ErrorMessage))
			}
			printDistribution(out, summary)
			printLowCompliance(out, summary)

			if len(history) > 1 {
				rows := make([][]string, 0, len(history))
				for _, h := range history {
					rows = append(rows, []string{
						h.ID,
						h.StartedAt.Local().Format(time.DateTime),
						string(h.Status),
						formatCount(h.ResolvedRows),
					})
				}
				fmt.Fprintln(out, renderTable("Recent runs", []string{"Run", "Started", "Status", "Rows"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run ID (defaults to the latest run)")
	cmd.Flags().IntVar(&limit, "history", 5, "Number of recent runs to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
