package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"devicelink/internal/config"
	"devicelink/internal/errs"
	"devicelink/internal/export"
	"devicelink/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var eventsPath, registryPath string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check that directories, inputs and export targets are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyInputFlags(cfg, eventsPath, registryPath); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			results := runPreflight(cmd.Context(), cfg)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderSectionHeader("Preflight", colorize))
			for _, r := range results {
				fmt.Fprintln(out, renderCheckLine(r.Name, r.Passed, r.Detail, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return errs.Wrap(errs.ErrConfiguration, "", "preflight", fmt.Sprintf("%d check(s) failed", len(failed)), nil)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&eventsPath, "events", "", "Event input file (overrides inputs.events.path)")
	cmd.Flags().StringVar(&registryPath, "registry", "", "Registry input file (overrides inputs.registry.path)")
	return cmd
}

// runPreflight runs every check, building an S3 client when export goes to
// a bucket. A client that cannot be built is reported as a failed check.
func runPreflight(ctx context.Context, cfg *config.Config) []preflight.Result {
	var bucket preflight.HeadBucketAPI
	var clientErr error
	if cfg.ExportsToS3() {
		client, err := export.NewS3Client(ctx, cfg)
		if err != nil {
			clientErr = err
		} else {
			bucket = client
		}
	}
	results := preflight.RunAll(ctx, cfg, bucket)
	if clientErr != nil {
		results = append(results, preflight.Result{Name: "Export bucket", Detail: clientErr.Error()})
	}
	return results
}
