package main

import (
	"errors"

	"github.com/spf13/cobra"

	"devicelink/internal/errs"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "devicelink",
		Short:         "Resolve adverse-event reports to registry device identities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newScheduleCommand(ctx))
	rootCmd.AddCommand(newReportCommand(ctx))
	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

// exitCode maps error kinds to process exit codes so wrappers can tell bad
// input from transient failures.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errs.ErrConfiguration), errors.Is(err, errs.ErrValidation):
		return 2
	case errors.Is(err, errs.ErrTransient):
		return 75
	default:
		return 1
	}
}
