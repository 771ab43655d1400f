package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"devicelink/internal/namenorm"
	"devicelink/internal/pipeline"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var eventsPath, registryPath string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Look up how identifiers and manufacturer names resolve",
		Long: "Build the registry indices, manufacturer aliases and identifier mapping from the\n" +
			"configured inputs without writing to the store, then answer a lookup.",
	}
	cmd.PersistentFlags().StringVar(&eventsPath, "events", "", "Event input file (overrides inputs.events.path)")
	cmd.PersistentFlags().StringVar(&registryPath, "registry", "", "Registry input file (overrides inputs.registry.path)")

	load := func(cmd *cobra.Command) (*pipeline.Artifacts, func(), error) {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return nil, nil, err
		}
		if err := applyInputFlags(cfg, eventsPath, registryPath); err != nil {
			return nil, nil, err
		}
		if err := cfg.ValidateInputs(); err != nil {
			return nil, nil, err
		}
		logger, err := ctx.logger()
		if err != nil {
			return nil, nil, err
		}
		art, in, err := pipeline.BuildArtifacts(cmd.Context(), cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return art, func() { _ = in.Close() }, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "identifier <value>...",
		Short: "Show the registry entry an event identifier maps to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			art, done, err := load(cmd)
			if err != nil {
				return err
			}
			defer done()
			printRegistry(cmd.OutOrStdout(), art)
			printIdentifiers(cmd.OutOrStdout(), art, args)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "manufacturer <name>...",
		Short: "Show the canonical registry name for manufacturer names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			art, done, err := load(cmd)
			if err != nil {
				return err
			}
			defer done()
			printRegistry(cmd.OutOrStdout(), art)
			printManufacturers(cmd.OutOrStdout(), art, args, cfg.Matching.SimilarityThreshold)
			return nil
		},
	})

	return cmd
}

func printRegistry(out io.Writer, art *pipeline.Artifacts) {
	fmt.Fprintln(out, renderField("Registry", art.Indices.Stats().String()))
}

func printIdentifiers(out io.Writer, art *pipeline.Artifacts, ids []string) {
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		m, ok := art.Table.Lookup(id)
		if !ok {
			// not present in the event input; try the registry directly
			if e, found := art.Indices.Lookup(id); found {
				rows = append(rows, []string{id, "registry", e.Identifier, e.Manufacturer, e.Brand, e.Model})
				continue
			}
			rows = append(rows, []string{id, "unknown", "", "", "", ""})
			continue
		}
		rows = append(rows, []string{id, string(m.Type), m.Identifier, m.Manufacturer, m.Brand, m.Model})
	}
	fmt.Fprintln(out, renderTable("Identifiers",
		[]string{"Identifier", "Match", "Primary", "Manufacturer", "Brand", "Model"}, rows, nil))
}

func printManufacturers(out io.Writer, art *pipeline.Artifacts, names []string, threshold float64) {
	registry := art.Indices.Manufacturers()
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		canonical := art.Aliases.Canonical(name)
		best := namenorm.BestMatch(name, registry, threshold)
		score := ""
		if best.Name != "" {
			score = fmt.Sprintf("%.1f", best.Score)
		}
		rows = append(rows, []string{name, canonical, best.Name, score})
	}
	fmt.Fprintln(out, renderTable("Manufacturers",
		[]string{"Name", "Canonical", "Best registry match", "Score"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
}
