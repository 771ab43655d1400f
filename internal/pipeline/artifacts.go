package pipeline

import (
	"context"
	"log/slog"
	"sort"

	"devicelink/internal/config"
	"devicelink/internal/errs"
	"devicelink/internal/index"
	"devicelink/internal/namenorm"
	"devicelink/internal/relation"
	"devicelink/internal/udimap"
)

// Survey holds what one pass over the events learns up front.
type Survey struct {
	Rows          int64
	Manufacturers []string
	Identifiers   []string
}

// SurveyEvents collects the row count and the distinct manufacturer names and
// combined identifiers of the event input, each sorted.
func SurveyEvents(ctx context.Context, in *Inputs, batchSize int) (Survey, error) {
	manufacturers := make(map[string]struct{})
	identifiers := make(map[string]struct{})
	var rows int64
	err := in.Events.Scan(ctx, batchSize, func(b relation.Batch) error {
		for _, values := range b.Rows {
			rows++
			rec := in.EventLayout.Record(values)
			if rec.Manufacturer != "" {
				manufacturers[rec.Manufacturer] = struct{}{}
			}
			if rec.CombinedIdentifier != "" {
				identifiers[rec.CombinedIdentifier] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return Survey{}, errs.Wrap(errs.ErrIO, stageNormalize, "survey events", in.Events.Name(), err)
	}
	return Survey{Rows: rows, Manufacturers: sortedKeys(manufacturers), Identifiers: sortedKeys(identifiers)}, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Artifacts are the immutable lookups every resolve chunk shares.
type Artifacts struct {
	Indices *index.Indices
	Aliases namenorm.Aliases
	Table   *udimap.Table
	Survey  Survey
}

func (r *run) buildArtifacts(ctx context.Context, in *Inputs) (*Artifacts, error) {
	cfg := r.cfg
	art := &Artifacts{}
	err := r.stage(ctx, stageIndex, func(ctx context.Context, logger *slog.Logger) (int64, error) {
		ix, err := index.Build(ctx, in.Registry, index.Options{
			Columns:          RegistryColumns(cfg),
			DateFields:       cfg.Pipeline.RegistryDateFields,
			SecondaryPattern: in.SecondaryPattern,
			BatchSize:        cfg.Pipeline.ChunkSize,
			Logger:           logger,
		})
		if err != nil {
			return 0, err
		}
		art.Indices = ix
		return ix.Stats().Rows, nil
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, stageNormalize, func(ctx context.Context, logger *slog.Logger) (int64, error) {
		survey, err := SurveyEvents(ctx, in, cfg.Pipeline.ChunkSize)
		if err != nil {
			return 0, err
		}
		art.Survey = survey
		aliases, err := namenorm.Build(ctx, survey.Manufacturers, art.Indices.Manufacturers(), namenorm.Options{
			Threshold: cfg.Matching.SimilarityThreshold,
			Workers:   cfg.Pipeline.Workers,
			Logger:    logger,
		})
		if err != nil {
			return 0, err
		}
		art.Aliases = aliases
		return int64(aliases.Len()), nil
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, stageMap, func(ctx context.Context, logger *slog.Logger) (int64, error) {
		table, err := udimap.Map(ctx, art.Survey.Identifiers, art.Indices, in.Registry, udimap.Options{
			ChunkSize: cfg.Pipeline.ChunkSize,
			Logger:    logger,
		})
		if err != nil {
			return 0, err
		}
		art.Table = table
		return int64(table.Len()), nil
	})
	if err != nil {
		return nil, err
	}
	return art, nil
}

// BuildArtifacts opens the configured inputs and builds the shared lookups
// without touching the store. The inspect command uses it. The caller closes
// the returned inputs.
func BuildArtifacts(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Artifacts, *Inputs, error) {
	runner := New(cfg, logger)
	r := &run{Runner: runner, logger: runner.logger, summary: &Summary{}}
	in, err := OpenInputs(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	art, err := r.buildArtifacts(ctx, in)
	if err != nil {
		_ = in.Close()
		return nil, nil, err
	}
	return art, in, nil
}
