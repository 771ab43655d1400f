package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"devicelink/internal/device"
	"devicelink/internal/errs"
	"devicelink/internal/export"
	"devicelink/internal/fallback"
	"devicelink/internal/logging"
	"devicelink/internal/relation"
	"devicelink/internal/resolve"
)

// resolve streams event chunks through the resolver into the staging table.
// Chunks already in the ledger are skipped.
func (r *run) resolve(ctx context.Context, logger *slog.Logger, in *Inputs, art *Artifacts) (int64, error) {
	layout := in.EventLayout
	if err := r.store.EnsureOutputTable(ctx, StagingTable, layout.OutputColumns()); err != nil {
		return 0, err
	}
	done, err := r.store.CommittedChunks(ctx, stageResolve)
	if err != nil {
		return 0, err
	}
	resolver := resolve.New(art.Aliases, art.Indices, art.Table)

	var rows int64
	var skipped int
	err = processChunks(ctx, r.cfg.Pipeline.Workers,
		func(ctx context.Context, emit func(chunk) error) error {
			return in.Events.Scan(ctx, r.cfg.Pipeline.ChunkSize, func(b relation.Batch) error {
				rows += int64(len(b.Rows))
				if _, ok := done[b.Index]; ok {
					skipped++
					return nil
				}
				return emit(chunk{index: b.Index, rows: b.Rows})
			})
		},
		func(c chunk) ([][]string, error) {
			records := make([]device.EventRecord, len(c.rows))
			for i, values := range c.rows {
				records[i] = layout.Record(values)
			}
			resolved := resolver.ResolveChunk(records)
			out := make([][]string, len(resolved))
			for i, rec := range resolved {
				out[i] = layout.Row(rec)
			}
			return out, nil
		},
		func(ctx context.Context, c chunk) error {
			return r.commit(ctx, logger, stageResolve, StagingTable, c)
		},
	)
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		logger.Info("resumed from ledger", logging.Int("skipped_chunks", skipped))
	}
	r.summary.EventRows = rows
	r.summary.SkippedChunks += skipped
	return rows, nil
}

func (r *run) commit(ctx context.Context, logger *slog.Logger, stage, table string, c chunk) error {
	if err := r.store.CommitChunk(ctx, stage, table, c.index, c.rows); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.ChunkCommitted(stage)
	}
	logger.Debug("chunk committed",
		logging.String(logging.FieldEventType, "chunk_committed"),
		logging.Int(logging.FieldChunk, c.index),
		logging.Int("rows", len(c.rows)),
	)
	return nil
}

// compliance returns the persisted compliance report, measuring and storing
// it first when this workspace has none yet.
func (r *run) compliance(ctx context.Context, logger *slog.Logger, layout *device.EventLayout) (fallback.Report, error) {
	done, err := r.store.CommittedChunks(ctx, stageCompliance)
	if err != nil {
		return fallback.Report{}, err
	}
	if _, ok := done[0]; ok {
		rows, err := r.store.LoadCompliance(ctx)
		if err != nil {
			return fallback.Report{}, err
		}
		logger.Debug("compliance loaded from store", logging.Int("manufacturers", len(rows)))
		return fallback.NewReport(rows), nil
	}

	src, err := r.store.Source(ctx, StagingTable)
	if err != nil {
		return fallback.Report{}, err
	}
	report, err := fallback.Measure(ctx, src, layout, r.cfg.Fallback.LowComplianceThreshold, r.cfg.Pipeline.ChunkSize)
	if err != nil {
		return fallback.Report{}, err
	}
	rows := report.Rows()
	if err := r.store.SaveCompliance(ctx, rows); err != nil {
		return fallback.Report{}, errs.Wrap(errs.ErrIO, stageFallback, "save compliance", "", err)
	}
	if err := r.store.MarkChunk(ctx, stageCompliance, 0, int64(len(rows))); err != nil {
		return fallback.Report{}, errs.Wrap(errs.ErrIO, stageFallback, "record compliance", "", err)
	}
	return report, nil
}

// fallback rewrites every staged chunk into the resolved table.
func (r *run) fallback(ctx context.Context, logger *slog.Logger, in *Inputs) (int64, error) {
	layout := in.EventLayout
	report, err := r.compliance(ctx, logger, layout)
	if err != nil {
		return 0, err
	}
	r.summary.Compliance = report.Rows()
	if r.metrics != nil {
		r.metrics.LowCompliance(report.LowCount())
	}
	logger.Info("manufacturer compliance measured",
		logging.Int("manufacturers", len(r.summary.Compliance)),
		logging.Int("low_compliance", report.LowCount()),
		logging.Float64("threshold", r.cfg.Fallback.LowComplianceThreshold),
	)

	secondary, ok := device.ParseConfidence(r.cfg.Matching.SecondaryConfidence)
	if !ok {
		return 0, errs.Wrap(errs.ErrConfiguration, stageFallback, "secondary confidence", r.cfg.Matching.SecondaryConfidence, nil)
	}
	rewriter := fallback.NewRewriter(report, secondary)

	if err := r.store.EnsureOutputTable(ctx, ResolvedTable, layout.OutputColumns()); err != nil {
		return 0, err
	}
	indices, err := r.store.ChunkIndices(ctx, StagingTable)
	if err != nil {
		return 0, err
	}
	done, err := r.store.CommittedChunks(ctx, stageFallback)
	if err != nil {
		return 0, err
	}

	err = processChunks(ctx, r.cfg.Pipeline.Workers,
		func(ctx context.Context, emit func(chunk) error) error {
			for _, idx := range indices {
				if _, ok := done[idx]; ok {
					continue
				}
				rows, err := r.store.ReadChunk(ctx, StagingTable, idx)
				if err != nil {
					return err
				}
				if err := emit(chunk{index: idx, rows: rows}); err != nil {
					return err
				}
			}
			return nil
		},
		func(c chunk) ([][]string, error) {
			staged := make([]device.ResolvedRecord, len(c.rows))
			for i, row := range c.rows {
				rec, err := layout.Resolved(row)
				if err != nil {
					return nil, errs.Wrap(errs.ErrValidation, stageFallback, "decode staged row", "", err)
				}
				staged[i] = rec
			}
			final := rewriter.ApplyChunk(staged)
			out := make([][]string, len(final))
			for i, rec := range final {
				out[i] = layout.Row(rec)
			}
			return out, nil
		},
		func(ctx context.Context, c chunk) error {
			return r.commit(ctx, logger, stageFallback, ResolvedTable, c)
		},
	)
	if err != nil {
		return 0, err
	}
	rows, err := r.store.CountRows(ctx, ResolvedTable)
	if err != nil {
		return 0, err
	}
	r.summary.ResolvedRows = rows
	return rows, nil
}

// export writes resolved chunks as CSV partitions when export is enabled.
func (r *run) export(ctx context.Context, logger *slog.Logger) (int64, error) {
	if !r.cfg.Export.Enabled {
		logger.Debug("export disabled")
		return 0, nil
	}
	sink := r.sink
	if sink == nil {
		var err error
		if sink, err = export.NewSink(ctx, r.cfg); err != nil {
			return 0, errs.Wrap(errs.ErrConfiguration, stageExport, "create sink", "", err)
		}
	}
	header, err := r.store.OutputColumns(ctx, ResolvedTable)
	if err != nil {
		return 0, err
	}
	indices, err := r.store.ChunkIndices(ctx, ResolvedTable)
	if err != nil {
		return 0, err
	}
	done, err := r.store.CommittedChunks(ctx, stageExport)
	if err != nil {
		return 0, err
	}
	if len(done) == 0 {
		// nothing of this output is exported yet, so any partition already
		// at the destination belongs to an earlier output
		removed, err := sink.Clear(ctx)
		if err != nil {
			return 0, errs.Wrap(errs.ErrIO, stageExport, "clear stale partitions", "", err)
		}
		if removed > 0 {
			logger.Info("stale partitions removed",
				logging.String(logging.FieldEventType, "partitions_cleared"),
				logging.Int("partitions", removed),
			)
		}
	}
	var written int64
	for _, idx := range indices {
		if _, ok := done[idx]; ok {
			continue
		}
		rows, err := r.store.ReadChunk(ctx, ResolvedTable, idx)
		if err != nil {
			return written, err
		}
		location, err := export.WritePartition(ctx, sink, idx, header, rows)
		if err != nil {
			return written, errs.Wrap(errs.ErrIO, stageExport, "write partition", "", err)
		}
		if err := r.store.MarkChunk(ctx, stageExport, idx, int64(len(rows))); err != nil {
			return written, errs.Wrap(errs.ErrIO, stageExport, "record partition", location, err)
		}
		if r.metrics != nil {
			r.metrics.ChunkCommitted(stageExport)
		}
		logger.Debug("partition written",
			logging.String(logging.FieldEventType, "partition_written"),
			logging.Int(logging.FieldChunk, idx),
			logging.String("location", location),
			logging.Int("rows", len(rows)),
		)
		r.summary.Partitions = append(r.summary.Partitions, location)
		written += int64(len(rows))
	}
	return written, nil
}

// report checks row conservation and records the match distribution.
func (r *run) report(ctx context.Context, logger *slog.Logger) (int64, error) {
	if r.summary.ResolvedRows != r.summary.EventRows {
		return 0, errs.Wrap(errs.ErrTransient, stageReport, "row conservation",
			fmt.Sprintf("%d event rows but %d resolved rows", r.summary.EventRows, r.summary.ResolvedRows), nil)
	}
	dist, err := r.store.Distribution(ctx, ResolvedTable)
	if err != nil {
		return 0, err
	}
	if err := r.store.SaveMatchStats(ctx, r.id, dist); err != nil {
		return 0, err
	}
	r.summary.Distribution = dist
	for _, c := range dist {
		if r.metrics != nil {
			r.metrics.Match(c.MatchSource, c.Confidence, c.Rows)
		}
	}
	for _, share := range r.summary.BySource() {
		logger.Info("match source",
			logging.String("match_source", string(share.Source)),
			logging.Int64("rows", share.Rows),
			logging.Float64("percent", share.Percent),
		)
	}
	return r.summary.ResolvedRows, nil
}
