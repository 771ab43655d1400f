package udimap

import (
	"context"
	"log/slog"

	"devicelink/internal/device"
	"devicelink/internal/errs"
	"devicelink/internal/index"
	"devicelink/internal/logging"
	"devicelink/internal/relation"
)

// maxPrimaries caps the distinct primaries tracked per secondary identifier.
// Two is enough to prove ambiguity.
const maxPrimaries = 2

// Options tunes Map.
type Options struct {
	ChunkSize int
	Logger    *slog.Logger
}

// Map resolves ids against the registry indices, scanning registry for
// secondary identifiers when direct matching leaves ids unresolved.
func Map(ctx context.Context, ids []string, ix *index.Indices, registry relation.Source, opts Options) (*Table, error) {
	logger := logging.NewComponentLogger(opts.Logger, "udimap")
	t := &Table{entries: make(map[string]Mapping, len(ids))}

	unmatched := make(map[string]struct{})
	for _, raw := range ids {
		raw = device.Clean(raw)
		if raw == "" {
			continue
		}
		if _, dup := t.entries[raw]; dup {
			continue
		}
		if _, dup := unmatched[raw]; dup {
			continue
		}
		if e, ok := ix.Lookup(raw); ok {
			t.entries[raw] = fromEntry(raw, e, MatchDirect)
			t.stats.Direct++
			continue
		}
		unmatched[raw] = struct{}{}
	}

	layout := ix.Layout()
	switch {
	case len(unmatched) == 0:
	case layout == nil || !layout.HasSecondary():
		logger.Debug("registry has no secondary identifier columns; skipping secondary pass")
	default:
		agg, err := scanSecondary(ctx, registry, layout, unmatched, opts.ChunkSize)
		if err != nil {
			return nil, err
		}
		for raw, a := range agg {
			if len(a.primaries) != 1 {
				t.stats.Ambiguous++
				continue
			}
			m := Mapping{
				Raw:          raw,
				Identifier:   a.primaries[0],
				Manufacturer: a.rep.Manufacturer,
				Brand:        a.rep.Brand,
				Model:        a.rep.Model,
				Catalog:      a.rep.Catalog,
				Type:         MatchSecondary,
			}
			if e, ok := ix.Lookup(a.primaries[0]); ok {
				m = fromEntry(raw, e, MatchSecondary)
			}
			t.entries[raw] = m
			t.stats.Secondary++
			delete(unmatched, raw)
		}
	}

	for raw := range unmatched {
		t.entries[raw] = Mapping{Raw: raw, Identifier: raw, Type: MatchNone}
		t.stats.NoMatch++
	}
	t.stats.Distinct = len(t.entries)

	logger.Info("identifiers mapped",
		logging.Int("distinct", t.stats.Distinct),
		logging.Int("direct", t.stats.Direct),
		logging.Int("secondary", t.stats.Secondary),
		logging.Int("ambiguous", t.stats.Ambiguous),
		logging.Int("no_match", t.stats.NoMatch),
	)
	return t, nil
}

func fromEntry(raw string, e index.Entry, kind MatchType) Mapping {
	return Mapping{
		Raw:          raw,
		Identifier:   e.Identifier,
		Manufacturer: e.Manufacturer,
		Brand:        e.Brand,
		Model:        e.Model,
		Catalog:      e.Catalog,
		Type:         kind,
	}
}

// aggregate tracks the distinct primaries seen behind one secondary
// identifier, capped at maxPrimaries, and the first row that cited it.
type aggregate struct {
	primaries []string
	rep       device.RegistryRecord
}

func (a *aggregate) add(primary string) {
	if len(a.primaries) >= maxPrimaries {
		return
	}
	for _, p := range a.primaries {
		if p == primary {
			return
		}
	}
	a.primaries = append(a.primaries, primary)
}

// merge folds a later chunk's aggregate into a. The earlier representative is kept.
func (a *aggregate) merge(later *aggregate) {
	for _, p := range later.primaries {
		a.add(p)
	}
}

func scanSecondary(ctx context.Context, registry relation.Source, layout *device.RegistryLayout, wanted map[string]struct{}, chunkSize int) (map[string]*aggregate, error) {
	if chunkSize <= 0 {
		chunkSize = 50000
	}
	total := make(map[string]*aggregate)
	err := registry.Scan(ctx, chunkSize, func(b relation.Batch) error {
		partial := make(map[string]*aggregate)
		for _, values := range b.Rows {
			rec := layout.Record(values)
			if rec.Identifier == "" {
				continue
			}
			for _, sec := range rec.Secondary {
				if _, ok := wanted[sec]; !ok {
					continue
				}
				a, ok := partial[sec]
				if !ok {
					a = &aggregate{rep: rec}
					partial[sec] = a
				}
				a.add(rec.Identifier)
			}
		}
		for sec, a := range partial {
			if prev, ok := total[sec]; ok {
				prev.merge(a)
				continue
			}
			total[sec] = a
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "map", "scan secondary identifiers", registry.Name(), err)
	}
	return total, nil
}
