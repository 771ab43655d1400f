// Package index builds the registry lookup structures used by the resolver:
// a primary-identifier index and full (manufacturer, brand, catalog) and
// partial (manufacturer, brand) composite-key indices.
//
// All three come from one streaming pass over the registry, so memory grows
// with the number of distinct identifiers and keys rather than with row count.
// An Indices value is immutable once Build returns and may be shared by any
// number of goroutines.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"devicelink/internal/device"
	"devicelink/internal/errs"
	"devicelink/internal/logging"
	"devicelink/internal/relation"
)

// Entry is the registry metadata for one primary identifier.
type Entry struct {
	Identifier   string
	Manufacturer string
	Brand        string
	Model        string
	Catalog      string
	PublishDate  string
}

// Group aggregates the distinct identifiers registered under one composite
// key. Models, Catalogs and Dates are parallel to Identifiers.
type Group struct {
	Identifiers []string
	Models      []string
	Catalogs    []string
	Dates       []string

	seen map[string]struct{}
}

// Count is the number of distinct identifiers under the key.
func (g *Group) Count() int {
	if g == nil {
		return 0
	}
	return len(g.Identifiers)
}

// Single reports whether exactly one identifier is registered under the key.
func (g *Group) Single() bool { return g.Count() == 1 }

func (g *Group) add(rec device.RegistryRecord) {
	if _, dup := g.seen[rec.Identifier]; dup {
		return
	}
	g.seen[rec.Identifier] = struct{}{}
	g.Identifiers = append(g.Identifiers, rec.Identifier)
	g.Models = append(g.Models, rec.Model)
	g.Catalogs = append(g.Catalogs, rec.Catalog)
	g.Dates = append(g.Dates, rec.PublishDate)
}

// Key is a folded composite key. Partial keys leave Catalog empty.
type Key struct {
	Manufacturer string
	Brand        string
	Catalog      string
}

// Fold normalizes one key component: trimmed, inner whitespace collapsed,
// upper-cased.
func Fold(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), " "))
}

// FullKey builds a (manufacturer, brand, catalog) key. It reports false when
// any component is null; such keys are never indexed or looked up.
func FullKey(manufacturer, brand, catalog string) (Key, bool) {
	k := Key{Manufacturer: Fold(manufacturer), Brand: Fold(brand), Catalog: Fold(catalog)}
	return k, k.Manufacturer != "" && k.Brand != "" && k.Catalog != ""
}

// PartialKey builds a (manufacturer, brand) key.
func PartialKey(manufacturer, brand string) (Key, bool) {
	k := Key{Manufacturer: Fold(manufacturer), Brand: Fold(brand)}
	return k, k.Manufacturer != "" && k.Brand != ""
}

// Stats summarizes one Build pass.
type Stats struct {
	Rows                  int64
	Identifiers           int
	DuplicateRows         int64
	MissingIdentifier     int64
	FullKeys              int
	PartialKeys           int
	SecondaryColumns      []string
	RegistryManufacturers int
}

// Indices holds the three registry lookups.
type Indices struct {
	layout        *device.RegistryLayout
	primary       map[string]Entry
	full          map[Key]*Group
	partial       map[Key]*Group
	manufacturers []string
	stats         Stats
}

// Options tunes Build.
type Options struct {
	Columns          device.RegistryColumns
	DateFields       []string
	SecondaryPattern *regexp.Regexp
	BatchSize        int
	Logger           *slog.Logger
}

// Build scans the registry once. A missing identifier, manufacturer or brand
// column is a validation error; an empty registry yields empty indices. On a
// duplicate primary identifier the first row in source order wins.
func Build(ctx context.Context, src relation.Source, opts Options) (*Indices, error) {
	logger := logging.NewComponentLogger(opts.Logger, "index")
	header, err := src.Columns(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ErrValidation, "index", "read registry header", src.Name(), err)
	}
	layout, err := device.NewRegistryLayout(header, opts.Columns, opts.DateFields, opts.SecondaryPattern)
	if err != nil {
		return nil, err
	}
	ix := &Indices{
		layout:  layout,
		primary: make(map[string]Entry),
		full:    make(map[Key]*Group),
		partial: make(map[Key]*Group),
	}
	manufacturers := make(map[string]struct{})
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 50000
	}
	err = src.Scan(ctx, batchSize, func(b relation.Batch) error {
		for _, values := range b.Rows {
			ix.stats.Rows++
			rec := layout.Record(values)
			if rec.Identifier == "" {
				ix.stats.MissingIdentifier++
				continue
			}
			if rec.Manufacturer != "" {
				manufacturers[rec.Manufacturer] = struct{}{}
			}
			if _, dup := ix.primary[rec.Identifier]; dup {
				ix.stats.DuplicateRows++
			} else {
				ix.primary[rec.Identifier] = Entry{
					Identifier:   rec.Identifier,
					Manufacturer: rec.Manufacturer,
					Brand:        rec.Brand,
					Model:        rec.Model,
					Catalog:      rec.Catalog,
					PublishDate:  rec.PublishDate,
				}
			}
			if k, ok := FullKey(rec.Manufacturer, rec.Brand, rec.Catalog); ok {
				groupFor(ix.full, k).add(rec)
			}
			if k, ok := PartialKey(rec.Manufacturer, rec.Brand); ok {
				groupFor(ix.partial, k).add(rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "index", "scan registry", src.Name(), err)
	}
	for _, g := range ix.full {
		g.seen = nil
	}
	for _, g := range ix.partial {
		g.seen = nil
	}
	ix.manufacturers = make([]string, 0, len(manufacturers))
	for name := range manufacturers {
		ix.manufacturers = append(ix.manufacturers, name)
	}
	ix.stats.Identifiers = len(ix.primary)
	ix.stats.FullKeys = len(ix.full)
	ix.stats.PartialKeys = len(ix.partial)
	ix.stats.SecondaryColumns = layout.SecondaryColumns()
	ix.stats.RegistryManufacturers = len(ix.manufacturers)

	if ix.stats.DuplicateRows > 0 {
		logging.WarnWithContext(logger, "registry has duplicate primary identifiers", "registry_duplicate_identifier",
			logging.Int64("duplicate_rows", ix.stats.DuplicateRows),
			logging.String(logging.FieldImpact, "first row per identifier kept in the primary index"),
			logging.String(logging.FieldErrorHint, "deduplicate the registry export if later rows should win"),
		)
	}
	logger.Info("registry indexed",
		logging.Int64("rows", ix.stats.Rows),
		logging.Int("identifiers", ix.stats.Identifiers),
		logging.Int("full_keys", ix.stats.FullKeys),
		logging.Int("partial_keys", ix.stats.PartialKeys),
		logging.Int("secondary_columns", len(ix.stats.SecondaryColumns)),
	)
	return ix, nil
}

func groupFor(m map[Key]*Group, k Key) *Group {
	g, ok := m[k]
	if !ok {
		g = &Group{seen: make(map[string]struct{}, 1)}
		m[k] = g
	}
	return g
}

// Layout returns the registry column layout Build resolved.
func (ix *Indices) Layout() *device.RegistryLayout { return ix.layout }

// Stats returns counters from the build pass.
func (ix *Indices) Stats() Stats { return ix.stats }

// Manufacturers returns the distinct registry manufacturer names.
func (ix *Indices) Manufacturers() []string {
	return append([]string(nil), ix.manufacturers...)
}

// Lookup returns the primary-index entry for an identifier.
func (ix *Indices) Lookup(identifier string) (Entry, bool) {
	e, ok := ix.primary[strings.TrimSpace(identifier)]
	return e, ok
}

// Full returns the group for a full key. Null components never match.
func (ix *Indices) Full(manufacturer, brand, catalog string) (*Group, bool) {
	k, ok := FullKey(manufacturer, brand, catalog)
	if !ok {
		return nil, false
	}
	g, ok := ix.full[k]
	return g, ok
}

// Partial returns the group for a partial key. Null components never match.
func (ix *Indices) Partial(manufacturer, brand string) (*Group, bool) {
	k, ok := PartialKey(manufacturer, brand)
	if !ok {
		return nil, false
	}
	g, ok := ix.partial[k]
	return g, ok
}

func (s Stats) String() string {
	return fmt.Sprintf("rows=%d identifiers=%d duplicates=%d full_keys=%d partial_keys=%d",
		s.Rows, s.Identifiers, s.DuplicateRows, s.FullKeys, s.PartialKeys)
}
