// Package resolve assigns a device identity to each event report of a chunk
// using the shared registry artifacts: manufacturer aliases, registry indices
// and the identifier mapping table.
//
// Resolution is a pure function of the chunk and the artifacts. A chunk's
// output has exactly one record per input record, in input order, and no
// state carries over between chunks, so chunks may be resolved concurrently
// and re-resolved after a failure.
package resolve

import (
	"devicelink/internal/device"
	"devicelink/internal/index"
	"devicelink/internal/namenorm"
	"devicelink/internal/udimap"
)

// Resolver holds the immutable artifacts shared by every chunk.
type Resolver struct {
	aliases namenorm.Aliases
	indices *index.Indices
	table   *udimap.Table
}

// New returns a resolver over the given artifacts.
func New(aliases namenorm.Aliases, indices *index.Indices, table *udimap.Table) *Resolver {
	return &Resolver{aliases: aliases, indices: indices, table: table}
}

// ResolveChunk resolves records in order.
func (r *Resolver) ResolveChunk(records []device.EventRecord) []device.ResolvedRecord {
	out := make([]device.ResolvedRecord, len(records))
	for i, rec := range records {
		out[i] = r.Resolve(rec)
	}
	return out
}

// Resolve applies the match tiers to one record; the first tier that succeeds
// wins. Ambiguous composite keys are labelled but never pick a candidate.
// Confidence is left empty for the fallback stage.
func (r *Resolver) Resolve(rec device.EventRecord) device.ResolvedRecord {
	ev := rec
	ev.Values = append([]string(nil), rec.Values...)
	ev.CanonicalManufacturer = r.aliases.Canonical(rec.Manufacturer)

	var mapped udimap.Mapping
	var hasMapping bool
	if ev.CombinedIdentifier != "" {
		if m, ok := r.table.Lookup(ev.CombinedIdentifier); ok && m.Matched() {
			mapped, hasMapping = m, true
		}
	}

	var full, partial *index.Group
	if r.indices != nil {
		full, _ = r.indices.Full(ev.CanonicalManufacturer, ev.Brand, ev.Catalog)
		partial, _ = r.indices.Partial(ev.CanonicalManufacturer, ev.Brand)
	}
	fullSingle := full.Single()
	partialSingle := partial.Single()

	out := device.ResolvedRecord{Event: ev}
	switch {
	case hasMapping && mapped.Type == udimap.MatchDirect:
		out.MatchSource = device.MatchUDIDirect
	case hasMapping:
		out.MatchSource = device.MatchUDISecondary
	case fullSingle:
		out.MatchSource = device.MatchFullSingle
	case partialSingle:
		out.MatchSource = device.MatchPartialSingle
	case full.Count() > 1:
		out.MatchSource = device.MatchFullMultiple
	case partial.Count() > 1:
		out.MatchSource = device.MatchPartialMultiple
	case ev.HasIdentifier():
		out.MatchSource = device.MatchUDINoMatch
	default:
		out.MatchSource = device.MatchNone
	}

	var fullID, fullModel, partialID, partialModel, partialCatalog string
	if fullSingle {
		fullID, fullModel = full.Identifiers[0], full.Models[0]
	}
	if partialSingle {
		partialID, partialModel, partialCatalog = partial.Identifiers[0], partial.Models[0], partial.Catalogs[0]
	}

	out.DeviceVersionID = device.Coalesce(mapped.Identifier, fullID, partialID, ev.CombinedIdentifier)
	out.ManufacturerFinal = device.Coalesce(mapped.Manufacturer, ev.CanonicalManufacturer)
	out.BrandFinal = device.Coalesce(mapped.Brand, ev.Brand)
	out.ModelFinal = device.Coalesce(mapped.Model, fullModel, partialModel, ev.Model)
	out.CatalogFinal = device.Coalesce(mapped.Catalog, ev.Catalog, partialCatalog)
	return out
}
