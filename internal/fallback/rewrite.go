package fallback

import (
	"strings"

	"devicelink/internal/device"
)

// Synthetic identifier prefixes.
const (
	LowCompliancePrefix = "LOW"
	UnknownPrefix       = "UNK"
)

// Rewriter applies the second fallback pass. It is immutable and safe for
// concurrent use.
type Rewriter struct {
	report    Report
	secondary device.Confidence
}

// NewRewriter returns a rewriter for a compliance report. An unknown
// secondary grade falls back to MEDIUM.
func NewRewriter(report Report, secondary device.Confidence) *Rewriter {
	if secondary.Rank() == 0 {
		secondary = device.ConfidenceMedium
	}
	return &Rewriter{report: report, secondary: secondary}
}

// Apply returns rec with a non-empty device identity and a confidence grade.
func (w *Rewriter) Apply(rec device.ResolvedRecord) device.ResolvedRecord {
	out := rec
	out.Event.Values = append([]string(nil), rec.Event.Values...)
	if rec.MatchSource.NeedsFallback() {
		out.DeviceVersionID = w.SyntheticID(rec)
	}
	if out.DeviceVersionID == "" {
		// Only reachable for records built outside the resolver.
		out.DeviceVersionID = unknownID(rec)
	}
	out.Confidence = Grade(rec.MatchSource, rec.Event.HasIdentifier(), w.secondary)
	return out
}

// ApplyChunk rewrites records in order.
func (w *Rewriter) ApplyChunk(records []device.ResolvedRecord) []device.ResolvedRecord {
	out := make([]device.ResolvedRecord, len(records))
	for i, rec := range records {
		out[i] = w.Apply(rec)
	}
	return out
}

// SyntheticID returns the fallback identity of a record: its own combined
// identifier when present, else a LOW_ id for low-compliance manufacturers,
// else an UNK_ id.
func (w *Rewriter) SyntheticID(rec device.ResolvedRecord) string {
	if rec.Event.CombinedIdentifier != "" {
		return rec.Event.CombinedIdentifier
	}
	if w.report.Low(rec.Event.CanonicalManufacturer) {
		return strings.Join([]string{LowCompliancePrefix, rec.Event.CanonicalManufacturer, rec.BrandFinal}, "_")
	}
	return unknownID(rec)
}

func unknownID(rec device.ResolvedRecord) string {
	return strings.Join([]string{UnknownPrefix, rec.Event.CanonicalManufacturer, rec.BrandFinal, rec.CatalogFinal}, "_")
}

// Grade maps a match tier to a confidence grade. Direct identifier matches
// rank highest, ambiguous composite keys below single ones, and rows with
// nothing to go on lowest.
func Grade(source device.MatchSource, hasIdentifier bool, secondary device.Confidence) device.Confidence {
	switch {
	case source == device.MatchUDIDirect:
		return device.ConfidenceHigh
	case source == device.MatchUDISecondary:
		return secondary
	case source.Single():
		return device.ConfidenceMedium
	case source.Multiple():
		return device.ConfidenceLow
	case hasIdentifier:
		return device.ConfidenceMedium
	default:
		return device.ConfidenceVeryLow
	}
}
