package device

import "strings"

// MatchSource records which resolution tier produced a device identity.
type MatchSource string

const (
	MatchUDIDirect       MatchSource = "udi_direct"
	MatchUDISecondary    MatchSource = "udi_secondary"
	MatchFullSingle      MatchSource = "mfr_full_single"
	MatchPartialSingle   MatchSource = "mfr_partial_single"
	MatchFullMultiple    MatchSource = "mfr_full_multiple"
	MatchPartialMultiple MatchSource = "mfr_partial_multiple"
	MatchUDINoMatch      MatchSource = "udi_no_match"
	MatchNone            MatchSource = "no_match"
)

// MatchSources lists every tier in priority order.
var MatchSources = []MatchSource{
	MatchUDIDirect,
	MatchUDISecondary,
	MatchFullSingle,
	MatchPartialSingle,
	MatchFullMultiple,
	MatchPartialMultiple,
	MatchUDINoMatch,
	MatchNone,
}

// Single reports whether the tier matched exactly one registry candidate by key.
func (m MatchSource) Single() bool { return strings.Contains(string(m), "single") }

// Multiple reports whether the tier found an ambiguous composite key.
func (m MatchSource) Multiple() bool { return strings.Contains(string(m), "multiple") }

// NeedsFallback reports whether fallback may synthesize an identity for the row.
func (m MatchSource) NeedsFallback() bool {
	switch m {
	case MatchFullMultiple, MatchPartialMultiple, MatchNone:
		return true
	default:
		return false
	}
}

// Confidence is an ordinal grade summarizing how an identity was derived.
type Confidence string

const (
	ConfidenceHigh    Confidence = "HIGH"
	ConfidenceMedium  Confidence = "MEDIUM"
	ConfidenceLow     Confidence = "LOW"
	ConfidenceVeryLow Confidence = "VERY_LOW"
)

// Confidences lists every grade, highest first.
var Confidences = []Confidence{ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceVeryLow}

// Rank orders grades: HIGH is 4, VERY_LOW is 1, unknown values are 0.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 4
	case ConfidenceMedium:
		return 3
	case ConfidenceLow:
		return 2
	case ConfidenceVeryLow:
		return 1
	default:
		return 0
	}
}

// ParseConfidence accepts a grade name in any case.
func ParseConfidence(value string) (Confidence, bool) {
	c := Confidence(strings.ToUpper(strings.TrimSpace(value)))
	if c.Rank() == 0 {
		return "", false
	}
	return c, true
}

// IdentifierSource labels where an event's combined identifier came from.
type IdentifierSource string

const (
	SourceOriginal  IdentifierSource = "original"
	SourceExtracted IdentifierSource = "extracted"
	SourceMissing   IdentifierSource = "missing"
)

// EventRecord is one adverse-event report. Values carries every input column
// in input order; the named fields are views over it plus ingestion-derived
// values.
type EventRecord struct {
	Values []string

	Identifier   string
	Public       string
	Manufacturer string
	Brand        string
	Catalog      string
	Model        string

	ReportDate            string
	ExtractedIdentifier   string
	CombinedIdentifier    string
	IdentifierSource      IdentifierSource
	CanonicalManufacturer string
}

// HasIdentifier reports whether the event carries a usable identifier.
func (e EventRecord) HasIdentifier() bool { return e.CombinedIdentifier != "" }

// RegistryRecord is one device-identifier registry entry.
type RegistryRecord struct {
	Identifier   string
	Manufacturer string
	Brand        string
	Catalog      string
	Model        string
	PublishDate  string
	Secondary    []string
}

// ResolvedRecord is an event plus its resolved identity.
type ResolvedRecord struct {
	Event EventRecord

	DeviceVersionID   string
	ManufacturerFinal string
	BrandFinal        string
	ModelFinal        string
	CatalogFinal      string
	MatchSource       MatchSource
	Confidence        Confidence
}

// Null reports whether value is null under the empty-string convention.
func Null(value string) bool { return strings.TrimSpace(value) == "" }

// Clean trims value, returning "" for null cells.
func Clean(value string) string { return strings.TrimSpace(value) }

// Coalesce returns the first non-null value, trimmed.
func Coalesce(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
