package device

import (
	"fmt"
	"regexp"
	"strings"

	"devicelink/internal/errs"
	"devicelink/internal/udi"
)

// Columns appended to every event row by the resolver, in output order.
const (
	ColReportDate            = "report_date"
	ColIdentifierCombined    = "identifier_combined"
	ColIdentifierSource      = "identifier_source"
	ColManufacturerCanonical = "manufacturer_canonical"
	ColDeviceVersionID       = "device_version_id"
	ColManufacturerFinal     = "manufacturer_final"
	ColBrandFinal            = "brand_final"
	ColModelFinal            = "model_number_final"
	ColCatalogFinal          = "catalog_number_final"
	ColMatchSource           = "match_source"
	ColConfidence            = "confidence"
)

// DerivedColumns lists the resolver columns in output order.
var DerivedColumns = []string{
	ColReportDate,
	ColIdentifierCombined,
	ColIdentifierSource,
	ColManufacturerCanonical,
	ColDeviceVersionID,
	ColManufacturerFinal,
	ColBrandFinal,
	ColModelFinal,
	ColCatalogFinal,
	ColMatchSource,
	ColConfidence,
}

// MissingColumnsError reports required columns absent from an input header.
// It matches errs.ErrValidation.
type MissingColumnsError struct {
	Input   string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s input missing required columns: %s", e.Input, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Is(target error) bool { return target == errs.ErrValidation }

// EventColumns names the event input columns.
type EventColumns struct {
	Identifier   string
	Public       string
	Manufacturer string
	Brand        string
	Catalog      string
	Model        string
}

// EventLayout decodes event rows of one input header.
type EventLayout struct {
	header []string

	identifier   int
	public       int
	manufacturer int
	brand        int
	catalog      int
	model        int
	dates        []int
}

// NewEventLayout resolves column positions. The identifier, manufacturer,
// brand, catalog and model columns are required; the public identifier column
// and date fields are used when present.
func NewEventLayout(header []string, cols EventColumns, dateFields []string) (*EventLayout, error) {
	pos := positions(header)
	var missing []string
	find := func(name string, required bool) int {
		if idx, ok := pos[name]; ok {
			return idx
		}
		if required {
			missing = append(missing, name)
		}
		return -1
	}
	l := &EventLayout{
		header:       append([]string(nil), header...),
		identifier:   find(cols.Identifier, true),
		public:       find(cols.Public, false),
		manufacturer: find(cols.Manufacturer, true),
		brand:        find(cols.Brand, true),
		catalog:      find(cols.Catalog, true),
		model:        find(cols.Model, true),
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Input: "events", Columns: missing}
	}
	for _, field := range dateFields {
		if idx, ok := pos[field]; ok {
			l.dates = append(l.dates, idx)
		}
	}
	for _, derived := range DerivedColumns {
		if _, clash := pos[derived]; clash {
			return nil, errs.Wrap(errs.ErrValidation, "", "events", fmt.Sprintf("input column %q collides with a resolver output column", derived), nil)
		}
	}
	return l, nil
}

// OutputColumns returns the input columns followed by DerivedColumns.
func (l *EventLayout) OutputColumns() []string {
	out := make([]string, 0, len(l.header)+len(DerivedColumns))
	out = append(out, l.header...)
	return append(out, DerivedColumns...)
}

// Record decodes one input row and derives the report date and combined
// identifier. A malformed public identifier yields no extracted identifier.
func (l *EventLayout) Record(values []string) EventRecord {
	rec := EventRecord{
		Values:       padded(values, len(l.header)),
		Identifier:   cell(values, l.identifier),
		Public:       cell(values, l.public),
		Manufacturer: cell(values, l.manufacturer),
		Brand:        cell(values, l.brand),
		Catalog:      cell(values, l.catalog),
		Model:        cell(values, l.model),
	}
	for _, idx := range l.dates {
		if v := cell(values, idx); v != "" {
			rec.ReportDate = v
			break
		}
	}
	rec.ExtractedIdentifier = udi.ExtractDI(rec.Public)
	rec.CombinedIdentifier = Coalesce(rec.Identifier, rec.ExtractedIdentifier)
	switch {
	case rec.Identifier != "":
		rec.IdentifierSource = SourceOriginal
	case rec.ExtractedIdentifier != "":
		rec.IdentifierSource = SourceExtracted
	default:
		rec.IdentifierSource = SourceMissing
	}
	return rec
}

// Row renders a resolved record in OutputColumns order.
func (l *EventLayout) Row(r ResolvedRecord) []string {
	row := make([]string, 0, len(l.header)+len(DerivedColumns))
	row = append(row, padded(r.Event.Values, len(l.header))...)
	return append(row,
		r.Event.ReportDate,
		r.Event.CombinedIdentifier,
		string(r.Event.IdentifierSource),
		r.Event.CanonicalManufacturer,
		r.DeviceVersionID,
		r.ManufacturerFinal,
		r.BrandFinal,
		r.ModelFinal,
		r.CatalogFinal,
		string(r.MatchSource),
		string(r.Confidence),
	)
}

// Resolved decodes a row previously rendered by Row.
func (l *EventLayout) Resolved(row []string) (ResolvedRecord, error) {
	want := len(l.header) + len(DerivedColumns)
	if len(row) != want {
		return ResolvedRecord{}, fmt.Errorf("resolved row has %d columns, want %d", len(row), want)
	}
	values := row[:len(l.header)]
	tail := row[len(l.header):]
	ev := EventRecord{
		Values:                append([]string(nil), values...),
		Identifier:            cell(values, l.identifier),
		Public:                cell(values, l.public),
		Manufacturer:          cell(values, l.manufacturer),
		Brand:                 cell(values, l.brand),
		Catalog:               cell(values, l.catalog),
		Model:                 cell(values, l.model),
		ReportDate:            tail[0],
		CombinedIdentifier:    tail[1],
		IdentifierSource:      IdentifierSource(tail[2]),
		CanonicalManufacturer: tail[3],
	}
	ev.ExtractedIdentifier = udi.ExtractDI(ev.Public)
	return ResolvedRecord{
		Event:             ev,
		DeviceVersionID:   tail[4],
		ManufacturerFinal: tail[5],
		BrandFinal:        tail[6],
		ModelFinal:        tail[7],
		CatalogFinal:      tail[8],
		MatchSource:       MatchSource(tail[9]),
		Confidence:        Confidence(tail[10]),
	}, nil
}

// RegistryColumns names the registry input columns.
type RegistryColumns struct {
	Identifier   string
	Manufacturer string
	Brand        string
	Catalog      string
	Model        string
}

// RegistryLayout decodes registry rows of one input header.
type RegistryLayout struct {
	header []string

	identifier   int
	manufacturer int
	brand        int
	catalog      int
	model        int
	dates        []int
	secondary    []int
}

// NewRegistryLayout resolves column positions. Identifier, manufacturer and
// brand are required. Columns matching secondaryPattern (other than the
// primary identifier column) hold secondary identifiers.
func NewRegistryLayout(header []string, cols RegistryColumns, dateFields []string, secondaryPattern *regexp.Regexp) (*RegistryLayout, error) {
	pos := positions(header)
	var missing []string
	find := func(name string, required bool) int {
		if idx, ok := pos[name]; ok {
			return idx
		}
		if required {
			missing = append(missing, name)
		}
		return -1
	}
	l := &RegistryLayout{
		header:       append([]string(nil), header...),
		identifier:   find(cols.Identifier, true),
		manufacturer: find(cols.Manufacturer, true),
		brand:        find(cols.Brand, true),
		catalog:      find(cols.Catalog, false),
		model:        find(cols.Model, false),
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Input: "registry", Columns: missing}
	}
	for _, field := range dateFields {
		if idx, ok := pos[field]; ok {
			l.dates = append(l.dates, idx)
		}
	}
	if secondaryPattern != nil {
		for idx, name := range header {
			if idx != l.identifier && secondaryPattern.MatchString(strings.TrimSpace(name)) {
				l.secondary = append(l.secondary, idx)
			}
		}
	}
	return l, nil
}

// HasSecondary reports whether any secondary identifier columns exist.
func (l *RegistryLayout) HasSecondary() bool { return len(l.secondary) > 0 }

// SecondaryColumns returns the names of the secondary identifier columns.
func (l *RegistryLayout) SecondaryColumns() []string {
	names := make([]string, 0, len(l.secondary))
	for _, idx := range l.secondary {
		names = append(names, l.header[idx])
	}
	return names
}

// Record decodes one registry row. Null secondary cells are dropped.
func (l *RegistryLayout) Record(values []string) RegistryRecord {
	rec := RegistryRecord{
		Identifier:   cell(values, l.identifier),
		Manufacturer: cell(values, l.manufacturer),
		Brand:        cell(values, l.brand),
		Catalog:      cell(values, l.catalog),
		Model:        cell(values, l.model),
	}
	for _, idx := range l.dates {
		if v := cell(values, idx); v != "" {
			rec.PublishDate = v
			break
		}
	}
	for _, idx := range l.secondary {
		if v := cell(values, idx); v != "" {
			rec.Secondary = append(rec.Secondary, v)
		}
	}
	return rec
}

func positions(header []string) map[string]int {
	pos := make(map[string]int, len(header))
	for idx, name := range header {
		name = strings.TrimSpace(name)
		if _, dup := pos[name]; !dup {
			pos[name] = idx
		}
	}
	return pos
}

func cell(values []string, idx int) string {
	if idx < 0 || idx >= len(values) {
		return ""
	}
	return strings.TrimSpace(values[idx])
}

func padded(values []string, width int) []string {
	out := make([]string, width)
	copy(out, values)
	return out
}
