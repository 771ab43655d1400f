package udimap

import "devicelink/internal/device"

// MatchType labels how a raw identifier was resolved.
type MatchType string

const (
	MatchDirect    MatchType = "direct"
	MatchSecondary MatchType = "secondary"
	MatchNone      MatchType = "no_match"
)

// Mapping is the resolution of one raw identifier.
type Mapping struct {
	Raw          string
	Identifier   string
	Manufacturer string
	Brand        string
	Model        string
	Catalog      string
	Type         MatchType
}

// Matched reports whether the identifier resolved to a registry entry.
func (m Mapping) Matched() bool { return m.Type == MatchDirect || m.Type == MatchSecondary }

// Stats counts mapping outcomes.
type Stats struct {
	Distinct  int
	Direct    int
	Secondary int
	Ambiguous int
	NoMatch   int
}

// Table is the read-only identifier mapping.
type Table struct {
	entries map[string]Mapping
	stats   Stats
}

// Lookup returns the mapping for a raw identifier. Null identifiers never map.
func (t *Table) Lookup(raw string) (Mapping, bool) {
	if t == nil {
		return Mapping{}, false
	}
	m, ok := t.entries[device.Clean(raw)]
	return m, ok
}

// Len is the number of distinct identifiers in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Stats returns mapping counters.
func (t *Table) Stats() Stats {
	if t == nil {
		return Stats{}
	}
	return t.stats
}
