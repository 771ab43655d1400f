package fallback

import (
	"context"
	"sort"

	"devicelink/internal/device"
	"devicelink/internal/errs"
	"devicelink/internal/relation"
)

// DefaultThreshold is the missing rate above which a manufacturer is
// low-compliance.
const DefaultThreshold = 0.50

// Compliance is the identifier coverage of one canonical manufacturer.
type Compliance struct {
	Manufacturer  string
	Rows          int64
	Missing       int64
	MissingRate   float64
	LowCompliance bool
}

// Tally accumulates per-manufacturer row counts. Rows without a canonical
// manufacturer are not tallied; they can never be low-compliance.
type Tally struct {
	counts map[string]*Compliance
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[string]*Compliance)}
}

// Add counts one resolved record.
func (t *Tally) Add(rec device.ResolvedRecord) {
	name := rec.Event.CanonicalManufacturer
	if name == "" {
		return
	}
	c, ok := t.counts[name]
	if !ok {
		c = &Compliance{Manufacturer: name}
		t.counts[name] = c
	}
	c.Rows++
	if !rec.Event.HasIdentifier() {
		c.Missing++
	}
}

// Merge adds other's counts into t.
func (t *Tally) Merge(other *Tally) {
	for name, oc := range other.counts {
		c, ok := t.counts[name]
		if !ok {
			c = &Compliance{Manufacturer: name}
			t.counts[name] = c
		}
		c.Rows += oc.Rows
		c.Missing += oc.Missing
	}
}

// Report grades the tallied manufacturers against threshold. A rate equal to
// the threshold is not low-compliance.
func (t *Tally) Report(threshold float64) Report {
	rows := make([]Compliance, 0, len(t.counts))
	for _, c := range t.counts {
		out := *c
		if out.Rows > 0 {
			out.MissingRate = float64(out.Missing) / float64(out.Rows)
		}
		out.LowCompliance = out.MissingRate > threshold
		rows = append(rows, out)
	}
	return NewReport(rows)
}

// Report is the compliance table of a run.
type Report struct {
	rows  []Compliance
	index map[string]int
}

// NewReport wraps compliance rows, e.g. ones loaded back from the store.
func NewReport(rows []Compliance) Report {
	sorted := append([]Compliance(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Manufacturer < sorted[j].Manufacturer })
	idx := make(map[string]int, len(sorted))
	for i, c := range sorted {
		idx[c.Manufacturer] = i
	}
	return Report{rows: sorted, index: idx}
}

// Rows returns the compliance rows sorted by manufacturer.
func (r Report) Rows() []Compliance { return append([]Compliance(nil), r.rows...) }

// Lookup returns the compliance row of a manufacturer.
func (r Report) Lookup(manufacturer string) (Compliance, bool) {
	i, ok := r.index[manufacturer]
	if !ok {
		return Compliance{}, false
	}
	return r.rows[i], true
}

// Low reports whether manufacturer is low-compliance.
func (r Report) Low(manufacturer string) bool {
	c, ok := r.Lookup(manufacturer)
	return ok && c.LowCompliance
}

// LowCount returns the number of low-compliance manufacturers.
func (r Report) LowCount() int {
	n := 0
	for _, c := range r.rows {
		if c.LowCompliance {
			n++
		}
	}
	return n
}

// Measure streams resolved rows from src, decoding them with layout, and
// grades each manufacturer's missing rate against threshold.
func Measure(ctx context.Context, src relation.Source, layout *device.EventLayout, threshold float64, batchSize int) (Report, error) {
	tally := NewTally()
	err := src.Scan(ctx, batchSize, func(b relation.Batch) error {
		for _, row := range b.Rows {
			rec, err := layout.Resolved(row)
			if err != nil {
				return err
			}
			tally.Add(rec)
		}
		return nil
	})
	if err != nil {
		return Report{}, errs.Wrap(errs.ErrIO, "fallback", "measure compliance", src.Name(), err)
	}
	return tally.Report(threshold), nil
}
