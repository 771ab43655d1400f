package pipeline

import (
	"time"

	"devicelink/internal/device"
	"devicelink/internal/fallback"
	"devicelink/internal/store"
)

// StageResult is the outcome of one completed stage.
type StageResult struct {
	Name     string
	Rows     int64
	Duration time.Duration
}

// Summary describes a finished (or failed) run.
type Summary struct {
	RunID        string
	Fingerprint  string
	Resumed      bool
	EventRows    int64
	ResolvedRows int64
	// SkippedChunks counts chunks found already committed in the ledger.
	SkippedChunks int
	Stages        []StageResult
	Distribution  []store.MatchCount
	Compliance    []fallback.Compliance
	Partitions    []string
	Duration      time.Duration
}

// SourceShare is the number and percentage of rows resolved by one tier.
type SourceShare struct {
	Source  device.MatchSource
	Rows    int64
	Percent float64
}

// GradeShare is the number and percentage of rows at one confidence grade.
type GradeShare struct {
	Confidence device.Confidence
	Rows       int64
	Percent    float64
}

// BySource folds the distribution into per-tier totals in priority order.
// Tiers with no rows are omitted.
func (s *Summary) BySource() []SourceShare {
	totals := make(map[device.MatchSource]int64)
	var all int64
	for _, c := range s.Distribution {
		totals[c.MatchSource] += c.Rows
		all += c.Rows
	}
	out := make([]SourceShare, 0, len(totals))
	for _, src := range device.MatchSources {
		if n := totals[src]; n > 0 {
			out = append(out, SourceShare{Source: src, Rows: n, Percent: percent(n, all)})
		}
	}
	return out
}

// ByConfidence folds the distribution into per-grade totals, highest first.
func (s *Summary) ByConfidence() []GradeShare {
	totals := make(map[device.Confidence]int64)
	var all int64
	for _, c := range s.Distribution {
		totals[c.Confidence] += c.Rows
		all += c.Rows
	}
	out := make([]GradeShare, 0, len(totals))
	for _, grade := range device.Confidences {
		if n := totals[grade]; n > 0 {
			out = append(out, GradeShare{Confidence: grade, Rows: n, Percent: percent(n, all)})
		}
	}
	return out
}

// LowCompliance returns the manufacturers flagged as low compliance.
func (s *Summary) LowCompliance() []fallback.Compliance {
	var out []fallback.Compliance
	for _, c := range s.Compliance {
		if c.LowCompliance {
			out = append(out, c)
		}
	}
	return out
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}
