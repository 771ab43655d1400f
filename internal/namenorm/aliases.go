package namenorm

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"devicelink/internal/logging"
)

// DefaultThreshold is the minimum score for a name to adopt a registry name.
const DefaultThreshold = 90

// Options tunes Build.
type Options struct {
	Threshold float64
	Workers   int
	Logger    *slog.Logger
}

// Aliases maps raw manufacturer names to canonical names. The zero value maps
// every name to itself. Aliases is immutable and safe for concurrent use.
type Aliases struct {
	canonical map[string]string
}

// Canonical returns the canonical name for raw. Names outside the mapping and
// null names map to themselves (trimmed).
func (a Aliases) Canonical(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return ""
	}
	if mapped, ok := a.canonical[name]; ok {
		return mapped
	}
	return name
}

// Len returns the number of mapped names.
func (a Aliases) Len() int { return len(a.canonical) }

// Changed returns how many names map to a different canonical name.
func (a Aliases) Changed() int {
	n := 0
	for raw, canonical := range a.canonical {
		if raw != canonical {
			n++
		}
	}
	return n
}

// Pairs returns the mapping sorted by raw name.
func (a Aliases) Pairs() [][2]string {
	out := make([][2]string, 0, len(a.canonical))
	for raw, canonical := range a.canonical {
		out = append(out, [2]string{raw, canonical})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Match is the best registry name for one raw name.
type Match struct {
	Name  string
	Score float64
}

// Build maps every distinct event-side name to the best-scoring registry name
// at or above the threshold, or to itself. Equal scores resolve to the
// lexicographically smallest registry name, so the result does not depend on
// input order or worker scheduling.
func Build(ctx context.Context, eventNames, registryNames []string, opts Options) (Aliases, error) {
	logger := logging.NewComponentLogger(opts.Logger, "namenorm")
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	events := distinct(eventNames)
	registry := distinct(registryNames)
	canonical := make(map[string]string, len(events))
	if len(events) == 0 {
		return Aliases{canonical: canonical}, nil
	}

	m := newMatcher(registry)
	results := make([]string, len(events))
	workers := max(opts.Workers, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range events {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			best := m.best(name, threshold)
			if best.Name == "" {
				results[i] = name
			} else {
				results[i] = best.Name
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Aliases{}, err
	}
	for i, name := range events {
		canonical[name] = results[i]
	}
	aliases := Aliases{canonical: canonical}
	logger.Info("manufacturer aliases built",
		logging.Int("event_names", len(events)),
		logging.Int("registry_names", len(registry)),
		logging.Int("mapped", aliases.Changed()),
		logging.Float64("threshold", threshold),
	)
	return aliases, nil
}

// BestMatch scores name against candidates and returns the best one at or
// above threshold. An empty Match means nothing cleared the threshold.
func BestMatch(name string, candidates []string, threshold float64) Match {
	return newMatcher(distinct(candidates)).best(strings.TrimSpace(name), threshold)
}

type matcher struct {
	candidates []candidate
	byKey      map[string][]string
}

// newMatcher expects distinct names; it sorts them so ties resolve to the
// smallest name.
func newMatcher(names []string) *matcher {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	m := &matcher{
		candidates: make([]candidate, 0, len(sorted)),
		byKey:      make(map[string][]string, len(sorted)),
	}
	for _, name := range sorted {
		c := newCandidate(name)
		m.candidates = append(m.candidates, c)
		if c.key != "" {
			m.byKey[c.key] = append(m.byKey[c.key], name)
		}
	}
	return m
}

func (m *matcher) best(name string, threshold float64) Match {
	query := newCandidate(name)
	if query.key == "" {
		return Match{}
	}
	if exact := m.byKey[query.key]; len(exact) > 0 {
		return Match{Name: exact[0], Score: 100}
	}
	var best Match
	for _, c := range m.candidates {
		if c.key == "" || upperBound(query.length, c.length) < threshold {
			continue
		}
		score := query.score(c)
		if score < threshold {
			continue
		}
		// candidates are sorted, so a strictly greater score is needed to
		// replace an earlier (smaller) name
		if best.Name == "" || score > best.Score {
			best = Match{Name: c.name, Score: score}
		}
	}
	return best
}

func distinct(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
