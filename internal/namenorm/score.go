package namenorm

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Score returns the similarity of two manufacturer names on a 0-100 scale.
// Names with identical keys score 100; names whose keys are both empty score 0.
func Score(a, b string) float64 {
	return newCandidate(a).score(newCandidate(b))
}

type candidate struct {
	name   string
	key    string
	sorted string
	length int
}

func newCandidate(name string) candidate {
	tokens := keyTokens(name)
	key := Key(name)
	return candidate{
		name:   name,
		key:    key,
		sorted: sortedKey(tokens),
		length: utf8.RuneCountInString(key),
	}
}

func (c candidate) score(other candidate) float64 {
	if c.key == "" || other.key == "" {
		return 0
	}
	if c.key == other.key {
		return 100
	}
	plain := ratio(c.key, other.key, c.length, other.length)
	if c.sorted == c.key && other.sorted == other.key {
		return plain
	}
	if s := ratio(c.sorted, other.sorted, c.length, other.length); s > plain {
		return s
	}
	return plain
}

// upperBound is the best ratio two keys of these lengths could reach.
func upperBound(la, lb int) float64 {
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	return 100 * (1 - float64(diff)/float64(longest))
}

func ratio(a, b string, la, lb int) float64 {
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(dist)/float64(longest))
}
