package namenorm

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Transformers and casers keep state between calls, so each key gets fresh ones.
func stripAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// legalForms are company-form suffixes ignored when comparing names.
var legalForms = map[string]struct{}{
	"inc": {}, "incorporated": {}, "llc": {}, "corp": {}, "corporation": {},
	"co": {}, "company": {}, "ltd": {}, "limited": {}, "gmbh": {}, "sa": {},
	"ag": {}, "plc": {}, "lp": {}, "srl": {}, "spa": {}, "bv": {}, "nv": {},
	"kg": {}, "ab": {}, "oy": {}, "pty": {}, "sas": {},
}

// Key reduces a manufacturer name to its comparison form.
func Key(name string) string {
	return strings.Join(keyTokens(name), " ")
}

func keyTokens(name string) []string {
	stripped, _, err := transform.String(stripAccents(), name)
	if err != nil {
		stripped = name
	}
	folded := cases.Fold().String(stripped)
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for len(tokens) > 1 {
		if _, ok := legalForms[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// sortedKey is the key with its tokens in lexical order.
func sortedKey(tokens []string) string {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}
