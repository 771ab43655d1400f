package udimap_test

import (
	"context"
	"regexp"
	"testing"

	"devicelink/internal/device"
	"devicelink/internal/index"
	"devicelink/internal/relation"
	"devicelink/internal/udimap"
)

var registryHeader = []string{"udi_di", "manufacturer", "brand", "catalog_number", "model_number", "identifiers_0_id", "identifiers_1_id"}

func buildIndex(t *testing.T, header []string, rows [][]string) (*index.Indices, relation.Source) {
	t.Helper()
	src := relation.NewMemorySource("registry", header, rows)
	ix, err := index.Build(context.Background(), src, index.Options{
		Columns: device.RegistryColumns{
			Identifier:   "udi_di",
			Manufacturer: "manufacturer",
			Brand:        "brand",
			Catalog:      "catalog_number",
			Model:        "model_number",
		},
		SecondaryPattern: regexp.MustCompile(`^identifiers_.*_id$`),
	})
	if err != nil {
		t.Fatalf("index.Build: %v", err)
	}
	return ix, src
}

func TestMapDirectSecondaryAndNoMatch(t *testing.T) {
	ix, src := buildIndex(t, registryHeader, [][]string{
		{"UDI001", "Acme", "X", "C1", "M1", "SEC100", ""},
		{"UDI002", "Acme", "Y", "C2", "M2", "", "SEC200"},
	})
	table, err := udimap.Map(context.Background(), []string{"UDI001", "SEC200", "NOPE", ""}, ix, src, udimap.Options{ChunkSize: 1})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	direct, ok := table.Lookup("UDI001")
	if !ok || direct.Type != udimap.MatchDirect || direct.Model != "M1" {
		t.Fatalf("unexpected direct mapping %+v", direct)
	}
	sec, ok := table.Lookup("SEC200")
	if !ok || sec.Type != udimap.MatchSecondary || sec.Identifier != "UDI002" || sec.Brand != "Y" {
		t.Fatalf("unexpected secondary mapping %+v", sec)
	}
	none, ok := table.Lookup("NOPE")
	if !ok || none.Type != udimap.MatchNone || none.Identifier != "NOPE" {
		t.Fatalf("unexpected no_match mapping %+v", none)
	}
	if _, ok := table.Lookup(""); ok {
		t.Fatal("null identifier must not be mapped")
	}
	want := udimap.Stats{Distinct: 3, Direct: 1, Secondary: 1, NoMatch: 1}
	if got := table.Stats(); got != want {
		t.Fatalf("stats got %+v want %+v", got, want)
	}
}

func TestSecondaryBehindTwoPrimariesNeverResolves(t *testing.T) {
	ix, src := buildIndex(t, registryHeader, [][]string{
		{"UDI001", "Acme", "X", "C1", "M1", "SEC001", ""},
		{"UDI003", "Acme", "X", "C3", "M3", "", ""},
		{"UDI002", "Acme", "X", "C2", "M2", "", "SEC001"},
	})
	for _, chunk := range []int{1, 2, 100} {
		table, err := udimap.Map(context.Background(), []string{"SEC001"}, ix, src, udimap.Options{ChunkSize: chunk})
		if err != nil {
			t.Fatalf("Map: %v", err)
		}
		m, _ := table.Lookup("SEC001")
		if m.Type != udimap.MatchNone {
			t.Fatalf("chunk %d: match type got %q want %q", chunk, m.Type, udimap.MatchNone)
		}
		if table.Stats().Ambiguous != 1 {
			t.Fatalf("chunk %d: expected one ambiguous identifier, got %+v", chunk, table.Stats())
		}
	}
}

func TestSecondaryRepeatedForSamePrimaryResolves(t *testing.T) {
	ix, src := buildIndex(t, registryHeader, [][]string{
		{"UDI001", "Acme", "X", "C1", "M1", "SEC001", "SEC001"},
		{"UDI001", "Acme", "X", "C1", "M1-dup", "SEC001", ""},
	})
	table, err := udimap.Map(context.Background(), []string{"SEC001"}, ix, src, udimap.Options{ChunkSize: 1})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	m, _ := table.Lookup("SEC001")
	if m.Type != udimap.MatchSecondary || m.Identifier != "UDI001" || m.Model != "M1" {
		t.Fatalf("unexpected mapping %+v", m)
	}
}

func TestMapWithoutSecondaryColumns(t *testing.T) {
	header := []string{"udi_di", "manufacturer", "brand"}
	ix, src := buildIndex(t, header, [][]string{{"UDI001", "Acme", "X"}})
	table, err := udimap.Map(context.Background(), []string{"SEC001"}, ix, src, udimap.Options{})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if m, _ := table.Lookup("SEC001"); m.Type != udimap.MatchNone {
		t.Fatalf("match type got %q want %q", m.Type, udimap.MatchNone)
	}
}
