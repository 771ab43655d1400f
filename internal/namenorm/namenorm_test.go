package namenorm_test

import (
	"context"
	"math"
	"testing"

	"devicelink/internal/namenorm"
)

func TestKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ACME INC", "acme"},
		{"Acme, Inc.", "acme"},
		{"Médtronic Co. Ltd", "medtronic"},
		{"  Boston-Scientific   CORPORATION ", "boston scientific"},
		{"CO", "co"},
		{"Inc Devices", "inc devices"},
		{"", ""},
		{"---", ""},
	}
	for _, tc := range tests {
		if got := namenorm.Key(tc.in); got != tc.want {
			t.Fatalf("Key(%q) got %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"legal form ignored", "ACME INC", "Acme", 100},
		{"token order ignored", "Boston Scientific Corp", "Scientific Boston", 100},
		{"one edit", "Acme Medical", "Acme Medica", 100 * (1 - 1.0/12)},
		{"empty", "", "Acme", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := namenorm.Score(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("Score(%q, %q) got %v want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestBuildMapsToRegistryNames(t *testing.T) {
	events := []string{"ACME INC", "Medtronic", "Zeta Labs", "Acme Medica", "", "ACME INC"}
	registry := []string{"Acme", "MEDTRONIC INC", "Medtronic Inc", "Acme Medical"}

	aliases, err := namenorm.Build(context.Background(), events, registry, namenorm.Options{Threshold: 90, Workers: 3})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tests := map[string]string{
		"ACME INC":    "Acme",
		"Medtronic":   "MEDTRONIC INC",
		"Zeta Labs":   "Zeta Labs",
		"Acme Medica": "Acme Medical",
		" ACME INC ":  "Acme",
		"":            "",
		"Unseen Co":   "Unseen Co",
	}
	for raw, want := range tests {
		if got := aliases.Canonical(raw); got != want {
			t.Fatalf("Canonical(%q) got %q want %q", raw, got, want)
		}
	}
	if aliases.Len() != 4 {
		t.Fatalf("expected 4 distinct names, got %d", aliases.Len())
	}
	if aliases.Changed() != 3 {
		t.Fatalf("expected 3 changed names, got %d", aliases.Changed())
	}
}

func TestBuildTieBreaksOnSmallestName(t *testing.T) {
	aliases, err := namenorm.Build(context.Background(), []string{"Acme"}, []string{"Acmf", "Acmd"}, namenorm.Options{Threshold: 70})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := aliases.Canonical("Acme"); got != "Acmd" {
		t.Fatalf("got %q want %q", got, "Acmd")
	}
}

func TestBuildIsOrderIndependent(t *testing.T) {
	events := []string{"Acme Medica", "Beta Surgical Inc", "Gamma", "Acme", "Beta Surgicl"}
	registry := []string{"Beta Surgical", "Acme Medical", "Acme", "Gamma Corp"}
	reversed := func(in []string) []string {
		out := make([]string, len(in))
		for i, v := range in {
			out[len(in)-1-i] = v
		}
		return out
	}

	first, err := namenorm.Build(context.Background(), events, registry, namenorm.Options{Workers: 1})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := namenorm.Build(context.Background(), reversed(events), reversed(registry), namenorm.Options{Workers: 8})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, name := range events {
		if first.Canonical(name) != second.Canonical(name) {
			t.Fatalf("%q mapped to %q and %q", name, first.Canonical(name), second.Canonical(name))
		}
	}
}

func TestBuildEmptyInputsIsIdentity(t *testing.T) {
	aliases, err := namenorm.Build(context.Background(), nil, []string{"Acme"}, namenorm.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if aliases.Len() != 0 || aliases.Canonical("ACME INC") != "ACME INC" {
		t.Fatalf("expected identity mapping, got %v", aliases.Pairs())
	}

	aliases, err = namenorm.Build(context.Background(), []string{"ACME INC"}, nil, namenorm.Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if aliases.Canonical("ACME INC") != "ACME INC" {
		t.Fatalf("expected self mapping, got %q", aliases.Canonical("ACME INC"))
	}
}

func TestBuildHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := namenorm.Build(ctx, []string{"Acme"}, []string{"Acme"}, namenorm.Options{}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestBestMatch(t *testing.T) {
	m := namenorm.BestMatch("acme inc", []string{"Beta", "ACME"}, 90)
	if m.Name != "ACME" || m.Score != 100 {
		t.Fatalf("unexpected match %+v", m)
	}
	if m := namenorm.BestMatch("Zeta", []string{"Beta"}, 90); m.Name != "" {
		t.Fatalf("expected no match, got %+v", m)
	}
}
