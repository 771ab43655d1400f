package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"devicelink/internal/errs"
	"devicelink/internal/logging"
	"devicelink/internal/pipeline"
	"devicelink/internal/testsupport"
)

type cliTestEnv struct {
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	events := testsupport.WriteCSV(t, filepath.Join(base, "events.csv"), testsupport.EventHeader, testsupport.EventRows(
		testsupport.EventRow{ReportID: "E1", Identifier: "D1", Manufacturer: "Acme Corp"},
		testsupport.EventRow{ReportID: "E2", Identifier: "S1", Manufacturer: "Acme Corp"},
		testsupport.EventRow{ReportID: "E3", Manufacturer: "ACME CORP", Brand: "Widget", Catalog: "C1"},
	))
	registry := testsupport.WriteCSV(t, filepath.Join(base, "registry.csv"), testsupport.RegistryHeader, testsupport.RegistryRows(
		testsupport.RegistryRow{Identifier: "D1", Manufacturer: "Acme Corp", Brand: "Widget", Catalog: "C1", Model: "M1", Secondary: []string{"S1"}},
	))

	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
workspace_dir = %q
log_dir = %q

[inputs.events]
path = %q

[inputs.registry]
path = %q

[pipeline]
chunk_size = 2
workers = 2

[logging]
level = "error"
`, filepath.Join(base, "workspace"), filepath.Join(base, "logs"), events, registry)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}

	out, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("validate sample: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestRunThenReport(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "Resolved rows")
	requireContains(t, out, "udi_secondary")

	out, err = runCLI(t, []string{"report"}, env.configPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "udi_direct")
	requireContains(t, out, "mfr_full_single")
}

func TestRunJSONSummary(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"run", "--json", "--fresh"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var summary struct {
		EventRows    int64
		ResolvedRows int64
	}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if summary.EventRows != 3 || summary.ResolvedRows != 3 {
		t.Fatalf("rows got %d/%d want 3/3", summary.EventRows, summary.ResolvedRows)
	}
}

func TestRunInputFlagOverride(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(env.baseDir, "nope.csv")

	_, err := runCLI(t, []string{"run", "--events", missing}, env.configPath)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found for overridden input, got %v", err)
	}
}

func TestReportWithoutRuns(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := runCLI(t, []string{"report"}, env.configPath)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInspect(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"inspect", "identifier", "S1", "D1", "ZZZ"}, env.configPath)
	if err != nil {
		t.Fatalf("inspect identifier: %v", err)
	}
	requireContains(t, out, "rows=1 identifiers=1 duplicates=0")
	requireContains(t, out, "secondary")
	requireContains(t, out, "direct")
	requireContains(t, out, "unknown")

	out, err = runCLI(t, []string{"inspect", "manufacturer", "ACME CORP"}, env.configPath)
	if err != nil {
		t.Fatalf("inspect manufacturer: %v", err)
	}
	requireContains(t, out, "Acme Corp")
}

func TestScheduleNeedsCron(t *testing.T) {
	env := setupCLITestEnv(t)

	_, err := runCLI(t, []string{"schedule"}, env.configPath)
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

// recordingRunner remembers the outcome of every run a scheduled job starts.
type recordingRunner struct {
	runner    *pipeline.Runner
	summaries []*pipeline.Summary
	errs      []error
}

func (r *recordingRunner) Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Summary, error) {
	summary, err := r.runner.Run(ctx, opts)
	r.summaries = append(r.summaries, summary)
	r.errs = append(r.errs, err)
	return summary, err
}

func TestScheduledJobRebuildsAfterInputChange(t *testing.T) {
	dir := t.TempDir()
	events := testsupport.WriteCSV(t, filepath.Join(dir, "events.csv"), testsupport.EventHeader, testsupport.EventRows(
		testsupport.EventRow{ReportID: "E1", Identifier: "D1", Manufacturer: "Acme Corp"},
	))
	registry := testsupport.WriteCSV(t, filepath.Join(dir, "registry.csv"), testsupport.RegistryHeader, testsupport.RegistryRows(
		testsupport.RegistryRow{Identifier: "D1", Manufacturer: "Acme Corp", Brand: "Widget", Catalog: "C1", Model: "M1"},
	))
	cfg := testsupport.NewConfig(t, testsupport.WithInputs(events, registry))

	tests := []struct {
		name          string
		freshOnChange bool
		wantErr       error
		wantRows      int64
	}{
		{"rebuilds when enabled", true, nil, 3},
		{"fails when disabled", false, errs.ErrConfiguration, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *cfg
			cfg.Paths.WorkspaceDir = filepath.Join(t.TempDir(), "workspace")
			testsupport.WriteCSV(t, events, testsupport.EventHeader, testsupport.EventRows(
				testsupport.EventRow{ReportID: "E1", Identifier: "D1", Manufacturer: "Acme Corp"},
			))
			rec := &recordingRunner{runner: pipeline.New(&cfg, nil)}
			job := newScheduledJob(context.Background(), rec, logging.NewNop(),
				pipeline.RunOptions{FreshOnChange: tc.freshOnChange})

			job()
			testsupport.WriteCSV(t, events, testsupport.EventHeader, testsupport.EventRows(
				testsupport.EventRow{ReportID: "E1", Identifier: "D1", Manufacturer: "Acme Corp"},
				testsupport.EventRow{ReportID: "E2", Identifier: "D1", Manufacturer: "Acme Corp"},
				testsupport.EventRow{ReportID: "E3", Manufacturer: "Acme Corp", Brand: "Widget", Catalog: "C1"},
			))
			job()

			if len(rec.errs) != 2 {
				t.Fatalf("runs got %d want 2", len(rec.errs))
			}
			if rec.errs[0] != nil {
				t.Fatalf("first tick: %v", rec.errs[0])
			}
			if tc.wantErr != nil {
				if !errors.Is(rec.errs[1], tc.wantErr) {
					t.Fatalf("second tick got %v want %v", rec.errs[1], tc.wantErr)
				}
				return
			}
			if rec.errs[1] != nil {
				t.Fatalf("second tick: %v", rec.errs[1])
			}
			if got := rec.summaries[1].ResolvedRows; got != tc.wantRows {
				t.Fatalf("resolved rows got %d want %d", got, tc.wantRows)
			}
			if rec.summaries[1].Resumed {
				t.Fatal("rebuilt run reported as resumed")
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.Wrap(errs.ErrValidation, "", "x", "", nil), 2},
		{errs.Wrap(errs.ErrConfiguration, "", "x", "", nil), 2},
		{errs.Wrap(errs.ErrTransient, "", "x", "", nil), 75},
		{errors.New("boom"), 1},
	}
	for _, tc := range tests {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v) got %d want %d", tc.err, got, tc.want)
		}
	}
}

func TestCheck(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"check"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	requireContains(t, out, "Registry input")
	requireContains(t, out, "[OK]")

	out, err = runCLI(t, []string{"check", "--registry", filepath.Join(env.baseDir, "missing.csv")}, env.configPath)
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	requireContains(t, out, "[FAIL]")
}
