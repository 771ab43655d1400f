package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"devicelink/internal/config"
	"devicelink/internal/device"
	"devicelink/internal/errs"
	"devicelink/internal/pipeline"
	"devicelink/internal/relation"
	"devicelink/internal/testsupport"
)

func registryFixture() [][]string {
	return testsupport.RegistryRows(
		testsupport.RegistryRow{Identifier: "D1", Manufacturer: "Acme Corp", Brand: "Widget", Catalog: "C1", Model: "M1", PublishDate: "2020-01-01", Secondary: []string{"S1", "S7"}},
		testsupport.RegistryRow{Identifier: "D2", Manufacturer: "Acme Corp", Brand: "Gadget", Catalog: "C2", Model: "M2", Secondary: []string{"S7"}},
		testsupport.RegistryRow{Identifier: "D3", Manufacturer: "Beta Inc", Brand: "Pump", Catalog: "P1", Model: "M3"},
		testsupport.RegistryRow{Identifier: "D4", Manufacturer: "Beta Inc", Brand: "Pump", Catalog: "P1", Model: "M4"},
		testsupport.RegistryRow{Identifier: "D7", Manufacturer: "Delta", Brand: "Valve", Catalog: "V1", Model: "M7"},
	)
}

func eventFixture() [][]string {
	return testsupport.EventRows(
		testsupport.EventRow{ReportID: "E1", Identifier: "D1", Manufacturer: "Acme Corp", Brand: "Widget", DateReceived: "2024-01-01"},
		testsupport.EventRow{ReportID: "E2", Identifier: "S1", Manufacturer: "Acme Corp"},
		testsupport.EventRow{ReportID: "E3", Public: "(01)00812345678901(17)251231", Manufacturer: "Zenith Labs", Brand: "Foo"},
		testsupport.EventRow{ReportID: "E4", Manufacturer: "ACME CORP", Brand: "Widget", Catalog: "C1"},
		testsupport.EventRow{ReportID: "E5", Manufacturer: "Beta Inc", Brand: "Pump", Catalog: "P1"},
		testsupport.EventRow{ReportID: "E6", Manufacturer: "Beta Inc", Brand: "Pump", Catalog: "P9"},
		testsupport.EventRow{ReportID: "E7", Manufacturer: "Delta", Brand: "Valve", Catalog: "V9"},
		testsupport.EventRow{ReportID: "E8", Identifier: "S7", Manufacturer: "Omega", Brand: "Thing", Catalog: "T1"},
		testsupport.EventRow{ReportID: "E9", Manufacturer: "Omega", Brand: "Thing", Catalog: "T1"},
	)
}

func newConfig(t *testing.T, opts ...testsupport.ConfigOption) *config.Config {
	t.Helper()
	dir := t.TempDir()
	events := testsupport.WriteCSV(t, filepath.Join(dir, "events.csv"), testsupport.EventHeader, eventFixture())
	registry := testsupport.WriteCSV(t, filepath.Join(dir, "registry.csv"), testsupport.RegistryHeader, registryFixture())
	return testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithInputs(events, registry)}, opts...)...)
}

func runOnce(t *testing.T, cfg *config.Config, opts pipeline.RunOptions) *pipeline.Summary {
	t.Helper()
	summary, err := pipeline.New(cfg, nil).Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return summary
}

// resolvedRows reads the resolved table keyed by report_id.
func resolvedRows(t *testing.T, cfg *config.Config) (map[string]map[string]string, [][]string) {
	t.Helper()
	ctx := context.Background()
	st := testsupport.MustOpenStore(t, cfg)
	header, err := st.OutputColumns(ctx, pipeline.ResolvedTable)
	if err != nil {
		t.Fatalf("OutputColumns: %v", err)
	}
	src, err := st.Source(ctx, pipeline.ResolvedTable)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	byID := make(map[string]map[string]string)
	var ordered [][]string
	err = src.Scan(ctx, 100, func(b relation.Batch) error {
		for _, row := range b.Rows {
			rec := make(map[string]string, len(header))
			for i, col := range header {
				rec[col] = row[i]
			}
			byID[rec["report_id"]] = rec
			ordered = append(ordered, row)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return byID, ordered
}

func TestRunResolvesEveryTier(t *testing.T) {
	cfg := newConfig(t)
	summary := runOnce(t, cfg, pipeline.RunOptions{})
	if summary.EventRows != 9 || summary.ResolvedRows != 9 {
		t.Fatalf("rows got %d/%d want 9/9", summary.EventRows, summary.ResolvedRows)
	}
	if summary.Resumed {
		t.Fatal("first run reported as resumed")
	}

	rows, _ := resolvedRows(t, cfg)
	tests := []struct {
		id         string
		source     device.MatchSource
		confidence device.Confidence
		deviceID   string
		model      string
	}{
		{"E1", device.MatchUDIDirect, device.ConfidenceHigh, "D1", "M1"},
		{"E2", device.MatchUDISecondary, device.ConfidenceMedium, "D1", "M1"},
		{"E3", device.MatchUDINoMatch, device.ConfidenceMedium, "00812345678901", ""},
		{"E4", device.MatchFullSingle, device.ConfidenceMedium, "D1", "M1"},
		{"E5", device.MatchFullMultiple, device.ConfidenceLow, "LOW_Beta Inc_Pump", ""},
		{"E6", device.MatchPartialMultiple, device.ConfidenceLow, "LOW_Beta Inc_Pump", ""},
		{"E7", device.MatchPartialSingle, device.ConfidenceMedium, "D7", "M7"},
		{"E8", device.MatchUDINoMatch, device.ConfidenceMedium, "S7", ""},
		{"E9", device.MatchNone, device.ConfidenceVeryLow, "UNK_Omega_Thing_T1", ""},
	}
	for _, tc := range tests {
		row, ok := rows[tc.id]
		if !ok {
			t.Fatalf("%s missing from resolved output", tc.id)
		}
		if got := row[device.ColMatchSource]; got != string(tc.source) {
			t.Errorf("%s match_source got %q want %q", tc.id, got, tc.source)
		}
		if got := row[device.ColConfidence]; got != string(tc.confidence) {
			t.Errorf("%s confidence got %q want %q", tc.id, got, tc.confidence)
		}
		if got := row[device.ColDeviceVersionID]; got != tc.deviceID {
			t.Errorf("%s device_version_id got %q want %q", tc.id, got, tc.deviceID)
		}
		if got := row[device.ColModelFinal]; got != tc.model {
			t.Errorf("%s model_number_final got %q want %q", tc.id, got, tc.model)
		}
	}

	if got := rows["E3"][device.ColIdentifierSource]; got != string(device.SourceExtracted) {
		t.Fatalf("E3 identifier_source got %q want %q", got, device.SourceExtracted)
	}
	if got := rows["E4"][device.ColManufacturerCanonical]; got != "Acme Corp" {
		t.Fatalf("E4 manufacturer_canonical got %q want %q", got, "Acme Corp")
	}
	if got := rows["E1"][device.ColReportDate]; got != "2024-01-01" {
		t.Fatalf("E1 report_date got %q want %q", got, "2024-01-01")
	}
	if got := rows["E7"][device.ColCatalogFinal]; got != "V9" {
		t.Fatalf("E7 catalog_number_final got %q want %q", got, "V9")
	}
	for id, row := range rows {
		if row[device.ColDeviceVersionID] == "" || row[device.ColConfidence] == "" {
			t.Fatalf("%s left without identity or grade: %v", id, row)
		}
	}
}

func TestRunSummaryAndCompliance(t *testing.T) {
	cfg := newConfig(t)
	summary := runOnce(t, cfg, pipeline.RunOptions{})

	var total int64
	for _, share := range summary.BySource() {
		total += share.Rows
	}
	if total != 9 {
		t.Fatalf("distribution covers %d rows want 9", total)
	}
	grades := summary.ByConfidence()
	if len(grades) == 0 || grades[0].Confidence != device.ConfidenceHigh || grades[0].Rows != 1 {
		t.Fatalf("unexpected grade shares %+v", grades)
	}

	low := summary.LowCompliance()
	if len(low) != 1 || low[0].Manufacturer != "Beta Inc" {
		t.Fatalf("low compliance got %+v want only Beta Inc", low)
	}
	for _, c := range summary.Compliance {
		if c.Manufacturer == "Omega" && c.LowCompliance {
			t.Fatal("a missing rate equal to the threshold must not be low compliance")
		}
	}

	var names []string
	for _, s := range summary.Stages {
		names = append(names, s.Name)
	}
	want := []string{"prepare", "index", "normalize", "map", "resolve", "fallback", "export", "report"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("stages got %v want %v", names, want)
	}
}

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	one := newConfig(t, testsupport.WithWorkers(1), testsupport.WithChunkSize(1))
	many := newConfig(t, testsupport.WithWorkers(4), testsupport.WithChunkSize(1))
	runOnce(t, one, pipeline.RunOptions{})
	runOnce(t, many, pipeline.RunOptions{})

	_, a := resolvedRows(t, one)
	_, b := resolvedRows(t, many)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("outputs differ between worker counts:\n%v\n%v", a, b)
	}
	for i, row := range a {
		if want := "E" + string(rune('1'+i)); row[0] != want {
			t.Fatalf("row %d is %s want %s: output must keep input order", i, row[0], want)
		}
	}
}

func TestRerunResumesFromLedger(t *testing.T) {
	cfg := newConfig(t)
	runOnce(t, cfg, pipeline.RunOptions{})

	st := testsupport.MustOpenStore(t, cfg)
	if err := st.ClearStage(context.Background(), "fallback"); err != nil {
		t.Fatalf("ClearStage: %v", err)
	}
	st.Close()

	summary := runOnce(t, cfg, pipeline.RunOptions{})
	if !summary.Resumed {
		t.Fatal("rerun with unchanged inputs should resume")
	}
	if summary.SkippedChunks != 5 {
		t.Fatalf("skipped chunks got %d want 5", summary.SkippedChunks)
	}
	if summary.EventRows != 9 || summary.ResolvedRows != 9 {
		t.Fatalf("rows got %d/%d want 9/9", summary.EventRows, summary.ResolvedRows)
	}
}

func TestChangedInputNeedsFresh(t *testing.T) {
	cfg := newConfig(t)
	runOnce(t, cfg, pipeline.RunOptions{})

	rows := append(eventFixture(), testsupport.EventRows(testsupport.EventRow{ReportID: "E10", Identifier: "D7"})...)
	testsupport.WriteCSV(t, cfg.Inputs.Events.Path, testsupport.EventHeader, rows)

	_, err := pipeline.New(cfg, nil).Run(context.Background(), pipeline.RunOptions{})
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	summary := runOnce(t, cfg, pipeline.RunOptions{Fresh: true})
	if summary.Resumed || summary.ResolvedRows != 10 {
		t.Fatalf("fresh run got resumed=%v rows=%d", summary.Resumed, summary.ResolvedRows)
	}
	byID, _ := resolvedRows(t, cfg)
	if got := byID["E10"][device.ColMatchSource]; got != string(device.MatchUDIDirect) {
		t.Fatalf("E10 match_source got %q want %q", got, device.MatchUDIDirect)
	}
}

func TestMissingColumnsFailBeforeOutput(t *testing.T) {
	dir := t.TempDir()
	header := []string{"report_id", "udi_di", "manufacturer", "catalog_number", "model_number"}
	events := testsupport.WriteCSV(t, filepath.Join(dir, "events.csv"), header, [][]string{{"E1", "D1", "Acme", "C1", "M1"}})
	registry := testsupport.WriteCSV(t, filepath.Join(dir, "registry.csv"), testsupport.RegistryHeader, registryFixture())
	cfg := testsupport.NewConfig(t, testsupport.WithInputs(events, registry))

	_, err := pipeline.New(cfg, nil).Run(context.Background(), pipeline.RunOptions{})
	if !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "brand") {
		t.Fatalf("error should name the missing column: %v", err)
	}

	st := testsupport.MustOpenStore(t, cfg)
	if _, err := st.OutputColumns(context.Background(), pipeline.ResolvedTable); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("no output table expected, got %v", err)
	}
	run, err := st.LatestRun(context.Background())
	if err != nil || run == nil {
		t.Fatalf("LatestRun: %v %v", run, err)
	}
	if run.Status != "failed" {
		t.Fatalf("run status got %q want failed", run.Status)
	}
}

func TestHeaderOnlyEvents(t *testing.T) {
	dir := t.TempDir()
	events := testsupport.WriteCSV(t, filepath.Join(dir, "events.csv"), testsupport.EventHeader, nil)
	registry := testsupport.WriteCSV(t, filepath.Join(dir, "registry.csv"), testsupport.RegistryHeader, registryFixture())
	cfg := testsupport.NewConfig(t, testsupport.WithInputs(events, registry))

	summary := runOnce(t, cfg, pipeline.RunOptions{})
	if summary.EventRows != 0 || summary.ResolvedRows != 0 {
		t.Fatalf("rows got %d/%d want 0/0", summary.EventRows, summary.ResolvedRows)
	}
	if len(summary.Distribution) != 0 {
		t.Fatalf("distribution got %+v want empty", summary.Distribution)
	}
}

func TestRunExportsPartitions(t *testing.T) {
	cfg := newConfig(t, testsupport.WithExportDir())
	summary := runOnce(t, cfg, pipeline.RunOptions{})
	if len(summary.Partitions) != 5 {
		t.Fatalf("partitions got %d want 5", len(summary.Partitions))
	}

	entries, err := os.ReadDir(cfg.Export.Dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("export files got %d want 5", len(entries))
	}
	var rows int
	for i, entry := range entries {
		records := testsupport.ReadCSV(t, filepath.Join(cfg.Export.Dir, entry.Name()))
		if i == 0 {
			if records[0][0] != "report_id" || records[0][len(records[0])-1] != device.ColConfidence {
				t.Fatalf("unexpected partition header %v", records[0])
			}
		}
		rows += len(records) - 1
	}
	if rows != 9 {
		t.Fatalf("exported rows got %d want 9", rows)
	}

	// a resumed run does not rewrite partitions
	again := runOnce(t, cfg, pipeline.RunOptions{})
	if len(again.Partitions) != 0 {
		t.Fatalf("resumed run rewrote %d partitions", len(again.Partitions))
	}
}

func TestFreshRunReplacesExportedPartitions(t *testing.T) {
	cfg := newConfig(t, testsupport.WithExportDir())
	runOnce(t, cfg, pipeline.RunOptions{})

	testsupport.WriteCSV(t, cfg.Inputs.Events.Path, testsupport.EventHeader, eventFixture()[:2])
	summary := runOnce(t, cfg, pipeline.RunOptions{Fresh: true})
	if summary.ResolvedRows != 2 {
		t.Fatalf("resolved rows got %d want 2", summary.ResolvedRows)
	}

	entries, err := os.ReadDir(cfg.Export.Dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != len(summary.Partitions) {
		t.Fatalf("export files got %d want %d", len(entries), len(summary.Partitions))
	}
	var rows int
	for _, entry := range entries {
		rows += len(testsupport.ReadCSV(t, filepath.Join(cfg.Export.Dir, entry.Name()))) - 1
	}
	if rows != 2 {
		t.Fatalf("exported rows got %d want 2", rows)
	}
}

func TestRunWritesMetricsTextfile(t *testing.T) {
	cfg := newConfig(t, testsupport.WithMetricsFile())
	runOnce(t, cfg, pipeline.RunOptions{})

	data, err := os.ReadFile(cfg.Metrics.TextfilePath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		"devicelink_last_run_success 1",
		`devicelink_match_source_rows{match_source="udi_direct"} 1`,
		"devicelink_low_compliance_manufacturers 1",
		`devicelink_stage_rows{stage="resolve"} 9`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics missing %q:\n%s", want, text)
		}
	}
}

func TestWorkspaceLockRejectsConcurrentRun(t *testing.T) {
	cfg := newConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	lock := flock.New(cfg.LockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock()

	_, err := pipeline.New(cfg, nil).Run(context.Background(), pipeline.RunOptions{})
	if !errors.Is(err, errs.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestSurveyEvents(t *testing.T) {
	cfg := newConfig(t)
	in, err := pipeline.OpenInputs(context.Background(), cfg)
	if err != nil {
		t.Fatalf("OpenInputs: %v", err)
	}
	defer in.Close()

	survey, err := pipeline.SurveyEvents(context.Background(), in, 4)
	if err != nil {
		t.Fatalf("SurveyEvents: %v", err)
	}
	if survey.Rows != 9 {
		t.Fatalf("rows got %d want 9", survey.Rows)
	}
	wantIDs := []string{"00812345678901", "D1", "S1", "S7"}
	if !reflect.DeepEqual(survey.Identifiers, wantIDs) {
		t.Fatalf("identifiers got %v want %v", survey.Identifiers, wantIDs)
	}
	wantNames := []string{"ACME CORP", "Acme Corp", "Beta Inc", "Delta", "Omega", "Zenith Labs"}
	if !reflect.DeepEqual(survey.Manufacturers, wantNames) {
		t.Fatalf("manufacturers got %v want %v", survey.Manufacturers, wantNames)
	}
}

func TestBuildArtifacts(t *testing.T) {
	cfg := newConfig(t)
	art, in, err := pipeline.BuildArtifacts(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("BuildArtifacts: %v", err)
	}
	defer in.Close()

	if got := art.Aliases.Canonical("ACME CORP"); got != "Acme Corp" {
		t.Fatalf("canonical got %q want %q", got, "Acme Corp")
	}
	m, ok := art.Table.Lookup("S1")
	if !ok || m.Identifier != "D1" {
		t.Fatalf("S1 mapping got %+v %v", m, ok)
	}
	if m, _ := art.Table.Lookup("S7"); m.Matched() {
		t.Fatalf("S7 is shared by two devices and must not resolve: %+v", m)
	}
	if art.Indices.Stats().Rows != 5 {
		t.Fatalf("registry rows got %d want 5", art.Indices.Stats().Rows)
	}
}

func TestFingerprintTracksSettings(t *testing.T) {
	cfg := newConfig(t)
	a, err := pipeline.Fingerprint(cfg)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	cfg.Pipeline.Workers = 7
	b, _ := pipeline.Fingerprint(cfg)
	if a != b {
		t.Fatal("worker count must not change the fingerprint")
	}
	cfg.Fallback.LowComplianceThreshold = 0.25
	c, _ := pipeline.Fingerprint(cfg)
	if a == c {
		t.Fatal("fallback threshold must change the fingerprint")
	}

	cfg.Inputs.Events.Path = filepath.Join(t.TempDir(), "missing.csv")
	if _, err := pipeline.Fingerprint(cfg); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
