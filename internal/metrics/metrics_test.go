package metrics_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"devicelink/internal/device"
	"devicelink/internal/metrics"
)

func TestWriteTextfile(t *testing.T) {
	rec := metrics.NewRecorder()
	rec.ChunkCommitted("resolve")
	rec.ChunkCommitted("resolve")
	rec.StageRows("resolve", 42)
	rec.Match(device.MatchUDIDirect, device.ConfidenceHigh, 30)
	rec.Match(device.MatchNone, device.ConfidenceVeryLow, 12)
	rec.LowCompliance(3)
	rec.RunFinished(1500*time.Millisecond, errors.New("boom"), time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "nested", "devicelink.prom")
	if err := rec.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`devicelink_chunks_committed_total{stage="resolve"} 2`,
		`devicelink_stage_rows{stage="resolve"} 42`,
		`devicelink_match_source_rows{match_source="udi_direct"} 30`,
		`devicelink_confidence_rows{confidence="VERY_LOW"} 12`,
		`devicelink_low_compliance_manufacturers 3`,
		`devicelink_last_run_duration_seconds 1.5`,
		`devicelink_last_run_success 0`,
		`devicelink_last_run_timestamp_seconds 1.7e+09`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("textfile missing %q:\n%s", want, text)
		}
	}
}
