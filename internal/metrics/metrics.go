// Package metrics exposes run statistics as Prometheus metrics written to a
// node_exporter textfile-collector file after each run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"devicelink/internal/device"
)

const namespace = "devicelink"

// Recorder collects the metrics of one run on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	chunks        *prometheus.CounterVec
	stageRows     *prometheus.GaugeVec
	matchRows     *prometheus.GaugeVec
	gradeRows     *prometheus.GaugeVec
	lowCompliance prometheus.Gauge
	duration      prometheus.Gauge
	success       prometheus.Gauge
	finished      prometheus.Gauge
}

// NewRecorder registers the devicelink metrics on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_committed_total",
			Help:      "Chunks committed during the last run, by stage.",
		}, []string{"stage"}),
		stageRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_rows",
			Help:      "Rows produced by each stage of the last run.",
		}, []string{"stage"}),
		matchRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "match_source_rows",
			Help:      "Resolved rows by match source in the last run.",
		}, []string{"match_source"}),
		gradeRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "confidence_rows",
			Help:      "Resolved rows by confidence grade in the last run.",
		}, []string{"confidence"}),
		lowCompliance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "low_compliance_manufacturers",
			Help:      "Manufacturers whose missing-identifier rate exceeds the threshold.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run completed, 0 if it failed.",
		}),
		finished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	r.registry.MustRegister(
		r.chunks, r.stageRows, r.matchRows, r.gradeRows,
		r.lowCompliance, r.duration, r.success, r.finished,
	)
	return r
}

// ChunkCommitted counts one committed chunk of stage.
func (r *Recorder) ChunkCommitted(stage string) {
	r.chunks.WithLabelValues(stage).Inc()
}

// StageRows records how many rows a stage produced.
func (r *Recorder) StageRows(stage string, rows int64) {
	r.stageRows.WithLabelValues(stage).Set(float64(rows))
}

// Match adds rows resolved by source at grade to the distributions.
func (r *Recorder) Match(source device.MatchSource, grade device.Confidence, rows int64) {
	r.matchRows.WithLabelValues(string(source)).Add(float64(rows))
	r.gradeRows.WithLabelValues(string(grade)).Add(float64(rows))
}

// LowCompliance records the number of low-compliance manufacturers.
func (r *Recorder) LowCompliance(n int) {
	r.lowCompliance.Set(float64(n))
}

// RunFinished records the outcome of the run.
func (r *Recorder) RunFinished(elapsed time.Duration, runErr error, at time.Time) {
	r.duration.Set(elapsed.Seconds())
	if runErr == nil {
		r.success.Set(1)
	} else {
		r.success.Set(0)
	}
	r.finished.Set(float64(at.Unix()))
}

// WriteTextfile atomically writes the metrics in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
