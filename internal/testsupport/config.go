package testsupport

import (
	"path/filepath"
	"testing"

	"devicelink/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields, applies any provided options and finalizes the
// result.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Pipeline.ChunkSize = 2
	cfgVal.Pipeline.Workers = 2
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Finalize(); err != nil {
		t.Fatalf("finalize test config: %v", err)
	}
	return builder.cfg
}

// WithInputs points the config at event and registry files.
func WithInputs(events, registry string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Inputs.Events.Path = events
		b.cfg.Inputs.Registry.Path = registry
	}
}

// WithChunkSize overrides the pipeline chunk size.
func WithChunkSize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.ChunkSize = n
	}
}

// WithWorkers overrides the pipeline worker count.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Workers = n
	}
}

// WithExportDir enables export to a directory under the test root.
func WithExportDir() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Export.Enabled = true
		b.cfg.Export.Dir = filepath.Join(b.baseDir, "export")
	}
}

// WithMetricsFile enables the Prometheus textfile under the test root.
func WithMetricsFile() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Metrics.TextfilePath = filepath.Join(b.baseDir, "metrics", "devicelink.prom")
	}
}

// WithConfig applies an arbitrary mutation.
func WithConfig(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkspaceDir)
}
