package config

import (
	"fmt"
	"runtime"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeInputs(); err != nil {
		return err
	}
	c.normalizeColumns()
	c.normalizeMatching()
	c.normalizePipeline()
	if err := c.normalizeExport(); err != nil {
		return err
	}
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	c.Schedule.Cron = strings.TrimSpace(c.Schedule.Cron)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		c.Paths.WorkspaceDir = defaultWorkspaceDir
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.LogRetentionDays < 0 {
		c.Paths.LogRetentionDays = 0
	}
	return nil
}

func (c *Config) normalizeInputs() error {
	for _, in := range []struct {
		name  string
		input *Input
	}{
		{"inputs.events", &c.Inputs.Events},
		{"inputs.registry", &c.Inputs.Registry},
	} {
		var err error
		if in.input.Path, err = expandPath(strings.TrimSpace(in.input.Path)); err != nil {
			return fmt.Errorf("%s.path: %w", in.name, err)
		}
		in.input.Format = strings.ToLower(strings.TrimSpace(in.input.Format))
		in.input.Sheet = strings.TrimSpace(in.input.Sheet)
		in.input.Table = strings.TrimSpace(in.input.Table)
	}
	return nil
}

func (c *Config) normalizeColumns() {
	defaults := Default().Columns
	fill := func(value *string, fallback string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = fallback
		}
	}
	fill(&c.Columns.Events.Identifier, defaults.Events.Identifier)
	fill(&c.Columns.Events.Public, defaults.Events.Public)
	fill(&c.Columns.Events.Manufacturer, defaults.Events.Manufacturer)
	fill(&c.Columns.Events.Brand, defaults.Events.Brand)
	fill(&c.Columns.Events.Catalog, defaults.Events.Catalog)
	fill(&c.Columns.Events.Model, defaults.Events.Model)
	fill(&c.Columns.Registry.Identifier, defaults.Registry.Identifier)
	fill(&c.Columns.Registry.Manufacturer, defaults.Registry.Manufacturer)
	fill(&c.Columns.Registry.Brand, defaults.Registry.Brand)
	fill(&c.Columns.Registry.Catalog, defaults.Registry.Catalog)
	fill(&c.Columns.Registry.Model, defaults.Registry.Model)
}

func (c *Config) normalizeMatching() {
	c.Matching.SecondaryColumnPattern = strings.TrimSpace(c.Matching.SecondaryColumnPattern)
	if c.Matching.SecondaryColumnPattern == "" {
		c.Matching.SecondaryColumnPattern = defaultSecondaryColumnPattern
	}
	c.Matching.SecondaryConfidence = strings.ToUpper(strings.TrimSpace(c.Matching.SecondaryConfidence))
	if c.Matching.SecondaryConfidence == "" {
		c.Matching.SecondaryConfidence = defaultSecondaryConfidence
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.ChunkSize <= 0 {
		c.Pipeline.ChunkSize = defaultChunkSize
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = runtime.NumCPU()
	}
	c.Pipeline.EventDateFields = cleanList(c.Pipeline.EventDateFields, defaultEventDateFields)
	c.Pipeline.RegistryDateFields = cleanList(c.Pipeline.RegistryDateFields, defaultRegistryDateFields)
}

func (c *Config) normalizeExport() error {
	var err error
	if c.Export.Dir, err = expandPath(strings.TrimSpace(c.Export.Dir)); err != nil {
		return fmt.Errorf("export.dir: %w", err)
	}
	c.Export.S3Bucket = strings.TrimSpace(c.Export.S3Bucket)
	c.Export.S3Prefix = strings.Trim(strings.TrimSpace(c.Export.S3Prefix), "/")
	c.Export.S3Endpoint = strings.TrimRight(strings.TrimSpace(c.Export.S3Endpoint), "/")
	c.Export.S3Region = strings.TrimSpace(c.Export.S3Region)
	if c.Export.S3Region == "" {
		c.Export.S3Region = defaultS3Region
	}
	return nil
}

func (c *Config) normalizeMetrics() error {
	var err error
	if c.Metrics.TextfilePath, err = expandPath(strings.TrimSpace(c.Metrics.TextfilePath)); err != nil {
		return fmt.Errorf("metrics.textfile_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func cleanList(values, fallback []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
