package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/robfig/cron/v3"
)

var confidenceGrades = map[string]struct{}{
	"HIGH":     {},
	"MEDIUM":   {},
	"LOW":      {},
	"VERY_LOW": {},
}

var inputFormats = map[string]struct{}{
	"":       {},
	"csv":    {},
	"tsv":    {},
	"psv":    {},
	"jsonl":  {},
	"xlsx":   {},
	"sqlite": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateInputs(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if c.Fallback.LowComplianceThreshold < 0 || c.Fallback.LowComplianceThreshold > 1 {
		return errors.New("fallback.low_compliance_threshold must be between 0 and 1")
	}
	if err := ensurePositiveMap(map[string]int{
		"pipeline.chunk_size": c.Pipeline.ChunkSize,
		"pipeline.workers":    c.Pipeline.Workers,
	}); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron: %w", err)
		}
	}
	return nil
}

// ValidateInputs reports whether both inputs are set, which a run needs but
// `config validate` does not.
func (c *Config) ValidateInputs() error {
	if c.Inputs.Events.Path == "" {
		return errors.New("inputs.events.path must be set (or pass --events)")
	}
	if c.Inputs.Registry.Path == "" {
		return errors.New("inputs.registry.path must be set (or pass --registry)")
	}
	return nil
}

func (c *Config) validateInputs() error {
	for name, in := range map[string]Input{
		"inputs.events":   c.Inputs.Events,
		"inputs.registry": c.Inputs.Registry,
	} {
		if _, ok := inputFormats[in.Format]; !ok {
			return fmt.Errorf("%s.format %q is not one of csv, tsv, psv, jsonl, xlsx, sqlite", name, in.Format)
		}
		if in.Delimiter != `\t` && len([]rune(in.Delimiter)) > 1 {
			return fmt.Errorf("%s.delimiter must be a single character", name)
		}
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.SimilarityThreshold < 0 || c.Matching.SimilarityThreshold > 100 {
		return errors.New("matching.similarity_threshold must be between 0 and 100")
	}
	if _, err := regexp.Compile(c.Matching.SecondaryColumnPattern); err != nil {
		return fmt.Errorf("matching.secondary_column_pattern: %w", err)
	}
	if _, ok := confidenceGrades[c.Matching.SecondaryConfidence]; !ok {
		return fmt.Errorf("matching.secondary_confidence %q must be HIGH, MEDIUM, LOW or VERY_LOW", c.Matching.SecondaryConfidence)
	}
	return nil
}

func (c *Config) validateExport() error {
	if !c.Export.Enabled {
		return nil
	}
	if c.Export.Dir == "" && c.Export.S3Bucket == "" {
		return errors.New("export.dir or export.s3_bucket must be set when export.enabled is true")
	}
	if c.Export.S3Bucket != "" && (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		return fmt.Errorf("%s_ACCESS_KEY and %s_SECRET_KEY must be set together", envPrefix, envPrefix)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
