package preflight

import (
	"context"
	"path/filepath"

	"devicelink/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes all applicable preflight checks for the given config.
// bucket checks object storage when export goes to S3; nil skips it.
func RunAll(ctx context.Context, cfg *config.Config, bucket HeadBucketAPI) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Workspace directory", cfg.Paths.WorkspaceDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckInput(ctx, "Event input", cfg.Inputs.Events),
		CheckInput(ctx, "Registry input", cfg.Inputs.Registry),
	}

	switch {
	case cfg.ExportsToS3():
		if bucket != nil {
			results = append(results, CheckBucket(ctx, bucket, cfg.Export.S3Bucket))
		}
	case cfg.Export.Enabled:
		results = append(results, CheckDirectoryAccess("Export directory", cfg.Export.Dir))
	}

	if path := cfg.Metrics.TextfilePath; path != "" {
		results = append(results, CheckDirectoryAccess("Metrics directory", filepath.Dir(path)))
	}
	return results
}
