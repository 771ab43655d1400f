package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PruneRunLogs deletes run-*.log files in dir whose last write is older than
// retentionDays. The active run's log is never removed, and retentionDays <= 0
// keeps everything.
func PruneRunLogs(logger *slog.Logger, dir string, retentionDays int, activeRunID string) {
	if retentionDays <= 0 || strings.TrimSpace(dir) == "" {
		return
	}
	matches, err := filepath.Glob(filepath.Join(dir, "run-*.log"))
	if err != nil {
		return
	}
	active := ""
	if activeRunID != "" {
		active = RunLogPath(dir, activeRunID)
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	pruned := 0
	for _, path := range matches {
		if path == active {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "run log not pruned", "run_log_prune_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check permissions on the log directory"),
				String(FieldImpact, "old run log stays on disk"),
			)
			continue
		}
		pruned++
	}
	if pruned > 0 && logger != nil {
		logger.Info("old run logs pruned",
			Int("files", pruned),
			Int("retention_days", retentionDays),
			String(FieldEventType, "run_logs_pruned"),
		)
	}
}
