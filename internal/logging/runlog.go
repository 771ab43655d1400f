package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// RunLogPath returns the per-run JSON log file inside dir.
func RunLogPath(dir, runID string) string {
	return filepath.Join(dir, "run-"+runID+".log")
}

// RunLog is the JSON log file kept for a single pipeline run. Records sent to
// a logger returned by Attach land both in the process log and in the file.
type RunLog struct {
	Path    string
	file    *os.File
	handler slog.Handler
}

// OpenRunLog creates (or appends to) the run log for runID inside dir.
func OpenRunLog(dir, runID, level string) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure run log directory: %w", err)
	}
	path := RunLogPath(dir, runID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(level))
	return &RunLog{Path: path, file: file, handler: newJSONHandler(file, levelVar, false)}, nil
}

// Handler returns the handler writing to the run log file.
func (l *RunLog) Handler() slog.Handler {
	if l == nil {
		return NoopHandler{}
	}
	return l.handler
}

// Attach returns a logger that writes to base and to the run log. A nil base
// logs to the run log only.
func (l *RunLog) Attach(base *slog.Logger) *slog.Logger {
	if l == nil {
		return base
	}
	if base == nil {
		return slog.New(l.handler)
	}
	return slog.New(newTeeHandler(base.Handler(), l.handler))
}

// Close flushes and closes the run log file.
func (l *RunLog) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil && !errors.Is(err, os.ErrClosed) {
		_ = l.file.Close()
		return fmt.Errorf("sync run log: %w", err)
	}
	return l.file.Close()
}

// teeHandler sends every record to both the process handler and the run log.
// Either side may have its own level.
type teeHandler struct {
	process slog.Handler
	run     slog.Handler
}

func newTeeHandler(process, run slog.Handler) slog.Handler {
	switch {
	case process == nil && run == nil:
		return NoopHandler{}
	case process == nil:
		return run
	case run == nil:
		return process
	}
	return &teeHandler{process: process, run: run}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.process.Enabled(ctx, level) || h.run.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var processErr, runErr error
	if h.process.Enabled(ctx, record.Level) {
		// the run handler gets the original record, so the process side
		// must not share its attr storage
		processErr = h.process.Handle(ctx, record.Clone())
	}
	if h.run.Enabled(ctx, record.Level) {
		runErr = h.run.Handle(ctx, record)
	}
	return errors.Join(processErr, runErr)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{process: h.process.WithAttrs(attrs), run: h.run.WithAttrs(attrs)}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{process: h.process.WithGroup(name), run: h.run.WithGroup(name)}
}
