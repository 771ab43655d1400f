package errs_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"devicelink/internal/errs"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("disk full")
	err := errs.Wrap(errs.ErrIO, "resolve", "commit chunk", "chunk 3", base)
	if !errors.Is(err, errs.ErrIO) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"resolve", "commit chunk", "chunk 3", "disk full"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarkerAndDetail(t *testing.T) {
	err := errs.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, errs.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if got, want := err.Error(), "transient failure: pipeline failure"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestKindAndRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      string
		retryable bool
	}{
		{"nil", nil, "", false},
		{"validation", errs.Wrap(errs.ErrValidation, "prepare", "columns", "missing brand", nil), "validation", false},
		{"configuration", errs.Wrap(errs.ErrConfiguration, "prepare", "fingerprint", "changed", nil), "configuration", false},
		{"not found", errs.Wrap(errs.ErrNotFound, "report", "run", "", nil), "not_found", false},
		{"io", errs.Wrap(errs.ErrIO, "resolve", "commit", "", errors.New("x")), "io", true},
		{"plain", errors.New("boom"), "error", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := errs.Kind(tc.err); got != tc.kind {
				t.Fatalf("kind got %q want %q", got, tc.kind)
			}
			if got := errs.Retryable(tc.err); got != tc.retryable {
				t.Fatalf("retryable got %v want %v", got, tc.retryable)
			}
		})
	}
}

func TestDetailsMentionsFresh(t *testing.T) {
	err := errs.Wrap(errs.ErrConfiguration, "prepare", "fingerprint", "", nil)
	if !strings.Contains(errs.Details(err), "--fresh") {
		t.Fatalf("expected --fresh hint, got %q", errs.Details(err))
	}
	if errs.Details(nil) != "" {
		t.Fatal("expected empty details for nil error")
	}
}

func TestContextAnnotations(t *testing.T) {
	ctx := context.Background()
	if _, ok := errs.RunIDFromContext(ctx); ok {
		t.Fatal("expected no run id on empty context")
	}
	ctx = errs.WithRunID(ctx, "run-1")
	ctx = errs.WithStage(ctx, "resolve")
	ctx = errs.WithChunk(ctx, 0)

	if id, ok := errs.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("run id got %q want %q", id, "run-1")
	}
	if stage, ok := errs.StageFromContext(ctx); !ok || stage != "resolve" {
		t.Fatalf("stage got %q want %q", stage, "resolve")
	}
	if chunk, ok := errs.ChunkFromContext(ctx); !ok || chunk != 0 {
		t.Fatalf("chunk got %d want 0", chunk)
	}
	if errs.WithStage(ctx, "") != ctx {
		t.Fatal("empty stage should return the same context")
	}
}
