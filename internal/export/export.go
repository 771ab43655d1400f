// Package export writes the resolved table as CSV partitions, one per chunk,
// to a local directory or an S3-compatible bucket.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"devicelink/internal/config"
)

// Sink stores named partition objects.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
	// Clear removes every partition the sink holds and reports how many
	// were removed. Objects not named like a partition are left alone.
	Clear(ctx context.Context) (int, error)
	// Location describes where name ends up, for logs.
	Location(name string) string
}

// partPattern matches the names PartName produces.
const partPattern = "part-*.csv"

// PartName returns the object name of a chunk's partition.
func PartName(chunk int) string {
	return fmt.Sprintf("part-%06d.csv", chunk)
}

// IsPartName reports whether name looks like a partition object.
func IsPartName(name string) bool {
	ok, err := filepath.Match(partPattern, name)
	return err == nil && ok
}

// Encode renders header and rows as CSV.
func Encode(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePartition encodes one chunk and stores it in sink.
func WritePartition(ctx context.Context, sink Sink, chunk int, header []string, rows [][]string) (string, error) {
	data, err := Encode(header, rows)
	if err != nil {
		return "", fmt.Errorf("encode partition %d: %w", chunk, err)
	}
	name := PartName(chunk)
	if err := sink.Put(ctx, name, data); err != nil {
		return "", fmt.Errorf("store %s: %w", sink.Location(name), err)
	}
	return sink.Location(name), nil
}

// NewSink returns the sink configured by cfg.Export: S3 when a bucket is set,
// otherwise the export directory.
func NewSink(ctx context.Context, cfg *config.Config) (Sink, error) {
	if cfg.ExportsToS3() {
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Sink(client, cfg.Export.S3Bucket, cfg.Export.S3Prefix), nil
	}
	return NewDirSink(cfg.Export.Dir), nil
}

// DirSink writes partitions into a local directory.
type DirSink struct {
	dir string
}

// NewDirSink returns a sink rooted at dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Put writes data to a temporary file and renames it into place, so readers
// never observe a partial partition.
func (s *DirSink) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, name))
}

// Clear deletes the partition files in the export directory. A missing
// directory holds no partitions.
func (s *DirSink) Clear(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list export directory: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !IsPartName(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func (s *DirSink) Location(name string) string {
	return filepath.Join(s.dir, name)
}
