package relation

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DelimitedSource reads CSV, TSV, or pipe-delimited text with a header row.
type DelimitedSource struct {
	path  string
	comma rune
}

// NewDelimitedSource returns a source over path split on comma.
func NewDelimitedSource(path string, comma rune) *DelimitedSource {
	return &DelimitedSource{path: path, comma: comma}
}

func (s *DelimitedSource) Name() string { return s.path }

func (s *DelimitedSource) open() (*os.File, *csv.Reader, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	reader := csv.NewReader(bufio.NewReaderSize(file, 1<<16))
	reader.Comma = s.comma
	reader.FieldsPerRecord = -1
	// registry exports embed bare quotes in free text
	reader.LazyQuotes = true
	return file, reader, nil
}

func (s *DelimitedSource) Columns(ctx context.Context) ([]string, error) {
	file, reader, err := s.open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readHeader(reader, s.path)
}

func (s *DelimitedSource) Scan(ctx context.Context, size int, fn func(Batch) error) error {
	file, reader, err := s.open()
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := readHeader(reader, s.path); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	b := newBatcher(size, fn)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", s.path, err)
		}
		if err := b.add(ctx, record); err != nil {
			return finishScan(err)
		}
	}
	return finishScan(b.flush(ctx))
}

func readHeader(reader *csv.Reader, path string) ([]string, error) {
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty input: %w", path, io.EOF)
		}
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	out := make([]string, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		out[i] = strings.TrimSpace(name)
	}
	return out, nil
}
