package relation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"devicelink/internal/config"
	"devicelink/internal/errs"
)

// ErrStop ends a Scan early without reporting an error.
var ErrStop = errors.New("stop scan")

// Batch is a bounded run of consecutive rows.
type Batch struct {
	// Index is the zero-based batch number within one scan.
	Index int
	// Offset is the zero-based position of the first row in the input.
	Offset int64
	Rows   [][]string
}

// Source is a restartable tabular input.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string
	// Columns returns the header.
	Columns(ctx context.Context) ([]string, error)
	// Scan calls fn with consecutive batches of at most size rows. Returning
	// ErrStop from fn ends the scan with a nil error.
	Scan(ctx context.Context, size int, fn func(Batch) error) error
}

// batcher accumulates rows and flushes full batches.
type batcher struct {
	size   int
	fn     func(Batch) error
	index  int
	offset int64
	rows   [][]string
}

func newBatcher(size int, fn func(Batch) error) *batcher {
	if size <= 0 {
		size = 1
	}
	return &batcher{size: size, fn: fn, rows: make([][]string, 0, size)}
}

func (b *batcher) add(ctx context.Context, row []string) error {
	b.rows = append(b.rows, row)
	if len(b.rows) < b.size {
		return nil
	}
	return b.flush(ctx)
}

func (b *batcher) flush(ctx context.Context) error {
	if len(b.rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := Batch{Index: b.index, Offset: b.offset, Rows: b.rows}
	b.index++
	b.offset += int64(len(b.rows))
	b.rows = make([][]string, 0, b.size)
	return b.fn(batch)
}

func finishScan(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

// Open returns the source described by an input config. The format comes from
// in.Format, else from the file extension.
func Open(in config.Input) (Source, error) {
	if strings.TrimSpace(in.Path) == "" {
		return nil, errs.Wrap(errs.ErrConfiguration, "", "open input", "path is empty", nil)
	}
	format := in.Format
	if format == "" {
		format = DetectFormat(in.Path)
	}
	switch format {
	case "csv":
		return NewDelimitedSource(in.Path, delimiter(in.Delimiter, ',')), nil
	case "tsv":
		return NewDelimitedSource(in.Path, delimiter(in.Delimiter, '\t')), nil
	case "psv":
		return NewDelimitedSource(in.Path, delimiter(in.Delimiter, '|')), nil
	case "jsonl":
		return NewJSONLSource(in.Path), nil
	case "xlsx":
		return NewXLSXSource(in.Path, in.Sheet), nil
	case "sqlite":
		if in.Table == "" {
			return nil, errs.Wrap(errs.ErrConfiguration, "", "open input", fmt.Sprintf("%s: sqlite input needs a table name", in.Path), nil)
		}
		return OpenSQLiteFile(in.Path, in.Table)
	default:
		return nil, errs.Wrap(errs.ErrConfiguration, "", "open input", fmt.Sprintf("%s: cannot infer format from extension", in.Path), nil)
	}
}

// DetectFormat maps a file extension to an input format name, or "".
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".tsv", ".tab":
		return "tsv"
	case ".psv", ".txt":
		return "psv"
	case ".jsonl", ".ndjson":
		return "jsonl"
	case ".xlsx":
		return "xlsx"
	case ".db", ".sqlite", ".sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func delimiter(value string, fallback rune) rune {
	if value == "" {
		return fallback
	}
	if value == `\t` {
		return '\t'
	}
	return []rune(value)[0]
}
