package relation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXSource reads one worksheet whose first row is the header.
type XLSXSource struct {
	path  string
	sheet string
}

// NewXLSXSource returns a source over sheet, or the first sheet when empty.
func NewXLSXSource(path, sheet string) *XLSXSource {
	return &XLSXSource{path: path, sheet: sheet}
}

func (s *XLSXSource) Name() string {
	if s.sheet == "" {
		return s.path
	}
	return s.path + "#" + s.sheet
}

func (s *XLSXSource) open() (*excelize.File, *excelize.Rows, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	sheet := s.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, nil, fmt.Errorf("%s: workbook has no sheets", s.path)
		}
		sheet = sheets[0]
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("read sheet %q of %s: %w", sheet, s.path, err)
	}
	return f, rows, nil
}

func (s *XLSXSource) Columns(ctx context.Context) ([]string, error) {
	f, rows, err := s.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	defer rows.Close()
	return xlsxHeader(rows, s.Name())
}

func (s *XLSXSource) Scan(ctx context.Context, size int, fn func(Batch) error) error {
	f, rows, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()
	defer rows.Close()
	header, err := xlsxHeader(rows, s.Name())
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	b := newBatcher(size, fn)
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("read %s: %w", s.Name(), err)
		}
		if blank(cells) {
			continue
		}
		row := make([]string, len(header))
		copy(row, cells)
		if err := b.add(ctx, row); err != nil {
			return finishScan(err)
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("read %s: %w", s.Name(), err)
	}
	return finishScan(b.flush(ctx))
}

func xlsxHeader(rows *excelize.Rows, name string) ([]string, error) {
	if !rows.Next() {
		return nil, fmt.Errorf("%s: empty sheet: %w", name, io.EOF)
	}
	cells, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", name, err)
	}
	header := make([]string, len(cells))
	for i, c := range cells {
		header[i] = strings.TrimSpace(c)
	}
	return header, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
