package relation

import "context"

// MemorySource serves rows held in memory. Tests and the inspect command use
// it; pipeline inputs come from files.
type MemorySource struct {
	name   string
	header []string
	rows   [][]string
}

// NewMemorySource returns a source over rows with the given header.
func NewMemorySource(name string, header []string, rows [][]string) *MemorySource {
	return &MemorySource{name: name, header: header, rows: rows}
}

func (s *MemorySource) Name() string { return s.name }

func (s *MemorySource) Columns(context.Context) ([]string, error) {
	return append([]string(nil), s.header...), nil
}

func (s *MemorySource) Scan(ctx context.Context, size int, fn func(Batch) error) error {
	b := newBatcher(size, fn)
	for _, row := range s.rows {
		if err := b.add(ctx, append([]string(nil), row...)); err != nil {
			return finishScan(err)
		}
	}
	return finishScan(b.flush(ctx))
}

// Len returns the number of rows.
func (s *MemorySource) Len() int { return len(s.rows) }
