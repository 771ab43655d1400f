package relation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteSource reads a table (or view) from a SQLite database.
type SQLiteSource struct {
	db      *sql.DB
	owned   bool
	table   string
	columns []string
	orderBy string
}

// NewSQLiteSource reads table from an open database. A nil columns slice
// selects every column; an empty orderBy scans in rowid order.
func NewSQLiteSource(db *sql.DB, table string, columns []string, orderBy string) *SQLiteSource {
	return &SQLiteSource{db: db, table: table, columns: columns, orderBy: orderBy}
}

// OpenSQLiteFile opens path read-only and reads table from it. Close releases
// the database.
func OpenSQLiteFile(path, table string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite input %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite input %s: %w", path, err)
	}
	return &SQLiteSource{db: db, owned: true, table: table}, nil
}

// Close releases a database opened by OpenSQLiteFile.
func (s *SQLiteSource) Close() error {
	if s == nil || !s.owned || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteSource) Name() string { return "sqlite:" + s.table }

func (s *SQLiteSource) Columns(ctx context.Context) ([]string, error) {
	if s.columns != nil {
		return append([]string(nil), s.columns...), nil
	}
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+QuoteIdent(s.table)+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", s.table, err)
	}
	defer rows.Close()
	return rows.Columns()
}

func (s *SQLiteSource) Scan(ctx context.Context, size int, fn func(Batch) error) error {
	projection := "*"
	if s.columns != nil {
		quoted := make([]string, len(s.columns))
		for i, c := range s.columns {
			quoted[i] = QuoteIdent(c)
		}
		projection = strings.Join(quoted, ", ")
	}
	order := s.orderBy
	if order == "" {
		order = "rowid"
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", projection, QuoteIdent(s.table), order)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("scan %s: %w", s.table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("scan %s: %w", s.table, err)
	}
	values := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	b := newBatcher(size, fn)
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("scan %s: %w", s.table, err)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			if v.Valid {
				row[i] = v.String
			}
		}
		if err := b.add(ctx, row); err != nil {
			return finishScan(err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", s.table, err)
	}
	return finishScan(b.flush(ctx))
}

// QuoteIdent quotes a SQLite identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
