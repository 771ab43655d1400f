package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"devicelink/internal/device"
	"devicelink/internal/errs"
	"devicelink/internal/relation"
)

// Internal columns carried by every output table.
const (
	chunkColumn = "_chunk_index"
	seqColumn   = "_row_seq"
)

// EnsureOutputTable creates table with one TEXT column per entry of columns.
// An existing table must have been created with the same columns; anything
// else means the inputs changed shape and is a configuration error.
func (s *Store) EnsureOutputTable(ctx context.Context, table string, columns []string) error {
	if err := validateColumns(columns); err != nil {
		return err
	}
	existing, err := s.OutputColumns(ctx, table)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if existing != nil {
		if !slices.Equal(existing, columns) {
			return errs.Wrap(errs.ErrConfiguration, "store", "ensure table",
				fmt.Sprintf("table %s exists with different columns", table), nil)
		}
		return nil
	}

	defs := make([]string, 0, len(columns)+2)
	for _, col := range columns {
		defs = append(defs, relation.QuoteIdent(col)+" TEXT")
	}
	defs = append(defs, chunkColumn+" INTEGER NOT NULL", seqColumn+" INTEGER NOT NULL")
	encoded, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		create := fmt.Sprintf("CREATE TABLE %s (%s, PRIMARY KEY (%s, %s))",
			relation.QuoteIdent(table), strings.Join(defs, ", "), chunkColumn, seqColumn)
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO output_tables (name, columns_json, created_at) VALUES (?, ?, ?)",
			table, string(encoded), formatTime(time.Now()),
		); err != nil {
			return fmt.Errorf("register table %s: %w", table, err)
		}
		return nil
	})
}

func validateColumns(columns []string) error {
	if len(columns) == 0 {
		return errs.Wrap(errs.ErrValidation, "store", "ensure table", "no columns", nil)
	}
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		key := strings.ToLower(col)
		switch {
		case strings.TrimSpace(col) == "":
			return errs.Wrap(errs.ErrValidation, "store", "ensure table", "input has an unnamed column", nil)
		case strings.HasPrefix(col, "_"):
			return errs.Wrap(errs.ErrValidation, "store", "ensure table",
				fmt.Sprintf("column %q uses the reserved _ prefix", col), nil)
		}
		if _, dup := seen[key]; dup {
			return errs.Wrap(errs.ErrValidation, "store", "ensure table",
				fmt.Sprintf("duplicate column %q", col), nil)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// OutputColumns returns the columns table was created with. It returns an
// error matching errs.ErrNotFound for unknown tables.
func (s *Store) OutputColumns(ctx context.Context, table string) ([]string, error) {
	var encoded string
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT columns_json FROM output_tables WHERE name = ?", table,
	).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Wrap(errs.ErrNotFound, "store", "output columns", table, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read columns of %s: %w", table, err)
	}
	var columns []string
	if err := json.Unmarshal([]byte(encoded), &columns); err != nil {
		return nil, fmt.Errorf("decode columns of %s: %w", table, err)
	}
	return columns, nil
}

func (s *Store) outputTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT name FROM output_tables ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list output tables: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CommitChunk replaces the rows of one chunk in table and records the chunk
// as committed for stage, all in one transaction. Blank values of the derived
// resolver columns are stored as NULL; every other cell is stored verbatim.
// Rows must match the table's columns in width.
func (s *Store) CommitChunk(ctx context.Context, stage, table string, chunk int, rows [][]string) error {
	columns, err := s.OutputColumns(ctx, table)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(columns)+2)
	marks := make([]string, 0, len(columns)+2)
	nullable := make([]bool, len(columns))
	for i, col := range columns {
		names = append(names, relation.QuoteIdent(col))
		marks = append(marks, "?")
		nullable[i] = slices.Contains(device.DerivedColumns, col)
	}
	names = append(names, chunkColumn, seqColumn)
	marks = append(marks, "?", "?")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		relation.QuoteIdent(table), strings.Join(names, ", "), strings.Join(marks, ", "))

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE %s = ?", relation.QuoteIdent(table), chunkColumn), chunk,
		); err != nil {
			return fmt.Errorf("clear chunk: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		args := make([]any, len(columns)+2)
		for seq, row := range rows {
			if len(row) != len(columns) {
				return fmt.Errorf("row %d has %d values, table has %d columns", seq, len(row), len(columns))
			}
			for i, v := range row {
				if nullable[i] && device.Null(v) {
					args[i] = nil
				} else {
					args[i] = v
				}
			}
			args[len(columns)] = chunk
			args[len(columns)+1] = seq
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("insert row %d: %w", seq, err)
			}
		}
		return markChunk(ctx, tx, stage, chunk, int64(len(rows)))
	})
	if err != nil {
		return errs.Wrap(errs.ErrIO, stage, "commit chunk", fmt.Sprintf("%s chunk %d", table, chunk), err)
	}
	return nil
}

// MarkChunk records a chunk as committed for a stage that writes outside the
// database, such as export.
func (s *Store) MarkChunk(ctx context.Context, stage string, chunk int, rows int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return markChunk(ctx, tx, stage, chunk, rows)
	})
}

func markChunk(ctx context.Context, tx *sql.Tx, stage string, chunk int, rows int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO chunk_ledger (stage, chunk_index, rows, committed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(stage, chunk_index) DO UPDATE SET rows = excluded.rows, committed_at = excluded.committed_at`,
		stage, chunk, rows, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}
	return nil
}

// CommittedChunks returns the committed chunks of stage and their row counts.
func (s *Store) CommittedChunks(ctx context.Context, stage string) (map[int]int64, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT chunk_index, rows FROM chunk_ledger WHERE stage = ?", stage)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	defer rows.Close()
	out := make(map[int]int64)
	for rows.Next() {
		var (
			chunk int
			n     int64
		)
		if err := rows.Scan(&chunk, &n); err != nil {
			return nil, err
		}
		out[chunk] = n
	}
	return out, rows.Err()
}

// ClearStage forgets every ledger entry of stage.
func (s *Store) ClearStage(ctx context.Context, stage string) error {
	if err := s.exec(ctx, "DELETE FROM chunk_ledger WHERE stage = ?", stage); err != nil {
		return fmt.Errorf("clear stage %s: %w", stage, err)
	}
	return nil
}

// ChunkIndices returns the distinct chunk indices present in table, ascending.
func (s *Store) ChunkIndices(ctx context.Context, table string) ([]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s ORDER BY %s", chunkColumn, relation.QuoteIdent(table), chunkColumn))
	if err != nil {
		return nil, fmt.Errorf("list chunks of %s: %w", table, err)
	}
	defer rows.Close()
	var out []int
	for rows.Next() {
		var chunk int
		if err := rows.Scan(&chunk); err != nil {
			return nil, err
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}

// ReadChunk returns the rows of one chunk in their original order. NULL
// cells come back as "".
func (s *Store) ReadChunk(ctx context.Context, table string, chunk int) ([][]string, error) {
	columns, err := s.OutputColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = relation.QuoteIdent(col)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s",
		strings.Join(quoted, ", "), relation.QuoteIdent(table), chunkColumn, seqColumn)
	rows, err := s.db.QueryContext(ensureContext(ctx), query, chunk)
	if err != nil {
		return nil, fmt.Errorf("read %s chunk %d: %w", table, chunk, err)
	}
	defer rows.Close()

	var out [][]string
	cells := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make([]string, len(columns))
		for i, c := range cells {
			if c.Valid {
				row[i] = c.String
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountRows returns the number of rows in table.
func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1) FROM "+relation.QuoteIdent(table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Source returns table as a relation ordered by chunk and row position.
func (s *Store) Source(ctx context.Context, table string) (relation.Source, error) {
	columns, err := s.OutputColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	return relation.NewSQLiteSource(s.db, table, columns, chunkColumn+", "+seqColumn), nil
}
