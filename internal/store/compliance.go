package store

import (
	"context"
	"database/sql"
	"fmt"

	"devicelink/internal/device"
	"devicelink/internal/fallback"
	"devicelink/internal/relation"
)

// SaveCompliance replaces the manufacturer compliance table.
func (s *Store) SaveCompliance(ctx context.Context, rows []fallback.Compliance) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM manufacturer_compliance"); err != nil {
			return fmt.Errorf("clear compliance: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO manufacturer_compliance (manufacturer, rows, missing, missing_rate, low_compliance)
			 VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare compliance insert: %w", err)
		}
		defer stmt.Close()
		for _, c := range rows {
			low := 0
			if c.LowCompliance {
				low = 1
			}
			if _, err := stmt.ExecContext(ctx, c.Manufacturer, c.Rows, c.Missing, c.MissingRate, low); err != nil {
				return fmt.Errorf("insert compliance %s: %w", c.Manufacturer, err)
			}
		}
		return nil
	})
}

// LoadCompliance returns the persisted compliance table sorted by manufacturer.
func (s *Store) LoadCompliance(ctx context.Context) ([]fallback.Compliance, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT manufacturer, rows, missing, missing_rate, low_compliance FROM manufacturer_compliance ORDER BY manufacturer")
	if err != nil {
		return nil, fmt.Errorf("load compliance: %w", err)
	}
	defer rows.Close()
	var out []fallback.Compliance
	for rows.Next() {
		var (
			c   fallback.Compliance
			low int
		)
		if err := rows.Scan(&c.Manufacturer, &c.Rows, &c.Missing, &c.MissingRate, &low); err != nil {
			return nil, err
		}
		c.LowCompliance = low != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// MatchCount is the number of rows resolved by one tier at one grade.
type MatchCount struct {
	MatchSource device.MatchSource
	Confidence  device.Confidence
	Rows        int64
}

// Distribution groups table rows by match source and confidence.
func (s *Store) Distribution(ctx context.Context, table string) ([]MatchCount, error) {
	query := fmt.Sprintf(
		`SELECT COALESCE(%[1]s, ''), COALESCE(%[2]s, ''), COUNT(1) FROM %[3]s GROUP BY 1, 2 ORDER BY 1, 2`,
		relation.QuoteIdent(device.ColMatchSource), relation.QuoteIdent(device.ColConfidence), relation.QuoteIdent(table))
	rows, err := s.db.QueryContext(ensureContext(ctx), query)
	if err != nil {
		return nil, fmt.Errorf("match distribution of %s: %w", table, err)
	}
	defer rows.Close()
	return scanCounts(rows)
}

// SaveMatchStats stores the match distribution of a run.
func (s *Store) SaveMatchStats(ctx context.Context, runID string, counts []MatchCount) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM match_stats WHERE run_id = ?", runID); err != nil {
			return fmt.Errorf("clear match stats: %w", err)
		}
		for _, c := range counts {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO match_stats (run_id, match_source, confidence, rows) VALUES (?, ?, ?, ?)",
				runID, string(c.MatchSource), string(c.Confidence), c.Rows,
			); err != nil {
				return fmt.Errorf("insert match stats: %w", err)
			}
		}
		return nil
	})
}

// MatchStats returns the stored match distribution of a run.
func (s *Store) MatchStats(ctx context.Context, runID string) ([]MatchCount, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT match_source, confidence, rows FROM match_stats WHERE run_id = ? ORDER BY match_source, confidence", runID)
	if err != nil {
		return nil, fmt.Errorf("read match stats: %w", err)
	}
	defer rows.Close()
	return scanCounts(rows)
}

func scanCounts(rows *sql.Rows) ([]MatchCount, error) {
	var out []MatchCount
	for rows.Next() {
		var (
			source, confidence string
			n                  int64
		)
		if err := rows.Scan(&source, &confidence, &n); err != nil {
			return nil, err
		}
		out = append(out, MatchCount{
			MatchSource: device.MatchSource(source),
			Confidence:  device.Confidence(confidence),
			Rows:        n,
		})
	}
	return out, rows.Err()
}
