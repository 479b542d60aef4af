package store

import (
	"context"
	"fmt"
	"time"
)

// Gap is a text reported missing from the active base by a completeness audit.
type Gap struct {
	ID            int64     `json:"id"`
	At            time.Time `json:"at"`
	Title         string    `json:"title"`
	Theme         string    `json:"theme"`
	Criticite     string    `json:"criticite"`
	Justification string    `json:"justification"`
	Action        string    `json:"action"`
}

// AddGaps stores the findings of one audit in a single transaction.
func (s *Store) AddGaps(ctx context.Context, at time.Time, gaps []Gap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: add gaps: %w", err)
	}
	defer tx.Rollback()
	for _, g := range gaps {
		_, err := tx.ExecContext(ctx, `
INSERT INTO gap_audit (at, title, theme, criticite, justification, action) VALUES (?, ?, ?, ?, ?, ?)`,
			at.UTC().UnixNano(), g.Title, g.Theme, g.Criticite, g.Justification, g.Action)
		if err != nil {
			return fmt.Errorf("store: add gap %q: %w", g.Title, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: add gaps: %w", err)
	}
	return nil
}

// Gaps returns up to limit audit findings, newest audit first.
func (s *Store) Gaps(ctx context.Context, limit int) ([]Gap, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, at, title, theme, criticite, justification, action FROM gap_audit
ORDER BY at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list gaps: %w", err)
	}
	defer rows.Close()

	var out []Gap
	for rows.Next() {
		var (
			g  Gap
			at int64
		)
		if err := rows.Scan(&g.ID, &at, &g.Title, &g.Theme, &g.Criticite, &g.Justification, &g.Action); err != nil {
			return nil, err
		}
		g.At = time.Unix(0, at).UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}
