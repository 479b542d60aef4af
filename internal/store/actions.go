package store

import (
	"context"
	"fmt"
	"time"
)

// JournalEntry records one decision applied to a register row.
type JournalEntry struct {
	ID       int64     `json:"id"`
	At       time.Time `json:"at"`
	Register string    `json:"register"`
	Row      int       `json:"row"`
	Action   string    `json:"action"`
	Actor    string    `json:"actor"`
	Detail   string    `json:"detail"`
}

// Journal appends an entry to the action journal.
func (s *Store) Journal(ctx context.Context, e JournalEntry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO action_journal (at, register, row, action, actor, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		e.At.UTC().UnixNano(), e.Register, e.Row, e.Action, e.Actor, e.Detail)
	if err != nil {
		return fmt.Errorf("store: journal: %w", err)
	}
	return nil
}

// JournalEntries returns up to limit entries, newest first.
func (s *Store) JournalEntries(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, at, register, row, action, actor, detail FROM action_journal
ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e  JournalEntry
			at int64
		)
		if err := rows.Scan(&e.ID, &at, &e.Register, &e.Row, &e.Action, &e.Actor, &e.Detail); err != nil {
			return nil, err
		}
		e.At = time.Unix(0, at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// PlanItem is an entry of the action plan opened for a non-compliant text.
type PlanItem struct {
	ID        int64     `json:"id"`
	At        time.Time `json:"at"`
	Title     string    `json:"title"`
	Theme     string    `json:"theme"`
	Criticite string    `json:"criticite"`
	Action    string    `json:"action"`
	Owner     string    `json:"owner"`
	Due       string    `json:"due"`
	Status    string    `json:"status"`
}

// AddPlanItem stores p and returns its id.
func (s *Store) AddPlanItem(ctx context.Context, p PlanItem) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO action_plan (at, title, theme, criticite, action, owner, due, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.At.UTC().UnixNano(), p.Title, p.Theme, p.Criticite, p.Action, p.Owner, p.Due, p.Status)
	if err != nil {
		return 0, fmt.Errorf("store: add plan item: %w", err)
	}
	return res.LastInsertId()
}

// PlanItems lists the action plan in creation order.
func (s *Store) PlanItems(ctx context.Context) ([]PlanItem, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, at, title, theme, criticite, action, owner, due, status FROM action_plan ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list plan: %w", err)
	}
	defer rows.Close()

	var out []PlanItem
	for rows.Next() {
		var (
			p  PlanItem
			at int64
		)
		if err := rows.Scan(&p.ID, &at, &p.Title, &p.Theme, &p.Criticite, &p.Action, &p.Owner, &p.Due, &p.Status); err != nil {
			return nil, err
		}
		p.At = time.Unix(0, at).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// Informative is a text archived as "for information", kept as its row JSON.
type Informative struct {
	ID       int64     `json:"id"`
	At       time.Time `json:"at"`
	Register string    `json:"register"`
	Payload  string    `json:"payload"`
}

// AddInformative archives a row taken out of a register.
func (s *Store) AddInformative(ctx context.Context, at time.Time, register string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO informative (at, register, payload) VALUES (?, ?, ?)`,
		at.UTC().UnixNano(), register, string(payload))
	if err != nil {
		return fmt.Errorf("store: add informative: %w", err)
	}
	return nil
}

// Informatives lists the archived rows in archive order.
func (s *Store) Informatives(ctx context.Context) ([]Informative, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, at, register, payload FROM informative ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list informative: %w", err)
	}
	defer rows.Close()

	var out []Informative
	for rows.Next() {
		var (
			i  Informative
			at int64
		)
		if err := rows.Scan(&i.ID, &at, &i.Register, &i.Payload); err != nil {
			return nil, err
		}
		i.At = time.Unix(0, at).UTC()
		out = append(out, i)
	}
	return out, rows.Err()
}
