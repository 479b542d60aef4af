// Package store keeps the dashboard history and the decisions taken on the
// control sheets in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"veilleboard/internal/models"
	"veilleboard/internal/snapshot"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: ensure dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    last_update TEXT,
    schema TEXT,
    payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_created_at ON snapshots(created_at);
CREATE TABLE IF NOT EXISTS action_journal (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    at INTEGER NOT NULL,
    register TEXT,
    row INTEGER,
    action TEXT,
    actor TEXT,
    detail TEXT
);
CREATE TABLE IF NOT EXISTS action_plan (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    at INTEGER NOT NULL,
    title TEXT,
    theme TEXT,
    criticite TEXT,
    action TEXT,
    owner TEXT,
    due TEXT,
    status TEXT
);
CREATE TABLE IF NOT EXISTS informative (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    at INTEGER NOT NULL,
    register TEXT,
    payload TEXT
);
CREATE TABLE IF NOT EXISTS gap_audit (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    at INTEGER NOT NULL,
    title TEXT,
    theme TEXT,
    criticite TEXT,
    justification TEXT,
    action TEXT
);`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SnapshotRecord is one stored generation.
type SnapshotRecord struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	LastUpdate string          `json:"last_update"`
	Schema     string          `json:"schema"`
	Snapshot   models.Snapshot `json:"snapshot"`
}

// SaveSnapshot stores a generation under id.
func (s *Store) SaveSnapshot(ctx context.Context, id string, at time.Time, schema string, snap models.Snapshot) error {
	payload, err := snapshot.EncodeJSON(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO snapshots (id, created_at, last_update, schema, payload) VALUES (?, ?, ?, ?, ?)`,
		id, at.UTC().UnixNano(), snap.LastUpdate, schema, string(payload))
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (SnapshotRecord, error) {
	var (
		rec     SnapshotRecord
		created int64
		payload string
	)
	if err := row.Scan(&rec.ID, &created, &rec.LastUpdate, &rec.Schema, &payload); err != nil {
		return SnapshotRecord{}, err
	}
	rec.CreatedAt = time.Unix(0, created).UTC()
	snap, err := snapshot.Decode([]byte(payload))
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("store: snapshot %s: %w", rec.ID, err)
	}
	rec.Snapshot = snap
	return rec, nil
}

// LatestSnapshots returns up to n generations, newest first.
func (s *Store) LatestSnapshots(ctx context.Context, n int) ([]SnapshotRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, created_at, last_update, schema, payload FROM snapshots
ORDER BY created_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSnapshot returns the generation stored under id.
func (s *Store) GetSnapshot(ctx context.Context, id string) (SnapshotRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, created_at, last_update, schema, payload FROM snapshots WHERE id = ?`, id)
	rec, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, fmt.Errorf("%w: snapshot %s", ErrNotFound, id)
	}
	return rec, err
}

// Prune keeps the newest keep generations and returns how many were deleted.
// keep <= 0 disables pruning.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
DELETE FROM snapshots WHERE id NOT IN (
    SELECT id FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT ?
)`, keep)
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return res.RowsAffected()
}
