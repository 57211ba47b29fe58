// Package history keeps a SQLite log of analysis outcomes.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // driver
)

var ErrNotFound = errors.New("entry not found")

// Entry is one stored outcome.
type Entry struct {
	ID          string    `json:"id"`
	Mode        string    `json:"mode"`
	Kind        string    `json:"kind"`
	Label       string    `json:"label"`
	Score       float64   `json:"score"`
	MeanPitchHz *float64  `json:"mean_pitch_hz,omitempty"`
	MeanEnergy  *float64  `json:"mean_energy,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Store struct {
	db *sql.DB
}

// Open connects and creates the schema if needed. ":memory:" works for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// one connection, so :memory: is a single database
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS outcomes (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			kind TEXT NOT NULL,
			label TEXT NOT NULL,
			score REAL NOT NULL,
			mean_pitch_hz REAL,
			mean_energy REAL,
			detail TEXT,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_created ON outcomes(created_at);
	`)
	return err
}

func (s *Store) Add(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (id, mode, kind, label, score, mean_pitch_hz, mean_energy, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Mode, e.Kind, e.Label, e.Score, e.MeanPitchHz, e.MeanEnergy, e.Detail, e.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert outcome: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, kind, label, score, mean_pitch_hz, mean_energy, IFNULL(detail, ''), created_at
		FROM outcomes WHERE id = ?`, id)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// Recent lists up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, kind, label, score, mean_pitch_hz, mean_energy, IFNULL(detail, ''), created_at
		FROM outcomes ORDER BY created_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcomes: %w", err)
	}
	return out, nil
}

type scanner interface{ Scan(dest ...any) error }

func scan(r scanner) (Entry, error) {
	var e Entry
	var pitch, energy sql.NullFloat64
	if err := r.Scan(&e.ID, &e.Mode, &e.Kind, &e.Label, &e.Score, &pitch, &energy, &e.Detail, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("failed to scan outcome: %w", err)
	}
	if pitch.Valid {
		e.MeanPitchHz = &pitch.Float64
	}
	if energy.Valid {
		e.MeanEnergy = &energy.Float64
	}
	return e, nil
}
