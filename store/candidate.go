package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tradepulse/types"
)

// CandidateStore holds the latest interactive scan results. Each scan
// replaces the whole table: candidates are a snapshot, not a log.
type CandidateStore struct {
	db *sql.DB
}

func (s *CandidateStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS scanner_candidates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			rsi REAL NOT NULL DEFAULT 0,
			adx REAL NOT NULL DEFAULT 0,
			atr_percent REAL NOT NULL DEFAULT 0,
			volume_ratio REAL NOT NULL DEFAULT 0,
			sources TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create scanner_candidates table: %w", err)
	}
	return nil
}

// ReplaceAll truncates the table and loads the new snapshot in one
// transaction.
func (s *CandidateStore) ReplaceAll(candidates []*types.Candidate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin candidate replace: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM scanner_candidates`); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to truncate candidates: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, c := range candidates {
		sources, err := json.Marshal(c.Sources)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to encode sources for %s: %w", c.Symbol, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO scanner_candidates (symbol, price, rsi, adx, atr_percent, volume_ratio, sources, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, c.Symbol, c.Price, c.RSI, c.ADX, c.ATRPercent, c.VolumeRatio, string(sources), now); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert candidate %s: %w", c.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candidate replace: %w", err)
	}
	return nil
}

// All returns the current candidate snapshot.
func (s *CandidateStore) All() ([]*types.Candidate, error) {
	rows, err := s.db.Query(`
		SELECT id, symbol, price, rsi, adx, atr_percent, volume_ratio, sources, created_at
		FROM scanner_candidates ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []*types.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns the candidate for symbol, nil when absent.
func (s *CandidateStore) Get(symbol string) (*types.Candidate, error) {
	row := s.db.QueryRow(`
		SELECT id, symbol, price, rsi, adx, atr_percent, volume_ratio, sources, created_at
		FROM scanner_candidates WHERE symbol = ? LIMIT 1
	`, symbol)
	c, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanCandidate(row rowScanner) (*types.Candidate, error) {
	var c types.Candidate
	var sources string
	var createdAt sql.NullString
	if err := row.Scan(&c.ID, &c.Symbol, &c.Price, &c.RSI, &c.ADX, &c.ATRPercent, &c.VolumeRatio, &sources, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan candidate: %w", err)
	}
	json.Unmarshal([]byte(sources), &c.Sources)
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}
