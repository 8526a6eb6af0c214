package store

import (
	"database/sql"
	"fmt"
	"time"

	"tradepulse/types"
)

// EventStore is the append-only trade event log.
type EventStore struct {
	db *sql.DB
}

func (s *EventStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trade_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create trade_events table: %w", err)
	}

	indices := []string{
		`CREATE INDEX IF NOT EXISTS idx_events_created ON trade_events(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON trade_events(type, created_at DESC)`,
	}
	for _, idx := range indices {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create event index: %w", err)
		}
	}
	return nil
}

// Append records one event.
func (s *EventStore) Append(eventType, symbol, detail string) error {
	_, err := s.db.Exec(`
		INSERT INTO trade_events (type, symbol, detail, created_at) VALUES (?, ?, ?, ?)
	`, eventType, symbol, detail, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Recent returns the newest limit events, optionally filtered by type.
func (s *EventStore) Recent(limit int, eventType string) ([]*types.TradeEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, type, symbol, detail, created_at FROM trade_events`
	args := []any{}
	if eventType != "" {
		query += ` WHERE type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*types.TradeEvent
	for rows.Next() {
		var evt types.TradeEvent
		var createdAt sql.NullString
		if err := rows.Scan(&evt.ID, &evt.Type, &evt.Symbol, &evt.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		evt.CreatedAt = parseTime(createdAt)
		out = append(out, &evt)
	}
	return out, rows.Err()
}
