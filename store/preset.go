package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Preset is a named snapshot of the settings map.
type Preset struct {
	Name      string    `json:"name"`
	Body      string    `json:"body"` // JSON object of settings keys
	CreatedAt time.Time `json:"created_at"`
}

// PresetStore persists named settings snapshots.
type PresetStore struct {
	db *sql.DB
}

func (s *PresetStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS settings_presets (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			body TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create settings_presets table: %w", err)
	}
	return nil
}

// Save upserts a preset by name.
func (s *PresetStore) Save(name, body string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings_presets (name, body, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET body = excluded.body, created_at = excluded.created_at
	`, name, body, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save preset %s: %w", name, err)
	}
	return nil
}

// Get returns the preset body, empty string when absent.
func (s *PresetStore) Get(name string) (string, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM settings_presets WHERE name = ?`, name).Scan(&body)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load preset %s: %w", name, err)
	}
	return body, nil
}

// List returns all presets, newest first.
func (s *PresetStore) List() ([]*Preset, error) {
	rows, err := s.db.Query(`SELECT name, body, created_at FROM settings_presets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	defer rows.Close()

	var out []*Preset
	for rows.Next() {
		var p Preset
		var createdAt sql.NullString
		if err := rows.Scan(&p.Name, &p.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}
