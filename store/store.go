// Package store is the persistence layer. All database access goes through
// this package; one Store owns the connection and hands out sub-stores.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"tradepulse/logger"
)

// Store is the unified storage handle.
type Store struct {
	db *sql.DB

	// Sub-stores (lazy initialization)
	position  *PositionStore
	history   *HistoryStore
	event     *EventStore
	settings  *SettingsStore
	candidate *CandidateStore
	preset    *PresetStore

	mu sync.Mutex
}

// New opens the SQLite database at dbPath and prepares all tables.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Four periodic jobs share this handle; WAL keeps readers off the
	// writers and the busy timeout rides out overlap.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}

	logger.Infof("✅ Database initialized (%s)", dbPath)
	return s, nil
}

// initTables initializes all database tables.
func (s *Store) initTables() error {
	if err := s.Position().initTables(); err != nil {
		return fmt.Errorf("failed to initialize position tables: %w", err)
	}
	if err := s.History().initTables(); err != nil {
		return fmt.Errorf("failed to initialize history tables: %w", err)
	}
	if err := s.Event().initTables(); err != nil {
		return fmt.Errorf("failed to initialize event tables: %w", err)
	}
	if err := s.Settings().initTables(); err != nil {
		return fmt.Errorf("failed to initialize settings tables: %w", err)
	}
	if err := s.Candidate().initTables(); err != nil {
		return fmt.Errorf("failed to initialize candidate tables: %w", err)
	}
	if err := s.Preset().initTables(); err != nil {
		return fmt.Errorf("failed to initialize preset tables: %w", err)
	}
	return nil
}

// Position gets position storage.
func (s *Store) Position() *PositionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.position == nil {
		s.position = &PositionStore{db: s.db}
	}
	return s.position
}

// History gets trade history storage.
func (s *Store) History() *HistoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		s.history = &HistoryStore{db: s.db}
	}
	return s.history
}

// Event gets trade event storage.
func (s *Store) Event() *EventStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event == nil {
		s.event = &EventStore{db: s.db}
	}
	return s.event
}

// Settings gets settings storage.
func (s *Store) Settings() *SettingsStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		s.settings = &SettingsStore{db: s.db}
	}
	return s.settings
}

// Candidate gets scanner candidate storage.
func (s *Store) Candidate() *CandidateStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candidate == nil {
		s.candidate = &CandidateStore{db: s.db}
	}
	return s.candidate
}

// Preset gets settings preset storage.
func (s *Store) Preset() *PresetStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preset == nil {
		s.preset = &PresetStore{db: s.db}
	}
	return s.preset
}

// Transaction executes fn inside a transaction.
func (s *Store) Transaction(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DB exposes the underlying connection for tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
