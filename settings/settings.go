// Package settings is the typed layer over the settings table. Trading
// behavior is tuned here at runtime; secrets never are, they stay in the
// environment.
package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"tradepulse/logger"
	"tradepulse/store"
)

// Service caches the settings map in memory and keeps it in sync with the
// store on every Update.
type Service struct {
	store *store.SettingsStore

	mu    sync.RWMutex
	cache map[string]string
}

// New seeds missing defaults and loads the cache.
func New(st *store.SettingsStore) (*Service, error) {
	added, err := st.EnsureDefaults(Defaults())
	if err != nil {
		return nil, fmt.Errorf("failed to seed settings defaults: %w", err)
	}
	if added > 0 {
		logger.Infof("💾 Seeded %d new settings defaults", added)
	}

	all, err := st.All()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	return &Service{store: st, cache: all}, nil
}

// Str returns the string value for key, falling back to the default.
func (s *Service) Str(key string) string {
	s.mu.RLock()
	v, ok := s.cache[key]
	s.mu.RUnlock()
	if !ok {
		return Defaults()[key]
	}
	return v
}

// Int returns the integer value for key; parse failures fall back to the
// default with a warning.
func (s *Service) Int(key string) int {
	raw := s.Str(key)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		logger.Warnf("⚠️ Setting %s=%q is not an int, using default", key, raw)
		n, _ = strconv.Atoi(Defaults()[key])
	}
	return n
}

// Float returns the float value for key.
func (s *Service) Float(key string) float64 {
	raw := s.Str(key)
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		logger.Warnf("⚠️ Setting %s=%q is not a number, using default", key, raw)
		f, _ = strconv.ParseFloat(Defaults()[key], 64)
	}
	return f
}

// Bool returns the boolean value for key.
func (s *Service) Bool(key string) bool {
	raw := strings.ToLower(strings.TrimSpace(s.Str(key)))
	switch raw {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off", "":
		return false
	}
	logger.Warnf("⚠️ Setting %s=%q is not a bool, using default", key, raw)
	return Defaults()[key] == "true"
}

// List returns the JSON list value for key.
func (s *Service) List(key string) []string {
	raw := s.Str(key)
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logger.Warnf("⚠️ Setting %s=%q is not a JSON list, using default", key, raw)
		json.Unmarshal([]byte(Defaults()[key]), &out)
	}
	return out
}

// All returns a copy of the settings map.
func (s *Service) All() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.cache))
	for k, v := range s.cache {
		out[k] = v
	}
	return out
}

// Update validates and persists changes, refreshes the cache, and returns
// the subset whose values actually changed. Unknown keys and malformed
// values reject the whole update.
func (s *Service) Update(changes map[string]string) (map[string]string, error) {
	for key, value := range changes {
		k, known := keyKinds[key]
		if !known {
			return nil, fmt.Errorf("unknown setting %s", key)
		}
		if err := validateValue(k, value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}
	}

	applied := make(map[string]string)

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range changes {
		if s.cache[key] == value {
			continue
		}
		if err := s.store.Set(key, value); err != nil {
			return applied, err
		}
		s.cache[key] = value
		applied[key] = value
		logger.Infof("⚙️ Setting %s updated", key)
	}
	return applied, nil
}

func validateValue(k kind, value string) error {
	switch k {
	case kindInt:
		if _, err := strconv.Atoi(strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("want integer, got %q", value)
		}
	case kindFloat:
		if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
			return fmt.Errorf("want number, got %q", value)
		}
	case kindBool:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "false", "1", "0", "yes", "no", "on", "off":
		default:
			return fmt.Errorf("want boolean, got %q", value)
		}
	case kindList:
		var out []string
		if err := json.Unmarshal([]byte(value), &out); err != nil {
			return fmt.Errorf("want JSON string list, got %q", value)
		}
	}
	return nil
}
