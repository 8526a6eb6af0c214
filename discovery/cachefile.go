package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// On-disk fallback for when a source's API is unreachable: the last good
// response is kept as JSON and replayed, even if stale, rather than dropping
// the source from a scan entirely.

type diskCache struct {
	Symbols   []string  `json:"symbols"`
	FetchedAt time.Time `json:"fetched_at"`
}

func saveDiskCache(dir, name string, symbols []string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(diskCache{Symbols: symbols, FetchedAt: time.Now()}, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize cache: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}

func loadDiskCache(dir, name string) ([]string, error) {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var cached diskCache
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("parse cache file: %w", err)
	}

	age := time.Since(cached.FetchedAt)
	if age > 24*time.Hour {
		log.Warn().Str("file", name).Float64("age_hours", age.Hours()).
			Msg("discovery cache is stale but still usable")
	}
	return cached.Symbols, nil
}
