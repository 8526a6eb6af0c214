// Package discovery fetches trade candidates from external HTTP sources.
// Every source fails soft: on error after retries and cache fallback it
// returns an empty slice so a dead third-party API never blocks a scan.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tradepulse/cache"
	"tradepulse/exchange"
)

const (
	maxRetries    = 3
	retryDelay    = 2 * time.Second
	cacheDir      = "discovery_cache"
	screenerTTL   = 900 * time.Second
	screenerCache = "screener_latest.json"
)

// Screener asks a bulk indicator screener which of the liquid symbols
// already sit outside the configured RSI bands.
type Screener struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *cache.Cache
	dir        string
}

func NewScreener(baseURL, apiKey string, c *cache.Cache) *Screener {
	return &Screener{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      c,
		dir:        cacheDir,
	}
}

// Enabled reports whether the source is configured at all.
func (s *Screener) Enabled() bool { return s.baseURL != "" && s.apiKey != "" }

type screenerRequest struct {
	Secret  string   `json:"secret"`
	Symbols []string `json:"symbols"`
	RSILow  float64  `json:"rsi_low"`
	RSIHigh float64  `json:"rsi_high"`
}

type screenerResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		Symbol string  `json:"symbol"`
		RSI    float64 `json:"rsi"`
	} `json:"data"`
}

// Fetch returns the screener's hits among the given symbols. The response
// is cached for 15 minutes; a failed API falls back to the disk cache and
// finally to an empty slice.
func (s *Screener) Fetch(ctx context.Context, symbols []string, rsiLower, rsiUpper float64) ([]string, error) {
	if !s.Enabled() || len(symbols) == 0 {
		return nil, nil
	}

	key := fmt.Sprintf("screener_%.0f_%.0f", rsiLower, rsiUpper)
	hits, err := s.cache.GetOr(key, screenerTTL, func() (any, error) {
		return s.fetchWithRetry(ctx, symbols, rsiLower, rsiUpper), nil
	})
	if err != nil {
		return nil, nil
	}
	return hits.([]string), nil
}

func (s *Screener) fetchWithRetry(ctx context.Context, symbols []string, rsiLower, rsiUpper float64) []string {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			log.Warn().Int("attempt", attempt).Msg("retrying screener fetch")
			time.Sleep(retryDelay)
		}

		hits, err := s.fetch(ctx, symbols, rsiLower, rsiUpper)
		if err == nil {
			if err := saveDiskCache(s.dir, screenerCache, hits); err != nil {
				log.Warn().Err(err).Msg("screener cache save failed")
			}
			return hits
		}
		lastErr = err
		log.Error().Err(err).Int("attempt", attempt).Msg("screener fetch failed")
	}

	if cached, err := loadDiskCache(s.dir, screenerCache); err == nil {
		log.Info().Int("count", len(cached)).Msg("using cached screener hits")
		return cached
	}

	log.Warn().Err(lastErr).Msg("screener unavailable, skipping source")
	return nil
}

func (s *Screener) fetch(ctx context.Context, symbols []string, rsiLower, rsiUpper float64) ([]string, error) {
	wire := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		wire = append(wire, exchange.Wire(sym))
	}

	body, err := json.Marshal(screenerRequest{
		Secret:  s.apiKey,
		Symbols: wire,
		RSILow:  rsiLower,
		RSIHigh: rsiUpper,
	})
	if err != nil {
		return nil, fmt.Errorf("encode screener request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/screen", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build screener request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("screener request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read screener response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("screener returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed screenerResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse screener response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("screener reported failure")
	}

	hits := make([]string, 0, len(parsed.Data))
	for _, row := range parsed.Data {
		if row.RSI <= rsiLower || row.RSI >= rsiUpper {
			hits = append(hits, exchange.Canon(row.Symbol))
		}
	}

	log.Info().Int("screened", len(symbols)).Int("hits", len(hits)).Msg("screener fetch complete")
	return hits, nil
}
