package discovery

import (
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
	trendingTTL       = 1800 * time.Second
	trendingCacheFile = "trending_latest.json"
)

// Trending pulls socially-trending coins (CoinGecko-style /search/trending)
// and maps them to USDT futures pairs. Listing on the exchange is checked
// by the caller, which holds the ticker set.
type Trending struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	dir        string
}

func NewTrending(baseURL string, c *cache.Cache) *Trending {
	return &Trending{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      c,
		dir:        cacheDir,
	}
}

func (t *Trending) Enabled() bool { return t.baseURL != "" }

type trendingResponse struct {
	Coins []struct {
		Item struct {
			Symbol string `json:"symbol"`
		} `json:"item"`
	} `json:"coins"`
}

// Fetch returns trending symbols as canonical USDT pairs, cached for 30
// minutes. Failure degrades to the disk cache, then to an empty slice.
func (t *Trending) Fetch(ctx context.Context) ([]string, error) {
	if !t.Enabled() {
		return nil, nil
	}

	symbols, err := t.cache.GetOr("trending", trendingTTL, func() (any, error) {
		return t.fetchWithRetry(ctx), nil
	})
	if err != nil {
		return nil, nil
	}
	return symbols.([]string), nil
}

func (t *Trending) fetchWithRetry(ctx context.Context) []string {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			log.Warn().Int("attempt", attempt).Msg("retrying trending fetch")
			time.Sleep(retryDelay)
		}

		symbols, err := t.fetch(ctx)
		if err == nil {
			if err := saveDiskCache(t.dir, trendingCacheFile, symbols); err != nil {
				log.Warn().Err(err).Msg("trending cache save failed")
			}
			return symbols
		}
		lastErr = err
		log.Error().Err(err).Int("attempt", attempt).Msg("trending fetch failed")
	}

	if cached, err := loadDiskCache(t.dir, trendingCacheFile); err == nil {
		log.Info().Int("count", len(cached)).Msg("using cached trending symbols")
		return cached
	}

	log.Warn().Err(lastErr).Msg("trending source unavailable, skipping")
	return nil
}

func (t *Trending) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/search/trending", nil)
	if err != nil {
		return nil, fmt.Errorf("build trending request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read trending response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trending returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed trendingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse trending response: %w", err)
	}

	seen := make(map[string]bool, len(parsed.Coins))
	symbols := make([]string, 0, len(parsed.Coins))
	for _, coin := range parsed.Coins {
		canon := exchange.Canon(coin.Item.Symbol)
		if canon == "" || seen[canon] {
			continue
		}
		seen[canon] = true
		symbols = append(symbols, canon)
	}

	log.Info().Int("count", len(symbols)).Msg("trending fetch complete")
	return symbols, nil
}
