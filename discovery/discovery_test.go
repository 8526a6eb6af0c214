package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/cache"
)

func TestScreenerReturnsOnlyBandViolations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/screen", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		w.Write([]byte(`{"success":true,"data":[
			{"symbol":"BTCUSDT","rsi":25.0},
			{"symbol":"ETHUSDT","rsi":50.0},
			{"symbol":"SOLUSDT","rsi":80.0}
		]}`))
	}))
	defer srv.Close()

	s := NewScreener(srv.URL, "secret", cache.New())
	s.dir = t.TempDir()

	hits, err := s.Fetch(context.Background(), []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}, 38, 62)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT", "SOL/USDT"}, hits)
}

func TestScreenerCachesResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"success":true,"data":[{"symbol":"BTCUSDT","rsi":20.0}]}`))
	}))
	defer srv.Close()

	s := NewScreener(srv.URL, "secret", cache.New())
	s.dir = t.TempDir()

	for i := 0; i < 3; i++ {
		hits, err := s.Fetch(context.Background(), []string{"BTC/USDT"}, 38, 62)
		require.NoError(t, err)
		assert.Equal(t, []string{"BTC/USDT"}, hits)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestScreenerFailsSoftToDiskCache(t *testing.T) {
	patch := gomonkey.ApplyFunc(time.Sleep, func(time.Duration) {})
	defer patch.Reset()

	dir := t.TempDir()
	require.NoError(t, saveDiskCache(dir, screenerCache, []string{"ETH/USDT"}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewScreener(srv.URL, "secret", cache.New())
	s.dir = dir

	hits, err := s.Fetch(context.Background(), []string{"BTC/USDT"}, 38, 62)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH/USDT"}, hits)
}

func TestScreenerDisabledWithoutConfig(t *testing.T) {
	s := NewScreener("", "", cache.New())
	assert.False(t, s.Enabled())

	hits, err := s.Fetch(context.Background(), []string{"BTC/USDT"}, 38, 62)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestTrendingMapsAndDedupes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/trending", r.URL.Path)
		w.Write([]byte(`{"coins":[
			{"item":{"symbol":"pepe"}},
			{"item":{"symbol":"PEPE"}},
			{"item":{"symbol":"wif"}}
		]}`))
	}))
	defer srv.Close()

	tr := NewTrending(srv.URL, cache.New())
	tr.dir = t.TempDir()

	symbols, err := tr.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"PEPE/USDT", "WIF/USDT"}, symbols)
}

func TestTrendingFailsSoftToEmpty(t *testing.T) {
	patch := gomonkey.ApplyFunc(time.Sleep, func(time.Duration) {})
	defer patch.Reset()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewTrending(srv.URL, cache.New())
	tr.dir = t.TempDir()

	symbols, err := tr.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, symbols)
}
