package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/types"
)

func fakeGemini(t *testing.T, handler func(model string, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Path: /<model>:generateContent
		path := strings.TrimPrefix(r.URL.Path, "/")
		model := strings.TrimSuffix(path, ":generateContent")
		handler(model, w)
	}))
}

func textResponse(text string) string {
	return `{"candidates":[{"content":{"parts":[{"text":` + jsonString(text) + `}]}}]}`
}

func jsonString(s string) string {
	out := strings.ReplaceAll(s, `"`, `\"`)
	out = strings.ReplaceAll(out, "\n", `\n`)
	return `"` + out + `"`
}

const quotaBody = `{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`

func TestAskFallsBackOnQuota(t *testing.T) {
	var calls atomic.Int32
	srv := fakeGemini(t, func(model string, w http.ResponseWriter) {
		calls.Add(1)
		if model == "primary" {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(quotaBody))
			return
		}
		w.Write([]byte(textResponse("BEKLE\npiyasa yönsüz")))
	})
	defer srv.Close()

	c := NewClient("test-key", []string{"primary", "backup"})
	c.SetBaseURL(srv.URL)

	out, err := c.Ask(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Contains(t, out, "BEKLE")
	assert.Equal(t, int32(2), calls.Load())

	// The dead primary is not retried on the next Ask.
	assert.Equal(t, "backup", c.ActiveModel())
}

func TestAskFailsOnceWhenAllModelsExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := fakeGemini(t, func(model string, w http.ResponseWriter) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(quotaBody))
	})
	defer srv.Close()

	c := NewClient("test-key", []string{"a", "b", "c"})
	c.SetBaseURL(srv.URL)

	_, err := c.Ask(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrQuotaExhausted)
	// Exactly one attempt per model, no infinite loop.
	assert.Equal(t, int32(3), calls.Load())
}

func TestAskPropagatesNonQuotaErrors(t *testing.T) {
	var calls atomic.Int32
	srv := fakeGemini(t, func(model string, w http.ResponseWriter) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"bad key","status":"PERMISSION_DENIED"}}`))
	})
	defer srv.Close()

	c := NewClient("test-key", []string{"a", "b"})
	c.SetBaseURL(srv.URL)

	_, err := c.Ask(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAuth)
	// Auth failures do not walk the chain.
	assert.Equal(t, int32(1), calls.Load())
}

func TestReconfigureResetsToPrimary(t *testing.T) {
	c := NewClient("k", []string{"a", "b", "a"})
	assert.Equal(t, "a", c.ActiveModel())

	c.setActive(1)
	assert.Equal(t, "b", c.ActiveModel())

	c.Reconfigure("", []string{"x", "y"})
	assert.Equal(t, "x", c.ActiveModel())
}

func TestDedupPreservesOrder(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedup([]string{"a", "b", "a", "c", "b", ""}))
}

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"recommendation\":\"AL\"}\n```", `{"recommendation":"AL"}`},
		{"bare fence", "```\n{\"recommendation\":\"SAT\"}\n```", `{"recommendation":"SAT"}`},
		{"no fence", `{"recommendation":"BEKLE"}`, `{"recommendation":"BEKLE"}`},
		{"fence with prose", "Analizim:\n```json\n{\"recommendation\":\"AL\"}\n```\niyi şanslar", `{"recommendation":"AL"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripFences(tc.in))
		})
	}
}

func TestParseAnalysis(t *testing.T) {
	t.Run("well formed json", func(t *testing.T) {
		raw := "```json\n{\"symbol\":\"BTC/USDT\",\"timeframe\":\"15m\",\"recommendation\":\"AL\",\"reason\":\"trend güçlü\",\"analysis_type\":\"MTA\",\"trend_timeframe\":\"4h\",\"data\":{\"price\":64250.5}}\n```"
		a, rec := ParseAnalysis(raw)
		assert.Equal(t, "BTC/USDT", a.Symbol)
		assert.Equal(t, "MTA", a.AnalysisType)
		assert.Equal(t, 64250.5, a.Data.Price)
		assert.Equal(t, types.ActionBuy, rec.Action)
		assert.Equal(t, "trend güçlü", rec.Reason)
	})

	t.Run("token fallback", func(t *testing.T) {
		_, rec := ParseAnalysis("KAPAT\nzarar büyüyor")
		assert.Equal(t, types.ActionClose, rec.Action)
		assert.Equal(t, "zarar büyüyor", rec.Reason)
	})

	t.Run("garbage is unknown", func(t *testing.T) {
		_, rec := ParseAnalysis("no decision here")
		assert.Equal(t, types.ActionUnknown, rec.Action)
		assert.False(t, rec.IsActionable())
	})
}
