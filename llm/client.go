// Package llm is the Gemini client with ordered model fallback. One Ask
// walks the chain at most once: quota-exhausted models advance the active
// index, anything else propagates immediately.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tradepulse/logger"
	"tradepulse/types"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

const (
	transportRetries = 3
	requestTimeout   = 30 * time.Second
)

// generateRequest is the generateContent payload.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse is the subset of the generateContent response we read.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Client walks an ordered model chain. The active index survives across
// Asks so a quota-dead primary is not retried on every call.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu     sync.Mutex
	apiKey string
	models []string
	active int
}

var _ types.LLMClient = (*Client)(nil)

// NewClient builds the client. models is [primary, fallbacks...]; duplicates
// collapse keeping first occurrence.
func NewClient(apiKey string, models []string) *Client {
	transport := &http.Transport{
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &Client{
		baseURL:    geminiBaseURL,
		apiKey:     apiKey,
		models:     dedup(models),
		httpClient: &http.Client{Timeout: requestTimeout, Transport: transport},
	}
}

// SetBaseURL points the client at a different endpoint. Tests use this.
func (c *Client) SetBaseURL(url string) { c.baseURL = strings.TrimRight(url, "/") }

// Reconfigure swaps the model chain and resets fallback state to the
// primary model.
func (c *Client) Reconfigure(apiKey string, models []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if apiKey != "" {
		c.apiKey = apiKey
	}
	c.models = dedup(models)
	c.active = 0
	logger.Infof("🤖 LLM reconfigured: %s", strings.Join(c.models, " → "))
}

// ActiveModel returns the model the next Ask will try first.
func (c *Client) ActiveModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.models) == 0 {
		return ""
	}
	return c.models[c.active]
}

// Ask sends prompt to the active model, rotating through the fallback
// chain on quota exhaustion. The returned text has markdown fences
// stripped.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	models := append([]string(nil), c.models...)
	start := c.active
	apiKey := c.apiKey
	c.mu.Unlock()

	if len(models) == 0 {
		return "", fmt.Errorf("llm: no models configured: %w", types.ErrNotSupported)
	}
	if apiKey == "" {
		return "", fmt.Errorf("llm: missing API key: %w", types.ErrAuth)
	}

	var lastErr error
	for attempt := 0; attempt < len(models); attempt++ {
		idx := (start + attempt) % len(models)
		model := models[idx]

		text, err := c.generate(ctx, apiKey, model, prompt)
		if err == nil {
			c.setActive(idx)
			return StripFences(text), nil
		}

		if !isQuotaErr(err) {
			return "", err
		}

		lastErr = err
		next := (idx + 1) % len(models)
		if next == 0 {
			logger.Criticalf("all LLM models exhausted, wrapping to primary %s", models[0])
		} else {
			logger.Warnf("⚠️ Model %s quota exhausted, falling back to %s", model, models[next])
		}
		c.setActive(next)
	}
	return "", fmt.Errorf("llm: all %d models exhausted: %w", len(models), lastErr)
}

func (c *Client) setActive(idx int) {
	c.mu.Lock()
	if idx < len(c.models) {
		c.active = idx
	}
	c.mu.Unlock()
}

// generate performs one generateContent call with transport-level retries
// for transient failures.
func (c *Client) generate(ctx context.Context, apiKey, model, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.baseURL, model, apiKey)

	var lastErr error
	for attempt := 1; attempt <= transportRetries; attempt++ {
		text, err := c.doGenerate(ctx, url, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !isRetryableErr(err) {
			return "", err
		}
		if attempt < transportRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			logger.Debugf("🤖 %s retry %d/%d in %v: %v", model, attempt, transportRetries, backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", fmt.Errorf("llm: %w: %v", types.ErrNetwork, ctx.Err())
			}
		}
	}
	return "", lastErr
}

func (c *Client) doGenerate(ctx context.Context, url string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: %w: %v", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w: %v", types.ErrNetwork, err)
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil && resp.StatusCode == http.StatusOK {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		decoded.Error != nil && decoded.Error.Status == "RESOURCE_EXHAUSTED":
		return "", fmt.Errorf("llm: %w", types.ErrQuotaExhausted)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("llm: %w: HTTP %d", types.ErrAuth, resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("llm: %w: HTTP %d", types.ErrNetwork, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		msg := ""
		if decoded.Error != nil {
			msg = decoded.Error.Message
		}
		return "", fmt.Errorf("llm: HTTP %d: %s", resp.StatusCode, msg)
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}

	var sb strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func isQuotaErr(err error) bool {
	return errors.Is(err, types.ErrQuotaExhausted)
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused", "eof", "http 502", "http 503", "http 504"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func dedup(models []string) []string {
	out := make([]string, 0, len(models))
	seen := make(map[string]struct{}, len(models))
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
