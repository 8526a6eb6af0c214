package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"tradepulse/types"
)

var (
	reJSONFence = regexp.MustCompile("(?is)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	reJSONBody  = regexp.MustCompile(`(?s)\{.*\}`)
)

// Analysis is the structured payload the prompts demand from the model.
type Analysis struct {
	Symbol         string `json:"symbol"`
	Timeframe      string `json:"timeframe"`
	Recommendation string `json:"recommendation"`
	Reason         string `json:"reason"`
	AnalysisType   string `json:"analysis_type"`
	TrendTimeframe string `json:"trend_timeframe,omitempty"`
	Data           struct {
		Price          float64 `json:"price"`
		SentimentScore float64 `json:"sentiment_score,omitempty"`
	} `json:"data"`
}

// StripFences removes a wrapping markdown code fence, with or without a
// json language tag, so the payload JSON-decodes cleanly.
func StripFences(text string) string {
	out := strings.TrimSpace(text)
	if m := reJSONFence.FindStringSubmatch(out); m != nil {
		return strings.TrimSpace(m[1])
	}
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	return strings.TrimSpace(out)
}

// ParseAnalysis decodes a model response into its Analysis payload and a
// Recommendation parsed exactly once here. Model output drifts: a response
// that is not valid JSON falls back to decision-token scanning over the
// raw text.
func ParseAnalysis(raw string) (Analysis, types.Recommendation) {
	text := StripFences(raw)

	var a Analysis
	body := text
	if m := reJSONBody.FindString(text); m != "" {
		body = m
	}
	if err := json.Unmarshal([]byte(body), &a); err == nil && a.Recommendation != "" {
		rec := types.ParseRecommendation(a.Recommendation)
		rec.Raw = raw
		rec.Reason = a.Reason
		return a, rec
	}

	rec := types.ParseRecommendation(text)
	rec.Raw = raw
	a.Recommendation = rec.Action.String()
	a.Reason = rec.Reason
	return a, rec
}
