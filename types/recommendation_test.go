package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRecommendation(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantAction Action
		wantReason string
	}{
		{"plain buy token", "AL", ActionBuy, ""},
		{"plain sell token", "SAT", ActionSell, ""},
		{"wait token", "BEKLE", ActionWait, ""},
		{"hold token", "TUT", ActionHold, ""},
		{"close token", "KAPAT", ActionClose, ""},
		{"lowercase token", "al", ActionBuy, ""},
		{"token with punctuation", "AL.", ActionBuy, ""},
		{"token with rationale lines", "SAT\nRSI is overbought and ADX confirms the downtrend.", ActionSell, "RSI is overbought and ADX confirms the downtrend."},
		{"leading whitespace", "  BEKLE  \nno clear setup", ActionWait, "no clear setup"},
		{"close buried in prose", "Pozisyonu KAPAT, trend dondu.", ActionClose, ""},
		{"buy wins over sell in mixed prose", "SATIN AL sinyali var", ActionBuy, ""},
		{"empty response", "", ActionUnknown, ""},
		{"garbage response", "???", ActionUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ParseRecommendation(tt.raw)
			assert.Equal(t, tt.wantAction, rec.Action)
			assert.Equal(t, tt.raw, rec.Raw)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, rec.Reason)
			}
		})
	}
}

func TestRecommendationHelpers(t *testing.T) {
	assert.True(t, Recommendation{Action: ActionBuy}.IsActionable())
	assert.True(t, Recommendation{Action: ActionSell}.IsActionable())
	assert.False(t, Recommendation{Action: ActionWait}.IsActionable())
	assert.False(t, Recommendation{Action: ActionHold}.IsActionable())
	assert.True(t, Recommendation{Action: ActionClose}.IsClose())

	assert.Equal(t, SideBuy, Recommendation{Action: ActionBuy}.Side())
	assert.Equal(t, SideSell, Recommendation{Action: ActionSell}.Side())
}

func TestCleanBars(t *testing.T) {
	bars := []Bar{
		{Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10},
		{Open: 0, High: 101, Low: 99, Close: 100.5, Volume: 10},  // zero open
		{Open: 100, High: 101, Low: 99, Close: 0, Volume: 10},    // zero close
		{Open: 100, High: 101, Low: 99, Close: 100.2, Volume: 0}, // zero volume is fine
	}
	cleaned := CleanBars(bars)
	assert.Len(t, cleaned, 2)
	assert.Equal(t, 100.5, cleaned[0].Close)
	assert.Equal(t, 100.2, cleaned[1].Close)
}

func TestPositionMargin(t *testing.T) {
	p := Position{EntryPrice: 100, Amount: 25, Leverage: 10}
	assert.InDelta(t, 250.0, p.Margin(), 1e-9)

	unlevered := Position{EntryPrice: 100, Amount: 25}
	assert.InDelta(t, 2500.0, unlevered.Margin(), 1e-9)
}
