package types

import "strings"

// Action is the decision extracted from a model response.
type Action int

const (
	ActionUnknown Action = iota
	ActionBuy            // AL
	ActionSell           // SAT
	ActionWait           // BEKLE
	ActionHold           // TUT
	ActionClose          // KAPAT
)

// String returns the decision token the models are prompted with.
func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "AL"
	case ActionSell:
		return "SAT"
	case ActionWait:
		return "BEKLE"
	case ActionHold:
		return "TUT"
	case ActionClose:
		return "KAPAT"
	default:
		return "UNKNOWN"
	}
}

// Recommendation is a model response parsed exactly once at the LLM
// boundary. Downstream code switches on Action and never re-reads Raw.
type Recommendation struct {
	Action Action `json:"action"`
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

// IsActionable reports whether the recommendation opens a trade.
func (r Recommendation) IsActionable() bool {
	return r.Action == ActionBuy || r.Action == ActionSell
}

// IsClose reports whether the recommendation closes a position.
func (r Recommendation) IsClose() bool { return r.Action == ActionClose }

// Side maps the action to a position side. Only valid when IsActionable.
func (r Recommendation) Side() string {
	if r.Action == ActionBuy {
		return SideBuy
	}
	return SideSell
}

// ParseRecommendation turns a raw model response into a Recommendation.
// Well-formed responses lead with one decision token on the first line;
// anything after the first line is kept as the reason.
func ParseRecommendation(raw string) Recommendation {
	rec := Recommendation{Action: ActionUnknown, Raw: raw}

	text := strings.TrimSpace(raw)
	if text == "" {
		return rec
	}

	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		rec.Reason = strings.TrimSpace(lines[1])
	}

	// Method 1: exact token on the first line.
	token := strings.ToUpper(strings.Trim(strings.TrimSpace(lines[0]), ".:!*\"'"))
	if a, ok := tokenAction(token); ok {
		rec.Action = a
		return rec
	}

	// Method 2: scan the whole response. KAPAT first as the most specific,
	// then AL before SAT: a response carrying AL anywhere means buy even
	// when SAT also appears ("SATIN AL").
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "KAPAT"):
		rec.Action = ActionClose
	case strings.Contains(upper, "BEKLE"):
		rec.Action = ActionWait
	case strings.Contains(upper, "TUT"):
		rec.Action = ActionHold
	case strings.Contains(upper, "AL"):
		rec.Action = ActionBuy
	case strings.Contains(upper, "SAT"):
		rec.Action = ActionSell
	}
	return rec
}

func tokenAction(token string) (Action, bool) {
	switch token {
	case "AL":
		return ActionBuy, true
	case "SAT":
		return ActionSell, true
	case "BEKLE":
		return ActionWait, true
	case "TUT":
		return ActionHold, true
	case "KAPAT":
		return ActionClose, true
	}
	return ActionUnknown, false
}
