package models

// Bias is the directional lean of a signal.
type Bias string

const (
	BiasLong    Bias = "LONG"
	BiasShort   Bias = "SHORT"
	BiasNeutral Bias = "NEUTRAL"
)

// Sign returns +1 for long, -1 for short and 0 otherwise.
func (b Bias) Sign() float64 {
	switch b {
	case BiasLong:
		return 1
	case BiasShort:
		return -1
	default:
		return 0
	}
}

// Action is what the caller should do with a signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionWait Action = "WAIT"
)

// Setup holds the risk parameters attached to an actionable signal.
type Setup struct {
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	RiskReward float64 `json:"risk_reward"`
	Side       Bias    `json:"side"`
}

// Signal is the standardized output of one strategy for one symbol.
// Score and TotalScore always carry the same value.
type Signal struct {
	StrategyName    string             `json:"strategy_name"`
	Symbol          string             `json:"symbol"`
	CanonicalSymbol string             `json:"canonical_symbol"`
	Exchange        string             `json:"exchange"`
	Price           float64            `json:"price"`
	Score           float64            `json:"score"`
	TotalScore      float64            `json:"total_score"`
	Bias            Bias               `json:"bias"`
	Action          Action             `json:"action"`
	Setup           Setup              `json:"setup"`
	ScoreBreakdown  map[string]float64 `json:"score_breakdown"`
	Diagnostics     map[string]any     `json:"diagnostics,omitempty"`

	// NextState is the sticky state a strategy wants persisted for the
	// next scan cycle. Nil means nothing to save.
	NextState *PriorState `json:"-"`
}

// Actionable reports whether the signal asks for a trade.
func (s Signal) Actionable() bool {
	return s.Action == ActionBuy || s.Action == ActionSell
}
