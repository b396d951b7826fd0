package indicators

import (
	"fmt"
	"sort"

	"SignalScope/internal/domain/models"
)

// Output names stored in an indicator Set.
const (
	RSIKey        = "rsi"
	RSIAvgGainKey = "rsi_avg_gain"
	RSIAvgLossKey = "rsi_avg_loss"
	EMAFastKey    = "ema_fast"
	EMASlowKey    = "ema_slow"
	EMATrendKey   = "ema_trend"
	ADXKey        = "adx"
	PlusDIKey     = "plus_di"
	MinusDIKey    = "minus_di"
	ATRKey        = "atr"
	BBUpperKey    = "bb_upper"
	BBMiddleKey   = "bb_middle"
	BBLowerKey    = "bb_lower"
	OBVKey        = "obv"
	MACDKey       = "macd"
	MACDSignalKey = "macd_signal"
	MACDHistKey   = "macd_hist"
)

// Set maps output names to series for one timeframe.
type Set map[string]Series

// Get returns the named series if present.
func (s Set) Get(name string) (Series, bool) {
	v, ok := s[name]
	return v, ok
}

// Last returns the latest defined value of the named series.
func (s Set) Last(name string) (float64, bool) {
	v, ok := s[name]
	if !ok {
		return 0, false
	}
	return v.Last()
}

// Params configures the built-in indicators.
type Params struct {
	RSIPeriod  int
	EMAFast    int
	EMASlow    int
	EMATrend   int
	ADXPeriod  int
	ATRPeriod  int
	BBPeriod   int
	BBStdDev   float64
	MACDFast   int
	MACDSlow   int
	MACDSignal int
}

// DefaultParams returns the conventional indicator periods.
func DefaultParams() Params {
	return Params{
		RSIPeriod:  14,
		EMAFast:    20,
		EMASlow:    50,
		EMATrend:   200,
		ADXPeriod:  14,
		ATRPeriod:  14,
		BBPeriod:   20,
		BBStdDev:   2,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
	}
}

// ComputeFunc is a pure indicator computation over candles.
type ComputeFunc func(cs []models.Candle, p Params) (Set, error)

// Indicator is one registry entry. Compute may emit several outputs.
type Indicator struct {
	Name    string
	Compute ComputeFunc
}

// Registry is the table of indicators the context builder can enable.
type Registry struct {
	entries map[string]Indicator
}

// NewRegistry builds a registry from entries. Later entries replace
// earlier ones with the same name.
func NewRegistry(entries ...Indicator) *Registry {
	r := &Registry{entries: make(map[string]Indicator, len(entries))}
	for _, e := range entries {
		r.Register(e)
	}
	return r
}

// Register adds or replaces an indicator.
func (r *Registry) Register(ind Indicator) {
	r.entries[ind.Name] = ind
}

// Get looks up an indicator by name.
func (r *Registry) Get(name string) (Indicator, bool) {
	ind, ok := r.entries[name]
	return ind, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns the built-in indicator table.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Indicator{Name: "rsi", Compute: computeRSI},
		Indicator{Name: "ema_fast", Compute: emaEntry(EMAFastKey, func(p Params) int { return p.EMAFast })},
		Indicator{Name: "ema_slow", Compute: emaEntry(EMASlowKey, func(p Params) int { return p.EMASlow })},
		Indicator{Name: "ema_trend", Compute: emaEntry(EMATrendKey, func(p Params) int { return p.EMATrend })},
		Indicator{Name: "adx", Compute: computeADX},
		Indicator{Name: "atr", Compute: computeATR},
		Indicator{Name: "bollinger", Compute: computeBollinger},
		Indicator{Name: "obv", Compute: computeOBV},
		Indicator{Name: "macd", Compute: computeMACD},
	)
}

func computeRSI(cs []models.Candle, p Params) (Set, error) {
	r, err := RSI(models.Closes(cs), p.RSIPeriod)
	if err != nil {
		return nil, fmt.Errorf("rsi(%d): %w", p.RSIPeriod, err)
	}
	return Set{RSIKey: r.RSI, RSIAvgGainKey: r.AvgGain, RSIAvgLossKey: r.AvgLoss}, nil
}

func emaEntry(key string, period func(Params) int) ComputeFunc {
	return func(cs []models.Candle, p Params) (Set, error) {
		n := period(p)
		s, err := EMA(models.Closes(cs), n)
		if err != nil {
			return nil, fmt.Errorf("ema(%d): %w", n, err)
		}
		return Set{key: s}, nil
	}
}

func computeADX(cs []models.Candle, p Params) (Set, error) {
	r, err := ADX(cs, p.ADXPeriod)
	if err != nil {
		return nil, fmt.Errorf("adx(%d): %w", p.ADXPeriod, err)
	}
	return Set{ADXKey: r.ADX, PlusDIKey: r.PlusDI, MinusDIKey: r.MinusDI}, nil
}

func computeATR(cs []models.Candle, p Params) (Set, error) {
	s, err := ATR(cs, p.ATRPeriod)
	if err != nil {
		return nil, fmt.Errorf("atr(%d): %w", p.ATRPeriod, err)
	}
	return Set{ATRKey: s}, nil
}

func computeBollinger(cs []models.Candle, p Params) (Set, error) {
	r, err := Bollinger(models.Closes(cs), p.BBPeriod, p.BBStdDev)
	if err != nil {
		return nil, fmt.Errorf("bollinger(%d): %w", p.BBPeriod, err)
	}
	return Set{BBUpperKey: r.Upper, BBMiddleKey: r.Middle, BBLowerKey: r.Lower}, nil
}

func computeOBV(cs []models.Candle, _ Params) (Set, error) {
	s, err := OBV(cs)
	if err != nil {
		return nil, fmt.Errorf("obv: %w", err)
	}
	return Set{OBVKey: s}, nil
}

func computeMACD(cs []models.Candle, p Params) (Set, error) {
	r, err := MACD(models.Closes(cs), p.MACDFast, p.MACDSlow, p.MACDSignal)
	if err != nil {
		return nil, fmt.Errorf("macd(%d,%d,%d): %w", p.MACDFast, p.MACDSlow, p.MACDSignal, err)
	}
	return Set{MACDKey: r.MACD, MACDSignalKey: r.Signal, MACDHistKey: r.Histogram}, nil
}
