package models

// Requests for the engine HTTP endpoints. Defined in domain for consistency and reuse.

// CandleDTO is the wire form of a candle. Time accepts RFC3339, unix seconds
// or unix milliseconds.
type CandleDTO struct {
	Time   string  `json:"time" validate:"required"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type AnalyzeRequest struct {
	Symbol     string      `json:"symbol" validate:"required"`
	Exchange   string      `json:"exchange" default:"binance" validate:"required"`
	LTF        []CandleDTO `json:"ltf" validate:"required,min=1,dive"`
	HTF        []CandleDTO `json:"htf,omitempty" validate:"omitempty,dive"`
	Strategies []string    `json:"strategies,omitempty" validate:"omitempty,dive,oneof=legacy breakout breakout_v2"`
}

type ScanSymbol struct {
	Symbol   string      `json:"symbol" validate:"required"`
	Exchange string      `json:"exchange" validate:"required"`
	LTF      []CandleDTO `json:"ltf,omitempty" validate:"omitempty,dive"`
	HTF      []CandleDTO `json:"htf,omitempty" validate:"omitempty,dive"`
}

type ScanRequest struct {
	Symbols    []ScanSymbol `json:"symbols" validate:"required,min=1,max=500,dive"`
	Timeframe  string       `json:"timeframe" default:"15m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	HTFrame    string       `json:"htf_timeframe" default:"4h" validate:"omitempty,oneof=1m 5m 15m 1h 4h 1d"`
	Limit      int          `json:"limit" default:"300" validate:"gte=50,lte=5000"`
	Strategies []string     `json:"strategies,omitempty" validate:"omitempty,dive,oneof=legacy breakout breakout_v2"`
}
