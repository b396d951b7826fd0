package models

import "time"

// ResolutionStatus describes how a symbol was mapped to the institutional
// data provider.
type ResolutionStatus string

const (
	// StatusResolved means exchange-specific provider data is available.
	StatusResolved ResolutionStatus = "resolved"
	// StatusAggregated means only the cross-exchange aggregate is available.
	StatusAggregated ResolutionStatus = "aggregated"
	// StatusNeutral means no provider data was found.
	StatusNeutral ResolutionStatus = "neutral"
)

// Resolution is the outcome of mapping one exchange ticker.
type Resolution struct {
	Symbol          string           `json:"symbol"`
	Exchange        string           `json:"exchange"`
	CanonicalSymbol string           `json:"canonical_symbol"`
	ProviderSymbol  string           `json:"provider_symbol,omitempty"`
	Status          ResolutionStatus `json:"status"`
}

// SeriesPoint is one timestamped value from the provider.
type SeriesPoint struct {
	Time  time.Time `json:"t"`
	Value float64   `json:"v"`
}

// Liquidation is one liquidation history bucket.
type Liquidation struct {
	Time  time.Time `json:"t"`
	Long  float64   `json:"l"`
	Short float64   `json:"s"`
}

// ExternalData is the institutional data attached to one symbol for one
// scan cycle. Every field other than Status may be empty.
type ExternalData struct {
	ProviderSymbol string           `json:"provider_symbol,omitempty"`
	Status         ResolutionStatus `json:"status"`
	OpenInterest   []SeriesPoint    `json:"open_interest,omitempty"`
	// FundingRate is in percent per funding interval (0.01 == 0.01%).
	FundingRate    *float64      `json:"funding_rate,omitempty"`
	LongShortRatio *float64      `json:"long_short_ratio,omitempty"`
	Liquidations   []Liquidation `json:"liquidations,omitempty"`
}

// NeutralExternalData returns the record used when nothing was resolved.
func NeutralExternalData() *ExternalData {
	return &ExternalData{Status: StatusNeutral}
}

// OIValues returns the open interest history as plain values.
func (e *ExternalData) OIValues() []float64 {
	if e == nil {
		return nil
	}
	out := make([]float64, len(e.OpenInterest))
	for i, p := range e.OpenInterest {
		out[i] = p.Value
	}
	return out
}

// HasData reports whether any field carries provider data.
func (e *ExternalData) HasData() bool {
	if e == nil {
		return false
	}
	return len(e.OpenInterest) > 0 || e.FundingRate != nil || e.LongShortRatio != nil || len(e.Liquidations) > 0
}
