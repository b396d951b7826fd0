package service

import (
	"context"

	"SignalScope/internal/domain/models"
)

// SymbolResolver maps an exchange ticker to a canonical asset and an
// institutional data provider symbol.
type SymbolResolver interface {
	Resolve(ctx context.Context, symbol, exchange string) models.Resolution
}

// ExternalDataFetcher loads institutional data for resolved symbols.
// Missing data never fails the call; affected symbols are simply absent
// from the result or carry empty fields.
type ExternalDataFetcher interface {
	FetchAll(ctx context.Context, resolutions []models.Resolution) map[string]*models.ExternalData
}
