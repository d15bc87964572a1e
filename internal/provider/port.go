// Package provider defines the outbound provider port: the abstract
// capability the core depends on to reach the remote Vietnamese
// market-data provider. Concrete implementations live under
// internal/providers/; tests substitute a fake satisfying the same
// interface.
package provider

import (
	"context"
	"time"

	"github.com/Kyon9x/vn-market-service/internal/models"
)

// ResultStatus discriminates the outcome of a provider call. Callers must
// never leak provider-native error types above this port.
type ResultStatus int

const (
	StatusOK ResultStatus = iota
	StatusOKEmpty
	StatusTransientError
	StatusRateLimited
	StatusPermanentError
)

// QuoteResult is the tagged outcome of FetchQuote.
type QuoteResult struct {
	Status     ResultStatus
	Quote      models.Quote
	RetryAfter time.Duration // only meaningful when Status == StatusRateLimited
	Err        error
}

// HistoryResult is the tagged outcome of FetchHistory, indexed by date.
type HistoryResult struct {
	Status     ResultStatus
	Records    []models.HistoricalRecord
	RetryAfter time.Duration
	Err        error
}

// ListingResult is the tagged outcome of FetchListing.
type ListingResult struct {
	Status     ResultStatus
	Assets     []models.Asset
	RetryAfter time.Duration
	Err        error
}

// Port is the abstract outbound capability core components depend on.
type Port interface {
	// FetchQuote returns the latest quote for symbol/assetType.
	FetchQuote(ctx context.Context, symbol string, assetType models.AssetType) QuoteResult

	// FetchHistory returns raw rows for [start, end] inclusive.
	FetchHistory(ctx context.Context, symbol string, assetType models.AssetType, start, end string) HistoryResult

	// FetchListing returns every known asset descriptor for assetType.
	FetchListing(ctx context.Context, assetType models.AssetType) ListingResult

	// FetchGoldSpotByDate returns the SJC gold spot for one ISO date.
	FetchGoldSpotByDate(ctx context.Context, date string) HistoryResult
}
