// Package models holds the canonical shapes shared by every component:
// assets, historical records, and the quote/search payloads derived from
// them. Types here have no I/O and no locking — they are pure data.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AssetType is a closed enum; the (class, sub-class) pairing in
// classificationTable below is load-bearing — every Asset must carry the
// class/sub-class its type requires.
type AssetType string

const (
	AssetStock AssetType = "STOCK"
	AssetFund  AssetType = "FUND"
	AssetIndex AssetType = "INDEX"
	AssetGold  AssetType = "GOLD"
)

func (t AssetType) Valid() bool {
	switch t {
	case AssetStock, AssetFund, AssetIndex, AssetGold:
		return true
	}
	return false
}

// classification is the (asset_class, asset_sub_class) pair a given
// AssetType is required to carry. Any Asset whose class/sub-class don't
// match its type's row here is invalid.
type classification struct {
	Class    string
	SubClass string
}

var classificationTable = map[AssetType]classification{
	AssetStock: {Class: "equity", SubClass: "listed"},
	AssetFund:  {Class: "fund", SubClass: "mutual_fund"},
	AssetIndex: {Class: "index", SubClass: "market_index"},
	AssetGold:  {Class: "commodity", SubClass: "precious_metal"},
}

// ClassificationFor returns the required (class, sub-class) for t.
func ClassificationFor(t AssetType) (class, subClass string, ok bool) {
	c, ok := classificationTable[t]
	return c.Class, c.SubClass, ok
}

const DefaultCurrency = "VND"

// Asset is the canonical identity of a tradable instrument, keyed by Symbol.
type Asset struct {
	Symbol        string            `json:"symbol" db:"symbol"`
	Name          string            `json:"name" db:"name"`
	AssetType     AssetType         `json:"asset_type" db:"asset_type"`
	AssetClass    string            `json:"asset_class" db:"asset_class"`
	AssetSubClass string            `json:"asset_sub_class" db:"asset_sub_class"`
	Exchange      string            `json:"exchange" db:"exchange"`
	Currency      string            `json:"currency" db:"currency"`
	DataSource    string            `json:"data_source" db:"data_source"`
	Metadata      map[string]string `json:"metadata,omitempty" db:"-"`
}

// Validate checks the (asset_class, asset_sub_class) invariant.
func (a Asset) Validate() error {
	if a.Symbol == "" {
		return fmt.Errorf("asset: symbol is required")
	}
	if a.Symbol != strings.ToUpper(a.Symbol) {
		return fmt.Errorf("asset: symbol %q must be uppercase", a.Symbol)
	}
	class, subClass, ok := ClassificationFor(a.AssetType)
	if !ok {
		return fmt.Errorf("asset: unknown asset_type %q", a.AssetType)
	}
	if a.AssetClass != class || a.AssetSubClass != subClass {
		return fmt.Errorf("asset: %s must have class=%s sub_class=%s, got class=%s sub_class=%s",
			a.AssetType, class, subClass, a.AssetClass, a.AssetSubClass)
	}
	return nil
}

// NormalizeSymbol returns a trimmed, uppercase symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// GoldUnit distinguishes the two gold identifiers that share underlying
// storage: VN.GOLD (Lượng, canonical storage base) and VN.GOLD.C (Chỉ,
// 1/10 of a Lượng, converted on egress only).
type GoldUnit int

const (
	GoldLuong GoldUnit = iota
	GoldChi
)

const GoldBaseSymbol = "VN.GOLD"
const GoldChiSuffix = ".C"

// ParseGoldSymbol maps a requested symbol to the canonical storage symbol
// and the unit the caller asked for.
func ParseGoldSymbol(symbol string) (storageSymbol string, unit GoldUnit, ok bool) {
	symbol = NormalizeSymbol(symbol)
	switch symbol {
	case GoldBaseSymbol:
		return GoldBaseSymbol, GoldLuong, true
	case GoldBaseSymbol + GoldChiSuffix:
		return GoldBaseSymbol, GoldChi, true
	default:
		return "", 0, false
	}
}

// HistoricalRecord is an immutable point-in-time observation, primary-keyed
// by (Symbol, AssetType, Date). Placeholder records (IsPlaceholder) carry
// all-zero prices and exist only to prove a date was already attempted.
type HistoricalRecord struct {
	Symbol    string          `json:"symbol" db:"symbol"`
	AssetType AssetType       `json:"asset_type" db:"asset_type"`
	Date      string          `json:"date" db:"date"` // YYYY-MM-DD
	Open      float64         `json:"open,omitempty" db:"open"`
	High      float64         `json:"high,omitempty" db:"high"`
	Low       float64         `json:"low,omitempty" db:"low"`
	Close     float64         `json:"close,omitempty" db:"close"`
	AdjClose  float64         `json:"adjclose,omitempty" db:"adjclose"`
	Volume    float64         `json:"volume,omitempty" db:"volume"`
	NAV       float64         `json:"nav,omitempty" db:"nav"`
	BuyPrice  float64         `json:"buy_price,omitempty" db:"buy_price"`
	SellPrice float64         `json:"sell_price,omitempty" db:"sell_price"`
	DataJSON  json.RawMessage `json:"-" db:"data_json"`
	UpdatedAt int64           `json:"-" db:"updated_at"` // unix seconds
}

// IsPlaceholder reports whether every price field is zero — the sole
// purpose of such a row is to mark (symbol, date) as already attempted.
func (r HistoricalRecord) IsPlaceholder() bool {
	return r.Open == 0 && r.High == 0 && r.Low == 0 && r.Close == 0 &&
		r.AdjClose == 0 && r.NAV == 0 && r.BuyPrice == 0 && r.SellPrice == 0
}

// NormalizeGoldUnit divides every monetary field by 10 for the Chỉ
// variant, leaving Volume untouched.
func (r HistoricalRecord) NormalizeGoldUnit(unit GoldUnit) HistoricalRecord {
	if unit != GoldChi {
		return r
	}
	out := r
	out.Open /= 10
	out.High /= 10
	out.Low /= 10
	out.Close /= 10
	out.AdjClose /= 10
	out.BuyPrice /= 10
	out.SellPrice /= 10
	out.Symbol = GoldBaseSymbol + GoldChiSuffix
	return out
}

// Quote is the unified read-model returned by the Quote Service.
type Quote struct {
	Symbol        string    `json:"symbol"`
	AssetType     AssetType `json:"asset_type"`
	AssetClass    string    `json:"asset_class"`
	AssetSubClass string    `json:"asset_sub_class"`
	Currency      string    `json:"currency"`
	DataSource    string    `json:"data_source"`
	Open          float64   `json:"open,omitempty"`
	High          float64   `json:"high,omitempty"`
	Low           float64   `json:"low,omitempty"`
	Close         float64   `json:"close,omitempty"`
	AdjClose      float64   `json:"adjclose,omitempty"`
	Volume        float64   `json:"volume,omitempty"`
	Date          string    `json:"date"`
	NAV           float64   `json:"nav,omitempty"`
	BuyPrice      float64   `json:"buy_price,omitempty"`
	SellPrice     float64   `json:"sell_price,omitempty"`
	Degraded      bool      `json:"-"`
}

// QuoteFromRecord projects a HistoricalRecord into a Quote, used by the
// historical-fallback paths in the quote service.
func QuoteFromRecord(a Asset, r HistoricalRecord, degraded bool) Quote {
	return Quote{
		Symbol:        r.Symbol,
		AssetType:     r.AssetType,
		AssetClass:    a.AssetClass,
		AssetSubClass: a.AssetSubClass,
		Currency:      a.Currency,
		DataSource:    a.DataSource,
		Open:          r.Open,
		High:          r.High,
		Low:           r.Low,
		Close:         r.Close,
		AdjClose:      r.AdjClose,
		Volume:        r.Volume,
		Date:          r.Date,
		NAV:           r.NAV,
		BuyPrice:      r.BuyPrice,
		SellPrice:     r.SellPrice,
		Degraded:      degraded,
	}
}

// SearchResult is a single catalog hit returned by search endpoints.
type SearchResult struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	AssetType     AssetType `json:"asset_type"`
	AssetClass    string    `json:"asset_class"`
	AssetSubClass string    `json:"asset_sub_class"`
	Exchange      string    `json:"exchange"`
	Currency      string    `json:"currency"`
	DataSource    string    `json:"data_source"`
}

// SearchResultFromAsset projects an Asset into a SearchResult.
func SearchResultFromAsset(a Asset) SearchResult {
	return SearchResult{
		Symbol:        a.Symbol,
		Name:          a.Name,
		AssetType:     a.AssetType,
		AssetClass:    a.AssetClass,
		AssetSubClass: a.AssetSubClass,
		Exchange:      a.Exchange,
		Currency:      a.Currency,
		DataSource:    a.DataSource,
	}
}
