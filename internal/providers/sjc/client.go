// Package sjc is the concrete provider.Port implementation fronting the
// vnstock-style aggregator (SJC gold spot, HOSE/HNX/UPCOM stock quotes,
// fund NAV, market indices) over plain HTTP/JSON.
package sjc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Kyon9x/vn-market-service/internal/models"
	"github.com/Kyon9x/vn-market-service/internal/provider"
)

// Config holds client-level settings, overridable from the on-disk/env
// layered configuration.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	UserAgent      string
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.vnstock.example/v1",
		RequestTimeout: 10 * time.Second,
		UserAgent:      "vn-market-service/1.0",
	}
}

// Client is the HTTP-backed provider, wrapped at construction by a
// circuit breaker so a wedged upstream trips fast.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	breaker    *provider.Breaker
	log        zerolog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg = DefaultConfig()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		breaker:   provider.NewBreaker("sjc-aggregator"),
		log:       log.With().Str("component", "sjc_client").Logger(),
	}
}

var _ provider.Port = (*Client)(nil)

type quoteDTO struct {
	Symbol    string  `json:"symbol"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	AdjClose  float64 `json:"adjclose"`
	Volume    float64 `json:"volume"`
	Date      string  `json:"date"`
	NAV       float64 `json:"nav"`
	BuyPrice  float64 `json:"buy_price"`
	SellPrice float64 `json:"sell_price"`
}

func (d quoteDTO) toQuote(assetType models.AssetType) models.Quote {
	return models.Quote{
		Symbol:    d.Symbol,
		AssetType: assetType,
		Open:      d.Open,
		High:      d.High,
		Low:       d.Low,
		Close:     d.Close,
		AdjClose:  d.AdjClose,
		Volume:    d.Volume,
		Date:      d.Date,
		NAV:       d.NAV,
		BuyPrice:  d.BuyPrice,
		SellPrice: d.SellPrice,
	}
}

func (d quoteDTO) toRecord(assetType models.AssetType) models.HistoricalRecord {
	raw, _ := json.Marshal(d)
	return models.HistoricalRecord{
		Symbol: d.Symbol, AssetType: assetType, Date: d.Date,
		Open: d.Open, High: d.High, Low: d.Low, Close: d.Close, AdjClose: d.AdjClose,
		Volume: d.Volume, NAV: d.NAV, BuyPrice: d.BuyPrice, SellPrice: d.SellPrice,
		DataJSON: raw,
	}
}

type listingDTO struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Exchange      string `json:"exchange"`
	AssetClass    string `json:"asset_class"`
	AssetSubClass string `json:"asset_sub_class"`
}

// FetchQuote requests the latest quote for symbol/assetType.
func (c *Client) FetchQuote(ctx context.Context, symbol string, assetType models.AssetType) provider.QuoteResult {
	path := fmt.Sprintf("/quote?symbol=%s&type=%s", url.QueryEscape(symbol), strings.ToLower(string(assetType)))
	var dto quoteDTO
	if res := c.doJSON(ctx, path, &dto); res.Status != provider.StatusOK {
		return provider.QuoteResult{Status: res.Status, RetryAfter: res.RetryAfter, Err: res.Err}
	}
	return provider.QuoteResult{Status: provider.StatusOK, Quote: dto.toQuote(assetType)}
}

// FetchHistory requests raw rows for [start, end] inclusive.
func (c *Client) FetchHistory(ctx context.Context, symbol string, assetType models.AssetType, start, end string) provider.HistoryResult {
	path := fmt.Sprintf("/history?symbol=%s&type=%s&start=%s&end=%s",
		url.QueryEscape(symbol), strings.ToLower(string(assetType)), start, end)
	var dtos []quoteDTO
	if res := c.doJSON(ctx, path, &dtos); res.Status != provider.StatusOK {
		return provider.HistoryResult{Status: res.Status, RetryAfter: res.RetryAfter, Err: res.Err}
	}
	if len(dtos) == 0 {
		return provider.HistoryResult{Status: provider.StatusOKEmpty}
	}
	recs := make([]models.HistoricalRecord, 0, len(dtos))
	for _, d := range dtos {
		recs = append(recs, d.toRecord(assetType))
	}
	return provider.HistoryResult{Status: provider.StatusOK, Records: recs}
}

// FetchListing requests every known asset descriptor for assetType.
func (c *Client) FetchListing(ctx context.Context, assetType models.AssetType) provider.ListingResult {
	path := fmt.Sprintf("/listing?type=%s", strings.ToLower(string(assetType)))
	var dtos []listingDTO
	if res := c.doJSON(ctx, path, &dtos); res.Status != provider.StatusOK {
		return provider.ListingResult{Status: res.Status, RetryAfter: res.RetryAfter, Err: res.Err}
	}
	class, subClass, _ := models.ClassificationFor(assetType)
	assets := make([]models.Asset, 0, len(dtos))
	for _, d := range dtos {
		ac, asc := d.AssetClass, d.AssetSubClass
		if ac == "" {
			ac, asc = class, subClass
		}
		assets = append(assets, models.Asset{
			Symbol: models.NormalizeSymbol(d.Symbol), Name: d.Name, AssetType: assetType,
			AssetClass: ac, AssetSubClass: asc, Exchange: d.Exchange,
			Currency: models.DefaultCurrency, DataSource: "sjc",
		})
	}
	if len(assets) == 0 {
		return provider.ListingResult{Status: provider.StatusOKEmpty}
	}
	return provider.ListingResult{Status: provider.StatusOK, Assets: assets}
}

// FetchGoldSpotByDate requests the SJC gold spot (Lượng, canonical unit)
// for one ISO date.
func (c *Client) FetchGoldSpotByDate(ctx context.Context, date string) provider.HistoryResult {
	path := fmt.Sprintf("/gold/spot?date=%s", date)
	var dto quoteDTO
	if res := c.doJSON(ctx, path, &dto); res.Status != provider.StatusOK {
		return provider.HistoryResult{Status: res.Status, RetryAfter: res.RetryAfter, Err: res.Err}
	}
	dto.Symbol = models.GoldBaseSymbol
	dto.Date = date
	return provider.HistoryResult{Status: provider.StatusOK, Records: []models.HistoricalRecord{dto.toRecord(models.AssetGold)}}
}

// rawResult is the status/error shape shared by every raw HTTP call before
// it's projected into the operation-specific ResultStatus wrapper above.
type rawResult struct {
	Status     provider.ResultStatus
	RetryAfter time.Duration
	Err        error
}

func (c *Client) doJSON(ctx context.Context, path string, out any) rawResult {
	body, status, err := c.breakerDo(ctx, path)
	if err != nil {
		return c.classifyErr(err)
	}
	if status != http.StatusOK {
		return rawResult{Status: provider.StatusTransientError, Err: fmt.Errorf("sjc: http %d on %s", status, path)}
	}
	if len(body) == 0 {
		return rawResult{Status: provider.StatusOKEmpty}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return rawResult{Status: provider.StatusPermanentError, Err: fmt.Errorf("sjc: decode %s: %w", path, err)}
	}
	return rawResult{Status: provider.StatusOK}
}

func (c *Client) breakerDo(ctx context.Context, path string) ([]byte, int, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.rawGet(ctx, path)
	})
	if err != nil {
		return nil, 0, err
	}
	hr := result.(httpResult)
	return hr.body, hr.statusCode, nil
}

type httpResult struct {
	body       []byte
	statusCode int
}

func (c *Client) rawGet(ctx context.Context, path string) (httpResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return httpResult{}, fmt.Errorf("sjc: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return httpResult{}, fmt.Errorf("sjc: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpResult{}, fmt.Errorf("sjc: read body %s: %w", path, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return httpResult{}, fmt.Errorf("sjc: rate limited on %s: %s", path, string(body))
	}
	return httpResult{body: body, statusCode: resp.StatusCode}, nil
}

func (c *Client) classifyErr(err error) rawResult {
	if retryAfter, detected := provider.DetectRateLimit(err.Error()); detected {
		return rawResult{Status: provider.StatusRateLimited, RetryAfter: retryAfter, Err: err}
	}
	c.log.Warn().Err(err).Msg("sjc provider call failed")
	return rawResult{Status: provider.StatusTransientError, Err: err}
}
