package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Kyon9x/vn-market-service/internal/models"
)

// QuoteRepo persists the latest quote per (symbol, asset_type) so a
// process restart doesn't lose every warm quote the in-memory cache was
// holding. It is a write-behind mirror of cache.Instances.Quotes, not the
// primary read path.
type QuoteRepo struct {
	db      *DB
	timeout time.Duration
}

func NewQuoteRepo(db *DB) *QuoteRepo {
	return &QuoteRepo{db: db, timeout: 3 * time.Second}
}

func (r *QuoteRepo) Put(ctx context.Context, q models.Quote, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("store: marshal quote %s: %w", q.Symbol, err)
	}
	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT INTO quotes (symbol, asset_type, payload, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol, asset_type) DO UPDATE SET payload=excluded.payload, expires_at=excluded.expires_at`,
		q.Symbol, q.AssetType, string(payload), time.Now().Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("store: put quote %s: %w", q.Symbol, err)
	}
	return nil
}

func (r *QuoteRepo) Get(ctx context.Context, symbol string, assetType models.AssetType) (models.Quote, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var payload string
	var expiresAt int64
	row := r.db.Conn().QueryRowxContext(ctx,
		`SELECT payload, expires_at FROM quotes WHERE symbol=? AND asset_type=?`, symbol, assetType)
	if err := row.Scan(&payload, &expiresAt); err != nil {
		return models.Quote{}, false, nil
	}
	if time.Now().Unix() > expiresAt {
		return models.Quote{}, false, nil
	}
	var q models.Quote
	if err := json.Unmarshal([]byte(payload), &q); err != nil {
		return models.Quote{}, false, fmt.Errorf("store: unmarshal quote %s: %w", symbol, err)
	}
	return q, true, nil
}

// DeleteExpired removes every quote row whose expires_at has already
// passed, so expired rows don't accumulate forever between the rare
// reads that would otherwise notice them. Returns the number removed.
func (r *QuoteRepo) DeleteExpired(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.Conn().ExecContext(ctx, `DELETE FROM quotes WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("store: delete expired quotes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: rows affected for expired quote delete: %w", err)
	}
	return int(n), nil
}

// SearchRepo mirrors search-result pages the same way QuoteRepo mirrors
// quotes, keyed by the normalized query string.
type SearchRepo struct {
	db      *DB
	timeout time.Duration
}

func NewSearchRepo(db *DB) *SearchRepo {
	return &SearchRepo{db: db, timeout: 3 * time.Second}
}

func (r *SearchRepo) Put(ctx context.Context, query string, results []models.SearchResult, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("store: marshal search results for %q: %w", query, err)
	}
	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT INTO search_results (query, payload, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET payload=excluded.payload, expires_at=excluded.expires_at`,
		query, string(payload), time.Now().Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("store: put search results for %q: %w", query, err)
	}
	return nil
}

func (r *SearchRepo) Get(ctx context.Context, query string) ([]models.SearchResult, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var payload string
	var expiresAt int64
	row := r.db.Conn().QueryRowxContext(ctx,
		`SELECT payload, expires_at FROM search_results WHERE query=?`, query)
	if err := row.Scan(&payload, &expiresAt); err != nil {
		return nil, false, nil
	}
	if time.Now().Unix() > expiresAt {
		return nil, false, nil
	}
	var results []models.SearchResult
	if err := json.Unmarshal([]byte(payload), &results); err != nil {
		return nil, false, fmt.Errorf("store: unmarshal search results for %q: %w", query, err)
	}
	return results, true, nil
}
