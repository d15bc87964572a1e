package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Kyon9x/vn-market-service/internal/models"
)

// HistoricalRepo is the persistent historical store: every fetched
// (symbol, asset_type, date) row lives here forever, including placeholder
// rows that mark a date as already attempted with no data found.
type HistoricalRepo struct {
	db      *DB
	timeout time.Duration
}

func NewHistoricalRepo(db *DB) *HistoricalRepo {
	return &HistoricalRepo{db: db, timeout: 5 * time.Second}
}

// Store upserts one record. A real (non-placeholder) record is never
// overwritten by a placeholder: if the existing row has any nonzero price
// field and the incoming one is a placeholder, the write is silently
// dropped rather than clobbering good data with a zeroed-out row.
func (r *HistoricalRepo) Store(ctx context.Context, rec models.HistoricalRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if rec.IsPlaceholder() {
		existing, err := r.get(ctx, rec.Symbol, rec.AssetType, rec.Date)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("store: check existing before placeholder write: %w", err)
		}
		if err == nil && !existing.IsPlaceholder() {
			return nil
		}
	}

	now := time.Now().Unix()
	query := `
		INSERT INTO historical_records
			(symbol, asset_type, date, open, high, low, close, adjclose, volume, nav, buy_price, sell_price, data_json, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, asset_type, date) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
			adjclose=excluded.adjclose, volume=excluded.volume, nav=excluded.nav,
			buy_price=excluded.buy_price, sell_price=excluded.sell_price,
			data_json=excluded.data_json, updated_at=excluded.updated_at`

	_, err := r.db.Conn().ExecContext(ctx, query,
		rec.Symbol, rec.AssetType, rec.Date, rec.Open, rec.High, rec.Low, rec.Close,
		rec.AdjClose, rec.Volume, rec.NAV, rec.BuyPrice, rec.SellPrice, rec.DataJSON,
		now, now)
	if err != nil {
		return fmt.Errorf("store: upsert historical record %s/%s/%s: %w", rec.Symbol, rec.AssetType, rec.Date, err)
	}
	return nil
}

// StoreBatch upserts many records inside one transaction, the same
// prepared-statement-per-batch shape used for high-volume seeding.
func (r *HistoricalRepo) StoreBatch(ctx context.Context, recs []models.HistoricalRecord) error {
	if len(recs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(recs)/100+1))
	defer cancel()

	tx, err := r.db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin batch tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO historical_records
			(symbol, asset_type, date, open, high, low, close, adjclose, volume, nav, buy_price, sell_price, data_json, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, asset_type, date) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low, close=excluded.close,
			adjclose=excluded.adjclose, volume=excluded.volume, nav=excluded.nav,
			buy_price=excluded.buy_price, sell_price=excluded.sell_price,
			data_json=excluded.data_json, updated_at=excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("store: prepare batch statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx,
			rec.Symbol, rec.AssetType, rec.Date, rec.Open, rec.High, rec.Low, rec.Close,
			rec.AdjClose, rec.Volume, rec.NAV, rec.BuyPrice, rec.SellPrice, rec.DataJSON,
			now, now); err != nil {
			return fmt.Errorf("store: batch insert %s/%s/%s: %w", rec.Symbol, rec.AssetType, rec.Date, err)
		}
	}
	return tx.Commit()
}

func (r *HistoricalRepo) get(ctx context.Context, symbol string, assetType models.AssetType, date string) (models.HistoricalRecord, error) {
	var rec models.HistoricalRecord
	err := r.db.Conn().GetContext(ctx, &rec,
		`SELECT symbol, asset_type, date, open, high, low, close, adjclose, volume, nav, buy_price, sell_price, data_json, updated_at
		 FROM historical_records WHERE symbol=? AND asset_type=? AND date=?`,
		symbol, assetType, date)
	return rec, err
}

// CachedDatesInRange returns the set of dates already stored for
// (symbol, assetType) within [start, end], placeholders included — a
// placeholder date still counts as "already attempted".
func (r *HistoricalRepo) CachedDatesInRange(ctx context.Context, symbol string, assetType models.AssetType, start, end string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var dates []string
	err := r.db.Conn().SelectContext(ctx, &dates,
		`SELECT date FROM historical_records WHERE symbol=? AND asset_type=? AND date BETWEEN ? AND ?`,
		symbol, assetType, start, end)
	if err != nil {
		return nil, fmt.Errorf("store: cached dates for %s/%s: %w", symbol, assetType, err)
	}
	out := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		out[d] = struct{}{}
	}
	return out, nil
}

// CachedRecordsInRange returns every real (non-placeholder) record stored
// for (symbol, assetType) within [start, end], ordered by date ascending.
// Placeholder rows still count toward CachedDatesInRange's "already
// attempted" bookkeeping, but they are never handed back as data.
func (r *HistoricalRepo) CachedRecordsInRange(ctx context.Context, symbol string, assetType models.AssetType, start, end string) ([]models.HistoricalRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var recs []models.HistoricalRecord
	err := r.db.Conn().SelectContext(ctx, &recs,
		`SELECT symbol, asset_type, date, open, high, low, close, adjclose, volume, nav, buy_price, sell_price, data_json, updated_at
		 FROM historical_records
		 WHERE symbol=? AND asset_type=? AND date BETWEEN ? AND ?
		   AND NOT (open=0 AND high=0 AND low=0 AND close=0 AND adjclose=0 AND nav=0 AND buy_price=0 AND sell_price=0)
		 ORDER BY date ASC`,
		symbol, assetType, start, end)
	if err != nil {
		return nil, fmt.Errorf("store: records in range for %s/%s: %w", symbol, assetType, err)
	}
	return recs, nil
}

// MostRecentRecord returns the latest non-placeholder record for
// (symbol, assetType), used as the historical-fallback source when a live
// quote can't be fetched.
func (r *HistoricalRepo) MostRecentRecord(ctx context.Context, symbol string, assetType models.AssetType) (models.HistoricalRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rec models.HistoricalRecord
	err := r.db.Conn().GetContext(ctx, &rec,
		`SELECT symbol, asset_type, date, open, high, low, close, adjclose, volume, nav, buy_price, sell_price, data_json, updated_at
		 FROM historical_records
		 WHERE symbol=? AND asset_type=? AND NOT (open=0 AND high=0 AND low=0 AND close=0 AND adjclose=0 AND nav=0 AND buy_price=0 AND sell_price=0)
		 ORDER BY date DESC LIMIT 1`,
		symbol, assetType)
	return rec, err
}

// MaxStoredDate returns the latest date recorded in the legacy
// historical_data range table for (symbol, assetType), or "" if none —
// used by the bulk gold seeder to resume from where it left off.
func (r *HistoricalRepo) MaxStoredDate(ctx context.Context, symbol string, assetType models.AssetType) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var maxDate sql.NullString
	err := r.db.Conn().GetContext(ctx, &maxDate,
		`SELECT MAX(range_end) FROM historical_data WHERE symbol=? AND asset_type=?`,
		symbol, assetType)
	if err != nil {
		return "", fmt.Errorf("store: max stored date for %s/%s: %w", symbol, assetType, err)
	}
	if !maxDate.Valid {
		return "", nil
	}
	return maxDate.String, nil
}

// RecordRangeFetched appends a row to the legacy range table noting a
// [start, end] span was fetched for (symbol, assetType).
func (r *HistoricalRepo) RecordRangeFetched(ctx context.Context, symbol string, assetType models.AssetType, start, end string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.Conn().ExecContext(ctx,
		`INSERT INTO historical_data (symbol, asset_type, range_start, range_end, fetched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(symbol, asset_type, range_start, range_end) DO NOTHING`,
		symbol, assetType, start, end, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: record range fetched %s/%s [%s,%s]: %w", symbol, assetType, start, end, err)
	}
	return nil
}

// CountRows reports how many historical rows exist for assetType,
// placeholders included.
func (r *HistoricalRepo) CountRows(ctx context.Context, assetType models.AssetType) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n int
	err := r.db.Conn().GetContext(ctx, &n,
		`SELECT COUNT(*) FROM historical_records WHERE asset_type=?`, assetType)
	if err != nil {
		return 0, fmt.Errorf("store: count rows for %s: %w", assetType, err)
	}
	return n, nil
}
