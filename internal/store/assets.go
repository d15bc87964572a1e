package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Kyon9x/vn-market-service/internal/models"
)

// AssetRepo is the durable catalog of known assets, populated by the data
// seeder and consulted by search/listing endpoints.
type AssetRepo struct {
	db      *DB
	timeout time.Duration
}

func NewAssetRepo(db *DB) *AssetRepo {
	return &AssetRepo{db: db, timeout: 5 * time.Second}
}

type assetRow struct {
	Symbol        string `db:"symbol"`
	Name          string `db:"name"`
	AssetType     string `db:"asset_type"`
	AssetClass    string `db:"asset_class"`
	AssetSubClass string `db:"asset_sub_class"`
	Exchange      sql.NullString `db:"exchange"`
	Currency      string `db:"currency"`
	DataSource    sql.NullString `db:"data_source"`
	Metadata      sql.NullString `db:"metadata"`
}

func (r assetRow) toAsset() models.Asset {
	a := models.Asset{
		Symbol:        r.Symbol,
		Name:          r.Name,
		AssetType:     models.AssetType(r.AssetType),
		AssetClass:    r.AssetClass,
		AssetSubClass: r.AssetSubClass,
		Exchange:      r.Exchange.String,
		Currency:      r.Currency,
		DataSource:    r.DataSource.String,
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		var md map[string]string
		if err := json.Unmarshal([]byte(r.Metadata.String), &md); err == nil {
			a.Metadata = md
		}
	}
	return a
}

// Upsert inserts or replaces one asset's catalog row.
func (r *AssetRepo) Upsert(ctx context.Context, a models.Asset) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var metaJSON []byte
	if len(a.Metadata) > 0 {
		var err error
		metaJSON, err = json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("store: marshal asset metadata for %s: %w", a.Symbol, err)
		}
	}

	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO assets (symbol, name, asset_type, asset_class, asset_sub_class, exchange, currency, data_source, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name=excluded.name, asset_type=excluded.asset_type, asset_class=excluded.asset_class,
			asset_sub_class=excluded.asset_sub_class, exchange=excluded.exchange,
			currency=excluded.currency, data_source=excluded.data_source, metadata=excluded.metadata`,
		a.Symbol, a.Name, a.AssetType, a.AssetClass, a.AssetSubClass, a.Exchange, a.Currency, a.DataSource, string(metaJSON))
	if err != nil {
		return fmt.Errorf("store: upsert asset %s: %w", a.Symbol, err)
	}
	return nil
}

// UpsertBatch inserts or replaces many assets inside one transaction, used
// by the seeder's 100-row batches.
func (r *AssetRepo) UpsertBatch(ctx context.Context, assets []models.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(assets)/100+1))
	defer cancel()

	tx, err := r.db.Conn().BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin asset batch tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO assets (symbol, name, asset_type, asset_class, asset_sub_class, exchange, currency, data_source, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name=excluded.name, asset_type=excluded.asset_type, asset_class=excluded.asset_class,
			asset_sub_class=excluded.asset_sub_class, exchange=excluded.exchange,
			currency=excluded.currency, data_source=excluded.data_source, metadata=excluded.metadata`)
	if err != nil {
		return fmt.Errorf("store: prepare asset batch statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range assets {
		var metaJSON []byte
		if len(a.Metadata) > 0 {
			metaJSON, err = json.Marshal(a.Metadata)
			if err != nil {
				return fmt.Errorf("store: marshal asset metadata for %s: %w", a.Symbol, err)
			}
		}
		if _, err := stmt.ExecContext(ctx,
			a.Symbol, a.Name, a.AssetType, a.AssetClass, a.AssetSubClass, a.Exchange, a.Currency, a.DataSource, string(metaJSON)); err != nil {
			return fmt.Errorf("store: batch upsert asset %s: %w", a.Symbol, err)
		}
	}
	return tx.Commit()
}

func (r *AssetRepo) Get(ctx context.Context, symbol string) (models.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row assetRow
	err := r.db.Conn().GetContext(ctx, &row, `SELECT * FROM assets WHERE symbol=?`, symbol)
	if err != nil {
		return models.Asset{}, err
	}
	return row.toAsset(), nil
}

func (r *AssetRepo) ListByType(ctx context.Context, assetType models.AssetType) ([]models.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []assetRow
	if err := r.db.Conn().SelectContext(ctx, &rows, `SELECT * FROM assets WHERE asset_type=? ORDER BY symbol ASC`, assetType); err != nil {
		return nil, fmt.Errorf("store: list assets by type %s: %w", assetType, err)
	}
	out := make([]models.Asset, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toAsset())
	}
	return out, nil
}

// Search matches symbol or name by a case-insensitive substring, capped at
// limit results, ordered by symbol for deterministic pagination.
func (r *AssetRepo) Search(ctx context.Context, query string, limit int) ([]models.Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	like := "%" + query + "%"
	var rows []assetRow
	err := r.db.Conn().SelectContext(ctx, &rows,
		`SELECT * FROM assets WHERE symbol LIKE ? COLLATE NOCASE OR name LIKE ? COLLATE NOCASE
		 ORDER BY symbol ASC LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search assets %q: %w", query, err)
	}
	out := make([]models.Asset, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toAsset())
	}
	return out, nil
}

// CountByType reports how many catalog assets exist for assetType.
func (r *AssetRepo) CountByType(ctx context.Context, assetType models.AssetType) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var n int
	err := r.db.Conn().GetContext(ctx, &n, `SELECT COUNT(*) FROM assets WHERE asset_type=?`, assetType)
	if err != nil {
		return 0, fmt.Errorf("store: count assets by type %s: %w", assetType, err)
	}
	return n, nil
}
