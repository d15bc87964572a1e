// Package store is the persistent historical store plus the durable
// asset catalog and quote/search cache rows, backed by SQLite through
// sqlx (see DESIGN.md for why modernc.org/sqlite stands in for a
// server-backed driver here).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/rs/zerolog/log"
)

// Config holds the SQLite connection settings.
type Config struct {
	DBPath          string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:          dbPath,
		MaxOpenConns:    1, // sqlite write-serialization: one writer connection is simplest and correct
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DB wraps the sqlx handle and exposes migration/health helpers.
type DB struct {
	conn *sqlx.DB
}

func Open(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", cfg.DBPath)
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", cfg.DBPath, err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite at %s: %w", cfg.DBPath, err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (d *DB) Close() error { return d.conn.Close() }

func (d *DB) Conn() *sqlx.DB { return d.conn }

// Ping reports basic connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// schema creates the historical_records table plus the legacy
// assets/quotes/search_results/historical_data tables, with indices on
// (symbol, asset_type, date), (date), (symbol), and (created_at).
const schema = `
CREATE TABLE IF NOT EXISTS assets (
	symbol TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	asset_type TEXT NOT NULL,
	asset_class TEXT NOT NULL,
	asset_sub_class TEXT NOT NULL,
	exchange TEXT,
	currency TEXT NOT NULL DEFAULT 'VND',
	data_source TEXT,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS historical_records (
	symbol TEXT NOT NULL,
	asset_type TEXT NOT NULL,
	date TEXT NOT NULL,
	open REAL, high REAL, low REAL, close REAL, adjclose REAL,
	volume REAL, nav REAL, buy_price REAL, sell_price REAL,
	data_json TEXT,
	updated_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (symbol, asset_type, date)
);
CREATE INDEX IF NOT EXISTS idx_hist_symbol_type_date ON historical_records(symbol, asset_type, date);
CREATE INDEX IF NOT EXISTS idx_hist_date ON historical_records(date);
CREATE INDEX IF NOT EXISTS idx_hist_symbol ON historical_records(symbol);
CREATE INDEX IF NOT EXISTS idx_hist_created_at ON historical_records(created_at);

-- legacy range-keyed table, kept for the bulk gold seeder's resume-from-max-date query
CREATE TABLE IF NOT EXISTS historical_data (
	symbol TEXT NOT NULL,
	asset_type TEXT NOT NULL,
	range_start TEXT NOT NULL,
	range_end TEXT NOT NULL,
	fetched_at INTEGER NOT NULL,
	PRIMARY KEY (symbol, asset_type, range_start, range_end)
);

CREATE TABLE IF NOT EXISTS quotes (
	symbol TEXT NOT NULL,
	asset_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (symbol, asset_type)
);

CREATE TABLE IF NOT EXISTS search_results (
	query TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
`

func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, schema); err != nil {
		return err
	}
	log.Debug().Msg("store: schema migration applied")
	return nil
}
