// Package sqlite implements the ports.FillRepository fill journal on a
// local SQLite database. The journal is append-only: fills are recorded as
// they arrive and never updated, and the exchange trade id carries a UNIQUE
// constraint so redelivered trades cannot be journaled twice.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"krakenOrderTracker/internal/domain"
	"krakenOrderTracker/internal/ports"
)

// Repository implements the ports.FillRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite fill journal.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (or creates) the journal database and verifies the
// schema.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/order_tracker.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// WAL keeps writers from blocking the read paths used by the report
	// tools.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// The Go driver works best against SQLite with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize journal schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "Fill journal opened", map[string]interface{}{"path": dbPath})
	return repo, nil
}

// initializeSchema creates the fills table if it doesn't exist. Monetary
// columns are stored as TEXT so decimal values round-trip exactly.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS fills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id TEXT NOT NULL UNIQUE,
		order_id TEXT NOT NULL,
		pair TEXT NOT NULL,
		side TEXT NOT NULL,
		volume TEXT NOT NULL,
		price TEXT NOT NULL,
		fee TEXT NOT NULL,
		cost TEXT NOT NULL,
		executed_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fills_order_executed ON fills (order_id, executed_at);
	CREATE INDEX IF NOT EXISTS idx_fills_executed_at ON fills (executed_at);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing fill journal")
		return r.db.Close()
	}
	return nil
}

// RecordFill appends a fill and returns its row id. A trade id already in
// the journal returns ports.ErrDuplicateEntry.
func (r *Repository) RecordFill(ctx context.Context, fill *domain.Fill) (int64, error) {
	if fill == nil || fill.TradeID == "" {
		return 0, fmt.Errorf("fill with a trade id is required: %w", ports.ErrValidation)
	}

	const query = `
	INSERT INTO fills (trade_id, order_id, pair, side, volume, price, fee, cost, executed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// Times are stored in UTC so the executed_at ordering and range scans
	// are consistent regardless of the caller's zone.
	result, err := r.db.ExecContext(ctx, query,
		fill.TradeID, fill.OrderID, fill.Pair, string(fill.Side),
		fill.Volume.String(), fill.Price.String(), fill.Fee.String(), fill.Cost.String(),
		fill.Time.UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("trade %s already journaled: %w", fill.TradeID, ports.ErrDuplicateEntry)
		}
		return 0, fmt.Errorf("failed to journal trade %s: %w", fill.TradeID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get journal row id for trade %s: %w", fill.TradeID, err)
	}
	r.logger.Debug(ctx, "Fill journaled", map[string]interface{}{"rowID": id, "tradeID": fill.TradeID, "orderID": fill.OrderID})
	return id, nil
}

// FindByOrder retrieves all journaled fills for an order, oldest first.
func (r *Repository) FindByOrder(ctx context.Context, orderID string) ([]*domain.Fill, error) {
	const query = `
	SELECT trade_id, order_id, pair, side, volume, price, fee, cost, executed_at
	FROM fills
	WHERE order_id = ?
	ORDER BY executed_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills for order %s: %w", orderID, err)
	}
	defer rows.Close()
	return collectFills(rows)
}

// FindSince retrieves fills executed at or after the given time, oldest
// first.
func (r *Repository) FindSince(ctx context.Context, since time.Time) ([]*domain.Fill, error) {
	const query = `
	SELECT trade_id, order_id, pair, side, volume, price, fee, cost, executed_at
	FROM fills
	WHERE executed_at >= ?
	ORDER BY executed_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query fills since %s: %w", since, err)
	}
	defer rows.Close()
	return collectFills(rows)
}

// FindRecent retrieves the most recent fills up to a limit, newest first.
func (r *Repository) FindRecent(ctx context.Context, limit int) ([]*domain.Fill, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
	SELECT trade_id, order_id, pair, side, volume, price, fee, cost, executed_at
	FROM fills
	ORDER BY executed_at DESC, id DESC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent fills: %w", err)
	}
	defer rows.Close()
	return collectFills(rows)
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanFill scans a row into a domain.Fill struct.
func scanFill(s scanner) (*domain.Fill, error) {
	f := &domain.Fill{}
	var side, volume, price, fee, cost string
	err := s.Scan(&f.TradeID, &f.OrderID, &f.Pair, &side, &volume, &price, &fee, &cost, &f.Time)
	if err != nil {
		return nil, err
	}
	f.Side = domain.OrderSide(side)
	if f.Volume, err = decimal.NewFromString(volume); err != nil {
		return nil, fmt.Errorf("corrupt volume %q for trade %s: %w", volume, f.TradeID, err)
	}
	if f.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("corrupt price %q for trade %s: %w", price, f.TradeID, err)
	}
	if f.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("corrupt fee %q for trade %s: %w", fee, f.TradeID, err)
	}
	if f.Cost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("corrupt cost %q for trade %s: %w", cost, f.TradeID, err)
	}
	return f, nil
}

// collectFills drains a result set into fill structs.
func collectFills(rows *sql.Rows) ([]*domain.Fill, error) {
	fills := make([]*domain.Fill, 0)
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fill row: %w", err)
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fill rows: %w", err)
	}
	return fills, nil
}
