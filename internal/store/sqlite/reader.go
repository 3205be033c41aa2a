package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// Reader provides read-only access to stored candles. It implements
// model.MarketData for indicator warm-up and backtest replay.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	slog.Info("sqlite reader opened", "path", dbPath)
	return &Reader{db: db}, nil
}

// RecentCandles returns up to count most recent candles for a series, oldest
// first.
func (r *Reader) RecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]model.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, timeframe, ts, open, high, low, close, volume
		FROM (
			SELECT symbol, timeframe, ts, open, high, low, close, volume
			FROM candles
			WHERE symbol = ? AND timeframe = ?
			ORDER BY ts DESC
			LIMIT ?
		)
		ORDER BY ts ASC
	`, symbol, timeframe, count)
	if err != nil {
		return nil, fmt.Errorf("sqlite query recent candles: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// CandlesAfter returns all candles for a series with ts strictly after the
// given unix timestamp, oldest first. Used for backtest replay.
func (r *Reader) CandlesAfter(ctx context.Context, symbol, timeframe string, afterTS int64) ([]model.PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, timeframe, ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, timeframe, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) ([]model.PricePoint, error) {
	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		var tsUnix int64
		if err := rows.Scan(&p.Symbol, &p.Timeframe, &tsUnix, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		p.TS = time.Unix(tsUnix, 0).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
