// Package sqlite persists candle history and indicator engine checkpoints.
// The writer is single-connection with transaction batching; the reader
// serves warm-up and backtest replay.
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

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond

	// snapshotKeep is how many engine checkpoints survive pruning.
	snapshotKeep = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/analyzer.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// It also implements model.SnapshotStore for indicator checkpoints.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite database opened", "path", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL,
			PRIMARY KEY (symbol, timeframe, ts)
		);

		CREATE TABLE IF NOT EXISTS indicator_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads candles from candleCh and inserts them in batched transactions.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.PricePoint) {
	batch := make([]model.PricePoint, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			slog.Error("sqlite batch insert", "err", err)
		} else {
			slog.Debug("sqlite batch committed", "candles", len(batch), "took", time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case p, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, p)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of candles in a single transaction.
func (w *Writer) insertBatch(points []model.PricePoint) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		_, err := stmt.Exec(p.Symbol, p.Timeframe, p.TS.Unix(), p.Open, p.High, p.Low, p.Close, p.Volume)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetLastTimestamp returns the last stored candle timestamp for a series.
// Returns 0 if no candles exist.
func (w *Writer) GetLastTimestamp(symbol, timeframe string) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND timeframe = ?`,
		symbol, timeframe,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// SaveSnapshotJSON persists a JSON-encoded indicator engine snapshot and
// prunes old checkpoints.
func (w *Writer) SaveSnapshotJSON(data []byte) error {
	_, err := w.db.Exec(`INSERT INTO indicator_snapshots (data) VALUES (?)`, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert snapshot: %w", err)
	}

	_, err = w.db.Exec(`DELETE FROM indicator_snapshots WHERE id NOT IN (SELECT id FROM indicator_snapshots ORDER BY created_at DESC, id DESC LIMIT ?)`, snapshotKeep)
	if err != nil {
		slog.Warn("snapshot prune failed", "err", err)
	}

	return nil
}

// ReadLatestSnapshotJSON loads the most recent indicator engine snapshot.
// Returns nil, nil when no snapshot exists.
func (w *Writer) ReadLatestSnapshotJSON() ([]byte, error) {
	var data string
	err := w.db.QueryRow(`
		SELECT data FROM indicator_snapshots
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // no snapshot
		}
		return nil, fmt.Errorf("sqlite read snapshot: %w", err)
	}
	return []byte(data), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
