package tracker

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// SQLiteJournal persists position lifecycle transitions to SQLite for audit
// and post-trade analysis. Implements model.PositionJournal.
type SQLiteJournal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteJournal opens (or creates) the journal database.
func NewSQLiteJournal(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS positions (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id  TEXT NOT NULL,
		symbol       TEXT NOT NULL,
		direction    TEXT NOT NULL,
		event        TEXT NOT NULL,
		entry_price  REAL NOT NULL,
		exit_price   REAL DEFAULT 0,
		size         REAL NOT NULL,
		stop_loss    REAL NOT NULL,
		take_profit  REAL NOT NULL,
		close_reason TEXT,
		pnl          REAL DEFAULT 0,
		event_at     DATETIME NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_positions_position_id ON positions(position_id);
	CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);
	CREATE INDEX IF NOT EXISTS idx_positions_event_at ON positions(event_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("position journal opened", "path", dbPath)
	return &SQLiteJournal{db: db}, nil
}

// newJournalWithDB wires an existing connection, for tests.
func newJournalWithDB(db *sql.DB) *SQLiteJournal {
	return &SQLiteJournal{db: db}
}

// RecordOpen journals the PENDING → OPEN transition.
func (j *SQLiteJournal) RecordOpen(p model.Position) error {
	return j.insert(p, "open", p.OpenedAt, 0)
}

// RecordClose journals the OPEN → CLOSED transition with realized PnL.
func (j *SQLiteJournal) RecordClose(p model.Position) error {
	return j.insert(p, "close", p.ClosedAt, p.PnL(p.ExitPrice))
}

func (j *SQLiteJournal) insert(p model.Position, event string, at time.Time, pnl float64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO positions (position_id, symbol, direction, event, entry_price, exit_price, size, stop_loss, take_profit, close_reason, pnl, event_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.Symbol,
		string(p.Direction),
		event,
		p.EntryPrice,
		p.ExitPrice,
		p.Size,
		p.StopLoss,
		p.TakeProfit,
		string(p.Reason),
		pnl,
		at.UTC().Format(time.RFC3339),
	)
	return err
}

// PositionRecord is one journal row.
type PositionRecord struct {
	ID         int64   `json:"id"`
	PositionID string  `json:"position_id"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	Event      string  `json:"event"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	Size       float64 `json:"size"`
	PnL        float64 `json:"pnl"`
	EventAt    string  `json:"event_at"`
}

// Recent returns the last N journal rows, newest first.
func (j *SQLiteJournal) Recent(limit int) ([]PositionRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, position_id, symbol, direction, event, entry_price, exit_price, size, pnl, event_at
		 FROM positions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var r PositionRecord
		if err := rows.Scan(&r.ID, &r.PositionID, &r.Symbol, &r.Direction, &r.Event,
			&r.EntryPrice, &r.ExitPrice, &r.Size, &r.PnL, &r.EventAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (j *SQLiteJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}
