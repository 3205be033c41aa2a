package tracker

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

func journaledPosition() model.Position {
	return model.Position{
		ID:         "pos-1",
		Symbol:     "BTCUSDT",
		Direction:  model.DirectionLong,
		EntryPrice: 100,
		Size:       1.5,
		StopLoss:   98,
		TakeProfit: 104,
		Status:     model.StatusOpen,
		OpenedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestJournal_RecordOpen(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	j := newJournalWithDB(db)
	p := journaledPosition()

	mock.ExpectExec(`INSERT INTO positions`).
		WithArgs(p.ID, p.Symbol, "long", "open", 100.0, 0.0, 1.5, 98.0, 104.0, "", 0.0,
			p.OpenedAt.Format(time.RFC3339)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := j.RecordOpen(p); err != nil {
		t.Fatalf("record open: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestJournal_RecordClose_ComputesPnL(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	j := newJournalWithDB(db)
	p := journaledPosition()
	p.Status = model.StatusClosed
	p.ExitPrice = 104
	p.Reason = model.CloseTakeProfit
	p.ClosedAt = time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)

	// PnL = (104 − 100) × 1.5 = 6
	mock.ExpectExec(`INSERT INTO positions`).
		WithArgs(p.ID, p.Symbol, "long", "close", 100.0, 104.0, 1.5, 98.0, 104.0,
			"take_profit", 6.0, p.ClosedAt.Format(time.RFC3339)).
		WillReturnResult(sqlmock.NewResult(2, 1))

	if err := j.RecordClose(p); err != nil {
		t.Fatalf("record close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestJournal_Recent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	j := newJournalWithDB(db)

	rows := sqlmock.NewRows([]string{
		"id", "position_id", "symbol", "direction", "event",
		"entry_price", "exit_price", "size", "pnl", "event_at",
	}).
		AddRow(2, "pos-1", "BTCUSDT", "long", "close", 100.0, 104.0, 1.5, 6.0, "2024-05-01T14:00:00Z").
		AddRow(1, "pos-1", "BTCUSDT", "long", "open", 100.0, 0.0, 1.5, 0.0, "2024-05-01T12:00:00Z")

	mock.ExpectQuery(`SELECT id, position_id, symbol`).
		WithArgs(10).
		WillReturnRows(rows)

	got, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows: %d, want 2", len(got))
	}
	if got[0].Event != "close" || got[0].PnL != 6.0 {
		t.Errorf("newest row: %+v", got[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
