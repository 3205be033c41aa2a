package model

import (
	"context"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the analysis pipeline from concrete collaborators
// (exchange feed, execution venue, Redis, SQLite). Every call that can block
// takes a context; implementations must honor its deadline.

// MarketData supplies historical candles for warm-up and backtests.
type MarketData interface {
	// RecentCandles returns up to count most recent closed candles for a
	// symbol+timeframe, oldest first.
	RecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]PricePoint, error)
}

// ExecutionClient is the order-routing collaborator. Fill and close
// notifications arrive asynchronously on the Events channel in per-symbol
// sequence order.
type ExecutionClient interface {
	// SubmitOrder places an entry order with attached stop/target levels and
	// returns the venue order ID.
	SubmitOrder(ctx context.Context, req OrderRequest) (string, error)

	// CancelOrder cancels a pending (unfilled) order.
	CancelOrder(ctx context.Context, orderID string) error

	// ClosePosition requests a market exit of the open position behind orderID.
	ClosePosition(ctx context.Context, orderID string, reason CloseReason) error

	// Events returns the stream of fill/close notifications. Elements are
	// either FillEvent or CloseEvent.
	Events() <-chan any
}

// SnapshotStore persists indicator engine state as raw JSON so a restart
// does not re-warm indicators from zero.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded engine snapshot.
	SaveSnapshotJSON(data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil when no snapshot exists.
	ReadLatestSnapshotJSON() ([]byte, error)
}

// ResultPublisher exposes per-tick analysis results to read-only consumers
// (dashboard, chat collaborator).
type ResultPublisher interface {
	// Publish stores the latest analysis snapshot for a symbol.
	Publish(ctx context.Context, symbol string, result []byte) error

	// Close releases underlying resources.
	Close() error
}

// PositionJournal records position lifecycle transitions for audit.
type PositionJournal interface {
	RecordOpen(p Position) error
	RecordClose(p Position) error
	Close() error
}
