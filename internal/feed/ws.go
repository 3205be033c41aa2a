// Package feed ingests live futures market data: a combined WebSocket stream
// delivers trades and depth snapshots, a REST client backfills historical
// klines for warm-up, and the aggregator builds per-timeframe OHLC candles
// from the trade flow.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultStreamURL = "wss://fstream.binance.com/stream"

	readTimeout  = 90 * time.Second
	pingInterval = 30 * time.Second

	backoffInitial = time.Second
	backoffMax     = time.Minute
)

// WSConfig configures the stream client.
type WSConfig struct {
	URL     string // empty uses the futures production endpoint
	Symbols []string

	// DepthLevels selects the partial book stream depth (5, 10 or 20).
	DepthLevels int
}

// WS consumes the exchange's combined stream: one aggTrade and one partial
// depth stream per symbol. Parsed events go to the trade and book channels;
// full channels drop (the analysis pipeline prefers fresh data over complete
// data).
type WS struct {
	cfg     WSConfig
	tradeCh chan<- model.Trade
	bookCh  chan<- model.OrderBookSnapshot

	// Optional metrics hooks
	OnReconnect func()
	OnDrop      func()
	OnConnected func(bool)
}

// NewWS creates the stream client.
func NewWS(cfg WSConfig, tradeCh chan<- model.Trade, bookCh chan<- model.OrderBookSnapshot) *WS {
	if cfg.URL == "" {
		cfg.URL = defaultStreamURL
	}
	if cfg.DepthLevels == 0 {
		cfg.DepthLevels = 20
	}
	return &WS{cfg: cfg, tradeCh: tradeCh, bookCh: bookCh}
}

// Run connects and consumes until ctx is cancelled, reconnecting with
// exponential backoff on any failure.
func (w *WS) Run(ctx context.Context) error {
	backoff := backoffInitial
	for {
		err := w.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Warn("stream disconnected, reconnecting", "err", err, "backoff", backoff)
		if w.OnReconnect != nil {
			w.OnReconnect()
		}
		if w.OnConnected != nil {
			w.OnConnected(false)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// streamURL builds the combined-stream URL for the configured symbols.
func (w *WS) streamURL() string {
	streams := make([]string, 0, 2*len(w.cfg.Symbols))
	for _, s := range w.cfg.Symbols {
		lower := strings.ToLower(s)
		streams = append(streams,
			lower+"@aggTrade",
			fmt.Sprintf("%s@depth%d@100ms", lower, w.cfg.DepthLevels),
		)
	}
	return w.cfg.URL + "?streams=" + strings.Join(streams, "/")
}

func (w *WS) consume(ctx context.Context) error {
	url := w.streamURL()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	slog.Info("stream connected", "symbols", w.cfg.Symbols)
	if w.OnConnected != nil {
		w.OnConnected(true)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// Keepalive pings; the server drops idle connections.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		w.dispatch(msg)
	}
}

// combined is the envelope of a combined-stream message.
type combined struct {
	Stream string              `json:"stream"`
	Data   jsoniter.RawMessage `json:"data"`
}

func (w *WS) dispatch(msg []byte) {
	var env combined
	if err := json.Unmarshal(msg, &env); err != nil {
		slog.Debug("unparseable stream message", "err", err)
		return
	}

	switch {
	case strings.Contains(env.Stream, "@aggTrade"):
		trade, err := ParseAggTrade(env.Data)
		if err != nil {
			slog.Debug("aggTrade parse failed", "err", err)
			return
		}
		select {
		case w.tradeCh <- trade:
		default:
			w.drop()
		}

	case strings.Contains(env.Stream, "@depth"):
		snap, err := ParseDepth(env.Data)
		if err != nil {
			slog.Debug("depth parse failed", "err", err)
			return
		}
		select {
		case w.bookCh <- snap:
		default:
			w.drop()
		}
	}
}

func (w *WS) drop() {
	if w.OnDrop != nil {
		w.OnDrop()
	}
}
