// Package redis publishes per-tick analysis results for read-only consumers
// (dashboard, chat collaborator). Writes run through a circuit breaker: when
// Redis is down, results are buffered locally and flushed once the breaker
// closes, so a Redis outage never blocks the pipeline.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: roughly one trading day of 1m results + buffer.
	streamMaxLen     = 1600
	defaultLatestTTL = 30 * time.Minute
)

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	// BreakerFailures trips the circuit after this many consecutive write
	// failures; BreakerReset is the cool-down before the half-open probe.
	BreakerFailures int
	BreakerReset    time.Duration

	// MaxBuffered caps locally buffered results during an outage; the
	// oldest are dropped beyond it.
	MaxBuffered int
}

// DefaultPublisherConfig returns production settings.
func DefaultPublisherConfig(addr string) PublisherConfig {
	return PublisherConfig{
		Addr:            addr,
		BreakerFailures: 5,
		BreakerReset:    10 * time.Second,
		MaxBuffered:     10000,
	}
}

type bufferedResult struct {
	symbol string
	data   []byte
}

// Publisher implements model.ResultPublisher on Redis. Each publish lands in
// three places in one pipelined roundtrip: an XADD to the symbol's analysis
// stream, a SET of the latest-result key, and a PUBLISH for live subscribers.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker

	mu     sync.Mutex
	buffer []bufferedResult
	maxBuf int

	// Callbacks for metrics wiring (optional).
	OnBreakerState func(State)
	OnBuffer       func()
}

// NewPublisher connects and pings Redis.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 10 * time.Second
	}
	if cfg.MaxBuffered <= 0 {
		cfg.MaxBuffered = 10000
	}

	p := &Publisher{
		client: client,
		cb:     NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset),
		buffer: make([]bufferedResult, 0, 256),
		maxBuf: cfg.MaxBuffered,
	}
	p.cb.OnStateChange = func(from, to State) {
		slog.Warn("redis circuit breaker transition", "from", from.String(), "to", to.String())
		if p.OnBreakerState != nil {
			p.OnBreakerState(to)
		}
		if to == StateClosed {
			go p.flush()
		}
	}

	slog.Info("redis publisher connected", "addr", cfg.Addr)
	return p, nil
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Publish stores the latest analysis result for a symbol. During an outage
// the result is buffered locally and the call still succeeds.
func (p *Publisher) Publish(ctx context.Context, symbol string, result []byte) error {
	err := p.cb.Execute(func() error {
		return p.write(ctx, symbol, result)
	})
	if err == ErrCircuitOpen {
		p.bufferResult(symbol, result)
		return nil // buffered, not lost
	}
	return err
}

// Latest reads the most recent published result for a symbol. Returns
// nil, nil when none exists.
func (p *Publisher) Latest(ctx context.Context, symbol string) ([]byte, error) {
	data, err := p.client.Get(ctx, latestKey(symbol)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", latestKey(symbol), err)
	}
	return data, nil
}

// PendingCount returns the number of buffered results waiting to be flushed.
func (p *Publisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// BreakerState returns the current circuit breaker state.
func (p *Publisher) BreakerState() State {
	return p.cb.CurrentState()
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// write performs the pipelined XADD + SET + PUBLISH.
func (p *Publisher) write(ctx context.Context, symbol string, result []byte) error {
	pipe := p.client.Pipeline()

	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey(symbol),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": result},
	})
	pipe.Set(ctx, latestKey(symbol), result, defaultLatestTTL)
	pipe.Publish(ctx, pubsubChannel(symbol), result)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish pipeline for %s: %w", symbol, err)
	}
	return nil
}

func (p *Publisher) bufferResult(symbol string, result []byte) {
	// Copy: the caller may reuse the slice.
	data := make([]byte, len(result))
	copy(data, result)

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buffer) >= p.maxBuf {
		// Buffer full — drop oldest
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, bufferedResult{symbol: symbol, data: data})

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays all buffered results once the breaker closes.
func (p *Publisher) flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	toFlush := p.buffer
	p.buffer = make([]bufferedResult, 0, 256)
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	flushed := 0
	for _, br := range toFlush {
		if err := p.write(ctx, br.symbol, br.data); err != nil {
			slog.Warn("buffered result flush failed", "symbol", br.symbol, "err", err)
			continue
		}
		flushed++
	}
	slog.Info("flushed buffered results", "count", flushed, "dropped", len(toFlush)-flushed)
}

func streamKey(symbol string) string     { return "analysis:" + symbol }
func latestKey(symbol string) string     { return "analysis:latest:" + symbol }
func pubsubChannel(symbol string) string { return "pub:analysis:" + symbol }
