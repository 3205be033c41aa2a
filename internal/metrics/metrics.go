package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analysis pipeline.
type Metrics struct {
	CandlesTotal  prometheus.Counter
	TradesTotal   prometheus.Counter
	BookSnapshots prometheus.Counter
	WSReconnects  prometheus.Counter
	DroppedEvents prometheus.Counter

	PipelineDur prometheus.Histogram
	PublishDur  prometheus.Histogram

	SignalsTotal   *prometheus.CounterVec // labels: direction
	PatternsTotal  *prometheus.CounterVec // labels: kind
	RiskRejections *prometheus.CounterVec // labels: reason
	OrdersTotal    prometheus.Counter
	ExitsTotal     *prometheus.CounterVec // labels: reason

	StaleEvents         prometheus.Counter
	InvariantViolations prometheus.Counter
	CollaboratorErrors  *prometheus.CounterVec // labels: collaborator
	BookRejected        prometheus.Counter

	OpenPositions prometheus.Gauge
	RealizedPnL   prometheus.Gauge

	// Redis publisher resilience
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	SnapshotSaveDur prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_candles_total",
			Help: "Total closed candles processed by the pipeline",
		}),
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_trades_total",
			Help: "Total trades ingested from the exchange feed",
		}),
		BookSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_book_snapshots_total",
			Help: "Total order book snapshots analyzed",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_ws_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_dropped_events_total",
			Help: "Feed events dropped because a channel was full",
		}),
		PipelineDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_pipeline_duration_seconds",
			Help:    "Full analysis pass latency per closed candle",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		PublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_publish_duration_seconds",
			Help:    "Result publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_signals_total",
			Help: "Signals emitted by direction",
		}, []string{"direction"}),
		PatternsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_patterns_total",
			Help: "Candlestick patterns detected by kind",
		}, []string{"kind"}),
		RiskRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_risk_rejections_total",
			Help: "Trade proposals rejected by the risk gate, by reason",
		}, []string{"reason"}),
		OrdersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_orders_total",
			Help: "Entry orders submitted to the execution venue",
		}),
		ExitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_exits_total",
			Help: "Position exits requested, by reason",
		}, []string{"reason"}),
		StaleEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_stale_events_total",
			Help: "Execution events discarded as stale or out of order",
		}),
		InvariantViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_invariant_violations_total",
			Help: "Position state transitions rejected as invariant violations",
		}),
		CollaboratorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analyzer_collaborator_errors_total",
			Help: "Errors talking to external collaborators",
		}, []string{"collaborator"}),
		BookRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_book_rejected_total",
			Help: "Order book snapshots rejected as malformed",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_open_positions",
			Help: "Currently live (pending + open) positions",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_realized_pnl",
			Help: "Cumulative realized PnL in quote currency",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analyzer_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analyzer_redis_buffered_writes_total",
			Help: "Results buffered locally while the Redis breaker was open",
		}),
		SnapshotSaveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "analyzer_snapshot_save_duration_seconds",
			Help:    "Indicator snapshot checkpoint latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.CandlesTotal,
		m.TradesTotal,
		m.BookSnapshots,
		m.WSReconnects,
		m.DroppedEvents,
		m.PipelineDur,
		m.PublishDur,
		m.SignalsTotal,
		m.PatternsTotal,
		m.RiskRejections,
		m.OrdersTotal,
		m.ExitsTotal,
		m.StaleEvents,
		m.InvariantViolations,
		m.CollaboratorErrors,
		m.BookRejected,
		m.OpenPositions,
		m.RealizedPnL,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.SnapshotSaveDur,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	LastCandleTime time.Time `json:"last_candle_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Symbols        []string  `json:"symbols"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSymbols(symbols []string) {
	h.mu.Lock()
	h.Symbols = symbols
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.WSConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		WSConnected     bool     `json:"ws_connected"`
		LastCandleTime  string   `json:"last_candle_time"`
		CandleAge       string   `json:"candle_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		Symbols         []string `json:"symbols"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:     h.WSConnected,
		LastCandleTime:  h.LastCandleTime.Format(time.RFC3339),
		CandleAge:       candleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	mux    *http.ServeMux
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		mux:    mux,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handle registers an extra handler (debug endpoints and the like). Must be
// called before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server", "err", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
