package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Market data
	Symbols    []string
	Timeframe  string // pipeline timeframe driving analysis
	Timeframes []string
	WSURL      string // empty uses the exchange production stream
	RESTURL    string // empty uses the exchange production REST API

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	JournalPath   string
	MetricsAddr   string

	// Strategy
	StrategyFile string // YAML strategy file; empty uses the built-in default
	StrategyName string

	// Execution
	SlippageBps float64

	// Risk
	Risk          model.RiskParameters
	StopWinsOnTie bool

	// Pipeline timing
	Lookback         int
	CollabTimeout    time.Duration
	SnapshotInterval time.Duration
	PendingSweep     time.Duration

	// Notifications
	WebhookURL     string
	TelegramToken  string
	TelegramChatID string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	risk := model.DefaultRiskParameters()
	risk.MaxRiskPerTradePct = getFloat("RISK_PER_TRADE_PCT", risk.MaxRiskPerTradePct)
	risk.AccountEquity = getFloat("ACCOUNT_EQUITY", risk.AccountEquity)
	risk.MaxOpenPositions = getInt("MAX_OPEN_POSITIONS", risk.MaxOpenPositions)
	risk.MaxExposurePct = getFloat("MAX_EXPOSURE_PCT", risk.MaxExposurePct)
	risk.MinRiskReward = getFloat("MIN_RISK_REWARD", risk.MinRiskReward)
	risk.ATRStopMultiple = getFloat("ATR_STOP_MULTIPLE", risk.ATRStopMultiple)
	risk.Hedging = getBool("HEDGING", false)

	tfs := splitList(getEnv("TIMEFRAMES", "1m,5m,15m"))

	return &Config{
		Symbols:    splitList(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")),
		Timeframe:  getEnv("TIMEFRAME", tfs[0]),
		Timeframes: tfs,
		WSURL:      getEnv("WS_URL", ""),
		RESTURL:    getEnv("REST_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		StrategyFile: getEnv("STRATEGY_FILE", ""),
		StrategyName: getEnv("STRATEGY_NAME", "default"),

		SlippageBps: getFloat("SLIPPAGE_BPS", 2),

		Risk:          risk,
		StopWinsOnTie: getBool("STOP_WINS_ON_TIE", true),

		Lookback:         getInt("LOOKBACK", 64),
		CollabTimeout:    getDuration("COLLAB_TIMEOUT", 3*time.Second),
		SnapshotInterval: getDuration("SNAPSHOT_INTERVAL", 30*time.Second),
		PendingSweep:     getDuration("PENDING_SWEEP", 15*time.Second),

		WebhookURL:     getEnv("WEBHOOK_URL", ""),
		TelegramToken:  getEnv("TELEGRAM_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
