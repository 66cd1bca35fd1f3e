package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the engine.
type Config struct {
	Port string

	// Database
	DBPath string

	// Market data
	Symbols      []string
	UseMockFeed  bool
	StreamURL    string // websocket kline stream base
	CandleLimit  int
	CandleMaxAge time.Duration
	FetchTimeout time.Duration

	// Evaluation cadence
	ScheduledInterval time.Duration
	FastBaseInterval  time.Duration
	FastMaxInterval   time.Duration

	// Signal lifecycle
	SignalMaxAttempts   int
	SignalRetryCooldown time.Duration
	SignalMaxAge        time.Duration
	SignalSweepInterval time.Duration
	SignalSweepPage     int
	DeliveryTimeout     time.Duration
	DeliveryPacing      time.Duration

	// Notifications
	WebhookDestinations map[string]string // user_id -> URL

	// Reconciliation
	ReconcileInterval time.Duration

	// Execution
	DryRun bool

	// Strategy seeds
	StrategySeedPath string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:   getEnv("PORT", "8080"),
		DBPath: getEnv("DB_PATH", "./data/engine.db"),

		Symbols:      splitAndTrim(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT")),
		UseMockFeed:  getEnv("USE_MOCK_FEED", "true") == "true",
		StreamURL:    getEnv("STREAM_URL", "wss://stream.binance.com:9443"),
		CandleLimit:  getEnvInt("CANDLE_LIMIT", 100),
		CandleMaxAge: getEnvDuration("CANDLE_MAX_AGE", 30*time.Second),
		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 10*time.Second),

		ScheduledInterval: getEnvDuration("SCHEDULED_INTERVAL", time.Minute),
		FastBaseInterval:  getEnvDuration("FAST_BASE_INTERVAL", 15*time.Second),
		FastMaxInterval:   getEnvDuration("FAST_MAX_INTERVAL", 4*time.Minute),

		SignalMaxAttempts:   getEnvInt("SIGNAL_MAX_ATTEMPTS", 5),
		SignalRetryCooldown: getEnvDuration("SIGNAL_RETRY_COOLDOWN", 5*time.Minute),
		SignalMaxAge:        getEnvDuration("SIGNAL_MAX_AGE", time.Hour),
		SignalSweepInterval: getEnvDuration("SIGNAL_SWEEP_INTERVAL", time.Minute),
		SignalSweepPage:     getEnvInt("SIGNAL_SWEEP_PAGE", 50),
		DeliveryTimeout:     getEnvDuration("DELIVERY_TIMEOUT", 10*time.Second),
		DeliveryPacing:      getEnvDuration("DELIVERY_PACING", time.Second),

		WebhookDestinations: parseDestinations(getEnv("WEBHOOK_DESTINATIONS", "")),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),

		DryRun: getEnv("DRY_RUN", "true") == "true",

		StrategySeedPath: getEnv("STRATEGY_SEED_PATH", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseDestinations parses "user1=https://a,user2=https://b" into a map.
func parseDestinations(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range splitAndTrim(s) {
		k, v, ok := strings.Cut(pair, "=")
		if ok && k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
