package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required when STORE_BACKEND=postgres")

type Config struct {
	Addr         string
	Env          string
	StoreBackend string
	DatabaseURL  string
	JWTSecret    string
	AMQPURL      string
	NudgeQueue   string
	SettleDelay  time.Duration
	TxAttempts   int
	LogLevel     string
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests can avoid the real environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Addr:         get("ADDR", ":8080"),
		Env:          get("APP_ENV", "production"),
		StoreBackend: strings.ToLower(get("STORE_BACKEND", BackendMemory)),
		DatabaseURL:  get("DATABASE_URL", ""),
		JWTSecret:    get("JWT_SECRET", ""),
		AMQPURL:      get("AMQP_URL", ""),
		NudgeQueue:   get("NUDGE_QUEUE", "rummy.nudges"),
		LogLevel:     get("LOG_LEVEL", "info"),
		SettleDelay:  DefaultSettleDelay,
		TxAttempts:   DefaultTxAttempts,
	}

	if raw := getenv("SETTLE_DELAY"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("SETTLE_DELAY %q: must be a non-negative duration", raw)
		}
		cfg.SettleDelay = d
	}
	if raw := getenv("TX_MAX_ATTEMPTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("TX_MAX_ATTEMPTS %q: must be a positive integer", raw)
		}
		cfg.TxAttempts = n
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, ErrMissingDatabaseURL
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	return cfg, nil
}

func (c *Config) Development() bool { return c.Env == "development" }

// NewLogger returns a console logger in development and a JSON logger otherwise.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}

	zc := zap.NewProductionConfig()
	if c.Development() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
