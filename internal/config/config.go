package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr       string
	AllowedOrigins []string

	RedisURL    string
	DatabaseURL string

	StockfishPath    string
	PolyglotBookPath string

	QuizBankDir  string
	QuizTimeout  time.Duration
	QuizPrefetch int

	EloKFactor int
	DefaultElo int

	MatchRetryInterval time.Duration
	MatchExpiry        time.Duration

	HubSendBuffer int

	StaleWaitingAfter time.Duration
	StaleActiveAfter  time.Duration
	CleanupInterval   time.Duration
	GameTTL           time.Duration
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:           ":8080",
		QuizTimeout:        30 * time.Second,
		QuizPrefetch:       5,
		EloKFactor:         32,
		DefaultElo:         1200,
		MatchRetryInterval: 5 * time.Second,
		MatchExpiry:        60 * time.Second,
		HubSendBuffer:      32,
		StaleWaitingAfter:  30 * time.Minute,
		StaleActiveAfter:   2 * time.Hour,
		CleanupInterval:    time.Minute,
		GameTTL:            24 * time.Hour,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.AllowedOrigins = splitList(os.Getenv("WS_ALLOWED_ORIGINS"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	cfg.PolyglotBookPath = strings.TrimSpace(os.Getenv("CHESS_POLYGLOT_BOOK_PATH"))
	cfg.QuizBankDir = strings.TrimSpace(os.Getenv("QUIZ_BANK_DIR"))

	seconds("QUIZ_TIMEOUT_SEC", &cfg.QuizTimeout)
	positive("QUIZ_PREFETCH", &cfg.QuizPrefetch)
	positive("ELO_K_FACTOR", &cfg.EloKFactor)
	positive("DEFAULT_ELO", &cfg.DefaultElo)
	seconds("MATCH_RETRY_SEC", &cfg.MatchRetryInterval)
	seconds("MATCH_EXPIRY_SEC", &cfg.MatchExpiry)
	positive("HUB_SEND_BUFFER", &cfg.HubSendBuffer)
	minutes("STALE_WAITING_MIN", &cfg.StaleWaitingAfter)
	minutes("STALE_ACTIVE_MIN", &cfg.StaleActiveAfter)
	seconds("CLEANUP_INTERVAL_SEC", &cfg.CleanupInterval)
	if v := strings.TrimSpace(os.Getenv("GAME_TTL_HOURS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.GameTTL = time.Duration(n) * time.Hour
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no usable default.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("HTTP_ADDR is required")
	}
	if c.QuizTimeout <= 0 {
		return errors.New("QUIZ_TIMEOUT_SEC must be positive")
	}
	if c.EloKFactor <= 0 {
		return errors.New("ELO_K_FACTOR must be positive")
	}
	if c.MatchRetryInterval <= 0 || c.MatchExpiry <= 0 {
		return errors.New("matchmaking intervals must be positive")
	}
	if c.MatchRetryInterval > c.MatchExpiry {
		return fmt.Errorf("MATCH_RETRY_SEC (%s) exceeds MATCH_EXPIRY_SEC (%s)", c.MatchRetryInterval, c.MatchExpiry)
	}
	if c.HubSendBuffer <= 0 {
		return errors.New("HUB_SEND_BUFFER must be positive")
	}
	return nil
}

func positive(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func seconds(key string, dst *time.Duration) {
	var n int
	positive(key, &n)
	if n > 0 {
		*dst = time.Duration(n) * time.Second
	}
}

func minutes(key string, dst *time.Duration) {
	var n int
	positive(key, &n)
	if n > 0 {
		*dst = time.Duration(n) * time.Minute
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
