package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultLiveTTL = 24 * time.Hour

// LiveState keeps the latest snapshot of each game in redis and reserves game codes.
type LiveState struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLiveState(rdb *redis.Client, ttl time.Duration) *LiveState {
	if ttl <= 0 {
		ttl = defaultLiveTTL
	}
	return &LiveState{rdb: rdb, ttl: ttl}
}

// ConnectRedis parses REDIS_URL and pings the server.
func ConnectRedis(ctx context.Context, raw string) (*redis.Client, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	opts, err := ParseRedisURL(raw)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// ParseRedisURL accepts redis:// and rediss:// URLs with an optional /db path.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}

func keyState(code string) string { return "game:" + strings.TrimSpace(code) + ":state" }
func keyCode(code string) string  { return "game:" + strings.TrimSpace(code) + ":reserved" }

// ReserveCode claims a code; false means it is already taken.
func (s *LiveState) ReserveCode(ctx context.Context, code string) (bool, error) {
	return s.rdb.SetNX(ctx, keyCode(code), time.Now().Unix(), s.ttl).Result()
}

// SaveSnapshot stores v as JSON and refreshes the TTL of the code reservation.
func (s *LiveState) SaveSnapshot(ctx context.Context, code string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keyState(code), raw, s.ttl)
		p.Expire(ctx, keyCode(code), s.ttl)
		return nil
	})
	return err
}

// LoadSnapshot decodes the stored snapshot into dst. It reports false when absent.
func (s *LiveState) LoadSnapshot(ctx context.Context, code string, dst any) (bool, error) {
	raw, err := s.rdb.Get(ctx, keyState(code)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Forget drops both the snapshot and the reservation.
func (s *LiveState) Forget(ctx context.Context, code string) error {
	return s.rdb.Del(ctx, keyState(code), keyCode(code)).Err()
}
