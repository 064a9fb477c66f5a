package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/quizchess/internal/obslog"
)

const defaultCacheTTL = 24 * time.Hour

// Cache prefetches questions per game into redis lists so a capture does not
// wait on the upstream provider.
type Cache struct {
	rdb      *redis.Client
	upstream Provider
	ttl      time.Duration
}

func NewCache(rdb *redis.Client, upstream Provider, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{rdb: rdb, upstream: upstream, ttl: ttl}
}

func cacheKey(code, subject string) string {
	return "game:" + strings.TrimSpace(code) + ":quizzes:" + normalizeSubject(subject)
}

// Warm pushes n upstream questions for every subject of a game.
func (c *Cache) Warm(ctx context.Context, code string, subjects []string, n int) error {
	if c == nil || c.rdb == nil || n <= 0 {
		return nil
	}
	for _, subject := range subjects {
		vals := make([]any, 0, n)
		for i := 0; i < n; i++ {
			q, err := c.upstream.NextQuestion(ctx, subject)
			if err != nil {
				if errors.Is(err, ErrNoQuestions) {
					break
				}
				return err
			}
			raw, err := json.Marshal(q)
			if err != nil {
				return err
			}
			vals = append(vals, raw)
		}
		if len(vals) == 0 {
			continue
		}
		key := cacheKey(code, subject)
		_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.RPush(ctx, key, vals...)
			p.Expire(ctx, key, c.ttl)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Drop removes every prefetched list of a game.
func (c *Cache) Drop(ctx context.Context, code string, subjects []string) error {
	if c == nil || c.rdb == nil || len(subjects) == 0 {
		return nil
	}
	keys := make([]string, 0, len(subjects))
	for _, s := range subjects {
		keys = append(keys, cacheKey(code, s))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// ForGame returns a Provider that drains the game's lists before asking upstream.
func (c *Cache) ForGame(code string) Provider {
	return ProviderFunc(func(ctx context.Context, subject string) (Question, error) {
		if c == nil || c.rdb == nil {
			return c.upstream.NextQuestion(ctx, subject)
		}
		raw, err := c.rdb.LPop(ctx, cacheKey(code, subject)).Bytes()
		switch {
		case err == redis.Nil:
		case err != nil:
			obslog.L().Warn("quiz_cache_pop_failed", zap.String("code", code), zap.String("subject", subject), zap.Error(err))
		default:
			var q Question
			if jerr := json.Unmarshal(raw, &q); jerr == nil && q.Validate() == nil {
				return q, nil
			}
			obslog.L().Warn("quiz_cache_bad_entry", zap.String("code", code), zap.String("subject", subject))
		}
		return c.upstream.NextQuestion(ctx, subject)
	})
}
