package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ent0n29/maxai/internal/dialog"
)

const redisHistoryPrefix = "maxai:history:"

// RedisShortTerm keeps each session's buffer in a Redis list. Append and trim
// run in one MULTI block, so concurrent writers to a session stay ordered and
// bounded.
type RedisShortTerm struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisShortTerm(ctx context.Context, redisURL string, ttl time.Duration) (*RedisShortTerm, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisShortTerm{rdb: rdb, ttl: ttl}, nil
}

func (r *RedisShortTerm) key(sessionID string) string {
	return redisHistoryPrefix + sessionID
}

func (r *RedisShortTerm) Add(ctx context.Context, sessionID string, turn dialog.Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	key := r.key(sessionID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, -HistoryCap, -1)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (r *RedisShortTerm) History(ctx context.Context, sessionID string, limit int) ([]dialog.Turn, error) {
	if limit <= 0 || limit > HistoryCap {
		limit = HistoryCap
	}
	items, err := r.rdb.LRange(ctx, r.key(sessionID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	out := make([]dialog.Turn, 0, len(items))
	for _, item := range items {
		var t dialog.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *RedisShortTerm) Clear(ctx context.Context, sessionID string) error {
	if err := r.rdb.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (r *RedisShortTerm) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisShortTerm) Close() error {
	return r.rdb.Close()
}
