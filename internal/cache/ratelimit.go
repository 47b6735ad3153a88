package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter ограничивает число запросов в фиксированном окне
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewRateLimiter создает новый RateLimiter: не больше limit запросов за window
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

// Allow учитывает запрос и сообщает, укладывается ли он в лимит.
// При превышении возвращает время до начала следующего окна.
func (l *RateLimiter) Allow(ctx context.Context, scope, subject string) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}

	key := fmt.Sprintf("ratelimit:%s:%s", scope, subject)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	ttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("cache: failed to count request: %w", err)
	}

	remaining := ttl.Val()
	// Первый запрос окна: счетчик создан без срока жизни
	if remaining < 0 {
		if err := l.client.PExpire(ctx, key, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("cache: failed to start window: %w", err)
		}
		remaining = l.window
	}

	if incr.Val() > l.limit {
		return false, remaining, nil
	}

	return true, 0, nil
}
