package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/classboard/notification-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 100
	backoffStep              = 10 * time.Millisecond
	backoffMax               = 50 * time.Millisecond
	windowSeconds            = 1
)

var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a distributed per-second rate limiter backed by Redis.
// Each channel gets its own counter window and its own budget: channels with
// an explicit limit use it, the rest share the default. Provider quotas
// differ per channel, so one global number throttles the wrong things.
type RedisRateLimiter struct {
	client        *goredis.Client
	defaultLimit  int64
	channelLimits map[string]int64
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration) error
	script        *goredis.Script
}

// NewRedisRateLimiter builds a limiter with defaultLimit requests per second
// per channel. channelLimits overrides the budget for individual channels;
// entries that are zero or negative fall back to defaultLimit.
func NewRedisRateLimiter(client *goredis.Client, defaultLimit int, channelLimits map[string]int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(
		client,
		int64(defaultLimit),
		channelLimits,
		time.Now,
		sleepWithContext,
	)
}

func newRedisRateLimiter(
	client *goredis.Client,
	defaultLimit int64,
	channelLimits map[string]int,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if defaultLimit <= 0 {
		defaultLimit = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	limits := make(map[string]int64, len(channelLimits))
	for channel, limit := range channelLimits {
		if limit <= 0 {
			continue
		}
		limits[normalizeChannel(channel)] = int64(limit)
	}

	return &RedisRateLimiter{
		client:        client,
		defaultLimit:  defaultLimit,
		channelLimits: limits,
		now:           nowFn,
		sleep:         sleepFn,
		script:        allowScript,
	}, nil
}

func normalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}

func (r *RedisRateLimiter) limitFor(channel string) int64 {
	if limit, ok := r.channelLimits[channel]; ok {
		return limit
	}
	return r.defaultLimit
}

func (r *RedisRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if r == nil || r.client == nil || r.script == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalizedChannel := normalizeChannel(channel)
	if normalizedChannel == "" {
		return false, fmt.Errorf("channel is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	key := fmt.Sprintf("notify:ratelimit:%s:%d", normalizedChannel, r.now().UTC().Unix())
	result, err := r.script.Run(ctx, r.client, []string{key}, r.limitFor(normalizedChannel), windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

func (r *RedisRateLimiter) Wait(ctx context.Context, channel string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := backoffStep
	for {
		allowed, err := r.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff += backoffStep
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
