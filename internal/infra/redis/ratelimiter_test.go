package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestNewRedisRateLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisRateLimiter(nil, 100, nil); err == nil {
		t.Fatal("nil client should error")
	}

	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	limiter, err := NewRedisRateLimiter(client, 0, nil)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}
	if limiter.defaultLimit != defaultLimitPerSec {
		t.Errorf("defaultLimit = %d, want default %d", limiter.defaultLimit, defaultLimitPerSec)
	}
}

func TestChannelLimitOverridesDefault(t *testing.T) {
	t.Parallel()

	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	limiter, err := NewRedisRateLimiter(client, 100, map[string]int{
		"EMAIL ": 10,
		"push":   0,
	})
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}

	// Overrides are matched case-insensitively against the normalized
	// channel name.
	if got := limiter.limitFor("email"); got != 10 {
		t.Errorf("limitFor(email) = %d, want 10", got)
	}
	// A zero override is no override.
	if got := limiter.limitFor("push"); got != 100 {
		t.Errorf("limitFor(push) = %d, want the default 100", got)
	}
	if got := limiter.limitFor("in_app"); got != 100 {
		t.Errorf("limitFor(in_app) = %d, want the default 100", got)
	}
}

func TestAllowRequiresChannel(t *testing.T) {
	t.Parallel()

	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
	limiter, err := NewRedisRateLimiter(client, 100, nil)
	if err != nil {
		t.Fatalf("NewRedisRateLimiter() error = %v", err)
	}

	if _, err := limiter.Allow(context.Background(), "  "); err == nil {
		t.Fatal("blank channel should error")
	}
}

func TestSleepWithContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepWithContext(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
