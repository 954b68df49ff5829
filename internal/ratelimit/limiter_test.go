package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client), s
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := setupLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: 10 * time.Second}

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "sender-1", rule)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}
}

func TestAllowOverLimit(t *testing.T) {
	l, _ := setupLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 2, Window: 10 * time.Second}

	l.Allow(ctx, "sender-1", rule)
	l.Allow(ctx, "sender-1", rule)

	ok, err := l.Allow(ctx, "sender-1", rule)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Error("third request should be rate limited")
	}
}

func TestAllowIsPerIdentifier(t *testing.T) {
	l, _ := setupLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: 10 * time.Second}

	if ok, _ := l.Allow(ctx, "sender-1", rule); !ok {
		t.Fatal("first sender should be allowed")
	}
	if ok, _ := l.Allow(ctx, "sender-2", rule); !ok {
		t.Error("second sender should have its own counter")
	}
}

func TestWindowExpiryResetsCounter(t *testing.T) {
	l, s := setupLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: 10 * time.Second}

	l.Allow(ctx, "sender-1", rule)
	if ok, _ := l.Allow(ctx, "sender-1", rule); ok {
		t.Fatal("second request should be limited")
	}

	s.FastForward(11 * time.Second)

	if ok, _ := l.Allow(ctx, "sender-1", rule); !ok {
		t.Error("request after window expiry should be allowed")
	}
}

func TestRemaining(t *testing.T) {
	l, _ := setupLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 5, Window: 10 * time.Second}

	if got, _ := l.Remaining(ctx, "sender-1", rule); got != 5 {
		t.Errorf("expected 5 remaining before any send, got %d", got)
	}

	l.Allow(ctx, "sender-1", rule)
	l.Allow(ctx, "sender-1", rule)

	if got, _ := l.Remaining(ctx, "sender-1", rule); got != 3 {
		t.Errorf("expected 3 remaining after two sends, got %d", got)
	}
}

func TestAllowFailsOpenWhenRedisDown(t *testing.T) {
	l, s := setupLimiter(t)
	ctx := context.Background()
	s.Close()

	ok, err := l.Allow(ctx, "sender-1", RuleSend)
	if err == nil {
		t.Error("expected an error with redis down")
	}
	if !ok {
		t.Error("should fail open when redis is unreachable")
	}
}

func TestSendRuleOverrides(t *testing.T) {
	r := SendRule(20, 30*time.Second)
	if r.Limit != 20 || r.Window != 30*time.Second {
		t.Errorf("overrides not applied: %+v", r)
	}
	r = SendRule(0, 0)
	if r.Limit != RuleSend.Limit || r.Window != RuleSend.Window {
		t.Errorf("expected defaults, got %+v", r)
	}
}
