package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, New(rdb, cfg)
}

func TestLoginBudget(t *testing.T) {
	_, limiter := newTestLimiter(t, Config{
		MaxLoginAttempts: 3,
		LoginCooldown:    time.Minute,
	})
	ctx := context.Background()

	if err := limiter.CheckLogin(ctx, "a@school.example"); err != nil {
		t.Fatalf("fresh identifier must pass check: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := limiter.IncrementLogin(ctx, "a@school.example"); err != nil {
			t.Fatalf("attempt %d must stay within budget: %v", i+1, err)
		}
	}
	if err := limiter.IncrementLogin(ctx, "a@school.example"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited past budget, got %v", err)
	}
	if err := limiter.CheckLogin(ctx, "a@school.example"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on check, got %v", err)
	}

	// Counters are per identifier.
	if err := limiter.CheckLogin(ctx, "b@school.example"); err != nil {
		t.Fatalf("other identifier must be unaffected: %v", err)
	}
}

func TestLoginWindowExpires(t *testing.T) {
	mr, limiter := newTestLimiter(t, Config{
		MaxLoginAttempts: 1,
		LoginCooldown:    time.Minute,
	})
	ctx := context.Background()

	if err := limiter.IncrementLogin(ctx, "a@school.example"); err != nil {
		t.Fatalf("first attempt failed: %v", err)
	}
	if err := limiter.IncrementLogin(ctx, "a@school.example"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(time.Minute + time.Second)

	if err := limiter.CheckLogin(ctx, "a@school.example"); err != nil {
		t.Fatalf("window must reset after cooldown: %v", err)
	}
	if err := limiter.IncrementLogin(ctx, "a@school.example"); err != nil {
		t.Fatalf("fresh window must accept attempts: %v", err)
	}
}

func TestResetLogin(t *testing.T) {
	_, limiter := newTestLimiter(t, Config{
		MaxLoginAttempts: 1,
		LoginCooldown:    time.Minute,
	})
	ctx := context.Background()

	_ = limiter.IncrementLogin(ctx, "a@school.example")
	_ = limiter.IncrementLogin(ctx, "a@school.example")
	if err := limiter.CheckLogin(ctx, "a@school.example"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited before reset, got %v", err)
	}

	if err := limiter.ResetLogin(ctx, "a@school.example"); err != nil {
		t.Fatalf("ResetLogin failed: %v", err)
	}
	if err := limiter.CheckLogin(ctx, "a@school.example"); err != nil {
		t.Fatalf("expected clean slate after reset, got %v", err)
	}
}

func TestResendBudget(t *testing.T) {
	_, limiter := newTestLimiter(t, Config{
		MaxResends:     2,
		ResendCooldown: time.Hour,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := limiter.IncrementResend(ctx, "+254700000001"); err != nil {
			t.Fatalf("resend %d must stay within budget: %v", i+1, err)
		}
	}
	if err := limiter.IncrementResend(ctx, "+254700000001"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited past resend budget, got %v", err)
	}

	if err := limiter.ResetResend(ctx, "+254700000001"); err != nil {
		t.Fatalf("ResetResend failed: %v", err)
	}
	if err := limiter.IncrementResend(ctx, "+254700000001"); err != nil {
		t.Fatalf("expected budget restored after reset, got %v", err)
	}
}
