package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	MaxResends       int
	ResendCooldown   time.Duration
	Prefix           string
}

// Limiter enforces per-identifier budgets for failed logins and OTP
// resends using Redis counters with fixed-window TTLs.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "afr"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) loginKey(identifier string) string {
	return l.config.Prefix + ":login:" + identifier
}

func (l *Limiter) resendKey(identifier string) string {
	return l.config.Prefix + ":resend:" + identifier
}

// CheckLogin reports whether the identifier is within its failed-login
// budget. Returns [ErrRateLimited] when the budget is spent.
func (l *Limiter) CheckLogin(ctx context.Context, identifier string) error {
	return l.checkCounter(ctx, l.loginKey(identifier), l.config.MaxLoginAttempts)
}

// IncrementLogin records a failed login attempt for the identifier.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier string) error {
	count, err := l.incrementWithTTL(ctx, l.loginKey(identifier), l.config.LoginCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin clears the failed-login counter. Called after a successful
// login or a completed password reset.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if err := l.redis.Del(ctx, l.loginKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IncrementResend records an OTP resend and enforces the resend budget.
func (l *Limiter) IncrementResend(ctx context.Context, identifier string) error {
	count, err := l.incrementWithTTL(ctx, l.resendKey(identifier), l.config.ResendCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxResends) {
		return ErrRateLimited
	}
	return nil
}

// ResetResend clears the resend counter once a challenge completes.
func (l *Limiter) ResetResend(ctx context.Context, identifier string) error {
	if err := l.redis.Del(ctx, l.resendKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count > int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
