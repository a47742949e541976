package authflow

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edudesk/authflow/internal/rate"
	"github.com/edudesk/authflow/internal/stores"
	"github.com/edudesk/authflow/jwt"
	"github.com/edudesk/authflow/password"
	"github.com/edudesk/authflow/session"
)

// Builder assembles an [Orchestrator]. Every With method returns the
// builder for chaining; Build validates the result.
type Builder struct {
	config       Config
	configSet    bool
	redis        redis.UniversalClient
	verifier     Verifier
	sender       CodeSender
	callbacks    Callbacks
	logger       *slog.Logger
	now          Clock
	tickInterval time.Duration
}

// New starts a builder with the default configuration.
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the default configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.configSet = true
	return b
}

// WithRedis sets the Redis client backing challenges, sessions and rate
// counters. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithVerifier sets the credential backend. With no verifier every
// submission is treated as accepted, matching the simulated backend the
// flow was designed against.
func (b *Builder) WithVerifier(v Verifier) *Builder {
	b.verifier = v
	return b
}

// WithCodeSender sets the OTP delivery collaborator.
func (b *Builder) WithCodeSender(s CodeSender) *Builder {
	b.sender = s
	return b
}

// WithCallbacks sets the host-application contract.
func (b *Builder) WithCallbacks(cb Callbacks) *Builder {
	b.callbacks = cb
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides the time source for tests.
func (b *Builder) WithClock(c Clock) *Builder {
	b.now = c
	return b
}

// WithTickInterval overrides the resend countdown's one-second tick.
// Tests use millisecond ticks; production leaves it unset.
func (b *Builder) WithTickInterval(d time.Duration) *Builder {
	b.tickInterval = d
	return b
}

// Build validates the configuration and wires the orchestrator.
func (b *Builder) Build() (*Orchestrator, error) {
	cfg := b.config
	if !b.configSet {
		cfg = defaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}

	hasher, err := password.NewHasher(password.HashConfig{
		Memory:      cfg.Password.Argon2Memory,
		Time:        cfg.Password.Argon2Time,
		Parallelism: cfg.Password.Argon2Parallelism,
		SaltLength:  cfg.Password.Argon2SaltLength,
		KeyLength:   cfg.Password.Argon2KeyLength,
	})
	if err != nil {
		return nil, err
	}

	var tokens *jwt.Manager
	if cfg.Token.Enabled {
		tokens, err = jwt.NewManager(jwt.Config{
			TTL:    cfg.Token.TTL,
			Secret: cfg.Token.Secret,
			Issuer: cfg.Token.Issuer,
		})
		if err != nil {
			return nil, err
		}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		config:    cfg,
		state:     initialState(),
		verifier:  b.verifier,
		sender:    b.sender,
		callbacks: b.callbacks,
		logger:    logger,
		now:       b.now,
		challengeStore: stores.NewOTPChallengeStore(
			b.redis, cfg.TwoFactor.RedisPrefix),
		sessionStore: session.NewStore(
			b.redis, cfg.Session.RedisPrefix, cfg.Session.MaxPerUser),
		limiter: rate.New(b.redis, rate.Config{
			MaxLoginAttempts: cfg.RateLimit.MaxLoginAttempts,
			LoginCooldown:    cfg.RateLimit.LoginCooldown,
			MaxResends:       cfg.TwoFactor.MaxResends,
			ResendCooldown:   cfg.TwoFactor.ChallengeTTL,
			Prefix:           cfg.RateLimit.RedisPrefix,
		}),
		tokens:       tokens,
		hasher:       hasher,
		tickInterval: b.tickInterval,
	}
	return o, nil
}

// DefaultConfig exposes the library defaults so hosts can tweak a field
// or two without rebuilding the whole struct.
func DefaultConfig() Config {
	return defaultConfig()
}
