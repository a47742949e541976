package authflow

import (
	"errors"
	"time"
)

// Config carries every tunable of the authentication flow. Configure it
// once through the builder and treat it as immutable afterwards.
type Config struct {
	TwoFactor TwoFactorConfig
	Password  PasswordConfig
	Success   SuccessConfig
	Session   SessionConfig
	Token     TokenConfig
	RateLimit RateLimitConfig
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

// TwoFactorConfig tunes the OTP challenge lifecycle.
type TwoFactorConfig struct {
	CodeDigits     int
	ChallengeTTL   time.Duration
	ResendInterval time.Duration // countdown before resend unlocks
	MaxAttempts    int
	MaxResends     int
	RedisPrefix    string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig tunes the set-password screen and the hash applied to an
// accepted password before it leaves the flow.
type PasswordConfig struct {
	MinLength         int
	Argon2Memory      uint32 // in KB
	Argon2Time        uint32
	Argon2Parallelism uint8
	Argon2SaltLength  uint32
	Argon2KeyLength   uint32
}

/*
====================================
SUCCESS SCREEN CONFIG
====================================
*/

// SuccessConfig tunes the login-success transition screen.
type SuccessConfig struct {
	// RedirectDelay is how long the success screen is shown before
	// OnLoginSuccess fires on its own.
	RedirectDelay time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the Redis-backed session records behind the
// session-management screen.
type SessionConfig struct {
	TTL         time.Duration
	RedisPrefix string
	MaxPerUser  int
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig tunes the signed session token issued on login success.
// Leave Enabled false to hand an empty token to OnLoginSuccess.
type TokenConfig struct {
	Enabled bool
	Secret  []byte
	TTL     time.Duration
	Issuer  string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig tunes the failed-login budget that feeds
// [ErrAccountLocked].
type RateLimitConfig struct {
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	RedisPrefix      string
}

func defaultConfig() Config {
	return Config{
		TwoFactor: TwoFactorConfig{
			CodeDigits:     6,
			ChallengeTTL:   5 * time.Minute,
			ResendInterval: 60 * time.Second,
			MaxAttempts:    5,
			MaxResends:     3,
			RedisPrefix:    "afc",
		},
		Password: PasswordConfig{
			MinLength:         8,
			Argon2Memory:      64 * 1024,
			Argon2Time:        3,
			Argon2Parallelism: 2,
			Argon2SaltLength:  16,
			Argon2KeyLength:   32,
		},
		Success: SuccessConfig{
			RedirectDelay: 2 * time.Second,
		},
		Session: SessionConfig{
			TTL:         12 * time.Hour,
			RedisPrefix: "afs",
			MaxPerUser:  5,
		},
		Token: TokenConfig{
			Enabled: false,
			TTL:     15 * time.Minute,
			Issuer:  "authflow",
		},
		RateLimit: RateLimitConfig{
			MaxLoginAttempts: 5,
			LoginCooldown:    15 * time.Minute,
			RedisPrefix:      "afr",
		},
	}
}

func (c Config) validate() error {
	if c.TwoFactor.CodeDigits < 6 || c.TwoFactor.CodeDigits > 10 {
		return errors.New("two-factor code digits must be in [6,10]")
	}
	if c.TwoFactor.ChallengeTTL <= 0 {
		return errors.New("two-factor challenge TTL must be positive")
	}
	if c.TwoFactor.ResendInterval <= 0 || c.TwoFactor.ResendInterval > c.TwoFactor.ChallengeTTL {
		return errors.New("resend interval must be positive and within the challenge TTL")
	}
	if c.TwoFactor.MaxAttempts < 1 {
		return errors.New("two-factor max attempts must be at least 1")
	}
	if c.TwoFactor.MaxResends < 0 {
		return errors.New("two-factor max resends must not be negative")
	}
	if c.Password.MinLength < 8 {
		return errors.New("password minimum length must be at least 8")
	}
	if c.Success.RedirectDelay < 0 {
		return errors.New("success redirect delay must not be negative")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Session.MaxPerUser < 1 {
		return errors.New("session max per user must be at least 1")
	}
	if c.Token.Enabled {
		if len(c.Token.Secret) == 0 {
			return errors.New("token issuance requires a secret")
		}
		if c.Token.TTL <= 0 {
			return errors.New("token TTL must be positive")
		}
	}
	if c.RateLimit.MaxLoginAttempts < 1 {
		return errors.New("max login attempts must be at least 1")
	}
	if c.RateLimit.LoginCooldown <= 0 {
		return errors.New("login cooldown must be positive")
	}
	return nil
}
