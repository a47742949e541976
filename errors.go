package authflow

import "errors"

var (
	// ErrOrchestratorClosed is returned by operations on a closed orchestrator.
	ErrOrchestratorClosed = errors.New("orchestrator closed")
	// ErrInvalidTransition is returned when an event is not legal on the current screen.
	ErrInvalidTransition = errors.New("event not valid for current screen")
	// ErrRoleRequired is returned when an operation needs a selected role.
	ErrRoleRequired = errors.New("no role selected")
	// ErrInvalidCredentials is returned when the verifier rejects a submission.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned when the failed-attempt budget is exhausted.
	ErrAccountLocked = errors.New("account locked")
	// ErrLoginRateLimited is returned when login attempts are throttled.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrChallengeNotFound is returned when no OTP challenge is active.
	ErrChallengeNotFound = errors.New("otp challenge not found")
	// ErrOTPInvalid is returned when the entered code does not match.
	ErrOTPInvalid = errors.New("invalid otp code")
	// ErrOTPExpired is returned when the OTP challenge has timed out.
	ErrOTPExpired = errors.New("otp challenge expired")
	// ErrOTPAttemptsExceeded is returned when the challenge attempt budget is spent.
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrResendRateLimited is returned when the resend budget is exhausted.
	ErrResendRateLimited = errors.New("otp resend rate limited")
	// ErrPasswordPolicy is returned when a new password fails the strength rules.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordMismatch is returned when the confirmation does not match.
	ErrPasswordMismatch = errors.New("passwords do not match")
	// ErrBackendUnavailable is returned when a store or collaborator cannot be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")
)
