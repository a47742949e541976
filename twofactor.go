package authflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edudesk/authflow/countdown"
	"github.com/edudesk/authflow/forms"
	"github.com/edudesk/authflow/internal"
	"github.com/edudesk/authflow/internal/rate"
	"github.com/edudesk/authflow/internal/stores"
)

// TwoFactorStatus describes the OTP challenge as the two-factor screen
// renders it.
type TwoFactorStatus struct {
	TimeLeft  int // seconds until resend unlocks
	CanResend bool
	Resends   int
}

// TwoFactorState returns the countdown state of the active challenge.
// Outside the two-factor screen both fields are zero.
func (o *Orchestrator) TwoFactorState() TwoFactorStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Screen != ScreenTwoFactor || o.resend == nil {
		return TwoFactorStatus{}
	}
	return TwoFactorStatus{
		TimeLeft:  o.resend.Remaining(),
		CanResend: o.canResend,
		Resends:   o.resends,
	}
}

// VerifyCode checks an entered code against the outstanding challenge.
// A correct code completes the login; a wrong one burns an attempt and
// stays on the two-factor screen.
func (o *Orchestrator) VerifyCode(ctx context.Context, form forms.OTPCode) error {
	if err := form.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOrchestratorClosed
	}
	screen := o.state.Screen
	challengeID := o.challengeID
	o.mu.Unlock()

	if screen != ScreenTwoFactor {
		return ErrInvalidTransition
	}
	if challengeID == "" {
		return ErrChallengeNotFound
	}

	record, err := o.challengeStore.Get(ctx, challengeID)
	if err != nil {
		return o.rejectCode(mapChallengeErr(err))
	}

	if !internal.OTPEqual(form.Code, record.CodeHash) {
		exceeded, recErr := o.challengeStore.RecordFailure(ctx, challengeID, o.config.TwoFactor.MaxAttempts)
		switch {
		case recErr != nil:
			return o.rejectCode(mapChallengeErr(recErr))
		case exceeded:
			return o.rejectCode(ErrOTPAttemptsExceeded)
		default:
			return o.rejectCode(ErrOTPInvalid)
		}
	}

	if _, err := o.challengeStore.Delete(ctx, challengeID); err != nil {
		o.logger.Warn("otp challenge cleanup failed", "err", err)
	}
	_ = o.limiter.ResetLogin(ctx, record.Identifier)
	_ = o.limiter.ResetResend(ctx, record.Identifier)

	if err := o.establishSession(ctx, o.currentUserID(), record.Identifier); err != nil {
		return err
	}
	return o.dispatch(CodeVerified{})
}

// ResendCode issues a fresh code for the outstanding challenge and
// restarts the countdown. Resending before the countdown expires is
// allowed and leaves CanResend untouched; the per-identifier resend
// budget is what bounds abuse.
func (o *Orchestrator) ResendCode(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOrchestratorClosed
	}
	screen := o.state.Screen
	challengeID := o.challengeID
	identifier := o.state.Draft.Email
	o.mu.Unlock()

	if screen != ScreenTwoFactor {
		return ErrInvalidTransition
	}
	if challengeID == "" {
		return ErrChallengeNotFound
	}

	if err := o.limiter.IncrementResend(ctx, identifier); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return ErrResendRateLimited
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	code, err := internal.NewOTP(o.config.TwoFactor.CodeDigits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if _, err := o.challengeStore.Refresh(ctx, challengeID, internal.HashOTP(code), o.config.TwoFactor.ChallengeTTL); err != nil {
		return mapChallengeErr(err)
	}
	if err := o.sendCode(ctx, identifier, code); err != nil {
		return err
	}

	o.mu.Lock()
	o.canResend = false
	o.resends++
	if o.resend != nil {
		o.resend.Reset(int(o.config.TwoFactor.ResendInterval / o.resendTickInterval()))
	}
	o.mu.Unlock()

	o.logger.Info("otp code resent", "identifier", identifier)
	return nil
}

// openChallenge creates the challenge record and delivers the first code.
// Called on the login screen, before the flow commits the move to
// two-factor.
func (o *Orchestrator) openChallenge(ctx context.Context, identifier string, role Role, userID string) error {
	code, err := internal.NewOTP(o.config.TwoFactor.CodeDigits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	challengeID := uuid.NewString()
	record := &stores.OTPChallenge{
		Identifier: identifier,
		Role:       uint8(role),
		CodeHash:   internal.HashOTP(code),
		ExpiresAt:  o.nowTime().Add(o.config.TwoFactor.ChallengeTTL).Unix(),
	}
	if err := o.challengeStore.Save(ctx, challengeID, record, o.config.TwoFactor.ChallengeTTL); err != nil {
		return mapChallengeErr(err)
	}
	if err := o.sendCode(ctx, identifier, code); err != nil {
		_, _ = o.challengeStore.Delete(ctx, challengeID)
		return err
	}

	o.mu.Lock()
	o.challengeID = challengeID
	o.userID = userID
	o.canResend = false
	o.resends = 0
	o.mu.Unlock()

	o.logger.Info("otp challenge opened", "identifier", identifier, "role", role.String())
	return nil
}

func (o *Orchestrator) sendCode(ctx context.Context, identifier, code string) error {
	if o.sender == nil {
		return nil
	}
	if err := o.sender.SendCode(ctx, identifier, code); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// startResendCountdownLocked arms the resend countdown on entry to the
// two-factor screen. Caller holds o.mu.
func (o *Orchestrator) startResendCountdownLocked() {
	o.canResend = false
	interval := o.resendTickInterval()
	o.resend = countdown.New(
		countdown.WithInterval(interval),
		countdown.WithOnExpired(func() {
			o.mu.Lock()
			if o.state.Screen == ScreenTwoFactor {
				o.canResend = true
			}
			o.mu.Unlock()
		}),
	)
	o.resend.Start(int(o.config.TwoFactor.ResendInterval / interval))
}

func (o *Orchestrator) resendTickInterval() time.Duration {
	if o.tickInterval > 0 {
		return o.tickInterval
	}
	return time.Second
}

// destroyChallengeLocked tears down the challenge runtime when the flow
// leaves the two-factor screen. The Redis record is deleted best-effort
// in the background; its TTL covers the rest.
func (o *Orchestrator) destroyChallengeLocked() {
	if o.resend != nil {
		o.resend.Stop()
		o.resend = nil
	}
	o.canResend = false
	o.resends = 0
	if o.challengeID != "" {
		challengeID := o.challengeID
		o.challengeID = ""
		store := o.challengeStore
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, _ = store.Delete(ctx, challengeID)
		}()
	}
}

// rejectCode records a failed code entry; the flow stays on the
// two-factor screen.
func (o *Orchestrator) rejectCode(cause error) error {
	if err := o.dispatch(LoginFailed{Err: cause}); err != nil {
		return err
	}
	return cause
}

func mapChallengeErr(err error) error {
	switch {
	case errors.Is(err, stores.ErrOTPChallengeNotFound):
		return ErrChallengeNotFound
	case errors.Is(err, stores.ErrOTPChallengeExpired):
		return ErrOTPExpired
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}
