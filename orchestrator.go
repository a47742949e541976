package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edudesk/authflow/countdown"
	"github.com/edudesk/authflow/forms"
	"github.com/edudesk/authflow/internal/rate"
	"github.com/edudesk/authflow/internal/stores"
	"github.com/edudesk/authflow/jwt"
	"github.com/edudesk/authflow/password"
	"github.com/edudesk/authflow/session"
)

// PasswordUpdater is implemented by verifiers that can persist the hash
// of a password accepted on the set-password screen. The flow hashes the
// password before it crosses this boundary; the plaintext never leaves.
type PasswordUpdater interface {
	UpdatePassword(ctx context.Context, identifier, hash string) error
}

// Orchestrator owns the authentication flow: the current screen, the
// session draft, the outstanding OTP challenge and every pending timer.
// All navigation goes through it; leaf screens only emit events.
//
// An Orchestrator is safe for use from multiple goroutines, though the
// flow itself models a single actor.
type Orchestrator struct {
	mu     sync.Mutex
	config Config
	state  State
	closed bool

	// gen increments on every committed navigation; timer callbacks
	// capture it and drop themselves when it has moved on.
	gen uint64

	verifier  Verifier
	sender    CodeSender
	callbacks Callbacks
	logger    *slog.Logger
	now       Clock

	challengeStore *stores.OTPChallengeStore
	sessionStore   *session.Store
	limiter        *rate.Limiter
	tokens         *jwt.Manager // nil when token issuance is disabled
	hasher         *password.Hasher

	// two-factor runtime, valid only while ScreenTwoFactor is current
	challengeID string
	resend      *countdown.Countdown
	canResend   bool
	resends     int

	userID       string
	successTimer *time.Timer
	successFired bool
	pendingToken string

	tickInterval time.Duration // test override for the resend countdown
}

// CurrentScreen returns the screen that is current right now.
func (o *Orchestrator) CurrentScreen() Screen {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Screen
}

// DraftSnapshot returns a copy of the session draft.
func (o *Orchestrator) DraftSnapshot() Draft {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Draft
}

// LastFailure returns the failure recorded by the most recent rejected
// submission, or nil.
func (o *Orchestrator) LastFailure() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Failure
}

// Close cancels every pending timer and rejects further operations.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.gen++
	o.stopTimersLocked()
}

// Reset returns a finished or abandoned flow to portal selection so the
// host can start a fresh attempt.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	from := o.state.Screen
	o.gen++
	o.leaveScreenLocked(from)
	o.stopTimersLocked()
	o.state = initialState()
	o.userID = ""
	o.pendingToken = ""
	o.successFired = false
	onChange := o.callbacks.OnScreenChange
	o.mu.Unlock()

	if onChange != nil && from != ScreenPortalSelection {
		onChange(from, ScreenPortalSelection)
	}
}

// ChooseRole leaves portal selection for the role's login screen.
func (o *Orchestrator) ChooseRole(role Role) error {
	if role == RoleNone {
		return ErrRoleRequired
	}
	return o.dispatch(RoleChosen{Role: role})
}

// Back navigates to the current screen's back target. Backing out of the
// two-factor screen destroys the outstanding challenge.
func (o *Orchestrator) Back() error {
	return o.dispatch(Back{})
}

// StartForgotPassword moves from a login screen into the reset flow,
// carrying the identifier forward in the draft.
func (o *Orchestrator) StartForgotPassword(identifier string) error {
	return o.dispatch(ForgotPassword{Identifier: identifier})
}

// EnterAccessDenied forces the access-denied screen from anywhere.
func (o *Orchestrator) EnterAccessDenied() error {
	return o.dispatch(AccessDenied{})
}

// EnterSchoolSelector is a deep-link entry point: multi-school
// deployments land here before portal login. It is reachable from outside
// the event table, not from any default transition.
func (o *Orchestrator) EnterSchoolSelector() error {
	return o.enterDirect(ScreenSchoolSelector)
}

// EnterAccountVerification is a deep-link entry point used by activation
// links sent to new accounts.
func (o *Orchestrator) EnterAccountVerification() error {
	return o.enterDirect(ScreenAccountVerification)
}

// EnterSessionManagement is a deep-link entry point for the active-device
// list of a signed-in user.
func (o *Orchestrator) EnterSessionManagement(userID string) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOrchestratorClosed
	}
	o.userID = userID
	o.mu.Unlock()
	return o.enterDirect(ScreenSessionManagement)
}

// SelectSchool records the chosen school and continues to the role's
// login screen.
func (o *Orchestrator) SelectSchool(form forms.SchoolChoice) error {
	if err := form.Validate(); err != nil {
		return err
	}
	return o.dispatch(SchoolChosen{SchoolID: form.SchoolID})
}

// SubmitLogin resolves a validated login submission through the verifier.
// On success the flow advances to the two-factor screen or straight to
// login-success; on rejection it stays put with the failure recorded.
//
// needs2FA is the submission's own request for a second factor; a
// configured [Verifier] may override it.
func (o *Orchestrator) SubmitLogin(ctx context.Context, identifier, secret string, needs2FA bool) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOrchestratorClosed
	}
	screen := o.state.Screen
	role := o.state.Draft.Role
	o.mu.Unlock()

	switch screen {
	case ScreenAdminLogin, ScreenTeacherLogin, ScreenStudentLogin:
	default:
		return ErrInvalidTransition
	}

	if err := o.limiter.CheckLogin(ctx, identifier); err != nil {
		return o.rejectLogin(identifier, mapRateErr(err))
	}

	result := VerifyResult{UserID: identifier, Needs2FA: needs2FA}
	if o.verifier != nil {
		var err error
		result, err = o.verifier.VerifyCredentials(ctx, role, identifier, secret)
		if err != nil {
			if incErr := o.limiter.IncrementLogin(ctx, identifier); errors.Is(incErr, rate.ErrRateLimited) {
				err = ErrAccountLocked
			}
			return o.rejectLogin(identifier, mapVerifyErr(err))
		}
	}

	if result.UserID == "" {
		result.UserID = identifier
	}

	if result.Needs2FA {
		if err := o.openChallenge(ctx, identifier, role, result.UserID); err != nil {
			return o.rejectLogin(identifier, err)
		}
		return o.dispatch(LoginSubmitted{Identifier: identifier, Needs2FA: true})
	}

	if err := o.establishSession(ctx, result.UserID, identifier); err != nil {
		return o.rejectLogin(identifier, err)
	}
	_ = o.limiter.ResetLogin(ctx, identifier)
	return o.dispatch(LoginSubmitted{Identifier: identifier, Needs2FA: false})
}

// SubmitReset validates the forgot-password form and advances to
// set-password.
func (o *Orchestrator) SubmitReset(form forms.ForgotPassword) error {
	if err := form.Validate(); err != nil {
		return err
	}
	return o.dispatch(ResetSubmitted{})
}

// CompletePasswordSet scores the new password pair and, when every rule
// holds and the confirmation matches, hashes it, hands the hash to the
// verifier when supported, and advances to login-success.
func (o *Orchestrator) CompletePasswordSet(ctx context.Context, form forms.SetPassword) error {
	if err := form.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOrchestratorClosed
	}
	screen := o.state.Screen
	identifier := o.state.Draft.Email
	o.mu.Unlock()

	if screen != ScreenSetPassword {
		return ErrInvalidTransition
	}

	draft := password.Draft{New: form.New, Confirm: form.Confirm}
	if !draft.Match() {
		return ErrPasswordMismatch
	}
	if !password.Evaluate(form.New).Requirements.AllMet() {
		return ErrPasswordPolicy
	}

	hash, err := o.hasher.Hash(form.New)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if updater, ok := o.verifier.(PasswordUpdater); ok {
		if err := updater.UpdatePassword(ctx, identifier, hash); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if err := o.establishSession(ctx, identifier, identifier); err != nil {
		return err
	}
	_ = o.limiter.ResetLogin(ctx, identifier)
	return o.dispatch(PasswordSet{})
}

// CompleteVerification finishes account activation and advances to
// login-success.
func (o *Orchestrator) CompleteVerification(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOrchestratorClosed
	}
	screen := o.state.Screen
	identifier := o.state.Draft.Email
	o.mu.Unlock()

	if screen != ScreenAccountVerification {
		return ErrInvalidTransition
	}
	if identifier == "" {
		identifier = o.currentUserID()
	}
	if identifier != "" {
		if err := o.establishSession(ctx, identifier, identifier); err != nil {
			return err
		}
	}
	return o.dispatch(VerificationCompleted{})
}

// SkipSuccess ends the login-success wait immediately.
func (o *Orchestrator) SkipSuccess() error {
	return o.dispatch(SuccessSkipped{})
}

// Sessions lists the active sessions shown on the session-management
// screen.
func (o *Orchestrator) Sessions(ctx context.Context) ([]*session.Session, error) {
	userID := o.currentUserID()
	if userID == "" {
		return nil, ErrRoleRequired
	}
	return o.sessionStore.ListByUser(ctx, userID)
}

// RevokeSession revokes one active session of the current user.
func (o *Orchestrator) RevokeSession(ctx context.Context, sessionID string) error {
	userID := o.currentUserID()
	if userID == "" {
		return ErrRoleRequired
	}
	return o.sessionStore.Delete(ctx, userID, sessionID)
}

// RevokeOtherSessions revokes every session of the current user.
func (o *Orchestrator) RevokeOtherSessions(ctx context.Context) error {
	userID := o.currentUserID()
	if userID == "" {
		return ErrRoleRequired
	}
	return o.sessionStore.DeleteAllForUser(ctx, userID)
}

func (o *Orchestrator) currentUserID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.userID
}

// rejectLogin records a failed submission on the current login screen and
// returns the failure.
func (o *Orchestrator) rejectLogin(identifier string, cause error) error {
	o.logger.Warn("login rejected", "identifier", identifier, "cause", cause)
	if err := o.dispatch(LoginFailed{Err: cause}); err != nil {
		return err
	}
	return cause
}

func mapVerifyErr(err error) error {
	switch {
	case errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrLoginRateLimited):
		return err
	case errors.Is(err, rate.ErrRateLimited):
		return ErrAccountLocked
	case errors.Is(err, rate.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
}

func mapRateErr(err error) error {
	switch {
	case errors.Is(err, rate.ErrRateLimited):
		return ErrAccountLocked
	case errors.Is(err, rate.ErrRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	default:
		return err
	}
}

// establishSession creates the Redis session record and, when enabled,
// the signed token handed to OnLoginSuccess.
func (o *Orchestrator) establishSession(ctx context.Context, userID, identifier string) error {
	o.mu.Lock()
	role := o.state.Draft.Role
	schoolID := o.state.Draft.SchoolID
	o.mu.Unlock()

	now := o.nowTime()
	sid := uuid.NewString()
	sess := &session.Session{
		SessionID: sid,
		UserID:    userID,
		Role:      uint8(role),
		SchoolID:  schoolID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(o.config.Session.TTL).Unix(),
	}
	if err := o.sessionStore.Create(ctx, sess, o.config.Session.TTL); err != nil {
		if errors.Is(err, session.ErrLimitExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var token string
	if o.tokens != nil {
		var err error
		token, err = o.tokens.CreateSession(userID, role.String(), sid)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	o.mu.Lock()
	o.userID = userID
	o.pendingToken = token
	o.mu.Unlock()

	o.logger.Info("session established",
		"user", userID, "role", role.String(), "session", sid)
	return nil
}

func (o *Orchestrator) nowTime() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// enterDirect commits a deep-link navigation that is not part of the
// event table.
func (o *Orchestrator) enterDirect(target Screen) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOrchestratorClosed
	}
	from := o.state.Screen
	o.gen++
	o.leaveScreenLocked(from)
	o.state.Screen = target
	o.state.Failure = nil
	onChange := o.callbacks.OnScreenChange
	o.mu.Unlock()

	if onChange != nil && from != target {
		onChange(from, target)
	}
	return nil
}

// dispatch runs one event through the reducer and applies entry/exit
// effects for the committed transition.
func (o *Orchestrator) dispatch(ev Event) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrOrchestratorClosed
	}

	from := o.state.Screen
	next, ok := transition(o.state, ev)
	if !ok {
		o.mu.Unlock()
		return ErrInvalidTransition
	}

	o.gen++
	gen := o.gen
	if next.Screen != from {
		o.leaveScreenLocked(from)
	}
	o.state = next

	var fireSuccess bool
	switch ev.(type) {
	case SuccessElapsed, SuccessSkipped:
		if !o.successFired {
			o.successFired = true
			fireSuccess = true
		}
	}

	if next.Screen == ScreenLoginSuccess && from != ScreenLoginSuccess {
		o.scheduleSuccessLocked(gen)
	}
	if next.Screen == ScreenTwoFactor && from != ScreenTwoFactor {
		o.startResendCountdownLocked()
	}
	if next.Screen == ScreenPortalSelection && from != ScreenPortalSelection {
		o.userID = ""
		o.pendingToken = ""
		o.successFired = false
	}

	role := o.state.Draft.Role
	token := o.pendingToken
	onChange := o.callbacks.OnScreenChange
	onSuccess := o.callbacks.OnLoginSuccess
	o.mu.Unlock()

	if onChange != nil && next.Screen != from {
		onChange(from, next.Screen)
	}
	if fireSuccess && onSuccess != nil {
		onSuccess(role, token)
	}
	return nil
}

// leaveScreenLocked runs exit effects for the screen being left. Caller
// holds o.mu and has already bumped the generation.
func (o *Orchestrator) leaveScreenLocked(from Screen) {
	switch from {
	case ScreenTwoFactor:
		o.destroyChallengeLocked()
	case ScreenLoginSuccess:
		if o.successTimer != nil {
			o.successTimer.Stop()
			o.successTimer = nil
		}
	}
}

func (o *Orchestrator) stopTimersLocked() {
	if o.successTimer != nil {
		o.successTimer.Stop()
		o.successTimer = nil
	}
	if o.resend != nil {
		o.resend.Stop()
	}
}

// scheduleSuccessLocked arms the auto-advance timer for the success
// screen. The captured generation keeps an already-cancelled navigation
// from firing the callback against a newer flow.
func (o *Orchestrator) scheduleSuccessLocked(gen uint64) {
	o.successTimer = time.AfterFunc(o.config.Success.RedirectDelay, func() {
		o.mu.Lock()
		stale := o.closed || gen != o.gen
		o.mu.Unlock()
		if stale {
			return
		}
		_ = o.dispatch(SuccessElapsed{})
	})
}
