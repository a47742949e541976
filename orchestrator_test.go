package authflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// captureSender records every code handed to it.
type captureSender struct {
	mu    sync.Mutex
	codes []string
}

func (s *captureSender) SendCode(_ context.Context, _, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
	return nil
}

func (s *captureSender) last(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		t.Fatal("no code was sent")
	}
	return s.codes[len(s.codes)-1]
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}

// stubVerifier returns a fixed result or error for every submission.
type stubVerifier struct {
	needs2FA bool
	err      error
}

func (v stubVerifier) VerifyCredentials(_ context.Context, _ Role, identifier, _ string) (VerifyResult, error) {
	if v.err != nil {
		return VerifyResult{}, v.err
	}
	return VerifyResult{UserID: identifier, Needs2FA: v.needs2FA}, nil
}

func testConfig() Config {
	cfg := defaultConfig()
	// Millisecond ticks keep the countdown at 60 counts without 60 real
	// seconds of test time.
	cfg.TwoFactor.ResendInterval = 60 * time.Millisecond
	cfg.Success.RedirectDelay = 20 * time.Millisecond
	return cfg
}

type flowOption func(*Builder)

func newTestFlow(t *testing.T, cfg Config, opts ...flowOption) (*Orchestrator, *redis.Client, *captureSender) {
	t.Helper()

	_, rdb := newTestRedis(t)
	sender := &captureSender{}

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCodeSender(sender).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithTickInterval(time.Millisecond)
	for _, opt := range opts {
		opt(builder)
	}

	flow, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(flow.Close)
	return flow, rdb, sender
}

func TestInitialScreenIsPortalSelection(t *testing.T) {
	flow, _, _ := newTestFlow(t, testConfig())

	if got := flow.CurrentScreen(); got != ScreenPortalSelection {
		t.Fatalf("expected portal-selection, got %s", got)
	}
}

func TestRoleSelectionAndBackClearsRole(t *testing.T) {
	wantScreen := map[Role]Screen{
		RoleAdmin:   ScreenAdminLogin,
		RoleTeacher: ScreenTeacherLogin,
		RoleStudent: ScreenStudentLogin,
		RoleParent:  ScreenStudentLogin,
	}

	for role, want := range wantScreen {
		t.Run(role.String(), func(t *testing.T) {
			flow, _, _ := newTestFlow(t, testConfig())

			if err := flow.ChooseRole(role); err != nil {
				t.Fatalf("ChooseRole failed: %v", err)
			}
			if got := flow.CurrentScreen(); got != want {
				t.Fatalf("expected %s, got %s", want, got)
			}
			if got := flow.DraftSnapshot().Role; got != role {
				t.Fatalf("expected draft role %s, got %s", role, got)
			}

			if err := flow.Back(); err != nil {
				t.Fatalf("Back failed: %v", err)
			}
			if got := flow.CurrentScreen(); got != ScreenPortalSelection {
				t.Fatalf("expected portal-selection after back, got %s", got)
			}
			if got := flow.DraftSnapshot().Role; got != RoleNone {
				t.Fatalf("expected role cleared after back, got %s", got)
			}
		})
	}
}

func TestChooseRoleNoneRejected(t *testing.T) {
	flow, _, _ := newTestFlow(t, testConfig())

	if err := flow.ChooseRole(RoleNone); !errors.Is(err, ErrRoleRequired) {
		t.Fatalf("expected ErrRoleRequired, got %v", err)
	}
}

func TestTeacherLoginWithout2FAGoesStraightToSuccess(t *testing.T) {
	flow, _, _ := newTestFlow(t, testConfig(),
		func(b *Builder) { b.WithVerifier(stubVerifier{needs2FA: false}) })

	if err := flow.ChooseRole(RoleTeacher); err != nil {
		t.Fatalf("ChooseRole failed: %v", err)
	}
	if err := flow.SubmitLogin(context.Background(), "t@school.example", "pw", false); err != nil {
		t.Fatalf("SubmitLogin failed: %v", err)
	}
	if got := flow.CurrentScreen(); got != ScreenLoginSuccess {
		t.Fatalf("expected login-success, got %s", got)
	}
}

func TestAdminLoginWith2FAScenario(t *testing.T) {
	var (
		mu        sync.Mutex
		gotRole   Role
		completed = make(chan struct{})
	)
	flow, _, sender := newTestFlow(t, testConfig(),
		func(b *Builder) { b.WithVerifier(stubVerifier{needs2FA: true}) },
		func(b *Builder) {
			b.WithCallbacks(Callbacks{
				OnLoginSuccess: func(role Role, _ string) {
					mu.Lock()
					gotRole = role
					mu.Unlock()
					close(completed)
				},
			})
		})

	if err := flow.ChooseRole(RoleAdmin); err != nil {
		t.Fatalf("ChooseRole failed: %v", err)
	}
	if err := flow.SubmitLogin(context.Background(), "a@school.example", "pw", false); err != nil {
		t.Fatalf("SubmitLogin failed: %v", err)
	}
	if got := flow.CurrentScreen(); got != ScreenTwoFactor {
		t.Fatalf("expected two-factor, got %s", got)
	}

	code := sender.last(t)
	if err := flow.VerifyCode(context.Background(), otpForm(code)); err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	if got := flow.CurrentScreen(); got != ScreenLoginSuccess {
		t.Fatalf("expected login-success, got %s", got)
	}

	select {
	case <-completed:
	case <-time.After(time.Second):
		t.Fatal("OnLoginSuccess did not fire after the redirect delay")
	}
	mu.Lock()
	defer mu.Unlock()
	if gotRole != RoleAdmin {
		t.Fatalf("expected admin role in callback, got %s", gotRole)
	}
}

func TestSkipSuccessFiresCallbackOnce(t *testing.T) {
	var (
		mu    sync.Mutex
		fires int
	)
	cfg := testConfig()
	cfg.Success.RedirectDelay = 30 * time.Millisecond
	flow, _, _ := newTestFlow(t, cfg,
		func(b *Builder) { b.WithVerifier(stubVerifier{}) },
		func(b *Builder) {
			b.WithCallbacks(Callbacks{
				OnLoginSuccess: func(Role, string) {
					mu.Lock()
					fires++
					mu.Unlock()
				},
			})
		})

	if err := flow.ChooseRole(RoleStudent); err != nil {
		t.Fatalf("ChooseRole failed: %v", err)
	}
	if err := flow.SubmitLogin(context.Background(), "adm-104", "2010-04-02", false); err != nil {
		t.Fatalf("SubmitLogin failed: %v", err)
	}
	if err := flow.SkipSuccess(); err != nil {
		t.Fatalf("SkipSuccess failed: %v", err)
	}

	// The auto-advance timer must not double-fire after the skip.
	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fires != 1 {
		t.Fatalf("expected exactly one OnLoginSuccess, got %d", fires)
	}
}

func TestInvalidCredentialsStaysOnLoginScreen(t *testing.T) {
	flow, _, _ := newTestFlow(t, testConfig(),
		func(b *Builder) { b.WithVerifier(stubVerifier{err: ErrInvalidCredentials}) })

	if err := flow.ChooseRole(RoleAdmin); err != nil {
		t.Fatalf("ChooseRole failed: %v", err)
	}
	err := flow.SubmitLogin(context.Background(), "a@school.example", "wrong", false)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := flow.CurrentScreen(); got != ScreenAdminLogin {
		t.Fatalf("expected to stay on admin-login, got %s", got)
	}
	if got := flow.LastFailure(); !errors.Is(got, ErrInvalidCredentials) {
		t.Fatalf("expected recorded failure, got %v", got)
	}
}

func TestRepeatedFailuresLockAccount(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MaxLoginAttempts = 2
	flow, _, _ := newTestFlow(t, cfg,
		func(b *Builder) { b.WithVerifier(stubVerifier{err: ErrInvalidCredentials}) })

	if err := flow.ChooseRole(RoleTeacher); err != nil {
		t.Fatalf("ChooseRole failed: %v", err)
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		lastErr = flow.SubmitLogin(context.Background(), "t@school.example", "wrong", false)
	}
	if !errors.Is(lastErr, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked after exhausting attempts, got %v", lastErr)
	}
	if got := flow.CurrentScreen(); got != ScreenTeacherLogin {
		t.Fatalf("expected to stay on teacher-login, got %s", got)
	}
}

func TestForgotPasswordRoundTrip(t *testing.T) {
	flow, _, _ := newTestFlow(t, testConfig(),
		func(b *Builder) { b.WithVerifier(stubVerifier{}) })

	if err := flow.ChooseRole(RoleTeacher); err != nil {
		t.Fatalf("ChooseRole failed: %v", err)
	}
	if err := flow.StartForgotPassword("t@school.example"); err != nil {
		t.Fatalf("StartForgotPassword failed: %v", err)
	}
	if got := flow.CurrentScreen(); got != ScreenForgotPassword {
		t.Fatalf("expected forgot-password, got %s", got)
	}
	if got := flow.DraftSnapshot().Email; got != "t@school.example" {
		t.Fatalf("expected email carried into draft, got %q", got)
	}

	// Back returns to the role's login screen, not portal selection.
	if err := flow.Back(); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	if got := flow.CurrentScreen(); got != ScreenTeacherLogin {
		t.Fatalf("expected teacher-login, got %s", got)
	}
}

func TestPasswordResetFlowReachesSuccess(t *testing.T) {
	flow, _, _ := newTestFlow(t, testConfig(),
		func(b *Builder) { b.WithVerifier(stubVerifier{}) })

	if err := flow.ChooseRole(RoleAdmin); err != nil {
		t.Fatalf("ChooseRole failed: %v", err)
	}
	if err := flow.StartForgotPassword("a@school.example"); err != nil {
		t.Fatalf("StartForgotPassword failed: %v", err)
	}
	if err := flow.SubmitReset(resetForm("a@school.example")); err != nil {
		t.Fatalf("SubmitReset failed: %v", err)
	}
	if got := flow.CurrentScreen(); got != ScreenSetPassword {
		t.Fatalf("expected set-password, got %s", got)
	}

	err := flow.CompletePasswordSet(context.Background(), setPasswordForm("Aa1!aaaa", "Aa1!bbbb"))
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
	err = flow.CompletePasswordSet(context.Background(), setPasswordForm("alllower1!", "alllower1!"))
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}

	if err := flow.CompletePasswordSet(context.Background(), setPasswordForm("Aa1!aaaa", "Aa1!aaaa")); err != nil {
		t.Fatalf("CompletePasswordSet failed: %v", err)
	}
	if got := flow.CurrentScreen(); got != ScreenLoginSuccess {
		t.Fatalf("expected login-success, got %s", got)
	}
}

func TestAccessDeniedFromAnywhereAndBack(t *testing.T) {
	flow, _, _ := newTestFlow(t, testConfig(),
		func(b *Builder) { b.WithVerifier(stubVerifier{needs2FA: true}) })

	if err := flow.ChooseRole(RoleParent); err != nil {
		t.Fatalf("ChooseRole failed: %v", err)
	}
	if err := flow.SubmitLogin(context.Background(), "+15550100", "pw", false); err != nil {
		t.Fatalf("SubmitLogin failed: %v", err)
	}
	if err := flow.EnterAccessDenied(); err != nil {
		t.Fatalf("EnterAccessDenied failed: %v", err)
	}
	if got := flow.CurrentScreen(); got != ScreenAccessDenied {
		t.Fatalf("expected access-denied, got %s", got)
	}

	if err := flow.Back(); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	if got := flow.CurrentScreen(); got != ScreenPortalSelection {
		t.Fatalf("expected portal-selection, got %s", got)
	}
	if got := flow.DraftSnapshot().Role; got != RoleNone {
		t.Fatalf("expected role cleared, got %s", got)
	}
}

func TestSchoolSelectorDeepLink(t *testing.T) {
	flow, _, _ := newTestFlow(t, testConfig())

	if err := flow.EnterSchoolSelector(); err != nil {
		t.Fatalf("EnterSchoolSelector failed: %v", err)
	}
	if got := flow.CurrentScreen(); got != ScreenSchoolSelector {
		t.Fatalf("expected school-selector, got %s", got)
	}

	if err := flow.SelectSchool(schoolForm("sch-042")); err != nil {
		t.Fatalf("SelectSchool failed: %v", err)
	}
	// No role on record: the selector falls through to the public
	// student login.
	if got := flow.CurrentScreen(); got != ScreenStudentLogin {
		t.Fatalf("expected student-login, got %s", got)
	}
	if got := flow.DraftSnapshot().SchoolID; got != "sch-042" {
		t.Fatalf("expected school id recorded, got %q", got)
	}
}

func TestAccountVerificationDeepLink(t *testing.T) {
	flow, _, _ := newTestFlow(t, testConfig())

	if err := flow.EnterAccountVerification(); err != nil {
		t.Fatalf("EnterAccountVerification failed: %v", err)
	}
	if err := flow.CompleteVerification(context.Background()); err != nil {
		t.Fatalf("CompleteVerification failed: %v", err)
	}
	if got := flow.CurrentScreen(); got != ScreenLoginSuccess {
		t.Fatalf("expected login-success, got %s", got)
	}
}

func TestSessionManagementListsAndRevokes(t *testing.T) {
	flow, _, _ := newTestFlow(t, testConfig(),
		func(b *Builder) { b.WithVerifier(stubVerifier{}) })

	ctx := context.Background()
	if err := flow.ChooseRole(RoleAdmin); err != nil {
		t.Fatalf("ChooseRole failed: %v", err)
	}
	if err := flow.SubmitLogin(ctx, "a@school.example", "pw", false); err != nil {
		t.Fatalf("SubmitLogin failed: %v", err)
	}

	sessions, err := flow.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}

	if err := flow.RevokeSession(ctx, sessions[0].SessionID); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	sessions, err = flow.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions after revoke, got %d", len(sessions))
	}
}

func TestTokenIssuedWhenEnabled(t *testing.T) {
	var (
		mu    sync.Mutex
		token string
		done  = make(chan struct{})
	)
	cfg := testConfig()
	cfg.Token.Enabled = true
	cfg.Token.Secret = []byte("test-secret")
	flow, _, _ := newTestFlow(t, cfg,
		func(b *Builder) { b.WithVerifier(stubVerifier{}) },
		func(b *Builder) {
			b.WithCallbacks(Callbacks{
				OnLoginSuccess: func(_ Role, tok string) {
					mu.Lock()
					token = tok
					mu.Unlock()
					close(done)
				},
			})
		})

	if err := flow.ChooseRole(RoleTeacher); err != nil {
		t.Fatalf("ChooseRole failed: %v", err)
	}
	if err := flow.SubmitLogin(context.Background(), "t@school.example", "pw", false); err != nil {
		t.Fatalf("SubmitLogin failed: %v", err)
	}
	if err := flow.SkipSuccess(); err != nil {
		t.Fatalf("SkipSuccess failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnLoginSuccess did not fire")
	}
	mu.Lock()
	defer mu.Unlock()
	if token == "" {
		t.Fatal("expected a session token")
	}
}

func TestClosedOrchestratorRejectsOperations(t *testing.T) {
	flow, _, _ := newTestFlow(t, testConfig())

	flow.Close()
	if err := flow.ChooseRole(RoleAdmin); !errors.Is(err, ErrOrchestratorClosed) {
		t.Fatalf("expected ErrOrchestratorClosed, got %v", err)
	}
}

func TestResetReturnsToPortalSelection(t *testing.T) {
	flow, _, _ := newTestFlow(t, testConfig(),
		func(b *Builder) { b.WithVerifier(stubVerifier{}) })

	if err := flow.ChooseRole(RoleAdmin); err != nil {
		t.Fatalf("ChooseRole failed: %v", err)
	}
	if err := flow.SubmitLogin(context.Background(), "a@school.example", "pw", false); err != nil {
		t.Fatalf("SubmitLogin failed: %v", err)
	}

	flow.Reset()
	if got := flow.CurrentScreen(); got != ScreenPortalSelection {
		t.Fatalf("expected portal-selection, got %s", got)
	}
	if got := flow.DraftSnapshot(); got != (Draft{}) {
		t.Fatalf("expected empty draft, got %+v", got)
	}
}
