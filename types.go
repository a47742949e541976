package authflow

import (
	"context"
	"time"
)

// Role identifies which portal a user is signing in through. A role is
// fixed for the lifetime of one authentication attempt and determines the
// login screen used and the back target of auxiliary screens.
type Role uint8

const (
	// RoleNone means no portal has been selected yet.
	RoleNone Role = iota
	// RoleAdmin is the school administrator portal.
	RoleAdmin
	// RoleTeacher is the teacher portal.
	RoleTeacher
	// RoleStudent is the student portal.
	RoleStudent
	// RoleParent is the parent portal. Parents share the student login
	// screen but keep their own credential mode.
	RoleParent
)

// String returns the lowercase role name.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleTeacher:
		return "teacher"
	case RoleStudent:
		return "student"
	case RoleParent:
		return "parent"
	default:
		return "none"
	}
}

// ParseRole maps a role name to its [Role] value. Unknown names map to
// [RoleNone].
func ParseRole(s string) Role {
	switch s {
	case "admin":
		return RoleAdmin
	case "teacher":
		return RoleTeacher
	case "student":
		return RoleStudent
	case "parent":
		return RoleParent
	default:
		return RoleNone
	}
}

// Screen is one discrete, mutually exclusive state of the authentication
// flow. Exactly one screen is current at any time.
type Screen uint8

const (
	// ScreenPortalSelection is the initial state: pick a role.
	ScreenPortalSelection Screen = iota
	// ScreenAdminLogin collects administrator credentials.
	ScreenAdminLogin
	// ScreenTeacherLogin collects teacher credentials.
	ScreenTeacherLogin
	// ScreenStudentLogin collects student or parent credentials.
	ScreenStudentLogin
	// ScreenForgotPassword starts a password reset.
	ScreenForgotPassword
	// ScreenTwoFactor holds an active OTP challenge.
	ScreenTwoFactor
	// ScreenSetPassword collects and scores a replacement password.
	ScreenSetPassword
	// ScreenAccountVerification finishes first-time account activation.
	ScreenAccountVerification
	// ScreenSessionManagement lists and revokes active sessions.
	ScreenSessionManagement
	// ScreenAccessDenied is shown when the portal rejects the user.
	ScreenAccessDenied
	// ScreenSchoolSelector picks a school before login on multi-school
	// deployments.
	ScreenSchoolSelector
	// ScreenLoginSuccess is the post-login transition screen.
	ScreenLoginSuccess
)

var screenNames = map[Screen]string{
	ScreenPortalSelection:     "portal-selection",
	ScreenAdminLogin:          "admin-login",
	ScreenTeacherLogin:        "teacher-login",
	ScreenStudentLogin:        "student-login",
	ScreenForgotPassword:      "forgot-password",
	ScreenTwoFactor:           "two-factor",
	ScreenSetPassword:         "set-password",
	ScreenAccountVerification: "account-verification",
	ScreenSessionManagement:   "session-management",
	ScreenAccessDenied:        "access-denied",
	ScreenSchoolSelector:      "school-selector",
	ScreenLoginSuccess:        "login-success",
}

// String returns the kebab-case screen name.
func (s Screen) String() string {
	if name, ok := screenNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the screen has no forward transition inside the
// login flow. login-success hands off to the host application; the other
// two only go back to portal selection.
func (s Screen) Terminal() bool {
	switch s {
	case ScreenLoginSuccess, ScreenAccessDenied, ScreenSessionManagement:
		return true
	default:
		return false
	}
}

// Draft is the transient data carried across screens during a single
// authentication attempt. It is owned by the orchestrator, mutated only by
// the reducer, and cleared when the flow returns to portal selection.
type Draft struct {
	Role     Role
	Email    string
	SchoolID string
}

// Event is the closed set of screen-exit signals consumed by the
// orchestrator. Leaf screens never navigate themselves; they emit one of
// these and the reducer decides the next screen.
type Event interface {
	isEvent()
}

// RoleChosen is emitted by portal selection.
type RoleChosen struct {
	Role Role
}

// Back requests a return to the screen's back target.
type Back struct{}

// LoginSubmitted is emitted by a login form after local validation passed.
type LoginSubmitted struct {
	Identifier string
	Needs2FA   bool
}

// LoginFailed records a rejected submission; the flow stays on the
// originating login screen with the failure attached.
type LoginFailed struct {
	Err error
}

// ForgotPassword is emitted by a login form's reset link.
type ForgotPassword struct {
	Identifier string
}

// ResetSubmitted is emitted by the forgot-password screen.
type ResetSubmitted struct{}

// CodeVerified is emitted by the two-factor screen on a correct code.
type CodeVerified struct{}

// PasswordSet is emitted by the set-password screen once the new password
// is accepted.
type PasswordSet struct{}

// VerificationCompleted is emitted by the account-verification screen.
type VerificationCompleted struct{}

// SchoolChosen is emitted by the school selector.
type SchoolChosen struct {
	SchoolID string
}

// AccessDenied forces the flow onto the access-denied screen from
// anywhere.
type AccessDenied struct{}

// SuccessElapsed is emitted when the login-success auto-advance timer
// fires.
type SuccessElapsed struct{}

// SuccessSkipped is emitted when the user skips the login-success wait.
type SuccessSkipped struct{}

func (RoleChosen) isEvent()            {}
func (Back) isEvent()                  {}
func (LoginSubmitted) isEvent()        {}
func (LoginFailed) isEvent()           {}
func (ForgotPassword) isEvent()        {}
func (ResetSubmitted) isEvent()        {}
func (CodeVerified) isEvent()          {}
func (PasswordSet) isEvent()           {}
func (VerificationCompleted) isEvent() {}
func (SchoolChosen) isEvent()          {}
func (AccessDenied) isEvent()          {}
func (SuccessElapsed) isEvent()        {}
func (SuccessSkipped) isEvent()        {}

// VerifyResult is returned by [Verifier.VerifyCredentials].
type VerifyResult struct {
	UserID   string
	Needs2FA bool
}

// Verifier is the credential backend boundary. Implementations decide
// whether a submission is accepted and whether a second factor is
// required. The library ships no real verifier; tests and the demo use
// simulated ones.
type Verifier interface {
	VerifyCredentials(ctx context.Context, role Role, identifier, secret string) (VerifyResult, error)
}

// CodeSender delivers a generated OTP code to the user. Delivery transport
// (SMS, email) is outside the flow; the console demo just prints it.
type CodeSender interface {
	SendCode(ctx context.Context, identifier, code string) error
}

// Callbacks is the contract the orchestrator exposes to the hosting
// application.
type Callbacks struct {
	// OnLoginSuccess fires once per completed flow, after the success
	// screen's auto-advance timer elapses or the user skips it. The token
	// is empty when token issuance is disabled.
	OnLoginSuccess func(role Role, token string)

	// OnScreenChange, when set, observes every committed transition.
	OnScreenChange func(from, to Screen)
}

// Clock abstracts time for tests. A nil Clock falls back to time.Now.
type Clock func() time.Time
