package authflow

// State is the reducer's value: the current screen, the session draft and
// the last recorded submission failure. The orchestrator owns exactly one
// State at a time.
type State struct {
	Screen  Screen
	Draft   Draft
	Failure error
}

func initialState() State {
	return State{Screen: ScreenPortalSelection}
}

// loginScreenFor is the single role-to-login-screen mapping. Every back
// target and forward branch goes through it so the flow cannot disagree
// with itself about where a role signs in.
func loginScreenFor(r Role) Screen {
	switch r {
	case RoleAdmin:
		return ScreenAdminLogin
	case RoleTeacher:
		return ScreenTeacherLogin
	case RoleStudent, RoleParent:
		return ScreenStudentLogin
	default:
		// No role on record: the student portal is the public default.
		return ScreenStudentLogin
	}
}

// transition is the total, pure reducer over (state, event). Illegal
// events leave the state untouched and report ok=false; the orchestrator
// turns that into [ErrInvalidTransition]. No side effects happen here.
// Timers, stores and callbacks are the orchestrator's job.
func transition(s State, ev Event) (State, bool) {
	// AccessDenied is legal from anywhere.
	if _, ok := ev.(AccessDenied); ok {
		s.Screen = ScreenAccessDenied
		s.Failure = nil
		return s, true
	}

	switch s.Screen {
	case ScreenPortalSelection:
		if e, ok := ev.(RoleChosen); ok && e.Role != RoleNone {
			s.Draft.Role = e.Role
			s.Screen = loginScreenFor(e.Role)
			s.Failure = nil
			return s, true
		}

	case ScreenAdminLogin, ScreenTeacherLogin, ScreenStudentLogin:
		switch e := ev.(type) {
		case Back:
			s = State{Screen: ScreenPortalSelection}
			return s, true
		case ForgotPassword:
			s.Draft.Email = e.Identifier
			s.Screen = ScreenForgotPassword
			s.Failure = nil
			return s, true
		case LoginSubmitted:
			s.Draft.Email = e.Identifier
			if e.Needs2FA {
				s.Screen = ScreenTwoFactor
			} else {
				s.Screen = ScreenLoginSuccess
			}
			s.Failure = nil
			return s, true
		case LoginFailed:
			s.Failure = e.Err
			return s, true
		}

	case ScreenForgotPassword:
		switch ev.(type) {
		case Back:
			s.Screen = loginScreenFor(s.Draft.Role)
			return s, true
		case ResetSubmitted:
			s.Screen = ScreenSetPassword
			return s, true
		}

	case ScreenTwoFactor:
		switch e := ev.(type) {
		case Back:
			s.Screen = loginScreenFor(s.Draft.Role)
			s.Failure = nil
			return s, true
		case CodeVerified:
			s.Screen = ScreenLoginSuccess
			s.Failure = nil
			return s, true
		case LoginFailed:
			s.Failure = e.Err
			return s, true
		}

	case ScreenSetPassword:
		if _, ok := ev.(PasswordSet); ok {
			s.Screen = ScreenLoginSuccess
			s.Failure = nil
			return s, true
		}

	case ScreenAccountVerification:
		if _, ok := ev.(VerificationCompleted); ok {
			s.Screen = ScreenLoginSuccess
			s.Failure = nil
			return s, true
		}

	case ScreenSchoolSelector:
		switch e := ev.(type) {
		case Back:
			s = State{Screen: ScreenPortalSelection}
			return s, true
		case SchoolChosen:
			s.Draft.SchoolID = e.SchoolID
			s.Screen = loginScreenFor(s.Draft.Role)
			return s, true
		}

	case ScreenLoginSuccess:
		switch ev.(type) {
		case SuccessElapsed, SuccessSkipped:
			// The flow hands off to the host; state stays on the success
			// screen until Reset.
			return s, true
		}

	case ScreenAccessDenied:
		if _, ok := ev.(Back); ok {
			s = State{Screen: ScreenPortalSelection}
			return s, true
		}

	case ScreenSessionManagement:
		if _, ok := ev.(Back); ok {
			s = State{Screen: ScreenPortalSelection}
			return s, true
		}
	}

	return s, false
}
