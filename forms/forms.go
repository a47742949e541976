package forms

// AdminLogin collects administrator credentials.
type AdminLogin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Remember bool   `json:"remember"`
}

// Validate checks required-field presence and email shape.
func (f AdminLogin) Validate() error {
	return check(f)
}

// Identifier returns the credential identifier used downstream.
func (f AdminLogin) Identifier() string { return f.Email }

// TeacherLogin collects teacher credentials.
type TeacherLogin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Remember bool   `json:"remember"`
}

// Validate checks required-field presence and email shape.
func (f TeacherLogin) Validate() error {
	return check(f)
}

// Identifier returns the credential identifier used downstream.
func (f TeacherLogin) Identifier() string { return f.Email }

// StudentLogin is the student sub-flow of the shared student/parent
// screen: admission number plus date of birth.
type StudentLogin struct {
	AdmissionNumber string `json:"admission_number" validate:"required"`
	DateOfBirth     string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
}

// Validate checks required-field presence and the date format.
func (f StudentLogin) Validate() error {
	return check(f)
}

// Identifier returns the credential identifier used downstream.
func (f StudentLogin) Identifier() string { return f.AdmissionNumber }

// ParentMode selects the parent sub-flow's credential kind.
type ParentMode string

const (
	// ParentModeOTP signs a parent in with a mobile number and a
	// delivered code.
	ParentModeOTP ParentMode = "otp"
	// ParentModePassword signs a parent in with a mobile number and a
	// password.
	ParentModePassword ParentMode = "password"
)

// ParentLogin is the parent sub-flow of the shared student/parent screen.
// The two modes are independent: switching modes must not carry entered
// data across, which is why [ParentLogin.SwitchMode] clears both secrets.
type ParentLogin struct {
	Mode     ParentMode `json:"mode" validate:"required,oneof=otp password"`
	Mobile   string     `json:"mobile" validate:"required,e164"`
	OTP      string     `json:"otp" validate:"required_if=Mode otp,omitempty,len=6,numeric"`
	Password string     `json:"password" validate:"required_if=Mode password"`
}

// Validate checks the fields demanded by the active mode.
func (f ParentLogin) Validate() error {
	return check(f)
}

// Identifier returns the credential identifier used downstream.
func (f ParentLogin) Identifier() string { return f.Mobile }

// SwitchMode returns a copy in the other mode with both secrets cleared.
func (f ParentLogin) SwitchMode(mode ParentMode) ParentLogin {
	if mode == f.Mode {
		return f
	}
	return ParentLogin{Mode: mode, Mobile: f.Mobile}
}

// ForgotPassword starts a reset for the given account.
type ForgotPassword struct {
	Email string `json:"email" validate:"required,email"`
}

// Validate checks required-field presence and email shape.
func (f ForgotPassword) Validate() error {
	return check(f)
}

// SetPassword is the set-password screen's entry. Strength rules and the
// confirmation match are enforced by the flow; this form only guards
// presence and minimum length.
type SetPassword struct {
	New     string `json:"new_password" validate:"required,min=8"`
	Confirm string `json:"confirm_password" validate:"required"`
}

// Validate checks required-field presence and minimum length.
func (f SetPassword) Validate() error {
	return check(f)
}

// OTPCode is the two-factor screen's entry: exactly six digits.
type OTPCode struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// Validate checks that all six digits were entered.
func (f OTPCode) Validate() error {
	return check(f)
}

// SchoolChoice is the school selector's entry.
type SchoolChoice struct {
	SchoolID string `json:"school_id" validate:"required"`
}

// Validate checks that a school was picked.
func (f SchoolChoice) Validate() error {
	return check(f)
}
