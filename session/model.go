package session

// Session is one signed-in device for a user, as shown on the
// session-management screen.
type Session struct {
	SessionID string
	UserID    string
	Role      uint8
	SchoolID  string
	CreatedAt int64
	ExpiresAt int64
}
