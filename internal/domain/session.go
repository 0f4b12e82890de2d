package domain

import "time"

// Session is the authenticated identity held on the device.
type Session struct {
	Token   string  `json:"token"`
	UserID  string  `json:"user_id"`
	Profile Profile `json:"profile"`
}

// SessionState is the lifecycle state of the device session.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticatedUnvalidated
	StateAuthenticatedValidated
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticatedUnvalidated:
		return "authenticated_unvalidated"
	case StateAuthenticatedValidated:
		return "authenticated_validated"
	default:
		return "unauthenticated"
	}
}

// Active reports whether the state carries a usable token.
func (s SessionState) Active() bool {
	return s != StateUnauthenticated
}

// SessionRecord is the server-side session row backing an issued token.
type SessionRecord struct {
	SessionID string    `json:"id" dynamodbav:"session_id"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	DeviceID  string    `json:"device_id" dynamodbav:"device_id"`
	Enable    bool      `json:"enable" dynamodbav:"enable"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
}
