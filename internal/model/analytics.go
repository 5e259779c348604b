package model

import "time"

// Analytics event types recorded by the auth flows.
const (
	EventSignup        = "signup"
	EventLogin         = "login"
	EventLogout        = "logout"
	EventVerification  = "verification"
	EventPasswordReset = "password_reset"
)

// Event outcome statuses.
const (
	EventSuccess = "success"
	EventFailure = "failure"
)

// AnalyticsEvent is one recorded auth event. UserID may be empty when
// the actor could not be identified (failed logins by unknown email).
type AnalyticsEvent struct {
	ID        string
	Type      string
	UserID    string
	IP        string
	Referrer  string
	Status    string
	Details   map[string]string
	CreatedAt time.Time
}
