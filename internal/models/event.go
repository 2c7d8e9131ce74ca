package models

import "time"

// Auth event types recorded in the audit trail.
const (
	EventLoginSucceeded = "login_succeeded"
	EventLoginFailed    = "login_failed"
	EventLogout         = "logout"
	EventRefreshed      = "session_refreshed"
	EventForcedReauth   = "forced_reauth"
)

// AuthEvent is one entry of the authentication audit trail.
type AuthEvent struct {
	Type       string    `json:"type"`
	Email      string    `json:"email,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	Category   string    `json:"category,omitempty"`
	RemoteAddr string    `json:"remoteAddr,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
