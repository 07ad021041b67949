package core

import "time"

// SessionEventType names a session lifecycle transition
type SessionEventType string

const (
	EventLogin          SessionEventType = "login"
	EventLogout         SessionEventType = "logout"
	EventRenewed        SessionEventType = "renewed"
	EventRenewalFailed  SessionEventType = "renewal_failed"
	EventSessionExpired SessionEventType = "session_expired"
)

// SessionEvent is published on every session lifecycle transition
type SessionEvent struct {
	Type    SessionEventType `json:"type"`
	Address string           `json:"address,omitempty"`
	Reason  string           `json:"reason,omitempty"`
	At      time.Time        `json:"at"`
}
